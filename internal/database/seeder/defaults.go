package seeder

// Defaults seeds a local development database: one onboarded demo user and
// a handful of fresh listings for the dispatcher to score.
func Defaults() []Seeder {
	return []Seeder{
		DemoUserSeeder{},
		DemoListingsSeeder{},
	}
}
