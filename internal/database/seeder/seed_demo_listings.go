package seeder

import (
	"context"

	"autoapply/internal/database"
	"autoapply/internal/domain/job"
)

type DemoListingsSeeder struct{}

func (DemoListingsSeeder) Name() string { return "demo_listings" }

func (DemoListingsSeeder) Run(ctx context.Context, db database.DB) error {
	items := []job.RawListing{
		{
			Source:      "demo",
			SourceID:    "demo-1",
			Title:       "Senior Go Engineer",
			Company:     "Northwind",
			Location:    "Remote (EU)",
			Description: "<p>Build payment services in <b>Go</b> on PostgreSQL and Kubernetes.</p>",
			Category:    "Software Development",
			URL:         "https://jobs.example.test/northwind/go",
		},
		{
			Source:      "demo",
			SourceID:    "demo-2",
			Title:       "Platform Engineer",
			Company:     "Contoso",
			Location:    "Berlin, Germany",
			Description: "Own our Kubernetes platform. Terraform, Golang tooling, on-call rotation.",
			Category:    "DevOps",
			URL:         "https://jobs.example.test/contoso/platform",
		},
		{
			Source:      "demo",
			SourceID:    "demo-3",
			Title:       "Office Manager",
			Company:     "Fabrikam",
			Location:    "Austin, United States",
			Description: "Keep our office running smoothly.",
			Category:    "Administration",
			URL:         "https://jobs.example.test/fabrikam/office",
		},
	}

	return database.WithTx(ctx, db, func(tx database.Tx) error {
		for _, r := range items {
			l := job.Canonicalize(r)
			_, err := tx.Exec(ctx,
				`INSERT INTO listings (source, source_id, title, company, location, description, category, skills, url, dedup_key)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				 ON CONFLICT DO NOTHING`,
				l.Source, l.SourceID, l.Title, l.Company, l.Location, l.Description, l.Category, l.Skills, l.URL, l.DedupKey,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
