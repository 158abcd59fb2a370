package seeder

import (
	"context"
	"fmt"

	"autoapply/internal/database"

	"github.com/google/uuid"
)

const DemoEmail = "demo@autoapply.local"

type DemoUserSeeder struct{}

func (DemoUserSeeder) Name() string { return "demo_user" }

func (DemoUserSeeder) Run(ctx context.Context, db database.DB) error {
	return database.WithTx(ctx, db, func(tx database.Tx) error {
		var id uuid.UUID
		err := tx.QueryRow(ctx,
			`INSERT INTO users (email, account_status, onboarded) VALUES ($1, 'ACTIVE', true)
			 ON CONFLICT (email) DO UPDATE SET onboarded = true
			 RETURNING id`,
			DemoEmail,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("user: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO user_settings (user_id, keywords, work_types, country, timezone, experience_level, automation_mode)
			 VALUES ($1, $2, $3, $4, $5, $6, 'SEMI_AUTO')
			 ON CONFLICT (user_id) DO NOTHING`,
			id,
			[]string{"golang", "postgresql", "kubernetes"},
			[]string{"remote"},
			"Germany",
			"Europe/Berlin",
			"senior",
		)
		if err != nil {
			return fmt.Errorf("settings: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO resumes (user_id, name, content, skills, is_default)
			 SELECT $1, $2, $3, $4, true
			 WHERE NOT EXISTS (SELECT 1 FROM resumes WHERE user_id = $1)`,
			id,
			"Backend CV",
			"Senior backend engineer. Eight years of Go, PostgreSQL and Kubernetes in production.",
			[]string{"go", "postgresql", "kubernetes", "docker"},
		)
		if err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		return nil
	})
}
