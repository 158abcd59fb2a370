package seeder

import (
	"context"
	"fmt"
	"time"

	"autoapply/internal/database"
	"autoapply/internal/pkg/logging"
)

// Seeder inserts development data. Run must be safe to repeat.
type Seeder interface {
	Name() string
	Run(ctx context.Context, db database.DB) error
}

// Runner checks the migrated schema once, then runs each seeder in order and
// stops at the first failure.
type Runner struct {
	Seeders []Seeder
	Logger  *logging.Logger

	// Verify defaults to checking database.RequiredSchema.
	Verify func(ctx context.Context, q database.Querier) error
}

func (r Runner) Run(ctx context.Context, db database.DB) error {
	if db == nil {
		return fmt.Errorf("nil db")
	}
	logger := r.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	verify := r.Verify
	if verify == nil {
		verify = func(ctx context.Context, q database.Querier) error {
			return database.VerifySchema(ctx, q, database.RequiredSchema)
		}
	}
	if err := verify(ctx, db); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	for _, s := range r.Seeders {
		if s == nil {
			continue
		}
		start := time.Now()
		if err := s.Run(ctx, db); err != nil {
			return fmt.Errorf("seed %s: %w", s.Name(), err)
		}
		logger.Info("seeder finished", "seeder", s.Name(), "duration", time.Since(start))
	}
	return nil
}
