package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autoapply/internal/app"
	"autoapply/internal/config"
	"autoapply/internal/database"
	"autoapply/internal/database/migration"
	"autoapply/internal/database/seeder"
	"autoapply/internal/pipeline"
	"autoapply/internal/pkg/logging"
	"autoapply/migrations"
)

func main() {
	loop := flag.Bool("loop", false, "run repeatedly instead of once")
	interval := flag.Duration("interval", 15*time.Minute, "delay between runs with -loop")
	skipIngest := flag.Bool("skip-ingest", false, "dispatch only, do not fetch sources")
	seed := flag.Bool("seed", false, "insert the demo user and listings before the first run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(cfg.App.LogLevel).With("app", cfg.App.AppName, "env", cfg.App.Environment)
	defer func() { _ = logger.Sync() }()

	c, err := app.NewContainer(cfg, logger)
	if err != nil {
		log.Fatalf("failed to init container: %v", err)
	}
	defer func() {
		_ = c.Close()
	}()

	migCtx, migCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer migCancel()
	r := migration.Runner{FS: migrations.FS, Logger: logger}
	if err := r.Run(migCtx, c.DB.SQLDB()); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	if err := database.VerifySchema(migCtx, c.DB, database.RequiredSchema); err != nil {
		log.Fatalf("schema check failed: %v", err)
	}

	if *seed {
		sr := seeder.Runner{Seeders: seeder.Defaults(), Logger: logger.With("component", "seeder")}
		if err := sr.Run(migCtx, c.DB); err != nil {
			log.Fatalf("seeding failed: %v", err)
		}
		logger.Info("demo data seeded", "email", seeder.DemoEmail)
	}

	var ingest *pipeline.IngestPipeline
	if !*skipIngest {
		ingest, err = c.IngestPipeline()
		if err != nil {
			log.Fatalf("failed to load sources: %v", err)
		}
	}
	dispatch := c.DispatchPipeline()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOnce(ctx, logger, ingest, dispatch)
	if !*loop {
		return
	}

	t := time.NewTicker(*interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("dispatch loop stopped")
			return
		case <-t.C:
			runOnce(ctx, logger, ingest, dispatch)
		}
	}
}

func runOnce(ctx context.Context, logger *logging.Logger, ingest *pipeline.IngestPipeline, dispatch *pipeline.DispatchPipeline) {
	if ingest != nil {
		st, err := ingest.Run(ctx)
		if err != nil {
			logger.Error("ingest failed", "pipeline", "ingest", "err", err)
		} else {
			logger.Info("ingest summary", "pipeline", "ingest",
				"fetched", st.Fetched,
				"failed_sources", st.FailedSources,
				"inserted", st.Inserted,
				"merged", st.Merged,
				"refreshed", st.Refreshed,
			)
		}
	}

	rs, err := dispatch.Run(ctx)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		logger.Info("dispatch skipped, another run holds the lock", "pipeline", "dispatch")
	case err != nil:
		logger.Error("dispatch failed", "pipeline", "dispatch", "err", err)
	case rs.Stuck > 0:
		logger.Warn("applications stuck in SENDING", "pipeline", "dispatch", "stuck", rs.Stuck)
	}
}
