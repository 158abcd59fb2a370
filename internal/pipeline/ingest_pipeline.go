package pipeline

import (
	"context"
	"errors"
	"time"

	"autoapply/internal/domain/job"
	"autoapply/internal/metrics"
	"autoapply/internal/pkg/logging"
	"autoapply/internal/repository"
	"autoapply/internal/source"

	"github.com/google/uuid"
)

type listingUpserter interface {
	Upsert(ctx context.Context, l job.CanonicalListing) (uuid.UUID, repository.UpsertOutcome, error)
	TouchBySource(ctx context.Context, source, sourceID string, seenAt time.Time) (uuid.UUID, error)
}

type IngestStats struct {
	Fetched       int
	FailedSources int
	Canonical     int
	Inserted      int
	Merged        int
	// Refreshed counts re-sightings whose content changed the dedup key;
	// the row stored under the source id is updated in place.
	Refreshed int
	Errors    int
}

// IngestPipeline fetches every source, folds the batch into canonical
// listings and persists them.
type IngestPipeline struct {
	fetchers []source.Fetcher
	queries  []string
	workers  int
	listings listingUpserter
	metrics  metrics.Recorder
	logger   *logging.Logger
}

func NewIngestPipeline(fetchers []source.Fetcher, queries []string, workers int, listings listingUpserter, rec metrics.Recorder, logger *logging.Logger) *IngestPipeline {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &IngestPipeline{fetchers: fetchers, queries: queries, workers: workers, listings: listings, metrics: rec, logger: logger}
}

func (p *IngestPipeline) Run(ctx context.Context) (IngestStats, error) {
	var st IngestStats
	if len(p.fetchers) == 0 {
		p.logger.Info("no sources configured", "pipeline", "ingest")
		return st, nil
	}
	start := time.Now()
	p.logger.Info("ingest run", "pipeline", "ingest", "status", "started", "sources", len(p.fetchers), "queries", len(p.queries))

	rep := source.FetchAll(ctx, p.fetchers, p.queries, p.workers, p.metrics, p.logger)
	st.Fetched = len(rep.Listings)
	st.FailedSources = len(rep.Failed)

	canonical := job.Deduplicate(rep.Listings)
	st.Canonical = len(canonical)

	for _, l := range canonical {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		_, outcome, err := p.listings.Upsert(ctx, l)
		switch {
		case errors.Is(err, repository.ErrListingSourceConflict):
			if _, terr := p.listings.TouchBySource(ctx, l.Source, l.SourceID, l.LastSeenAt); terr != nil {
				st.Errors++
				p.logger.Warn("listing refresh failed", "pipeline", "ingest", "source", l.Source, "source_id", l.SourceID, "error", terr)
				continue
			}
			st.Refreshed++
			p.logger.Debug("listing refreshed by source id", "pipeline", "ingest", "source", l.Source, "source_id", l.SourceID, "dedup_key", l.DedupKey)
		case err != nil:
			st.Errors++
			p.logger.Warn("listing upsert failed", "pipeline", "ingest", "source", l.Source, "source_id", l.SourceID, "error", err)
		case outcome == repository.UpsertInserted:
			st.Inserted++
		default:
			st.Merged++
		}
	}

	p.logger.Info("ingest run", "pipeline", "ingest", "status", "finished", "duration", time.Since(start).String(),
		"fetched", st.Fetched, "failed_sources", st.FailedSources, "canonical", st.Canonical,
		"inserted", st.Inserted, "merged", st.Merged, "refreshed", st.Refreshed, "errors", st.Errors)
	return st, nil
}
