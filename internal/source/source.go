package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"autoapply/internal/config"
	"autoapply/internal/domain/job"
	"autoapply/internal/metrics"
	"autoapply/internal/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// QueryPlaceholder in a target URL is replaced by the escaped search query.
// Targets without it are fetched once per run regardless of queries.
const QueryPlaceholder = "{query}"

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, query string) ([]job.RawListing, error)
}

// Build turns configured targets into fetchers. Unknown kinds are rejected by
// config parsing, so every target maps to one fetcher.
func Build(targets []config.SourceTarget, logger *logging.Logger) []Fetcher {
	out := make([]Fetcher, 0, len(targets))
	for _, t := range targets {
		switch t.Kind {
		case config.SourceKindRSS:
			out = append(out, NewRSSFetcher(t, 20*time.Second))
		case config.SourceKindCareers:
			out = append(out, NewCareersFetcher(t, 500*time.Millisecond))
		case config.SourceKindHeadless:
			out = append(out, NewHeadlessFetcher(t, 25*time.Second))
		default:
			logger.Warn("unknown source kind, skipping", "source", t.Name, "kind", t.Kind)
		}
	}
	return out
}

type FetchReport struct {
	Listings []job.RawListing
	Failed   map[string]error
}

// FetchAll runs every fetcher for every query with at most workers in flight.
// A failing source is logged and reported; it never fails the batch.
func FetchAll(ctx context.Context, fetchers []Fetcher, queries []string, workers int, rec metrics.Recorder, logger *logging.Logger) FetchReport {
	if workers <= 0 {
		workers = 4
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	if len(queries) == 0 {
		queries = []string{""}
	}

	var (
		mu  sync.Mutex
		out = FetchReport{Failed: map[string]error{}}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, f := range fetchers {
		qs := queries
		if !usesQuery(f) {
			qs = queries[:1]
		}
		for _, q := range qs {
			g.Go(func() error {
				started := time.Now()
				items, err := f.Fetch(gctx, q)
				rec.SourceFetched(f.Name(), len(items), err)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					out.Failed[f.Name()] = err
					logger.Warn("source fetch failed", "pipeline", "ingest", "source", f.Name(), "query", q, "error", err)
					return nil
				}
				out.Listings = append(out.Listings, items...)
				logger.Info("source fetched", "pipeline", "ingest", "source", f.Name(), "query", q,
					"listings", len(items), "duration_ms", time.Since(started).Milliseconds())
				return nil
			})
		}
	}
	_ = g.Wait()
	return out
}

type queryAware interface {
	usesQuery() bool
}

func usesQuery(f Fetcher) bool {
	q, ok := f.(queryAware)
	return ok && q.usesQuery()
}

func expandURL(raw, query string) string {
	if !strings.Contains(raw, QueryPlaceholder) {
		return raw
	}
	return strings.ReplaceAll(raw, QueryPlaceholder, url.QueryEscape(strings.TrimSpace(query)))
}

func absoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u := b.ResolveReference(ref)
	u.Fragment = ""
	return u.String()
}

func pickNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func sourceErr(name string, err error) error {
	return fmt.Errorf("source %s: %w", name, err)
}
