package source

import (
	"context"
	"net/http"
	"strings"
	"time"

	"autoapply/internal/config"
	"autoapply/internal/domain/job"

	"github.com/mmcdole/gofeed"
)

// RSSFetcher reads a job board feed. Boards that publish "Company: Title"
// item titles are split when the target has no fixed company.
type RSSFetcher struct {
	target config.SourceTarget
	parser *gofeed.Parser
}

func NewRSSFetcher(t config.SourceTarget, timeout time.Duration) *RSSFetcher {
	p := gofeed.NewParser()
	p.UserAgent = userAgent
	p.Client = &http.Client{Timeout: timeout}
	return &RSSFetcher{target: t, parser: p}
}

func (f *RSSFetcher) Name() string { return f.target.Name }

func (f *RSSFetcher) usesQuery() bool { return strings.Contains(f.target.URL, QueryPlaceholder) }

func (f *RSSFetcher) Fetch(ctx context.Context, query string) ([]job.RawListing, error) {
	feed, err := f.parser.ParseURLWithContext(expandURL(f.target.URL, query), ctx)
	if err != nil {
		return nil, sourceErr(f.target.Name, err)
	}

	limit := f.target.MaxItems
	out := make([]job.RawListing, 0, len(feed.Items))
	for _, it := range feed.Items {
		if limit > 0 && len(out) >= limit {
			break
		}
		if it == nil || strings.TrimSpace(it.Title) == "" {
			continue
		}
		out = append(out, f.toRaw(it))
	}
	return out, nil
}

func (f *RSSFetcher) toRaw(it *gofeed.Item) job.RawListing {
	title := strings.TrimSpace(it.Title)
	company := strings.TrimSpace(f.target.Company)
	if company == "" {
		if c, t, ok := strings.Cut(title, ": "); ok && strings.TrimSpace(t) != "" {
			company, title = strings.TrimSpace(c), strings.TrimSpace(t)
		} else if it.Author != nil {
			company = strings.TrimSpace(it.Author.Name)
		}
	}

	r := job.RawListing{
		Source:      f.target.Name,
		SourceID:    pickNonEmpty(it.GUID, it.Link),
		Title:       title,
		Company:     company,
		Location:    extension(it, "region", "location"),
		Description: pickNonEmpty(it.Content, it.Description),
		URL:         strings.TrimSpace(it.Link),
	}
	if len(it.Categories) > 0 {
		r.Category = strings.TrimSpace(it.Categories[0])
		r.Skills = job.NewSkillList(it.Categories[1:]...)
	}
	if it.PublishedParsed != nil {
		t := it.PublishedParsed.UTC()
		r.PostedAt = &t
	}
	return r
}

// extension reads the first non-empty unprefixed element among names, which
// several boards use for the job location.
func extension(it *gofeed.Item, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(it.Custom[n]); v != "" {
			return v
		}
		for _, ns := range it.Extensions {
			for _, ext := range ns[n] {
				if v := strings.TrimSpace(ext.Value); v != "" {
					return v
				}
			}
		}
	}
	return ""
}
