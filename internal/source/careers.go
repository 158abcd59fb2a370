package source

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"

	"autoapply/internal/config"
	"autoapply/internal/domain/job"

	"github.com/gocolly/colly/v2"
)

// CareersFetcher scrapes a company careers page: one list page yields links,
// each link's detail page yields title, location and body.
type CareersFetcher struct {
	target config.SourceTarget
	delay  time.Duration
}

type careersItem struct {
	Link     string
	Title    string
	Location string
}

type careersDetail struct {
	Title       string
	Location    string
	Description string
}

func NewCareersFetcher(t config.SourceTarget, delay time.Duration) *CareersFetcher {
	if strings.TrimSpace(t.LinkSelector) == "" {
		t.LinkSelector = "a[href]"
	}
	if strings.TrimSpace(t.TitleSelector) == "" {
		t.TitleSelector = "h1"
	}
	if strings.TrimSpace(t.BodySelector) == "" {
		t.BodySelector = "body"
	}
	return &CareersFetcher{target: t, delay: delay}
}

func (f *CareersFetcher) Name() string { return f.target.Name }

func (f *CareersFetcher) usesQuery() bool { return strings.Contains(f.target.URL, QueryPlaceholder) }

func (f *CareersFetcher) Fetch(ctx context.Context, query string) ([]job.RawListing, error) {
	listURL := expandURL(f.target.URL, query)
	items, err := f.scrapeList(ctx, listURL)
	if err != nil {
		return nil, sourceErr(f.target.Name, err)
	}

	out := make([]job.RawListing, 0, len(items))
	var lastErr error
	for _, it := range items {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		d, err := f.scrapeDetail(ctx, it.Link)
		if err != nil {
			lastErr = err
			continue
		}
		title := pickNonEmpty(d.Title, it.Title)
		if title == "" {
			continue
		}
		out = append(out, job.RawListing{
			Source:      f.target.Name,
			SourceID:    stableIDFromURL(it.Link),
			Title:       title,
			Company:     pickNonEmpty(f.target.Company, f.target.Name),
			Location:    pickNonEmpty(d.Location, it.Location),
			Description: d.Description,
			URL:         it.Link,
		})
	}
	if len(out) == 0 && lastErr != nil {
		return nil, sourceErr(f.target.Name, lastErr)
	}
	return out, nil
}

func (f *CareersFetcher) collector(rawURL string) *colly.Collector {
	var c *colly.Collector
	if host := hostFromURL(rawURL); host != "" {
		c = colly.NewCollector(colly.AllowedDomains(host), colly.UserAgent(userAgent))
	} else {
		c = colly.NewCollector(colly.UserAgent(userAgent))
	}
	_ = c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 1, Delay: f.delay, RandomDelay: f.delay})
	return c
}

func (f *CareersFetcher) scrapeList(ctx context.Context, listURL string) ([]careersItem, error) {
	c := f.collector(listURL)
	items := make([]careersItem, 0)
	seen := map[string]struct{}{}

	c.OnHTML(f.target.LinkSelector, func(e *colly.HTMLElement) {
		if f.target.MaxItems > 0 && len(items) >= f.target.MaxItems {
			return
		}
		abs := absoluteURL(e.Request.URL.String(), e.Attr("href"))
		if abs == "" {
			return
		}
		if lc := strings.TrimSpace(f.target.LinkContains); lc != "" && !strings.Contains(abs, lc) {
			return
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}

		it := careersItem{Link: abs, Title: strings.TrimSpace(e.Text)}
		if sel := strings.TrimSpace(f.target.LocationSelector); sel != "" {
			it.Location = strings.TrimSpace(e.DOM.Find(sel).Text())
		}
		items = append(items, it)
	})

	var reqErr error
	c.OnError(func(_ *colly.Response, err error) {
		reqErr = err
	})

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := c.Visit(listURL); err != nil {
		return nil, err
	}
	c.Wait()
	if reqErr != nil {
		return nil, reqErr
	}
	return items, nil
}

func (f *CareersFetcher) scrapeDetail(ctx context.Context, jobURL string) (careersDetail, error) {
	c := f.collector(jobURL)
	var out careersDetail

	c.OnHTML(f.target.TitleSelector, func(e *colly.HTMLElement) {
		if out.Title == "" {
			out.Title = strings.Join(strings.Fields(e.Text), " ")
		}
	})
	if sel := strings.TrimSpace(f.target.LocationSelector); sel != "" {
		c.OnHTML(sel, func(e *colly.HTMLElement) {
			if out.Location == "" {
				out.Location = strings.TrimSpace(e.Text)
			}
		})
	}
	c.OnHTML(f.target.BodySelector, func(e *colly.HTMLElement) {
		if html, err := e.DOM.Html(); err == nil && strings.TrimSpace(html) != "" {
			out.Description = html
			return
		}
		out.Description = strings.TrimSpace(e.Text)
	})

	var reqErr error
	c.OnError(func(_ *colly.Response, err error) {
		reqErr = err
	})

	if ctx.Err() != nil {
		return careersDetail{}, ctx.Err()
	}
	if err := c.Visit(jobURL); err != nil {
		return careersDetail{}, err
	}
	c.Wait()
	if reqErr != nil {
		return careersDetail{}, reqErr
	}
	if out.Title == "" && out.Description == "" {
		return careersDetail{}, errors.New("empty detail page: " + jobURL)
	}
	return out, nil
}

func hostFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(u.Host); err == nil {
		return h
	}
	return u.Host
}

func stableIDFromURL(u string) string {
	h := sha1.Sum([]byte(strings.TrimSpace(u)))
	return hex.EncodeToString(h[:])
}
