package source

import (
	"context"
	"strings"
	"time"

	"autoapply/internal/config"
	"autoapply/internal/domain/job"

	"github.com/chromedp/chromedp"
)

// HeadlessFetcher renders pages that build their job list client-side. It
// collects anchors only; titles come from the anchor text.
type HeadlessFetcher struct {
	target  config.SourceTarget
	timeout time.Duration
}

type anchor struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

func NewHeadlessFetcher(t config.SourceTarget, timeout time.Duration) *HeadlessFetcher {
	if strings.TrimSpace(t.LinkSelector) == "" {
		t.LinkSelector = "a[href]"
	}
	return &HeadlessFetcher{target: t, timeout: timeout}
}

func (f *HeadlessFetcher) Name() string { return f.target.Name }

func (f *HeadlessFetcher) usesQuery() bool { return strings.Contains(f.target.URL, QueryPlaceholder) }

func (f *HeadlessFetcher) Fetch(ctx context.Context, query string) ([]job.RawListing, error) {
	pageURL := expandURL(f.target.URL, query)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(userAgent),
		)...,
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	reqCtx, reqCancel := context.WithTimeout(browserCtx, f.timeout)
	defer reqCancel()

	var anchors []anchor
	err := chromedp.Run(reqCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500*time.Millisecond),
		chromedp.Evaluate(anchorScript(f.target.LinkSelector), &anchors),
	)
	if err != nil {
		return nil, sourceErr(f.target.Name, err)
	}
	return f.toListings(pageURL, anchors), nil
}

func anchorScript(selector string) string {
	sel := strings.ReplaceAll(selector, `'`, `\'`)
	return `Array.from(document.querySelectorAll('` + sel + `'))
		.map(a => ({href: a.getAttribute('href') || '', text: (a.innerText || '').trim()}))`
}

func (f *HeadlessFetcher) toListings(pageURL string, anchors []anchor) []job.RawListing {
	seen := map[string]struct{}{}
	out := make([]job.RawListing, 0, len(anchors))
	for _, a := range anchors {
		if f.target.MaxItems > 0 && len(out) >= f.target.MaxItems {
			break
		}
		link := absoluteURL(pageURL, a.Href)
		if link == "" || !strings.HasPrefix(link, "http") {
			continue
		}
		if lc := strings.TrimSpace(f.target.LinkContains); lc != "" && !strings.Contains(link, lc) {
			continue
		}
		title := strings.Join(strings.Fields(a.Text), " ")
		if title == "" {
			continue
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, job.RawListing{
			Source:   f.target.Name,
			SourceID: stableIDFromURL(link),
			Title:    title,
			Company:  pickNonEmpty(f.target.Company, f.target.Name),
			URL:      link,
		})
	}
	return out
}
