package usecase

import (
	"context"
	"strings"
	"time"
	"unicode"

	"autoapply/internal/domain/application"
	"autoapply/internal/domain/job"

	"github.com/google/uuid"
)

const DefaultDuplicateWindow = 7 * 24 * time.Hour

type recentApplications interface {
	ListRecent(ctx context.Context, userID uuid.UUID, since time.Time) ([]application.Application, error)
}

// DuplicateGuard stops a user from applying twice to what is effectively the
// same role at the same company, even when the two listings came from
// different sources.
type DuplicateGuard struct {
	apps   recentApplications
	window time.Duration
	now    func() time.Time
}

func NewDuplicateGuard(apps recentApplications, window time.Duration) *DuplicateGuard {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	return &DuplicateGuard{apps: apps, window: window, now: time.Now}
}

func (g *DuplicateGuard) IsDuplicate(ctx context.Context, userID uuid.UUID, l job.CanonicalListing) (bool, error) {
	company := alnum(l.Company)
	title := alnum(l.Title)
	if company == "" || title == "" {
		return false, nil
	}

	since := g.now().Add(-g.window)
	recent, err := g.apps.ListRecent(ctx, userID, since)
	if err != nil {
		return false, err
	}

	for _, a := range recent {
		if !countsForDuplicates(a, since) {
			continue
		}
		if alnum(a.ListingCompany) != company {
			continue
		}
		other := alnum(a.ListingTitle)
		if other == "" {
			continue
		}
		if strings.Contains(other, title) || strings.Contains(title, other) {
			return true, nil
		}
	}
	return false, nil
}

// countsForDuplicates: open applications created inside the window, and sent
// or failed ones touched inside it. Cancelled applications never block.
func countsForDuplicates(a application.Application, since time.Time) bool {
	switch a.Status {
	case application.StatusDraft, application.StatusReady, application.StatusSending:
		return !a.CreatedAt.Before(since)
	case application.StatusSent, application.StatusFailed:
		return !a.UpdatedAt.Before(since)
	}
	return false
}

func alnum(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
