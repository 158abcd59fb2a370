package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"autoapply/internal/domain/application"
	"autoapply/internal/domain/job"
	"autoapply/internal/domain/match"
	"autoapply/internal/domain/user"
	"autoapply/internal/infrastructure/cache"
	"autoapply/internal/infrastructure/generator"
	"autoapply/internal/infrastructure/resolver"
	"autoapply/internal/repository"
	"autoapply/internal/usecase"

	"github.com/google/uuid"
)

type fakeListings struct {
	mu       sync.Mutex
	fresh    []job.CanonicalListing
	consumed []uuid.UUID
	upserted []job.CanonicalListing
	touched  []string
}

func (f *fakeListings) ListFresh(context.Context, int) ([]job.CanonicalListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]job.CanonicalListing(nil), f.fresh...), nil
}

func (f *fakeListings) MarkNotFresh(_ context.Context, ids []uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed = append(f.consumed, ids...)
	return int64(len(ids)), nil
}

func (f *fakeListings) TouchBySource(_ context.Context, source, sourceID string, _ time.Time) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sourceID == "gone" {
		return uuid.Nil, repository.ErrListingNotFound
	}
	f.touched = append(f.touched, source+"/"+sourceID)
	return uuid.New(), nil
}

func (f *fakeListings) Upsert(_ context.Context, l job.CanonicalListing) (uuid.UUID, repository.UpsertOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l.SourceID == "conflict" || l.SourceID == "gone" {
		return uuid.Nil, "", repository.ErrListingSourceConflict
	}
	for _, prev := range f.upserted {
		if prev.DedupKey == l.DedupKey {
			return uuid.New(), repository.UpsertMerged, nil
		}
	}
	f.upserted = append(f.upserted, l)
	return uuid.New(), repository.UpsertInserted, nil
}

type fakeUsers struct {
	profiles map[uuid.UUID]user.Profile
	order    []uuid.UUID
	failFor  uuid.UUID
}

func newFakeUsers(ps ...user.Profile) *fakeUsers {
	f := &fakeUsers{profiles: map[uuid.UUID]user.Profile{}}
	for _, p := range ps {
		f.profiles[p.UserID] = p
		f.order = append(f.order, p.UserID)
	}
	return f
}

func (f *fakeUsers) ListDispatchable(context.Context) ([]uuid.UUID, error) {
	return append([]uuid.UUID(nil), f.order...), nil
}

func (f *fakeUsers) GetProfile(_ context.Context, id uuid.UUID) (user.Profile, error) {
	if id == f.failFor {
		return user.Profile{}, errors.New("db down")
	}
	p, ok := f.profiles[id]
	if !ok {
		return user.Profile{}, repository.ErrUserNotFound
	}
	return p, nil
}

func (f *fakeUsers) SaveSettings(context.Context, user.Profile) error { return nil }

func (f *fakeUsers) ApplyBouncePause(context.Context, uuid.UUID, time.Time, time.Time, time.Time, string) (bool, error) {
	return false, nil
}

func (f *fakeUsers) ClearPause(context.Context, uuid.UUID) error { return nil }

type noResumes struct{}

func (noResumes) ListByUser(context.Context, uuid.UUID) ([]user.Resume, error) { return nil, nil }

type fakeTracked struct {
	mu   sync.Mutex
	rows map[uuid.UUID]match.TrackedListing
}

func newFakeTracked() *fakeTracked {
	return &fakeTracked{rows: map[uuid.UUID]match.TrackedListing{}}
}

func (f *fakeTracked) Insert(_ context.Context, t match.TrackedListing) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.UserID == t.UserID && r.ListingID == t.ListingID {
			return uuid.Nil, false, nil
		}
	}
	t.ID = uuid.New()
	f.rows[t.ID] = t
	return t.ID, true, nil
}

func (f *fakeTracked) ListingIDsByUser(_ context.Context, userID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[uuid.UUID]struct{}{}
	for _, r := range f.rows {
		if r.UserID == userID {
			out[r.ListingID] = struct{}{}
		}
	}
	return out, nil
}

func (f *fakeTracked) count(userID uuid.UUID) int {
	ids, _ := f.ListingIDsByUser(context.Background(), userID)
	return len(ids)
}

func (f *fakeTracked) ListByUser(context.Context, uuid.UUID, bool, int, int) ([]match.TrackedListing, error) {
	return nil, nil
}

func (f *fakeTracked) GetByID(context.Context, uuid.UUID, uuid.UUID) (match.TrackedListing, error) {
	return match.TrackedListing{}, repository.ErrTrackedListingNotFound
}

func (f *fakeTracked) UpdateStage(context.Context, uuid.UUID, uuid.UUID, match.Stage) error {
	return nil
}

func (f *fakeTracked) SetDismissed(context.Context, uuid.UUID, uuid.UUID, bool) error { return nil }

type fakeApps struct {
	mu   sync.Mutex
	rows []application.Application
	due  []application.Application
}

func (f *fakeApps) Create(_ context.Context, a application.Application, _ string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.TrackedListingID == a.TrackedListingID {
			return uuid.Nil, repository.ErrOpenApplicationExists
		}
	}
	a.ID = uuid.New()
	f.rows = append(f.rows, a)
	return a.ID, nil
}

func (f *fakeApps) ListDueReady(context.Context, time.Time, int) ([]application.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]application.Application(nil), f.due...), nil
}

func (f *fakeApps) byUser(userID uuid.UUID) []application.Application {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]application.Application, 0)
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

type fakeSender struct {
	mu   sync.Mutex
	sent []uuid.UUID
}

func (f *fakeSender) Dispatch(_ context.Context, a application.Application) (usecase.SendOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, a.ID)
	return usecase.OutcomeSent, nil
}

func (f *fakeSender) SweepStuck(context.Context) ([]application.Application, error) { return nil, nil }

// budgetLimiter allows the first n checks per user, then denies.
type budgetLimiter struct {
	mu    sync.Mutex
	allow int
	calls map[uuid.UUID]int
}

func newBudgetLimiter(allow int) *budgetLimiter {
	return &budgetLimiter{allow: allow, calls: map[uuid.UUID]int{}}
}

func (l *budgetLimiter) CanSendNow(_ context.Context, userID uuid.UUID) (usecase.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[userID]++
	if l.calls[userID] > l.allow {
		return usecase.Decision{Reason: usecase.ReasonHourlyCap, WaitSeconds: 600}, nil
	}
	return usecase.Decision{Allowed: true}, nil
}

type stubGenerator struct{ err error }

func (g stubGenerator) Generate(_ context.Context, req generator.Request) (generator.Content, error) {
	if g.err != nil {
		return generator.Content{}, g.err
	}
	return generator.Content{Subject: "Application: " + req.ListingTitle, Body: "Hello " + req.Company}, nil
}

type stubResolver struct{ confidence application.Confidence }

func (r stubResolver) Resolve(context.Context, resolver.Request) (resolver.Recipient, error) {
	addr := "jobs@techcorp.example"
	if r.confidence == application.ConfidenceNone {
		addr = ""
	}
	return resolver.Recipient{Address: addr, Confidence: r.confidence}, nil
}

type noDuplicates struct{}

func (noDuplicates) IsDuplicate(context.Context, uuid.UUID, job.CanonicalListing) (bool, error) {
	return false, nil
}

type heldLock struct{}

func (heldLock) TryLock(context.Context, string, time.Duration) (*cache.Lock, bool, error) {
	return nil, false, nil
}

func (heldLock) SetJSON(context.Context, string, any, time.Duration) error { return nil }
