package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"autoapply/internal/config"
	"autoapply/internal/domain/application"
	"autoapply/internal/domain/job"
	"autoapply/internal/domain/user"
	"autoapply/internal/pkg/logging"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func reactListing() job.CanonicalListing {
	return job.CanonicalListing{
		ID:          uuid.New(),
		Source:      "remoteok",
		SourceID:    "r-1",
		Title:       "Senior React Developer",
		Company:     "TechCorp",
		Location:    "Remote",
		Description: "We use React, TypeScript, Next.js, Node.js across the stack.",
		URL:         "https://remoteok.example/1",
		FirstSeenAt: runNow.Add(-2 * time.Hour),
		IsFresh:     true,
		IsActive:    true,
	}
}

func officeListing() job.CanonicalListing {
	l := reactListing()
	l.ID = uuid.New()
	l.SourceID = "r-2"
	l.Title = "Office Assistant"
	l.Description = "Answer phones and greet visitors."
	return l
}

func dispatchProfile(mode user.AutomationMode) user.Profile {
	return user.Profile{
		UserID:             uuid.New(),
		Email:              "dev@example.com",
		Keywords:           []string{"react", "node.js"},
		City:               "Lahore",
		ExperienceLevel:    "senior",
		AutomationMode:     mode,
		AutoApplyThreshold: 50,
		AccountStatus:      user.AccountActive,
		Onboarded:          true,
	}
}

type harness struct {
	listings *fakeListings
	users    *fakeUsers
	tracked  *fakeTracked
	apps     *fakeApps
	sender   *fakeSender
	limiter  *budgetLimiter
	deps     DispatchDeps
	cfg      config.DispatchConfig
}

func newHarness(listings []job.CanonicalListing, profiles ...user.Profile) *harness {
	h := &harness{
		listings: &fakeListings{fresh: listings},
		users:    newFakeUsers(profiles...),
		tracked:  newFakeTracked(),
		apps:     &fakeApps{},
		sender:   &fakeSender{},
		limiter:  newBudgetLimiter(100),
		cfg: config.DispatchConfig{
			VisibilityThreshold: 30,
			DraftThreshold:      40,
			RunBudget:           time.Minute,
			Workers:             3,
			MediumReviewDelay:   time.Hour,
		},
	}
	h.deps = DispatchDeps{
		Resumes:   noResumes{},
		Guard:     noDuplicates{},
		Generator: stubGenerator{},
		Resolver:  stubResolver{confidence: application.ConfidenceHigh},
		Logger:    logging.Nop(),
	}
	return h
}

func (h *harness) pipeline() *DispatchPipeline {
	deps := h.deps
	deps.Listings = h.listings
	deps.Users = h.users
	deps.Tracked = h.tracked
	deps.Applications = h.apps
	deps.Sender = h.sender
	deps.Limiter = h.limiter
	p := NewDispatchPipeline(deps, h.cfg)
	p.now = func() time.Time { return runNow }
	return p
}

func TestDispatch_ModesEndToEnd(t *testing.T) {
	manual := dispatchProfile(user.ModeManual)
	semi := dispatchProfile(user.ModeSemiAuto)
	full := dispatchProfile(user.ModeFullAuto)
	react, office := reactListing(), officeListing()
	h := newHarness([]job.CanonicalListing{react, office}, manual, semi, full)

	stats, err := h.pipeline().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.UsersProcessed)
	assert.Equal(t, 6, stats.Scored)
	assert.Equal(t, 3, stats.Rejected, "office listing has no keyword match")
	assert.Equal(t, 3, stats.Tracked)
	assert.Equal(t, 1, stats.Drafts)
	assert.Equal(t, 1, stats.Ready)
	assert.Equal(t, 1, stats.Sent)
	assert.ElementsMatch(t, []uuid.UUID{react.ID, office.ID}, h.listings.consumed)

	assert.Empty(t, h.apps.byUser(manual.UserID))
	assert.Equal(t, 1, h.tracked.count(manual.UserID))

	drafts := h.apps.byUser(semi.UserID)
	require.Len(t, drafts, 1)
	assert.Equal(t, application.StatusDraft, drafts[0].Status)
	assert.Equal(t, "Application: Senior React Developer", drafts[0].Subject)

	ready := h.apps.byUser(full.UserID)
	require.Len(t, ready, 1)
	assert.Equal(t, application.StatusReady, ready[0].Status)
	assert.Equal(t, "jobs@techcorp.example", ready[0].ToAddress)
	assert.Equal(t, []uuid.UUID{ready[0].ID}, h.sender.sent)

	h.listings.fresh = []job.CanonicalListing{react}
	again, err := h.pipeline().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Tracked, "already tracked listings are not re-scored")
	assert.Equal(t, 0, again.Scored)
	assert.Equal(t, 3, h.tracked.count(manual.UserID)+h.tracked.count(semi.UserID)+h.tracked.count(full.UserID))
}

func TestDispatch_FullAutoRecipientConfidence(t *testing.T) {
	cases := []struct {
		name       string
		confidence application.Confidence
		genErr     error
		wantStatus application.Status
		wantSent   int
		wantAt     *time.Time
	}{
		{name: "medium waits for review window", confidence: application.ConfidenceMedium, wantStatus: application.StatusReady, wantAt: ptrTime(runNow.Add(time.Hour))},
		{name: "low becomes a draft", confidence: application.ConfidenceLow, wantStatus: application.StatusDraft},
		{name: "none becomes a draft", confidence: application.ConfidenceNone, wantStatus: application.StatusDraft},
		{name: "generator failure becomes a draft", confidence: application.ConfidenceHigh, genErr: errors.New("model timeout"), wantStatus: application.StatusDraft},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			full := dispatchProfile(user.ModeFullAuto)
			h := newHarness([]job.CanonicalListing{reactListing()}, full)
			h.deps.Resolver = stubResolver{confidence: tc.confidence}
			h.deps.Generator = stubGenerator{err: tc.genErr}

			stats, err := h.pipeline().Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.wantSent, stats.Sent)

			apps := h.apps.byUser(full.UserID)
			require.Len(t, apps, 1)
			assert.Equal(t, tc.wantStatus, apps[0].Status)
			if tc.wantAt != nil {
				require.NotNil(t, apps[0].ScheduledAt)
				assert.True(t, tc.wantAt.Equal(*apps[0].ScheduledAt))
			}
			if tc.genErr != nil {
				assert.Contains(t, apps[0].ErrorMessage, "model timeout")
			}
			assert.Empty(t, h.sender.sent)
		})
	}
}

func TestDispatch_LimiterDefersImmediateSend(t *testing.T) {
	full := dispatchProfile(user.ModeFullAuto)
	h := newHarness([]job.CanonicalListing{reactListing()}, full)
	h.limiter = newBudgetLimiter(0)

	stats, err := h.pipeline().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deferred)
	assert.Equal(t, 0, stats.Sent)

	apps := h.apps.byUser(full.UserID)
	require.Len(t, apps, 1)
	assert.Equal(t, application.StatusReady, apps[0].Status)
	require.NotNil(t, apps[0].ScheduledAt)
	assert.True(t, runNow.Add(600*time.Second).Equal(*apps[0].ScheduledAt))
}

func TestDispatch_SendPhaseRespectsLimiterPerUser(t *testing.T) {
	u1, u2 := uuid.New(), uuid.New()
	h := newHarness(nil)
	h.limiter = newBudgetLimiter(1)
	h.apps.due = []application.Application{
		{ID: uuid.New(), UserID: u1, Status: application.StatusReady},
		{ID: uuid.New(), UserID: u1, Status: application.StatusReady},
		{ID: uuid.New(), UserID: u1, Status: application.StatusReady},
		{ID: uuid.New(), UserID: u2, Status: application.StatusReady},
	}

	stats, err := h.pipeline().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Sent)
	assert.Equal(t, 2, stats.Deferred)
	assert.Len(t, h.sender.sent, 2)
}

func TestDispatch_BudgetStopsAdmittingWork(t *testing.T) {
	semi := dispatchProfile(user.ModeSemiAuto)
	h := newHarness([]job.CanonicalListing{reactListing(), reactListing()}, semi)
	h.cfg.Workers = 1
	p := h.pipeline()

	var mu sync.Mutex
	calls := 0
	p.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		calls++
		// start, user admission and the first listing fit the budget
		if calls <= 3 {
			return runNow
		}
		return runNow.Add(2 * time.Minute)
	}

	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.BudgetHit)
	assert.Equal(t, 1, stats.Scored)
	assert.Len(t, h.listings.consumed, 1, "only the listing the user reached is consumed")
}

func TestDispatch_UserErrorIsCounted(t *testing.T) {
	ok := dispatchProfile(user.ModeSemiAuto)
	broken := dispatchProfile(user.ModeSemiAuto)
	h := newHarness([]job.CanonicalListing{reactListing()}, ok, broken)
	h.users.failFor = broken.UserID

	stats, err := h.pipeline().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.UserErrors)
	assert.Equal(t, 1, stats.UsersProcessed)
	assert.Equal(t, 1, stats.Drafts)
	assert.Len(t, h.listings.consumed, 1)
}

func TestDispatch_LockHeld(t *testing.T) {
	h := newHarness([]job.CanonicalListing{reactListing()}, dispatchProfile(user.ModeSemiAuto))
	h.deps.Coordinator = heldLock{}

	_, err := h.pipeline().Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Empty(t, h.listings.consumed)
}

func ptrTime(t time.Time) *time.Time { return &t }
