package pipeline

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"autoapply/internal/config"
	"autoapply/internal/domain"
	"autoapply/internal/domain/application"
	"autoapply/internal/domain/job"
	"autoapply/internal/domain/match"
	"autoapply/internal/domain/matching"
	"autoapply/internal/domain/user"
	"autoapply/internal/infrastructure/cache"
	"autoapply/internal/infrastructure/generator"
	"autoapply/internal/infrastructure/resolver"
	"autoapply/internal/metrics"
	"autoapply/internal/pkg/logging"
	"autoapply/internal/repository"
	"autoapply/internal/usecase"

	"github.com/google/uuid"
)

const (
	RunLockKey = "dispatch:run:lock"

	defaultListingLimit = 1000
	defaultSendLimit    = 500
)

var ErrRunInProgress = errors.New("another dispatch run holds the lock")

type listingSource interface {
	ListFresh(ctx context.Context, limit int) ([]job.CanonicalListing, error)
	MarkNotFresh(ctx context.Context, ids []uuid.UUID) (int64, error)
}

type applicationStore interface {
	Create(ctx context.Context, a application.Application, message string) (uuid.UUID, error)
	ListDueReady(ctx context.Context, now time.Time, limit int) ([]application.Application, error)
}

type sender interface {
	Dispatch(ctx context.Context, a application.Application) (usecase.SendOutcome, error)
	SweepStuck(ctx context.Context) ([]application.Application, error)
}

type duplicateChecker interface {
	IsDuplicate(ctx context.Context, userID uuid.UUID, l job.CanonicalListing) (bool, error)
}

type coordinator interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (*cache.Lock, bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

type DispatchDeps struct {
	Listings     listingSource
	Users        repository.UserRepository
	Resumes      repository.ResumeRepository
	Tracked      repository.TrackedListingRepository
	Applications applicationStore
	Sender       sender
	Limiter      usecase.Limiter
	Guard        duplicateChecker
	Generator    generator.Client
	Resolver     resolver.Client
	Coordinator  coordinator
	Metrics      metrics.Recorder
	Logger       *logging.Logger
}

// DispatchPipeline is one orchestrator pass: score fresh listings for every
// dispatchable user, create tracked listings and applications per automation
// mode, then send what is due.
type DispatchPipeline struct {
	DispatchDeps
	cfg config.DispatchConfig
	now func() time.Time
}

func NewDispatchPipeline(deps DispatchDeps, cfg config.DispatchConfig) *DispatchPipeline {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RunBudget <= 0 {
		cfg.RunBudget = 10 * time.Minute
	}
	return &DispatchPipeline{DispatchDeps: deps, cfg: cfg, now: time.Now}
}

func (p *DispatchPipeline) Run(ctx context.Context) (domain.RunStats, error) {
	start := p.now()
	stats := domain.RunStats{StartedAt: start.UTC()}
	deadline := start.Add(p.cfg.RunBudget)

	if p.Coordinator != nil {
		lock, ok, err := p.Coordinator.TryLock(ctx, RunLockKey, p.cfg.RunBudget+5*time.Minute)
		if err != nil {
			p.Logger.Warn("run lock unavailable, continuing", "pipeline", "dispatch", "error", err)
		}
		if !ok {
			return stats, ErrRunInProgress
		}
		defer lock.Release(context.WithoutCancel(ctx))
	}

	p.Logger.Info("dispatch run", "pipeline", "dispatch", "status", "started", "budget", p.cfg.RunBudget.String())

	listings, err := p.Listings.ListFresh(ctx, defaultListingLimit)
	if err != nil {
		return stats, err
	}
	userIDs, err := p.Users.ListDispatchable(ctx)
	if err != nil {
		return stats, err
	}
	stats.ListingsConsidered = len(listings)

	reached := p.runUsers(ctx, userIDs, listings, deadline, &stats)
	p.Logger.Info("dispatch run", "pipeline", "dispatch", "step", "match", "status", "finished",
		"users", stats.UsersProcessed, "tracked", stats.Tracked, "drafts", stats.Drafts, "ready", stats.Ready)

	p.runSends(ctx, deadline, &stats)

	consumed := make([]uuid.UUID, 0, len(listings))
	for _, l := range listings {
		if reached[l.ID] >= len(userIDs) {
			consumed = append(consumed, l.ID)
		}
	}
	if len(consumed) > 0 {
		n, err := p.Listings.MarkNotFresh(ctx, consumed)
		if err != nil {
			p.Logger.Error("mark listings consumed failed", "pipeline", "dispatch", "error", err)
		}
		stats.ListingsConsumed = int(n)
	}

	if p.Sender != nil {
		stuck, err := p.Sender.SweepStuck(ctx)
		if err != nil {
			p.Logger.Warn("stuck sweep failed", "pipeline", "dispatch", "error", err)
		}
		stats.Stuck = len(stuck)
	}

	stats.FinishedAt = p.now().UTC()
	if p.Coordinator != nil {
		if err := p.Coordinator.SetJSON(ctx, usecase.LastRunKey, stats, 7*24*time.Hour); err != nil {
			p.Logger.Warn("last run not recorded", "pipeline", "dispatch", "error", err)
		}
	}

	p.Logger.Info("dispatch run", "pipeline", "dispatch", "status", "finished",
		"duration", stats.FinishedAt.Sub(stats.StartedAt).String(),
		"budget_hit", stats.BudgetHit,
		"sent", stats.Sent, "requeued", stats.Requeued, "failed", stats.Failed, "deferred", stats.Deferred,
		"consumed", stats.ListingsConsumed, "stuck", stats.Stuck,
		"user_errors", stats.UserErrors, "listing_errors", stats.ListingErrors, "send_errors", stats.SendErrors)
	return stats, nil
}

// runUsers fans out per user. It returns, per listing, how many users got
// to it; a listing is consumed only when every user did.
func (p *DispatchPipeline) runUsers(ctx context.Context, userIDs []uuid.UUID, listings []job.CanonicalListing, deadline time.Time, stats *domain.RunStats) map[uuid.UUID]int {
	var (
		mu      sync.Mutex
		reached = make(map[uuid.UUID]int, len(listings))
	)
	markReached := func(ids []uuid.UUID) {
		mu.Lock()
		for _, id := range ids {
			reached[id]++
		}
		mu.Unlock()
	}

	pool := NewWorkerPool(p.cfg.Workers, p.cfg.Workers*2)
	results := pool.Run(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			stats.Add(r.Stats)
			if r.Stats.BudgetHit {
				stats.BudgetHit = true
			}
		}
	}()

	for _, uid := range userIDs {
		pool.Submit(func(ctx context.Context) Result {
			if !p.now().Before(deadline) {
				return Result{Stats: domain.RunStats{BudgetHit: true}}
			}
			rs, seen, err := p.processUser(ctx, uid, listings, deadline)
			if err != nil {
				p.Logger.Error("user processing failed", "pipeline", "dispatch", "user_id", uid, "error", err)
				rs.UserErrors++
				// a broken user must not pin listings as fresh forever
				seen = listingIDs(listings)
			}
			markReached(seen)
			return Result{Stats: rs, Err: err}
		})
	}
	pool.Close()
	<-done
	return reached
}

func (p *DispatchPipeline) processUser(ctx context.Context, userID uuid.UUID, listings []job.CanonicalListing, deadline time.Time) (domain.RunStats, []uuid.UUID, error) {
	var rs domain.RunStats

	profile, err := p.Users.GetProfile(ctx, userID)
	if err != nil {
		return rs, nil, err
	}
	if !profile.Onboarded || !profile.IsActive() {
		rs.UsersSkipped++
		return rs, listingIDs(listings), nil
	}
	resumes, err := p.Resumes.ListByUser(ctx, userID)
	if err != nil {
		return rs, nil, err
	}
	tracked, err := p.Tracked.ListingIDsByUser(ctx, userID)
	if err != nil {
		return rs, nil, err
	}

	rs.UsersProcessed++
	seen := make([]uuid.UUID, 0, len(listings))
	for _, l := range listings {
		if ctx.Err() != nil || !p.now().Before(deadline) {
			rs.BudgetHit = true
			break
		}
		seen = append(seen, l.ID)
		if _, ok := tracked[l.ID]; ok {
			continue
		}
		if err := p.processListing(ctx, profile, resumes, l, &rs); err != nil {
			rs.ListingErrors++
			p.Logger.Warn("listing processing failed", "pipeline", "dispatch", "user_id", userID, "listing_id", l.ID, "error", err)
		}
	}
	return rs, seen, nil
}

func (p *DispatchPipeline) processListing(ctx context.Context, profile user.Profile, resumes []user.Resume, l job.CanonicalListing, rs *domain.RunStats) error {
	res := matching.Score(matching.Input{Listing: l, Profile: profile, Resumes: resumes, Now: p.now()})
	rs.Scored++
	reason := ""
	if len(res.Reasons) > 0 {
		reason = res.Reasons[0]
	}
	p.Metrics.ListingScored(res.Rejected, reason)
	if res.Rejected {
		rs.Rejected++
		return nil
	}
	if res.Score < p.cfg.VisibilityThreshold {
		rs.BelowThreshold++
		return nil
	}

	trackedID, created, err := p.Tracked.Insert(ctx, match.TrackedListing{
		UserID:    profile.UserID,
		ListingID: l.ID,
		Score:     res.Score,
		Reasons:   res.Reasons,
		Stage:     match.StageSaved,
	})
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	rs.Tracked++
	p.Metrics.TrackedCreated()

	c := candidate{profile: profile, listing: l, result: res, resumes: resumes, trackedID: trackedID}
	switch profile.AutomationMode {
	case user.ModeSemiAuto:
		if res.Score >= p.cfg.DraftThreshold {
			return p.draft(ctx, c, rs)
		}
	case user.ModeFullAuto:
		auto := profile.AutoApplyThreshold
		if auto <= 0 {
			auto = user.DefaultAutoApplyThreshold
		}
		switch {
		case res.Score >= auto:
			return p.autoApply(ctx, c, rs)
		case res.Score >= p.cfg.DraftThreshold:
			return p.draft(ctx, c, rs)
		}
	}
	return nil
}

type candidate struct {
	profile   user.Profile
	listing   job.CanonicalListing
	result    matching.Result
	resumes   []user.Resume
	trackedID uuid.UUID
}

func (p *DispatchPipeline) draft(ctx context.Context, c candidate, rs *domain.RunStats) error {
	if dup, err := p.isDuplicate(ctx, c); err != nil || dup {
		if dup {
			rs.Duplicates++
		}
		return err
	}
	a := p.newApplication(c)
	content, genErr := p.generate(ctx, c)
	a.applyContent(content, genErr)
	if rcpt, err := p.resolve(ctx, c); err == nil {
		a.ToAddress, a.RecipientConfidence = rcpt.Address, rcpt.Confidence
	}
	a.Status = application.StatusDraft
	return p.create(ctx, a.Application, "drafted at score "+strconv.Itoa(c.result.Score), rs)
}

// autoApply handles FULL_AUTO at or above the user's auto-send threshold.
// Only a HIGH confidence recipient is sent without review.
func (p *DispatchPipeline) autoApply(ctx context.Context, c candidate, rs *domain.RunStats) error {
	if dup, err := p.isDuplicate(ctx, c); err != nil || dup {
		if dup {
			rs.Duplicates++
		}
		return err
	}

	a := p.newApplication(c)
	content, genErr := p.generate(ctx, c)
	a.applyContent(content, genErr)

	rcpt, resErr := p.resolve(ctx, c)
	if resErr != nil {
		p.Logger.Warn("recipient resolution failed", "pipeline", "dispatch", "listing_id", c.listing.ID, "error", resErr)
	}
	a.ToAddress, a.RecipientConfidence = rcpt.Address, rcpt.Confidence

	if genErr != nil || a.ToAddress == "" {
		a.Status = application.StatusDraft
		return p.create(ctx, a.Application, "drafted for review", rs)
	}

	now := p.now()
	switch a.RecipientConfidence {
	case application.ConfidenceHigh:
		d, err := p.Limiter.CanSendNow(ctx, c.profile.UserID)
		if err != nil {
			return err
		}
		at := now
		if !d.Allowed {
			at = now.Add(time.Duration(d.WaitSeconds) * time.Second)
		}
		a.Status = application.StatusReady
		a.ScheduledAt = &at
		id, err := p.createID(ctx, a.Application, "auto-approved, high confidence recipient", rs)
		if err != nil || id == uuid.Nil {
			return err
		}
		if !d.Allowed {
			rs.Deferred++
			p.Logger.Info("send deferred", "pipeline", "dispatch", "application_id", id, "reason", d.Reason, "wait_seconds", d.WaitSeconds)
			return nil
		}
		a.ID = id
		p.tally(ctx, a.Application, rs)
		return nil
	case application.ConfidenceMedium:
		at := now.Add(p.cfg.MediumReviewDelay)
		a.Status = application.StatusReady
		a.ScheduledAt = &at
		return p.create(ctx, a.Application, "scheduled for review window, medium confidence recipient", rs)
	default:
		a.Status = application.StatusDraft
		return p.create(ctx, a.Application, "drafted, low confidence recipient", rs)
	}
}

func (p *DispatchPipeline) isDuplicate(ctx context.Context, c candidate) (bool, error) {
	if p.Guard == nil {
		return false, nil
	}
	return p.Guard.IsDuplicate(ctx, c.profile.UserID, c.listing)
}

type draftApplication struct {
	application.Application
}

func (a *draftApplication) applyContent(content generator.Content, err error) {
	if err != nil {
		a.ErrorMessage = "content generation failed: " + err.Error()
		return
	}
	a.Subject = content.Subject
	a.Body = content.Body
	a.CoverLetter = content.CoverLetter
}

func (p *DispatchPipeline) newApplication(c candidate) *draftApplication {
	from := strings.TrimSpace(c.profile.SenderEmail)
	if from == "" {
		from = c.profile.Email
	}
	a := &draftApplication{application.Application{
		TrackedListingID:    c.trackedID,
		UserID:              c.profile.UserID,
		FromAddress:         from,
		RecipientConfidence: application.ConfidenceNone,
		ListingTitle:        c.listing.Title,
		ListingCompany:      c.listing.Company,
	}}
	if c.result.ResumeID != uuid.Nil {
		id := c.result.ResumeID
		a.ResumeID = &id
	}
	return a
}

func (p *DispatchPipeline) generate(ctx context.Context, c candidate) (generator.Content, error) {
	if p.Generator == nil {
		return generator.Content{}, errors.New("content generator not configured")
	}
	req := generator.Request{
		ApplicantEmail: c.profile.Email,
		ListingTitle:   c.listing.Title,
		Company:        c.listing.Company,
		Location:       c.listing.Location,
		Description:    c.listing.Description,
		MatchReasons:   c.result.Reasons,
	}
	for _, r := range c.resumes {
		if r.ID == c.result.ResumeID {
			req.ResumeName, req.ResumeContent = r.Name, r.Content
			break
		}
	}
	return p.Generator.Generate(ctx, req)
}

func (p *DispatchPipeline) resolve(ctx context.Context, c candidate) (resolver.Recipient, error) {
	none := resolver.Recipient{Confidence: application.ConfidenceNone}
	if p.Resolver == nil {
		return none, nil
	}
	r, err := p.Resolver.Resolve(ctx, resolver.Request{
		Company:     c.listing.Company,
		ListingURL:  c.listing.URL,
		Description: c.listing.Description,
	})
	if err != nil {
		return none, err
	}
	return r, nil
}

func (p *DispatchPipeline) create(ctx context.Context, a application.Application, message string, rs *domain.RunStats) error {
	_, err := p.createID(ctx, a, message, rs)
	return err
}

// createID returns uuid.Nil without error when an open application already
// exists for the tracked listing.
func (p *DispatchPipeline) createID(ctx context.Context, a application.Application, message string, rs *domain.RunStats) (uuid.UUID, error) {
	id, err := p.Applications.Create(ctx, a, message)
	if err != nil {
		if errors.Is(err, repository.ErrOpenApplicationExists) {
			rs.Duplicates++
			return uuid.Nil, nil
		}
		return uuid.Nil, err
	}
	p.Metrics.ApplicationCreated(string(a.Status))
	switch a.Status {
	case application.StatusDraft:
		rs.Drafts++
	case application.StatusReady:
		rs.Ready++
	}
	return id, nil
}

// runSends dispatches READY applications that are due, one user at a time
// per worker so a user's sends stay sequential under the limiter.
func (p *DispatchPipeline) runSends(ctx context.Context, deadline time.Time, stats *domain.RunStats) {
	if p.Sender == nil {
		return
	}
	due, err := p.Applications.ListDueReady(ctx, p.now(), defaultSendLimit)
	if err != nil {
		stats.SendErrors++
		p.Logger.Error("list due applications failed", "pipeline", "dispatch", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	byUser := make(map[uuid.UUID][]application.Application)
	order := make([]uuid.UUID, 0)
	for _, a := range due {
		if _, ok := byUser[a.UserID]; !ok {
			order = append(order, a.UserID)
		}
		byUser[a.UserID] = append(byUser[a.UserID], a)
	}

	pool := NewWorkerPool(p.cfg.Workers, p.cfg.Workers*2)
	results := pool.Run(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			stats.Add(r.Stats)
			if r.Stats.BudgetHit {
				stats.BudgetHit = true
			}
		}
	}()

	for _, uid := range order {
		apps := byUser[uid]
		pool.Submit(func(ctx context.Context) Result {
			var rs domain.RunStats
			for i, a := range apps {
				if !p.now().Before(deadline) {
					rs.BudgetHit = true
					break
				}
				d, err := p.Limiter.CanSendNow(ctx, uid)
				if err != nil {
					rs.SendErrors++
					p.Logger.Error("rate limiter failed", "pipeline", "dispatch", "user_id", uid, "error", err)
					break
				}
				if !d.Allowed {
					rs.Deferred += len(apps) - i
					p.Logger.Info("sends deferred", "pipeline", "dispatch", "user_id", uid, "reason", d.Reason, "wait_seconds", d.WaitSeconds)
					break
				}
				p.tally(ctx, a, &rs)
			}
			return Result{Stats: rs}
		})
	}
	pool.Close()
	<-done
}

func (p *DispatchPipeline) tally(ctx context.Context, a application.Application, rs *domain.RunStats) {
	outcome, err := p.Sender.Dispatch(ctx, a)
	if err != nil {
		rs.SendErrors++
		p.Logger.Error("dispatch failed", "pipeline", "dispatch", "application_id", a.ID, "error", err)
		return
	}
	switch outcome {
	case usecase.OutcomeSent:
		rs.Sent++
	case usecase.OutcomeRequeued:
		rs.Requeued++
	case usecase.OutcomeFailed:
		rs.Failed++
	case usecase.OutcomeSkipped:
		rs.ClaimConflicts++
	}
}

func listingIDs(ls []job.CanonicalListing) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.ID)
	}
	return out
}
