package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"autoapply/internal/domain/application"
	"autoapply/internal/domain/match"
	"autoapply/internal/domain/user"
	"autoapply/internal/repository"

	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for the user, tracked listing and
// application repositories. Transitions are compare-and-set under one mutex,
// the same guarantee the conditional UPDATE gives in Postgres.
type memStore struct {
	mu sync.Mutex

	profiles map[uuid.UUID]user.Profile
	apps     map[uuid.UUID]application.Application
	events   []application.Event
	tracked  map[uuid.UUID]match.TrackedListing

	bouncePauses int
	stuckQueries []uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{
		profiles: map[uuid.UUID]user.Profile{},
		apps:     map[uuid.UUID]application.Application{},
		tracked:  map[uuid.UUID]match.TrackedListing{},
	}
}

// users

func (s *memStore) ListDispatchable(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0)
	for id, p := range s.profiles {
		if p.Onboarded && p.IsActive() {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *memStore) GetProfile(ctx context.Context, userID uuid.UUID) (user.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return user.Profile{}, repository.ErrUserNotFound
	}
	return p, nil
}

func (s *memStore) SaveSettings(ctx context.Context, p user.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.UserID]; !ok {
		return repository.ErrUserNotFound
	}
	s.profiles[p.UserID] = p
	return nil
}

func (s *memStore) ApplyBouncePause(ctx context.Context, userID uuid.UUID, until, now, dayStart time.Time, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[userID]
	if p.LastBouncePauseAt != nil && !p.LastBouncePauseAt.Before(dayStart) {
		return false, nil
	}
	p.PausedUntil = &until
	p.PauseReason = reason
	p.LastBouncePauseAt = &now
	s.profiles[userID] = p
	s.bouncePauses++
	return true, nil
}

func (s *memStore) ClearPause(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	p.PausedUntil = nil
	p.PauseReason = ""
	s.profiles[userID] = p
	return nil
}

// applications

func (s *memStore) Create(ctx context.Context, a application.Application, message string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.apps {
		if other.TrackedListingID == a.TrackedListingID && !other.Status.Terminal() && !a.Status.Terminal() {
			return uuid.Nil, repository.ErrOpenApplicationExists
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.UpdatedAt = a.CreatedAt
	if t, ok := s.tracked[a.TrackedListingID]; ok {
		a.ListingTitle, a.ListingCompany = t.Title, t.Company
	}
	s.apps[a.ID] = a
	s.events = append(s.events, application.Event{ID: uuid.New(), ApplicationID: a.ID, ToStatus: a.Status, Message: message})
	return a.ID, nil
}

func (s *memStore) GetByID(ctx context.Context, id uuid.UUID) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return application.Application{}, repository.ErrApplicationNotFound
	}
	return a, nil
}

func (s *memStore) ListByUser(ctx context.Context, userID uuid.UUID, status application.Status, limit, offset int) ([]application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]application.Application, 0)
	for _, a := range s.apps {
		if a.UserID == userID && (status == "" || a.Status == status) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) ListEvents(ctx context.Context, applicationID uuid.UUID) ([]application.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]application.Event, 0)
	for _, e := range s.events {
		if e.ApplicationID == applicationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) Transition(ctx context.Context, id uuid.UUID, from, to application.Status, ch repository.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok || a.Status != from {
		return repository.ErrStaleStatus
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	if ch.ClearError {
		a.ErrorMessage = ""
	} else if ch.ErrorMessage != nil {
		a.ErrorMessage = *ch.ErrorMessage
	}
	if ch.ClearSendingStartedAt {
		a.SendingStartedAt = nil
	} else if ch.SendingStartedAt != nil {
		a.SendingStartedAt = ch.SendingStartedAt
	}
	if ch.RetryCount != nil {
		a.RetryCount = *ch.RetryCount
	}
	if ch.ScheduledAt != nil {
		a.ScheduledAt = ch.ScheduledAt
	}
	if ch.SentAt != nil {
		a.SentAt = ch.SentAt
	}
	if ch.MessageID != nil {
		a.MessageID = *ch.MessageID
	}
	if ch.BouncedAt != nil {
		a.BouncedAt = ch.BouncedAt
	}
	s.apps[id] = a
	s.events = append(s.events, application.Event{ID: uuid.New(), ApplicationID: id, FromStatus: from, ToStatus: to, Message: ch.Message})
	return nil
}

func (s *memStore) Claim(ctx context.Context, id uuid.UUID, at time.Time) (application.Application, error) {
	err := s.Transition(ctx, id, application.StatusReady, application.StatusSending, repository.Change{
		Message:          "claimed for sending",
		SendingStartedAt: &at,
	})
	if err != nil {
		return application.Application{}, err
	}
	return s.get(id), nil
}

func (s *memStore) UpdateDraft(ctx context.Context, userID, id uuid.UUID, toAddress, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok || a.UserID != userID || a.Status != application.StatusDraft {
		return repository.ErrStaleStatus
	}
	a.ToAddress, a.Subject, a.Body = toAddress, subject, body
	s.apps[id] = a
	return nil
}

func (s *memStore) MarkBounced(ctx context.Context, userID, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok || a.UserID != userID || a.BouncedAt != nil {
		return false, nil
	}
	if a.Status != application.StatusSent && a.Status != application.StatusFailed {
		return false, nil
	}
	a.BouncedAt = &at
	s.apps[id] = a
	return true, nil
}

func (s *memStore) ListRecent(ctx context.Context, userID uuid.UUID, since time.Time) ([]application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]application.Application, 0)
	for _, a := range s.apps {
		if a.UserID == userID && (!a.CreatedAt.Before(since) || !a.UpdatedAt.Before(since)) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) SendStats(ctx context.Context, userID uuid.UUID, dayStart, hourStart time.Time) (repository.SendStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st repository.SendStats
	for _, a := range s.apps {
		if a.UserID != userID {
			continue
		}
		if a.BouncedAt != nil && !a.BouncedAt.Before(dayStart) {
			st.BouncesToday++
		}
		if a.Status != application.StatusSent || a.SentAt == nil {
			continue
		}
		sent := *a.SentAt
		if !sent.Before(dayStart) {
			st.SentToday++
		}
		if !sent.Before(hourStart) {
			st.SentLastHour++
			if st.OldestInHour == nil || sent.Before(*st.OldestInHour) {
				st.OldestInHour = &sent
			}
		}
		if st.LastSentAt == nil || sent.After(*st.LastSentAt) {
			st.LastSentAt = &sent
		}
	}
	return st, nil
}

func (s *memStore) ListDueReady(ctx context.Context, now time.Time, limit int) ([]application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]application.Application, 0)
	for _, a := range s.apps {
		if a.Status == application.StatusReady && (a.ScheduledAt == nil || !a.ScheduledAt.After(now)) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) ListStuck(ctx context.Context, userID uuid.UUID, startedBefore time.Time) ([]application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stuckQueries = append(s.stuckQueries, userID)
	out := make([]application.Application, 0)
	for _, a := range s.apps {
		if userID != uuid.Nil && a.UserID != userID {
			continue
		}
		if a.Status == application.StatusSending && a.SendingStartedAt != nil && a.SendingStartedAt.Before(startedBefore) {
			out = append(out, a)
		}
	}
	return out, nil
}

// tracked listings

func (s *memStore) Insert(ctx context.Context, t match.TrackedListing) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.tracked {
		if other.UserID == t.UserID && other.ListingID == t.ListingID {
			return uuid.Nil, false, nil
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Stage == "" {
		t.Stage = match.StageSaved
	}
	s.tracked[t.ID] = t
	return t.ID, true, nil
}

func (s *memStore) ListingIDsByUser(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[uuid.UUID]struct{}{}
	for _, t := range s.tracked {
		if t.UserID == userID {
			out[t.ListingID] = struct{}{}
		}
	}
	return out, nil
}

func (s *memStore) ListByUserTracked(userID uuid.UUID) []match.TrackedListing {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]match.TrackedListing, 0)
	for _, t := range s.tracked {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

func (s *memStore) GetTracked(ctx context.Context, userID, id uuid.UUID) (match.TrackedListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracked[id]
	if !ok || t.UserID != userID {
		return match.TrackedListing{}, repository.ErrTrackedListingNotFound
	}
	return t, nil
}

func (s *memStore) UpdateStage(ctx context.Context, userID, id uuid.UUID, stage match.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracked[id]
	if !ok || t.UserID != userID {
		return repository.ErrTrackedListingNotFound
	}
	t.Stage = stage
	s.tracked[id] = t
	return nil
}

func (s *memStore) SetDismissed(ctx context.Context, userID, id uuid.UUID, dismissed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracked[id]
	if !ok || t.UserID != userID {
		return repository.ErrTrackedListingNotFound
	}
	t.Dismissed = dismissed
	s.tracked[id] = t
	return nil
}

// trackedRepo adapts memStore to repository.TrackedListingRepository, whose
// ListByUser and GetByID names collide with the application methods.
type trackedRepo struct{ *memStore }

func (r trackedRepo) ListByUser(ctx context.Context, userID uuid.UUID, includeDismissed bool, limit, offset int) ([]match.TrackedListing, error) {
	out := make([]match.TrackedListing, 0)
	for _, t := range r.ListByUserTracked(userID) {
		if includeDismissed || !t.Dismissed {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r trackedRepo) GetByID(ctx context.Context, userID, id uuid.UUID) (match.TrackedListing, error) {
	return r.GetTracked(ctx, userID, id)
}

func (s *memStore) put(a application.Application) application.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.apps[a.ID] = a
	return a
}

func (s *memStore) get(id uuid.UUID) application.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apps[id]
}

var (
	_ repository.ApplicationRepository    = (*memStore)(nil)
	_ repository.UserRepository           = (*memStore)(nil)
	_ repository.TrackedListingRepository = trackedRepo{}
)
