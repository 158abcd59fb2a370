package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"autoapply/internal/delivery/http/middleware"
	"autoapply/internal/domain"
	"autoapply/internal/domain/application"
	"autoapply/internal/domain/match"
	"autoapply/internal/domain/user"
	"autoapply/internal/pkg/logging"
	"autoapply/internal/usecase"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type semanticResponse struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

var callerID = uuid.MustParse("9a4b3c2d-1e0f-4a5b-8c7d-6e5f4a3b2c1d")

// newTestApp mounts h behind a stand-in for the auth middleware. A request
// with X-Test-Anonymous skips it.
func newTestApp(register func(r fiber.Router)) *fiber.App {
	app := fiber.New(fiber.Config{})
	app.Use(middleware.NewErrorMiddleware(logging.Nop()).Middleware())
	app.Use(func(c fiber.Ctx) error {
		if c.Get("X-Test-Anonymous") == "" {
			c.Locals(middleware.CtxUserIDKey, callerID)
		}
		return c.Next()
	})
	register(app)
	return app
}

func do(t *testing.T, app *fiber.App, method, path string, body any, headers ...string) (int, semanticResponse) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var sr semanticResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sr))
	assert.Equal(t, resp.StatusCode, sr.Status, "envelope status mirrors the HTTP status")
	return resp.StatusCode, sr
}

type fakeTracked struct {
	items     []match.TrackedListing
	gotLimit  int
	gotOffset int
	gotAll    bool
	gotStage  string
	dismissed *bool
	err       error
}

func (f *fakeTracked) List(ctx context.Context, userID uuid.UUID, includeDismissed bool, limit, offset int) ([]match.TrackedListing, error) {
	f.gotAll, f.gotLimit, f.gotOffset = includeDismissed, limit, offset
	return f.items, f.err
}

func (f *fakeTracked) Get(ctx context.Context, userID, id uuid.UUID) (match.TrackedListing, error) {
	for _, it := range f.items {
		if it.ID == id && it.UserID == userID {
			return it, nil
		}
	}
	return match.TrackedListing{}, usecase.ErrNotFound
}

func (f *fakeTracked) UpdateStage(ctx context.Context, userID, id uuid.UUID, stage string) (match.TrackedListing, error) {
	f.gotStage = stage
	if f.err != nil {
		return match.TrackedListing{}, f.err
	}
	t, err := f.Get(ctx, userID, id)
	t.Stage = match.Stage(stage)
	return t, err
}

func (f *fakeTracked) SetDismissed(ctx context.Context, userID, id uuid.UUID, dismissed bool) (match.TrackedListing, error) {
	f.dismissed = &dismissed
	t, err := f.Get(ctx, userID, id)
	t.Dismissed = dismissed
	return t, err
}

func TestTrackedListingHandler(t *testing.T) {
	id := uuid.New()
	uc := &fakeTracked{items: []match.TrackedListing{{
		ID: id, UserID: callerID, Title: "Go Engineer", Score: 72, Stage: match.StageSaved,
	}}}
	app := newTestApp(NewTrackedListingHandler(uc).RegisterRoutes)

	status, sr := do(t, app, http.MethodGet, "/tracked-listings?limit=5&offset=10&include_dismissed=true", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", sr.Message)
	assert.Equal(t, 5, uc.gotLimit)
	assert.Equal(t, 10, uc.gotOffset)
	assert.True(t, uc.gotAll)

	var items []map[string]any
	require.NoError(t, json.Unmarshal(sr.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Go Engineer", items[0]["title"])
	assert.Equal(t, []any{}, items[0]["reasons"])

	status, _ = do(t, app, http.MethodGet, "/tracked-listings?limit=abc", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = do(t, app, http.MethodGet, "/tracked-listings/not-a-uuid", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = do(t, app, http.MethodGet, "/tracked-listings/"+uuid.NewString(), nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, sr = do(t, app, http.MethodPatch, "/tracked-listings/"+id.String()+"/stage", map[string]string{"stage": "INTERVIEW"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "INTERVIEW", uc.gotStage)

	status, _ = do(t, app, http.MethodPost, "/tracked-listings/"+id.String()+"/dismiss", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.NotNil(t, uc.dismissed)
	assert.True(t, *uc.dismissed)

	status, _ = do(t, app, http.MethodPost, "/tracked-listings/"+id.String()+"/restore", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.False(t, *uc.dismissed)

	uc.err = usecase.ErrInvalidInput
	status, sr = do(t, app, http.MethodPatch, "/tracked-listings/"+id.String()+"/stage", map[string]string{"stage": "HIRED"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Bad request", sr.Message)

	status, _ = do(t, app, http.MethodGet, "/tracked-listings", nil, "X-Test-Anonymous", "1")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

type fakeApplications struct {
	usecase.ApplicationUsecase

	app      application.Application
	sendErr  error
	decision usecase.Decision
	actErr   error
	gotDraft usecase.DraftUpdate
	bounced  bool
}

func (f *fakeApplications) List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]application.Application, error) {
	if status != "" && application.Status(status) != f.app.Status {
		return nil, nil
	}
	return []application.Application{f.app}, nil
}

func (f *fakeApplications) Get(ctx context.Context, userID, id uuid.UUID) (usecase.ApplicationDetail, error) {
	if id != f.app.ID {
		return usecase.ApplicationDetail{}, usecase.ErrNotFound
	}
	return usecase.ApplicationDetail{
		Application: f.app,
		Events: []application.Event{
			{ToStatus: application.StatusDraft, Message: "drafted at score 61"},
			{FromStatus: application.StatusDraft, ToStatus: application.StatusReady, Message: "approved"},
		},
	}, nil
}

func (f *fakeApplications) UpdateDraft(ctx context.Context, userID, id uuid.UUID, in usecase.DraftUpdate) (application.Application, error) {
	f.gotDraft = in
	if in.Subject != nil {
		f.app.Subject = *in.Subject
	}
	return f.app, nil
}

func (f *fakeApplications) Approve(ctx context.Context, userID, id uuid.UUID) (application.Application, error) {
	if f.actErr != nil {
		return application.Application{}, f.actErr
	}
	f.app.Status = application.StatusReady
	return f.app, nil
}

func (f *fakeApplications) SendNow(ctx context.Context, userID, id uuid.UUID) (usecase.SendOutcome, usecase.Decision, error) {
	if f.sendErr != nil {
		return "", f.decision, f.sendErr
	}
	f.app.Status = application.StatusSent
	return usecase.OutcomeSent, f.decision, nil
}

func (f *fakeApplications) ReportBounce(ctx context.Context, userID, id uuid.UUID) error {
	f.bounced = true
	return nil
}

func (f *fakeApplications) Stuck(ctx context.Context, userID uuid.UUID) ([]application.Application, error) {
	return nil, errors.New("db down")
}

func TestApplicationHandler(t *testing.T) {
	id := uuid.New()
	uc := &fakeApplications{app: application.Application{
		ID: id, UserID: callerID, Status: application.StatusDraft, Subject: "Hello", RecipientConfidence: application.ConfidenceMedium,
	}}
	app := newTestApp(NewApplicationHandler(uc).RegisterRoutes)

	status, sr := do(t, app, http.MethodGet, "/applications?status=DRAFT", nil)
	require.Equal(t, fiber.StatusOK, status)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(sr.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "MEDIUM", list[0]["recipient_confidence"])

	status, sr = do(t, app, http.MethodGet, "/applications/"+id.String(), nil)
	require.Equal(t, fiber.StatusOK, status)
	var detail struct {
		Status string `json:"status"`
		Events []struct {
			FromStatus string `json:"from_status"`
			ToStatus   string `json:"to_status"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(sr.Data, &detail))
	require.Len(t, detail.Events, 2)
	assert.Equal(t, "READY", detail.Events[1].ToStatus)

	status, _ = do(t, app, http.MethodPatch, "/applications/"+id.String(), map[string]string{"subject": "Re: Go role"})
	require.Equal(t, fiber.StatusOK, status)
	require.NotNil(t, uc.gotDraft.Subject)
	assert.Nil(t, uc.gotDraft.Body, "absent fields stay nil")

	status, sr = do(t, app, http.MethodPost, "/applications/"+id.String()+"/approve", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(sr.Data), `"status":"READY"`)

	uc.actErr = usecase.ErrConflict
	status, _ = do(t, app, http.MethodPost, "/applications/"+id.String()+"/approve", nil)
	assert.Equal(t, fiber.StatusConflict, status)

	uc.sendErr = usecase.ErrRateLimited
	uc.decision = usecase.Decision{Allowed: false, Reason: usecase.ReasonHourlyCap, WaitSeconds: 900}
	status, sr = do(t, app, http.MethodPost, "/applications/"+id.String()+"/send", nil)
	require.Equal(t, fiber.StatusTooManyRequests, status)
	var d usecase.Decision
	require.NoError(t, json.Unmarshal(sr.Data, &d))
	assert.Equal(t, usecase.ReasonHourlyCap, d.Reason)
	assert.Equal(t, 900, d.WaitSeconds)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/applications/"+id.String()+"/send", nil))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "900", resp.Header.Get("Retry-After"))

	uc.sendErr = nil
	status, sr = do(t, app, http.MethodPost, "/applications/"+id.String()+"/send", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(sr.Data), `"outcome":"sent"`)

	status, _ = do(t, app, http.MethodPost, "/applications/"+id.String()+"/bounce", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.True(t, uc.bounced)

	status, sr = do(t, app, http.MethodGet, "/applications/stuck", nil)
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", sr.Message, "internal detail is not leaked")
}

type fakeSettings struct {
	profile user.Profile
	got     usecase.SettingsUpdate
	err     error
}

func (f *fakeSettings) Get(ctx context.Context, userID uuid.UUID) (user.Profile, error) {
	return f.profile, nil
}

func (f *fakeSettings) Update(ctx context.Context, userID uuid.UUID, in usecase.SettingsUpdate) (user.Profile, error) {
	f.got = in
	if f.err != nil {
		return user.Profile{}, f.err
	}
	if in.MaxPerHour != nil {
		f.profile.MaxPerHour = *in.MaxPerHour
	}
	return f.profile, nil
}

func (f *fakeSettings) Resume(ctx context.Context, userID uuid.UUID) (user.Profile, error) {
	f.profile.PausedUntil = nil
	return f.profile, nil
}

func (f *fakeSettings) RateStatus(ctx context.Context, userID uuid.UUID) (usecase.Decision, error) {
	return usecase.Decision{Allowed: true, Stats: usecase.LimitStats{SentToday: 3, MaxPerDay: 20, Timezone: "UTC"}}, nil
}

func TestSettingsHandler(t *testing.T) {
	paused := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	uc := &fakeSettings{profile: user.Profile{
		Email:          "dev@example.test",
		AutomationMode: user.ModeSemiAuto,
		MaxPerHour:     5,
		MinDelay:       2 * time.Minute,
		BounceCooldown: 24 * time.Hour,
		PausedUntil:    &paused,
	}}
	app := newTestApp(NewSettingsHandler(uc).RegisterRoutes)

	status, sr := do(t, app, http.MethodGet, "/settings", nil)
	require.Equal(t, fiber.StatusOK, status)
	var got map[string]any
	require.NoError(t, json.Unmarshal(sr.Data, &got))
	assert.Equal(t, "SEMI_AUTO", got["automation_mode"])
	assert.EqualValues(t, 120, got["min_delay_seconds"])
	assert.EqualValues(t, 24, got["bounce_cooldown_hours"])
	assert.Equal(t, []any{}, got["keywords"])

	status, _ = do(t, app, http.MethodPut, "/settings", map[string]any{"max_per_hour": 9, "keywords": []string{"go"}})
	require.Equal(t, fiber.StatusOK, status)
	require.NotNil(t, uc.got.MaxPerHour)
	assert.Equal(t, 9, *uc.got.MaxPerHour)
	require.NotNil(t, uc.got.Keywords)
	assert.Equal(t, []string{"go"}, *uc.got.Keywords)
	assert.Nil(t, uc.got.AutomationMode)

	uc.err = usecase.ErrInvalidInput
	status, _ = do(t, app, http.MethodPut, "/settings", map[string]any{"max_per_hour": 0})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, sr = do(t, app, http.MethodPost, "/settings/resume", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.NotContains(t, string(sr.Data), "paused_until")

	status, sr = do(t, app, http.MethodGet, "/settings/rate-status", nil)
	require.Equal(t, fiber.StatusOK, status)
	var d usecase.Decision
	require.NoError(t, json.Unmarshal(sr.Data, &d))
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.Stats.SentToday)
}

type stubStatus struct {
	st  *domain.DispatchStatus
	err error
}

func (s stubStatus) GetStatus(ctx context.Context) (*domain.DispatchStatus, error) {
	return s.st, s.err
}

func TestDispatchStatusHandler(t *testing.T) {
	started := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	st := &domain.DispatchStatus{
		FreshListings:   14,
		DatabaseHealthy: true,
		LastRun: &domain.RunStats{
			StartedAt:  started,
			FinishedAt: started.Add(90 * time.Second),
			Sent:       2,
			Drafts:     5,
		},
	}
	app := newTestApp(NewDispatchStatusHandler(stubStatus{st: st}, nil).RegisterRoutes)

	status, sr := do(t, app, http.MethodGet, "/dispatch/status", nil)
	require.Equal(t, fiber.StatusOK, status)
	var got struct {
		FreshListings int `json:"fresh_listings"`
		LastRun       struct {
			Duration string `json:"duration"`
			Matching struct {
				Drafts int `json:"drafts"`
			} `json:"matching"`
			Sending struct {
				Sent int `json:"sent"`
			} `json:"sending"`
		} `json:"last_run"`
	}
	require.NoError(t, json.Unmarshal(sr.Data, &got))
	assert.Equal(t, 14, got.FreshListings)
	assert.Equal(t, "1m30s", got.LastRun.Duration)
	assert.Equal(t, 5, got.LastRun.Matching.Drafts)
	assert.Equal(t, 2, got.LastRun.Sending.Sent)

	app = newTestApp(NewDispatchStatusHandler(stubStatus{err: errors.New("db down")}, nil).RegisterRoutes)
	status, sr = do(t, app, http.MethodGet, "/dispatch/status", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(sr.Data), `"last_run":null`)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	app := newTestApp(NewHealthHandler(stubPinger{}, nil).RegisterRoutes)
	status, sr := do(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(sr.Data), `"redis":"disabled"`)

	app = newTestApp(NewHealthHandler(stubPinger{}, stubPinger{err: errors.New("refused")}).RegisterRoutes)
	status, sr = do(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, fiber.StatusOK, status, "redis is optional")
	assert.Contains(t, string(sr.Data), `"redis":"down"`)

	app = newTestApp(NewHealthHandler(stubPinger{err: errors.New("refused")}, nil).RegisterRoutes)
	status, sr = do(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Contains(t, string(sr.Data), `"database":"down"`)
}
