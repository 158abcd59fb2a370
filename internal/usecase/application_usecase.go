package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"autoapply/internal/domain/application"
	"autoapply/internal/domain/match"
	"autoapply/internal/infrastructure/mailer"
	"autoapply/internal/infrastructure/resolver"
	"autoapply/internal/metrics"
	"autoapply/internal/pkg/logging"
	"autoapply/internal/pkg/retry"
	"autoapply/internal/repository"

	"github.com/google/uuid"
)

const (
	DefaultMaxRetries   = 3
	DefaultStuckAfter   = 10 * time.Minute
	DefaultRequeueDelay = 15 * time.Minute
)

type SendOutcome string

const (
	OutcomeSent     SendOutcome = "sent"
	OutcomeRequeued SendOutcome = "requeued"
	OutcomeFailed   SendOutcome = "failed"
	OutcomeSkipped  SendOutcome = "skipped"
)

type ApplicationDetail struct {
	Application application.Application
	Events      []application.Event
}

type DraftUpdate struct {
	ToAddress *string
	Subject   *string
	Body      *string
}

type ApplicationUsecase interface {
	List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]application.Application, error)
	Get(ctx context.Context, userID, id uuid.UUID) (ApplicationDetail, error)
	UpdateDraft(ctx context.Context, userID, id uuid.UUID, in DraftUpdate) (application.Application, error)

	Approve(ctx context.Context, userID, id uuid.UUID) (application.Application, error)
	Discard(ctx context.Context, userID, id uuid.UUID) (application.Application, error)
	Cancel(ctx context.Context, userID, id uuid.UUID) (application.Application, error)
	Redraft(ctx context.Context, userID, id uuid.UUID) (application.Application, error)
	Retry(ctx context.Context, userID, id uuid.UUID) (application.Application, error)
	RecoverStuck(ctx context.Context, userID, id uuid.UUID) (application.Application, error)
	SendNow(ctx context.Context, userID, id uuid.UUID) (SendOutcome, Decision, error)
	ReportBounce(ctx context.Context, userID, id uuid.UUID) error
	Stuck(ctx context.Context, userID uuid.UUID) ([]application.Application, error)

	Dispatch(ctx context.Context, a application.Application) (SendOutcome, error)
	SweepStuck(ctx context.Context) ([]application.Application, error)
}

type ApplicationOptions struct {
	MaxRetries       int
	StuckAfter       time.Duration
	TransportTimeout time.Duration
	// RequeueDelay is the wait before a transiently failed send is due
	// again. It doubles with each consecutive failure.
	RequeueDelay time.Duration
}

type Applications struct {
	apps      repository.ApplicationRepository
	tracked   repository.TrackedListingRepository
	limiter   Limiter
	transport mailer.Transport
	executor  *retry.Executor
	metrics   metrics.Recorder
	logger    *logging.Logger
	opts      ApplicationOptions
	now       func() time.Time
}

func NewApplicationUsecase(
	apps repository.ApplicationRepository,
	tracked repository.TrackedListingRepository,
	limiter Limiter,
	transport mailer.Transport,
	executor *retry.Executor,
	rec metrics.Recorder,
	logger *logging.Logger,
	opts ApplicationOptions,
) *Applications {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.StuckAfter <= 0 {
		opts.StuckAfter = DefaultStuckAfter
	}
	if opts.TransportTimeout <= 0 {
		opts.TransportTimeout = 15 * time.Second
	}
	if opts.RequeueDelay <= 0 {
		opts.RequeueDelay = DefaultRequeueDelay
	}
	if executor == nil {
		executor = retry.New(3, 2*time.Second)
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Applications{
		apps:      apps,
		tracked:   tracked,
		limiter:   limiter,
		transport: transport,
		executor:  executor,
		metrics:   rec,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

func (u *Applications) List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]application.Application, error) {
	st := application.Status(strings.ToUpper(strings.TrimSpace(status)))
	if st != "" && !st.Valid() {
		return nil, ErrInvalidInput
	}
	if limit < 0 || limit > 100 || offset < 0 {
		return nil, ErrInvalidInput
	}
	items, err := u.apps.ListByUser(ctx, userID, st, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return items, nil
}

func (u *Applications) Get(ctx context.Context, userID, id uuid.UUID) (ApplicationDetail, error) {
	a, err := u.owned(ctx, userID, id)
	if err != nil {
		return ApplicationDetail{}, err
	}
	events, err := u.apps.ListEvents(ctx, id)
	if err != nil {
		return ApplicationDetail{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return ApplicationDetail{Application: a, Events: events}, nil
}

func (u *Applications) UpdateDraft(ctx context.Context, userID, id uuid.UUID, in DraftUpdate) (application.Application, error) {
	a, err := u.owned(ctx, userID, id)
	if err != nil {
		return application.Application{}, err
	}
	if a.Status != application.StatusDraft {
		return application.Application{}, ErrConflict
	}
	if in.ToAddress != nil {
		addr := strings.TrimSpace(*in.ToAddress)
		if addr != "" {
			norm, ok := resolver.NormalizeAddress(addr)
			if !ok {
				return application.Application{}, ErrInvalidInput
			}
			addr = norm
		}
		a.ToAddress = addr
	}
	if in.Subject != nil {
		s := strings.TrimSpace(*in.Subject)
		if s == "" || strings.ContainsAny(s, "\r\n") {
			return application.Application{}, ErrInvalidInput
		}
		a.Subject = s
	}
	if in.Body != nil {
		b := strings.TrimSpace(*in.Body)
		if b == "" {
			return application.Application{}, ErrInvalidInput
		}
		a.Body = b
	}
	if err := u.apps.UpdateDraft(ctx, userID, id, a.ToAddress, a.Subject, a.Body); err != nil {
		return application.Application{}, mapRepoErr(err)
	}
	return a, nil
}

// Approve moves a draft to READY, due immediately. The draft must have a
// recipient, subject and body by then.
func (u *Applications) Approve(ctx context.Context, userID, id uuid.UUID) (application.Application, error) {
	a, err := u.owned(ctx, userID, id)
	if err != nil {
		return application.Application{}, err
	}
	if a.ToAddress == "" || a.Subject == "" || a.Body == "" {
		return application.Application{}, ErrInvalidInput
	}
	now := u.now()
	return u.apply(ctx, a, application.ActionApprove, repository.Change{Message: "approved", ScheduledAt: &now, ClearError: true})
}

func (u *Applications) Discard(ctx context.Context, userID, id uuid.UUID) (application.Application, error) {
	a, err := u.owned(ctx, userID, id)
	if err != nil {
		return application.Application{}, err
	}
	return u.apply(ctx, a, application.ActionDiscard, repository.Change{Message: "draft discarded"})
}

func (u *Applications) Cancel(ctx context.Context, userID, id uuid.UUID) (application.Application, error) {
	a, err := u.owned(ctx, userID, id)
	if err != nil {
		return application.Application{}, err
	}
	return u.apply(ctx, a, application.ActionCancel, repository.Change{Message: "cancelled"})
}

func (u *Applications) Redraft(ctx context.Context, userID, id uuid.UUID) (application.Application, error) {
	a, err := u.owned(ctx, userID, id)
	if err != nil {
		return application.Application{}, err
	}
	return u.apply(ctx, a, application.ActionRedraft, repository.Change{Message: "returned to draft"})
}

// Retry re-opens a FAILED application. It is the only path besides a
// successful send that resets the retry counter, and it is audited.
func (u *Applications) Retry(ctx context.Context, userID, id uuid.UUID) (application.Application, error) {
	a, err := u.owned(ctx, userID, id)
	if err != nil {
		return application.Application{}, err
	}
	if a.BouncedAt != nil {
		return application.Application{}, ErrConflict
	}
	zero := 0
	now := u.now()
	msg := "manual retry, retry count reset from " + strconv.Itoa(a.RetryCount)
	return u.apply(ctx, a, application.ActionRetry, repository.Change{
		Message:     msg,
		RetryCount:  &zero,
		ScheduledAt: &now,
		ClearError:  true,
	})
}

// RecoverStuck returns an application stuck in SENDING to READY. The retry
// counter is kept, so the next attempt reuses the idempotency key of the
// stuck one and the relay collapses a late original.
func (u *Applications) RecoverStuck(ctx context.Context, userID, id uuid.UUID) (application.Application, error) {
	a, err := u.owned(ctx, userID, id)
	if err != nil {
		return application.Application{}, err
	}
	if !u.isStuck(a) {
		return application.Application{}, ErrConflict
	}
	msg := "recovered from stuck send"
	return u.apply(ctx, a, application.ActionRecoverStuck, repository.Change{
		Message:               msg,
		ErrorMessage:          &msg,
		ClearSendingStartedAt: true,
	})
}

func (u *Applications) SendNow(ctx context.Context, userID, id uuid.UUID) (SendOutcome, Decision, error) {
	a, err := u.owned(ctx, userID, id)
	if err != nil {
		return "", Decision{}, err
	}
	if a.Status != application.StatusReady {
		return "", Decision{}, ErrConflict
	}
	d, err := u.limiter.CanSendNow(ctx, userID)
	if err != nil {
		return "", Decision{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !d.Allowed {
		return "", d, ErrRateLimited
	}
	out, err := u.Dispatch(ctx, a)
	if err != nil {
		return out, d, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if out == OutcomeSkipped {
		return out, d, ErrConflict
	}
	return out, d, nil
}

func (u *Applications) ReportBounce(ctx context.Context, userID, id uuid.UUID) error {
	a, err := u.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	ok, err := u.apps.MarkBounced(ctx, userID, a.ID, u.now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ok {
		return ErrConflict
	}
	u.logger.Info("bounce reported", "user_id", userID, "application_id", id, "to", a.ToAddress)
	return nil
}

func (u *Applications) Stuck(ctx context.Context, userID uuid.UUID) ([]application.Application, error) {
	if userID == uuid.Nil {
		return nil, ErrNotFound
	}
	stuck, err := u.apps.ListStuck(ctx, userID, u.now().Add(-u.opts.StuckAfter))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return stuck, nil
}

// SweepStuck reports applications left in SENDING past the threshold. It
// changes nothing; recovery is an explicit operation.
func (u *Applications) SweepStuck(ctx context.Context) ([]application.Application, error) {
	stuck, err := u.apps.ListStuck(ctx, uuid.Nil, u.now().Add(-u.opts.StuckAfter))
	if err != nil {
		return nil, err
	}
	u.metrics.StuckApplications(len(stuck))
	for _, a := range stuck {
		u.logger.Warn("application stuck in SENDING",
			"application_id", a.ID, "user_id", a.UserID, "sending_started_at", a.SendingStartedAt, "retry_count", a.RetryCount)
	}
	return stuck, nil
}

// Dispatch claims a READY application and sends it. Losing the claim to a
// concurrent dispatcher is not an error: the outcome is skipped. The caller's
// snapshot only names the application; the send and the retry accounting
// use the row returned by the claim.
//
// Once claimed, the send and its outcome write run detached from ctx so a
// shutdown never leaves the application in SENDING.
func (u *Applications) Dispatch(ctx context.Context, a application.Application) (SendOutcome, error) {
	claimed, err := u.apps.Claim(ctx, a.ID, u.now())
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			u.metrics.ClaimConflict()
			u.logger.Debug("claim lost", "application_id", a.ID)
			return OutcomeSkipped, nil
		}
		return "", err
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.sendBudget())
	defer cancel()

	messageID, sendErr := u.send(sctx, claimed)
	if sendErr == nil {
		return OutcomeSent, u.markSent(sctx, claimed, messageID)
	}
	return u.markFailed(sctx, claimed, sendErr)
}

// sendBudget bounds one claimed send: every executor attempt at the
// transport timeout, the backoff between them, and the outcome write.
func (u *Applications) sendBudget() time.Duration {
	attempts := u.executor.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	budget := 30 * time.Second
	for i := 1; i <= attempts; i++ {
		budget += u.opts.TransportTimeout
		if i < attempts {
			budget += u.executor.Backoff(i)
		}
	}
	return budget
}

// requeueAt spaces requeues out across runs: RequeueDelay after the first
// failure, doubling with each further one.
func (u *Applications) requeueAt(retryCount int) time.Time {
	d := u.opts.RequeueDelay
	for i := 1; i < retryCount; i++ {
		d *= 2
	}
	return u.now().Add(d)
}

// IdempotencyKey identifies one attempt chain of an application at the relay.
func IdempotencyKey(a application.Application) string {
	return a.ID.String() + "-" + strconv.Itoa(a.RetryCount)
}

func (u *Applications) send(ctx context.Context, a application.Application) (string, error) {
	if u.transport == nil {
		return "", errors.New("mail transport not configured")
	}
	msg := mailer.Message{
		IdempotencyKey: IdempotencyKey(a),
		From:           a.FromAddress,
		To:             a.ToAddress,
		ReplyTo:        a.FromAddress,
		Subject:        a.Subject,
		Body:           a.Body,
	}
	var messageID string
	err := u.executor.Do(ctx, func(ctx context.Context) error {
		actx, cancel := context.WithTimeout(ctx, u.opts.TransportTimeout)
		defer cancel()
		res, err := u.transport.Send(actx, msg)
		if err != nil {
			return err
		}
		messageID = res.MessageID
		return nil
	})
	return messageID, err
}

func (u *Applications) markSent(ctx context.Context, a application.Application, messageID string) error {
	now := u.now()
	zero := 0
	err := u.apps.Transition(ctx, a.ID, application.StatusSending, application.StatusSent, repository.Change{
		Message:               "sent to " + a.ToAddress,
		SentAt:                &now,
		MessageID:             &messageID,
		RetryCount:            &zero,
		ClearError:            true,
		ClearSendingStartedAt: true,
	})
	if err != nil {
		return err
	}
	u.metrics.SendOutcome(string(OutcomeSent))
	if err := u.tracked.UpdateStage(ctx, a.UserID, a.TrackedListingID, match.StageApplied); err != nil {
		u.logger.Warn("tracked stage update failed", "tracked_listing_id", a.TrackedListingID, "error", err)
	}
	u.logger.Info("application sent", "application_id", a.ID, "user_id", a.UserID, "message_id", messageID)
	return nil
}

func (u *Applications) markFailed(ctx context.Context, a application.Application, sendErr error) (SendOutcome, error) {
	errMsg := sendErr.Error()
	class := retry.Classify(sendErr)

	if class == retry.Permanent {
		ch := repository.Change{
			Message:               "permanent failure: " + errMsg,
			ErrorMessage:          &errMsg,
			ClearSendingStartedAt: true,
		}
		if retry.IsBadAddress(sendErr) {
			now := u.now()
			ch.BouncedAt = &now
		}
		if err := u.apps.Transition(ctx, a.ID, application.StatusSending, application.StatusFailed, ch); err != nil {
			return "", err
		}
		u.metrics.SendOutcome(string(OutcomeFailed))
		u.logger.Warn("application failed", "application_id", a.ID, "class", class, "error", errMsg)
		return OutcomeFailed, nil
	}

	next := a.RetryCount + 1
	if next >= u.opts.MaxRetries {
		err := u.apps.Transition(ctx, a.ID, application.StatusSending, application.StatusFailed, repository.Change{
			Message:               "retries exhausted: " + errMsg,
			ErrorMessage:          &errMsg,
			RetryCount:            &next,
			ClearSendingStartedAt: true,
		})
		if err != nil {
			return "", err
		}
		u.metrics.SendOutcome(string(OutcomeFailed))
		u.logger.Warn("application failed after retries", "application_id", a.ID, "retry_count", next, "error", errMsg)
		return OutcomeFailed, nil
	}

	due := u.requeueAt(next)
	err := u.apps.Transition(ctx, a.ID, application.StatusSending, application.StatusReady, repository.Change{
		Message:               "requeued after " + class.String() + " failure: " + errMsg,
		ErrorMessage:          &errMsg,
		RetryCount:            &next,
		ScheduledAt:           &due,
		ClearSendingStartedAt: true,
	})
	if err != nil {
		return "", err
	}
	u.metrics.SendOutcome(string(OutcomeRequeued))
	u.logger.Info("application requeued", "application_id", a.ID, "retry_count", next, "scheduled_at", due, "error", errMsg)
	return OutcomeRequeued, nil
}

func (u *Applications) isStuck(a application.Application) bool {
	return a.Status == application.StatusSending &&
		a.SendingStartedAt != nil &&
		u.now().Sub(*a.SendingStartedAt) > u.opts.StuckAfter
}

func (u *Applications) owned(ctx context.Context, userID, id uuid.UUID) (application.Application, error) {
	a, err := u.apps.GetByID(ctx, id)
	if err != nil {
		return application.Application{}, mapRepoErr(err)
	}
	if a.UserID != userID {
		return application.Application{}, ErrNotFound
	}
	return a, nil
}

func (u *Applications) apply(ctx context.Context, a application.Application, action application.Action, ch repository.Change) (application.Application, error) {
	from, to, err := application.Transition(action, a.Status)
	if err != nil {
		return application.Application{}, fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if err := u.apps.Transition(ctx, a.ID, from, to, ch); err != nil {
		return application.Application{}, mapRepoErr(err)
	}
	a.Status = to
	if ch.RetryCount != nil {
		a.RetryCount = *ch.RetryCount
	}
	if ch.ScheduledAt != nil {
		a.ScheduledAt = ch.ScheduledAt
	}
	if ch.ClearError {
		a.ErrorMessage = ""
	}
	if ch.ClearSendingStartedAt {
		a.SendingStartedAt = nil
	}
	u.logger.Info("application transition", "application_id", a.ID, "action", action, "from", from, "to", to)
	return a, nil
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrApplicationNotFound), errors.Is(err, repository.ErrTrackedListingNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrStaleStatus), errors.Is(err, repository.ErrOpenApplicationExists):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
}

var _ ApplicationUsecase = (*Applications)(nil)
