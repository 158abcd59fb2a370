package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autoapply/internal/database"
	"autoapply/internal/database/postgres"
	"autoapply/internal/domain/application"

	"github.com/google/uuid"
)

var (
	ErrApplicationNotFound = errors.New("application not found")

	// ErrStaleStatus is returned by a conditional transition that matched no
	// row: the application is no longer in the expected status.
	ErrStaleStatus = errors.New("application status changed concurrently")

	// ErrOpenApplicationExists means the tracked listing already has a
	// DRAFT, READY or SENDING application.
	ErrOpenApplicationExists = errors.New("tracked listing already has an open application")
)

// Change lists the columns written together with a status transition. Nil
// fields are left as they are.
type Change struct {
	Message string

	ErrorMessage     *string
	RetryCount       *int
	ScheduledAt      *time.Time
	SentAt           *time.Time
	SendingStartedAt *time.Time
	MessageID        *string
	BouncedAt        *time.Time

	ClearError            bool
	ClearSendingStartedAt bool
}

type SendStats struct {
	SentToday    int
	SentLastHour int
	OldestInHour *time.Time
	LastSentAt   *time.Time
	BouncesToday int
}

type ApplicationRepository interface {
	Create(ctx context.Context, a application.Application, message string) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (application.Application, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status application.Status, limit, offset int) ([]application.Application, error)
	ListEvents(ctx context.Context, applicationID uuid.UUID) ([]application.Event, error)

	// Transition moves an application from -> to only if it is still in
	// from, writing the change and an audit event atomically.
	Transition(ctx context.Context, id uuid.UUID, from, to application.Status, ch Change) error
	// Claim moves a READY application to SENDING and returns the row as
	// stored after the claim. ErrStaleStatus if it was no longer READY.
	Claim(ctx context.Context, id uuid.UUID, at time.Time) (application.Application, error)
	UpdateDraft(ctx context.Context, userID, id uuid.UUID, toAddress, subject, body string) error
	MarkBounced(ctx context.Context, userID, id uuid.UUID, at time.Time) (bool, error)

	ListRecent(ctx context.Context, userID uuid.UUID, since time.Time) ([]application.Application, error)
	SendStats(ctx context.Context, userID uuid.UUID, dayStart, hourStart time.Time) (SendStats, error)
	ListDueReady(ctx context.Context, now time.Time, limit int) ([]application.Application, error)
	// ListStuck returns SENDING applications claimed before startedBefore.
	// uuid.Nil selects every user.
	ListStuck(ctx context.Context, userID uuid.UUID, startedBefore time.Time) ([]application.Application, error)
}

type PostgresApplicationRepository struct {
	db database.DB
}

func NewPostgresApplicationRepository(db database.DB) *PostgresApplicationRepository {
	return &PostgresApplicationRepository{db: db}
}

const applicationSelect = `SELECT a.id, a.tracked_listing_id, a.user_id, a.from_address, a.to_address,
	a.subject, a.body, a.cover_letter, a.resume_id, a.status, a.scheduled_at, a.sent_at,
	a.sending_started_at, COALESCE(a.error_message, ''), a.retry_count, a.recipient_confidence,
	COALESCE(a.message_id, ''), a.bounced_at, a.created_at, a.updated_at, l.title, l.company
	FROM applications a
	JOIN tracked_listings t ON t.id = a.tracked_listing_id
	JOIN listings l ON l.id = t.listing_id`

func (r *PostgresApplicationRepository) Create(ctx context.Context, a application.Application, message string) (uuid.UUID, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.RecipientConfidence == "" {
		a.RecipientConfidence = application.ConfidenceNone
	}

	err := database.WithTx(ctx, r.db, func(tx database.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO applications (id, tracked_listing_id, user_id, from_address, to_address, subject, body,
				cover_letter, resume_id, status, scheduled_at, error_message, recipient_confidence)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13)`,
			a.ID, a.TrackedListingID, a.UserID, a.FromAddress, a.ToAddress, a.Subject, a.Body,
			a.CoverLetter, a.ResumeID, string(a.Status), a.ScheduledAt, a.ErrorMessage, string(a.RecipientConfidence),
		)
		if err != nil {
			return err
		}
		return insertEvent(ctx, tx, a.ID, "", a.Status, message)
	})
	if err != nil {
		if postgres.IsUniqueViolation(err, "applications_one_open_per_tracked_uq") {
			return uuid.Nil, ErrOpenApplicationExists
		}
		return uuid.Nil, err
	}
	return a.ID, nil
}

func (r *PostgresApplicationRepository) GetByID(ctx context.Context, id uuid.UUID) (application.Application, error) {
	a, err := scanApplication(r.db.QueryRow(ctx, applicationSelect+` WHERE a.id = $1`, id))
	if err != nil {
		if database.IsNoRows(err) {
			return application.Application{}, ErrApplicationNotFound
		}
		return application.Application{}, err
	}
	return a, nil
}

func (r *PostgresApplicationRepository) ListByUser(ctx context.Context, userID uuid.UUID, status application.Status, limit, offset int) ([]application.Application, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return r.list(ctx,
		applicationSelect+`
		 WHERE a.user_id = $1 AND ($2 = '' OR a.status = $2)
		 ORDER BY a.created_at DESC
		 LIMIT $3 OFFSET $4`,
		userID, string(status), limit, offset,
	)
}

func (r *PostgresApplicationRepository) ListEvents(ctx context.Context, applicationID uuid.UUID) ([]application.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, application_id, from_status, to_status, message, created_at
		 FROM application_events
		 WHERE application_id = $1
		 ORDER BY created_at, id`,
		applicationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]application.Event, 0)
	for rows.Next() {
		var e application.Event
		var from, to string
		if err := rows.Scan(&e.ID, &e.ApplicationID, &from, &to, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.FromStatus = application.Status(from)
		e.ToStatus = application.Status(to)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresApplicationRepository) Transition(ctx context.Context, id uuid.UUID, from, to application.Status, ch Change) error {
	query, args := buildTransition(id, from, to, ch)
	return database.WithTx(ctx, r.db, func(tx database.Tx) error {
		n, err := tx.Exec(ctx, query, args...)
		if err != nil {
			if postgres.IsUniqueViolation(err, "applications_one_open_per_tracked_uq") {
				return ErrOpenApplicationExists
			}
			return err
		}
		if n == 0 {
			return ErrStaleStatus
		}
		return insertEvent(ctx, tx, id, from, to, ch.Message)
	})
}

func (r *PostgresApplicationRepository) Claim(ctx context.Context, id uuid.UUID, at time.Time) (application.Application, error) {
	var claimed application.Application
	err := database.WithTx(ctx, r.db, func(tx database.Tx) error {
		n, err := tx.Exec(ctx,
			`UPDATE applications SET status = 'SENDING', sending_started_at = $2, updated_at = now()
			 WHERE id = $1 AND status = 'READY'`,
			id, at,
		)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrStaleStatus
		}
		claimed, err = scanApplication(tx.QueryRow(ctx, applicationSelect+` WHERE a.id = $1`, id))
		if err != nil {
			return err
		}
		return insertEvent(ctx, tx, id, application.StatusReady, application.StatusSending, "claimed for sending")
	})
	if err != nil {
		return application.Application{}, err
	}
	return claimed, nil
}

func buildTransition(id uuid.UUID, from, to application.Status, ch Change) (string, []any) {
	args := []any{id, string(from), string(to)}
	sets := []string{"status = $3", "updated_at = now()"}
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	switch {
	case ch.ClearError:
		sets = append(sets, "error_message = NULL")
	case ch.ErrorMessage != nil:
		set("error_message", *ch.ErrorMessage)
	}
	switch {
	case ch.ClearSendingStartedAt:
		sets = append(sets, "sending_started_at = NULL")
	case ch.SendingStartedAt != nil:
		set("sending_started_at", *ch.SendingStartedAt)
	}
	if ch.RetryCount != nil {
		set("retry_count", *ch.RetryCount)
	}
	if ch.ScheduledAt != nil {
		set("scheduled_at", *ch.ScheduledAt)
	}
	if ch.SentAt != nil {
		set("sent_at", *ch.SentAt)
	}
	if ch.MessageID != nil {
		set("message_id", *ch.MessageID)
	}
	if ch.BouncedAt != nil {
		set("bounced_at", *ch.BouncedAt)
	}

	q := `UPDATE applications SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 AND status = $2`
	return q, args
}

func insertEvent(ctx context.Context, q database.Querier, appID uuid.UUID, from, to application.Status, message string) error {
	_, err := q.Exec(ctx,
		`INSERT INTO application_events (id, application_id, from_status, to_status, message)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), appID, string(from), string(to), message,
	)
	return err
}

func (r *PostgresApplicationRepository) UpdateDraft(ctx context.Context, userID, id uuid.UUID, toAddress, subject, body string) error {
	n, err := r.db.Exec(ctx,
		`UPDATE applications SET to_address = $3, subject = $4, body = $5, updated_at = now()
		 WHERE id = $1 AND user_id = $2 AND status = 'DRAFT'`,
		id, userID, toAddress, subject, body,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *PostgresApplicationRepository) MarkBounced(ctx context.Context, userID, id uuid.UUID, at time.Time) (bool, error) {
	n, err := r.db.Exec(ctx,
		`UPDATE applications SET bounced_at = $3, updated_at = now()
		 WHERE id = $1 AND user_id = $2 AND status IN ('SENT', 'FAILED') AND bounced_at IS NULL`,
		id, userID, at,
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListRecent returns the user's applications created or updated since the
// given instant, with listing title and company joined in.
func (r *PostgresApplicationRepository) ListRecent(ctx context.Context, userID uuid.UUID, since time.Time) ([]application.Application, error) {
	return r.list(ctx,
		applicationSelect+`
		 WHERE a.user_id = $1 AND (a.created_at >= $2 OR a.updated_at >= $2)
		 ORDER BY a.created_at DESC`,
		userID, since,
	)
}

func (r *PostgresApplicationRepository) SendStats(ctx context.Context, userID uuid.UUID, dayStart, hourStart time.Time) (SendStats, error) {
	var s SendStats
	row := r.db.QueryRow(ctx,
		`SELECT
			COUNT(1) FILTER (WHERE status = 'SENT' AND sent_at >= $2),
			COUNT(1) FILTER (WHERE status = 'SENT' AND sent_at >= $3),
			MIN(sent_at) FILTER (WHERE status = 'SENT' AND sent_at >= $3),
			MAX(sent_at) FILTER (WHERE status = 'SENT'),
			COUNT(1) FILTER (WHERE bounced_at >= $2)
		 FROM applications
		 WHERE user_id = $1`,
		userID, dayStart, hourStart,
	)
	if err := row.Scan(&s.SentToday, &s.SentLastHour, &s.OldestInHour, &s.LastSentAt, &s.BouncesToday); err != nil {
		return SendStats{}, err
	}
	return s, nil
}

func (r *PostgresApplicationRepository) ListDueReady(ctx context.Context, now time.Time, limit int) ([]application.Application, error) {
	if limit <= 0 {
		limit = 500
	}
	return r.list(ctx,
		applicationSelect+`
		 WHERE a.status = 'READY' AND (a.scheduled_at IS NULL OR a.scheduled_at <= $1)
		 ORDER BY a.user_id, a.scheduled_at NULLS FIRST, a.created_at
		 LIMIT $2`,
		now, limit,
	)
}

func (r *PostgresApplicationRepository) ListStuck(ctx context.Context, userID uuid.UUID, startedBefore time.Time) ([]application.Application, error) {
	if userID == uuid.Nil {
		return r.list(ctx,
			applicationSelect+`
			 WHERE a.status = 'SENDING' AND a.sending_started_at < $1
			 ORDER BY a.sending_started_at`,
			startedBefore,
		)
	}
	return r.list(ctx,
		applicationSelect+`
		 WHERE a.user_id = $1 AND a.status = 'SENDING' AND a.sending_started_at < $2
		 ORDER BY a.sending_started_at`,
		userID, startedBefore,
	)
}

func (r *PostgresApplicationRepository) list(ctx context.Context, query string, args ...any) ([]application.Application, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]application.Application, 0)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanApplication(row database.Row) (application.Application, error) {
	var a application.Application
	var status, confidence string
	err := row.Scan(
		&a.ID, &a.TrackedListingID, &a.UserID, &a.FromAddress, &a.ToAddress,
		&a.Subject, &a.Body, &a.CoverLetter, &a.ResumeID, &status, &a.ScheduledAt, &a.SentAt,
		&a.SendingStartedAt, &a.ErrorMessage, &a.RetryCount, &confidence,
		&a.MessageID, &a.BouncedAt, &a.CreatedAt, &a.UpdatedAt, &a.ListingTitle, &a.ListingCompany,
	)
	a.Status = application.Status(status)
	a.RecipientConfidence = application.ParseConfidence(confidence)
	return a, err
}
