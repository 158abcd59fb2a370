package repository

import (
	"context"
	"errors"

	"autoapply/internal/database"
	"autoapply/internal/domain/match"

	"github.com/google/uuid"
)

var ErrTrackedListingNotFound = errors.New("tracked listing not found")

type TrackedListingRepository interface {
	// Insert creates the tracked row unless one already exists for the
	// (user, listing) pair. created is false on conflict.
	Insert(ctx context.Context, t match.TrackedListing) (id uuid.UUID, created bool, err error)
	ListingIDsByUser(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]struct{}, error)
	ListByUser(ctx context.Context, userID uuid.UUID, includeDismissed bool, limit, offset int) ([]match.TrackedListing, error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (match.TrackedListing, error)
	UpdateStage(ctx context.Context, userID, id uuid.UUID, stage match.Stage) error
	SetDismissed(ctx context.Context, userID, id uuid.UUID, dismissed bool) error
}

type PostgresTrackedListingRepository struct {
	db database.DB
}

func NewPostgresTrackedListingRepository(db database.DB) *PostgresTrackedListingRepository {
	return &PostgresTrackedListingRepository{db: db}
}

func (r *PostgresTrackedListingRepository) Insert(ctx context.Context, t match.TrackedListing) (uuid.UUID, bool, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Stage == "" {
		t.Stage = match.StageSaved
	}
	n, err := r.db.Exec(ctx,
		`INSERT INTO tracked_listings (id, user_id, listing_id, score, reasons, stage)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT ON CONSTRAINT tracked_listings_user_listing_uq DO NOTHING`,
		t.ID, t.UserID, t.ListingID, t.Score, nonNil(t.Reasons), string(t.Stage),
	)
	if err != nil {
		return uuid.Nil, false, err
	}
	if n == 0 {
		return uuid.Nil, false, nil
	}
	return t.ID, true, nil
}

func (r *PostgresTrackedListingRepository) ListingIDsByUser(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	rows, err := r.db.Query(ctx, `SELECT listing_id FROM tracked_listings WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[uuid.UUID]struct{}{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

const trackedSelect = `SELECT t.id, t.user_id, t.listing_id, t.score, t.reasons, t.stage, t.dismissed,
	t.created_at, t.updated_at, l.title, l.company, l.location, l.url, l.source
	FROM tracked_listings t
	JOIN listings l ON l.id = t.listing_id`

func (r *PostgresTrackedListingRepository) ListByUser(ctx context.Context, userID uuid.UUID, includeDismissed bool, limit, offset int) ([]match.TrackedListing, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx,
		trackedSelect+`
		 WHERE t.user_id = $1 AND ($2 OR NOT t.dismissed)
		 ORDER BY t.score DESC, t.created_at DESC
		 LIMIT $3 OFFSET $4`,
		userID, includeDismissed, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]match.TrackedListing, 0)
	for rows.Next() {
		t, err := scanTracked(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresTrackedListingRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (match.TrackedListing, error) {
	t, err := scanTracked(r.db.QueryRow(ctx, trackedSelect+` WHERE t.id = $1 AND t.user_id = $2`, id, userID))
	if err != nil {
		if database.IsNoRows(err) {
			return match.TrackedListing{}, ErrTrackedListingNotFound
		}
		return match.TrackedListing{}, err
	}
	return t, nil
}

func (r *PostgresTrackedListingRepository) UpdateStage(ctx context.Context, userID, id uuid.UUID, stage match.Stage) error {
	n, err := r.db.Exec(ctx,
		`UPDATE tracked_listings SET stage = $3, updated_at = now() WHERE id = $1 AND user_id = $2`,
		id, userID, string(stage),
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTrackedListingNotFound
	}
	return nil
}

func (r *PostgresTrackedListingRepository) SetDismissed(ctx context.Context, userID, id uuid.UUID, dismissed bool) error {
	n, err := r.db.Exec(ctx,
		`UPDATE tracked_listings SET dismissed = $3, updated_at = now() WHERE id = $1 AND user_id = $2`,
		id, userID, dismissed,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTrackedListingNotFound
	}
	return nil
}

func scanTracked(row database.Row) (match.TrackedListing, error) {
	var t match.TrackedListing
	var stage string
	err := row.Scan(&t.ID, &t.UserID, &t.ListingID, &t.Score, &t.Reasons, &stage, &t.Dismissed,
		&t.CreatedAt, &t.UpdatedAt, &t.Title, &t.Company, &t.Location, &t.URL, &t.Source)
	t.Stage = match.Stage(stage)
	return t, err
}
