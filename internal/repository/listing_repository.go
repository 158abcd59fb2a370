package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autoapply/internal/database"
	"autoapply/internal/database/postgres"
	"autoapply/internal/domain/job"

	"github.com/google/uuid"
)

var (
	ErrListingNotFound = errors.New("listing not found")

	// ErrListingSourceConflict means the (source, source_id) pair already
	// belongs to a listing with a different composite key.
	ErrListingSourceConflict = errors.New("listing source id already stored under another key")
)

type UpsertOutcome string

const (
	UpsertInserted UpsertOutcome = "inserted"
	UpsertMerged   UpsertOutcome = "merged"
)

type ListingRepository interface {
	Upsert(ctx context.Context, l job.CanonicalListing) (uuid.UUID, UpsertOutcome, error)
	TouchBySource(ctx context.Context, source, sourceID string, seenAt time.Time) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (job.CanonicalListing, error)
	ListFresh(ctx context.Context, limit int) ([]job.CanonicalListing, error)
	MarkNotFresh(ctx context.Context, ids []uuid.UUID) (int64, error)
	CountFresh(ctx context.Context) (int, error)
}

type PostgresListingRepository struct {
	db database.DB
}

func NewPostgresListingRepository(db database.DB) *PostgresListingRepository {
	return &PostgresListingRepository{db: db}
}

const listingColumns = `id, source, source_id, title, company, location, description, salary_text,
	job_type, category, skills, url, first_seen_at, last_seen_at, is_fresh, is_active, dedup_key`

// mergedColumns are taken together from whichever variant has the longer
// description. Identity (source, source_id, dedup_key) and first_seen_at
// always stay with the stored row.
var mergedColumns = []string{
	"title", "company", "location", "description", "salary_text",
	"job_type", "category", "skills", "url",
}

const longerVariant = `length(EXCLUDED.description) > length(listings.description)`

// upsertListingSQL inserts a listing or merges a re-sighting into the row
// with the same dedup key. A re-sighting refreshes last_seen_at and
// reactivates the row; it becomes fresh again when its content was replaced
// or it had been deactivated.
var upsertListingSQL = func() string {
	sets := make([]string, 0, len(mergedColumns)+3)
	for _, col := range mergedColumns {
		sets = append(sets, fmt.Sprintf("%s = CASE WHEN %s THEN EXCLUDED.%s ELSE listings.%s END", col, longerVariant, col, col))
	}
	sets = append(sets,
		"last_seen_at = GREATEST(listings.last_seen_at, EXCLUDED.last_seen_at)",
		"is_fresh = listings.is_fresh OR NOT listings.is_active OR "+longerVariant,
		"is_active = true",
	)
	return `INSERT INTO listings (` + listingColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, true, true, $15)
		 ON CONFLICT ON CONSTRAINT listings_dedup_key_uq DO UPDATE SET
			` + strings.Join(sets, ",\n\t\t\t") + `
		 RETURNING id, (xmax = 0)`
}()

// Upsert stores a canonical listing keyed by its composite key. When the key
// already exists the variant with the longer description is kept whole.
func (r *PostgresListingRepository) Upsert(ctx context.Context, l job.CanonicalListing) (uuid.UUID, UpsertOutcome, error) {
	if l.DedupKey == "" {
		return uuid.Nil, "", fmt.Errorf("listing %q has no dedup key", l.Title)
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.FirstSeenAt.IsZero() {
		l.FirstSeenAt = time.Now().UTC()
	}
	if l.LastSeenAt.IsZero() {
		l.LastSeenAt = l.FirstSeenAt
	}
	skills := l.Skills
	if skills == nil {
		skills = []string{}
	}

	var id uuid.UUID
	var inserted bool
	row := r.db.QueryRow(ctx, upsertListingSQL,
		l.ID, l.Source, l.SourceID, l.Title, l.Company, l.Location, l.Description, l.SalaryText,
		l.JobType, l.Category, skills, l.URL, l.FirstSeenAt, l.LastSeenAt, l.DedupKey,
	)
	if err := row.Scan(&id, &inserted); err != nil {
		if postgres.IsUniqueViolation(err, "listings_source_uq") {
			return uuid.Nil, "", ErrListingSourceConflict
		}
		return uuid.Nil, "", err
	}
	if inserted {
		return id, UpsertInserted, nil
	}
	return id, UpsertMerged, nil
}

// TouchBySource records a sighting of a listing the source re-published
// under edited content, found by its (source, source_id) identity. The
// stored content and dedup key are kept.
func (r *PostgresListingRepository) TouchBySource(ctx context.Context, source, sourceID string, seenAt time.Time) (uuid.UUID, error) {
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}
	var id uuid.UUID
	err := r.db.QueryRow(ctx,
		`UPDATE listings SET
			last_seen_at = GREATEST(last_seen_at, $3),
			is_fresh = is_fresh OR NOT is_active,
			is_active = true
		 WHERE source = $1 AND source_id = $2
		 RETURNING id`,
		source, sourceID, seenAt,
	).Scan(&id)
	if err != nil {
		if database.IsNoRows(err) {
			return uuid.Nil, ErrListingNotFound
		}
		return uuid.Nil, err
	}
	return id, nil
}

func (r *PostgresListingRepository) GetByID(ctx context.Context, id uuid.UUID) (job.CanonicalListing, error) {
	row := r.db.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if err != nil {
		if database.IsNoRows(err) {
			return job.CanonicalListing{}, ErrListingNotFound
		}
		return job.CanonicalListing{}, err
	}
	return l, nil
}

func (r *PostgresListingRepository) ListFresh(ctx context.Context, limit int) ([]job.CanonicalListing, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+listingColumns+`
		 FROM listings
		 WHERE is_fresh AND is_active
		 ORDER BY first_seen_at DESC, id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]job.CanonicalListing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresListingRepository) MarkNotFresh(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return r.db.Exec(ctx, `UPDATE listings SET is_fresh = false WHERE id = ANY($1) AND is_fresh`, ids)
}

func (r *PostgresListingRepository) CountFresh(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(1) FROM listings WHERE is_fresh AND is_active`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanListing(row database.Row) (job.CanonicalListing, error) {
	var l job.CanonicalListing
	err := row.Scan(
		&l.ID, &l.Source, &l.SourceID, &l.Title, &l.Company, &l.Location, &l.Description, &l.SalaryText,
		&l.JobType, &l.Category, &l.Skills, &l.URL, &l.FirstSeenAt, &l.LastSeenAt, &l.IsFresh, &l.IsActive, &l.DedupKey,
	)
	return l, err
}
