package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"autoapply/internal/domain/job"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertListingSQL_KeepsLongerVariantWhole(t *testing.T) {
	content := []string{"title", "company", "location", "description", "salary_text", "job_type", "category", "skills", "url"}
	for _, col := range content {
		want := col + " = CASE WHEN length(EXCLUDED.description) > length(listings.description) THEN EXCLUDED." + col + " ELSE listings." + col + " END"
		assert.Contains(t, upsertListingSQL, want, col)
	}
	for _, col := range []string{"source", "source_id", "dedup_key", "first_seen_at"} {
		assert.NotContains(t, upsertListingSQL, "\t"+col+" = ", "%s stays with the stored row", col)
	}
	assert.Contains(t, upsertListingSQL, "last_seen_at = GREATEST(listings.last_seen_at, EXCLUDED.last_seen_at)")
	assert.Contains(t, upsertListingSQL, "is_fresh = listings.is_fresh OR NOT listings.is_active OR length(EXCLUDED.description) > length(listings.description)")
	assert.Contains(t, upsertListingSQL, "is_active = true")
}

func TestUpsert_MergedOutcome(t *testing.T) {
	existing := uuid.New()
	db := &fakeDB{scan: func(dest ...any) error {
		*dest[0].(*uuid.UUID) = existing
		*dest[1].(*bool) = false
		return nil
	}}
	repo := NewPostgresListingRepository(db)

	id, outcome, err := repo.Upsert(context.Background(), job.CanonicalListing{
		Source: "acme", SourceID: "a-9", Title: "Go Engineer", Company: "Acme", DedupKey: "go engineer|acme",
		Description: "a much longer description of the role", Category: "Data",
	})
	require.NoError(t, err)
	assert.Equal(t, existing, id)
	assert.Equal(t, UpsertMerged, outcome)
	require.Len(t, db.calls, 1)
	assert.Equal(t, upsertListingSQL, db.calls[0].query)
	assert.Equal(t, "Data", db.calls[0].args[9])
}

func TestUpsert_SourceIDConflict(t *testing.T) {
	db := &fakeDB{scan: func(dest ...any) error {
		return &pgconn.PgError{Code: "23505", ConstraintName: "listings_source_uq"}
	}}
	repo := NewPostgresListingRepository(db)

	_, _, err := repo.Upsert(context.Background(), job.CanonicalListing{Source: "board", SourceID: "7", DedupKey: "sre (edited)|initech"})
	assert.ErrorIs(t, err, ErrListingSourceConflict)
}

func TestTouchBySource(t *testing.T) {
	stored := uuid.New()
	db := &fakeDB{scan: func(dest ...any) error {
		*dest[0].(*uuid.UUID) = stored
		return nil
	}}
	repo := NewPostgresListingRepository(db)
	seen := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	id, err := repo.TouchBySource(context.Background(), "board", "7", seen)
	require.NoError(t, err)
	assert.Equal(t, stored, id)
	require.Len(t, db.calls, 1)
	q := db.calls[0].query
	assert.True(t, strings.HasPrefix(strings.TrimSpace(q), "UPDATE listings SET"))
	assert.Contains(t, q, "WHERE source = $1 AND source_id = $2")
	assert.NotContains(t, q, "title")
	assert.Equal(t, []any{"board", "7", seen}, db.calls[0].args)

	db.scan = func(dest ...any) error { return pgx.ErrNoRows }
	_, err = repo.TouchBySource(context.Background(), "board", "8", seen)
	assert.ErrorIs(t, err, ErrListingNotFound)
}
