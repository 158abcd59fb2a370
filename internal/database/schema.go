package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Schema is what the repositories expect to find after migrations: the
// columns they select and write, and the unique constraints whose
// violations they translate into domain errors.
type Schema struct {
	Columns     map[string][]string
	Constraints []string
}

// RequiredSchema lists the storage the dispatch pipeline and the API depend on.
var RequiredSchema = Schema{
	Columns: map[string][]string{
		"users":         {"id", "email", "account_status", "onboarded"},
		"user_settings": {"user_id", "keywords", "automation_mode", "auto_apply_threshold", "timezone"},
		"listings": {
			"id", "source", "source_id", "title", "company", "location", "description", "salary_text",
			"job_type", "category", "skills", "url", "first_seen_at", "last_seen_at", "is_fresh", "is_active", "dedup_key",
		},
		"tracked_listings": {"id", "user_id", "listing_id", "score", "stage"},
		"applications": {
			"id", "tracked_listing_id", "user_id", "status", "scheduled_at", "sent_at", "sending_started_at",
			"error_message", "retry_count", "message_id", "bounced_at",
		},
		"application_events": {"id", "application_id", "from_status", "to_status", "message"},
	},
	Constraints: []string{
		"listings_dedup_key_uq",
		"listings_source_uq",
		"tracked_listings_user_listing_uq",
		"applications_one_open_per_tracked_uq",
	},
}

// EnsureColumns fails when table lacks any of columns.
func EnsureColumns(ctx context.Context, q Querier, table string, columns ...string) error {
	if q == nil {
		return fmt.Errorf("nil db")
	}
	if table == "" {
		return fmt.Errorf("empty table")
	}
	for _, col := range columns {
		if col == "" {
			return fmt.Errorf("empty column")
		}
	}

	rows, err := q.Query(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_schema = 'public' AND table_name = $1`,
		table,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	existing := map[string]struct{}{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return err
		}
		existing[c] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var missing []string
	for _, col := range columns {
		if _, ok := existing[col]; !ok {
			missing = append(missing, table+"."+col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema mismatch: missing column %s", strings.Join(missing, ", "))
	}
	return nil
}

// VerifySchema checks every table and constraint in s, reporting the first
// table that does not match.
func VerifySchema(ctx context.Context, q Querier, s Schema) error {
	tables := make([]string, 0, len(s.Columns))
	for t := range s.Columns {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		if err := EnsureColumns(ctx, q, t, s.Columns[t]...); err != nil {
			return err
		}
	}

	// Unique constraints are backed by an index of the same name.
	for _, name := range s.Constraints {
		var found bool
		if err := q.QueryRow(ctx, `SELECT to_regclass('public.' || $1) IS NOT NULL`, name).Scan(&found); err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("schema mismatch: missing constraint %s", name)
		}
	}
	return nil
}
