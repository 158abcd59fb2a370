package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"autoapply/internal/config"
	"autoapply/internal/database"
	"autoapply/internal/database/migration"
	dbpostgres "autoapply/internal/database/postgres"
	"autoapply/internal/delivery/http/handler"
	"autoapply/internal/delivery/http/middleware"
	"autoapply/internal/delivery/http/routes"
	v1 "autoapply/internal/delivery/http/routes/v1"
	"autoapply/internal/domain/job"
	"autoapply/internal/pipeline"
	"autoapply/internal/pkg/jwt"
	"autoapply/internal/pkg/logging"
	"autoapply/internal/repository"
	"autoapply/internal/usecase"
	"autoapply/migrations"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "integration-secret"

type semanticResponse struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type trackedItem struct {
	ID        uuid.UUID `json:"id"`
	ListingID uuid.UUID `json:"listing_id"`
	Title     string    `json:"title"`
	Score     int       `json:"score"`
	Stage     string    `json:"stage"`
}

type applicationItem struct {
	ID               uuid.UUID `json:"id"`
	TrackedListingID uuid.UUID `json:"tracked_listing_id"`
	Status           string    `json:"status"`
	ErrorMessage     string    `json:"error_message"`
}

func TestIntegration_SemiAutoDraftVisibleOverAPI(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db := connectTestDB(t, ctx)
	defer func() { _ = db.Close() }()

	runMigrations(t, ctx, db)

	seed := seedDummyData(t, ctx, db)
	defer cleanupSeed(t, ctx, db, seed)

	users := repository.NewPostgresUserRepository(db)
	apps := repository.NewPostgresApplicationRepository(db)
	tracked := repository.NewPostgresTrackedListingRepository(db)
	listings := repository.NewPostgresListingRepository(db)

	limiter := usecase.NewRateLimiter(users, apps, "UTC", nil, logging.Nop())
	appUC := usecase.NewApplicationUsecase(apps, tracked, limiter, nil, nil, nil, logging.Nop(), usecase.ApplicationOptions{})

	p := pipeline.NewDispatchPipeline(pipeline.DispatchDeps{
		Listings:     listings,
		Users:        users,
		Resumes:      repository.NewPostgresResumeRepository(db),
		Tracked:      tracked,
		Applications: apps,
		Sender:       appUC,
		Limiter:      limiter,
		Guard:        usecase.NewDuplicateGuard(apps, 0),
	}, config.DispatchConfig{VisibilityThreshold: 30, DraftThreshold: 40, RunBudget: time.Minute, Workers: 2})

	stats, err := p.Run(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.Tracked, 1)
	assert.GreaterOrEqual(t, stats.Drafts, 1)

	app := newTestFiberApp(t, tracked, appUC)
	tok := signToken(t, seed.userID)

	var items []trackedItem
	callAPI(t, app, tok, "/api/v1/me/tracked-listings", &items)
	var mine *trackedItem
	for i := range items {
		if items[i].ListingID == seed.listingID {
			mine = &items[i]
		}
	}
	require.NotNil(t, mine, "seeded listing is tracked")
	assert.Equal(t, "SAVED", mine.Stage)
	assert.GreaterOrEqual(t, mine.Score, 40)

	var drafts []applicationItem
	callAPI(t, app, tok, "/api/v1/me/applications?status=DRAFT", &drafts)
	var draft *applicationItem
	for i := range drafts {
		if drafts[i].TrackedListingID == mine.ID {
			draft = &drafts[i]
		}
	}
	require.NotNil(t, draft, "draft created for the tracked listing")
	assert.Contains(t, draft.ErrorMessage, "generator", "draft records why content is missing")
}

func TestIntegration_ListingResighting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := connectTestDB(t, ctx)
	defer func() { _ = db.Close() }()
	runMigrations(t, ctx, db)

	repo := repository.NewPostgresListingRepository(db)
	marker := strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	first := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Second)

	short := job.Canonicalize(job.RawListing{
		Source: "it-x", SourceID: "x-" + marker, Title: "Data Engineer " + marker, Company: "Merge Co",
		Category: "Eng", Description: "short", URL: "https://x.example.test/" + marker,
	})
	short.FirstSeenAt, short.LastSeenAt = first, first
	id, outcome, err := repo.Upsert(ctx, short)
	require.NoError(t, err)
	require.Equal(t, repository.UpsertInserted, outcome)
	defer func() { _, _ = db.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id) }()

	_, err = repo.MarkNotFresh(ctx, []uuid.UUID{id})
	require.NoError(t, err)

	long := job.Canonicalize(job.RawListing{
		Source: "it-y", SourceID: "y-" + marker, Title: "Data Engineer " + marker, Company: "Merge Co",
		Category: "Data", Description: "a much longer description of the same role", URL: "https://y.example.test/" + marker,
	})
	require.Equal(t, short.DedupKey, long.DedupKey)
	mergedID, outcome, err := repo.Upsert(ctx, long)
	require.NoError(t, err)
	assert.Equal(t, repository.UpsertMerged, outcome)
	assert.Equal(t, id, mergedID)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, long.Description, got.Description)
	assert.Equal(t, "Data", got.Category, "content comes from the kept variant")
	assert.Equal(t, long.URL, got.URL)
	assert.Equal(t, "it-x", got.Source, "identity stays with the stored row")
	assert.True(t, got.IsFresh, "replaced content is fresh again")
	assert.True(t, first.Equal(got.FirstSeenAt))

	_, err = repo.MarkNotFresh(ctx, []uuid.UUID{id})
	require.NoError(t, err)
	seen := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	touched, err := repo.TouchBySource(ctx, "it-x", "x-"+marker, seen)
	require.NoError(t, err)
	assert.Equal(t, id, touched)

	got, err = repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, seen.Equal(got.LastSeenAt))
	assert.False(t, got.IsFresh, "an unchanged active listing is not re-offered")
}

func connectTestDB(t *testing.T, ctx context.Context) database.DB {
	t.Helper()

	host := stringsOrDefault(os.Getenv("AUTOAPPLY_TEST_DB_HOST"), os.Getenv("DB_HOST"))
	port := stringsOrDefault(os.Getenv("AUTOAPPLY_TEST_DB_PORT"), os.Getenv("DB_PORT"))
	name := stringsOrDefault(os.Getenv("AUTOAPPLY_TEST_DB_NAME"), os.Getenv("DB_NAME"))
	user := stringsOrDefault(os.Getenv("AUTOAPPLY_TEST_DB_USER"), os.Getenv("DB_USER"))
	pass := stringsOrDefault(os.Getenv("AUTOAPPLY_TEST_DB_PASSWORD"), os.Getenv("DB_PASSWORD"))
	ssl := stringsOrDefault(os.Getenv("AUTOAPPLY_TEST_DB_SSL_MODE"), os.Getenv("DB_SSL_MODE"))

	if host == "" || port == "" || name == "" || user == "" {
		t.Skip("missing test DB env vars: set AUTOAPPLY_TEST_DB_HOST/PORT/NAME/USER/PASSWORD (or DB_HOST/DB_PORT/DB_NAME/DB_USER/DB_PASSWORD)")
	}
	if ssl == "" {
		ssl = "disable"
	}

	db, err := dbpostgres.Connect(ctx, config.DatabaseConfig{
		DBHost:     host,
		DBPort:     port,
		DBName:     name,
		DBUser:     user,
		DBPassword: pass,
		DBSSLMode:  ssl,
	})
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	return db
}

func runMigrations(t *testing.T, ctx context.Context, db database.DB) {
	t.Helper()

	r := migration.Runner{FS: migrations.FS, Logger: logging.Nop()}
	if err := r.Run(ctx, db.SQLDB()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
}

type seededIDs struct {
	userID    uuid.UUID
	listingID uuid.UUID
}

func seedDummyData(t *testing.T, ctx context.Context, db database.DB) seededIDs {
	t.Helper()

	var out seededIDs
	out.userID = uuid.New()
	email := fmt.Sprintf("it-%s@example.test", out.userID.String()[:8])

	_, err := db.Exec(ctx,
		`INSERT INTO users (id, email, account_status, onboarded) VALUES ($1,$2,'ACTIVE',true)`,
		out.userID, email,
	)
	require.NoError(t, err, "seed user")

	_, err = db.Exec(ctx,
		`INSERT INTO user_settings (user_id, keywords, automation_mode, timezone) VALUES ($1,$2,'SEMI_AUTO','UTC')`,
		out.userID, []string{"golang", "postgres"},
	)
	require.NoError(t, err, "seed settings")

	// A title unique to this run keeps the dedup key from colliding with
	// leftovers of earlier runs.
	marker := strings.ReplaceAll(out.userID.String()[:8], "-", "")
	l := job.Canonicalize(job.RawListing{
		Source:      "it-board",
		SourceID:    "it-" + marker,
		Title:       "Golang Postgres Engineer " + marker,
		Company:     "Integration Co",
		Location:    "Remote",
		Description: "<p>Build services in Golang on Postgres.</p>",
		URL:         "https://example.test/jobs/" + marker,
	})
	id, _, err := repository.NewPostgresListingRepository(db).Upsert(ctx, l)
	require.NoError(t, err, "seed listing")
	out.listingID = id

	return out
}

func cleanupSeed(t *testing.T, ctx context.Context, db database.DB, seed seededIDs) {
	t.Helper()

	_, _ = db.Exec(ctx, `DELETE FROM users WHERE id = $1`, seed.userID)
	_, _ = db.Exec(ctx, `DELETE FROM tracked_listings WHERE listing_id = $1`, seed.listingID)
	_, _ = db.Exec(ctx, `DELETE FROM listings WHERE id = $1`, seed.listingID)
}

func newTestFiberApp(t *testing.T, tracked repository.TrackedListingRepository, appUC usecase.ApplicationUsecase) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{})
	errMw := middleware.NewErrorMiddleware(logging.Nop())
	app.Use(errMw.Middleware())

	auth := middleware.NewAuthMiddleware(jwt.NewHMACService(testSecret))
	routes.NewRegistry(nil, nil, auth, v1.Handlers{
		TrackedListings: handler.NewTrackedListingHandler(usecase.NewTrackedListingUsecase(tracked)),
		Applications:    handler.NewApplicationHandler(appUC),
	}).Register(app)
	return app
}

func signToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()

	tok, err := jwt.NewHMACService(testSecret).Sign(userID, "", time.Hour)
	require.NoError(t, err)
	return tok
}

func callAPI(t *testing.T, app *fiber.App, tok, path string, out any) {
	t.Helper()

	req := httptest.NewRequest("GET", path, nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := app.Test(req)
	require.NoError(t, err, path)
	defer resp.Body.Close()

	var sr semanticResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sr), path)
	require.Equal(t, 200, sr.Status, "%s: %s", path, sr.Message)
	require.Equal(t, "ok", sr.Message)
	require.NoError(t, json.Unmarshal(sr.Data, out), path)
}

func stringsOrDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
