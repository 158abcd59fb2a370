package repository

import (
	"context"
	"errors"
	"time"

	"autoapply/internal/database"
	"autoapply/internal/domain/user"

	"github.com/google/uuid"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	ListDispatchable(ctx context.Context) ([]uuid.UUID, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (user.Profile, error)
	SaveSettings(ctx context.Context, p user.Profile) error

	// ApplyBouncePause pauses the user until `until` unless a bounce pause was
	// already applied at or after dayStart. It reports whether this call
	// applied the pause.
	ApplyBouncePause(ctx context.Context, userID uuid.UUID, until, now, dayStart time.Time, reason string) (bool, error)
	ClearPause(ctx context.Context, userID uuid.UUID) error
}

type PostgresUserRepository struct {
	db database.DB
}

func NewPostgresUserRepository(db database.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) ListDispatchable(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT u.id
		 FROM users u
		 JOIN user_settings s ON s.user_id = u.id
		 WHERE u.onboarded AND u.account_status = 'ACTIVE'
		 ORDER BY u.created_at, u.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresUserRepository) GetProfile(ctx context.Context, userID uuid.UUID) (user.Profile, error) {
	var (
		p             user.Profile
		mode          string
		minDelaySec   int
		cooldownHours int
		pauseReason   *string
	)
	row := r.db.QueryRow(ctx,
		`SELECT u.id, u.email, u.account_status, u.onboarded,
			s.keywords, s.preferred_categories, s.preferred_platforms, s.city, s.country, s.timezone,
			s.work_types, s.job_types, s.experience_level, s.salary_min, s.salary_max,
			s.automation_mode, s.auto_apply_threshold, s.max_per_hour, s.max_per_day,
			s.min_delay_seconds, s.bounce_cooldown_hours, s.paused_until, s.pause_reason,
			s.last_bounce_pause_at, s.sender_email
		 FROM users u
		 JOIN user_settings s ON s.user_id = u.id
		 WHERE u.id = $1`,
		userID,
	)
	err := row.Scan(
		&p.UserID, &p.Email, &p.AccountStatus, &p.Onboarded,
		&p.Keywords, &p.PreferredCategories, &p.PreferredPlatforms, &p.City, &p.Country, &p.Timezone,
		&p.WorkTypes, &p.JobTypes, &p.ExperienceLevel, &p.SalaryMin, &p.SalaryMax,
		&mode, &p.AutoApplyThreshold, &p.MaxPerHour, &p.MaxPerDay,
		&minDelaySec, &cooldownHours, &p.PausedUntil, &pauseReason,
		&p.LastBouncePauseAt, &p.SenderEmail,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return user.Profile{}, ErrUserNotFound
		}
		return user.Profile{}, err
	}
	p.AutomationMode = user.AutomationMode(mode)
	p.MinDelay = time.Duration(minDelaySec) * time.Second
	p.BounceCooldown = time.Duration(cooldownHours) * time.Hour
	if pauseReason != nil {
		p.PauseReason = *pauseReason
	}
	return p, nil
}

func (r *PostgresUserRepository) SaveSettings(ctx context.Context, p user.Profile) error {
	n, err := r.db.Exec(ctx,
		`UPDATE user_settings SET
			keywords = $2, preferred_categories = $3, preferred_platforms = $4,
			city = $5, country = $6, timezone = $7, work_types = $8, job_types = $9,
			experience_level = $10, salary_min = $11, salary_max = $12,
			automation_mode = $13, auto_apply_threshold = $14, max_per_hour = $15, max_per_day = $16,
			min_delay_seconds = $17, bounce_cooldown_hours = $18, sender_email = $19,
			updated_at = now()
		 WHERE user_id = $1`,
		p.UserID, nonNil(p.Keywords), nonNil(p.PreferredCategories), nonNil(p.PreferredPlatforms),
		p.City, p.Country, p.Timezone, nonNil(p.WorkTypes), nonNil(p.JobTypes),
		p.ExperienceLevel, p.SalaryMin, p.SalaryMax,
		string(p.AutomationMode), p.AutoApplyThreshold, p.MaxPerHour, p.MaxPerDay,
		int(p.MinDelay/time.Second), int(p.BounceCooldown/time.Hour), p.SenderEmail,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresUserRepository) ApplyBouncePause(ctx context.Context, userID uuid.UUID, until, now, dayStart time.Time, reason string) (bool, error) {
	n, err := r.db.Exec(ctx,
		`UPDATE user_settings
		 SET paused_until = $2, pause_reason = $3, last_bounce_pause_at = $4, updated_at = now()
		 WHERE user_id = $1
		   AND (last_bounce_pause_at IS NULL OR last_bounce_pause_at < $5)`,
		userID, until, reason, now, dayStart,
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresUserRepository) ClearPause(ctx context.Context, userID uuid.UUID) error {
	n, err := r.db.Exec(ctx,
		`UPDATE user_settings SET paused_until = NULL, pause_reason = NULL, updated_at = now() WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
