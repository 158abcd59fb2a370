package usecase

import (
	"context"
	"math"
	"time"

	"autoapply/internal/domain/user"
	"autoapply/internal/metrics"
	"autoapply/internal/pkg/logging"
	"autoapply/internal/repository"

	"github.com/google/uuid"
)

const (
	ReasonPaused          = "paused"
	ReasonAccountInactive = "account_inactive"
	ReasonDailyCap        = "daily_cap"
	ReasonHourlyCap       = "hourly_cap"
	ReasonMinDelay        = "min_delay"
	ReasonBounceCooldown  = "bounce_cooldown"

	BounceThreshold = 3
)

type LimitStats struct {
	SentToday    int        `json:"sent_today"`
	MaxPerDay    int        `json:"max_per_day"`
	SentLastHour int        `json:"sent_last_hour"`
	MaxPerHour   int        `json:"max_per_hour"`
	BouncesToday int        `json:"bounces_today"`
	LastSentAt   *time.Time `json:"last_sent_at,omitempty"`
	PausedUntil  *time.Time `json:"paused_until,omitempty"`
	Timezone     string     `json:"timezone"`
}

// Decision is a value, not an error: a denial is a normal outcome.
type Decision struct {
	Allowed     bool       `json:"allowed"`
	Reason      string     `json:"reason,omitempty"`
	WaitSeconds int        `json:"wait_seconds"`
	Stats       LimitStats `json:"stats"`
}

type Limiter interface {
	CanSendNow(ctx context.Context, userID uuid.UUID) (Decision, error)
}

type limiterUsers interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (user.Profile, error)
	ApplyBouncePause(ctx context.Context, userID uuid.UUID, until, now, dayStart time.Time, reason string) (bool, error)
}

type limiterApplications interface {
	SendStats(ctx context.Context, userID uuid.UUID, dayStart, hourStart time.Time) (repository.SendStats, error)
}

// RateLimiter gates outbound sends per user. It reads current counts and
// decides; there is no global lock, the caller's conditional claim keeps a
// single application from being sent twice.
type RateLimiter struct {
	users      limiterUsers
	apps       limiterApplications
	defaultLoc *time.Location
	metrics    metrics.Recorder
	logger     *logging.Logger
	now        func() time.Time
}

func NewRateLimiter(users limiterUsers, apps limiterApplications, defaultTZ string, rec metrics.Recorder, logger *logging.Logger) *RateLimiter {
	loc, err := time.LoadLocation(defaultTZ)
	if err != nil || defaultTZ == "" {
		loc = time.UTC
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &RateLimiter{users: users, apps: apps, defaultLoc: loc, metrics: rec, logger: logger, now: time.Now}
}

func (l *RateLimiter) CanSendNow(ctx context.Context, userID uuid.UUID) (Decision, error) {
	p, err := l.users.GetProfile(ctx, userID)
	if err != nil {
		return Decision{}, err
	}

	now := l.now()
	loc := p.Location(l.defaultLoc)
	dayStart := startOfDay(now, loc)

	maxDay := p.MaxPerDay
	if maxDay <= 0 {
		maxDay = user.DefaultMaxPerDay
	}
	maxHour := p.MaxPerHour
	if maxHour <= 0 {
		maxHour = user.DefaultMaxPerHour
	}
	cooldown := p.BounceCooldown
	if cooldown <= 0 {
		cooldown = user.DefaultBounceCooldown
	}

	stats := LimitStats{MaxPerDay: maxDay, MaxPerHour: maxHour, PausedUntil: p.PausedUntil, Timezone: loc.String()}

	if p.PausedUntil != nil && now.Before(*p.PausedUntil) {
		return l.deny(userID, ReasonPaused, p.PausedUntil.Sub(now), stats), nil
	}
	if !p.IsActive() {
		return l.deny(userID, ReasonAccountInactive, 0, stats), nil
	}

	s, err := l.apps.SendStats(ctx, userID, dayStart, now.Add(-time.Hour))
	if err != nil {
		return Decision{}, err
	}
	stats.SentToday = s.SentToday
	stats.SentLastHour = s.SentLastHour
	stats.BouncesToday = s.BouncesToday
	stats.LastSentAt = s.LastSentAt

	if s.SentToday >= maxDay {
		next := startOfDay(dayStart.Add(36*time.Hour), loc)
		return l.deny(userID, ReasonDailyCap, next.Sub(now), stats), nil
	}
	if s.SentLastHour >= maxHour {
		wait := time.Minute
		if s.OldestInHour != nil {
			wait = s.OldestInHour.Add(time.Hour).Sub(now)
		}
		return l.deny(userID, ReasonHourlyCap, wait, stats), nil
	}
	if p.MinDelay > 0 && s.LastSentAt != nil {
		if since := now.Sub(*s.LastSentAt); since < p.MinDelay {
			return l.deny(userID, ReasonMinDelay, p.MinDelay-since, stats), nil
		}
	}

	if s.BouncesToday >= BounceThreshold {
		until := now.Add(cooldown)
		applied, err := l.users.ApplyBouncePause(ctx, userID, until, now, dayStart, "too many bounces today")
		if err != nil {
			return Decision{}, err
		}
		// Not applied and no pause recorded today when we read the profile:
		// a concurrent caller applied it in between.
		raced := !applied && (p.LastBouncePauseAt == nil || p.LastBouncePauseAt.Before(dayStart))
		if applied || raced {
			if applied {
				l.logger.Warn("bounce breaker tripped", "user_id", userID, "bounces_today", s.BouncesToday, "paused_until", until)
			}
			stats.PausedUntil = &until
			return l.deny(userID, ReasonBounceCooldown, cooldown, stats), nil
		}
	}

	return Decision{Allowed: true, Stats: stats}, nil
}

func (l *RateLimiter) deny(userID uuid.UUID, reason string, wait time.Duration, stats LimitStats) Decision {
	l.metrics.LimiterDenied(reason)
	l.logger.Debug("send denied", "user_id", userID, "reason", reason, "wait", wait)
	return Decision{Allowed: false, Reason: reason, WaitSeconds: waitSeconds(wait), Stats: stats}
}

// startOfDay returns local midnight of t's day in loc. Going through the
// calendar date keeps DST days right.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func waitSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
