package usecase

import (
	"context"
	"strings"
	"time"

	"autoapply/internal/domain/user"
	"autoapply/internal/infrastructure/resolver"
	"autoapply/internal/repository"

	"github.com/google/uuid"
)

// SettingsUpdate is a partial update; nil fields are kept.
type SettingsUpdate struct {
	Keywords            *[]string
	PreferredCategories *[]string
	PreferredPlatforms  *[]string
	City                *string
	Country             *string
	Timezone            *string
	WorkTypes           *[]string
	JobTypes            *[]string
	ExperienceLevel     *string
	SalaryMin           *int
	SalaryMax           *int

	AutomationMode     *string
	AutoApplyThreshold *int
	MaxPerHour         *int
	MaxPerDay          *int
	MinDelaySeconds    *int
	BounceCooldownHrs  *int
	SenderEmail        *string
}

type SettingsUsecase interface {
	Get(ctx context.Context, userID uuid.UUID) (user.Profile, error)
	Update(ctx context.Context, userID uuid.UUID, in SettingsUpdate) (user.Profile, error)
	Resume(ctx context.Context, userID uuid.UUID) (user.Profile, error)
	RateStatus(ctx context.Context, userID uuid.UUID) (Decision, error)
}

type statsCache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Settings struct {
	users    repository.UserRepository
	limiter  Limiter
	cache    statsCache
	statsTTL time.Duration
}

func NewSettingsUsecase(users repository.UserRepository, limiter Limiter, cache statsCache, statsTTL time.Duration) *Settings {
	return &Settings{users: users, limiter: limiter, cache: cache, statsTTL: statsTTL}
}

func rateStatusKey(userID uuid.UUID) string {
	return "ratelimit:status:" + userID.String()
}

func (u *Settings) Get(ctx context.Context, userID uuid.UUID) (user.Profile, error) {
	p, err := u.users.GetProfile(ctx, userID)
	if err != nil {
		return user.Profile{}, mapRepoErr(err)
	}
	return p, nil
}

func (u *Settings) Update(ctx context.Context, userID uuid.UUID, in SettingsUpdate) (user.Profile, error) {
	p, err := u.Get(ctx, userID)
	if err != nil {
		return user.Profile{}, err
	}

	if in.Keywords != nil {
		p.Keywords = cleanList(*in.Keywords)
	}
	if in.PreferredCategories != nil {
		p.PreferredCategories = cleanList(*in.PreferredCategories)
	}
	if in.PreferredPlatforms != nil {
		p.PreferredPlatforms = cleanList(*in.PreferredPlatforms)
	}
	if in.City != nil {
		p.City = strings.TrimSpace(*in.City)
	}
	if in.Country != nil {
		p.Country = strings.TrimSpace(*in.Country)
	}
	if in.Timezone != nil {
		tz := strings.TrimSpace(*in.Timezone)
		if tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return user.Profile{}, ErrInvalidInput
			}
		}
		p.Timezone = tz
	}
	if in.WorkTypes != nil {
		p.WorkTypes = cleanList(*in.WorkTypes)
	}
	if in.JobTypes != nil {
		p.JobTypes = cleanList(*in.JobTypes)
	}
	if in.ExperienceLevel != nil {
		lvl := strings.ToLower(strings.TrimSpace(*in.ExperienceLevel))
		switch lvl {
		case "", user.LevelEntry, user.LevelMid, user.LevelSenior, user.LevelLead:
		default:
			return user.Profile{}, ErrInvalidInput
		}
		p.ExperienceLevel = lvl
	}
	if in.SalaryMin != nil {
		p.SalaryMin = in.SalaryMin
	}
	if in.SalaryMax != nil {
		p.SalaryMax = in.SalaryMax
	}
	if p.SalaryMin != nil && p.SalaryMax != nil && *p.SalaryMin > *p.SalaryMax {
		return user.Profile{}, ErrInvalidInput
	}

	if in.AutomationMode != nil {
		m := user.AutomationMode(strings.ToUpper(strings.TrimSpace(*in.AutomationMode)))
		if !m.Valid() {
			return user.Profile{}, ErrInvalidInput
		}
		p.AutomationMode = m
	}
	if in.AutoApplyThreshold != nil {
		if *in.AutoApplyThreshold < 0 || *in.AutoApplyThreshold > 100 {
			return user.Profile{}, ErrInvalidInput
		}
		p.AutoApplyThreshold = *in.AutoApplyThreshold
	}
	if in.MaxPerHour != nil {
		if *in.MaxPerHour < 1 {
			return user.Profile{}, ErrInvalidInput
		}
		p.MaxPerHour = *in.MaxPerHour
	}
	if in.MaxPerDay != nil {
		if *in.MaxPerDay < 1 {
			return user.Profile{}, ErrInvalidInput
		}
		p.MaxPerDay = *in.MaxPerDay
	}
	if in.MinDelaySeconds != nil {
		if *in.MinDelaySeconds < 0 {
			return user.Profile{}, ErrInvalidInput
		}
		p.MinDelay = time.Duration(*in.MinDelaySeconds) * time.Second
	}
	if in.BounceCooldownHrs != nil {
		if *in.BounceCooldownHrs < 1 {
			return user.Profile{}, ErrInvalidInput
		}
		p.BounceCooldown = time.Duration(*in.BounceCooldownHrs) * time.Hour
	}
	if in.SenderEmail != nil {
		addr := strings.TrimSpace(*in.SenderEmail)
		if addr != "" {
			norm, ok := resolver.NormalizeAddress(addr)
			if !ok {
				return user.Profile{}, ErrInvalidInput
			}
			addr = norm
		}
		p.SenderEmail = addr
	}

	if err := u.users.SaveSettings(ctx, p); err != nil {
		return user.Profile{}, mapRepoErr(err)
	}
	u.invalidate(ctx, userID)
	return p, nil
}

// Resume lifts a pause early, including a bounce pause.
func (u *Settings) Resume(ctx context.Context, userID uuid.UUID) (user.Profile, error) {
	if err := u.users.ClearPause(ctx, userID); err != nil {
		return user.Profile{}, mapRepoErr(err)
	}
	u.invalidate(ctx, userID)
	return u.Get(ctx, userID)
}

// RateStatus is the limiter decision for display, cached briefly.
func (u *Settings) RateStatus(ctx context.Context, userID uuid.UUID) (Decision, error) {
	var d Decision
	if u.cache != nil {
		if ok, err := u.cache.GetJSON(ctx, rateStatusKey(userID), &d); err == nil && ok {
			return d, nil
		}
	}
	d, err := u.limiter.CanSendNow(ctx, userID)
	if err != nil {
		return Decision{}, mapRepoErr(err)
	}
	if u.cache != nil && u.statsTTL > 0 {
		_ = u.cache.SetJSON(ctx, rateStatusKey(userID), d, u.statsTTL)
	}
	return d, nil
}

func (u *Settings) invalidate(ctx context.Context, userID uuid.UUID) {
	if u.cache != nil {
		_ = u.cache.Delete(ctx, rateStatusKey(userID))
	}
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}
