package user

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type AutomationMode string

const (
	ModeManual   AutomationMode = "MANUAL"
	ModeSemiAuto AutomationMode = "SEMI_AUTO"
	ModeFullAuto AutomationMode = "FULL_AUTO"
)

func (m AutomationMode) Valid() bool {
	switch m {
	case ModeManual, ModeSemiAuto, ModeFullAuto:
		return true
	}
	return false
}

const (
	AccountActive    = "ACTIVE"
	AccountSuspended = "SUSPENDED"
)

const (
	LevelEntry  = "entry"
	LevelMid    = "mid"
	LevelSenior = "senior"
	LevelLead   = "lead"
)

const (
	DefaultAutoApplyThreshold = 80
	DefaultMaxPerHour         = 5
	DefaultMaxPerDay          = 20
	DefaultMinDelay           = 2 * time.Minute
	DefaultBounceCooldown     = 24 * time.Hour
)

// Profile is the per-user view read by matching and the rate limiter.
type Profile struct {
	UserID              uuid.UUID
	Email               string
	Keywords            []string
	PreferredCategories []string
	PreferredPlatforms  []string
	City                string
	Country             string
	Timezone            string
	WorkTypes           []string
	JobTypes            []string
	ExperienceLevel     string
	SalaryMin           *int
	SalaryMax           *int

	AutomationMode     AutomationMode
	AutoApplyThreshold int
	MaxPerHour         int
	MaxPerDay          int
	MinDelay           time.Duration
	BounceCooldown     time.Duration
	PausedUntil        *time.Time
	PauseReason        string
	LastBouncePauseAt  *time.Time

	AccountStatus string
	Onboarded     bool
	SenderEmail   string
}

// AcceptsRemote is true when the user has no work-type preference or lists
// remote among them.
func (p Profile) AcceptsRemote() bool {
	if len(p.WorkTypes) == 0 {
		return true
	}
	for _, w := range p.WorkTypes {
		if strings.EqualFold(strings.TrimSpace(w), "remote") {
			return true
		}
	}
	return false
}

func (p Profile) IsActive() bool {
	return strings.EqualFold(p.AccountStatus, AccountActive)
}

// Location returns the user's configured zone, falling back to def and then UTC.
func (p Profile) Location(def *time.Location) *time.Location {
	if tz := strings.TrimSpace(p.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	if def != nil {
		return def
	}
	return time.UTC
}

type Resume struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Content   string
	Skills    []string
	IsDefault bool
	FileRef   string
	CreatedAt time.Time
}
