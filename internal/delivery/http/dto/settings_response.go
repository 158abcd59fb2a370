package dto

import (
	"time"

	"autoapply/internal/domain/user"
)

// SettingsResponse mirrors the editable part of a user profile. Durations are
// exposed in the same units the update request accepts.
type SettingsResponse struct {
	Email               string   `json:"email"`
	Keywords            []string `json:"keywords"`
	PreferredCategories []string `json:"preferred_categories"`
	PreferredPlatforms  []string `json:"preferred_platforms"`
	City                string   `json:"city"`
	Country             string   `json:"country"`
	Timezone            string   `json:"timezone"`
	WorkTypes           []string `json:"work_types"`
	JobTypes            []string `json:"job_types"`
	ExperienceLevel     string   `json:"experience_level"`
	SalaryMin           *int     `json:"salary_min,omitempty"`
	SalaryMax           *int     `json:"salary_max,omitempty"`

	AutomationMode     string     `json:"automation_mode"`
	AutoApplyThreshold int        `json:"auto_apply_threshold"`
	MaxPerHour         int        `json:"max_per_hour"`
	MaxPerDay          int        `json:"max_per_day"`
	MinDelaySeconds    int        `json:"min_delay_seconds"`
	BounceCooldownHrs  int        `json:"bounce_cooldown_hours"`
	SenderEmail        string     `json:"sender_email"`
	PausedUntil        *time.Time `json:"paused_until,omitempty"`
	PauseReason        string     `json:"pause_reason,omitempty"`
}

type UpdateSettingsRequest struct {
	Keywords            *[]string `json:"keywords"`
	PreferredCategories *[]string `json:"preferred_categories"`
	PreferredPlatforms  *[]string `json:"preferred_platforms"`
	City                *string   `json:"city"`
	Country             *string   `json:"country"`
	Timezone            *string   `json:"timezone"`
	WorkTypes           *[]string `json:"work_types"`
	JobTypes            *[]string `json:"job_types"`
	ExperienceLevel     *string   `json:"experience_level"`
	SalaryMin           *int      `json:"salary_min"`
	SalaryMax           *int      `json:"salary_max"`

	AutomationMode     *string `json:"automation_mode"`
	AutoApplyThreshold *int    `json:"auto_apply_threshold"`
	MaxPerHour         *int    `json:"max_per_hour"`
	MaxPerDay          *int    `json:"max_per_day"`
	MinDelaySeconds    *int    `json:"min_delay_seconds"`
	BounceCooldownHrs  *int    `json:"bounce_cooldown_hours"`
	SenderEmail        *string `json:"sender_email"`
}

func NewSettingsResponse(p user.Profile) SettingsResponse {
	return SettingsResponse{
		Email:               p.Email,
		Keywords:            nonNil(p.Keywords),
		PreferredCategories: nonNil(p.PreferredCategories),
		PreferredPlatforms:  nonNil(p.PreferredPlatforms),
		City:                p.City,
		Country:             p.Country,
		Timezone:            p.Timezone,
		WorkTypes:           nonNil(p.WorkTypes),
		JobTypes:            nonNil(p.JobTypes),
		ExperienceLevel:     p.ExperienceLevel,
		SalaryMin:           p.SalaryMin,
		SalaryMax:           p.SalaryMax,
		AutomationMode:      string(p.AutomationMode),
		AutoApplyThreshold:  p.AutoApplyThreshold,
		MaxPerHour:          p.MaxPerHour,
		MaxPerDay:           p.MaxPerDay,
		MinDelaySeconds:     int(p.MinDelay / time.Second),
		BounceCooldownHrs:   int(p.BounceCooldown / time.Hour),
		SenderEmail:         p.SenderEmail,
		PausedUntil:         p.PausedUntil,
		PauseReason:         p.PauseReason,
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
