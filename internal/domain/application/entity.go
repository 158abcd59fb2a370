package application

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusReady     Status = "READY"
	StatusSending   Status = "SENDING"
	StatusSent      Status = "SENT"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal statuses end an attempt chain. Only SENT is final; FAILED and
// CANCELLED can be re-entered manually.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusReady, StatusSending, StatusSent, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
	ConfidenceNone   Confidence = "NONE"
)

func ParseConfidence(s string) Confidence {
	switch Confidence(s) {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return Confidence(s)
	}
	return ConfidenceNone
}

type Application struct {
	ID                  uuid.UUID
	TrackedListingID    uuid.UUID
	UserID              uuid.UUID
	FromAddress         string
	ToAddress           string
	Subject             string
	Body                string
	CoverLetter         string
	ResumeID            *uuid.UUID
	Status              Status
	ScheduledAt         *time.Time
	SentAt              *time.Time
	SendingStartedAt    *time.Time
	ErrorMessage        string
	RetryCount          int
	RecipientConfidence Confidence
	MessageID           string
	BouncedAt           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time

	// listing fields joined for duplicate checks and display
	ListingTitle   string
	ListingCompany string
}

// Event is one audit row appended on every status change.
type Event struct {
	ID            uuid.UUID
	ApplicationID uuid.UUID
	FromStatus    Status
	ToStatus      Status
	Message       string
	CreatedAt     time.Time
}
