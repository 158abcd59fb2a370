package match

import (
	"time"

	"github.com/google/uuid"
)

type Stage string

const (
	StageSaved     Stage = "SAVED"
	StageApplied   Stage = "APPLIED"
	StageInterview Stage = "INTERVIEW"
	StageRejected  Stage = "REJECTED"
	StageGhosted   Stage = "GHOSTED"
	StageOffer     Stage = "OFFER"
)

func (s Stage) Valid() bool {
	switch s {
	case StageSaved, StageApplied, StageInterview, StageRejected, StageGhosted, StageOffer:
		return true
	}
	return false
}

// TrackedListing links a user to a listing that scored at or above the
// visibility threshold. Unique per (UserID, ListingID).
type TrackedListing struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ListingID uuid.UUID
	Score     int
	Reasons   []string
	Stage     Stage
	Dismissed bool
	CreatedAt time.Time
	UpdatedAt time.Time

	// listing fields joined for reads
	Title    string
	Company  string
	Location string
	URL      string
	Source   string
}
