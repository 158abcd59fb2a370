package dto

import (
	"time"

	"autoapply/internal/domain/match"

	"github.com/google/uuid"
)

type TrackedListingResponse struct {
	ID        uuid.UUID `json:"id"`
	ListingID uuid.UUID `json:"listing_id"`
	Title     string    `json:"title"`
	Company   string    `json:"company"`
	Location  string    `json:"location"`
	URL       string    `json:"url"`
	Source    string    `json:"source"`
	Score     int       `json:"score"`
	Reasons   []string  `json:"reasons"`
	Stage     string    `json:"stage"`
	Dismissed bool      `json:"dismissed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewTrackedListingResponse(t match.TrackedListing) TrackedListingResponse {
	reasons := t.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return TrackedListingResponse{
		ID:        t.ID,
		ListingID: t.ListingID,
		Title:     t.Title,
		Company:   t.Company,
		Location:  t.Location,
		URL:       t.URL,
		Source:    t.Source,
		Score:     t.Score,
		Reasons:   reasons,
		Stage:     string(t.Stage),
		Dismissed: t.Dismissed,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
