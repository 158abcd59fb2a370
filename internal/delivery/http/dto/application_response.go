package dto

import (
	"time"

	"autoapply/internal/domain/application"

	"github.com/google/uuid"
)

type ApplicationResponse struct {
	ID                  uuid.UUID  `json:"id"`
	TrackedListingID    uuid.UUID  `json:"tracked_listing_id"`
	ListingTitle        string     `json:"listing_title,omitempty"`
	ListingCompany      string     `json:"listing_company,omitempty"`
	FromAddress         string     `json:"from_address"`
	ToAddress           string     `json:"to_address"`
	Subject             string     `json:"subject"`
	Body                string     `json:"body"`
	CoverLetter         string     `json:"cover_letter,omitempty"`
	ResumeID            *uuid.UUID `json:"resume_id,omitempty"`
	Status              string     `json:"status"`
	RecipientConfidence string     `json:"recipient_confidence"`
	ScheduledAt         *time.Time `json:"scheduled_at,omitempty"`
	SentAt              *time.Time `json:"sent_at,omitempty"`
	SendingStartedAt    *time.Time `json:"sending_started_at,omitempty"`
	BouncedAt           *time.Time `json:"bounced_at,omitempty"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	RetryCount          int        `json:"retry_count"`
	MessageID           string     `json:"message_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type ApplicationEventResponse struct {
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type ApplicationDetailResponse struct {
	ApplicationResponse
	Events []ApplicationEventResponse `json:"events"`
}

type SendNowResponse struct {
	Outcome     string              `json:"outcome"`
	Application ApplicationResponse `json:"application"`
}

func NewApplicationResponse(a application.Application) ApplicationResponse {
	return ApplicationResponse{
		ID:                  a.ID,
		TrackedListingID:    a.TrackedListingID,
		ListingTitle:        a.ListingTitle,
		ListingCompany:      a.ListingCompany,
		FromAddress:         a.FromAddress,
		ToAddress:           a.ToAddress,
		Subject:             a.Subject,
		Body:                a.Body,
		CoverLetter:         a.CoverLetter,
		ResumeID:            a.ResumeID,
		Status:              string(a.Status),
		RecipientConfidence: string(a.RecipientConfidence),
		ScheduledAt:         a.ScheduledAt,
		SentAt:              a.SentAt,
		SendingStartedAt:    a.SendingStartedAt,
		BouncedAt:           a.BouncedAt,
		ErrorMessage:        a.ErrorMessage,
		RetryCount:          a.RetryCount,
		MessageID:           a.MessageID,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func NewApplicationListResponse(items []application.Application) []ApplicationResponse {
	out := make([]ApplicationResponse, 0, len(items))
	for _, a := range items {
		out = append(out, NewApplicationResponse(a))
	}
	return out
}

func NewApplicationDetailResponse(a application.Application, events []application.Event) ApplicationDetailResponse {
	res := ApplicationDetailResponse{
		ApplicationResponse: NewApplicationResponse(a),
		Events:              make([]ApplicationEventResponse, 0, len(events)),
	}
	for _, e := range events {
		res.Events = append(res.Events, ApplicationEventResponse{
			FromStatus: string(e.FromStatus),
			ToStatus:   string(e.ToStatus),
			Message:    e.Message,
			CreatedAt:  e.CreatedAt,
		})
	}
	return res
}
