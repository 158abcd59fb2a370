package dto

import (
	"time"

	"autoapply/internal/domain"
)

type DispatchStatusResponse struct {
	FreshListings int                `json:"fresh_listings"`
	Health        DispatchHealth     `json:"health"`
	LastRun       *DispatchRunReport `json:"last_run"`
	ServerTime    time.Time          `json:"server_time"`
}

type DispatchHealth struct {
	Database bool `json:"database"`
	Redis    bool `json:"redis"`
}

type DispatchRunReport struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Duration   string    `json:"duration"`
	BudgetHit  bool      `json:"budget_hit"`

	Matching DispatchMatchingReport `json:"matching"`
	Sending  DispatchSendingReport  `json:"sending"`
	Errors   DispatchErrorReport    `json:"errors"`
}

type DispatchMatchingReport struct {
	ListingsConsidered int `json:"listings_considered"`
	ListingsConsumed   int `json:"listings_consumed"`
	UsersProcessed     int `json:"users_processed"`
	UsersSkipped       int `json:"users_skipped"`
	Scored             int `json:"scored"`
	Rejected           int `json:"rejected"`
	BelowThreshold     int `json:"below_threshold"`
	Tracked            int `json:"tracked"`
	Duplicates         int `json:"duplicates"`
	Drafts             int `json:"drafts"`
	Ready              int `json:"ready"`
}

type DispatchSendingReport struct {
	Sent           int `json:"sent"`
	Requeued       int `json:"requeued"`
	Failed         int `json:"failed"`
	Deferred       int `json:"deferred"`
	ClaimConflicts int `json:"claim_conflicts"`
	Stuck          int `json:"stuck"`
}

type DispatchErrorReport struct {
	Listing int `json:"listing"`
	User    int `json:"user"`
	Send    int `json:"send"`
}

func NewDispatchStatusResponse(st *domain.DispatchStatus) DispatchStatusResponse {
	if st == nil {
		return DispatchStatusResponse{ServerTime: time.Now().UTC()}
	}
	out := DispatchStatusResponse{
		FreshListings: st.FreshListings,
		Health:        DispatchHealth{Database: st.DatabaseHealthy, Redis: st.RedisHealthy},
		ServerTime:    st.ServerTime,
	}
	if r := st.LastRun; r != nil {
		out.LastRun = &DispatchRunReport{
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
			Duration:   r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			BudgetHit:  r.BudgetHit,
			Matching: DispatchMatchingReport{
				ListingsConsidered: r.ListingsConsidered,
				ListingsConsumed:   r.ListingsConsumed,
				UsersProcessed:     r.UsersProcessed,
				UsersSkipped:       r.UsersSkipped,
				Scored:             r.Scored,
				Rejected:           r.Rejected,
				BelowThreshold:     r.BelowThreshold,
				Tracked:            r.Tracked,
				Duplicates:         r.Duplicates,
				Drafts:             r.Drafts,
				Ready:              r.Ready,
			},
			Sending: DispatchSendingReport{
				Sent:           r.Sent,
				Requeued:       r.Requeued,
				Failed:         r.Failed,
				Deferred:       r.Deferred,
				ClaimConflicts: r.ClaimConflicts,
				Stuck:          r.Stuck,
			},
			Errors: DispatchErrorReport{
				Listing: r.ListingErrors,
				User:    r.UserErrors,
				Send:    r.SendErrors,
			},
		}
	}
	return out
}
