package domain

import "time"

// RunStats summarizes one dispatch run. Per-item failures are counted here
// and never abort the run.
type RunStats struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	BudgetHit  bool      `json:"budget_hit"`

	ListingsConsidered int `json:"listings_considered"`
	UsersProcessed     int `json:"users_processed"`
	UsersSkipped       int `json:"users_skipped"`
	Scored             int `json:"scored"`
	Rejected           int `json:"rejected"`
	BelowThreshold     int `json:"below_threshold"`
	Tracked            int `json:"tracked"`
	Duplicates         int `json:"duplicates"`
	Drafts             int `json:"drafts"`
	Ready              int `json:"ready"`
	Sent               int `json:"sent"`
	Requeued           int `json:"requeued"`
	Failed             int `json:"failed"`
	Deferred           int `json:"deferred"`
	ClaimConflicts     int `json:"claim_conflicts"`
	ListingsConsumed   int `json:"listings_consumed"`
	Stuck              int `json:"stuck"`

	ListingErrors int `json:"listing_errors"`
	UserErrors    int `json:"user_errors"`
	SendErrors    int `json:"send_errors"`
}

// Add folds another partial result into s.
func (s *RunStats) Add(o RunStats) {
	s.ListingsConsidered += o.ListingsConsidered
	s.UsersProcessed += o.UsersProcessed
	s.UsersSkipped += o.UsersSkipped
	s.Scored += o.Scored
	s.Rejected += o.Rejected
	s.BelowThreshold += o.BelowThreshold
	s.Tracked += o.Tracked
	s.Duplicates += o.Duplicates
	s.Drafts += o.Drafts
	s.Ready += o.Ready
	s.Sent += o.Sent
	s.Requeued += o.Requeued
	s.Failed += o.Failed
	s.Deferred += o.Deferred
	s.ClaimConflicts += o.ClaimConflicts
	s.ListingsConsumed += o.ListingsConsumed
	s.Stuck += o.Stuck
	s.ListingErrors += o.ListingErrors
	s.UserErrors += o.UserErrors
	s.SendErrors += o.SendErrors
}

type DispatchStatus struct {
	FreshListings   int       `json:"fresh_listings"`
	LastRun         *RunStats `json:"last_run,omitempty"`
	DatabaseHealthy bool      `json:"database_healthy"`
	RedisHealthy    bool      `json:"redis_healthy"`
	ServerTime      time.Time `json:"server_time"`
}
