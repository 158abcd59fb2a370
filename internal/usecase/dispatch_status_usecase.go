package usecase

import (
	"context"
	"time"

	"autoapply/internal/domain"
)

const LastRunKey = "dispatch:last_run"

type DispatchStatusUsecase interface {
	GetStatus(ctx context.Context) (*domain.DispatchStatus, error)
}

type freshCounter interface {
	CountFresh(ctx context.Context) (int, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type jsonGetter interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
}

type DispatchStatus struct {
	listings freshCounter
	db       pinger
	redis    pinger
	cache    jsonGetter
	now      func() time.Time
}

// redis may be nil; the status then reports it unhealthy and omits the last
// run.
func NewDispatchStatusUsecase(listings freshCounter, db pinger, redis interface {
	pinger
	jsonGetter
}) *DispatchStatus {
	u := &DispatchStatus{listings: listings, db: db, now: time.Now}
	if redis != nil {
		u.redis = redis
		u.cache = redis
	}
	return u
}

func (u *DispatchStatus) GetStatus(ctx context.Context) (*domain.DispatchStatus, error) {
	fresh, err := u.listings.CountFresh(ctx)
	if err != nil {
		return nil, err
	}

	out := &domain.DispatchStatus{FreshListings: fresh, ServerTime: u.now().UTC()}
	out.DatabaseHealthy = ping(ctx, u.db)
	out.RedisHealthy = ping(ctx, u.redis)

	if u.cache != nil {
		var last domain.RunStats
		if ok, err := u.cache.GetJSON(ctx, LastRunKey, &last); err == nil && ok {
			out.LastRun = &last
		}
	}
	return out, nil
}

func ping(ctx context.Context, p pinger) bool {
	if p == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.Ping(pingCtx) == nil
}
