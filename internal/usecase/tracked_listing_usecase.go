package usecase

import (
	"context"
	"strings"

	"autoapply/internal/domain/match"
	"autoapply/internal/repository"

	"github.com/google/uuid"
)

type TrackedListingUsecase interface {
	List(ctx context.Context, userID uuid.UUID, includeDismissed bool, limit, offset int) ([]match.TrackedListing, error)
	Get(ctx context.Context, userID, id uuid.UUID) (match.TrackedListing, error)
	UpdateStage(ctx context.Context, userID, id uuid.UUID, stage string) (match.TrackedListing, error)
	SetDismissed(ctx context.Context, userID, id uuid.UUID, dismissed bool) (match.TrackedListing, error)
}

type TrackedListings struct {
	repo repository.TrackedListingRepository
}

func NewTrackedListingUsecase(repo repository.TrackedListingRepository) *TrackedListings {
	return &TrackedListings{repo: repo}
}

func (u *TrackedListings) List(ctx context.Context, userID uuid.UUID, includeDismissed bool, limit, offset int) ([]match.TrackedListing, error) {
	if limit < 0 || limit > 100 || offset < 0 {
		return nil, ErrInvalidInput
	}
	items, err := u.repo.ListByUser(ctx, userID, includeDismissed, limit, offset)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return items, nil
}

func (u *TrackedListings) Get(ctx context.Context, userID, id uuid.UUID) (match.TrackedListing, error) {
	t, err := u.repo.GetByID(ctx, userID, id)
	if err != nil {
		return match.TrackedListing{}, mapRepoErr(err)
	}
	return t, nil
}

func (u *TrackedListings) UpdateStage(ctx context.Context, userID, id uuid.UUID, stage string) (match.TrackedListing, error) {
	st := match.Stage(strings.ToUpper(strings.TrimSpace(stage)))
	if !st.Valid() {
		return match.TrackedListing{}, ErrInvalidInput
	}
	if err := u.repo.UpdateStage(ctx, userID, id, st); err != nil {
		return match.TrackedListing{}, mapRepoErr(err)
	}
	return u.Get(ctx, userID, id)
}

func (u *TrackedListings) SetDismissed(ctx context.Context, userID, id uuid.UUID, dismissed bool) (match.TrackedListing, error) {
	if err := u.repo.SetDismissed(ctx, userID, id, dismissed); err != nil {
		return match.TrackedListing{}, mapRepoErr(err)
	}
	return u.Get(ctx, userID, id)
}
