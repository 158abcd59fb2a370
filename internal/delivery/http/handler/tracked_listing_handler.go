package handler

import (
	"autoapply/internal/delivery/http/dto"
	"autoapply/internal/delivery/http/middleware"
	"autoapply/internal/pkg/response"
	"autoapply/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

type TrackedListingHandler struct {
	uc usecase.TrackedListingUsecase
}

type updateStageRequest struct {
	Stage string `json:"stage"`
}

func NewTrackedListingHandler(uc usecase.TrackedListingUsecase) *TrackedListingHandler {
	return &TrackedListingHandler{uc: uc}
}

func (h *TrackedListingHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}

	grp := r.Group("/tracked-listings")
	grp.Get("/", h.List)
	grp.Get("/:id", h.Get)
	grp.Patch("/:id/stage", h.UpdateStage)
	grp.Post("/:id/dismiss", h.Dismiss)
	grp.Post("/:id/restore", h.Restore)
}

func (h *TrackedListingHandler) List(c fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	limit, offset, err := pagination(c)
	if err != nil {
		return err
	}
	includeDismissed, err := parseQueryBool(c, "include_dismissed")
	if err != nil {
		return err
	}

	items, err := h.uc.List(c.Context(), userID, includeDismissed, limit, offset)
	if err != nil {
		return mapUsecaseError(err)
	}

	res := make([]dto.TrackedListingResponse, 0, len(items))
	for _, it := range items {
		res = append(res, dto.NewTrackedListingResponse(it))
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, res)
}

func (h *TrackedListingHandler) Get(c fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	t, err := h.uc.Get(c.Context(), userID, id)
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewTrackedListingResponse(t))
}

func (h *TrackedListingHandler) UpdateStage(c fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req updateStageRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}

	t, err := h.uc.UpdateStage(c.Context(), userID, id, req.Stage)
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewTrackedListingResponse(t))
}

func (h *TrackedListingHandler) Dismiss(c fiber.Ctx) error {
	return h.setDismissed(c, true)
}

func (h *TrackedListingHandler) Restore(c fiber.Ctx) error {
	return h.setDismissed(c, false)
}

func (h *TrackedListingHandler) setDismissed(c fiber.Ctx, dismissed bool) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	t, err := h.uc.SetDismissed(c.Context(), userID, id, dismissed)
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewTrackedListingResponse(t))
}
