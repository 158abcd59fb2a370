package handler

import (
	"context"
	"errors"

	"autoapply/internal/delivery/http/dto"
	"autoapply/internal/delivery/http/middleware"
	"autoapply/internal/domain/application"
	"autoapply/internal/pkg/response"
	"autoapply/internal/usecase"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type ApplicationHandler struct {
	uc usecase.ApplicationUsecase
}

type updateDraftRequest struct {
	ToAddress *string `json:"to_address"`
	Subject   *string `json:"subject"`
	Body      *string `json:"body"`
}

func NewApplicationHandler(uc usecase.ApplicationUsecase) *ApplicationHandler {
	return &ApplicationHandler{uc: uc}
}

func (h *ApplicationHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}

	grp := r.Group("/applications")
	grp.Get("/", h.List)
	grp.Get("/stuck", h.Stuck)
	grp.Get("/:id", h.Get)
	grp.Patch("/:id", h.UpdateDraft)
	grp.Post("/:id/approve", h.action(usecase.ApplicationUsecase.Approve))
	grp.Post("/:id/discard", h.action(usecase.ApplicationUsecase.Discard))
	grp.Post("/:id/cancel", h.action(usecase.ApplicationUsecase.Cancel))
	grp.Post("/:id/redraft", h.action(usecase.ApplicationUsecase.Redraft))
	grp.Post("/:id/retry", h.action(usecase.ApplicationUsecase.Retry))
	grp.Post("/:id/recover", h.action(usecase.ApplicationUsecase.RecoverStuck))
	grp.Post("/:id/send", h.SendNow)
	grp.Post("/:id/bounce", h.ReportBounce)
}

func (h *ApplicationHandler) List(c fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	limit, offset, err := pagination(c)
	if err != nil {
		return err
	}

	items, err := h.uc.List(c.Context(), userID, c.Query("status"), limit, offset)
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewApplicationListResponse(items))
}

func (h *ApplicationHandler) Get(c fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	d, err := h.uc.Get(c.Context(), userID, id)
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewApplicationDetailResponse(d.Application, d.Events))
}

func (h *ApplicationHandler) UpdateDraft(c fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req updateDraftRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}

	a, err := h.uc.UpdateDraft(c.Context(), userID, id, usecase.DraftUpdate{
		ToAddress: req.ToAddress,
		Subject:   req.Subject,
		Body:      req.Body,
	})
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewApplicationResponse(a))
}

type transitionFunc func(uc usecase.ApplicationUsecase, ctx context.Context, userID, id uuid.UUID) (application.Application, error)

// action adapts a single-step state transition to a handler.
func (h *ApplicationHandler) action(fn transitionFunc) fiber.Handler {
	return func(c fiber.Ctx) error {
		userID, err := middleware.UserID(c)
		if err != nil {
			return err
		}
		id, err := pathID(c)
		if err != nil {
			return err
		}

		a, err := fn(h.uc, c.Context(), userID, id)
		if err != nil {
			return mapUsecaseError(err)
		}
		return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewApplicationResponse(a))
	}
}

func (h *ApplicationHandler) SendNow(c fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	out, decision, err := h.uc.SendNow(c.Context(), userID, id)
	if err != nil {
		if errors.Is(err, usecase.ErrRateLimited) {
			response.RetryAfter(c, decision.WaitSeconds)
			return middleware.NewAppError(fiber.StatusTooManyRequests, "Send blocked by rate limit", decision, err)
		}
		return mapUsecaseError(err)
	}

	d, err := h.uc.Get(c.Context(), userID, id)
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.SendNowResponse{
		Outcome:     string(out),
		Application: dto.NewApplicationResponse(d.Application),
	})
}

func (h *ApplicationHandler) ReportBounce(c fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.uc.ReportBounce(c.Context(), userID, id); err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, nil)
}

func (h *ApplicationHandler) Stuck(c fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	items, err := h.uc.Stuck(c.Context(), userID)
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewApplicationListResponse(items))
}
