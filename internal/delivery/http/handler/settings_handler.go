package handler

import (
	"autoapply/internal/delivery/http/dto"
	"autoapply/internal/delivery/http/middleware"
	"autoapply/internal/pkg/response"
	"autoapply/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

type SettingsHandler struct {
	uc usecase.SettingsUsecase
}

func NewSettingsHandler(uc usecase.SettingsUsecase) *SettingsHandler {
	return &SettingsHandler{uc: uc}
}

func (h *SettingsHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}

	grp := r.Group("/settings")
	grp.Get("/", h.Get)
	grp.Put("/", h.Update)
	grp.Post("/resume", h.Resume)
	grp.Get("/rate-status", h.RateStatus)
}

func (h *SettingsHandler) Get(c fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	p, err := h.uc.Get(c.Context(), userID)
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewSettingsResponse(p))
}

func (h *SettingsHandler) Update(c fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	var req dto.UpdateSettingsRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}

	p, err := h.uc.Update(c.Context(), userID, usecase.SettingsUpdate{
		Keywords:            req.Keywords,
		PreferredCategories: req.PreferredCategories,
		PreferredPlatforms:  req.PreferredPlatforms,
		City:                req.City,
		Country:             req.Country,
		Timezone:            req.Timezone,
		WorkTypes:           req.WorkTypes,
		JobTypes:            req.JobTypes,
		ExperienceLevel:     req.ExperienceLevel,
		SalaryMin:           req.SalaryMin,
		SalaryMax:           req.SalaryMax,
		AutomationMode:      req.AutomationMode,
		AutoApplyThreshold:  req.AutoApplyThreshold,
		MaxPerHour:          req.MaxPerHour,
		MaxPerDay:           req.MaxPerDay,
		MinDelaySeconds:     req.MinDelaySeconds,
		BounceCooldownHrs:   req.BounceCooldownHrs,
		SenderEmail:         req.SenderEmail,
	})
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewSettingsResponse(p))
}

// Resume clears a bounce pause.
func (h *SettingsHandler) Resume(c fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	p, err := h.uc.Resume(c.Context(), userID)
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewSettingsResponse(p))
}

func (h *SettingsHandler) RateStatus(c fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	d, err := h.uc.RateStatus(c.Context(), userID)
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, d)
}
