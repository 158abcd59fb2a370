package handler

import (
	"time"

	"autoapply/internal/delivery/http/dto"
	"autoapply/internal/pkg/logging"
	"autoapply/internal/pkg/response"
	"autoapply/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

type DispatchStatusHandler struct {
	uc  usecase.DispatchStatusUsecase
	log *logging.Logger
}

func NewDispatchStatusHandler(uc usecase.DispatchStatusUsecase, logger *logging.Logger) *DispatchStatusHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &DispatchStatusHandler{uc: uc, log: logger}
}

func (h *DispatchStatusHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/dispatch/status", h.GetStatus)
}

// GetStatus always answers 200; a failed count is reported as an empty
// status so dashboards keep rendering.
func (h *DispatchStatusHandler) GetStatus(c fiber.Ctx) error {
	start := time.Now()

	st, err := h.uc.GetStatus(c.Context())
	if err != nil {
		h.log.Warn("dispatch status failed", "duration", time.Since(start).String(), "err", err)
		return response.Success(c, fiber.StatusOK, response.MessageOK, dto.DispatchStatusResponse{ServerTime: time.Now().UTC()})
	}

	h.log.Debug("dispatch status", "duration", time.Since(start).String())
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewDispatchStatusResponse(st))
}
