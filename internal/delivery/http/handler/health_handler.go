package handler

import (
	"context"
	"time"

	"autoapply/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db    pinger
	redis pinger
}

// redis may be nil; it is reported but never fails the check.
func NewHealthHandler(db, redis pinger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

func (h *HealthHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/health", h.Check)
}

func (h *HealthHandler) Check(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	data := fiber.Map{"database": "up", "redis": "disabled"}
	status := fiber.StatusOK

	if h.db == nil || h.db.Ping(ctx) != nil {
		data["database"] = "down"
		status = fiber.StatusServiceUnavailable
	}
	if h.redis != nil {
		data["redis"] = "up"
		if h.redis.Ping(ctx) != nil {
			data["redis"] = "down"
		}
	}

	if status != fiber.StatusOK {
		return response.Error(c, status, "unavailable", data)
	}
	return response.Success(c, status, response.MessageOK, data)
}
