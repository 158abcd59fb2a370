package v1

import (
	"autoapply/internal/delivery/http/handler"
	"autoapply/internal/delivery/http/middleware"

	"github.com/gofiber/fiber/v3"
)

type Handlers struct {
	TrackedListings *handler.TrackedListingHandler
	Applications    *handler.ApplicationHandler
	Settings        *handler.SettingsHandler
	DispatchStatus  *handler.DispatchStatusHandler
}

// Register mounts every v1 route behind bearer auth except the dispatch
// status, which carries no per-user data.
func Register(r fiber.Router, auth *middleware.AuthMiddleware, h Handlers) {
	if r == nil {
		return
	}

	if h.DispatchStatus != nil {
		h.DispatchStatus.RegisterRoutes(r)
	}

	protected := r.Group("/me", auth.Middleware())
	if h.TrackedListings != nil {
		h.TrackedListings.RegisterRoutes(protected)
	}
	if h.Applications != nil {
		h.Applications.RegisterRoutes(protected)
	}
	if h.Settings != nil {
		h.Settings.RegisterRoutes(protected)
	}
}
