package routes

import (
	"net/http"

	"autoapply/internal/delivery/http/handler"
	"autoapply/internal/delivery/http/middleware"
	v1 "autoapply/internal/delivery/http/routes/v1"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
)

type Registry struct {
	health  *handler.HealthHandler
	metrics http.Handler
	auth    *middleware.AuthMiddleware
	v1      v1.Handlers
}

// metrics may be nil, in which case /metrics is not mounted.
func NewRegistry(health *handler.HealthHandler, metrics http.Handler, auth *middleware.AuthMiddleware, h v1.Handlers) *Registry {
	return &Registry{health: health, metrics: metrics, auth: auth, v1: h}
}

func (r *Registry) Register(app *fiber.App) {
	if app == nil {
		return
	}

	r.registerHealth(app)
	r.registerMetrics(app)
	r.registerAPI(app)
}

func (r *Registry) registerHealth(app *fiber.App) {
	if r.health != nil {
		r.health.RegisterRoutes(app)
	}
}

func (r *Registry) registerMetrics(app *fiber.App) {
	if r.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(r.metrics))
	}
}

func (r *Registry) registerAPI(app *fiber.App) {
	api := app.Group("/api")
	RegisterV1(api.Group("/v1"), r.auth, r.v1)
}
