package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"autoapply/internal/config"
	"autoapply/internal/database"
	"autoapply/internal/delivery/http/handler"
	"autoapply/internal/delivery/http/middleware"
	"autoapply/internal/delivery/http/routes"
	v1 "autoapply/internal/delivery/http/routes/v1"
	"autoapply/internal/metrics"
	"autoapply/internal/pkg/jwt"
	"autoapply/internal/pkg/logging"

	"github.com/gofiber/fiber/v3"
)

type App struct {
	Fiber     *fiber.App
	Container *Container
}

func New(c *Container) *App {
	f := fiber.New(fiber.Config{
		AppName:      c.Config.App.AppName,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	registerGlobalMiddleware(f, c.Logger)
	registerRoutes(f, c)

	return &App{Fiber: f, Container: c}
}

func Bootstrap(cfg config.Config, logger *logging.Logger) (*App, func() error, error) {
	c, err := NewContainer(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	// The dispatcher owns migrations; the API only reports a schema it
	// cannot serve.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := database.VerifySchema(ctx, c.DB, database.RequiredSchema); err != nil {
		c.Logger.Warn("schema check failed, run the dispatcher to migrate", "err", err)
	}

	app := New(c)
	return app, c.Close, nil
}

func registerGlobalMiddleware(app *fiber.App, logger *logging.Logger) {
	if app == nil {
		return
	}

	errMw := middleware.NewErrorMiddleware(logger.With("component", "http"))
	accessMw := middleware.NewAccessLogMiddleware(logger.With("component", "access"))
	app.Use(accessMw.Middleware())
	app.Use(errMw.Middleware())
}

func registerRoutes(app *fiber.App, c *Container) {
	if app == nil {
		return
	}

	auth := middleware.NewAuthMiddleware(jwt.NewHMACService(c.Config.JWT.AccessSecret))
	reg := routes.NewRegistry(
		handler.NewHealthHandler(c.DB, c.Redis),
		metrics.Handler(c.Registry),
		auth,
		v1.Handlers{
			TrackedListings: handler.NewTrackedListingHandler(c.TrackedUC),
			Applications:    handler.NewApplicationHandler(c.ApplicationUC),
			Settings:        handler.NewSettingsHandler(c.SettingsUC),
			DispatchStatus:  handler.NewDispatchStatusHandler(c.DispatchStatus, c.Logger.With("component", "dispatch_status")),
		},
	)
	reg.Register(app)
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", fmt.Errorf("empty HTTP port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}
