package middleware

import (
	"time"

	"autoapply/internal/pkg/logging"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-ID"

type AccessLogMiddleware struct {
	logger *logging.Logger
}

func NewAccessLogMiddleware(logger *logging.Logger) *AccessLogMiddleware {
	if logger == nil {
		logger = logging.Nop()
	}
	return &AccessLogMiddleware{logger: logger}
}

func (m *AccessLogMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		rid := c.Get(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(HeaderRequestID, rid)

		err := c.Next()

		status := c.Response().StatusCode()
		kv := []any{
			"rid", rid,
			"ip", c.IP(),
			"method", c.Method(),
			"path", c.OriginalURL(),
			"status", status,
			"latency", time.Since(start).String(),
			"resp_bytes", len(c.Response().Body()),
		}
		if uid, ok := c.Locals(CtxUserIDKey).(uuid.UUID); ok {
			kv = append(kv, "user_id", uid.String())
		}

		switch {
		case status >= 500:
			m.logger.Error("http access", kv...)
		case status >= 400:
			m.logger.Warn("http access", kv...)
		default:
			m.logger.Info("http access", kv...)
		}
		return err
	}
}
