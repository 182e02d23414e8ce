package middleware

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/hasnin090/iq-sub003/internal/logging"
)

// Logger writes one access log line per request with request_id, method,
// path, status and latency in milliseconds. Long sync runs are logged when
// the handler returns, not when the background work ends.
func Logger(log *logging.Logger) fiber.Handler {
	log = log.With("http")

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		rid, _ := c.Locals(RequestIDLocalKey).(string)
		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}

		fields := map[string]any{
			"request_id": rid,
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"latency":    float64(time.Since(start).Microseconds()) / 1000,
		}
		if s := CurrentSession(c); s != nil {
			fields["user_id"] = s.UserID
		}
		log.Info("http_request", fields)

		return err
	}
}

// LoggerWithWriter is Logger over a fresh JSON logger on w.
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	return Logger(logging.New(w, loc, "http"))
}
