package middleware

import (
	"time"

	"abExperiments/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
)

// RequestID propagates X-Request-ID (generating one when absent) and stores
// it as the trace id of the request context.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			traceID := req.Header.Get(echo.HeaderXRequestID)
			if traceID == "" {
				traceID = uuid.NewString()
			}

			c.Response().Header().Set(echo.HeaderXRequestID, traceID)
			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), traceID)))

			return next(c)
		}
	}
}

// RequestLogger writes one access log line per request.
func RequestLogger() echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ctx := c.Request().Context()
			args := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Round(time.Microsecond).Seconds() * 1000,
			}
			if v.Error != nil {
				logger.WarnContext(ctx, "request failed", append(args, "error", v.Error)...)
				return nil
			}
			logger.DebugContext(ctx, "request served", args...)
			return nil
		},
	})
}
