package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"abExperiments/pkg/logger"
	"abExperiments/pkg/response"

	"github.com/labstack/echo/v4"
)

// ErrorHandler is installed as echo's HTTPErrorHandler. Unmatched routes,
// bind failures and recovered panics all answer with the error envelope.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := http.StatusText(code)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		message = fmt.Sprint(he.Message)
	}

	if code >= http.StatusInternalServerError {
		logger.ErrorContext(c.Request().Context(), "Unhandled request error",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, response.Error(message))
	}
	if err != nil {
		logger.Error("Failed to write error response", err)
	}
}
