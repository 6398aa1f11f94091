package router

import (
	"net/http"

	"abExperiments/internal/rest"
	"abExperiments/pkg/response"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupExperimentRoutes(api *echo.Group, handler *rest.ExperimentHandler) {
	experiments := api.Group("/ab-experiments")

	experiments.GET("/dashboard", handler.Dashboard)
	experiments.GET("", handler.ListExperiments)
	experiments.POST("", handler.CreateExperiment)
	experiments.GET("/:id", handler.GetExperimentResults)
	experiments.DELETE("/:id", handler.DeleteExperiment)
	experiments.POST("/:id/start", handler.StartExperiment)
	experiments.POST("/:id/complete", handler.CompleteExperiment)
	experiments.POST("/:id/assign", handler.AssignUser)
	experiments.POST("/:id/convert", handler.RecordConversion)
	experiments.GET("/:id/variant/:userId", handler.GetUserVariant)
}

func SetupHealthRoutes(e *echo.Echo, version string) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, response.Success(map[string]any{
			"status":  "ok",
			"version": version,
		}))
	})
}

func SetupMetricsRoutes(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
