package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ab_http_request_duration_seconds",
		Help:    "Latency of experiment API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	RequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ab_http_requests_total",
		Help: "Total experiment API requests served",
	}, []string{"method", "route", "status"})
)

var once sync.Once

func Init() {
	once.Do(func() {
		prometheus.MustRegister(RequestDuration, RequestTotal)
	})
}

// Middleware records latency and count per route template.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}

			labels := []string{c.Request().Method, c.Path(), strconv.Itoa(status)}
			RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			RequestTotal.WithLabelValues(labels...).Inc()

			return err
		}
	}
}
