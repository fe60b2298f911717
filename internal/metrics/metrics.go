package metrics

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sandbox lifecycle metrics
var (
	SandboxUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shellbot_sandbox_up",
			Help: "1 when the sandbox container for the distro is recorded as running",
		},
		[]string{"distro"},
	)

	ContainerCreatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shellbot_container_creates_total",
			Help: "Total sandbox container creations",
		},
		[]string{"distro", "status"},
	)

	ContainerCreateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shellbot_container_create_duration_seconds",
			Help:    "Time to create and start a sandbox container",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"distro"},
	)

	SandboxRepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shellbot_sandbox_repairs_total",
			Help: "Total self-repairs of an unhealthy sandbox",
		},
		[]string{"distro"},
	)

	DistroSwitchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shellbot_distro_switches_total",
			Help: "Total distro switches",
		},
		[]string{"to", "status"},
	)
)

// Command execution metrics
var (
	ExecDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shellbot_exec_duration_seconds",
			Help:    "Time to execute a command in the sandbox",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 60.0, 300.0},
		},
		[]string{"distro"},
	)

	ExecTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shellbot_exec_total",
			Help: "Total commands executed, by outcome (ok, nonzero, timeout, error)",
		},
		[]string{"distro", "outcome"},
	)

	OutputTruncatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shellbot_output_truncated_total",
			Help: "Total command results truncated for the presentation channel",
		},
	)

	RuntimeOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shellbot_runtime_op_duration_seconds",
			Help:    "Time for container runtime operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"operation"},
	)
)

// Front-end metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shellbot_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ChatCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shellbot_chat_commands_total",
			Help: "Total chat slash commands handled",
		},
		[]string{"command", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		SandboxUp,
		ContainerCreatesTotal,
		ContainerCreateDuration,
		SandboxRepairsTotal,
		DistroSwitchesTotal,
		ExecDuration,
		ExecTotal,
		OutputTruncatedTotal,
		RuntimeOpDuration,
		HTTPRequestsTotal,
		ChatCommandsTotal,
	)
}

// ObserveRuntimeOp records the duration of a runtime call started at start.
func ObserveRuntimeOp(operation string, start time.Time) {
	RuntimeOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// EchoMiddleware returns Echo middleware that counts HTTP requests.
func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			HTTPRequestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(status),
			).Inc()
			return err
		}
	}
}

// StartMetricsServer starts a standalone HTTP server serving /metrics on the given address.
func StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics: server on %s stopped: %v", addr, err)
		}
	}()
	return srv
}
