// Package api implements the REST Adapter (spec.md §6): it translates
// HTTP operations into Scene Scheduler operations and State Store
// reads, returning the exact JSON shapes spec.md names. Grounded on
// the teacher's internal/api/http.go Server/routes() composition,
// trimmed from a media-server's dozens of subsystems down to this
// daemon's device/scene/diagnostics surface.
package api

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pixoo/daemon/internal/api/middleware"
	"github.com/pixoo/daemon/internal/bus"
	"github.com/pixoo/daemon/internal/devicedriver"
	"github.com/pixoo/daemon/internal/log"
	"github.com/pixoo/daemon/internal/scene"
	"github.com/pixoo/daemon/internal/scheduler"
	"github.com/pixoo/daemon/internal/store"
)

// BuildInfo is reported by GET /api/status.
type BuildInfo struct {
	Version     string
	BuildNumber string
}

// Config configures the REST Adapter (spec.md §6, SPEC_FULL.md §3).
type Config struct {
	Port               int
	AllowedOrigins     []string
	RateLimitRPS       int
	RateLimitWhitelist []string
}

// ShutdownRequester triggers a graceful daemon shutdown/restart,
// implemented by cmd/daemon's bootstrap so the REST layer never
// imports it directly (spec.md §6 `POST /api/daemon/restart`).
type ShutdownRequester interface {
	RequestRestart(ctx context.Context) error
}

// Server is the REST Adapter.
type Server struct {
	cfg       Config
	store     *store.Store
	scheduler *scheduler.Scheduler
	scenes    *scene.Registry
	drivers   *devicedriver.Registry
	bus       bus.Bus
	shutdown  ShutdownRequester
	build     BuildInfo

	diagnostics *diagnosticRegistry

	startTime time.Time
	mqttConnected atomic.Bool
	mqttRetries   atomic.Int64

	httpSrv *http.Server
}

// New constructs the REST Adapter.
func New(cfg Config, st *store.Store, sched *scheduler.Scheduler, scenes *scene.Registry, drivers *devicedriver.Registry, b bus.Bus, shutdown ShutdownRequester, build BuildInfo) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		scheduler: sched,
		scenes:    scenes,
		drivers:   drivers,
		bus:       b,
		shutdown:  shutdown,
		build:     build,
		startTime: time.Now(),
	}
	s.diagnostics = newDiagnosticRegistry(s)
	return s
}

// SetMQTTStatus lets the Message Bus Adapter report connectivity for
// GET /api/status's mqttStatus field.
func (s *Server) SetMQTTStatus(connected bool, retries int64) {
	s.mqttConnected.Store(connected)
	s.mqttRetries.Store(retries)
}

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            true,
		AllowedOrigins:        s.cfg.AllowedOrigins,
		EnableSecurityHeaders: true,
		EnableRateLimit:       true,
		RateLimitRPS:          s.cfg.RateLimitRPS,
		RateLimitWhitelist:    s.cfg.RateLimitWhitelist,
	})

	r.Get("/api/healthz", s.handleHealthz)
	r.Get("/api/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api/status", s.handleStatus)

	r.Get("/api/devices", s.handleListDevices)
	r.Get("/api/devices/{ip}", s.handleGetDevice)
	r.Get("/api/devices/{ip}/metrics", s.handleGetDeviceMetrics)
	r.Post("/api/devices/{ip}/scene", s.handleSwitchScene)
	r.Post("/api/devices/{ip}/scene/pause", s.handlePauseScene)
	r.Post("/api/devices/{ip}/scene/resume", s.handleResumeScene)
	r.Post("/api/devices/{ip}/scene/stop", s.handleStopScene)
	r.Post("/api/devices/{ip}/brightness", s.handleSetBrightness)
	r.Post("/api/devices/{ip}/display", s.handleSetDisplay)
	r.Post("/api/devices/{ip}/reboot", s.handleReboot)
	r.Post("/api/devices/{ip}/driver", s.handleSetDriver)
	r.Post("/api/devices/{ip}/reset", s.handleResetDevice)

	r.Get("/api/scenes", s.handleListScenes)

	r.Post("/api/daemon/restart", s.handleDaemonRestart)

	r.Get("/api/tests", s.handleListTests)
	r.Post("/api/tests/run", s.handleRunAllTests)
	r.Post("/api/tests/{id}/run", s.handleRunTest)

	return r
}

// Handler returns the configured HTTP handler (used by tests and by
// Start's http.Server).
func (s *Server) Handler() http.Handler { return s.routes() }

// Start begins serving on cfg.Port until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              portAddr(s.cfg.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger := log.WithComponent("api")
	logger.Info().Str("addr", s.httpSrv.Addr).Msg("REST adapter listening")

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func portAddr(port int) string {
	if port <= 0 {
		port = 8080
	}
	return ":" + strconv.Itoa(port)
}
