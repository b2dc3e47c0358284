package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pixoo/daemon/internal/apierr"
)

// diagnosticStatus is the tri-color health verdict spec.md §6 names
// for `GET /api/tests`/`POST /api/tests/*`.
type diagnosticStatus string

const (
	statusGreen  diagnosticStatus = "green"
	statusYellow diagnosticStatus = "yellow"
	statusRed    diagnosticStatus = "red"
)

type diagnosticResult struct {
	Status    diagnosticStatus `json:"status"`
	Message   string           `json:"message"`
	Details   string           `json:"details,omitempty"`
	Duration  string           `json:"duration"`
	Timestamp int64            `json:"timestamp"`
}

type diagnosticCheck struct {
	ID   string
	Name string
	Run  func(ctx context.Context) diagnosticResult
}

// diagnosticRegistry is the fixed set of self-tests the daemon can run
// on demand, each grounded on a real subsystem this daemon owns.
type diagnosticRegistry struct {
	checks []diagnosticCheck
}

func newDiagnosticRegistry(s *Server) *diagnosticRegistry {
	return &diagnosticRegistry{checks: []diagnosticCheck{
		{
			ID:   "scene-registry",
			Name: "Scene registry loaded",
			Run: func(ctx context.Context) diagnosticResult {
				start := time.Now()
				n := len(s.scenes.List())
				if n == 0 {
					return result(statusRed, "no scenes registered", "", start)
				}
				return result(statusGreen, "scenes registered", pluralScenes(n), start)
			},
		},
		{
			ID:   "device-drivers-ready",
			Name: "Device drivers ready",
			Run: func(ctx context.Context) diagnosticResult {
				start := time.Now()
				records := s.store.ListDevices()
				if len(records) == 0 {
					return result(statusYellow, "no devices configured", "", start)
				}
				notReady := 0
				for _, rec := range records {
					d, err := s.scheduler.Driver(rec.Device.ID)
					if err != nil || !d.IsReady() {
						notReady++
					}
				}
				if notReady == 0 {
					return result(statusGreen, "all device drivers ready", "", start)
				}
				if notReady < len(records) {
					return result(statusYellow, "some device drivers not ready", deviceCountDetail(notReady, len(records)), start)
				}
				return result(statusRed, "no device drivers ready", deviceCountDetail(notReady, len(records)), start)
			},
		},
		{
			ID:   "message-bus-connectivity",
			Name: "Message bus connectivity",
			Run: func(ctx context.Context) diagnosticResult {
				start := time.Now()
				if s.bus == nil {
					return result(statusYellow, "message bus disabled", "", start)
				}
				if s.mqttConnected.Load() {
					return result(statusGreen, "message bus connected", "", start)
				}
				return result(statusRed, "message bus disconnected", "", start)
			},
		},
	}}
}

func result(status diagnosticStatus, msg, details string, start time.Time) diagnosticResult {
	return diagnosticResult{
		Status:    status,
		Message:   msg,
		Details:   details,
		Duration:  time.Since(start).String(),
		Timestamp: time.Now().UnixMilli(),
	}
}

func pluralScenes(n int) string {
	if n == 1 {
		return "1 scene"
	}
	return strconv.Itoa(n) + " scenes"
}

func deviceCountDetail(notReady, total int) string {
	return strconv.Itoa(notReady) + " of " + strconv.Itoa(total) + " devices not ready"
}

func (reg *diagnosticRegistry) find(id string) (diagnosticCheck, bool) {
	for _, c := range reg.checks {
		if c.ID == id {
			return c, true
		}
	}
	return diagnosticCheck{}, false
}

type testListEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// handleListTests implements `GET /api/tests` (spec.md §6).
func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	out := make([]testListEntry, 0, len(s.diagnostics.checks))
	for _, c := range s.diagnostics.checks {
		out = append(out, testListEntry{ID: c.ID, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tests": out})
}

// handleRunTest implements `POST /api/tests/:id/run` (spec.md §6).
func (s *Server) handleRunTest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	check, ok := s.diagnostics.find(id)
	if !ok {
		writeError(w, apierr.New(apierr.KindValidation, "unknown test: "+id))
		return
	}
	writeJSON(w, http.StatusOK, check.Run(r.Context()))
}

// handleRunAllTests implements `POST /api/tests/run` (spec.md §6).
func (s *Server) handleRunAllTests(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]diagnosticResult, len(s.diagnostics.checks))
	for _, c := range s.diagnostics.checks {
		out[c.ID] = c.Run(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}
