package api

import (
	"net/http"
	"runtime"
	"time"
)

type mqttStatusBody struct {
	Connected  bool   `json:"connected"`
	RetryCount int64  `json:"retryCount"`
	LastError  string `json:"lastError,omitempty"`
}

type memoryBody struct {
	RSS uint64 `json:"rss"`
}

type statusBody struct {
	Version       string         `json:"version"`
	BuildNumber   string         `json:"buildNumber"`
	Status        string         `json:"status"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds float64        `json:"uptimeSeconds"`
	Memory        memoryBody     `json:"memory"`
	MQTTStatus    mqttStatusBody `json:"mqttStatus"`
	StartTime     time.Time      `json:"startTime"`
}

// handleStatus implements `GET /api/status` (spec.md §6).
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(s.startTime)
	writeJSON(w, http.StatusOK, statusBody{
		Version:       s.build.Version,
		BuildNumber:   s.build.BuildNumber,
		Status:        "ok",
		Uptime:        uptime.String(),
		UptimeSeconds: uptime.Seconds(),
		Memory:        memoryBody{RSS: mem.Sys},
		MQTTStatus: mqttStatusBody{
			Connected:  s.mqttConnected.Load(),
			RetryCount: s.mqttRetries.Load(),
		},
		StartTime: s.startTime,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadyz reports not-ready while a message bus is configured and
// the last SetMQTTStatus call did not mark it connected (SPEC_FULL.md
// §6 liveness/readiness split).
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil || s.mqttConnected.Load() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}
