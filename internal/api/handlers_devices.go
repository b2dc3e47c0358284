package api

import (
	"net/http"

	"github.com/pixoo/daemon/internal/store"
)

type deviceBody struct {
	IP           string `json:"ip"`
	Name         string `json:"name"`
	Driver       string `json:"driver"`
	Status       string `json:"status"`
	CurrentScene string `json:"currentScene,omitempty"`
	PlayState    string `json:"playState,omitempty"`
	Brightness   int    `json:"brightness"`
	DisplayOn    bool   `json:"displayOn"`
	LastSeen     int64  `json:"lastSeen,omitempty"`
}

func toDeviceBody(dev store.Device, st store.DeviceSceneState) deviceBody {
	return deviceBody{
		IP:           dev.ID,
		Name:         dev.DeviceType,
		Driver:       dev.DriverKind,
		Status:       string(st.Status),
		CurrentScene: st.CurrentScene,
		PlayState:    string(st.PlayState),
		Brightness:   dev.Brightness,
		DisplayOn:    dev.DisplayOn,
		LastSeen:     st.LastSeenTs,
	}
}

// handleListDevices implements `GET /api/devices` (spec.md §6).
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	records := s.store.ListDevices()
	out := make([]deviceBody, 0, len(records))
	for _, rec := range records {
		out = append(out, toDeviceBody(rec.Device, rec.State))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out})
}

// handleGetDevice implements `GET /api/devices/:ip` (spec.md §6).
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	st, err := s.store.GetDeviceState(dev.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeviceBody(dev, st))
}

type deviceMetricsBody struct {
	FPS        float64 `json:"fps"`
	Frametime  int64   `json:"frametime"`
	PushCount  int64   `json:"pushCount"`
	LastSeenTs int64   `json:"lastSeenTs"`
}

// handleGetDeviceMetrics implements `GET /api/devices/:ip/metrics`
// (spec.md §6).
func (s *Server) handleGetDeviceMetrics(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	d, err := s.scheduler.Driver(dev.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	m := d.GetMetrics()
	fps := 0.0
	if m.LastFrametimeMs > 0 {
		fps = 1000.0 / float64(m.LastFrametimeMs)
	}
	writeJSON(w, http.StatusOK, deviceMetricsBody{
		FPS:        fps,
		Frametime:  m.LastFrametimeMs,
		PushCount:  m.PushCount,
		LastSeenTs: m.LastSeenTs,
	})
}
