package api

import (
	"net/http"

	"github.com/pixoo/daemon/internal/apierr"
)

type switchSceneRequest struct {
	Scene   string         `json:"scene"`
	Clear   bool           `json:"clear,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// handleSwitchScene implements `POST /api/devices/:ip/scene`
// (spec.md §6).
func (s *Server) handleSwitchScene(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	var req switchSceneRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Scene == "" {
		writeError(w, apierr.New(apierr.KindValidation, "scene is required"))
		return
	}
	if req.Clear {
		if d, err := s.scheduler.Driver(dev.ID); err == nil {
			d.Clear()
		}
	}
	if err := s.scheduler.SwitchScene(r.Context(), dev.ID, req.Scene, req.Payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "scene": req.Scene, "deviceIp": dev.ID})
}

// handlePauseScene implements `POST /api/devices/:ip/scene/pause`.
func (s *Server) handlePauseScene(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	if err := s.scheduler.PauseScene(dev.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "playState": "paused"})
}

// handleResumeScene implements `POST /api/devices/:ip/scene/resume`.
func (s *Server) handleResumeScene(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	if err := s.scheduler.ResumeScene(r.Context(), dev.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "playState": "running"})
}

// handleStopScene implements `POST /api/devices/:ip/scene/stop`.
func (s *Server) handleStopScene(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	if err := s.scheduler.StopScene(r.Context(), dev.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "playState": "stopped"})
}

type sceneListEntry struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	WantsLoop   bool      `json:"wantsLoop,omitempty"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// handleListScenes implements `GET /api/scenes` (spec.md §6).
func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	descs := s.scenes.List()
	out := make([]sceneListEntry, 0, len(descs))
	for _, d := range descs {
		out = append(out, sceneListEntry{
			Name:        d.Name,
			Description: d.Description,
			WantsLoop:   d.WantsLoop,
			Category:    d.Category,
			Tags:        d.Tags,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenes": out})
}
