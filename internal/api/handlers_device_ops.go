package api

import (
	"context"
	"net/http"

	"github.com/pixoo/daemon/internal/apierr"
	"github.com/pixoo/daemon/internal/devicedriver"
	"github.com/pixoo/daemon/internal/store"
)

type brightnessRequest struct {
	Brightness int `json:"brightness"`
}

// handleSetBrightness implements `POST /api/devices/:ip/brightness`
// (spec.md §6).
func (s *Server) handleSetBrightness(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	var req brightnessRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !dev.Capabilities.SupportsBrightness() {
		writeError(w, apierr.New(apierr.KindUnsupported, "device does not support brightness control"))
		return
	}
	if req.Brightness < dev.Capabilities.BrightnessMin || req.Brightness > dev.Capabilities.BrightnessMax {
		writeError(w, apierr.New(apierr.KindValidation, "brightness out of range"))
		return
	}

	d, err := s.scheduler.Driver(dev.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := d.SetBrightness(r.Context(), req.Brightness); err != nil {
		writeError(w, apierr.Wrap(apierr.KindDriverError, "failed to set brightness", err))
		return
	}
	if err := s.store.SetDeviceSettings(dev.ID, func(dv *store.Device) error {
		dv.Brightness = req.Brightness
		return nil
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type displayRequest struct {
	On bool `json:"on"`
}

// handleSetDisplay implements `POST /api/devices/:ip/display`
// (spec.md §6).
func (s *Server) handleSetDisplay(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	var req displayRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	d, err := s.scheduler.Driver(dev.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := d.SetDisplayOn(r.Context(), req.On); err != nil {
		writeError(w, apierr.Wrap(apierr.KindDriverError, "failed to set display power", err))
		return
	}
	if err := s.store.SetDeviceSettings(dev.ID, func(dv *store.Device) error {
		dv.DisplayOn = req.On
		return nil
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "displayOn": req.On})
}

// handleReboot implements `POST /api/devices/:ip/reboot` (spec.md §6):
// a driver-level reset that doesn't touch scheduler generation state,
// distinct from handleResetDevice's full scene teardown.
func (s *Server) handleReboot(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	d, err := s.scheduler.Driver(dev.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := d.Reset(r.Context()); err != nil {
		writeError(w, apierr.Wrap(apierr.KindDriverError, "reboot failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "message": "device rebooted"})
}

type driverRequest struct {
	Driver string `json:"driver"`
}

// handleSetDriver implements `POST /api/devices/:ip/driver`
// (spec.md §6): swap a device's driver at runtime.
func (s *Server) handleSetDriver(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	var req driverRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	kind, err := devicedriver.ParseKind(req.Driver)
	if err != nil {
		writeError(w, apierr.New(apierr.KindValidation, err.Error()))
		return
	}
	d, err := s.drivers.Build(kind, dev.ID, dev.Host, dev.Capabilities)
	if err != nil {
		writeError(w, apierr.Wrap(apierr.KindDriverError, "failed to construct driver", err))
		return
	}
	if err := s.scheduler.SwapDriver(r.Context(), dev.ID, d); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.SetDeviceSettings(dev.ID, func(dv *store.Device) error {
		dv.DriverKind = string(kind)
		return nil
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleResetDevice implements `POST /api/devices/:ip/reset`
// (spec.md §6).
func (s *Server) handleResetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	if err := s.scheduler.ResetDevice(r.Context(), dev.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleDaemonRestart implements `POST /api/daemon/restart` (spec.md
// §6): acknowledges immediately and triggers shutdown asynchronously
// so the response always reaches the client before the process exits.
func (s *Server) handleDaemonRestart(w http.ResponseWriter, r *http.Request) {
	if s.shutdown == nil {
		writeError(w, apierr.New(apierr.KindUnsupported, "daemon restart not wired"))
		return
	}
	go func() {
		// r.Context() is cancelled the moment this handler returns, but
		// the restart must still run after that, so it gets its own
		// background context rather than the request's.
		_ = s.shutdown.RequestRestart(context.Background())
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "ok", "message": "restart requested"})
}
