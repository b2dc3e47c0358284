package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pixoo/daemon/internal/apierr"
	"github.com/pixoo/daemon/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	apierr.WriteHTTP(w, time.Now().UnixMilli(), err)
}

// deviceFromRequest resolves the {ip} path parameter against the State
// Store, writing a 404 itself on a miss so handlers can early-return.
func (s *Server) deviceFromRequest(w http.ResponseWriter, r *http.Request) (store.Device, bool) {
	id := chi.URLParam(r, "ip")
	dev, err := s.store.GetDevice(id)
	if err != nil {
		writeError(w, err)
		return store.Device{}, false
	}
	return dev, true
}

func decodeJSONBody(r *http.Request, v any) error {
	if r.Body == nil {
		return apierr.New(apierr.KindValidation, "missing request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apierr.Wrap(apierr.KindValidation, "malformed request body", err)
	}
	return nil
}
