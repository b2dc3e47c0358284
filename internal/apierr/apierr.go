// Package apierr implements the error taxonomy from the spec: a small
// set of machine-readable error kinds shared by the scheduler, the
// command router and the REST adapter, so every surface reports
// failures the same way and none of them ever leaks a stack trace.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind is a machine-readable error classification.
type Kind string

const (
	KindValidation      Kind = "VALIDATION_ERROR"
	KindUnknownDevice    Kind = "UNKNOWN_DEVICE"
	KindUnknownScene     Kind = "UNKNOWN_SCENE"
	KindBusyTransition   Kind = "BUSY_TRANSITION"
	KindDriverError      Kind = "DRIVER_ERROR"
	KindUnsupported      Kind = "UNSUPPORTED_OPERATION"
	KindSceneInitError   Kind = "SCENE_INIT_ERROR"
	KindSceneRenderError Kind = "SCENE_RENDER_ERROR"
	KindWatchdog         Kind = "WATCHDOG_TRIGGERED"
	KindFatal            Kind = "FATAL"
	KindInternal         Kind = "INTERNAL_ERROR"
)

// Error is the structured error carried through the system. It never
// carries a stack trace so it is always safe to surface externally.
type Error struct {
	Kind    Kind   `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a new typed error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap attaches a cause to a typed error without exposing the cause's
// text externally (callers use Error() only for internal logs).
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// As is a thin wrapper over errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus maps a Kind to the REST status code named in spec.md §6/§7.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindUnsupported, KindUnknownScene:
		return http.StatusBadRequest
	case KindUnknownDevice:
		return http.StatusNotFound
	case KindBusyTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// wireError is the shape published to error topics and returned to REST
// clients: never a stack trace, always {error, timestamp}.
type wireError struct {
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
}

// WriteHTTP writes the error as a REST response body.
func WriteHTTP(w http.ResponseWriter, nowUnixMilli int64, err error) {
	kind := KindInternal
	msg := "internal error"
	if e, ok := As(err); ok {
		kind = e.Kind
		msg = e.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(wireError{Error: msg, Timestamp: nowUnixMilli})
}

// TopicPayload returns the payload published to `pixoo/<id>/error`.
func TopicPayload(nowUnixMilli int64, err error) []byte {
	msg := "internal error"
	if e, ok := As(err); ok {
		msg = e.Message
	}
	b, _ := json.Marshal(wireError{Error: msg, Timestamp: nowUnixMilli})
	return b
}
