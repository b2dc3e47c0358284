package router

import (
	"encoding/json"
	"fmt"

	"github.com/pixoo/daemon/internal/apierr"
)

const (
	payloadWarnBytes   = 100 * 1024
	payloadRejectBytes = 1024 * 1024
)

// parsePayload decodes an inbound message body into a generic map,
// rejecting payloads over the hard size ceiling and warning (via the
// returned bool) on payloads over the soft ceiling (spec.md §6).
func parsePayload(raw []byte) (map[string]any, bool, error) {
	if len(raw) > payloadRejectBytes {
		return nil, false, apierr.New(apierr.KindValidation, fmt.Sprintf("payload of %d bytes exceeds the 1MB limit", len(raw)))
	}
	warn := len(raw) > payloadWarnBytes

	if len(raw) == 0 {
		return map[string]any{}, warn, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj, warn, nil
	}

	// driver/set accepts a bare string body ("real"/"mock") in
	// addition to {"driver": "..."} (spec.md §6).
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return map[string]any{"_bareString": str}, warn, nil
	}

	return nil, warn, apierr.New(apierr.KindValidation, "malformed payload: not valid JSON object or string")
}

// stringField reads a string field from a parsed payload, also
// accepting the bare-string form captured under "_bareString".
func stringField(payload map[string]any, key string) (string, bool) {
	if v, ok := payload["_bareString"].(string); ok {
		return v, true
	}
	v, ok := payload[key].(string)
	return v, ok
}
