package router

import "encoding/json"

// okPayload is the body published to `pixoo/<id>/ok` on a successfully
// dispatched command (spec.md §6).
type okPayload struct {
	Status      string `json:"status"`
	Scene       string `json:"scene,omitempty"`
	Timestamp   int64  `json:"timestamp"`
	Version     string `json:"version,omitempty"`
	BuildNumber string `json:"buildNumber,omitempty"`
	GitCommit   string `json:"gitCommit,omitempty"`
}

func (p okPayload) marshal() []byte {
	b, _ := json.Marshal(p)
	return b
}
