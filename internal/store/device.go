// Package store implements the State Store: the single source of
// truth for per-device scene state, device settings and scheduler
// generations (spec.md §4.5). Grounded on the teacher's
// internal/v3/store.MemoryStore — a mutex-protected map-of-structs
// store — generalized from session/pipeline records to device/scene
// state and given a durable-subset persistence path the teacher's
// memory store intentionally lacks.
package store

import (
	"time"

	"github.com/pixoo/daemon/internal/capability"
	"github.com/pixoo/daemon/internal/config"
)

// Status is the scheduler-visible device lifecycle status (spec.md §3
// DeviceSceneState.status).
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSwitching Status = "switching"
	StatusRunning   Status = "running"
	StatusStopped   Status = "stopped"
)

// PlayState is independent of Status: a running scene may be paused
// without losing currentScene/generationId (spec.md §3).
type PlayState string

const (
	PlayRunning PlayState = "running"
	PlayPaused  PlayState = "paused"
	PlayStopped PlayState = "stopped"
)

// DeviceSceneState is the full per-device runtime record (spec.md §3).
// Copies of this type are handed out by GetDeviceState; only the store
// mutates the canonical copy, and only under the device's mutex.
type DeviceSceneState struct {
	CurrentScene string
	TargetScene  string
	GenerationID uint64
	Status       Status
	PlayState    PlayState
	LoopToken    uint64 // 0 means "no outstanding wakeup"

	LastFrameTs int64
	LastSeenTs  int64

	ConsecutiveFailures int

	// PerSceneState is keyed by scene name; each value is an opaque
	// key/value blob private to that scene (spec.md §3).
	PerSceneState map[string]map[string]any
}

func newDeviceSceneState() DeviceSceneState {
	return DeviceSceneState{
		Status:        StatusIdle,
		PlayState:     PlayStopped,
		PerSceneState: make(map[string]map[string]any),
	}
}

// Device is the full configuration + capability record for one
// device (spec.md §3 Device). DriverKind/Host/etc. mirror
// config.DeviceConfig; Device additionally carries the resolved
// capability descriptor and a CreatedAt for diagnostics.
type Device struct {
	ID             string
	DriverKind     string
	Host           string
	DeviceType     string
	Capabilities   capability.Display
	Brightness     int
	DisplayOn      bool
	StartupScene   string
	WatchdogConfig config.WatchdogConfig
	CreatedAt      time.Time
}

// DurableSnapshot is the subset of Device+DeviceSceneState that gets
// persisted (spec.md §4.5): enough to recover a sane running state
// after a crash, nothing ephemeral (no loop tokens, no per-scene
// state bags).
type DurableSnapshot struct {
	ID             string                `json:"id"`
	DriverKind     string                `json:"driverKind"`
	Host           string                `json:"host,omitempty"`
	DeviceType     string                `json:"deviceType"`
	Brightness     int                   `json:"brightness"`
	DisplayOn      bool                  `json:"displayOn"`
	StartupScene   string                `json:"startupScene,omitempty"`
	WatchdogConfig config.WatchdogConfig `json:"watchdog"`
	LastKnownScene string                `json:"lastKnownScene,omitempty"`
}
