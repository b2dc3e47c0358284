// Package scene defines the scene contract scenes implement and the
// immutable-after-startup registry the Scene Scheduler looks scenes up
// in. Scenes themselves (weather, clock, charts) are out of scope;
// this package only owns the contract and the container around it.
package scene

import (
	"context"

	"github.com/pixoo/daemon/internal/devicedriver"
)

// RenderStatus is the tri-valued result of a render call, replacing
// the exceptions-for-control-flow pattern of the original source: a
// scene never aborts rendering by throwing, it returns one of these.
type RenderStatus int

const (
	// RenderContinue means a frame was drawn and the scene wants to be
	// woken again after NextDelayMs.
	RenderContinue RenderStatus = iota
	// RenderTerminal means a frame was drawn and the scene is done;
	// the scheduler will not call render again for this activation.
	RenderTerminal
	// RenderFailed means render did not produce a usable frame; the
	// scheduler records the failure and does not push anything.
	RenderFailed
)

// RenderResult is returned by a scene's Render method.
type RenderResult struct {
	Status      RenderStatus
	NextDelayMs int
	Err         error
}

// State is the per-(device,scene) key/value bag a scene uses to carry
// data across render calls, bound to a single (deviceID, sceneName)
// pair for the lifetime of one activation.
type State interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// Context is what a scene receives on every call: the device's
// drawing surface, a log sink, its state bag, and the full command
// payload that triggered this activation (or re-activation). This
// replaces the source's ad-hoc dynamic "context" object with a fixed,
// polymorphic Go interface: all variability lives in Payload and
// State, never in the method signatures scenes implement.
type Context struct {
	context.Context

	DeviceID string
	Driver   devicedriver.Driver
	State    State
	Payload  map[string]any
	Log      func(msg string, fields map[string]any)
}

// Scene is the fixed interface every registered scene implements.
// Init and Cleanup are optional: a scene that only needs Render may
// embed NoopLifecycle.
type Scene interface {
	// Init prepares per-activation state. Returning an error aborts
	// the switch; the scheduler reverts to the prior currentScene.
	Init(ctx Context) error
	// Render draws one frame. For a looping scene it is called again
	// after NextDelayMs until it returns RenderTerminal or the
	// scheduler stops the loop for another reason (switch, failure
	// ceiling).
	Render(ctx Context) RenderResult
	// Cleanup runs (best-effort, bounded) when the scene is being
	// replaced or stopped. Failures are logged, never fatal.
	Cleanup(ctx Context) error
}

// NoopLifecycle can be embedded by scenes that don't need Init/Cleanup.
type NoopLifecycle struct{}

func (NoopLifecycle) Init(Context) error    { return nil }
func (NoopLifecycle) Cleanup(Context) error { return nil }

// Descriptor is the registry entry for one scene (spec.md §3
// SceneDescriptor): metadata plus a constructor, since a scene may
// carry per-activation fields and must not be shared across devices.
type Descriptor struct {
	Name          string
	WantsLoop     bool
	Category      string
	Tags          []string
	Description   string
	IsHidden      bool
	ConfigSchema  []byte // optional JSON Schema document, validated at switchScene time
	New           func() Scene
}
