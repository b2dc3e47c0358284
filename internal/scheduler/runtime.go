package scheduler

import (
	"sync"
	"time"

	"github.com/pixoo/daemon/internal/scene"
)

// pendingSwitch is one coalesced switchScene request.
type pendingSwitch struct {
	sceneName string
	payload   map[string]any
}

// deviceRuntime holds the scheduler-only bookkeeping for one device:
// the in-flight/pending switch slot, the outstanding wakeup timer, and
// the live scene instance. switchMu guards the switch slot, timerMu the
// wakeup timer, and renderMu (the device mutex, see below) the live
// scene; all three are distinct from the State Store's own per-device
// mutex, which only ever protects DeviceSceneState field access.
type deviceRuntime struct {
	switchMu sync.Mutex

	switching bool
	current   pendingSwitch
	pending   *pendingSwitch

	timerMu sync.Mutex
	timer   *time.Timer

	// renderMu is the device mutex spec.md §5 calls for: it is held for
	// the full duration of one render+push+state-update cycle in
	// submitAnimationFrame, and for the full duration of the
	// activeScene-mutating section of a switch/stop, so a wakeup that
	// already passed its generation check can never race a concurrent
	// switch/stop into pushing a frame from a torn-down scene. It also
	// guards activeScene/activeSceneName themselves, which only the
	// switch/stop goroutine writes and only the render goroutine reads.
	renderMu        sync.Mutex
	activeScene     scene.Scene
	activeSceneName string
}

func newDeviceRuntime() *deviceRuntime {
	return &deviceRuntime{}
}

// tryBeginSwitch starts a new switch if none is in flight, returning
// true. If one is already running, req becomes the pending next
// switch (overwriting any previously queued one) and false is
// returned: the caller must not start a second concurrent runSwitch.
func (rt *deviceRuntime) tryBeginSwitch(req pendingSwitch) bool {
	rt.switchMu.Lock()
	defer rt.switchMu.Unlock()
	if rt.switching {
		rt.pending = &req
		return false
	}
	rt.switching = true
	rt.current = req
	return true
}

// beginQueuedSwitch installs a coalesced pending switch as the
// current one being executed, called by the same goroutine that is
// already inside runSwitch's loop.
func (rt *deviceRuntime) beginQueuedSwitch(req pendingSwitch) {
	rt.switchMu.Lock()
	defer rt.switchMu.Unlock()
	rt.current = req
}

// takeCurrentSwitch returns the switch currently being executed.
func (rt *deviceRuntime) takeCurrentSwitch() pendingSwitch {
	rt.switchMu.Lock()
	defer rt.switchMu.Unlock()
	return rt.current
}

// takePendingIfAny atomically consumes the queued pending switch, if
// any (spec.md §4.1: "at most one pending switch is retained").
func (rt *deviceRuntime) takePendingIfAny() (pendingSwitch, bool) {
	rt.switchMu.Lock()
	defer rt.switchMu.Unlock()
	if rt.pending == nil {
		return pendingSwitch{}, false
	}
	p := *rt.pending
	rt.pending = nil
	return p, true
}

// endSwitch marks the device as idle (no switch in flight).
func (rt *deviceRuntime) endSwitch() {
	rt.switchMu.Lock()
	defer rt.switchMu.Unlock()
	rt.switching = false
}

// cancelWakeup stops any outstanding frame-wakeup timer.
func (rt *deviceRuntime) cancelWakeup() {
	rt.timerMu.Lock()
	defer rt.timerMu.Unlock()
	if rt.timer != nil {
		rt.timer.Stop()
		rt.timer = nil
	}
}

func (rt *deviceRuntime) setWakeup(t *time.Timer) {
	rt.timerMu.Lock()
	defer rt.timerMu.Unlock()
	if rt.timer != nil {
		rt.timer.Stop()
	}
	rt.timer = t
}
