// Package scheduler implements the per-device Scene Scheduler
// (spec.md §4.1): a generation-based state machine ensuring exactly
// one active scene per device, clean handoff between scenes, and
// correct ordering guarantees for self-looping scenes. Grounded on
// the teacher's internal/domain/session/lifecycle (transition table)
// and internal/domain/session/manager.Orchestrator (per-key mutex +
// active-work map), generalized from distributed session leases to a
// single-process per-device generation counter — this daemon has no
// multi-writer contention to guard against, so the orchestrator's
// guard-lease/split-brain machinery has no home here.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pixoo/daemon/internal/apierr"
	"github.com/pixoo/daemon/internal/devicedriver"
	"github.com/pixoo/daemon/internal/log"
	"github.com/pixoo/daemon/internal/metrics"
	"github.com/pixoo/daemon/internal/scene"
	"github.com/pixoo/daemon/internal/store"
)

// Publisher is the thin outbound capability the scheduler needs to
// announce state transitions (spec.md §9 design note: a publish-only
// interface, not a back-reference to the bus adapter, cuts the
// scheduler<->bus<->scheduler cycle).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Config holds the scheduler's tunable ceilings (spec.md §4.1/§4.3).
type Config struct {
	InitCeiling          time.Duration // default 2s
	CleanupCeiling       time.Duration // default 2s
	RenderSoftTarget     time.Duration // default 500ms, recorded only
	MaxConsecutiveFailures int         // default 5
	MaxPushRetries       int           // default 3
	PushRetryBackoff     time.Duration // default 200ms, linear
	MinRenderIntervalMs  int64         // default 20ms floor
	ShutdownGrace        time.Duration // default 2s
}

// DefaultConfig returns the ceilings named in spec.md §4.1/§7.
func DefaultConfig() Config {
	return Config{
		InitCeiling:            2 * time.Second,
		CleanupCeiling:         2 * time.Second,
		RenderSoftTarget:       500 * time.Millisecond,
		MaxConsecutiveFailures: 5,
		MaxPushRetries:         3,
		PushRetryBackoff:       200 * time.Millisecond,
		MinRenderIntervalMs:    20,
		ShutdownGrace:          2 * time.Second,
	}
}

// Scheduler is the hardest part of the daemon: it owns every device's
// generation counter, switch-in-progress flag, and render loop logic.
type Scheduler struct {
	cfg Config

	store    *store.Store
	scenes   *scene.Registry
	pub      Publisher

	driversMu sync.RWMutex
	drivers   map[string]devicedriver.Driver

	runtimesMu sync.Mutex
	runtimes   map[string]*deviceRuntime
}

// New constructs a Scheduler. drivers are registered with SetDriver as
// devices come online.
func New(st *store.Store, scenes *scene.Registry, pub Publisher, cfg Config) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		store:    st,
		scenes:   scenes,
		pub:      pub,
		drivers:  make(map[string]devicedriver.Driver),
		runtimes: make(map[string]*deviceRuntime),
	}
}

// SetDriver installs (or replaces) the driver instance for a device.
// Does not itself stop/restart a running scene; callers implementing
// the `driver/set` command call SwapDriver instead (spec.md §6).
func (s *Scheduler) SetDriver(deviceID string, d devicedriver.Driver) {
	s.driversMu.Lock()
	defer s.driversMu.Unlock()
	s.drivers[deviceID] = d
}

// Driver returns the driver instance currently installed for a
// device, for callers outside the scheduler (REST metrics/diagnostics
// endpoints) that need read-only access to it.
func (s *Scheduler) Driver(deviceID string) (devicedriver.Driver, error) {
	return s.driver(deviceID)
}

func (s *Scheduler) driver(deviceID string) (devicedriver.Driver, error) {
	s.driversMu.RLock()
	defer s.driversMu.RUnlock()
	d, ok := s.drivers[deviceID]
	if !ok {
		return nil, apierr.New(apierr.KindUnknownDevice, "no driver registered for device: "+deviceID)
	}
	return d, nil
}

// RegisterDevice prepares scheduler-side runtime bookkeeping for a
// device already known to the State Store.
func (s *Scheduler) RegisterDevice(deviceID string) {
	s.runtimesMu.Lock()
	defer s.runtimesMu.Unlock()
	if _, ok := s.runtimes[deviceID]; !ok {
		s.runtimes[deviceID] = newDeviceRuntime()
	}
}

func (s *Scheduler) runtime(deviceID string) (*deviceRuntime, error) {
	s.runtimesMu.Lock()
	defer s.runtimesMu.Unlock()
	rt, ok := s.runtimes[deviceID]
	if !ok {
		return nil, apierr.New(apierr.KindUnknownDevice, "unknown device: "+deviceID)
	}
	return rt, nil
}

// SwitchScene transitions a device onto sceneName, implementing the
// 10-step switch protocol and BusyTransition coalescing (spec.md
// §4.1). If a switch is already executing for this device, the
// request is queued as the pending next switch; at most one pending
// switch is retained, the newest overwriting any older one.
func (s *Scheduler) SwitchScene(ctx context.Context, deviceID, sceneName string, payload map[string]any) error {
	if _, err := s.store.GetDevice(deviceID); err != nil {
		return err
	}
	desc, ok := s.scenes.Lookup(sceneName)
	if !ok {
		return apierr.New(apierr.KindUnknownScene, "unknown scene: "+sceneName)
	}
	if err := scene.ValidatePayload(desc, payload); err != nil {
		return err
	}

	rt, err := s.runtime(deviceID)
	if err != nil {
		return err
	}

	if !rt.tryBeginSwitch(pendingSwitch{sceneName: sceneName, payload: payload}) {
		// A switch is already in flight; this request is now the
		// queued pending switch (tryBeginSwitch coalesced it).
		return nil
	}

	go s.runSwitch(ctx, deviceID, rt)
	return nil
}

// runSwitch executes the 10-step protocol once, then, if a pending
// switch was coalesced in while it ran, immediately restarts from
// step 2 for the new target (spec.md §4.1 BusyTransition policy).
func (s *Scheduler) runSwitch(ctx context.Context, deviceID string, rt *deviceRuntime) {
	for {
		next := rt.takeCurrentSwitch()
		s.executeSwitch(ctx, deviceID, rt, next)

		pending, ok := rt.takePendingIfAny()
		if !ok {
			rt.endSwitch()
			return
		}
		rt.beginQueuedSwitch(pending)
	}
}

func (s *Scheduler) executeSwitch(ctx context.Context, deviceID string, rt *deviceRuntime, next pendingSwitch) {
	logger := log.WithDevice(log.WithComponent("scheduler"), deviceID)

	// Step 3: switching + generation bump, cancel outstanding wakeup.
	rt.cancelWakeup()

	// Holds the device mutex for the whole switch: a wakeup that fired
	// just before this runs blocks here until the switch finishes, at
	// which point its generation check (also under renderMu) is stale
	// and it no-ops instead of pushing the outgoing scene's frame.
	rt.renderMu.Lock()
	defer rt.renderMu.Unlock()

	var newGen uint64
	var priorScene string
	err := s.store.SetDeviceState(deviceID, func(st *store.DeviceSceneState) error {
		priorScene = st.CurrentScene
		st.TargetScene = next.sceneName
		st.Status = store.StatusSwitching
		st.GenerationID++
		st.LoopToken = 0
		st.ConsecutiveFailures = 0
		newGen = st.GenerationID
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to record switching state")
		return
	}
	s.publishState(ctx, deviceID)

	// Step 5: outgoing scene cleanup, best-effort.
	if rt.activeScene != nil {
		cleanupCtx, cancel := context.WithTimeout(ctx, s.cfg.CleanupCeiling)
		err := rt.activeScene.Cleanup(s.sceneContext(cleanupCtx, deviceID, rt.activeSceneName, nil))
		cancel()
		if err != nil {
			logger.Warn().Err(err).Str("scene", rt.activeSceneName).Msg("scene cleanup failed, continuing switch")
		}
	}

	desc, ok := s.scenes.Lookup(next.sceneName)
	if !ok {
		// Should not happen: validated in SwitchScene, but a concurrent
		// registry issue is theoretically possible pre-freeze.
		s.revertSwitch(ctx, deviceID, priorScene, newGen)
		return
	}

	inst := desc.New()
	initCtx, cancel := context.WithTimeout(ctx, s.cfg.InitCeiling)
	sctx := s.sceneContext(initCtx, deviceID, next.sceneName, next.payload)
	initErr := inst.Init(sctx)
	cancel()
	if initErr != nil {
		logger.Error().Err(initErr).Str("scene", next.sceneName).Msg("scene init failed, reverting switch")
		s.revertSwitch(ctx, deviceID, priorScene, newGen)
		s.publishError(ctx, deviceID, apierr.Wrap(apierr.KindSceneInitError, "scene init failed", initErr))
		return
	}

	rt.activeScene = inst
	rt.activeSceneName = next.sceneName

	// Steps 8-9: running, clear targetScene, request first frame.
	err = s.store.SetDeviceState(deviceID, func(st *store.DeviceSceneState) error {
		st.CurrentScene = next.sceneName
		st.TargetScene = ""
		st.Status = store.StatusRunning
		st.PlayState = store.PlayRunning
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to record running state")
		return
	}
	s.publishState(ctx, deviceID)

	s.requestFrame(ctx, deviceID, rt, newGen, 0)
}

func (s *Scheduler) revertSwitch(ctx context.Context, deviceID, priorScene string, failedGen uint64) {
	_ = s.store.SetDeviceState(deviceID, func(st *store.DeviceSceneState) error {
		if st.GenerationID != failedGen {
			return nil // superseded by a later switch already
		}
		st.CurrentScene = priorScene
		st.TargetScene = ""
		st.GenerationID++
		if priorScene != "" {
			st.Status = store.StatusRunning
			st.PlayState = store.PlayRunning
		} else {
			st.Status = store.StatusIdle
			st.PlayState = store.PlayStopped
		}
		return nil
	})
	s.publishState(ctx, deviceID)
}

// PauseScene suspends the frame loop but retains state (idempotent).
func (s *Scheduler) PauseScene(deviceID string) error {
	rt, err := s.runtime(deviceID)
	if err != nil {
		return err
	}
	rt.cancelWakeup()
	return s.store.SetDeviceState(deviceID, func(st *store.DeviceSceneState) error {
		st.PlayState = store.PlayPaused
		return nil
	})
}

// ResumeScene resumes the frame loop from where it was paused
// (idempotent; no effect if the device is not running/paused).
func (s *Scheduler) ResumeScene(ctx context.Context, deviceID string) error {
	rt, err := s.runtime(deviceID)
	if err != nil {
		return err
	}
	st, err := s.store.GetDeviceState(deviceID)
	if err != nil {
		return err
	}
	if st.PlayState != store.PlayPaused {
		return nil
	}
	if err := s.store.SetDeviceState(deviceID, func(st *store.DeviceSceneState) error {
		st.PlayState = store.PlayRunning
		return nil
	}); err != nil {
		return err
	}
	s.requestFrame(ctx, deviceID, rt, st.GenerationID, 0)
	return nil
}

// StopScene cancels the loop, clears the framebuffer, sets
// status=stopped and increments the generation (idempotent; display
// power is left untouched per spec.md §11's explicit Open Question
// decision).
func (s *Scheduler) StopScene(ctx context.Context, deviceID string) error {
	rt, err := s.runtime(deviceID)
	if err != nil {
		return err
	}
	rt.cancelWakeup()

	rt.renderMu.Lock()
	defer rt.renderMu.Unlock()

	if d, derr := s.driver(deviceID); derr == nil {
		d.Clear()
	}

	if rt.activeScene != nil {
		cleanupCtx, cancel := context.WithTimeout(ctx, s.cfg.CleanupCeiling)
		_ = rt.activeScene.Cleanup(s.sceneContext(cleanupCtx, deviceID, rt.activeSceneName, nil))
		cancel()
	}
	rt.activeScene = nil
	rt.activeSceneName = ""

	err = s.store.SetDeviceState(deviceID, func(st *store.DeviceSceneState) error {
		st.CurrentScene = ""
		st.TargetScene = ""
		st.Status = store.StatusStopped
		st.PlayState = store.PlayStopped
		st.GenerationID++
		st.LoopToken = 0
		return nil
	})
	if err != nil {
		return err
	}
	s.publishState(ctx, deviceID)
	return nil
}

// ResetDevice stops the current scene and resets the driver,
// incrementing the generation (used by watchdog restart remediation).
func (s *Scheduler) ResetDevice(ctx context.Context, deviceID string) error {
	if err := s.StopScene(ctx, deviceID); err != nil {
		return err
	}
	d, err := s.driver(deviceID)
	if err != nil {
		return err
	}
	return d.Reset(ctx)
}

// SwapDriver implements the `driver/set` command: stop the current
// scene, install the new driver, and best-effort re-switch to the
// prior currentScene (spec.md §6 "Driver swap").
func (s *Scheduler) SwapDriver(ctx context.Context, deviceID string, d devicedriver.Driver) error {
	st, err := s.store.GetDeviceState(deviceID)
	if err != nil {
		return err
	}
	prior := st.CurrentScene

	if err := s.StopScene(ctx, deviceID); err != nil {
		return err
	}
	s.SetDriver(deviceID, d)

	if prior == "" {
		return nil
	}
	return s.SwitchScene(ctx, deviceID, prior, nil)
}

// Shutdown issues stopScene to every registered device and waits up
// to the configured grace window for in-flight pushes to settle
// (spec.md §7).
func (s *Scheduler) Shutdown(ctx context.Context) {
	s.runtimesMu.Lock()
	ids := make([]string, 0, len(s.runtimes))
	for id := range s.runtimes {
		ids = append(ids, id)
	}
	s.runtimesMu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownGrace)
	defer cancel()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(deviceID string) {
			defer wg.Done()
			if err := s.StopScene(shutdownCtx, deviceID); err != nil {
				log.WithComponent("scheduler").Warn().Err(err).Str("device_id", deviceID).Msg("stopScene failed during shutdown")
			}
		}(id)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.WithComponent("scheduler").Warn().Msg("shutdown grace window elapsed before every device stopped")
	}
}

func (s *Scheduler) sceneContext(ctx context.Context, deviceID, sceneName string, payload map[string]any) scene.Context {
	d, _ := s.driver(deviceID)
	logger := log.WithDevice(log.WithComponent("scene"), deviceID)
	return scene.Context{
		Context:  ctx,
		DeviceID: deviceID,
		Driver:   d,
		State:    s.store.NewSceneState(deviceID, sceneName),
		Payload:  payload,
		Log: func(msg string, fields map[string]any) {
			ev := logger.Info()
			for k, v := range fields {
				ev = ev.Interface(k, v)
			}
			ev.Msg(msg)
		},
	}
}

func (s *Scheduler) publishState(ctx context.Context, deviceID string) {
	st, err := s.store.GetDeviceState(deviceID)
	if err != nil || s.pub == nil {
		return
	}
	payload := []byte(fmt.Sprintf(
		`{"status":%q,"currentScene":%q,"targetScene":%q,"generationId":%d}`,
		st.Status, st.CurrentScene, st.TargetScene, st.GenerationID,
	))
	_ = s.pub.Publish(ctx, "pixoo/"+deviceID+"/scene/state", payload)
	metrics.SchedulerTransitions.WithLabelValues(deviceID, string(st.Status)).Inc()
	metrics.SchedulerGeneration.WithLabelValues(deviceID).Set(float64(st.GenerationID))
}

func (s *Scheduler) publishError(ctx context.Context, deviceID string, err error) {
	if s.pub == nil {
		return
	}
	_ = s.pub.Publish(ctx, "pixoo/"+deviceID+"/error", apierr.TopicPayload(time.Now().UnixMilli(), err))
}
