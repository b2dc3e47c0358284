// Package watchdog implements liveness monitoring with configurable
// remediation actions (spec.md §4.4). Grounded on the teacher's
// internal/domain/session/manager.Sweeper: its own independent timer
// loop, hysteresis against flapping, and per-key forced-action path,
// generalized from lease-expiry sweeps to per-device frame-liveness
// checks with a pluggable remediation action instead of a single
// forced-stop.
package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/pixoo/daemon/internal/apierr"
	"github.com/pixoo/daemon/internal/bus"
	"github.com/pixoo/daemon/internal/log"
	"github.com/pixoo/daemon/internal/metrics"
	"github.com/pixoo/daemon/internal/scene"
	"github.com/pixoo/daemon/internal/store"
)

// SceneSwitcher is the subset of the scheduler the watchdog drives
// remediation through, kept narrow to avoid a watchdog<->scheduler
// import cycle beyond what's strictly needed.
type SceneSwitcher interface {
	SwitchScene(ctx context.Context, deviceID, sceneName string, payload map[string]any) error
	ResetDevice(ctx context.Context, deviceID string) error
}

// Watchdog runs its own timer loop, independent of any device's
// render loop, and keeps functioning even if every scene is stalled
// (spec.md §4.4's primary reliability requirement).
type Watchdog struct {
	store     *store.Store
	scenes    *scene.Registry
	scheduler SceneSwitcher
	pub       bus.Bus

	defaultInterval time.Duration

	mu     sync.Mutex
	strikes map[string]int // deviceID -> consecutive over-threshold checks

	stopCh chan struct{}
}

// New constructs a Watchdog. defaultInterval is the check interval for
// every device (10s when zero or negative); a device's own
// watchdogConfig.healthCheckIntervalSeconds is not read.
func New(st *store.Store, scenes *scene.Registry, scheduler SceneSwitcher, pub bus.Bus, defaultInterval time.Duration) *Watchdog {
	if defaultInterval <= 0 {
		defaultInterval = 10 * time.Second
	}
	return &Watchdog{
		store:           st,
		scenes:          scenes,
		scheduler:       scheduler,
		pub:             pub,
		defaultInterval: defaultInterval,
		strikes:         make(map[string]int),
		stopCh:          make(chan struct{}),
	}
}

// Run drives the periodic check loop until ctx is cancelled. One
// ticker at defaultInterval covers every device, so all devices are
// checked at the same cadence; only the hysteresis strike count is
// tracked per device.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.tickInterval())
	defer ticker.Stop()

	logger := log.WithComponent("watchdog")
	logger.Info().Dur("interval", w.tickInterval()).Msg("watchdog loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("watchdog loop stopped")
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.checkAll(ctx)
		}
	}
}

// Stop halts the loop without requiring a context cancellation,
// primarily for tests.
func (w *Watchdog) Stop() { close(w.stopCh) }

// tickInterval is a conservative default; per-device cadence could in
// principle run finer-grained, but one shared ticker keeps this loop
// trivially immune to per-device scene stalls, which is the whole
// point of running independently of the render loop.
func (w *Watchdog) tickInterval() time.Duration {
	const floor = 1 * time.Second
	if w.defaultInterval < floor {
		return floor
	}
	return w.defaultInterval
}

func (w *Watchdog) checkAll(ctx context.Context) {
	now := time.Now().UnixMilli()
	for _, rec := range w.store.ListDevices() {
		w.checkDevice(ctx, rec.Device, rec.State, now)
	}
}

func (w *Watchdog) checkDevice(ctx context.Context, dev store.Device, st store.DeviceSceneState, nowMs int64) {
	wc := dev.WatchdogConfig
	if !wc.Enabled {
		w.resetStrikes(dev.ID)
		return
	}
	if !wc.CheckWhenOff && !dev.DisplayOn {
		w.resetStrikes(dev.ID)
		return
	}

	expectedPushing := st.CurrentScene != "" && st.PlayState == store.PlayRunning
	if desc, ok := w.scenes.Lookup(st.CurrentScene); ok {
		expectedPushing = expectedPushing && desc.WantsLoop
	} else {
		expectedPushing = false
	}
	if !expectedPushing {
		w.resetStrikes(dev.ID)
		return
	}

	timeout := time.Duration(wc.TimeoutMinutes) * time.Minute
	overThreshold := time.Duration(nowMs-st.LastSeenTs)*time.Millisecond > timeout

	if !overThreshold {
		w.resetStrikes(dev.ID)
		return
	}

	strikes := w.bumpStrikes(dev.ID)
	if strikes < 2 {
		return // hysteresis: two consecutive over-threshold checks required
	}
	w.resetStrikes(dev.ID)
	w.remediate(ctx, dev, st)
}

func (w *Watchdog) bumpStrikes(deviceID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.strikes[deviceID]++
	return w.strikes[deviceID]
}

func (w *Watchdog) resetStrikes(deviceID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.strikes, deviceID)
}

func (w *Watchdog) remediate(ctx context.Context, dev store.Device, st store.DeviceSceneState) {
	logger := log.WithDevice(log.WithComponent("watchdog"), dev.ID)
	action := dev.WatchdogConfig.Action
	metrics.WatchdogTriggers.WithLabelValues(dev.ID, action).Inc()
	logger.Warn().Str("action", action).Str("current_scene", st.CurrentScene).Msg("watchdog threshold exceeded, remediating")

	switch action {
	case "restart":
		if err := w.scheduler.ResetDevice(ctx, dev.ID); err != nil {
			logger.Error().Err(err).Msg("restart remediation: reset failed")
			return
		}
		if st.CurrentScene != "" {
			if err := w.scheduler.SwitchScene(ctx, dev.ID, st.CurrentScene, nil); err != nil {
				logger.Error().Err(err).Msg("restart remediation: re-switch failed")
			}
		}

	case "fallback-scene":
		if err := w.scheduler.SwitchScene(ctx, dev.ID, dev.WatchdogConfig.FallbackScene, nil); err != nil {
			logger.Error().Err(err).Msg("fallback-scene remediation failed")
		}

	case "mqtt-command-sequence":
		for _, cmd := range dev.WatchdogConfig.Commands {
			if err := w.pub.Publish(ctx, cmd.Topic, []byte(cmd.Payload)); err != nil {
				logger.Error().Err(err).Str("topic", cmd.Topic).Msg("mqtt-command-sequence remediation: publish failed")
			}
		}

	case "notify":
		// Logging above already constitutes the notification; no
		// further action is taken.

	default:
		logger.Error().Str("action", action).Msg("unknown watchdog action configured")
	}

	w.notify(ctx, dev.ID, action)
}

func (w *Watchdog) notify(ctx context.Context, deviceID, action string) {
	if w.pub == nil {
		return
	}
	payload := apierr.TopicPayload(time.Now().UnixMilli(), apierr.New(apierr.KindWatchdog, "watchdog triggered: "+action))
	_ = w.pub.Publish(ctx, "pixoo/"+deviceID+"/error", payload)
}
