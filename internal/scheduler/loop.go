package scheduler

import (
	"context"
	"time"

	"github.com/pixoo/daemon/internal/apierr"
	"github.com/pixoo/daemon/internal/log"
	"github.com/pixoo/daemon/internal/metrics"
	"github.com/pixoo/daemon/internal/scene"
	"github.com/pixoo/daemon/internal/store"
)

// requestFrame schedules the next render for (deviceID, gen) after
// delayMs, clamped to the minimum render interval floor (spec.md
// §4.1/§7). gen is the generation this wakeup is tagged with; the
// stale-frame gate in submitAnimationFrame drops it if the device has
// since moved to a newer generation.
func (s *Scheduler) requestFrame(ctx context.Context, deviceID string, rt *deviceRuntime, gen uint64, delayMs int64) {
	if delayMs < s.cfg.MinRenderIntervalMs {
		delayMs = s.cfg.MinRenderIntervalMs
	}
	t := time.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() {
		s.submitAnimationFrame(ctx, deviceID, rt, gen)
	})
	rt.setWakeup(t)
}

// submitAnimationFrame is the internal self-delivery wakeup from a
// self-looping scene (spec.md §4.1). Dropped with no effect if gen no
// longer matches the device's current generation: this is the stale-
// frame gate that guarantees no frames from a superseded scene are
// ever pushed. The entire gen-check->render->push cycle runs under
// the device mutex (spec.md §5), the same lock executeSwitch/StopScene
// hold while bumping the generation and swapping activeScene, so an
// already-fired wakeup can never observe a half-torn-down scene.
func (s *Scheduler) submitAnimationFrame(ctx context.Context, deviceID string, rt *deviceRuntime, gen uint64) {
	rt.renderMu.Lock()
	defer rt.renderMu.Unlock()

	st, err := s.store.GetDeviceState(deviceID)
	if err != nil {
		return
	}
	if st.GenerationID != gen {
		return // stale frame gate: superseded by a switch/stop/reset
	}
	if st.PlayState != store.PlayRunning {
		return // paused or stopped; requestFrame will be re-issued on resume
	}
	if rt.activeScene == nil {
		return
	}

	logger := log.WithDevice(log.WithComponent("scheduler"), deviceID)
	activeScene := rt.activeScene
	activeSceneName := rt.activeSceneName
	sctx := s.sceneContext(ctx, deviceID, activeSceneName, nil)
	renderStart := time.Now()
	result := activeScene.Render(sctx)
	if elapsed := time.Since(renderStart); s.cfg.RenderSoftTarget > 0 && elapsed > s.cfg.RenderSoftTarget {
		logger.Warn().Dur("elapsed", elapsed).Msg("scene render exceeded soft target")
	}

	// Re-check immediately before the push: still under renderMu, so
	// this can only differ from the check above if the mutator itself
	// observes a stale state some other way, but it keeps the push
	// gated on the freshest possible read rather than trusting the
	// pre-render snapshot.
	if st, err := s.store.GetDeviceState(deviceID); err != nil || st.GenerationID != gen {
		return
	}

	switch result.Status {
	case scene.RenderFailed:
		s.recordRenderFailure(ctx, deviceID, rt, gen, result.Err)
		return
	case scene.RenderTerminal:
		if err := s.pushFrame(ctx, deviceID, activeSceneName); err != nil {
			logger.Warn().Err(err).Msg("push failed on terminal frame")
		}
		_ = s.store.SetDeviceState(deviceID, func(st *store.DeviceSceneState) error {
			if st.GenerationID != gen {
				return nil
			}
			st.ConsecutiveFailures = 0
			return nil
		})
		return
	case scene.RenderContinue:
		if err := s.pushFrame(ctx, deviceID, activeSceneName); err != nil {
			s.recordRenderFailure(ctx, deviceID, rt, gen, err)
			return
		}
		_ = s.store.SetDeviceState(deviceID, func(st *store.DeviceSceneState) error {
			if st.GenerationID != gen {
				return nil
			}
			st.ConsecutiveFailures = 0
			return nil
		})
		s.requestFrame(ctx, deviceID, rt, gen, int64(result.NextDelayMs))
	}
}

// recordRenderFailure increments the per-device consecutive-failure
// counter and halts the loop after MaxConsecutiveFailures (spec.md
// §4.1, default 5), publishing a scene-halted event on exhaustion.
func (s *Scheduler) recordRenderFailure(ctx context.Context, deviceID string, rt *deviceRuntime, gen uint64, cause error) {
	logger := log.WithDevice(log.WithComponent("scheduler"), deviceID)
	var halted bool
	_ = s.store.SetDeviceState(deviceID, func(st *store.DeviceSceneState) error {
		if st.GenerationID != gen {
			return nil
		}
		st.ConsecutiveFailures++
		if st.ConsecutiveFailures >= s.cfg.MaxConsecutiveFailures {
			st.PlayState = store.PlayStopped
			halted = true
		}
		return nil
	})
	metrics.SceneFailures.WithLabelValues(deviceID, rt.activeSceneName, "render").Inc()
	s.publishError(ctx, deviceID, apierr.Wrap(apierr.KindSceneRenderError, "scene render failed", cause))
	if halted {
		s.publishError(ctx, deviceID, apierr.New(apierr.KindSceneRenderError, "scene halted after consecutive render failures"))
		logger.Error().Int("consecutive_failures", s.cfg.MaxConsecutiveFailures).Msg("scene halted after consecutive render failures")
		return
	}
	logger.Warn().Err(cause).Msg("scene render failed, loop continues")
	s.requestFrame(ctx, deviceID, rt, gen, s.cfg.MinRenderIntervalMs)
}

// pushFrame ships the current framebuffer to hardware, making up to
// MaxPushRetries attempts in total with linear backoff between them
// before marking the device degraded (spec.md §4.1).
func (s *Scheduler) pushFrame(ctx context.Context, deviceID, sceneName string) error {
	d, err := s.driver(deviceID)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxPushRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * s.cfg.PushRetryBackoff)
		}
		pushStart := time.Now()
		_, err := d.Push(ctx, sceneName)
		metrics.DriverFrametime.WithLabelValues(deviceID).Observe(time.Since(pushStart).Seconds())
		if err != nil {
			lastErr = err
			metrics.DriverPushes.WithLabelValues(deviceID, "error").Inc()
			continue
		}
		metrics.DriverPushes.WithLabelValues(deviceID, "ok").Inc()
		return nil
	}

	metrics.DevicesDegraded.Inc()
	s.publishError(ctx, deviceID, apierr.Wrap(apierr.KindDriverError, "push exhausted retries, device degraded", lastErr))
	return lastErr
}
