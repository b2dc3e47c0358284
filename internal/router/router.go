// Package router implements the Command Router (spec.md §4.3): it
// accepts inbound commands from the message bus, translates them into
// Scene Scheduler operations, and publishes outcome/state topics.
// Grounded on the teacher's internal/v3/bus.MemoryBus consumer style
// (subscribe once, dispatch by topic) combined with the router-style
// dispatch table idiom visible across the teacher's internal/api
// handlers, generalized from HTTP verbs to MQTT topic commands.
package router

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pixoo/daemon/internal/apierr"
	"github.com/pixoo/daemon/internal/bus"
	"github.com/pixoo/daemon/internal/devicedriver"
	"github.com/pixoo/daemon/internal/log"
	"github.com/pixoo/daemon/internal/metrics"
	"github.com/pixoo/daemon/internal/scheduler"
	"github.com/pixoo/daemon/internal/store"
)

// BuildInfo is stamped onto every outbound ok/state payload (spec.md
// §6's `{..., version, buildNumber, gitCommit}`).
type BuildInfo struct {
	Version     string
	BuildNumber string
	GitCommit   string
}

// Router is the Command Router.
type Router struct {
	bus       bus.Bus
	store     *store.Store
	scheduler *scheduler.Scheduler
	drivers   *devicedriver.Registry
	build     BuildInfo

	swapGroup singleflight.Group

	subsMu sync.Mutex
	subs   []bus.Subscriber
}

// New constructs a Router.
func New(b bus.Bus, st *store.Store, sched *scheduler.Scheduler, drivers *devicedriver.Registry, build BuildInfo) *Router {
	return &Router{bus: b, store: st, scheduler: sched, drivers: drivers, build: build}
}

// Start subscribes to both topic-prefix families and begins
// dispatching until ctx is cancelled.
func (r *Router) Start(ctx context.Context) error {
	for _, filter := range subscriptionFilters() {
		sub, err := r.bus.Subscribe(ctx, filter)
		if err != nil {
			return err
		}
		r.subsMu.Lock()
		r.subs = append(r.subs, sub)
		r.subsMu.Unlock()
		go r.consume(ctx, sub)
	}
	return nil
}

// Stop closes every subscription.
func (r *Router) Stop() {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for _, s := range r.subs {
		_ = s.Close()
	}
}

func (r *Router) consume(ctx context.Context, sub bus.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			r.handle(ctx, msg)
		}
	}
}

func (r *Router) handle(ctx context.Context, msg bus.Message) {
	logger := log.WithComponent("router")

	deviceID, cmd, ok := parseTopic(msg.Topic)
	if !ok {
		return // not a topic this router recognizes; ignore silently
	}

	if _, err := r.store.GetDevice(deviceID); err != nil {
		logger.Warn().Str("device_id", deviceID).Str("topic", msg.Topic).Msg("command for unknown device")
		r.publishError(ctx, deviceID, err)
		metrics.RouterCommands.WithLabelValues("bus", string(cmd), "unknown_device").Inc()
		return
	}

	payload, warn, err := parsePayload(msg.Payload)
	if err != nil {
		r.publishError(ctx, deviceID, err)
		metrics.RouterCommands.WithLabelValues("bus", string(cmd), "bad_payload").Inc()
		return
	}
	if warn {
		logger.Warn().Str("device_id", deviceID).Int("bytes", len(msg.Payload)).Msg("oversized payload accepted")
	}

	if err := r.dispatch(ctx, deviceID, cmd, payload); err != nil {
		r.publishError(ctx, deviceID, err)
		metrics.RouterCommands.WithLabelValues("bus", string(cmd), "error").Inc()
		return
	}

	metrics.RouterCommands.WithLabelValues("bus", string(cmd), "ok").Inc()
	r.publishOK(ctx, deviceID, payload)
}

func (r *Router) dispatch(ctx context.Context, deviceID string, cmd command, payload map[string]any) error {
	switch cmd {
	case cmdStateUpdate, cmdSceneSet:
		sceneName, ok := stringField(payload, "scene")
		if !ok {
			sceneName, ok = stringField(payload, "name")
		}
		if !ok {
			return apierr.New(apierr.KindValidation, "payload missing scene/name field")
		}
		return r.scheduler.SwitchScene(ctx, deviceID, sceneName, payload)

	case cmdDriverSet:
		return r.handleDriverSet(ctx, deviceID, payload)

	case cmdResetSet:
		return r.scheduler.ResetDevice(ctx, deviceID)

	default:
		return apierr.New(apierr.KindValidation, "unrecognized command")
	}
}

// handleDriverSet performs the driver swap, coalescing duplicate
// concurrent requests for the same device through singleflight so a
// burst of retries from a flaky client only swaps the driver once
// (SPEC_FULL.md §3).
func (r *Router) handleDriverSet(ctx context.Context, deviceID string, payload map[string]any) error {
	kindStr, ok := stringField(payload, "driver")
	if !ok {
		return apierr.New(apierr.KindValidation, "payload missing driver field")
	}
	kind, err := devicedriver.ParseKind(kindStr)
	if err != nil {
		return apierr.New(apierr.KindValidation, err.Error())
	}

	_, err, _ = r.swapGroup.Do(deviceID, func() (any, error) {
		dev, err := r.store.GetDevice(deviceID)
		if err != nil {
			return nil, err
		}
		driver, err := r.drivers.Build(kind, deviceID, dev.Host, dev.Capabilities)
		if err != nil {
			return nil, apierr.Wrap(apierr.KindDriverError, "failed to construct driver", err)
		}
		if err := r.scheduler.SwapDriver(ctx, deviceID, driver); err != nil {
			return nil, err
		}
		return nil, r.store.SetDeviceSettings(deviceID, func(d *store.Device) error {
			d.DriverKind = string(kind)
			return nil
		})
	})
	if err != nil {
		return err
	}
	r.publishRetained(ctx, deviceID, "driver", kindStr)
	return nil
}

func (r *Router) publishOK(ctx context.Context, deviceID string, payload map[string]any) {
	sceneName, _ := stringField(payload, "scene")
	body := okPayload{
		Status:      "ok",
		Scene:       sceneName,
		Timestamp:   time.Now().UnixMilli(),
		Version:     r.build.Version,
		BuildNumber: r.build.BuildNumber,
		GitCommit:   r.build.GitCommit,
	}
	_ = r.bus.Publish(ctx, "pixoo/"+deviceID+"/ok", body.marshal())
	if sceneName != "" {
		r.publishRetained(ctx, deviceID, "scene", sceneName)
	}
}

func (r *Router) publishRetained(ctx context.Context, deviceID, resource, value string) {
	_ = r.bus.Publish(ctx, "pixoo/"+deviceID+"/"+resource, []byte(value))
}

func (r *Router) publishError(ctx context.Context, deviceID string, err error) {
	_ = r.bus.Publish(ctx, "pixoo/"+deviceID+"/error", apierr.TopicPayload(time.Now().UnixMilli(), err))
}
