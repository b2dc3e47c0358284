// Package metrics exposes the Prometheus instrumentation surface for
// the scheduler, device drivers and watchdog, grounded on the
// teacher's internal/metrics package conventions (one file per
// concern, package-level collectors registered at init).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SchedulerTransitions counts every switch/stop/reset transition
	// per device, the scheduler's equivalent of the teacher's
	// fsmTransitions counter.
	SchedulerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixoo_scheduler_transitions_total",
		Help: "Scene scheduler state transitions by device and outcome.",
	}, []string{"device_id", "status"})

	// SchedulerGeneration tracks the current generation per device.
	SchedulerGeneration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pixoo_scheduler_generation",
		Help: "Current scheduler generation id per device.",
	}, []string{"device_id"})

	// DriverPushes counts successful/failed pushes per device.
	DriverPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixoo_driver_pushes_total",
		Help: "Frames pushed to a device driver, by outcome.",
	}, []string{"device_id", "outcome"})

	// DriverFrametime observes the duration of a single push call.
	DriverFrametime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pixoo_driver_frametime_seconds",
		Help:    "Duration of a single driver push call.",
		Buckets: prometheus.DefBuckets,
	}, []string{"device_id"})

	// WatchdogTriggers counts remediation actions taken.
	WatchdogTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixoo_watchdog_triggers_total",
		Help: "Watchdog remediation actions taken, by device and action.",
	}, []string{"device_id", "action"})

	// DevicesDegraded tracks devices currently in the degraded state.
	DevicesDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pixoo_devices_degraded",
		Help: "Number of devices currently marked degraded.",
	})

	// SceneFailures is a running total of scene render failures (not a
	// count of consecutive ones); only the "render" phase is recorded.
	SceneFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixoo_scene_failures_total",
		Help: "Scene init/render failures, by device, scene and phase.",
	}, []string{"device_id", "scene", "phase"})

	// RouterCommands counts inbound commands handled by the router.
	RouterCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixoo_router_commands_total",
		Help: "Inbound commands routed, by source, resource and outcome.",
	}, []string{"source", "resource", "outcome"})
)
