// Package devicedriver implements the device abstraction layer from
// spec.md §4.2: a uniform canvas/push contract with three concrete
// variants (RealHTTPPanel, MessageBusPanel, Mock) and a registry
// mapping deviceType to constructor.
package devicedriver

import (
	"context"
	"time"

	"github.com/pixoo/daemon/internal/apierr"
	"github.com/pixoo/daemon/internal/capability"
)

// Metrics is the snapshot returned by GetMetrics.
type Metrics struct {
	PushCount       int64
	ErrorCount      int64
	LastSeenTs      int64 // unix millis of the last successful push
	LastFrametimeMs int64
}

// Driver is the uniform contract every device variant implements.
// Optional methods return apierr.KindUnsupported when the underlying
// capability flag is false, distinct from a DriverError.
type Driver interface {
	Init(ctx context.Context) error
	IsReady() bool
	Capabilities() capability.Display

	Clear()
	DrawPixel(pos Point, col Color)
	DrawLine(a, b Point, col Color)
	FillRect(a, b Point, col Color)
	DrawRect(a, b Point, col Color)
	DrawText(str string, pos Point, col Color, align Align)
	DrawNumber(value float64, pos Point, col Color, align Align, decimals int)

	// Push atomically ships the current framebuffer to hardware and
	// returns the number of pixels in the framebuffer it sent. No diff
	// against the previous push is computed, so the count is the same
	// for every push on a given display.
	Push(ctx context.Context, sceneName string) (int, error)

	SetBrightness(ctx context.Context, pct int) error
	SetDisplayOn(ctx context.Context, on bool) error
	SetIcon(ctx context.Context, id string) error
	PlayTone(ctx context.Context, freqHz int, durationMs int) error

	GetMetrics() Metrics
	Reset(ctx context.Context) error

	// Close releases any resources (HTTP clients, bus subscriptions).
	Close() error
}

// unsupported returns the standard UnsupportedOperation error for an
// optional method absent from a capability set.
func unsupported(op string) error {
	return apierr.New(apierr.KindUnsupported, "driver does not support "+op)
}

func nowMs() int64 { return time.Now().UnixMilli() }
