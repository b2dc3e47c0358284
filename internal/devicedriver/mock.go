package devicedriver

import (
	"context"
	"sync"

	"github.com/pixoo/daemon/internal/capability"
)

// Mock is an in-memory driver: every operation succeeds instantly and
// every pushed frame is retained for test assertions, matching
// spec.md §4.2's Mock variant.
type Mock struct {
	*Canvas

	mu         sync.Mutex
	ready      bool
	brightness int
	displayOn  bool
	metrics    Metrics

	// Frames records a copy of the pixel buffer after each Push, for
	// test assertions (e.g. "push count of outgoing scene unchanged").
	Frames []FrameRecord

	// PushHook, if set, is invoked synchronously inside Push before
	// metrics are updated; tests use it to simulate a frozen driver
	// (watchdog end-to-end scenario 4) or to inject failures.
	PushHook func(sceneName string) error
}

// FrameRecord captures one pushed frame for assertions.
type FrameRecord struct {
	SceneName string
	Pixels    []Color
}

// NewMock constructs a ready Mock driver with the given capabilities.
func NewMock(caps capability.Display) *Mock {
	return &Mock{
		Canvas:     NewCanvas(caps),
		ready:      true,
		brightness: 100,
		displayOn:  true,
	}
}

func (m *Mock) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = true
	return nil
}

func (m *Mock) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *Mock) Push(ctx context.Context, sceneName string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PushHook != nil {
		if err := m.PushHook(sceneName); err != nil {
			m.metrics.ErrorCount++
			return 0, err
		}
	}

	frame := make([]Color, len(m.pixels))
	copy(frame, m.pixels)
	m.Frames = append(m.Frames, FrameRecord{SceneName: sceneName, Pixels: frame})

	m.metrics.PushCount++
	m.metrics.LastSeenTs = nowMs()
	m.metrics.LastFrametimeMs = 1
	return len(frame), nil
}

func (m *Mock) SetBrightness(ctx context.Context, pct int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brightness = pct
	return nil
}

func (m *Mock) SetDisplayOn(ctx context.Context, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.displayOn = on
	return nil
}

func (m *Mock) SetIcon(ctx context.Context, id string) error {
	if !m.Capabilities().HasNativeIcons {
		return unsupported("SetIcon")
	}
	return nil
}

func (m *Mock) PlayTone(ctx context.Context, freqHz int, durationMs int) error {
	if !m.Capabilities().HasAudio {
		return unsupported("PlayTone")
	}
	return nil
}

func (m *Mock) GetMetrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

func (m *Mock) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Clear()
	m.Frames = nil
	return nil
}

func (m *Mock) Close() error { return nil }

// PushCount is a convenience accessor used by tests.
func (m *Mock) PushCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics.PushCount
}

var _ Driver = (*Mock)(nil)
