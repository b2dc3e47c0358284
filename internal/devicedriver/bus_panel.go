package devicedriver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pixoo/daemon/internal/apierr"
	"github.com/pixoo/daemon/internal/capability"
)

// Publisher is the minimal capability MessageBusPanel needs from the
// message bus adapter. Design note: a thin publish-only interface is
// injected here rather than the full bus.Bus type, cutting the cyclic
// reference a driver -> bus -> driver dependency would otherwise create.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// MessageBusPanel drives a wide 32x8 panel that has no HTTP surface at
// all: frames are shipped as outbound bus payloads, and the driver
// maintains no read channel from the device beyond bus acks (spec.md
// §4.2).
type MessageBusPanel struct {
	*Canvas

	deviceID string
	pub      Publisher
	topic    string

	mu      sync.Mutex
	ready   bool
	metrics Metrics
}

// NewMessageBusPanel constructs a bus-driven panel that publishes
// frames to "pixoo/<deviceID>/frame".
func NewMessageBusPanel(deviceID string, pub Publisher, caps capability.Display) *MessageBusPanel {
	return &MessageBusPanel{
		Canvas:   NewCanvas(caps),
		deviceID: deviceID,
		pub:      pub,
		topic:    fmt.Sprintf("pixoo/%s/frame", deviceID),
		ready:    true,
	}
}

func (p *MessageBusPanel) Init(ctx context.Context) error {
	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()
	return nil
}

func (p *MessageBusPanel) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

type frameMessage struct {
	Scene  string  `json:"scene"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Pixels []Color `json:"pixels"`
}

func (p *MessageBusPanel) Push(ctx context.Context, sceneName string) (int, error) {
	start := time.Now()
	msg := frameMessage{Scene: sceneName, Width: p.caps.Width, Height: p.caps.Height, Pixels: p.pixels}
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, apierr.Wrap(apierr.KindDriverError, "encode frame failed", err)
	}

	if err := p.pub.Publish(ctx, p.topic, payload); err != nil {
		p.mu.Lock()
		p.metrics.ErrorCount++
		p.mu.Unlock()
		return 0, apierr.Wrap(apierr.KindDriverError, "publish frame failed", err)
	}

	p.mu.Lock()
	p.metrics.PushCount++
	p.metrics.LastSeenTs = nowMs()
	p.metrics.LastFrametimeMs = time.Since(start).Milliseconds()
	p.mu.Unlock()
	return len(p.pixels), nil
}

func (p *MessageBusPanel) SetBrightness(ctx context.Context, pct int) error {
	if !p.caps.SupportsBrightness() {
		return unsupported("SetBrightness")
	}
	return p.publishControl(ctx, "brightness", map[string]int{"brightness": pct})
}

func (p *MessageBusPanel) SetDisplayOn(ctx context.Context, on bool) error {
	return p.publishControl(ctx, "display", map[string]bool{"on": on})
}

func (p *MessageBusPanel) SetIcon(ctx context.Context, id string) error {
	if !p.caps.HasNativeIcons {
		return unsupported("SetIcon")
	}
	return p.publishControl(ctx, "icon", map[string]string{"id": id})
}

func (p *MessageBusPanel) PlayTone(ctx context.Context, freqHz int, durationMs int) error {
	if !p.caps.HasAudio {
		return unsupported("PlayTone")
	}
	return p.publishControl(ctx, "tone", map[string]int{"freqHz": freqHz, "ms": durationMs})
}

func (p *MessageBusPanel) publishControl(ctx context.Context, kind string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("pixoo/%s/control/%s", p.deviceID, kind)
	if err := p.pub.Publish(ctx, topic, b); err != nil {
		return apierr.Wrap(apierr.KindDriverError, "publish control failed", err)
	}
	return nil
}

func (p *MessageBusPanel) GetMetrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

func (p *MessageBusPanel) Reset(ctx context.Context) error {
	p.Clear()
	return p.publishControl(ctx, "reset", map[string]bool{"reset": true})
}

func (p *MessageBusPanel) Close() error { return nil }

var _ Driver = (*MessageBusPanel)(nil)
