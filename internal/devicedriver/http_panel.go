package devicedriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pixoo/daemon/internal/apierr"
	"github.com/pixoo/daemon/internal/capability"
	"github.com/pixoo/daemon/internal/log"
)

// DefaultHTTPTimeout is the per-call client-side timeout for the real
// HTTP panel, matching spec.md §6/§4.2 (default 5s).
const DefaultHTTPTimeout = 5 * time.Second

// RealHTTPPanel drives a square 64x64 physical panel over synchronous
// HTTP JSON RPC calls. Grounded on the teacher's internal/openwebif
// HTTP client + circuit breaker idiom, generalized from an EPG/tuner
// API client to a pixel-panel push client.
type RealHTTPPanel struct {
	*Canvas

	host   string
	client *http.Client
	limit  *rate.Limiter

	mu      sync.Mutex
	ready   bool
	metrics Metrics

	brightness int
	displayOn  bool
}

// HTTPPanelOption configures a RealHTTPPanel at construction time.
type HTTPPanelOption func(*RealHTTPPanel)

// WithHTTPClient overrides the HTTP client (tests inject a fake transport).
func WithHTTPClient(c *http.Client) HTTPPanelOption {
	return func(p *RealHTTPPanel) { p.client = c }
}

// NewRealHTTPPanel constructs a panel driver targeting host (e.g. an
// IP address or hostname reachable over HTTP).
func NewRealHTTPPanel(host string, caps capability.Display, opts ...HTTPPanelOption) *RealHTTPPanel {
	p := &RealHTTPPanel{
		Canvas:     NewCanvas(caps),
		host:       host,
		client:     &http.Client{Timeout: DefaultHTTPTimeout},
		limit:      rate.NewLimiter(rate.Every(20*time.Millisecond), 4),
		brightness: 100,
		displayOn:  true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RealHTTPPanel) Init(ctx context.Context) error {
	if err := p.limit.Wait(ctx); err != nil {
		return apierr.Wrap(apierr.KindDriverError, "init rate-limited", err)
	}
	if err := p.call(ctx, "/api/ping", nil); err != nil {
		return apierr.Wrap(apierr.KindDriverError, "panel not reachable", err)
	}
	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()
	return nil
}

func (p *RealHTTPPanel) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Push ships the current framebuffer as a JSON RPC body. Retries are
// the scheduler's responsibility (spec.md §4.1 driver-retry policy);
// Push itself performs exactly one HTTP round trip per call.
func (p *RealHTTPPanel) Push(ctx context.Context, sceneName string) (int, error) {
	start := time.Now()
	body := struct {
		Scene  string  `json:"scene"`
		Pixels []Color `json:"pixels"`
		Width  int     `json:"width"`
		Height int     `json:"height"`
	}{
		Scene:  sceneName,
		Pixels: p.pixels,
		Width:  p.caps.Width,
		Height: p.caps.Height,
	}

	if err := p.call(ctx, "/api/push", body); err != nil {
		p.mu.Lock()
		p.metrics.ErrorCount++
		p.mu.Unlock()
		return 0, apierr.Wrap(apierr.KindDriverError, "push failed", err)
	}

	p.mu.Lock()
	p.metrics.PushCount++
	p.metrics.LastSeenTs = nowMs()
	p.metrics.LastFrametimeMs = time.Since(start).Milliseconds()
	p.mu.Unlock()
	return len(p.pixels), nil
}

func (p *RealHTTPPanel) SetBrightness(ctx context.Context, pct int) error {
	if !p.caps.SupportsBrightness() {
		return unsupported("SetBrightness")
	}
	if err := p.call(ctx, "/api/brightness", map[string]int{"brightness": pct}); err != nil {
		return apierr.Wrap(apierr.KindDriverError, "set brightness failed", err)
	}
	p.mu.Lock()
	p.brightness = pct
	p.mu.Unlock()
	return nil
}

func (p *RealHTTPPanel) SetDisplayOn(ctx context.Context, on bool) error {
	if err := p.call(ctx, "/api/display", map[string]bool{"on": on}); err != nil {
		return apierr.Wrap(apierr.KindDriverError, "set display failed", err)
	}
	p.mu.Lock()
	p.displayOn = on
	p.mu.Unlock()
	return nil
}

func (p *RealHTTPPanel) SetIcon(ctx context.Context, id string) error {
	if !p.caps.HasNativeIcons {
		return unsupported("SetIcon")
	}
	if err := p.call(ctx, "/api/icon", map[string]string{"id": id}); err != nil {
		return apierr.Wrap(apierr.KindDriverError, "set icon failed", err)
	}
	return nil
}

func (p *RealHTTPPanel) PlayTone(ctx context.Context, freqHz int, durationMs int) error {
	if !p.caps.HasAudio {
		return unsupported("PlayTone")
	}
	if err := p.call(ctx, "/api/tone", map[string]int{"freqHz": freqHz, "ms": durationMs}); err != nil {
		return apierr.Wrap(apierr.KindDriverError, "play tone failed", err)
	}
	return nil
}

func (p *RealHTTPPanel) GetMetrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

func (p *RealHTTPPanel) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := p.call(ctx, "/api/reset", nil); err != nil {
		return apierr.Wrap(apierr.KindDriverError, "reset failed", err)
	}
	p.Clear()
	return nil
}

func (p *RealHTTPPanel) Close() error { return nil }

func (p *RealHTTPPanel) call(ctx context.Context, path string, payload any) error {
	var r *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	} else {
		r = bytes.NewReader(nil)
	}

	url := fmt.Sprintf("http://%s%s", p.host, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		log.WithComponent("driver.http").Warn().Str("host", p.host).Str("path", path).Err(err).Msg("panel call failed")
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("panel returned status %d", resp.StatusCode)
	}
	return nil
}

var _ Driver = (*RealHTTPPanel)(nil)
