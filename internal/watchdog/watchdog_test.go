package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/pixoo/daemon/internal/bus"
	"github.com/pixoo/daemon/internal/config"
	"github.com/pixoo/daemon/internal/scene"
	"github.com/pixoo/daemon/internal/store"
)

type stubScheduler struct {
	resetCalls  []string
	switchCalls []string
	resetErr    error
	switchErr   error
}

func (s *stubScheduler) SwitchScene(_ context.Context, deviceID, sceneName string, _ map[string]any) error {
	s.switchCalls = append(s.switchCalls, deviceID+"/"+sceneName)
	return s.switchErr
}

func (s *stubScheduler) ResetDevice(_ context.Context, deviceID string) error {
	s.resetCalls = append(s.resetCalls, deviceID)
	return s.resetErr
}

func newWatchdogHarness(t *testing.T) (*Watchdog, *scene.Registry, *stubScheduler, bus.Bus) {
	t.Helper()
	scenes := scene.NewRegistry()
	if err := scenes.Register(scene.Descriptor{Name: "clock", New: func() scene.Scene { return nil }, WantsLoop: true}); err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}
	scenes.Freeze()

	sched := &stubScheduler{}
	b := bus.NewMemoryBus()
	w := New(nil, scenes, sched, b, 10*time.Second)
	return w, scenes, sched, b
}

func staleDevice(action string) (store.Device, store.DeviceSceneState) {
	dev := store.Device{
		ID:        "dev1",
		DisplayOn: true,
		WatchdogConfig: config.WatchdogConfig{
			Enabled:        true,
			Action:         action,
			TimeoutMinutes: 1,
			FallbackScene:  "clock",
		},
	}
	st := store.DeviceSceneState{
		CurrentScene: "clock",
		PlayState:    store.PlayRunning,
		LastSeenTs:   time.Now().Add(-time.Hour).UnixMilli(),
	}
	return dev, st
}

func TestWatchdog_RequiresTwoConsecutiveStrikesBeforeRemediating(t *testing.T) {
	w, _, sched, _ := newWatchdogHarness(t)
	dev, st := staleDevice("restart")
	now := time.Now().UnixMilli()

	w.checkDevice(context.Background(), dev, st, now)
	if len(sched.resetCalls) != 0 {
		t.Fatal("remediation fired on first strike, want hysteresis to require two")
	}

	w.checkDevice(context.Background(), dev, st, now)
	if len(sched.resetCalls) != 1 {
		t.Fatalf("resetCalls = %v, want one reset after second strike", sched.resetCalls)
	}
}

func TestWatchdog_HealthyCheckResetsStrikes(t *testing.T) {
	w, _, sched, _ := newWatchdogHarness(t)
	dev, st := staleDevice("restart")
	now := time.Now().UnixMilli()

	w.checkDevice(context.Background(), dev, st, now)

	healthy := st
	healthy.LastSeenTs = now
	w.checkDevice(context.Background(), dev, healthy, now)

	w.checkDevice(context.Background(), dev, st, now)
	if len(sched.resetCalls) != 0 {
		t.Fatalf("resetCalls = %v, want strikes reset by intervening healthy check", sched.resetCalls)
	}
}

func TestWatchdog_DisabledDeviceNeverRemediates(t *testing.T) {
	w, _, sched, _ := newWatchdogHarness(t)
	dev, st := staleDevice("restart")
	dev.WatchdogConfig.Enabled = false
	now := time.Now().UnixMilli()

	w.checkDevice(context.Background(), dev, st, now)
	w.checkDevice(context.Background(), dev, st, now)
	if len(sched.resetCalls) != 0 {
		t.Fatal("disabled watchdog should never remediate")
	}
}

func TestWatchdog_SkipsCheckWhenDisplayOffByDefault(t *testing.T) {
	w, _, sched, _ := newWatchdogHarness(t)
	dev, st := staleDevice("restart")
	dev.DisplayOn = false
	now := time.Now().UnixMilli()

	w.checkDevice(context.Background(), dev, st, now)
	w.checkDevice(context.Background(), dev, st, now)
	if len(sched.resetCalls) != 0 {
		t.Fatal("display-off device should be skipped when checkWhenOff is false")
	}
}

func TestWatchdog_CheckWhenOffOverridesDisplayGate(t *testing.T) {
	w, _, sched, _ := newWatchdogHarness(t)
	dev, st := staleDevice("restart")
	dev.DisplayOn = false
	dev.WatchdogConfig.CheckWhenOff = true
	now := time.Now().UnixMilli()

	w.checkDevice(context.Background(), dev, st, now)
	w.checkDevice(context.Background(), dev, st, now)
	if len(sched.resetCalls) != 1 {
		t.Fatalf("resetCalls = %v, want remediation with checkWhenOff set", sched.resetCalls)
	}
}

func TestWatchdog_RestartActionResetsThenReswitches(t *testing.T) {
	w, _, sched, _ := newWatchdogHarness(t)
	dev, st := staleDevice("restart")
	now := time.Now().UnixMilli()

	w.checkDevice(context.Background(), dev, st, now)
	w.checkDevice(context.Background(), dev, st, now)

	if len(sched.resetCalls) != 1 || sched.resetCalls[0] != "dev1" {
		t.Errorf("resetCalls = %v", sched.resetCalls)
	}
	if len(sched.switchCalls) != 1 || sched.switchCalls[0] != "dev1/clock" {
		t.Errorf("switchCalls = %v, want re-switch to prior scene", sched.switchCalls)
	}
}

func TestWatchdog_FallbackSceneAction(t *testing.T) {
	w, _, sched, _ := newWatchdogHarness(t)
	dev, st := staleDevice("fallback-scene")
	now := time.Now().UnixMilli()

	w.checkDevice(context.Background(), dev, st, now)
	w.checkDevice(context.Background(), dev, st, now)

	if len(sched.resetCalls) != 0 {
		t.Error("fallback-scene action should not call ResetDevice")
	}
	if len(sched.switchCalls) != 1 || sched.switchCalls[0] != "dev1/clock" {
		t.Errorf("switchCalls = %v, want switch to fallbackScene", sched.switchCalls)
	}
}

func TestWatchdog_MQTTCommandSequenceAction(t *testing.T) {
	w, _, _, b := newWatchdogHarness(t)
	dev, st := staleDevice("mqtt-command-sequence")
	dev.WatchdogConfig.Commands = []config.BusCommand{
		{Topic: "pixoo/dev1/driver/set", Payload: `{"driverKind":"mock"}`},
	}
	now := time.Now().UnixMilli()

	sub, err := b.Subscribe(context.Background(), "pixoo/dev1/driver/set")
	if err != nil {
		t.Fatalf("Subscribe() returned error: %v", err)
	}
	defer sub.Close()

	w.checkDevice(context.Background(), dev, st, now)
	w.checkDevice(context.Background(), dev, st, now)

	select {
	case msg := <-sub.C():
		if string(msg.Payload) != `{"driverKind":"mock"}` {
			t.Errorf("payload = %s", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for mqtt-command-sequence publish")
	}
}

func TestWatchdog_NotifyActionPublishesError(t *testing.T) {
	w, _, _, b := newWatchdogHarness(t)
	dev, st := staleDevice("notify")
	now := time.Now().UnixMilli()

	sub, err := b.Subscribe(context.Background(), "pixoo/dev1/error")
	if err != nil {
		t.Fatalf("Subscribe() returned error: %v", err)
	}
	defer sub.Close()

	w.checkDevice(context.Background(), dev, st, now)
	w.checkDevice(context.Background(), dev, st, now)

	select {
	case <-sub.C():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notify error publish")
	}
}

func TestWatchdog_NoLoopWantedSkipsCheck(t *testing.T) {
	w, _, sched, _ := newWatchdogHarness(t)
	dev, st := staleDevice("restart")
	st.CurrentScene = "" // no scene running -> not expected to be pushing
	now := time.Now().UnixMilli()

	w.checkDevice(context.Background(), dev, st, now)
	w.checkDevice(context.Background(), dev, st, now)
	if len(sched.resetCalls) != 0 {
		t.Fatal("device with no active scene should never be remediated")
	}
}
