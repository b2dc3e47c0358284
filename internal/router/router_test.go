package router

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pixoo/daemon/internal/bus"
	"github.com/pixoo/daemon/internal/capability"
	"github.com/pixoo/daemon/internal/config"
	"github.com/pixoo/daemon/internal/devicedriver"
	"github.com/pixoo/daemon/internal/scene"
	"github.com/pixoo/daemon/internal/scheduler"
	"github.com/pixoo/daemon/internal/store"
)

type testSceneEcho struct{ scene.NoopLifecycle }

func (testSceneEcho) Render(ctx scene.Context) scene.RenderResult {
	return scene.RenderResult{Status: scene.RenderTerminal}
}

func newTestHarness(t *testing.T) (*Router, *store.Store, bus.Bus, *devicedriver.Registry) {
	t.Helper()

	st := store.New(t.TempDir() + "/state.json")
	if err := st.AddDevice(config.DeviceConfig{
		ID:         "dev1",
		DriverKind: "mock",
		DeviceType: "pixoo64",
	}, capability.Mock(), store.DurableSnapshot{}); err != nil {
		t.Fatalf("AddDevice: %v", err)
	}

	scenes := scene.NewRegistry()
	if err := scenes.Register(scene.Descriptor{Name: "echo", New: func() scene.Scene { return testSceneEcho{} }}); err != nil {
		t.Fatalf("Register scene: %v", err)
	}
	scenes.Freeze()

	b := bus.NewMemoryBus()
	sched := scheduler.New(st, scenes, b, scheduler.DefaultConfig())
	sched.RegisterDevice("dev1")
	sched.SetDriver("dev1", devicedriver.NewMock(capability.Mock()))

	drivers := devicedriver.NewRegistry(b)

	r := New(b, st, sched, drivers, BuildInfo{Version: "test"})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(r.Stop)

	return r, st, b, drivers
}

func awaitMessage(t *testing.T, sub bus.Subscriber) bus.Message {
	t.Helper()
	select {
	case msg := <-sub.C():
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return bus.Message{}
	}
}

func TestRouter_SceneSetCanonical(t *testing.T) {
	_, st, b, _ := newTestHarness(t)

	sub, err := b.Subscribe(context.Background(), "pixoo/dev1/ok")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish(context.Background(), "pixoo/dev1/scene/set", []byte(`{"scene":"echo"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msg := awaitMessage(t, sub)
	var ok okPayload
	if err := json.Unmarshal(msg.Payload, &ok); err != nil {
		t.Fatalf("unmarshal ok payload: %v", err)
	}
	if ok.Status != "ok" {
		t.Fatalf("status = %q, want ok", ok.Status)
	}

	state, err := st.GetDeviceState("dev1")
	if err != nil {
		t.Fatalf("GetDeviceState: %v", err)
	}
	if state.CurrentScene != "echo" && state.TargetScene != "echo" {
		t.Fatalf("expected scene echo to be switching/current, got state=%+v", state)
	}
}

func TestRouter_LegacyTopicAliasesCanonical(t *testing.T) {
	_, _, b, _ := newTestHarness(t)

	sub, err := b.Subscribe(context.Background(), "pixoo/dev1/ok")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish(context.Background(), "/home/pixoo/dev1/scene/switch", []byte(`{"scene":"echo"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	awaitMessage(t, sub) // legacy path must route identically to the canonical one
}

func TestRouter_UnknownDevicePublishesError(t *testing.T) {
	_, _, b, _ := newTestHarness(t)

	sub, err := b.Subscribe(context.Background(), "pixoo/ghost/error")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish(context.Background(), "pixoo/ghost/scene/set", []byte(`{"scene":"echo"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	awaitMessage(t, sub)
}

func TestRouter_DriverSetBareString(t *testing.T) {
	_, st, b, _ := newTestHarness(t)

	sub, err := b.Subscribe(context.Background(), "pixoo/dev1/driver")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish(context.Background(), "pixoo/dev1/driver/set", []byte(`"mock"`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msg := awaitMessage(t, sub)
	if string(msg.Payload) != "mock" {
		t.Fatalf("retained driver payload = %q, want mock", msg.Payload)
	}

	dev, err := st.GetDevice("dev1")
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if dev.DriverKind != "mock" {
		t.Fatalf("DriverKind = %q, want mock", dev.DriverKind)
	}
}

func TestRouter_ResetSet(t *testing.T) {
	_, _, b, _ := newTestHarness(t)

	sub, err := b.Subscribe(context.Background(), "pixoo/dev1/ok")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish(context.Background(), "pixoo/dev1/reset/set", nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	awaitMessage(t, sub)
}
