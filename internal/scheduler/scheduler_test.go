package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pixoo/daemon/internal/capability"
	"github.com/pixoo/daemon/internal/config"
	"github.com/pixoo/daemon/internal/devicedriver"
	"github.com/pixoo/daemon/internal/scene"
	"github.com/pixoo/daemon/internal/store"
)

type recordingScene struct {
	scene.NoopLifecycle
	initErr error
}

func (s recordingScene) Init(scene.Context) error { return s.initErr }

func (recordingScene) Render(scene.Context) scene.RenderResult {
	return scene.RenderResult{Status: scene.RenderTerminal}
}

func newHarness(t *testing.T) (*Scheduler, *store.Store, *scene.Registry) {
	t.Helper()

	st := store.New(t.TempDir() + "/state.json")
	if err := st.AddDevice(config.DeviceConfig{ID: "dev1", DriverKind: "mock", DeviceType: "pixoo64", Brightness: 50, DisplayOn: true}, capability.Mock(), store.DurableSnapshot{}); err != nil {
		t.Fatalf("AddDevice() returned error: %v", err)
	}

	scenes := scene.NewRegistry()
	if err := scenes.Register(scene.Descriptor{Name: "clock", New: func() scene.Scene { return recordingScene{} }}); err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}
	if err := scenes.Register(scene.Descriptor{Name: "broken", New: func() scene.Scene {
		return recordingScene{initErr: context.DeadlineExceeded}
	}}); err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}
	scenes.Freeze()

	sched := New(st, scenes, noopPublisher{}, DefaultConfig())
	sched.RegisterDevice("dev1")
	sched.SetDriver("dev1", devicedriver.NewMock(capability.Mock()))

	return sched, st, scenes
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, []byte) error { return nil }

func awaitStatus(t *testing.T, st *store.Store, deviceID string, want store.Status) store.DeviceSceneState {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s, err := st.GetDeviceState(deviceID)
		if err != nil {
			t.Fatalf("GetDeviceState() returned error: %v", err)
		}
		if s.Status == want {
			return s
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("device %q never reached status %q", deviceID, want)
	return store.DeviceSceneState{}
}

func TestScheduler_SwitchScene_ReachesRunning(t *testing.T) {
	sched, st, _ := newHarness(t)

	if err := sched.SwitchScene(context.Background(), "dev1", "clock", nil); err != nil {
		t.Fatalf("SwitchScene() returned error: %v", err)
	}

	state := awaitStatus(t, st, "dev1", store.StatusRunning)
	if state.CurrentScene != "clock" {
		t.Errorf("CurrentScene = %q, want clock", state.CurrentScene)
	}
}

func TestScheduler_SwitchScene_UnknownSceneFails(t *testing.T) {
	sched, _, _ := newHarness(t)
	err := sched.SwitchScene(context.Background(), "dev1", "nonexistent", nil)
	if err == nil {
		t.Fatal("expected error switching to unknown scene")
	}
}

func TestScheduler_SwitchScene_UnknownDeviceFails(t *testing.T) {
	sched, _, _ := newHarness(t)
	err := sched.SwitchScene(context.Background(), "ghost", "clock", nil)
	if err == nil {
		t.Fatal("expected error switching scene for unknown device")
	}
}

func TestScheduler_SwitchScene_InitFailureReverts(t *testing.T) {
	sched, st, _ := newHarness(t)

	if err := sched.SwitchScene(context.Background(), "dev1", "clock", nil); err != nil {
		t.Fatalf("SwitchScene() returned error: %v", err)
	}
	awaitStatus(t, st, "dev1", store.StatusRunning)

	if err := sched.SwitchScene(context.Background(), "dev1", "broken", nil); err != nil {
		t.Fatalf("SwitchScene() returned error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	var state store.DeviceSceneState
	for time.Now().Before(deadline) {
		var err error
		state, err = st.GetDeviceState("dev1")
		if err != nil {
			t.Fatalf("GetDeviceState() returned error: %v", err)
		}
		if state.CurrentScene == "clock" && state.Status == store.StatusRunning {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if state.CurrentScene != "clock" {
		t.Errorf("CurrentScene = %q after failed switch, want revert to clock", state.CurrentScene)
	}
}

func TestScheduler_PauseResumeScene(t *testing.T) {
	sched, st, _ := newHarness(t)
	if err := sched.SwitchScene(context.Background(), "dev1", "clock", nil); err != nil {
		t.Fatalf("SwitchScene() returned error: %v", err)
	}
	awaitStatus(t, st, "dev1", store.StatusRunning)

	if err := sched.PauseScene("dev1"); err != nil {
		t.Fatalf("PauseScene() returned error: %v", err)
	}
	state, _ := st.GetDeviceState("dev1")
	if state.PlayState != store.PlayPaused {
		t.Errorf("PlayState = %q, want paused", state.PlayState)
	}

	if err := sched.ResumeScene(context.Background(), "dev1"); err != nil {
		t.Fatalf("ResumeScene() returned error: %v", err)
	}
	state, _ = st.GetDeviceState("dev1")
	if state.PlayState != store.PlayRunning {
		t.Errorf("PlayState = %q, want running", state.PlayState)
	}
}

func TestScheduler_StopScene_DoesNotTouchDisplayPower(t *testing.T) {
	sched, st, _ := newHarness(t)
	if err := sched.SwitchScene(context.Background(), "dev1", "clock", nil); err != nil {
		t.Fatalf("SwitchScene() returned error: %v", err)
	}
	awaitStatus(t, st, "dev1", store.StatusRunning)

	if err := sched.StopScene(context.Background(), "dev1"); err != nil {
		t.Fatalf("StopScene() returned error: %v", err)
	}
	state, err := st.GetDeviceState("dev1")
	if err != nil {
		t.Fatalf("GetDeviceState() returned error: %v", err)
	}
	if state.Status != store.StatusStopped || state.CurrentScene != "" {
		t.Errorf("state = %+v, want stopped/empty scene", state)
	}

	dev, err := st.GetDevice("dev1")
	if err != nil {
		t.Fatalf("GetDevice() returned error: %v", err)
	}
	if !dev.DisplayOn {
		t.Error("DisplayOn changed by StopScene, want untouched")
	}
}

func TestScheduler_SwapDriver_ReswitchesPriorScene(t *testing.T) {
	sched, st, _ := newHarness(t)
	if err := sched.SwitchScene(context.Background(), "dev1", "clock", nil); err != nil {
		t.Fatalf("SwitchScene() returned error: %v", err)
	}
	awaitStatus(t, st, "dev1", store.StatusRunning)

	newDriver := devicedriver.NewMock(capability.Mock())
	if err := sched.SwapDriver(context.Background(), "dev1", newDriver); err != nil {
		t.Fatalf("SwapDriver() returned error: %v", err)
	}

	awaitStatus(t, st, "dev1", store.StatusRunning)
	d, err := sched.Driver("dev1")
	if err != nil {
		t.Fatalf("Driver() returned error: %v", err)
	}
	if d != newDriver {
		t.Error("Driver() did not return the swapped-in instance")
	}
}

func TestScheduler_ResetDevice_ResetsDriver(t *testing.T) {
	sched, st, _ := newHarness(t)
	if err := sched.SwitchScene(context.Background(), "dev1", "clock", nil); err != nil {
		t.Fatalf("SwitchScene() returned error: %v", err)
	}
	awaitStatus(t, st, "dev1", store.StatusRunning)

	if err := sched.ResetDevice(context.Background(), "dev1"); err != nil {
		t.Fatalf("ResetDevice() returned error: %v", err)
	}
	state, err := st.GetDeviceState("dev1")
	if err != nil {
		t.Fatalf("GetDeviceState() returned error: %v", err)
	}
	if state.Status != store.StatusStopped {
		t.Errorf("Status = %q, want stopped", state.Status)
	}
}

func TestScheduler_Shutdown_StopsAllDevices(t *testing.T) {
	sched, st, _ := newHarness(t)
	if err := sched.SwitchScene(context.Background(), "dev1", "clock", nil); err != nil {
		t.Fatalf("SwitchScene() returned error: %v", err)
	}
	awaitStatus(t, st, "dev1", store.StatusRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sched.Shutdown(ctx)

	state, err := st.GetDeviceState("dev1")
	if err != nil {
		t.Fatalf("GetDeviceState() returned error: %v", err)
	}
	if state.Status != store.StatusStopped {
		t.Errorf("Status = %q after Shutdown, want stopped", state.Status)
	}
}
