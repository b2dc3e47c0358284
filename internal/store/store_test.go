package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/pixoo/daemon/internal/capability"
	"github.com/pixoo/daemon/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "devices.json"))
}

func TestStore_AddAndGetDevice(t *testing.T) {
	s := newTestStore(t)
	cfg := config.DeviceConfig{ID: "dev1", DriverKind: "mock", DeviceType: "pixoo64", Brightness: 75, DisplayOn: true}
	if err := s.AddDevice(cfg, capability.Mock(), DurableSnapshot{}); err != nil {
		t.Fatalf("AddDevice() returned error: %v", err)
	}

	dev, err := s.GetDevice("dev1")
	if err != nil {
		t.Fatalf("GetDevice() returned error: %v", err)
	}
	if dev.Brightness != 75 || !dev.DisplayOn {
		t.Errorf("GetDevice() = %+v, want brightness 75 displayOn true", dev)
	}
}

func TestStore_AddDevice_RejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	cfg := config.DeviceConfig{ID: "dev1", DriverKind: "mock", DeviceType: "pixoo64"}
	if err := s.AddDevice(cfg, capability.Mock(), DurableSnapshot{}); err != nil {
		t.Fatalf("first AddDevice() returned error: %v", err)
	}
	if err := s.AddDevice(cfg, capability.Mock(), DurableSnapshot{}); err == nil {
		t.Fatal("expected error adding duplicate device id")
	}
}

func TestStore_GetDevice_UnknownReturnsError(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetDevice("ghost"); err == nil {
		t.Fatal("expected error for unknown device")
	}
}

func TestStore_AddDevice_RecoversDurableSnapshot(t *testing.T) {
	s := newTestStore(t)
	cfg := config.DeviceConfig{ID: "dev1", DriverKind: "mock", DeviceType: "pixoo64", Brightness: 10, DisplayOn: false}
	recovered := DurableSnapshot{ID: "dev1", Brightness: 88, DisplayOn: true, LastKnownScene: "clock"}

	if err := s.AddDevice(cfg, capability.Mock(), recovered); err != nil {
		t.Fatalf("AddDevice() returned error: %v", err)
	}

	dev, err := s.GetDevice("dev1")
	if err != nil {
		t.Fatalf("GetDevice() returned error: %v", err)
	}
	if dev.Brightness != 88 || !dev.DisplayOn {
		t.Errorf("GetDevice() = %+v, want recovered brightness=88 displayOn=true", dev)
	}

	state, err := s.GetDeviceState("dev1")
	if err != nil {
		t.Fatalf("GetDeviceState() returned error: %v", err)
	}
	if state.CurrentScene != "clock" || state.Status != StatusRunning {
		t.Errorf("GetDeviceState() = %+v, want currentScene=clock status=running", state)
	}
}

func TestStore_SetDeviceState_PersistsAndNotifies(t *testing.T) {
	s := newTestStore(t)
	cfg := config.DeviceConfig{ID: "dev1", DriverKind: "mock", DeviceType: "pixoo64"}
	if err := s.AddDevice(cfg, capability.Mock(), DurableSnapshot{}); err != nil {
		t.Fatalf("AddDevice() returned error: %v", err)
	}

	events := make(chan Event, 1)
	s.Subscribe(events)

	err := s.SetDeviceState("dev1", func(st *DeviceSceneState) error {
		st.CurrentScene = "clock"
		st.Status = StatusRunning
		return nil
	})
	if err != nil {
		t.Fatalf("SetDeviceState() returned error: %v", err)
	}

	select {
	case ev := <-events:
		if ev.DeviceID != "dev1" || ev.State.CurrentScene != "clock" {
			t.Errorf("event = %+v, want dev1/clock", ev)
		}
	default:
		t.Fatal("expected a state-change event to be published")
	}

	recovered, err := New(s.statePath).LoadOrInit()
	if err != nil {
		t.Fatalf("LoadOrInit() returned error: %v", err)
	}
	if recovered["dev1"].LastKnownScene != "clock" {
		t.Errorf("persisted LastKnownScene = %q, want clock", recovered["dev1"].LastKnownScene)
	}
}

func TestStore_SetDeviceState_MutatorErrorAbortsMutation(t *testing.T) {
	s := newTestStore(t)
	cfg := config.DeviceConfig{ID: "dev1", DriverKind: "mock", DeviceType: "pixoo64"}
	if err := s.AddDevice(cfg, capability.Mock(), DurableSnapshot{}); err != nil {
		t.Fatalf("AddDevice() returned error: %v", err)
	}

	wantErr := errors.New("mutator failed")
	err := s.SetDeviceState("dev1", func(st *DeviceSceneState) error {
		st.CurrentScene = "should-not-stick"
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("SetDeviceState() error = %v, want %v", err, wantErr)
	}

	state, err := s.GetDeviceState("dev1")
	if err != nil {
		t.Fatalf("GetDeviceState() returned error: %v", err)
	}
	if state.CurrentScene != "" {
		t.Errorf("CurrentScene = %q, want empty (mutation should have aborted)", state.CurrentScene)
	}
}

func TestStore_SceneState_GetSetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	cfg := config.DeviceConfig{ID: "dev1", DriverKind: "mock", DeviceType: "pixoo64"}
	if err := s.AddDevice(cfg, capability.Mock(), DurableSnapshot{}); err != nil {
		t.Fatalf("AddDevice() returned error: %v", err)
	}

	if err := s.SetSceneState("dev1", "clock", "format", "24h"); err != nil {
		t.Fatalf("SetSceneState() returned error: %v", err)
	}
	bag, err := s.GetSceneState("dev1", "clock")
	if err != nil {
		t.Fatalf("GetSceneState() returned error: %v", err)
	}
	if bag["format"] != "24h" {
		t.Errorf("GetSceneState() = %+v, want format=24h", bag)
	}
}

func TestStore_RemoveDevice(t *testing.T) {
	s := newTestStore(t)
	cfg := config.DeviceConfig{ID: "dev1", DriverKind: "mock", DeviceType: "pixoo64"}
	if err := s.AddDevice(cfg, capability.Mock(), DurableSnapshot{}); err != nil {
		t.Fatalf("AddDevice() returned error: %v", err)
	}
	if err := s.RemoveDevice("dev1"); err != nil {
		t.Fatalf("RemoveDevice() returned error: %v", err)
	}
	if _, err := s.GetDevice("dev1"); err == nil {
		t.Fatal("expected error getting removed device")
	}
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.json")
	s1 := New(path)
	cfg := config.DeviceConfig{ID: "dev1", DriverKind: "mock", DeviceType: "pixoo64", Brightness: 42, DisplayOn: true}
	if err := s1.AddDevice(cfg, capability.Mock(), DurableSnapshot{}); err != nil {
		t.Fatalf("AddDevice() returned error: %v", err)
	}

	s2 := New(path)
	recovered, err := s2.LoadOrInit()
	if err != nil {
		t.Fatalf("LoadOrInit() returned error: %v", err)
	}
	snap, ok := recovered["dev1"]
	if !ok {
		t.Fatal("expected recovered snapshot for dev1")
	}
	if snap.Brightness != 42 || !snap.DisplayOn {
		t.Errorf("recovered snapshot = %+v, want brightness=42 displayOn=true", snap)
	}
}
