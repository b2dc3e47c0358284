package config

import "testing"

func validConfig() AppConfig {
	cfg := AppConfig{}
	setDefaults(&cfg)
	return cfg
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Validate() returned error for default config: %v", err)
	}
}

func TestValidate_RejectsEmptyDataDir(t *testing.T) {
	cfg := validConfig()
	cfg.DataDir = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty dataDir")
	}
}

func TestValidate_RejectsBadRESTPort(t *testing.T) {
	cfg := validConfig()
	cfg.REST.Enabled = true
	cfg.REST.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for out-of-range REST port")
	}
}

func TestValidate_RejectsDuplicateDeviceIDs(t *testing.T) {
	cfg := validConfig()
	cfg.Devices = []DeviceConfig{
		{ID: "dev1", DriverKind: "mock", DeviceType: "pixoo64"},
		{ID: "dev1", DriverKind: "mock", DeviceType: "pixoo64"},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for duplicate device id")
	}
}

func TestValidate_RejectsRealDriverWithoutHost(t *testing.T) {
	cfg := validConfig()
	cfg.Devices = []DeviceConfig{{ID: "dev1", DriverKind: "real", DeviceType: "pixoo64"}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for real driver without host")
	}
}

func TestValidate_RejectsBrightnessOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Devices = []DeviceConfig{{ID: "dev1", DriverKind: "mock", DeviceType: "pixoo64", Brightness: 150}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for brightness out of range")
	}
}

func TestValidate_RejectsFallbackSceneActionWithoutScene(t *testing.T) {
	cfg := validConfig()
	cfg.Devices = []DeviceConfig{{
		ID: "dev1", DriverKind: "mock", DeviceType: "pixoo64",
		WatchdogConfig: WatchdogConfig{Enabled: true, Action: "fallback-scene", TimeoutMinutes: 5},
	}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for fallback-scene action missing fallbackScene")
	}
}

func TestValidate_RejectsUnknownWatchdogAction(t *testing.T) {
	cfg := validConfig()
	cfg.Devices = []DeviceConfig{{
		ID: "dev1", DriverKind: "mock", DeviceType: "pixoo64",
		WatchdogConfig: WatchdogConfig{Enabled: true, Action: "explode", TimeoutMinutes: 5},
	}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown watchdog action")
	}
}
