package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoader_DefaultsOnly(t *testing.T) {
	loader := NewLoader("", "v1.2.3")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, DefaultLogLevel)
	}
	if cfg.REST.Port != DefaultRESTPort {
		t.Errorf("REST.Port = %d, want %d", cfg.REST.Port, DefaultRESTPort)
	}
	if cfg.Version != "v1.2.3" {
		t.Errorf("Version = %q, want %q", cfg.Version, "v1.2.3")
	}
}

func TestLoader_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
dataDir: ` + dir + `
logLevel: debug
rest:
  enabled: true
  port: 9999
devices:
  - id: dev1
    driverKind: mock
    deviceType: pixoo64
    brightness: 50
    displayOn: true
    watchdog:
      enabled: false
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader(path, "v1")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.REST.Port != 9999 {
		t.Errorf("REST.Port = %d, want 9999", cfg.REST.Port)
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0].ID != "dev1" {
		t.Fatalf("Devices = %+v, want one device dev1", cfg.Devices)
	}
}

func TestLoader_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
dataDir: ` + dir + `
bogusField: nope
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader(path, "v1")
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoader_RejectsNonYAMLExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader(path, "v1")
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected error for non-YAML extension, got nil")
	}
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
dataDir: ` + dir + `
logLevel: warn
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(EnvLogLevel, "debug")

	loader := NewLoader(path, "v1")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug (env should win over file)", cfg.LogLevel)
	}
}

func TestParseDeviceShorthand(t *testing.T) {
	devices, err := ParseDeviceShorthand("10.0.0.5=pixoo64:real;10.0.0.6=mock:mock")
	if err != nil {
		t.Fatalf("ParseDeviceShorthand() returned error: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}
	if devices[0].ID != "10.0.0.5" || devices[0].DeviceType != "pixoo64" || devices[0].DriverKind != "real" {
		t.Errorf("devices[0] = %+v", devices[0])
	}
}

func TestParseDeviceShorthand_Malformed(t *testing.T) {
	if _, err := ParseDeviceShorthand("not-valid"); err == nil {
		t.Fatal("expected error for malformed shorthand entry")
	}
}
