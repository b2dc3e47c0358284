package config

import "fmt"

// Validate enforces the invariants needed for the dependency container
// to start safely (spec.md §6 exit codes: non-zero for missing
// required config / registry duplicates).
func Validate(cfg AppConfig) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("dataDir must not be empty")
	}
	if cfg.REST.Enabled && (cfg.REST.Port <= 0 || cfg.REST.Port > 65535) {
		return fmt.Errorf("rest.port %d out of range", cfg.REST.Port)
	}

	seen := make(map[string]struct{}, len(cfg.Devices))
	for _, d := range cfg.Devices {
		if d.ID == "" {
			return fmt.Errorf("device entry missing id")
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("duplicate device id %q", d.ID)
		}
		seen[d.ID] = struct{}{}

		switch d.DriverKind {
		case "real", "mock", "bus", "":
		default:
			return fmt.Errorf("device %q: unknown driverKind %q", d.ID, d.DriverKind)
		}
		if d.DriverKind == "real" && d.Host == "" {
			return fmt.Errorf("device %q: driverKind real requires a host", d.ID)
		}
		if d.Brightness < 0 || d.Brightness > 100 {
			return fmt.Errorf("device %q: brightness %d out of range", d.ID, d.Brightness)
		}
		if w := d.WatchdogConfig; w.Enabled {
			switch w.Action {
			case "restart", "fallback-scene", "mqtt-command-sequence", "notify":
			default:
				return fmt.Errorf("device %q: unknown watchdog action %q", d.ID, w.Action)
			}
			if w.Action == "fallback-scene" && w.FallbackScene == "" {
				return fmt.Errorf("device %q: watchdog action fallback-scene requires fallbackScene", d.ID)
			}
			if w.TimeoutMinutes <= 0 {
				return fmt.Errorf("device %q: watchdog timeoutMinutes must be positive", d.ID)
			}
		}
	}
	return nil
}
