package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pixoo/daemon/internal/log"
)

// Recognized environment variables (SPEC_FULL.md §2/spec.md §6).
const (
	EnvDataDir      = "PIXOO_DATA_DIR"
	EnvStatePath    = "PIXOO_STATE_PATH"
	EnvLogLevel     = "PIXOO_LOG_LEVEL"
	EnvDevices      = "PIXOO_DEVICES" // "<ip>=<type>:<driver>;<ip>=<type>:<driver>"
	EnvBusHost      = "PIXOO_MQTT_HOST"
	EnvBusUser      = "PIXOO_MQTT_USER"
	EnvBusPassword  = "PIXOO_MQTT_PASSWORD"
	EnvRESTPort     = "PIXOO_REST_PORT"
	EnvRESTAuth     = "PIXOO_REST_AUTH" // "user:pass"
	EnvRESTEnabled  = "PIXOO_REST_ENABLED"
	EnvSceneDir     = "PIXOO_SCENE_DIR"
)

func envString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		logger.Debug().Str("key", key).Str("source", "environment").Msg("using environment variable")
		return v
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Int("default", defaultValue).Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	return n
}

func envBool(key string, defaultValue bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

// mergeEnvConfig overrides cfg with any recognized environment
// variables, the highest-precedence layer (spec.md §6).
func mergeEnvConfig(cfg *AppConfig) error {
	cfg.DataDir = envString(EnvDataDir, cfg.DataDir)
	cfg.StatePath = envString(EnvStatePath, cfg.StatePath)
	cfg.LogLevel = envString(EnvLogLevel, cfg.LogLevel)
	cfg.SceneDir = envString(EnvSceneDir, cfg.SceneDir)

	cfg.MessageBus.Host = envString(EnvBusHost, cfg.MessageBus.Host)
	cfg.MessageBus.Username = envString(EnvBusUser, cfg.MessageBus.Username)
	cfg.MessageBus.Password = envString(EnvBusPassword, cfg.MessageBus.Password)

	cfg.REST.Port = envInt(EnvRESTPort, cfg.REST.Port)
	cfg.REST.Enabled = envBool(EnvRESTEnabled, cfg.REST.Enabled)
	if auth, ok := os.LookupEnv(EnvRESTAuth); ok && auth != "" {
		user, pass, found := strings.Cut(auth, ":")
		if !found {
			return fmt.Errorf("%s must be of the form user:pass", EnvRESTAuth)
		}
		cfg.REST.AuthUser = user
		cfg.REST.AuthPass = pass
	}

	if raw, ok := os.LookupEnv(EnvDevices); ok && raw != "" {
		devices, err := ParseDeviceShorthand(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDevices, err)
		}
		cfg.Devices = mergeDeviceShorthand(cfg.Devices, devices)
	}

	return nil
}

// ParseDeviceShorthand parses the per-device registration shorthand
// named in spec.md §6: `"<ip>=<type>:<driver>"` entries joined by `;`.
func ParseDeviceShorthand(raw string) ([]DeviceConfig, error) {
	var out []DeviceConfig
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		ip, rest, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("malformed device entry %q: expected <ip>=<type>:<driver>", entry)
		}
		deviceType, driver, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("malformed device entry %q: expected <ip>=<type>:<driver>", entry)
		}
		out = append(out, DeviceConfig{
			ID:         ip,
			Host:       ip,
			DeviceType: deviceType,
			DriverKind: driver,
			Brightness: 100,
			DisplayOn:  true,
		})
	}
	return out, nil
}

// mergeDeviceShorthand overlays shorthand-declared devices onto file
// config devices, shorthand entries winning on ID collision (env is
// the highest-precedence layer).
func mergeDeviceShorthand(fileDevices, shorthand []DeviceConfig) []DeviceConfig {
	byID := make(map[string]DeviceConfig, len(fileDevices))
	var order []string
	for _, d := range fileDevices {
		if _, exists := byID[d.ID]; !exists {
			order = append(order, d.ID)
		}
		byID[d.ID] = d
	}
	for _, d := range shorthand {
		if _, exists := byID[d.ID]; !exists {
			order = append(order, d.ID)
		}
		byID[d.ID] = d
	}
	out := make([]DeviceConfig, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}
