package config

import "time"

const (
	DefaultDataDir        = "/var/lib/pixoo-daemon"
	DefaultLogLevel       = "info"
	DefaultRESTPort       = 8080
	DefaultWatchdogCheck  = 10 * time.Second
	defaultStateFileName  = "devices.json"
)

func setDefaults(cfg *AppConfig) {
	cfg.DataDir = DefaultDataDir
	cfg.LogLevel = DefaultLogLevel
	cfg.REST = RESTConfig{Enabled: true, Port: DefaultRESTPort}
}
