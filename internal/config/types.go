package config

// WatchdogConfig is the per-device liveness-monitoring configuration
// named in spec.md §4.4, kept as its own exported type so it
// round-trips through YAML and the persisted state file without a
// stringly-typed blob (SPEC_FULL.md §4).
type WatchdogConfig struct {
	Enabled                 bool         `yaml:"enabled" json:"enabled"`
	TimeoutMinutes          int          `yaml:"timeoutMinutes" json:"timeoutMinutes"`
	Action                  string       `yaml:"action" json:"action"` // restart|fallback-scene|mqtt-command-sequence|notify
	FallbackScene           string       `yaml:"fallbackScene,omitempty" json:"fallbackScene,omitempty"`
	Commands                []BusCommand `yaml:"commands,omitempty" json:"commands,omitempty"`
	HealthCheckIntervalSecs int          `yaml:"healthCheckIntervalSeconds,omitempty" json:"healthCheckIntervalSeconds,omitempty"`
	CheckWhenOff            bool         `yaml:"checkWhenOff,omitempty" json:"checkWhenOff,omitempty"`
}

// BusCommand is one message published as part of a
// mqtt-command-sequence remediation action.
type BusCommand struct {
	Topic   string `yaml:"topic" json:"topic"`
	Payload string `yaml:"payload" json:"payload"`
}

// DeviceConfig is the on-disk/over-the-wire shape of a configured
// device (spec.md §3 Device, minus scheduler-owned runtime fields like
// currentScene generation, which belong to the State Store).
type DeviceConfig struct {
	ID             string         `yaml:"id" json:"id"`
	DriverKind     string         `yaml:"driverKind" json:"driverKind"` // real|mock|bus
	Host           string         `yaml:"host,omitempty" json:"host,omitempty"`
	DeviceType     string         `yaml:"deviceType" json:"deviceType"`
	Brightness     int            `yaml:"brightness" json:"brightness"`
	DisplayOn      bool           `yaml:"displayOn" json:"displayOn"`
	StartupScene   string         `yaml:"startupScene,omitempty" json:"startupScene,omitempty"`
	WatchdogConfig WatchdogConfig `yaml:"watchdog" json:"watchdog"`
}

// MessageBusConfig configures the MQTT transport (SPEC_FULL.md §3).
type MessageBusConfig struct {
	Host     string `yaml:"host" json:"host"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
}

// RESTConfig configures the REST Adapter (spec.md §6).
type RESTConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Port     int    `yaml:"port" json:"port"`
	AuthUser string `yaml:"authUser,omitempty" json:"authUser,omitempty"`
	AuthPass string `yaml:"authPass,omitempty" json:"authPass,omitempty"`
}

// AppConfig is the fully resolved configuration, assembled by Loader
// from defaults, file and environment in that precedence order
// (lowest to highest).
type AppConfig struct {
	DataDir     string            `yaml:"dataDir" json:"dataDir"`
	StatePath   string            `yaml:"statePath,omitempty" json:"statePath,omitempty"`
	LogLevel    string            `yaml:"logLevel" json:"logLevel"`
	MessageBus  MessageBusConfig  `yaml:"messageBus" json:"messageBus"`
	REST        RESTConfig        `yaml:"rest" json:"rest"`
	SceneDir    string            `yaml:"sceneDir,omitempty" json:"sceneDir,omitempty"`
	Devices     []DeviceConfig    `yaml:"devices,omitempty" json:"devices,omitempty"`
	Version     string            `yaml:"-" json:"version"`
}

// FileConfig is the strict YAML document shape accepted from disk.
// Kept distinct from AppConfig so unknown-field rejection (§Loader)
// never rejects fields that are only ever set by env or defaults.
type FileConfig struct {
	DataDir    string            `yaml:"dataDir"`
	StatePath  string            `yaml:"statePath"`
	LogLevel   string            `yaml:"logLevel"`
	MessageBus MessageBusConfig  `yaml:"messageBus"`
	REST       RESTConfig        `yaml:"rest"`
	SceneDir   string            `yaml:"sceneDir"`
	Devices    []DeviceConfig    `yaml:"devices"`
}
