// Package config loads, validates and hot-reloads the daemon's
// configuration, following the teacher's internal/config Loader
// precedence pattern (defaults -> file -> env) trimmed to this
// daemon's scope: no ffmpeg/HLS/E2-auth resolution, no legacy-key
// guardrails, since none of those concerns exist here.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader resolves an AppConfig from defaults, an optional YAML file,
// and environment overrides, in that precedence order.
type Loader struct {
	configPath string
	version    string
}

// NewLoader constructs a Loader for the given config file path (may be
// empty, in which case only defaults and environment apply).
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load resolves the final configuration: defaults -> file -> env,
// validating at the end.
func (l *Loader) Load() (AppConfig, error) {
	cfg := AppConfig{}
	setDefaults(&cfg)

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	if err := mergeEnvConfig(&cfg); err != nil {
		return cfg, fmt.Errorf("merge env config: %w", err)
	}

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.StatePath == "" {
		cfg.StatePath = filepath.Join(cfg.DataDir, defaultStateFileName)
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile reads and strictly parses a YAML config file: unknown
// fields are rejected to catch typos and stale keys early.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, file *FileConfig) {
	if file.DataDir != "" {
		cfg.DataDir = file.DataDir
	}
	if file.StatePath != "" {
		cfg.StatePath = file.StatePath
	}
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	if file.SceneDir != "" {
		cfg.SceneDir = file.SceneDir
	}
	if file.MessageBus.Host != "" {
		cfg.MessageBus = file.MessageBus
	}
	if file.REST.Port != 0 {
		cfg.REST = file.REST
	}
	if len(file.Devices) > 0 {
		cfg.Devices = file.Devices
	}
}
