package store

import (
	"sync"

	"github.com/pixoo/daemon/internal/apierr"
	"github.com/pixoo/daemon/internal/capability"
	"github.com/pixoo/daemon/internal/config"
	"github.com/pixoo/daemon/internal/log"
	"github.com/pixoo/daemon/internal/scene"
)

// Event is published to subscribers on every state-affecting mutation
// (spec.md §4.5 "subscribe(event -> listener)"). The scheduler
// publishes `.../scene/state` topics itself, not through these events.
type Event struct {
	DeviceID string
	State    DeviceSceneState
}

type deviceEntry struct {
	mu     sync.Mutex // serializes mutation of device/state fields; driver calls are serialized by the scheduler
	device Device
	state  DeviceSceneState
}

// Store is the State Store: the single source of truth for device
// settings and per-device scene state (spec.md §4.5). A global
// RWMutex protects the device map itself (membership changes,
// ListDevices snapshots); each device's own fields are additionally
// protected by its own mutex so unrelated devices never contend.
type Store struct {
	globalMu sync.RWMutex
	devices  map[string]*deviceEntry

	statePath string

	subMu     sync.RWMutex
	listeners []chan<- Event
}

// New constructs an empty Store that persists to statePath.
func New(statePath string) *Store {
	return &Store{devices: make(map[string]*deviceEntry), statePath: statePath}
}

// LoadOrInit hydrates the store from disk (spec.md §8's "restart
// recovers persisted brightness/displayOn/lastKnownScene exactly"),
// falling back silently to whatever AddDevice calls follow if nothing
// is persisted yet.
func (s *Store) LoadOrInit() (map[string]DurableSnapshot, error) {
	return loadSnapshot(s.statePath)
}

// AddDevice registers a device with its resolved capability
// descriptor, optionally recovering durable fields from a prior
// snapshot (recovered.LastKnownScene seeds currentScene so a
// crash-restart resumes the same scene; the scheduler still re-runs
// switchScene's Init since nothing about in-flight render state
// survives a process restart). Pass a zero DurableSnapshot for a
// freshly-configured device with no prior state.
func (s *Store) AddDevice(cfg config.DeviceConfig, caps capability.Display, recovered DurableSnapshot) error {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	if _, exists := s.devices[cfg.ID]; exists {
		return apierr.New(apierr.KindValidation, "device already registered: "+cfg.ID)
	}

	brightness := cfg.Brightness
	displayOn := cfg.DisplayOn
	if recovered.ID != "" {
		brightness = recovered.Brightness
		displayOn = recovered.DisplayOn
	}

	st := newDeviceSceneState()
	if recovered.LastKnownScene != "" {
		st.CurrentScene = recovered.LastKnownScene
		st.Status = StatusRunning
		st.PlayState = PlayRunning
	}

	s.devices[cfg.ID] = &deviceEntry{
		device: Device{
			ID:             cfg.ID,
			DriverKind:     cfg.DriverKind,
			Host:           cfg.Host,
			DeviceType:     cfg.DeviceType,
			Capabilities:   caps,
			Brightness:     brightness,
			DisplayOn:      displayOn,
			StartupScene:   cfg.StartupScene,
			WatchdogConfig: cfg.WatchdogConfig,
		},
		state: st,
	}
	if err := s.persistLocked(); err != nil {
		log.WithComponent("store").Error().Err(err).Str("device_id", cfg.ID).Msg("failed to persist state")
	}
	return nil
}

// RemoveDevice destroys a device's record (spec.md §3 "destroyed only
// on explicit removal").
func (s *Store) RemoveDevice(deviceID string) error {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()
	if _, ok := s.devices[deviceID]; !ok {
		return apierr.New(apierr.KindUnknownDevice, "unknown device: "+deviceID)
	}
	delete(s.devices, deviceID)
	return s.persistLocked()
}

// ListDevices returns a snapshot of every registered device and its
// current scene state (spec.md §4.5 listDevices).
func (s *Store) ListDevices() []struct {
	Device Device
	State  DeviceSceneState
} {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	out := make([]struct {
		Device Device
		State  DeviceSceneState
	}, 0, len(s.devices))
	for _, e := range s.devices {
		e.mu.Lock()
		out = append(out, struct {
			Device Device
			State  DeviceSceneState
		}{Device: e.device, State: e.state})
		e.mu.Unlock()
	}
	return out
}

func (s *Store) entry(deviceID string) (*deviceEntry, error) {
	s.globalMu.RLock()
	e, ok := s.devices[deviceID]
	s.globalMu.RUnlock()
	if !ok {
		return nil, apierr.New(apierr.KindUnknownDevice, "unknown device: "+deviceID)
	}
	return e, nil
}

// GetDeviceState returns a copy of a device's current scene state.
func (s *Store) GetDeviceState(deviceID string) (DeviceSceneState, error) {
	e, err := s.entry(deviceID)
	if err != nil {
		return DeviceSceneState{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, nil
}

// GetDevice returns a copy of a device's configuration/capabilities.
func (s *Store) GetDevice(deviceID string) (Device, error) {
	e, err := s.entry(deviceID)
	if err != nil {
		return Device{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.device, nil
}

// Mutator performs an atomic read-modify-write on a device's scene
// state under its own mutex (spec.md §4.5 setDeviceState). Returning
// an error aborts the mutation (no persistence, no event).
type Mutator func(*DeviceSceneState) error

// SetDeviceState runs mutate under the device's mutex, persists the
// durable subset if it changed, and notifies subscribers. Of
// DeviceSceneState, only CurrentScene feeds DurableSnapshot
// (LastKnownScene); the render loop calls this every frame purely to
// clear ConsecutiveFailures, so gating the write on an actual
// CurrentScene change keeps a self-looping scene from rewriting
// devices.json dozens of times a second (spec.md §4.5 scopes
// persistence to mutations affecting the durable subset).
func (s *Store) SetDeviceState(deviceID string, mutate Mutator) error {
	e, err := s.entry(deviceID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	before := e.state.CurrentScene
	if err := mutate(&e.state); err != nil {
		e.mu.Unlock()
		return err
	}
	snapshot := e.state
	durableChanged := snapshot.CurrentScene != before
	e.mu.Unlock()

	if durableChanged {
		s.globalMu.RLock()
		perr := s.persistLocked()
		s.globalMu.RUnlock()
		if perr != nil {
			log.WithComponent("store").Error().Err(perr).Str("device_id", deviceID).Msg("failed to persist state")
		}
	}

	s.notify(Event{DeviceID: deviceID, State: snapshot})
	return nil
}

// SetDeviceSettings mutates the device's configuration fields
// (brightness, displayOn, driver kind) under its mutex.
func (s *Store) SetDeviceSettings(deviceID string, mutate func(*Device) error) error {
	e, err := s.entry(deviceID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if err := mutate(&e.device); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	s.globalMu.RLock()
	perr := s.persistLocked()
	s.globalMu.RUnlock()
	if perr != nil {
		log.WithComponent("store").Error().Err(perr).Str("device_id", deviceID).Msg("failed to persist state")
	}
	return nil
}

// GetSceneState reads one scene's opaque state bag for a device.
func (s *Store) GetSceneState(deviceID, sceneName string) (map[string]any, error) {
	e, err := s.entry(deviceID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	bag, ok := e.state.PerSceneState[sceneName]
	if !ok {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(bag))
	for k, v := range bag {
		out[k] = v
	}
	return out, nil
}

// SetSceneState writes one key into a scene's opaque state bag.
func (s *Store) SetSceneState(deviceID, sceneName, key string, value any) error {
	e, err := s.entry(deviceID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	bag, ok := e.state.PerSceneState[sceneName]
	if !ok {
		bag = make(map[string]any)
		e.state.PerSceneState[sceneName] = bag
	}
	bag[key] = value
	return nil
}

// Subscribe registers a channel notified on every device-state
// mutation (spec.md §4.5 subscribe). The channel must not block.
func (s *Store) Subscribe(ch chan<- Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.listeners = append(s.listeners, ch)
}

func (s *Store) notify(ev Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, ch := range s.listeners {
		select {
		case ch <- ev:
		default:
			log.WithComponent("store").Warn().Str("device_id", ev.DeviceID).Msg("subscriber channel full, dropping state event")
		}
	}
}

// persistLocked writes the durable subset of every device to disk.
// Caller must hold at least globalMu.RLock (membership is stable
// while individual device mutexes are taken internally).
func (s *Store) persistLocked() error {
	snapshots := make(map[string]DurableSnapshot, len(s.devices))
	for id, e := range s.devices {
		e.mu.Lock()
		snapshots[id] = DurableSnapshot{
			ID:             e.device.ID,
			DriverKind:     e.device.DriverKind,
			Host:           e.device.Host,
			DeviceType:     e.device.DeviceType,
			Brightness:     e.device.Brightness,
			DisplayOn:      e.device.DisplayOn,
			StartupScene:   e.device.StartupScene,
			WatchdogConfig: e.device.WatchdogConfig,
			LastKnownScene: e.state.CurrentScene,
		}
		e.mu.Unlock()
	}
	return saveSnapshot(s.statePath, snapshots)
}

// sceneStateBag adapts the store's per-(device,scene) map to the
// scene.State interface handed to scenes via scene.Context.
type sceneStateBag struct {
	store     *Store
	deviceID  string
	sceneName string
}

// NewSceneState returns a scene.State bound to one (device, scene)
// activation, backed by this Store.
func (s *Store) NewSceneState(deviceID, sceneName string) scene.State {
	return &sceneStateBag{store: s, deviceID: deviceID, sceneName: sceneName}
}

func (b *sceneStateBag) Get(key string) (any, bool) {
	bag, err := b.store.GetSceneState(b.deviceID, b.sceneName)
	if err != nil {
		return nil, false
	}
	v, ok := bag[key]
	return v, ok
}

func (b *sceneStateBag) Set(key string, value any) {
	_ = b.store.SetSceneState(b.deviceID, b.sceneName, key, value)
}
