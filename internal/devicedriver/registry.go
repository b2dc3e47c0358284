package devicedriver

import (
	"fmt"

	"github.com/pixoo/daemon/internal/capability"
)

// Kind identifies a driver variant, both as configured on a Device and
// as accepted by the `driver/set` command (spec.md §6).
type Kind string

const (
	KindReal Kind = "real"
	KindMock Kind = "mock"
	KindBus  Kind = "bus"
)

// ParseKind accepts the driver names the router must recognize,
// including the bare-string form `"real"`/`"mock"` from spec.md §6.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindReal, KindMock, KindBus:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown driver kind %q", s)
	}
}

// Constructor builds a Driver for a device given its host (for real
// panels) and capability descriptor.
type Constructor func(deviceID, host string, caps capability.Display) (Driver, error)

// Registry maps deviceType/driverKind to a Constructor, matching
// spec.md §4.2's "mapping from deviceType to a driver constructor".
type Registry struct {
	ctors map[Kind]Constructor
	pub   Publisher
}

// NewRegistry constructs a Registry wired to a bus Publisher (used by
// MessageBusPanel); pub may be nil if bus-driven panels are unused.
func NewRegistry(pub Publisher) *Registry {
	r := &Registry{ctors: make(map[Kind]Constructor), pub: pub}
	r.Register(KindMock, func(deviceID, host string, caps capability.Display) (Driver, error) {
		return NewMock(caps), nil
	})
	r.Register(KindReal, func(deviceID, host string, caps capability.Display) (Driver, error) {
		if host == "" {
			return nil, fmt.Errorf("real driver for %s requires a host", deviceID)
		}
		return NewRealHTTPPanel(host, caps), nil
	})
	r.Register(KindBus, func(deviceID, host string, caps capability.Display) (Driver, error) {
		if r.pub == nil {
			return nil, fmt.Errorf("bus driver for %s requires a bus publisher", deviceID)
		}
		return NewMessageBusPanel(deviceID, r.pub, caps), nil
	})
	return r
}

// Register installs or overrides the constructor for a kind.
func (r *Registry) Register(kind Kind, ctor Constructor) {
	r.ctors[kind] = ctor
}

// Build constructs a driver of the given kind.
func (r *Registry) Build(kind Kind, deviceID, host string, caps capability.Display) (Driver, error) {
	ctor, ok := r.ctors[kind]
	if !ok {
		return nil, fmt.Errorf("no driver constructor registered for kind %q", kind)
	}
	return ctor(deviceID, host, caps)
}
