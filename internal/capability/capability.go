// Package capability defines the immutable value object describing a
// device's display geometry and optional feature set (spec.md §3,
// DisplayCapabilities).
package capability

import "fmt"

// Display describes a device's canvas geometry and optional features.
// It is immutable once constructed; devices hold it by value.
type Display struct {
	Width      int
	Height     int
	ColorDepth int // bits per pixel

	// Profile is a human-facing key (e.g. "pixoo64", "awtrix-wide");
	// it carries no behavior of its own and is not included in any REST
	// response.
	Profile string

	// Feature flags. Drivers that lack a method corresponding to a
	// false flag must return apierr.KindUnsupported rather than
	// silently no-op.
	HasAudio         bool
	HasNativeText    bool
	HasNativeIcons   bool
	HasNativePrims   bool
	HasCustomAppPush bool

	// BrightnessMin/Max define the accepted range for SetBrightness;
	// both zero means brightness control is unsupported.
	BrightnessMin int
	BrightnessMax int
}

// Validate enforces the width*height*colorDepth > 0 invariant from
// spec.md §3.
func (d Display) Validate() error {
	if d.Width <= 0 || d.Height <= 0 || d.ColorDepth <= 0 {
		return fmt.Errorf("capability: width=%d height=%d colorDepth=%d must all be positive", d.Width, d.Height, d.ColorDepth)
	}
	return nil
}

// SupportsBrightness reports whether brightness control is wired.
func (d Display) SupportsBrightness() bool {
	return d.BrightnessMax > d.BrightnessMin
}

// Square64 is the profile for the real HTTP 64x64 pixel panel.
func Square64() Display {
	return Display{
		Width: 64, Height: 64, ColorDepth: 24,
		Profile:          "pixoo64",
		HasAudio:         true,
		HasNativeText:    true,
		HasNativeIcons:   true,
		HasCustomAppPush: true,
		BrightnessMin:    0,
		BrightnessMax:    100,
	}
}

// Wide32x8 is the profile for the message-bus-driven wide panel.
func Wide32x8() Display {
	return Display{
		Width: 32, Height: 8, ColorDepth: 24,
		Profile:       "wide32x8",
		HasNativeText: false,
		BrightnessMin: 0,
		BrightnessMax: 100,
	}
}

// Mock is a capability profile for in-memory test devices.
func Mock() Display {
	return Display{
		Width: 64, Height: 64, ColorDepth: 24,
		Profile:       "mock",
		BrightnessMin: 0,
		BrightnessMax: 100,
	}
}

// ForDeviceType resolves a configured deviceType string to its
// capability descriptor (spec.md §3/§6 device registration). Bootstrap
// calls this once per configured device before store.AddDevice.
func ForDeviceType(deviceType string) (Display, error) {
	switch deviceType {
	case "pixoo64", "":
		return Square64(), nil
	case "wide32x8":
		return Wide32x8(), nil
	case "mock":
		return Mock(), nil
	default:
		return Display{}, fmt.Errorf("capability: unknown deviceType %q", deviceType)
	}
}
