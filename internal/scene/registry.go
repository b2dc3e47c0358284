package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/pixoo/daemon/internal/apierr"
)

// Registry maps scene name to Descriptor. Populated once at startup
// and immutable thereafter (spec.md §4.6): no method here mutates the
// registry after Freeze, and the scheduler only ever calls Lookup/List.
type Registry struct {
	byName map[string]Descriptor
	frozen bool
	order  []string
}

// NewRegistry constructs an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Descriptor)}
}

// Register adds a scene descriptor. Returns an error (treated as
// Fatal by the caller, per spec.md §4.6/§7) on a duplicate name or
// once the registry has been frozen.
func (r *Registry) Register(d Descriptor) error {
	if r.frozen {
		return fmt.Errorf("scene registry: cannot register %q after startup (registry is immutable)", d.Name)
	}
	if d.Name == "" {
		return fmt.Errorf("scene registry: scene descriptor missing name")
	}
	if _, exists := r.byName[d.Name]; exists {
		return fmt.Errorf("scene registry: duplicate scene name %q", d.Name)
	}
	if d.New == nil {
		return fmt.Errorf("scene registry: scene %q missing constructor", d.Name)
	}
	if len(d.ConfigSchema) > 0 {
		if _, err := compileSchema(d.ConfigSchema); err != nil {
			return fmt.Errorf("scene registry: scene %q has invalid configSchema: %w", d.Name, err)
		}
	}
	r.byName[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Freeze marks the registry immutable. Called once by bootstrap after
// all scene sources have been loaded.
func (r *Registry) Freeze() { r.frozen = true }

// Lookup returns the descriptor for name, or (zero, false) if unknown
// (surfaced by callers as apierr.KindUnknownScene).
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// List returns all non-hidden descriptors, sorted by name, for
// GET /api/scenes (spec.md §6).
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		d := r.byName[name]
		if !d.IsHidden {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValidatePayload validates an incoming switchScene payload against a
// scene's optional configSchema (SPEC_FULL.md §4), before Init ever
// sees it. A nil/empty schema means "no constraints".
func ValidatePayload(d Descriptor, payload map[string]any) error {
	if len(d.ConfigSchema) == 0 {
		return nil
	}
	schema, err := compileSchema(d.ConfigSchema)
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "scene configSchema failed to compile", err)
	}
	if err := schema.VisitJSON(payload); err != nil {
		return apierr.Wrap(apierr.KindValidation, fmt.Sprintf("payload does not satisfy %s's configSchema", d.Name), err)
	}
	return nil
}

func compileSchema(raw []byte) (*openapi3.Schema, error) {
	var schema openapi3.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	if err := schema.Validate(context.Background()); err != nil {
		return nil, err
	}
	return &schema, nil
}
