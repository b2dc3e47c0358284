package scene

import "testing"

type stubScene struct{ NoopLifecycle }

func (stubScene) Render(Context) RenderResult { return RenderResult{Status: RenderTerminal} }

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Descriptor{Name: "clock", New: func() Scene { return stubScene{} }}); err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}

	d, ok := r.Lookup("clock")
	if !ok {
		t.Fatal("Lookup(\"clock\") = false, want true")
	}
	if d.Name != "clock" {
		t.Errorf("Lookup returned descriptor for %q", d.Name)
	}

	if _, ok := r.Lookup("missing"); ok {
		t.Error("Lookup(\"missing\") = true, want false")
	}
}

func TestRegistry_RejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	d := Descriptor{Name: "clock", New: func() Scene { return stubScene{} }}
	if err := r.Register(d); err != nil {
		t.Fatalf("first Register() returned error: %v", err)
	}
	if err := r.Register(d); err == nil {
		t.Fatal("expected error registering duplicate scene name")
	}
}

func TestRegistry_RejectsMissingConstructor(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Descriptor{Name: "broken"}); err == nil {
		t.Fatal("expected error for descriptor missing New")
	}
}

func TestRegistry_FreezeBlocksFurtherRegistration(t *testing.T) {
	r := NewRegistry()
	r.Freeze()
	err := r.Register(Descriptor{Name: "late", New: func() Scene { return stubScene{} }})
	if err == nil {
		t.Fatal("expected error registering after Freeze")
	}
}

func TestRegistry_ListSkipsHiddenAndSortsByName(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Descriptor{Name: "zeta", New: func() Scene { return stubScene{} }})
	_ = r.Register(Descriptor{Name: "alpha", New: func() Scene { return stubScene{} }})
	_ = r.Register(Descriptor{Name: "secret", New: func() Scene { return stubScene{} }, IsHidden: true})
	r.Freeze()

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(list))
	}
	if list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Errorf("List() not sorted: %+v", list)
	}
}

func TestValidatePayload_NoSchemaAlwaysPasses(t *testing.T) {
	d := Descriptor{Name: "clock", New: func() Scene { return stubScene{} }}
	if err := ValidatePayload(d, map[string]any{"anything": 1}); err != nil {
		t.Errorf("ValidatePayload() with no schema returned error: %v", err)
	}
}

func TestValidatePayload_EnforcesSchema(t *testing.T) {
	schema := []byte(`{"type":"object","required":["format"],"properties":{"format":{"type":"string"}}}`)
	d := Descriptor{Name: "clock", New: func() Scene { return stubScene{} }, ConfigSchema: schema}

	if err := ValidatePayload(d, map[string]any{"format": "24h"}); err != nil {
		t.Errorf("ValidatePayload() with satisfying payload returned error: %v", err)
	}
	if err := ValidatePayload(d, map[string]any{}); err == nil {
		t.Error("ValidatePayload() with missing required field should have failed")
	}
}

func TestRegistry_RejectsInvalidConfigSchema(t *testing.T) {
	r := NewRegistry()
	d := Descriptor{Name: "clock", New: func() Scene { return stubScene{} }, ConfigSchema: []byte(`not json`)}
	if err := r.Register(d); err == nil {
		t.Fatal("expected error for invalid configSchema JSON")
	}
}
