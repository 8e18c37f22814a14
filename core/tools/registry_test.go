package tools

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRegistrySpecsKeepOrderAndSchema(t *testing.T) {
	other := New("getDateAndTimeTool", "Current date and time", func(ctx context.Context, _ struct{}) (string, error) {
		return "now", nil
	})
	r := NewRegistry(weatherStub(1), other)

	specs := r.Specs()
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	if specs[0].Name != "weather" || specs[1].Name != "getDateAndTimeTool" {
		t.Fatalf("expected registration order, got %q, %q", specs[0].Name, specs[1].Name)
	}

	var schema struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal([]byte(specs[0].InputSchema.JSON), &schema); err != nil {
		t.Fatalf("expected schema to be JSON, got %q: %v", specs[0].InputSchema.JSON, err)
	}
	if schema.Type != "object" {
		t.Fatalf("expected object schema, got %q", schema.Type)
	}
	if _, ok := schema.Properties["city"]; !ok {
		t.Fatalf("expected city property in %s", specs[0].InputSchema.JSON)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry(weatherStub(1))

	if err := r.Register(weatherStub(2)); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 tool, got %d", r.Len())
	}
}

func TestNilRegistry(t *testing.T) {
	var r *Registry
	if _, ok := r.Lookup("weather"); ok {
		t.Fatalf("expected no tools in nil registry")
	}
	if specs := r.Specs(); specs != nil {
		t.Fatalf("expected nil specs, got %v", specs)
	}
}
