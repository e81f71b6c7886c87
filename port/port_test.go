package port

import (
	"errors"
	"testing"
)

func TestBindLookupClear(t *testing.T) {
	m := NewMap[string](16)

	if err := m.Bind(42, "listener-a"); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	got, ok := m.Lookup(42)
	if !ok || got != "listener-a" {
		t.Fatalf("Lookup: got=%q ok=%v", got, ok)
	}

	m.Clear(42)
	if _, ok := m.Lookup(42); ok {
		t.Fatalf("expected slot cleared")
	}
}

func TestBindRejectsOutOfRange(t *testing.T) {
	m := NewMap[string](16)
	if err := m.Bind(0, "x"); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for port 0, got %v", err)
	}
	if err := m.Bind(17, "x"); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for port above max, got %v", err)
	}
}

func TestBindRejectsDuplicate(t *testing.T) {
	m := NewMap[string](16)
	if err := m.Bind(5, "first"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := m.Bind(5, "second"); !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}

	got, _ := m.Lookup(5)
	if got != "first" {
		t.Fatalf("duplicate bind must not replace the existing registrant, got %q", got)
	}
}

func TestClearThenRebind(t *testing.T) {
	m := NewMap[string](16)
	if err := m.Bind(5, "first"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	m.Clear(5)
	if err := m.Bind(5, "second"); err != nil {
		t.Fatalf("rebind after clear: %v", err)
	}
	got, _ := m.Lookup(5)
	if got != "second" {
		t.Fatalf("expected second, got %q", got)
	}
}
