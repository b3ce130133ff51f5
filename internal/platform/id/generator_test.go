package id

import (
	"strings"
	"testing"
)

func TestUUIDGenerator_NewID(t *testing.T) {
	t.Parallel()

	gen := NewUUIDGenerator()
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		value, err := gen.NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if _, ok := Canonical(value); !ok {
			t.Fatalf("expected uuid, got %q", value)
		}
		if _, dup := seen[value]; dup {
			t.Fatalf("duplicate id %q", value)
		}
		seen[value] = struct{}{}
	}
}

func TestCanonical(t *testing.T) {
	t.Parallel()

	got, ok := Canonical(" 3F2504E0-4F89-11D3-9A0C-0305E82C3301 ")
	if !ok {
		t.Fatalf("expected valid uuid")
	}
	if got != strings.ToLower("3F2504E0-4F89-11D3-9A0C-0305E82C3301") {
		t.Fatalf("unexpected canonical form: %q", got)
	}

	if _, ok := Canonical("not-a-uuid"); ok {
		t.Fatalf("expected invalid uuid to be rejected")
	}
}
