package session

import (
	"strings"
	"testing"
)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !strings.HasPrefix(id, "sess_") {
		t.Fatalf("expected sess_ prefix, got %q", id)
	}
	if len(id) != len("sess_")+26 {
		t.Fatalf("expected 26-char ULID suffix, got %q", id)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
