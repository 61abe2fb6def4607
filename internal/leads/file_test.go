package leads

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreAppendAndAll(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "leads.json"))
	ctx := context.Background()

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("all on empty store: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no leads before first append, got %d", len(all))
	}

	now := time.Now().UTC().Truncate(time.Second)
	for i, email := range []string{"a@acme.io", "b@acme.io"} {
		lead := Lead{Email: email, SessionID: "sess_" + email, CapturedAt: now}
		if err := store.Append(ctx, lead); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	all, err = store.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 leads, got %d", len(all))
	}
	if all[0].Email != "a@acme.io" || all[1].Email != "b@acme.io" {
		t.Errorf("leads out of order: %+v", all)
	}
	if !all[0].CapturedAt.Equal(now) {
		t.Errorf("captured_at not preserved: %v != %v", all[0].CapturedAt, now)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.json")
	ctx := context.Background()

	first := NewFileStore(path)
	if err := first.Append(ctx, Lead{Email: "a@acme.io", SessionID: "sess_1"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	second := NewFileStore(path)
	all, err := second.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 1 || all[0].Email != "a@acme.io" {
		t.Fatalf("reopened store lost data: %+v", all)
	}
}
