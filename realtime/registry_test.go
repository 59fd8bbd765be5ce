package realtime

import (
	"errors"
	"testing"
	"time"
)

func TestRegistry_CreateRejectsDuplicate(t *testing.T) {
	r := NewRegistry(nil)
	if _, err := r.Create("c1", "s1", "u1", "seed"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create("c1", "s2", "u1", ""); !errors.Is(err, ErrEntryExists) {
		t.Errorf("Create() error = %v, want ErrEntryExists", err)
	}
	e, _ := r.Get("c1")
	if e.SessionID != "s1" || e.Transcript != "seed" || e.Dirty() {
		t.Errorf("entry = %+v", e)
	}
}

func TestRegistry_AppendText(t *testing.T) {
	tests := []struct {
		name    string
		initial string
		appends []string
		want    string
	}{
		{"empty seed", "", []string{"hello", "world"}, "hello world"},
		{"existing seed", "earlier", []string{"later"}, "earlier later"},
		{"blank ignored", "", []string{"a", "  ", "", "b"}, "a b"},
		{"trimmed", "", []string{"  padded  "}, "padded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(nil)
			_, _ = r.Create("c", "s", "u", tt.initial)
			for _, a := range tt.appends {
				r.AppendText("c", a)
			}
			e, _ := r.Get("c")
			if e.Transcript != tt.want {
				t.Errorf("transcript = %q, want %q", e.Transcript, tt.want)
			}
		})
	}
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := NewRegistry(nil)
	_, _ = r.Create("c", "s", "u", "")
	e, _ := r.Get("c")
	e.Transcript = "mutated"

	again, _ := r.Get("c")
	if again.Transcript != "" {
		t.Error("registry entry mutated through a snapshot")
	}
}

func TestRegistry_ListStaleAndTouch(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(clock.Now)
	_, _ = r.Create("old", "s1", "u", "")
	_, _ = r.Create("kept", "s2", "u", "")

	clock.Advance(20 * time.Minute)
	r.Touch("kept")
	clock.Advance(10 * time.Minute)

	if stale := r.ListStale(clock.Now(), 30*time.Minute); len(stale) != 0 {
		t.Errorf("exactly at timeout should not be stale, got %v", stale)
	}
	clock.Advance(time.Second)
	stale := r.ListStale(clock.Now(), 30*time.Minute)
	if len(stale) != 1 || stale[0] != "old" {
		t.Errorf("stale = %v, want [old]", stale)
	}
	if r.Len() != 2 {
		t.Error("ListStale must not remove entries")
	}
}

func TestRegistry_MarkFlushedAndRemove(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(clock.Now)
	_, _ = r.Create("c", "s", "u", "")
	r.AppendText("c", "text")

	clock.Advance(time.Minute)
	r.MarkFlushed("c", "text", clock.Now())
	e, _ := r.Get("c")
	if e.Dirty() || !e.LastFlushAt.Equal(clock.Now()) || !e.LastActivityAt.Equal(clock.Now()) {
		t.Errorf("entry = %+v", e)
	}

	removed, ok := r.Remove("c")
	if !ok || removed.Transcript != "text" {
		t.Errorf("Remove() = %+v, %v", removed, ok)
	}
	if _, ok := r.Remove("c"); ok {
		t.Error("second Remove() should report absent")
	}
	r.AppendText("c", "ignored")
	r.Touch("c")
	r.MarkFlushed("c", "x", clock.Now())
}

func TestRegistry_HasSession(t *testing.T) {
	r := NewRegistry(nil)
	if r.HasSession("s1") {
		t.Error("empty registry reports a session")
	}
	_, _ = r.Create("c1", "s1", "u1", "")
	if !r.HasSession("s1") || r.HasSession("s2") {
		t.Error("HasSession does not follow entries")
	}
	r.Remove("c1")
	if r.HasSession("s1") {
		t.Error("removed entry still reported")
	}
}
