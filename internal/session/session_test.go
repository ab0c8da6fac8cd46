package session

import (
	"testing"

	"github.com/tubefetch/bot/internal/extract"
)

func TestMemoryStoreUpdateMerges(t *testing.T) {
	store := NewMemoryStore()

	store.Update(1, func(s *Session) {
		s.Link = "https://youtu.be/abc123"
		s.Meta = extract.Metadata{Title: "First"}
	})
	store.Update(1, func(s *Session) {
		s.Format = "mp4"
		s.Step = StepAwaitingQuality
	})

	sess, ok := store.Get(1)
	if !ok {
		t.Fatal("expected session to exist")
	}
	if sess.Link != "https://youtu.be/abc123" || sess.Format != "mp4" {
		t.Fatalf("expected merged fields, got %+v", sess)
	}
	if sess.Meta.Title != "First" || sess.Step != StepAwaitingQuality {
		t.Fatalf("expected earlier fields preserved, got %+v", sess)
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()

	store.Update(1, func(s *Session) {
		s.Meta = extract.Metadata{Title: "Alice's video"}
		s.Format = "mp4"
	})
	store.Update(2, func(s *Session) {
		s.Meta = extract.Metadata{Title: "Bob's video"}
		s.Format = "mp3"
	})

	a, _ := store.Get(1)
	b, _ := store.Get(2)
	if a.Meta.Title != "Alice's video" || a.Format != "mp4" {
		t.Fatalf("user 1 observed foreign state: %+v", a)
	}
	if b.Meta.Title != "Bob's video" || b.Format != "mp3" {
		t.Fatalf("user 2 observed foreign state: %+v", b)
	}

	store.Clear(1)
	if _, ok := store.Get(1); ok {
		t.Fatal("expected cleared session to be gone")
	}
	if _, ok := store.Get(2); !ok {
		t.Fatal("clearing one user must not affect another")
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()
	if _, ok := store.Get(42); ok {
		t.Fatal("expected no session for unknown user")
	}
	// Clearing an absent session is a no-op.
	store.Clear(42)
}
