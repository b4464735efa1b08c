package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oriys/fabric/message"
)

func TestLocalDirectoryStoreAndRetrieve(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewLocalDirectory(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := s.Store(ctx, message.String("payload")); err != nil {
		t.Fatalf("store: %v", err)
	}

	h, content, ok, err := s.Retrieve(ctx)
	if err != nil || !ok {
		t.Fatalf("retrieve: ok=%v err=%v", ok, err)
	}
	got, _ := content.String()
	if got != "payload" {
		t.Fatalf("content = %q, want %q", got, "payload")
	}
	if filepath.Dir(string(h)) != dir {
		t.Fatalf("handle %q not rooted at %q", h, dir)
	}

	// While reserved, a second retrieve must not return the same file.
	_, _, ok, err = s.Retrieve(ctx)
	if err != nil {
		t.Fatalf("second retrieve: %v", err)
	}
	if ok {
		t.Fatal("expected no further entries while the only one is reserved")
	}

	if err := s.Acknowledge(ctx, h, true); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if _, err := os.Stat(string(h)); !os.IsNotExist(err) {
		t.Fatalf("expected file removed after positive ack, stat err=%v", err)
	}
}

func TestLocalDirectoryNegativeAckKeepsFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, _ := NewLocalDirectory(dir)
	_ = s.Store(ctx, message.String("x"))

	h, _, _, _ := s.Retrieve(ctx)
	if err := s.Acknowledge(ctx, h, false); err != nil {
		t.Fatalf("negative ack: %v", err)
	}
	if _, err := os.Stat(string(h)); err != nil {
		t.Fatalf("expected file to remain after negative ack: %v", err)
	}

	// Should be retrievable again.
	h2, _, ok, err := s.Retrieve(ctx)
	if err != nil || !ok {
		t.Fatalf("re-retrieve: ok=%v err=%v", ok, err)
	}
	if h2 != h {
		t.Fatalf("expected same file path handle, got %q want %q", h2, h)
	}
}

func TestLocalDirectorySkipsNonJSONFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "not-json.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not valid"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	s, _ := NewLocalDirectory(dir)
	_ = s.Store(ctx, message.String("good"))

	_, content, ok, err := s.Retrieve(ctx)
	if err != nil || !ok {
		t.Fatalf("retrieve: ok=%v err=%v", ok, err)
	}
	got, _ := content.String()
	if got != "good" {
		t.Fatalf("content = %q, want %q", got, "good")
	}
}

func TestLocalDirectoryAckBijection(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, _ := NewLocalDirectory(dir)
	_ = s.Store(ctx, message.String("x"))

	h, _, _, _ := s.Retrieve(ctx)
	if err := s.Acknowledge(ctx, h, true); err != nil {
		t.Fatalf("first ack: %v", err)
	}
	if err := s.Acknowledge(ctx, h, true); err != ErrUnknownHandle {
		t.Fatalf("second ack: got %v, want ErrUnknownHandle", err)
	}
}
