package store

import (
	"context"
	"sync"
	"testing"

	"github.com/oriys/fabric/message"
)

func TestInMemoryFIFOOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(FIFO)

	for _, v := range []string{"a", "b", "c"} {
		if err := s.Store(ctx, message.String(v)); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		h, content, ok, err := s.Retrieve(ctx)
		if err != nil || !ok {
			t.Fatalf("retrieve: ok=%v err=%v", ok, err)
		}
		got, _ := content.String()
		if got != want {
			t.Fatalf("retrieve order: got %q want %q", got, want)
		}
		if err := s.Acknowledge(ctx, h, true); err != nil {
			t.Fatalf("acknowledge: %v", err)
		}
	}
}

func TestInMemoryLIFOOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(LIFO)

	for _, v := range []string{"a", "b", "c"} {
		if err := s.Store(ctx, message.String(v)); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	for _, want := range []string{"c", "b", "a"} {
		h, content, ok, err := s.Retrieve(ctx)
		if err != nil || !ok {
			t.Fatalf("retrieve: ok=%v err=%v", ok, err)
		}
		got, _ := content.String()
		if got != want {
			t.Fatalf("retrieve order: got %q want %q", got, want)
		}
		if err := s.Acknowledge(ctx, h, true); err != nil {
			t.Fatalf("acknowledge: %v", err)
		}
	}
}

func TestInMemoryRetrieveEmptyReturnsFalse(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(FIFO)
	_, _, ok, err := s.Retrieve(ctx)
	if err != nil || ok {
		t.Fatalf("expected ok=false on empty store, got ok=%v err=%v", ok, err)
	}
}

func TestInMemoryNegativeAckRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(FIFO)
	if err := s.Store(ctx, message.String("x")); err != nil {
		t.Fatalf("store: %v", err)
	}

	h1, c1, ok, err := s.Retrieve(ctx)
	if err != nil || !ok {
		t.Fatalf("first retrieve: ok=%v err=%v", ok, err)
	}
	if err := s.Acknowledge(ctx, h1, false); err != nil {
		t.Fatalf("negative ack: %v", err)
	}

	h2, c2, ok, err := s.Retrieve(ctx)
	if err != nil || !ok {
		t.Fatalf("second retrieve: ok=%v err=%v", ok, err)
	}
	if h1 == h2 {
		t.Fatal("expected a fresh handle after negative ack")
	}
	if !c1.Equal(c2) {
		t.Fatalf("content mismatch across negative-ack round trip: %v vs %v", c1, c2)
	}
	if err := s.Acknowledge(ctx, h2, true); err != nil {
		t.Fatalf("final ack: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected store empty after positive ack, len=%d", s.Len())
	}
}

func TestInMemoryAckBijection(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(FIFO)
	_ = s.Store(ctx, message.String("x"))

	h, _, _, _ := s.Retrieve(ctx)
	if err := s.Acknowledge(ctx, h, true); err != nil {
		t.Fatalf("first ack: %v", err)
	}
	if err := s.Acknowledge(ctx, h, true); err != ErrUnknownHandle {
		t.Fatalf("second ack with same handle: got %v, want ErrUnknownHandle", err)
	}
}

func TestInMemoryConcurrentRetrieveYieldsDistinctHandles(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(FIFO)
	for i := 0; i < 10; i++ {
		_ = s.Store(ctx, message.Number(float64(i)))
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	seen := map[Handle]bool{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, _, ok, err := s.Retrieve(ctx)
			if err != nil || !ok {
				t.Errorf("retrieve %d: ok=%v err=%v", i, ok, err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[h] {
				t.Errorf("duplicate handle %q returned", h)
			}
			seen[h] = true
		}(i)
	}
	wg.Wait()
}
