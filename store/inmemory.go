package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/oriys/fabric/internal/metrics"
	"github.com/oriys/fabric/message"
)

// Order selects the retrieval order of an InMemory store.
type Order int

const (
	// FIFO retrieves entries in the order they were stored.
	FIFO Order = iota
	// LIFO retrieves the most recently stored entry first.
	LIFO
)

type inMemoryEntry struct {
	content  message.Content
	reserved bool
}

// InMemory is a process-local store backed by an ordered slice, guarded by
// a single mutex. Acknowledgement removes the specific entry bound to a
// handle (never just the head), so interleaved retrievals from concurrent
// callers are tolerated.
type InMemory struct {
	mu      sync.Mutex
	order   Order
	entries []*inMemoryEntry
	handles map[Handle]*inMemoryEntry
	seq     uint64
}

// NewInMemory creates an empty in-memory store with the given retrieval
// order.
func NewInMemory(order Order) *InMemory {
	return &InMemory{
		order:   order,
		handles: make(map[Handle]*inMemoryEntry),
	}
}

// storeKindInMemory is the "store" label recorded against this
// implementation's Prometheus counters.
const storeKindInMemory = "inmemory"

// Store appends content to the store.
func (s *InMemory) Store(_ context.Context, content message.Content) error {
	s.mu.Lock()
	s.entries = append(s.entries, &inMemoryEntry{content: content.Clone()})
	s.mu.Unlock()
	metrics.RecordStoreOp(storeKindInMemory, "store", "success")
	return nil
}

// Retrieve returns the next unreserved entry per the configured order,
// without removing it.
func (s *InMemory) Retrieve(_ context.Context) (Handle, message.Content, bool, error) {
	s.mu.Lock()
	entry := s.nextUnreserved()
	if entry == nil {
		s.mu.Unlock()
		metrics.RecordStoreOp(storeKindInMemory, "retrieve", "empty")
		return "", message.Content{}, false, nil
	}
	entry.reserved = true
	s.seq++
	h := Handle(fmt.Sprintf("inmem-%d", s.seq))
	s.handles[h] = entry
	content := entry.content.Clone()
	s.mu.Unlock()
	metrics.RecordStoreOp(storeKindInMemory, "retrieve", "hit")
	return h, content, true, nil
}

func (s *InMemory) nextUnreserved() *inMemoryEntry {
	if s.order == LIFO {
		for i := len(s.entries) - 1; i >= 0; i-- {
			if !s.entries[i].reserved {
				return s.entries[i]
			}
		}
		return nil
	}
	for _, e := range s.entries {
		if !e.reserved {
			return e
		}
	}
	return nil
}

// Acknowledge resolves handle. On success the entry is removed; on failure
// it is released so a later Retrieve can return it again.
func (s *InMemory) Acknowledge(_ context.Context, h Handle, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.handles[h]
	if !ok {
		metrics.RecordStoreOp(storeKindInMemory, "acknowledge", "error")
		return ErrUnknownHandle
	}
	delete(s.handles, h)

	if !success {
		entry.reserved = false
		metrics.RecordStoreOp(storeKindInMemory, "acknowledge", "negative")
		return nil
	}

	for i, e := range s.entries {
		if e == entry {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	metrics.RecordStoreOp(storeKindInMemory, "acknowledge", "positive")
	return nil
}

// Len reports the number of entries currently held (reserved or not),
// useful in tests asserting a store has drained.
func (s *InMemory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
