// Package store defines the durable message store abstraction: an ordered
// holding area with an explicit retrieve/acknowledge protocol, plus three
// implementations (InMemory, LocalDirectory, AMQPBroker).
package store

import (
	"context"
	"errors"

	"github.com/oriys/fabric/message"
)

// Handle is an opaque token returned by Retrieve. It is distinct from a
// Message's ID and is the only token Acknowledge accepts. Two concurrent
// Retrieve calls on the same store never return the same handle.
type Handle string

// ErrUnknownHandle is returned by Acknowledge when the handle was never
// issued, or has already been acknowledged (positively or negatively) once.
var ErrUnknownHandle = errors.New("store: unknown or already-acknowledged handle")

// Store is the polymorphic capability set every backing medium satisfies.
//
// Retrieve returns the next entry per the store's ordering WITHOUT removing
// it; the entry stays reserved until Acknowledge is called with the handle
// Retrieve returned. Acknowledge is a one-shot operation per handle: a
// positive ack permanently removes the entry, a negative ack releases the
// reservation so a later Retrieve can return it again, and any handle may
// only be acknowledged once.
//
// Implementations must deep-clone content crossing the boundary in both
// directions so stores never share mutable state with callers.
type Store interface {
	// Store appends content to the store. Safe for concurrent callers.
	Store(ctx context.Context, content message.Content) error

	// Retrieve returns the next entry, or ok=false if the store was empty
	// at the instant of the call.
	Retrieve(ctx context.Context) (handle Handle, content message.Content, ok bool, err error)

	// Acknowledge resolves a previously-retrieved handle. success=true
	// permanently removes the entry; success=false returns it to the
	// store. An unknown or already-resolved handle is an error.
	Acknowledge(ctx context.Context, handle Handle, success bool) error
}
