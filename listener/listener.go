// Package listener implements the polling consumer that drives a handler
// against a message store with configurable retry, dead-letter and drop
// policy.
package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oriys/fabric/internal/config"
	"github.com/oriys/fabric/internal/logging"
	"github.com/oriys/fabric/internal/metrics"
	"github.com/oriys/fabric/message"
	"github.com/oriys/fabric/store"
)

// Handler processes one message's content. A returned error (or panic,
// which the listener recovers and treats identically) triggers the retry
// policy.
type Handler func(ctx context.Context, content message.Content) error

// Config configures a StoreListener's poll cycle.
type Config struct {
	// PollingInterval is the period between poll attempts. Must be > 0;
	// defaults to 1s if left zero.
	PollingInterval time.Duration
	// MaxRetries is the number of additional attempts after the initial
	// failure. Zero means no retries.
	MaxRetries int
	// RetryInterval is the delay between retries. Must be > 0 if
	// MaxRetries > 0; defaults to 1s if left zero.
	RetryInterval time.Duration
	// DropMessageAfterMaxRetries selects the behavior when retries are
	// exhausted and no DeadLetterStore is set: true positive-acks (drops)
	// the message, false negative-acks (keeps) it.
	DropMessageAfterMaxRetries bool
	// DeadLetterStore, if set, dominates DropMessageAfterMaxRetries: a
	// message surviving all retries is stored here instead.
	DeadLetterStore store.Store
}

func (c Config) resolve() Config {
	defaults := config.DefaultListener()
	if c.PollingInterval <= 0 {
		c.PollingInterval = defaults.PollingInterval
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaults.RetryInterval
	}
	return c
}

// ErrListenerAlreadyAttached is returned by Attach when a handler is
// already bound.
var ErrListenerAlreadyAttached = errors.New("listener: a handler is already attached")

// StoreListener polls a Store and dispatches retrieved content to a single
// attached Handler, applying the configured retry/DLQ/drop policy. One tick
// always runs to completion before the next begins.
type StoreListener struct {
	name  string
	store store.Store
	cfg   Config

	mu      sync.Mutex
	handler Handler
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a listener over store. name identifies the listener in logs
// and metrics.
func New(name string, s store.Store, cfg Config) *StoreListener {
	return &StoreListener{
		name:  name,
		store: s,
		cfg:   cfg.resolve(),
	}
}

// Attach binds h as the listener's handler. Exactly one handler may be
// attached at a time; attaching to an already-attached listener fails.
func (l *StoreListener) Attach(h Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handler != nil {
		return ErrListenerAlreadyAttached
	}
	l.handler = h
	return nil
}

// Detach stops the poll job, if running, and clears the attachment.
func (l *StoreListener) Detach() {
	l.stopLocked()
	l.mu.Lock()
	l.handler = nil
	l.mu.Unlock()
}

// Start launches the poll loop. A no-op if no handler is attached or the
// poll job is already running.
func (l *StoreListener) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handler == nil || l.running {
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})

	go l.loop(ctx, l.handler, l.stopCh, l.doneCh)
	logging.Op().Info("listener started", "listener", l.name, "poll_interval", l.cfg.PollingInterval)
}

// GracefulStop stops new polls and waits for any in-flight dispatch to
// finish before returning.
func (l *StoreListener) GracefulStop() {
	done := l.stopLocked()
	if done != nil {
		<-done
	}
}

// ImmediateStop cancels the recurring task without waiting for an in-flight
// dispatch to finish. It does not interrupt a handler already running.
func (l *StoreListener) ImmediateStop() {
	l.stopLocked()
}

// stopLocked closes stopCh if running and returns the doneCh to optionally
// wait on; returns nil if the listener wasn't running.
func (l *StoreListener) stopLocked() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return nil
	}
	l.running = false
	close(l.stopCh)
	done := l.doneCh
	return done
}

func (l *StoreListener) loop(ctx context.Context, handler Handler, stopCh chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(l.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			l.tick(ctx, handler)
		}
	}
}

// tick runs exactly one poll cycle to completion.
func (l *StoreListener) tick(ctx context.Context, handler Handler) {
	handle, content, ok, err := l.store.Retrieve(ctx)
	if err != nil {
		logging.Op().Error("listener: retrieve failed", "listener", l.name, "error", err)
		return
	}
	if !ok {
		return
	}

	if l.dispatch(ctx, handler, content) {
		l.ack(ctx, handle, true, "acked")
		return
	}

	attempts := 0
	for attempts < l.cfg.MaxRetries {
		time.Sleep(l.cfg.RetryInterval)
		attempts++
		metrics.RecordListenerRetry(l.name)
		if l.dispatch(ctx, handler, content) {
			l.ack(ctx, handle, true, "acked")
			return
		}
	}

	if l.cfg.DeadLetterStore != nil {
		if err := l.cfg.DeadLetterStore.Store(ctx, content); err == nil {
			metrics.RecordDeadLetter(l.name)
			l.ack(ctx, handle, true, "dead_lettered")
			return
		}
		logging.Op().Error("listener: dead-letter store failed, falling back to drop policy", "listener", l.name)
	}

	if l.cfg.DropMessageAfterMaxRetries {
		l.ack(ctx, handle, true, "dropped")
	} else {
		l.ack(ctx, handle, false, "kept")
	}
}

// dispatch invokes handler, converting a panic into a returned error so
// handler panics are treated identically to returned errors.
func (l *StoreListener) dispatch(ctx context.Context, handler Handler, content message.Content) (success bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Op().Error("listener: handler panicked", "listener", l.name, "panic", fmt.Sprint(r))
			success = false
		}
	}()
	if err := handler(ctx, content); err != nil {
		logging.Op().Warn("listener: handler returned error", "listener", l.name, "error", err)
		return false
	}
	return true
}

func (l *StoreListener) ack(ctx context.Context, h store.Handle, success bool, outcome string) {
	if err := l.store.Acknowledge(ctx, h, success); err != nil {
		logging.Op().Error("listener: acknowledge failed", "listener", l.name, "error", err)
		return
	}
	metrics.RecordListenerOutcome(l.name, outcome)
}
