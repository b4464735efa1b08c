// Package channel implements the channel executor: a named pipeline that
// runs a sequential source flow followed by a fan-out to one or more
// destinations, persisting any failure to a store and optionally wiring a
// listener that replays it.
package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oriys/fabric/internal/logging"
	"github.com/oriys/fabric/internal/metrics"
	"github.com/oriys/fabric/listener"
	"github.com/oriys/fabric/message"
	"github.com/oriys/fabric/store"
)

// failureStageKey marks, on a message written to the failure store, which
// stage of the pipeline produced the failure. Replay uses it to decide
// whether to re-run the source flow or go straight to destinations. It is
// fabric-internal bookkeeping, never meant to be read by handler code.
const failureStageKey = "__fabric_failure_stage__"

const (
	stageSource      = "source"
	stageDestination = "destination"
)

// FailureConfig configures where a channel's run failures are persisted
// and, optionally, how they are automatically replayed.
type FailureConfig struct {
	// Store receives the Message for any run that ends in ExecutionError.
	// Required for Replay and for replay-listener auto-wiring; a channel
	// with no FailureConfig simply drops failure state after returning it
	// to the caller.
	Store store.Store
	// ReplayListener, if set, auto-wires a listener.StoreListener over
	// Store whose handler calls Replay on every retrieved failure.
	ReplayListener *listener.Config
}

// Config describes a channel to be built with New.
type Config struct {
	// Name must be process-wide unique; New fails with ErrDuplicateChannelName
	// otherwise.
	Name string
	// Source is the sequential source flow; must contain at least one
	// processor.
	Source []Processor
	// Destinations is the fan-out target(s) run after Source completes.
	Destinations Destinations
	// Failure configures failure persistence and replay. Optional.
	Failure *FailureConfig
}

// Channel is a constructed, registered pipeline. Build one with New.
type Channel struct {
	name         string
	source       []Processor
	destinations Destinations
	failure      *FailureConfig

	replayMu       sync.Mutex
	replayListener *listener.StoreListener
}

// New validates cfg, registers the channel under cfg.Name, and — if
// cfg.Failure.ReplayListener is set — wires and starts a replay listener
// over cfg.Failure.Store. The returned error is always a *ConfigError.
func New(cfg Config) (*Channel, error) {
	if cfg.Name == "" {
		return nil, newConfigError(cfg.Name, ErrMissingHandlerName)
	}
	if len(cfg.Source) == 0 {
		return nil, newConfigError(cfg.Name, ErrEmptySourceFlow)
	}
	for _, p := range cfg.Source {
		if p.name == "" {
			return nil, newConfigError(cfg.Name, ErrMissingHandlerName)
		}
	}
	if cfg.Destinations.empty() {
		return nil, newConfigError(cfg.Name, ErrEmptyDestinationFlow)
	}
	for _, d := range cfg.Destinations.static {
		if d.name == "" {
			return nil, newConfigError(cfg.Name, ErrMissingHandlerName)
		}
	}

	ch := &Channel{
		name:         cfg.Name,
		source:       cfg.Source,
		destinations: cfg.Destinations,
		failure:      cfg.Failure,
	}

	if err := register(ch); err != nil {
		return nil, newConfigError(cfg.Name, err)
	}

	if cfg.Failure != nil && cfg.Failure.ReplayListener != nil {
		ch.wireReplayListener(*cfg.Failure.ReplayListener)
	}

	return ch, nil
}

// Name returns the channel's registered name.
func (c *Channel) Name() string { return c.name }

// Execute runs the channel against fresh content: a newly-minted message ID
// and context are built, the source flow runs, then destinations fan out.
// skipDestinations seeds the context's skip set, so a caller resuming a
// partially-delivered logical message can pass the destinations already
// known to have succeeded. A non-nil error is always an *ExecutionError,
// never a bare error. Panics raised by processor or destination funcs are
// not recovered.
func (c *Channel) Execute(ctx context.Context, content message.Content, skipDestinations []string) (*ExecutionResult, error) {
	mctx := message.NewContext(message.NewID(), content, skipDestinations)
	return c.run(ctx, mctx, "execute", false, true)
}

// Replay re-runs a previously-failed Message. A successful replay is not
// re-persisted; a renewed failure is written to the failure store (if one
// is configured) as a new entry carrying the updated causes and skip state.
// The prior entry is neither replaced nor removed by Replay.
// Whether the source flow re-runs depends on which stage the original
// failure occurred at: a source-flow failure replays from the top, a
// destination failure resumes directly at the fan-out using the message's
// existing skip set.
func (c *Channel) Replay(ctx context.Context, msg *message.Message) (*ExecutionResult, error) {
	return c.replay(ctx, msg, true)
}

// replay is Replay with persist controlling whether a renewed failure is
// written to the failure store. The auto-wired replay service (see
// replay.go) calls this with persist=false for its bounded in-process
// retries, so no attempt grows the failure store with entries no poll cycle
// will ever need to pick up; not even the attempt that exhausts the
// service's retry budget persists, since the listener's own ack of the
// original entry decides what happens next.
func (c *Channel) replay(ctx context.Context, msg *message.Message, persist bool) (*ExecutionResult, error) {
	mctx := message.FromMessage(msg)
	mctx.CleanErrorInfoForReplay()
	skipSource := msg.Metadata[failureStageKey] == stageDestination
	return c.run(ctx, mctx, "replay", skipSource, persist)
}

func (c *Channel) run(ctx context.Context, mctx *message.Context, op string, skipSource, persist bool) (*ExecutionResult, error) {
	start := time.Now()
	result, execErr := c.execute(ctx, mctx, skipSource, persist)
	outcome := "success"
	if execErr != nil {
		outcome = "failure"
	}
	metrics.ObserveExecutionDuration(c.name, op, outcome, float64(time.Since(start).Milliseconds()))
	if op == "replay" {
		metrics.RecordReplay(c.name, outcome)
	}
	if execErr != nil {
		return nil, execErr
	}
	return result, nil
}

func (c *Channel) execute(ctx context.Context, mctx *message.Context, skipSource, persist bool) (*ExecutionResult, *ExecutionError) {
	if !skipSource {
		for _, p := range c.source {
			snapshot := mctx.Clone()
			shortCircuit, err := p.run(mctx)
			if err != nil {
				var rf *routingFailure
				if errors.As(err, &rf) {
					return nil, c.failRouting(ctx, snapshot, rf.name, rf.err, persist)
				}
				return nil, c.failProcessor(ctx, snapshot, p.name, err, persist)
			}
			if shortCircuit {
				logging.Op().Debug("channel: source flow short-circuited", "channel", c.name, "processor", p.name)
				return &ExecutionResult{Message: mctx.Export()}, nil
			}
		}
	}

	selected, matched, err := c.destinations.resolve(mctx)
	if err != nil {
		return nil, c.failRouting(ctx, mctx, "destinationRouter", err, persist)
	}
	if !matched {
		return &ExecutionResult{Message: mctx.Export()}, nil
	}

	return c.dispatch(ctx, mctx, selected, persist)
}

// dispatch runs every selected destination concurrently, skipping those
// already present in the context's skip set, and collects results.
// Destinations are independent: one failing never cancels its siblings.
func (c *Channel) dispatch(ctx context.Context, mctx *message.Context, selected []Destination, persist bool) (*ExecutionResult, *ExecutionError) {
	type outcome struct {
		name   string
		result interface{}
		err    error
		ran    bool
	}

	var mu sync.Mutex
	var g errgroup.Group
	outcomes := make([]outcome, 0, len(selected))

	for _, d := range selected {
		d := d
		if mctx.HasSkipDestination(d.name) {
			continue
		}
		g.Go(func() error {
			ran, result, err := d.run(mctx)
			mu.Lock()
			outcomes = append(outcomes, outcome{name: d.name, result: result, err: err, ran: ran})
			mu.Unlock()
			if err != nil {
				metrics.RecordDestination(c.name, d.name, "failure")
			} else if ran {
				metrics.RecordDestination(c.name, d.name, "success")
			} else {
				metrics.RecordDestination(c.name, d.name, "skipped")
			}
			return nil
		})
	}
	_ = g.Wait()

	results := map[string]interface{}{}
	causes := map[string]string{}
	for _, o := range outcomes {
		if !o.ran {
			continue // preprocessor short-circuit: not success, not failure
		}
		if o.err != nil {
			causes[o.name] = o.err.Error()
			continue
		}
		results[o.name] = o.result
		mctx.AddSkipDestination(o.name)
	}

	if len(causes) > 0 {
		return nil, c.failDestinations(ctx, mctx, causes, persist)
	}
	return &ExecutionResult{Message: mctx.Export(), DestinationResults: results}, nil
}

func (c *Channel) failProcessor(ctx context.Context, mctx *message.Context, name string, err error, persist bool) *ExecutionError {
	causes := map[string]string{name: err.Error()}
	msg := mctx.Export()
	msg.ErrorInfo = &message.ErrorInfo{Message: err.Error(), Causes: causes}
	stampFailureStage(msg, stageSource)
	if persist {
		c.persistFailure(ctx, msg)
	}
	return &ExecutionError{Kind: KindProcessorError, Channel: c.name, Message: msg, Causes: causes}
}

// failRouting handles a ProcessorRouter or DestinationRouter itself
// erroring, as distinct from an error from the processor/destination it
// routed to. Stamped stageSource since no destination ran.
func (c *Channel) failRouting(ctx context.Context, mctx *message.Context, name string, err error, persist bool) *ExecutionError {
	causes := map[string]string{name: err.Error()}
	msg := mctx.Export()
	msg.ErrorInfo = &message.ErrorInfo{Message: err.Error(), Causes: causes}
	stampFailureStage(msg, stageSource)
	if persist {
		c.persistFailure(ctx, msg)
	}
	return &ExecutionError{Kind: KindRoutingError, Channel: c.name, Message: msg, Causes: causes}
}

func (c *Channel) failDestinations(ctx context.Context, mctx *message.Context, causes map[string]string, persist bool) *ExecutionError {
	msg := mctx.Export()
	msg.ErrorInfo = &message.ErrorInfo{Causes: causes}
	msg.ErrorInfo.Message = (&ExecutionError{Kind: KindDestinationError, Channel: c.name, Causes: causes}).Error()
	stampFailureStage(msg, stageDestination)
	if persist {
		c.persistFailure(ctx, msg)
	}
	return &ExecutionError{Kind: KindDestinationError, Channel: c.name, Message: msg, Causes: causes}
}

// stampFailureStage records which stage produced a failure on msg's
// metadata, independent of whether the failure is persisted to a store:
// Replay (and the bounded in-process retries in replay.go, which never
// persist intermediate attempts) both need an up-to-date stage on every
// attempt so a failure that moves from the source stage to the destination
// stage across retries is reflected immediately, not only on the attempt
// that happens to persist.
func stampFailureStage(msg *message.Message, stage string) {
	if msg.Metadata == nil {
		msg.Metadata = map[string]interface{}{}
	}
	msg.Metadata[failureStageKey] = stage
}

func (c *Channel) persistFailure(ctx context.Context, msg *message.Message) {
	if c.failure == nil || c.failure.Store == nil {
		return
	}
	content, err := msg.ToContent()
	if err != nil {
		logging.Op().Error("channel: failed to encode failure message", "channel", c.name, "error", err)
		return
	}
	if err := c.failure.Store.Store(ctx, content); err != nil {
		logging.Op().Error("channel: failed to persist failure", "channel", c.name, "error", err)
	}
}
