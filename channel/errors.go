package channel

import (
	"errors"
	"fmt"
	"sort"

	"github.com/oriys/fabric/message"
)

// Sentinel errors returned (possibly wrapped) from channel construction and
// execution. Use errors.Is to test for them.
var (
	ErrEmptySourceFlow      = errors.New("channel: source flow must have at least one processor")
	ErrEmptyDestinationFlow = errors.New("channel: destinations flow must select at least one destination")
	ErrDuplicateChannelName = errors.New("channel: a channel with this name is already registered")
	ErrMissingHandlerName   = errors.New("channel: processor and destination names must not be empty")
	ErrChannelNotFound      = errors.New("channel: no channel registered under this name")
)

// ConfigError wraps a construction-time failure (New, validation).
type ConfigError struct {
	Channel string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("channel %q: config: %v", e.Channel, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func newConfigError(channel string, err error) *ConfigError {
	return &ConfigError{Channel: channel, Err: err}
}

// ErrorKind distinguishes why a channel run did not produce a result.
type ErrorKind string

const (
	// KindProcessorError means a source-flow processor returned an error.
	KindProcessorError ErrorKind = "processor"
	// KindDestinationError means one or more destinations failed.
	KindDestinationError ErrorKind = "destination"
	// KindRoutingError means a ProcessorRouter or DestinationRouter itself
	// errored (as opposed to running the processor/destination it chose).
	// Treated identically to KindProcessorError for failure-store purposes.
	KindRoutingError ErrorKind = "routing"
)

// ExecutionError is the error half of a channel run's ExecutionResult |
// ExecutionError outcome. Message reflects the state of the run at the
// point of failure, with ErrorInfo populated from Causes; it is what gets
// persisted to the failure store and handed to Replay.
type ExecutionError struct {
	Kind    ErrorKind
	Channel string
	Message *message.Message
	Causes  map[string]string
}

func (e *ExecutionError) Error() string {
	names := make([]string, 0, len(e.Causes))
	for name := range e.Causes {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("channel %q: %s: %s", e.Channel, e.Kind, message.JoinErrors(e.Causes, names))
}

// routingFailure wraps an error returned by a ProcessorRouterFunc itself
// (as opposed to an error from the processor it routed to), so the source
// flow loop can tell the two apart and classify the former as
// KindRoutingError instead of KindProcessorError.
type routingFailure struct {
	name string
	err  error
}

func (r *routingFailure) Error() string { return r.err.Error() }
func (r *routingFailure) Unwrap() error { return r.err }
