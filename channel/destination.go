package channel

import "github.com/oriys/fabric/message"

// DestinationFunc delivers a message's content to an external system. The
// returned value (HTTP status, row count, broker confirmation, whatever the
// destination wants to surface) is recorded in ExecutionResult under the
// destination's name.
type DestinationFunc func(ctx *message.Context) (interface{}, error)

// DestinationRouterFunc selects the set of destinations to run for the
// current message. matched=false is a successful no-op: the run completes
// with an empty DestinationResults.
type DestinationRouterFunc func(ctx *message.Context) (selected []Destination, matched bool, err error)

// Destination is one fan-out target of a channel's destinations flow: an
// optional sequence of preprocessors run against a clone of the context,
// followed by the delivery func.
type Destination struct {
	name          string
	preprocessors []Processor
	deliver       DestinationFunc
}

// NewDestination builds a destination. preprocessors run in order against a
// private clone of the message context before deliver is invoked; a filter
// or router among them short-circuiting skips this destination entirely —
// it is neither a success nor a failure, and is not recorded as skippable,
// so a later Replay will attempt it again.
func NewDestination(name string, deliver DestinationFunc, preprocessors ...Processor) Destination {
	return Destination{name: name, deliver: deliver, preprocessors: preprocessors}
}

// Name returns the destination's registered name.
func (d Destination) Name() string { return d.name }

// run executes the destination's preprocessors then its delivery func
// against a private context clone. ran=false means a preprocessor
// short-circuited and deliver was never invoked.
func (d Destination) run(ctx *message.Context) (ran bool, result interface{}, err error) {
	local := ctx.Clone()
	for _, p := range d.preprocessors {
		shortCircuit, err := p.run(local)
		if err != nil {
			return true, nil, err
		}
		if shortCircuit {
			return false, nil, nil
		}
	}
	result, err = d.deliver(local)
	return true, result, err
}

// Destinations is a channel's destinations flow: either a fixed list (one
// destination, or a sequence of preprocessor+destination pairs) or a
// DestinationRouter resolved at run time. Exactly one of the two shapes is
// active, matching the sealed-variant style used by Processor.
type Destinations struct {
	static []Destination
	router DestinationRouterFunc
}

// OneDestination builds a single-destination flow.
func OneDestination(d Destination) Destinations {
	return Destinations{static: []Destination{d}}
}

// DestinationList builds a fixed multi-destination flow; every destination
// runs on every message (subject to skipDestinations and preprocessors).
func DestinationList(ds ...Destination) Destinations {
	return Destinations{static: ds}
}

// RoutedDestinations builds a dynamically-resolved destinations flow.
func RoutedDestinations(fn DestinationRouterFunc) Destinations {
	return Destinations{router: fn}
}

// resolve returns the destinations to run for ctx. matched=false for a
// router that selected nothing; the static shape always matches.
func (d Destinations) resolve(ctx *message.Context) (selected []Destination, matched bool, err error) {
	if d.router != nil {
		return d.router(ctx)
	}
	return d.static, true, nil
}

// empty reports whether the flow has no configured destinations at all
// (neither a static list nor a router) — a construction-time error.
func (d Destinations) empty() bool {
	return d.router == nil && len(d.static) == 0
}
