package channel

import "github.com/oriys/fabric/message"

// ProcessorKind tags the concrete shape of a source-flow step. Modeled as a
// sealed variant: exactly one of the handler funcs on Processor is set,
// matching its Kind.
type ProcessorKind int

const (
	KindGenericProcessor ProcessorKind = iota
	KindFilter
	KindTransformer
	KindProcessorRouter
)

func (k ProcessorKind) String() string {
	switch k {
	case KindGenericProcessor:
		return "GenericProcessor"
	case KindFilter:
		return "Filter"
	case KindTransformer:
		return "Transformer"
	case KindProcessorRouter:
		return "ProcessorRouter"
	default:
		return "Unknown"
	}
}

// GenericFunc performs a side effect only.
type GenericFunc func(ctx *message.Context) error

// FilterFunc returns false to short-circuit the pipeline with the current
// message as the result; no destinations run.
type FilterFunc func(ctx *message.Context) (bool, error)

// TransformFunc replaces the context's content.
type TransformFunc func(ctx *message.Context) (message.Content, error)

// ProcessorRouterFunc selects a processor to run in place of the router
// itself. matched=false short-circuits like a filter returning false.
type ProcessorRouterFunc func(ctx *message.Context) (next Processor, matched bool, err error)

// Processor is one step of a channel's source flow. Every processor has a
// required, unique, human-readable Name used in errors, metrics and logs.
type Processor struct {
	name string
	kind ProcessorKind

	generic   GenericFunc
	filter    FilterFunc
	transform TransformFunc
	router    ProcessorRouterFunc
}

// NewGenericProcessor builds a side-effect-only processor.
func NewGenericProcessor(name string, fn GenericFunc) Processor {
	return Processor{name: name, kind: KindGenericProcessor, generic: fn}
}

// NewFilter builds a processor that may short-circuit the pipeline.
func NewFilter(name string, fn FilterFunc) Processor {
	return Processor{name: name, kind: KindFilter, filter: fn}
}

// NewTransformer builds a processor that replaces the context's content.
func NewTransformer(name string, fn TransformFunc) Processor {
	return Processor{name: name, kind: KindTransformer, transform: fn}
}

// NewProcessorRouter builds a processor that dispatches to another
// processor chosen at run time.
func NewProcessorRouter(name string, fn ProcessorRouterFunc) Processor {
	return Processor{name: name, kind: KindProcessorRouter, router: fn}
}

// Name returns the processor's registered name.
func (p Processor) Name() string { return p.name }

// Kind returns the processor's variant tag.
func (p Processor) Kind() ProcessorKind { return p.kind }

// run executes the processor against ctx, returning shortCircuit=true when
// a Filter returned false or a ProcessorRouter returned matched=false. A
// ProcessorRouter's selected processor is executed in place, recursively.
func (p Processor) run(ctx *message.Context) (shortCircuit bool, err error) {
	switch p.kind {
	case KindGenericProcessor:
		return false, p.generic(ctx)

	case KindFilter:
		ok, err := p.filter(ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil

	case KindTransformer:
		next, err := p.transform(ctx)
		if err != nil {
			return false, err
		}
		ctx.SetContent(next)
		return false, nil

	case KindProcessorRouter:
		next, matched, err := p.router(ctx)
		if err != nil {
			return false, &routingFailure{name: p.name, err: err}
		}
		if !matched {
			return true, nil
		}
		return next.run(ctx)

	default:
		return false, nil
	}
}
