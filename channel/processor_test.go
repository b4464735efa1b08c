package channel

import (
	"errors"
	"testing"

	"github.com/oriys/fabric/message"
)

func TestProcessorRouterRunsSelectedProcessorInPlace(t *testing.T) {
	upper := NewTransformer("upper", func(ctx *message.Context) (message.Content, error) {
		s, _ := ctx.Content().String()
		return message.String(s + "-upper"), nil
	})
	router := NewProcessorRouter("route", func(ctx *message.Context) (Processor, bool, error) {
		return upper, true, nil
	})

	ctx := message.NewContext("id", message.String("x"), nil)
	shortCircuit, err := router.run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if shortCircuit {
		t.Fatal("expected no short-circuit")
	}
	s, _ := ctx.Content().String()
	if s != "x-upper" {
		t.Fatalf("content = %q, want x-upper", s)
	}
}

func TestProcessorRouterUnmatchedShortCircuits(t *testing.T) {
	router := NewProcessorRouter("route", func(ctx *message.Context) (Processor, bool, error) {
		return Processor{}, false, nil
	})
	ctx := message.NewContext("id", message.String("x"), nil)
	shortCircuit, err := router.run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !shortCircuit {
		t.Fatal("expected short-circuit on unmatched router")
	}
}

func TestProcessorRouterPropagatesError(t *testing.T) {
	inner := errors.New("routing blew up")
	router := NewProcessorRouter("route", func(ctx *message.Context) (Processor, bool, error) {
		return Processor{}, false, inner
	})
	ctx := message.NewContext("id", message.String("x"), nil)
	_, err := router.run(ctx)
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	var rf *routingFailure
	if !errors.As(err, &rf) {
		t.Fatalf("expected *routingFailure, got %T", err)
	}
	if rf.name != "route" {
		t.Fatalf("routingFailure.name = %q, want %q", rf.name, "route")
	}
	if !errors.Is(err, inner) {
		t.Fatal("expected routingFailure to unwrap to the original error")
	}
}

func TestFilterShortCircuitsOnFalse(t *testing.T) {
	f := NewFilter("gate", func(*message.Context) (bool, error) { return false, nil })
	ctx := message.NewContext("id", message.String("x"), nil)
	shortCircuit, err := f.run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !shortCircuit {
		t.Fatal("expected short-circuit")
	}
}

func TestGenericProcessorRunsSideEffect(t *testing.T) {
	var ran bool
	p := NewGenericProcessor("side-effect", func(*message.Context) error {
		ran = true
		return nil
	})
	ctx := message.NewContext("id", message.String("x"), nil)
	shortCircuit, err := p.run(ctx)
	if err != nil || shortCircuit {
		t.Fatalf("run returned (%v, %v)", shortCircuit, err)
	}
	if !ran {
		t.Fatal("generic processor did not run")
	}
}
