package channel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/oriys/fabric/message"
	"github.com/oriys/fabric/store"
)

func freshName(t *testing.T, base string) string {
	t.Helper()
	ResetRegistry()
	return base
}

// S1 — happy path: source transforms content, a single destination delivers it.
func TestExecuteHappyPath(t *testing.T) {
	name := freshName(t, "s1")

	upper := NewTransformer("upper", func(ctx *message.Context) (message.Content, error) {
		s, _ := ctx.Content().String()
		return message.String(s + "!"), nil
	})

	var delivered string
	dest := NewDestination("sink", func(ctx *message.Context) (interface{}, error) {
		s, _ := ctx.Content().String()
		delivered = s
		return "ok", nil
	})

	ch, err := New(Config{
		Name:         name,
		Source:       []Processor{upper},
		Destinations: OneDestination(dest),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := ch.Execute(context.Background(), message.String("hi"), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if delivered != "hi!" {
		t.Fatalf("delivered = %q, want %q", delivered, "hi!")
	}
	if result.DestinationResults["sink"] != "ok" {
		t.Fatalf("destination result = %v, want ok", result.DestinationResults["sink"])
	}
}

// S2 — partial destination failure then replay converges, skipping the
// destination that already succeeded.
func TestPartialFailureThenReplayConverges(t *testing.T) {
	name := freshName(t, "s2")

	var mu sync.Mutex
	calls := map[string]int{}
	failB := true

	a := NewDestination("a", func(ctx *message.Context) (interface{}, error) {
		mu.Lock()
		calls["a"]++
		mu.Unlock()
		return "a-ok", nil
	})
	b := NewDestination("b", func(ctx *message.Context) (interface{}, error) {
		mu.Lock()
		calls["b"]++
		bFail := failB
		mu.Unlock()
		if bFail {
			return nil, errors.New("b down")
		}
		return "b-ok", nil
	})

	failureStore := store.NewInMemory(store.FIFO)
	ch, err := New(Config{
		Name:         name,
		Source:       []Processor{NewGenericProcessor("noop", func(*message.Context) error { return nil })},
		Destinations: DestinationList(a, b),
		Failure:      &FailureConfig{Store: failureStore},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, execErr := ch.Execute(context.Background(), message.String("payload"), nil)
	if execErr == nil {
		t.Fatalf("expected first execute to fail")
	}
	var ee *ExecutionError
	if !errors.As(execErr, &ee) {
		t.Fatalf("expected *ExecutionError, got %T", execErr)
	}
	if ee.Kind != KindDestinationError {
		t.Fatalf("kind = %v, want destination", ee.Kind)
	}
	if calls["a"] != 1 || calls["b"] != 1 {
		t.Fatalf("calls = %+v, want a=1 b=1", calls)
	}

	failB = false
	result, err := ch.Replay(context.Background(), ee.Message)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if calls["a"] != 1 {
		t.Fatalf("a invoked again on replay: calls=%+v, want a to stay at 1 (skipped via skip set)", calls)
	}
	if calls["b"] != 2 {
		t.Fatalf("b calls = %d, want 2", calls["b"])
	}
	if result.DestinationResults["b"] != "b-ok" {
		t.Fatalf("replay result[b] = %v, want b-ok", result.DestinationResults["b"])
	}
}

// A ProcessorRouter's own error is classified as KindRoutingError, distinct
// from a plain processor's KindProcessorError.
func TestProcessorRouterOwnErrorIsRoutingKind(t *testing.T) {
	name := freshName(t, "router-err")

	router := NewProcessorRouter("router", func(*message.Context) (Processor, bool, error) {
		return Processor{}, false, errors.New("router exploded")
	})
	dest := NewDestination("sink", func(*message.Context) (interface{}, error) { return "ok", nil })

	ch, err := New(Config{Name: name, Source: []Processor{router}, Destinations: OneDestination(dest)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, execErr := ch.Execute(context.Background(), message.String("x"), nil)
	if execErr == nil {
		t.Fatal("expected execute to fail")
	}
	var ee *ExecutionError
	if !errors.As(execErr, &ee) {
		t.Fatalf("expected *ExecutionError, got %T", execErr)
	}
	if ee.Kind != KindRoutingError {
		t.Fatalf("kind = %v, want routing", ee.Kind)
	}
	if _, ok := ee.Causes["router"]; !ok {
		t.Fatalf("causes = %+v, want a \"router\" entry", ee.Causes)
	}
}

// S6 — duplicate channel name fails with ConfigError wrapping
// ErrDuplicateChannelName.
func TestDuplicateChannelNameFails(t *testing.T) {
	name := freshName(t, "s6")
	proc := NewGenericProcessor("noop", func(*message.Context) error { return nil })
	dest := NewDestination("sink", func(*message.Context) (interface{}, error) { return nil, nil })

	if _, err := New(Config{Name: name, Source: []Processor{proc}, Destinations: OneDestination(dest)}); err != nil {
		t.Fatalf("first New: %v", err)
	}
	_, err := New(Config{Name: name, Source: []Processor{proc}, Destinations: OneDestination(dest)})
	if err == nil {
		t.Fatal("expected duplicate name to fail")
	}
	if !errors.Is(err, ErrDuplicateChannelName) {
		t.Fatalf("err = %v, want ErrDuplicateChannelName", err)
	}
}

func TestEmptySourceFlowRejected(t *testing.T) {
	name := freshName(t, "empty-source")
	dest := NewDestination("sink", func(*message.Context) (interface{}, error) { return nil, nil })
	_, err := New(Config{Name: name, Destinations: OneDestination(dest)})
	if !errors.Is(err, ErrEmptySourceFlow) {
		t.Fatalf("err = %v, want ErrEmptySourceFlow", err)
	}
}

func TestEmptyDestinationsRejected(t *testing.T) {
	name := freshName(t, "empty-dest")
	proc := NewGenericProcessor("noop", func(*message.Context) error { return nil })
	_, err := New(Config{Name: name, Source: []Processor{proc}})
	if !errors.Is(err, ErrEmptyDestinationFlow) {
		t.Fatalf("err = %v, want ErrEmptyDestinationFlow", err)
	}
}

// Filter short-circuit: no destination runs, no failure recorded.
func TestFilterShortCircuitSkipsDestinations(t *testing.T) {
	name := freshName(t, "filter")
	drop := NewFilter("drop-all", func(*message.Context) (bool, error) { return false, nil })

	invoked := false
	dest := NewDestination("sink", func(*message.Context) (interface{}, error) {
		invoked = true
		return nil, nil
	})

	ch, err := New(Config{Name: name, Source: []Processor{drop}, Destinations: OneDestination(dest)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := ch.Execute(context.Background(), message.String("x"), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if invoked {
		t.Fatal("destination invoked despite filter short-circuit")
	}
	if len(result.DestinationResults) != 0 {
		t.Fatalf("expected no destination results, got %v", result.DestinationResults)
	}
}

// Destination-preprocessor short-circuit: neither success nor failure, and
// not added to the skip set, so a later run/replay retries it.
func TestDestinationPreprocessorShortCircuitIsRetried(t *testing.T) {
	name := freshName(t, "dest-preproc")

	var calls int
	allow := false
	gate := NewFilter("gate", func(*message.Context) (bool, error) { return allow, nil })
	dest := NewDestination("sink", func(*message.Context) (interface{}, error) {
		calls++
		return "ok", nil
	}, gate)

	ch, err := New(Config{Name: name, Source: []Processor{NewGenericProcessor("noop", func(*message.Context) error { return nil })}, Destinations: OneDestination(dest)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := ch.Execute(context.Background(), message.String("x"), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 0 {
		t.Fatalf("destination delivered despite gated preprocessor: calls=%d", calls)
	}
	if len(result.DestinationResults) != 0 {
		t.Fatalf("expected empty results, got %v", result.DestinationResults)
	}

	allow = true
	result, err = ch.Execute(context.Background(), message.String("x"), nil)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if result.DestinationResults["sink"] != "ok" {
		t.Fatalf("result = %v, want ok", result.DestinationResults["sink"])
	}
}
