package labels

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/document-classifier/internal/core/domain"
	"github.com/kirillkom/document-classifier/internal/core/ports"
	"github.com/kirillkom/document-classifier/internal/infrastructure/resilience"
)

type completerFake struct {
	responses []string
	errs      []error
	requests  []ports.ChatRequest
}

func (f *completerFake) Complete(_ context.Context, req ports.ChatRequest) (string, error) {
	idx := len(f.requests)
	f.requests = append(f.requests, req)
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	if err != nil {
		return "", err
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return "", errors.New("no scripted response")
}

func newTestGenerator(completer ports.ChatCompleter, opts Options) *Generator {
	exec := resilience.NewExecutor(resilience.GenerationPolicy(resilience.Config{BreakerEnabled: false}))
	return NewGenerator(completer, exec, opts)
}

func TestGenerateReturnsParsedLabels(t *testing.T) {
	completer := &completerFake{responses: []string{`["financial report","earnings summary","quarterly filing"]`}}
	gen := newTestGenerator(completer, Options{MaxTokens: 128, Temperature: 0.3})

	set := gen.Generate(context.Background(), "Q3 revenue grew 12%")
	if set.Outcome.Kind != domain.OutcomeSuccess || set.Outcome.Attempts != 1 {
		t.Fatalf("unexpected outcome %+v", set.Outcome)
	}
	want := []string{"financial report", "earnings summary", "quarterly filing"}
	if !reflect.DeepEqual(set.Labels, want) {
		t.Fatalf("expected %v, got %v", want, set.Labels)
	}

	req := completer.requests[0]
	if req.MaxTokens != 128 || req.Temperature != 0.3 {
		t.Fatalf("unexpected sampling params %+v", req)
	}
	if !strings.Contains(req.System, "JSON array") || !strings.Contains(req.User, "Q3 revenue grew 12%") {
		t.Fatalf("unexpected prompts: %+v", req)
	}
}

func TestGenerateRetriesOnceAfterMalformedOutput(t *testing.T) {
	completer := &completerFake{responses: []string{"Sorry, I can't do that.", `["invoice","receipt","bill"]`}}
	gen := newTestGenerator(completer, Options{})

	set := gen.Generate(context.Background(), "text")
	if set.Outcome.IsFallback() {
		t.Fatalf("expected real labels after retry, got fallback %+v", set.Outcome)
	}
	if set.Outcome.Attempts != 2 || len(completer.requests) != 2 {
		t.Fatalf("expected two calls, got %d", len(completer.requests))
	}
	if completer.requests[0] != completer.requests[1] {
		t.Fatalf("retry must repeat the identical call")
	}
}

func TestGenerateFallsBackAfterSecondFailure(t *testing.T) {
	netErr := domain.WrapError(domain.ErrTemporary, "chat", errors.New("connection reset"))
	completer := &completerFake{errs: []error{netErr, netErr}}
	gen := newTestGenerator(completer, Options{})

	set := gen.Generate(context.Background(), "text")
	if !set.Outcome.IsFallback() {
		t.Fatalf("expected fallback outcome, got %+v", set.Outcome)
	}
	if !reflect.DeepEqual(set.Labels, domain.DefaultLabels) {
		t.Fatalf("expected default labels, got %v", set.Labels)
	}
	if len(completer.requests) != 2 {
		t.Fatalf("expected exactly 2 calls, got %d", len(completer.requests))
	}
}

func TestGenerateCapsEmbeddedText(t *testing.T) {
	completer := &completerFake{responses: []string{`["a","b","c"]`}}
	gen := newTestGenerator(completer, Options{MaxChars: 10})

	gen.Generate(context.Background(), strings.Repeat("x", 10)+strings.Repeat("y", 20))
	user := completer.requests[0].User
	if strings.Contains(user, "y") || !strings.Contains(user, strings.Repeat("x", 10)) {
		t.Fatalf("expected text capped to 10 runes, got %q", user)
	}
}

func TestGenerateDoesNotRetryWhenCallerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	completer := &completerFake{}
	gen := newTestGenerator(ports.ChatCompleter(completerFunc(func(context.Context, ports.ChatRequest) (string, error) {
		cancel()
		completer.requests = append(completer.requests, ports.ChatRequest{})
		return "", context.Canceled
	})), Options{})

	set := gen.Generate(ctx, "text")
	if !set.Outcome.IsFallback() {
		t.Fatalf("expected fallback after cancellation")
	}
	if len(completer.requests) != 1 {
		t.Fatalf("expected 1 call after cancellation, got %d", len(completer.requests))
	}
}

func TestGenerateBreakerOpensAfterEarlierCancelledRequest(t *testing.T) {
	var states []gobreaker.State
	exec := resilience.NewExecutor(resilience.GenerationPolicy(resilience.Config{
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	}), resilience.WithStateObserver(func(_ string, state gobreaker.State) {
		states = append(states, state)
	}))

	calls := 0
	gen := NewGenerator(completerFunc(func(context.Context, ports.ChatRequest) (string, error) {
		calls++
		return "", domain.WrapError(domain.ErrTemporary, "chat", errors.New("service unavailable"))
	}), exec, Options{})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if set := gen.Generate(cancelled, "text"); !set.Outcome.IsFallback() {
		t.Fatalf("expected fallback for cancelled request, got %+v", set.Outcome)
	}

	for i := 0; i < 10; i++ {
		if set := gen.Generate(context.Background(), "text"); !set.Outcome.IsFallback() {
			t.Fatalf("expected fallback on iteration %d, got %+v", i, set.Outcome)
		}
	}

	if len(states) != 2 || states[0] != gobreaker.StateClosed || states[1] != gobreaker.StateOpen {
		t.Fatalf("expected breaker to open, observed states %v", states)
	}
	if calls != 2 {
		t.Fatalf("expected open breaker to short-circuit after one retried request, got %d calls", calls)
	}
}

type completerFunc func(context.Context, ports.ChatRequest) (string, error)

func (f completerFunc) Complete(ctx context.Context, req ports.ChatRequest) (string, error) {
	return f(ctx, req)
}
