package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m0rik/panenap/internal/config"
)

type scriptedRunner struct {
	calls   int
	outputs []string
	errs    []error
}

func (s *scriptedRunner) Run(_ context.Context, _ string, _ ...string) ([]byte, error) {
	i := s.calls
	s.calls++
	if i >= len(s.outputs) {
		i = len(s.outputs) - 1
	}
	return []byte(s.outputs[i]), s.errs[i]
}

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.CommandTimeout = time.Second
	cfg.RetryBackoff = []time.Duration{time.Millisecond}
	return cfg
}

func TestExecutorReturnsFirstSuccess(t *testing.T) {
	fake := &scriptedRunner{outputs: []string{"hello"}, errs: []error{nil}}
	e := NewExecutorWithRunner(testConfig(), fake)

	res, err := e.Run(context.Background(), "ps")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != "hello" {
		t.Fatalf("expected output passthrough, got %q", res.Output)
	}
	if fake.calls != 1 {
		t.Fatalf("expected single attempt, got %d", fake.calls)
	}
}

func TestExecutorRetriesThenSucceeds(t *testing.T) {
	fake := &scriptedRunner{
		outputs: []string{"", "ok"},
		errs:    []error{errors.New("boom"), nil},
	}
	e := NewExecutorWithRunner(testConfig(), fake)

	res, err := e.Run(context.Background(), "ps")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != "ok" || fake.calls != 2 {
		t.Fatalf("expected success on retry, got %q after %d calls", res.Output, fake.calls)
	}
}

func TestExecutorExhaustsRetries(t *testing.T) {
	failure := errors.New("boom")
	fake := &scriptedRunner{outputs: []string{""}, errs: []error{failure}}
	e := NewExecutorWithRunner(testConfig(), fake)

	_, err := e.Run(context.Background(), "ps")
	if !errors.Is(err, failure) {
		t.Fatalf("expected wrapped last error, got %v", err)
	}
	if fake.calls != 2 {
		t.Fatalf("expected 1 attempt + 1 retry, got %d", fake.calls)
	}
}

func TestExecutorStopsWhenContextCancelled(t *testing.T) {
	fake := &scriptedRunner{outputs: []string{""}, errs: []error{errors.New("boom")}}
	e := NewExecutorWithRunner(testConfig(), fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, "ps")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
