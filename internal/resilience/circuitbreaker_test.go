package resilience_test

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxdesk/internal/resilience"
)

var errTest = errors.New("test error")

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fail() error { return errTest }
func ok() error   { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "whisper", MaxFailures: 3})
	if cb.State() != resilience.StateClosed {
		t.Fatalf("initial state = %v", cb.State())
	}

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	_ = cb.Execute(ok)
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	if cb.State() != resilience.StateClosed {
		t.Fatalf("a success must reset the failure count, state = %v", cb.State())
	}

	if err := cb.Execute(fail); !errors.Is(err, errTest) {
		t.Fatalf("Execute returned %v, want the call's error", err)
	}
	if cb.State() != resilience.StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, resilience.ErrCircuitOpen) || called {
		t.Errorf("open breaker: err = %v, called = %v", err, called)
	}
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		probes []func() error
		want   resilience.State
	}{
		{"successful probes close", []func() error{ok, ok}, resilience.StateClosed},
		{"failed probe re-opens", []func() error{ok, fail}, resilience.StateOpen},
		{"single probe in flight stays half-open", []func() error{ok}, resilience.StateHalfOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clock := newClock()
			cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
				MaxFailures:  1,
				ResetTimeout: time.Minute,
				HalfOpenMax:  2,
				Now:          clock.Now,
			})
			_ = cb.Execute(fail)

			clock.Advance(59 * time.Second)
			if err := cb.Execute(ok); !errors.Is(err, resilience.ErrCircuitOpen) {
				t.Fatalf("before cool-down: err = %v", err)
			}
			clock.Advance(time.Second)
			if cb.State() != resilience.StateHalfOpen {
				t.Fatalf("after cool-down: state = %v", cb.State())
			}

			for _, p := range tt.probes {
				_ = cb.Execute(p)
			}
			if cb.State() != tt.want {
				t.Errorf("state = %v, want %v", cb.State(), tt.want)
			}
		})
	}
}

func TestCircuitBreaker_ProbeBudget(t *testing.T) {
	t.Parallel()

	clock := newClock()
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Second, Now: clock.Now})
	_ = cb.Execute(fail)
	clock.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := cb.Execute(ok); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("second probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe err = %v", err)
	}
	if cb.State() != resilience.StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_StateChangesAndReset(t *testing.T) {
	t.Parallel()

	clock := newClock()
	var (
		mu   sync.Mutex
		seen []string
	)
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "melo",
		MaxFailures:  1,
		ResetTimeout: time.Second,
		Now:          clock.Now,
		OnStateChange: func(name string, from, to resilience.State) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, name+":"+from.String()+">"+to.String())
		},
	})

	_ = cb.Execute(fail)
	clock.Advance(time.Second)
	_ = cb.Execute(fail)
	cb.Reset()
	cb.Reset()

	want := []string{
		"melo:closed>open",
		"melo:open>half-open",
		"melo:half-open>open",
		"melo:open>closed",
	}
	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(seen, want) {
		t.Errorf("transitions = %v, want %v", seen, want)
	}
	if cb.Name() != "melo" {
		t.Errorf("Name = %q", cb.Name())
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		s    resilience.State
		want string
	}{
		{resilience.StateClosed, "closed"},
		{resilience.StateOpen, "open"},
		{resilience.StateHalfOpen, "half-open"},
		{resilience.State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
