// Package webhook implements webhook delivery and a per-host circuit
// breaker that trips after repeated delivery failures to the same host.
package webhook

import (
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// TransitionFunc is invoked whenever a host's breaker changes state, so
// callers can log or alert on trips without polling State.
type TransitionFunc func(host string, from, to State)

// Breaker is a per-host, per-process circuit breaker. It holds no
// cross-process state — each worker process tracks host health
// independently.
type Breaker struct {
	mu             sync.Mutex
	hosts          map[string]*hostState
	failThreshold  int
	resetTimeout   time.Duration
	onTransition   TransitionFunc
	now            func() time.Time
}

type hostState struct {
	state           State
	consecutiveFail int
	openedAt        time.Time
}

// NewBreaker creates a Breaker with the given failure threshold and reset
// timeout (defaults: 5 failures, 60s).
func NewBreaker(failThreshold int, resetTimeout time.Duration, onTransition TransitionFunc) *Breaker {
	if failThreshold <= 0 {
		failThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 60 * time.Second
	}
	if onTransition == nil {
		onTransition = func(string, State, State) {}
	}
	return &Breaker{
		hosts:         make(map[string]*hostState),
		failThreshold: failThreshold,
		resetTimeout:  resetTimeout,
		onTransition:  onTransition,
		now:           time.Now,
	}
}

// Allow reports whether a delivery attempt to host should proceed, moving
// an Open breaker into Half-Open once the reset timeout has elapsed.
func (b *Breaker) Allow(host string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs := b.stateFor(host)
	switch hs.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(hs.openedAt) >= b.resetTimeout {
			b.transition(host, hs, StateHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker (from Closed, it just resets the
// counter; from Half-Open, the probe succeeded).
func (b *Breaker) RecordSuccess(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs := b.stateFor(host)
	hs.consecutiveFail = 0
	if hs.state != StateClosed {
		b.transition(host, hs, StateClosed)
	}
}

// RecordFailure increments the host's failure count and opens the breaker
// once the threshold is reached (or immediately, if the failing attempt
// was the Half-Open probe).
func (b *Breaker) RecordFailure(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs := b.stateFor(host)
	if hs.state == StateHalfOpen {
		hs.openedAt = b.now()
		b.transition(host, hs, StateOpen)
		return
	}

	hs.consecutiveFail++
	if hs.consecutiveFail >= b.failThreshold {
		hs.openedAt = b.now()
		b.transition(host, hs, StateOpen)
	}
}

// State reports host's current breaker state, for tests and diagnostics.
func (b *Breaker) State(host string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateFor(host).state
}

func (b *Breaker) stateFor(host string) *hostState {
	hs, ok := b.hosts[host]
	if !ok {
		hs = &hostState{state: StateClosed}
		b.hosts[host] = hs
	}
	return hs
}

func (b *Breaker) transition(host string, hs *hostState, to State) {
	from := hs.state
	hs.state = to
	if to == StateClosed {
		hs.consecutiveFail = 0
	}
	if from != to {
		b.onTransition(host, from, to)
	}
}
