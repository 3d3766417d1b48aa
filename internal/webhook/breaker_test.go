package webhook

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	var transitions []State
	b := NewBreaker(3, time.Minute, func(host string, from, to State) {
		transitions = append(transitions, to)
	})

	host := "hooks.example.com"
	for i := 0; i < 2; i++ {
		if !b.Allow(host) {
			t.Fatalf("attempt %d: expected Allow before threshold", i)
		}
		b.RecordFailure(host)
	}
	if b.State(host) != StateClosed {
		t.Fatalf("state = %v, want closed before threshold", b.State(host))
	}

	b.RecordFailure(host)
	if b.State(host) != StateOpen {
		t.Fatalf("state = %v, want open after threshold", b.State(host))
	}
	if b.Allow(host) {
		t.Error("Allow() = true, want false while open and before reset timeout")
	}
	if len(transitions) != 1 || transitions[0] != StateOpen {
		t.Errorf("transitions = %v, want [open]", transitions)
	}
}

func TestBreakerHalfOpenProbeSuccessCloses(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond, nil)
	host := "hooks.example.com"

	b.RecordFailure(host)
	if b.State(host) != StateOpen {
		t.Fatalf("state = %v, want open", b.State(host))
	}

	time.Sleep(20 * time.Millisecond)
	if !b.Allow(host) {
		t.Fatal("Allow() = false, want true after reset timeout")
	}
	if b.State(host) != StateHalfOpen {
		t.Fatalf("state = %v, want half_open", b.State(host))
	}

	b.RecordSuccess(host)
	if b.State(host) != StateClosed {
		t.Fatalf("state = %v, want closed after successful probe", b.State(host))
	}
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond, nil)
	host := "hooks.example.com"

	b.RecordFailure(host)
	time.Sleep(20 * time.Millisecond)
	b.Allow(host) // transitions to half-open

	b.RecordFailure(host)
	if b.State(host) != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", b.State(host))
	}
}

func TestBreakerIndependentPerHost(t *testing.T) {
	b := NewBreaker(1, time.Minute, nil)
	b.RecordFailure("a.example.com")

	if b.State("a.example.com") != StateOpen {
		t.Error("host a should be open")
	}
	if b.State("b.example.com") != StateClosed {
		t.Error("host b should be unaffected")
	}
}
