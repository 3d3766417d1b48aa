package scheduler

import (
	"testing"
	"time"
)

func TestNewDefaultsCadence(t *testing.T) {
	s := New(nil, nil, nil, 0, 72*time.Hour)
	if s.cadence != time.Hour {
		t.Errorf("cadence = %v, want 1h default", s.cadence)
	}
}

func TestCutoffComputation(t *testing.T) {
	fixed := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	s := New(nil, nil, nil, time.Hour, 72*time.Hour)
	s.now = func() time.Time { return fixed }

	cutoff := s.now().Add(-s.retentionPeriod)
	want := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	if !cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", cutoff, want)
	}
}
