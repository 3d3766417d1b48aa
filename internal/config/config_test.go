package config

import "testing"

func TestDatabaseNodeDSN(t *testing.T) {
	n := DatabaseNode{
		Host: "db", Port: "5432", User: "pixtools", Pass: "secret", Name: "pixtools", SSLMode: "disable",
	}

	want := "postgres://pixtools:secret@db:5432/pixtools?sslmode=disable"
	if got := n.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestMaxUploadBytesDefault(t *testing.T) {
	var s Server
	if got, want := s.MaxUploadBytes(), int64(10<<20); got != want {
		t.Errorf("MaxUploadBytes() = %d, want %d", got, want)
	}
}

func TestMaxUploadBytesConfigured(t *testing.T) {
	s := Server{MaxUploadMiB: 25}
	if got, want := s.MaxUploadBytes(), int64(25<<20); got != want {
		t.Errorf("MaxUploadBytes() = %d, want %d", got, want)
	}
}

func TestIdempotencyTTLDefault(t *testing.T) {
	var i Idempotency
	if got := i.TTL(); got.Seconds() != 86400 {
		t.Errorf("TTL() = %v, want 86400s", got)
	}
}
