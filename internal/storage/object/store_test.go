package object

import "testing"

func TestKeyLayout(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"raw", RawKey("job1", "photo.png"), "raw/job1/photo.png"},
		{"processed", ProcessedKey("job1", "webp", "webp"), "processed/job1/webp.webp"},
		{"archive", ArchiveKey("job1"), "archives/job1.zip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestErrorRetryable(t *testing.T) {
	tests := []struct {
		kind ErrKind
		want bool
	}{
		{KindTransient, true},
		{KindNotFound, false},
		{KindPermanent, false},
		{KindUnknown, false},
	}

	for _, tt := range tests {
		e := &Error{Kind: tt.kind}
		if got := e.Retryable(); got != tt.want {
			t.Errorf("Retryable() for kind %v = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
