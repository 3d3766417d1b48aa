package worker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pixtools/pixtools/internal/storage/object"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transient object error", &object.Error{Kind: object.KindTransient, Err: errors.New("timeout")}, true},
		{"permanent object error", &object.Error{Kind: object.KindPermanent, Err: errors.New("denied")}, false},
		{"not found object error", &object.Error{Kind: object.KindNotFound, Err: errors.New("missing")}, false},
		{"unclassified error", errors.New("decode failed"), false},
		{"wrapped transient error", wrap(&object.Error{Kind: object.KindTransient, Err: errors.New("timeout")}), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isTransient(tc.err); got != tc.want {
				t.Errorf("isTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func wrap(err error) error {
	return fmt.Errorf("download source: %w", err)
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"jpg":     "image/jpeg",
		"png":     "image/png",
		"webp":    "image/webp",
		"avif":    "image/avif",
		"unknown": "application/octet-stream",
	}

	for ext, want := range cases {
		if got := contentTypeFor(ext); got != want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", ext, got, want)
		}
	}
}
