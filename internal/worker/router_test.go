package worker

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestRouterDropsUnparsableMessage(t *testing.T) {
	r := NewRouter(nil, nil, nil)
	err := r.Handle(context.Background(), kafka.Message{Value: []byte("not json")})
	if err != nil {
		t.Errorf("Handle() error = %v, want nil (dropped, not retried)", err)
	}
}

func TestRouterRejectsUnknownKind(t *testing.T) {
	r := NewRouter(nil, nil, nil)
	err := r.Handle(context.Background(), kafka.Message{Value: []byte(`{"kind":"mystery"}`)})
	if err == nil {
		t.Error("Handle() error = nil, want an error for an unknown task kind")
	}
}
