package dag

import (
	"testing"

	"github.com/google/uuid"

	"github.com/pixtools/pixtools/internal/model"
)

func TestBuildSingleOperationProducesChain(t *testing.T) {
	b := New()
	plan := b.Build(uuid.New(), "raw/job/photo.png", []model.OperationTag{model.OpWebP}, nil, "corr-1")

	if plan.Kind != model.PlanChain {
		t.Errorf("Kind = %v, want %v", plan.Kind, model.PlanChain)
	}
	if len(plan.Tasks) != 1 {
		t.Fatalf("len(Tasks) = %d, want 1", len(plan.Tasks))
	}
	if plan.ExpectedResults() != 1 {
		t.Errorf("ExpectedResults() = %d, want 1", plan.ExpectedResults())
	}
}

func TestBuildMultipleOperationsProducesChord(t *testing.T) {
	b := New()
	ops := []model.OperationTag{model.OpWebP, model.OpAVIF, model.OpMetadata}
	plan := b.Build(uuid.New(), "raw/job/photo.png", ops, nil, "corr-2")

	if plan.Kind != model.PlanChord {
		t.Errorf("Kind = %v, want %v", plan.Kind, model.PlanChord)
	}
	if len(plan.Tasks) != 3 {
		t.Fatalf("len(Tasks) = %d, want 3", len(plan.Tasks))
	}

	for _, task := range plan.Tasks {
		if task.CorrelationID != "corr-2" {
			t.Errorf("CorrelationID = %q, want %q", task.CorrelationID, "corr-2")
		}
	}
}

func TestTaskRouting(t *testing.T) {
	tests := []struct {
		op    model.OperationTag
		queue model.QueueName
	}{
		{model.OpDenoise, model.QueueMLInference},
		{model.OpJPG, model.QueueStandard},
		{model.OpPNG, model.QueueStandard},
		{model.OpWebP, model.QueueStandard},
		{model.OpAVIF, model.QueueStandard},
		{model.OpMetadata, model.QueueStandard},
	}

	for _, tt := range tests {
		if got := tt.op.Queue(); got != tt.queue {
			t.Errorf("%s.Queue() = %v, want %v", tt.op, got, tt.queue)
		}
	}
}
