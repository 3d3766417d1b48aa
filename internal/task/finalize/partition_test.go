package finalize

import (
	"testing"

	"github.com/pixtools/pixtools/internal/model"
)

func TestPartitionSeparatesMetadataFromImageResults(t *testing.T) {
	agg := partition([]model.FanOutResult{
		{Operation: model.OpJPG, ObjectKey: "processed/job/jpg.jpg"},
		{Operation: model.OpMetadata, Metadata: map[string]string{"width": "10"}},
	})

	if len(agg.successes) != 1 || agg.successes[model.OpJPG] != "processed/job/jpg.jpg" {
		t.Errorf("successes = %v, want jpg only", agg.successes)
	}
	if agg.metadata["width"] != "10" {
		t.Errorf("metadata = %v, want width=10", agg.metadata)
	}
	if agg.imageOperations != 1 {
		t.Errorf("imageOperations = %d, want 1", agg.imageOperations)
	}
}

func TestPartitionAllImageOperationsFailed(t *testing.T) {
	agg := partition([]model.FanOutResult{
		{Operation: model.OpJPG, Error: "decode failed"},
		{Operation: model.OpPNG, Error: "decode failed"},
	})

	if !agg.allImageOperationsFailed() {
		t.Error("allImageOperationsFailed() = false, want true")
	}
	if agg.errorSummary() == "" {
		t.Error("errorSummary() is empty, want a concatenated description")
	}
}

func TestPartitionPartialSuccessIsNotAllFailed(t *testing.T) {
	agg := partition([]model.FanOutResult{
		{Operation: model.OpJPG, ObjectKey: "processed/job/jpg.jpg"},
		{Operation: model.OpPNG, Error: "decode failed"},
	})

	if agg.allImageOperationsFailed() {
		t.Error("allImageOperationsFailed() = true, want false with a partial success")
	}
	if len(agg.successes) != 1 {
		t.Errorf("successes = %v, want 1 entry", agg.successes)
	}
}

func TestPartitionMetadataOnlyJobNeverCountsAsAllFailed(t *testing.T) {
	agg := partition([]model.FanOutResult{
		{Operation: model.OpMetadata, Error: "decode config failed"},
	})

	if agg.allImageOperationsFailed() {
		t.Error("allImageOperationsFailed() = true, want false for a metadata-only job")
	}
	if agg.imageOperations != 0 {
		t.Errorf("imageOperations = %d, want 0", agg.imageOperations)
	}
}
