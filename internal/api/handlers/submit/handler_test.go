package submit

import (
	"testing"

	"github.com/pixtools/pixtools/internal/model"
)

func TestParseOperationsNormalizesAndValidates(t *testing.T) {
	ops, params, err := parseOperations(`["jpg","png","jpg"]`, `{"jpg":{"quality":80}}`)
	if err != nil {
		t.Fatalf("parseOperations() error = %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("ops = %v, want 2 after dedup", ops)
	}
	if params[model.OpJPG].Quality == nil || *params[model.OpJPG].Quality != 80 {
		t.Errorf("params[jpg].Quality = %v, want 80", params[model.OpJPG].Quality)
	}
}

func TestParseOperationsRejectsUnknownTag(t *testing.T) {
	_, _, err := parseOperations(`["bmp"]`, "")
	if err == nil {
		t.Error("parseOperations() error = nil, want error for unknown tag")
	}
}

func TestParseOperationsEmptyIsError(t *testing.T) {
	_, _, err := parseOperations("", "")
	if err != model.ErrNoOperations {
		t.Errorf("parseOperations(\"\") error = %v, want ErrNoOperations", err)
	}
}

func TestHasSameFormatTarget(t *testing.T) {
	cases := []struct {
		name       string
		operations []model.OperationTag
		source     model.OperationTag
		want       bool
	}{
		{"same format jpg->jpg", []model.OperationTag{model.OpJPG}, model.OpJPG, true},
		{"different format jpg source, png target", []model.OperationTag{model.OpPNG}, model.OpJPG, false},
		{"denoise exempt even if same format", []model.OperationTag{model.OpDenoise}, model.OpJPG, false},
		{"metadata exempt", []model.OperationTag{model.OpMetadata}, model.OpJPG, false},
		{"mixed, one conflicting", []model.OperationTag{model.OpPNG, model.OpJPG}, model.OpJPG, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := hasSameFormatTarget(tc.operations, tc.source); got != tc.want {
				t.Errorf("hasSameFormatTarget() = %v, want %v", got, tc.want)
			}
		})
	}
}
