package finalize

import (
	"fmt"
	"strings"

	"github.com/pixtools/pixtools/internal/model"
)

// aggregation is the pure-data result of partitioning a job's fan-out
// results, split out from Execute so the partition rules can be tested
// without a database or broker.
type aggregation struct {
	successes        map[model.OperationTag]string
	metadata         map[string]string
	failures         []string
	imageOperations  int
}

func partition(results []model.FanOutResult) aggregation {
	agg := aggregation{successes: make(map[model.OperationTag]string)}

	for _, r := range results {
		if r.Operation == model.OpMetadata {
			if r.Succeeded() {
				agg.metadata = r.Metadata
			} else {
				agg.failures = append(agg.failures, fmt.Sprintf("metadata: %s", r.Error))
			}
			continue
		}

		agg.imageOperations++
		if r.Succeeded() {
			agg.successes[r.Operation] = r.ObjectKey
		} else {
			agg.failures = append(agg.failures, fmt.Sprintf("%s: %s", r.Operation, r.Error))
		}
	}

	return agg
}

// allImageOperationsFailed reports whether every image-producing outcome
// failed. A job with no image-producing operations at all — e.g.
// metadata-only — never takes this branch.
func (a aggregation) allImageOperationsFailed() bool {
	return a.imageOperations > 0 && len(a.successes) == 0
}

func (a aggregation) errorSummary() string {
	return strings.Join(a.failures, "; ")
}
