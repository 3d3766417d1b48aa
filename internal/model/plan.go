package model

// PlanKind distinguishes the two dispatch-plan shapes the DAG Builder can
// produce. A tagged variant rather than subclasses, since Go has no
// inheritance to express "one task or several" as a type hierarchy.
type PlanKind string

const (
	PlanChain PlanKind = "chain"
	PlanChord PlanKind = "chord"
)

// Plan is the dispatch plan produced by the DAG Builder for one job.
//
// A Chain plan carries exactly one task; its completion alone makes the
// job ready for finalization. A Chord plan carries two or more sibling
// tasks that run in parallel; the job becomes ready for finalization only
// once every sibling has reported a fan-out result. Both shapes dispatch
// through the same code path (see internal/broker), which is the "uniform
// dispatch method" the sum type exists to support.
type Plan struct {
	Kind  PlanKind
	Tasks []TaskMessage
}

// ExpectedResults is the number of fan-out results the finalizer must see
// before this plan's job is ready to finalize.
func (p Plan) ExpectedResults() int {
	return len(p.Tasks)
}
