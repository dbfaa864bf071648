// Package workflow drives invoices through the processing pipeline. Each
// stage runs as one claimed unit of work: the engine claims the invoice,
// executes the stage named by the checkpoint, and commits the next checkpoint
// under an optimistic version check. A crash between execution and commit
// re-runs the stage from its last durable checkpoint; every stage tolerates
// re-execution.
package workflow

// Stage identifies one step of the processing pipeline.
type Stage string

// Pipeline stages. Receive through StageExport run on workers; HumanReview
// suspends the invoice until an operator decides; Done and Exception are
// terminal.
const (
	StageReceive     Stage = "receive"
	StageParse       Stage = "parse"
	StagePatch       Stage = "patch"
	StageValidate    Stage = "validate"
	StageTriage      Stage = "triage"
	StageStageExport Stage = "stage_export"
	StageHumanReview Stage = "human_review"
	StageDone        Stage = "done"
	StageException   Stage = "exception"
)

// Stages lists every stage in pipeline order.
func Stages() []Stage {
	return []Stage{
		StageReceive,
		StageParse,
		StagePatch,
		StageValidate,
		StageTriage,
		StageStageExport,
		StageHumanReview,
		StageDone,
		StageException,
	}
}

// Valid reports whether s names a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageReceive, StageParse, StagePatch, StageValidate, StageTriage,
		StageStageExport, StageHumanReview, StageDone, StageException:
		return true
	}
	return false
}

// Terminal reports whether the pipeline has finished with this invoice.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageException
}

// Runnable reports whether a worker can execute this stage. Suspended and
// terminal stages are advanced only by operator actions.
func (s Stage) Runnable() bool {
	return s.Valid() && !s.Terminal() && s != StageHumanReview
}
