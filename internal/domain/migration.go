package domain

// MigrationStep names one step of the cross-storage migration workflow.
type MigrationStep string

const (
	StepLocateReference MigrationStep = "locate_reference"
	StepEnsureCopy      MigrationStep = "ensure_copy"
	StepEnsureFileSet   MigrationStep = "ensure_file_set"
	StepEnsureFile      MigrationStep = "ensure_file"
	StepFlipStatus      MigrationStep = "flip_status"
	StepRetireSource    MigrationStep = "retire_source"
)

// MigrationSteps is the fixed pipeline order.
var MigrationSteps = []MigrationStep{
	StepLocateReference,
	StepEnsureCopy,
	StepEnsureFileSet,
	StepEnsureFile,
	StepFlipStatus,
	StepRetireSource,
}

// StepOutcome tells the caller what a step actually did.
type StepOutcome string

const (
	OutcomeAlreadyDone StepOutcome = "already_done"
	OutcomeDone        StepOutcome = "done"
	OutcomeWouldDo     StepOutcome = "would_do"
	OutcomeFailed      StepOutcome = "failed"
	OutcomeNotReached  StepOutcome = "not_reached"
)

// StepReport is the per-step record kept in a MigrationResult.
type StepReport struct {
	Step     MigrationStep `json:"step" yaml:"step"`
	Outcome  StepOutcome   `json:"outcome" yaml:"outcome"`
	Detail   string        `json:"detail,omitempty" yaml:"detail,omitempty"`
	Warnings []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// MigrationResult reports one item's pass through the workflow.
type MigrationResult struct {
	ItemID      string       `json:"item_id" yaml:"item_id"`
	Done        bool         `json:"done" yaml:"done"`
	Error       string       `json:"error,omitempty" yaml:"error,omitempty"`
	BytesCopied int64        `json:"bytes_copied" yaml:"bytes_copied"`
	Steps       []StepReport `json:"steps" yaml:"steps"`
}

// Outcome returns the recorded outcome of a step, or OutcomeNotReached.
func (r *MigrationResult) Outcome(step MigrationStep) StepOutcome {
	for _, s := range r.Steps {
		if s.Step == step {
			return s.Outcome
		}
	}
	return OutcomeNotReached
}
