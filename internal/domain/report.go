package domain

import "time"

// Run commands.
const (
	CommandReconcile = "reconcile"
	CommandMigrate   = "migrate"
)

// RunReport is everything one run produced. Dry-run and live reports have the
// same shape.
type RunReport struct {
	Command          string                 `json:"command" yaml:"command"`
	Summary          Summary                `json:"summary" yaml:"summary"`
	StartedAt        time.Time              `json:"started_at" yaml:"started_at"`
	FinishedAt       time.Time              `json:"finished_at" yaml:"finished_at"`
	FailedContainers []string               `json:"failed_containers,omitempty" yaml:"failed_containers,omitempty"`
	Classifications  []ClassificationResult `json:"classifications,omitempty" yaml:"classifications,omitempty"`
	Migrations       []MigrationResult      `json:"migrations,omitempty" yaml:"migrations,omitempty"`
	Warnings         []string               `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// BytesCopied totals the bytes copied by every migration.
func (r *RunReport) BytesCopied() int64 {
	var n int64
	for _, m := range r.Migrations {
		n += m.BytesCopied
	}
	return n
}
