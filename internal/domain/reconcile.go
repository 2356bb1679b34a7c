package domain

import "fmt"

// CandidateItem is an asset found by the scanner together with the status the
// collection listing reported for it. That status may lag the asset record.
type CandidateItem struct {
	ID                      string        `json:"id" yaml:"id"`
	Label                   string        `json:"label" yaml:"label"`
	ContainerObservedStatus ArchiveStatus `json:"container_observed_status" yaml:"container_observed_status"`
	ContainerID             string        `json:"container_id" yaml:"container_id"`
}

// Action is the remediation decided for one classified item.
type Action string

const (
	ActionFixMetadata Action = "fix_metadata"
	ActionResetFailed Action = "reset_failed"
	ActionStaleCache  Action = "stale_cache"
	ActionSkip        Action = "skip"
)

// Actions lists every action in reporting order.
var Actions = []Action{ActionFixMetadata, ActionResetFailed, ActionStaleCache, ActionSkip}

// Evidence values recorded when the classifier could not read the asset record.
const EvidenceFetchError = "fetch_error"

// PlacementEvidence records one placement as seen during classification.
type PlacementEvidence struct {
	FileID         string     `json:"file_id" yaml:"file_id"`
	StorageName    string     `json:"storage_name" yaml:"storage_name"`
	StoragePurpose string     `json:"storage_purpose" yaml:"storage_purpose"`
	Status         FileStatus `json:"status" yaml:"status"`
	OnTarget       bool       `json:"on_target" yaml:"on_target"`
	ExistsOnMount  bool       `json:"exists_on_mount" yaml:"exists_on_mount"`
}

// String renders the placement as "(storageName, storagePurpose):physicalStatus".
func (p PlacementEvidence) String() string {
	return fmt.Sprintf("(%s, %s):%s", p.StorageName, p.StoragePurpose, p.Status)
}

// Evidence captures the facts that produced a classification decision.
type Evidence struct {
	AuthoritativeStatus ArchiveStatus       `json:"authoritative_status,omitempty" yaml:"authoritative_status,omitempty"`
	FetchError          string              `json:"fetch_error,omitempty" yaml:"fetch_error,omitempty"`
	Placements          []PlacementEvidence `json:"placements,omitempty" yaml:"placements,omitempty"`
	OnArchiveStorage    bool                `json:"on_archive_storage" yaml:"on_archive_storage"`
	ArchiveFileExists   bool                `json:"archive_file_exists" yaml:"archive_file_exists"`
	// Partial is set when a best-effort sub-fetch failed and the decision was
	// made on the evidence that did succeed.
	Partial        bool     `json:"partial" yaml:"partial"`
	PartialReasons []string `json:"partial_reasons,omitempty" yaml:"partial_reasons,omitempty"`
}

// AddPartial records a failed best-effort sub-fetch.
func (e *Evidence) AddPartial(reason string) {
	e.Partial = true
	e.PartialReasons = append(e.PartialReasons, reason)
}

// Decide is the classification decision over gathered evidence. It never
// looks at the container-observed status.
//
// The asset record is treated as more authoritative than the collection
// listing (AuthoritativeRecordWins): an ARCHIVED record means the listing was
// stale, whatever the placements say.
func Decide(ev Evidence) Action {
	if ev.FetchError != "" {
		return ActionSkip
	}
	if ev.AuthoritativeStatus == StatusArchived {
		return ActionStaleCache
	}
	if ev.OnArchiveStorage && ev.ArchiveFileExists {
		return ActionFixMetadata
	}
	if ev.AuthoritativeStatus == StatusFailed || ev.AuthoritativeStatus == StatusArchiving {
		return ActionResetFailed
	}
	return ActionSkip
}

// ClassificationResult is derived per run and never persisted.
type ClassificationResult struct {
	Item     CandidateItem `json:"item" yaml:"item"`
	Action   Action        `json:"action" yaml:"action"`
	Evidence Evidence      `json:"evidence" yaml:"evidence"`
	// PendingComponents are format ids whose archive status is not ARCHIVED.
	PendingComponents []string `json:"pending_components,omitempty" yaml:"pending_components,omitempty"`
	// PendingFiles are MISSING placements found on the mount; fixed to CLOSED.
	PendingFiles []string `json:"pending_files,omitempty" yaml:"pending_files,omitempty"`
}

// Mode selects whether writes are issued.
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModeLive   Mode = "live"
)

// IsLive reports whether writes should be issued.
func (m Mode) IsLive() bool {
	return m == ModeLive
}

// Summary is the end-of-run count report. Dry-run and live runs fill the same fields.
type Summary struct {
	RunID      string         `json:"run_id" yaml:"run_id"`
	Mode       Mode           `json:"mode" yaml:"mode"`
	Found      int            `json:"found" yaml:"found"`
	ByAction   map[Action]int `json:"by_action" yaml:"by_action"`
	Fixed      int            `json:"fixed" yaml:"fixed"`
	Reset      int            `json:"reset" yaml:"reset"`
	Migrated   int            `json:"migrated" yaml:"migrated"`
	Skipped    int            `json:"skipped" yaml:"skipped"`
	Errors     int            `json:"errors" yaml:"errors"`
	ScanErrors int            `json:"scan_errors" yaml:"scan_errors"`
}

// NewSummary returns a summary with every action bucket present.
func NewSummary(runID string, mode Mode) Summary {
	s := Summary{RunID: runID, Mode: mode, ByAction: make(map[Action]int, len(Actions))}
	for _, a := range Actions {
		s.ByAction[a] = 0
	}
	return s
}

// Merge adds the counts of other into s.
func (s *Summary) Merge(other Summary) {
	s.Found += other.Found
	s.Fixed += other.Fixed
	s.Reset += other.Reset
	s.Migrated += other.Migrated
	s.Skipped += other.Skipped
	s.Errors += other.Errors
	s.ScanErrors += other.ScanErrors
	if s.ByAction == nil {
		s.ByAction = make(map[Action]int)
	}
	for a, n := range other.ByAction {
		s.ByAction[a] += n
	}
}
