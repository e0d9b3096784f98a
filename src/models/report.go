// backend/src/models/report.go
package models

import "time"

// RunState is the phase an upload run is in. Runs move strictly forward:
// Idle → Reading → Normalizing → Validating → FetchingExisting →
// Deduplicating → AwaitingConfirmation → Uploading → {Completed |
// PartiallyFailed | Failed}.
type RunState string

const (
	StateIdle                 RunState = "Idle"
	StateReading              RunState = "Reading"
	StateNormalizing          RunState = "Normalizing"
	StateValidating           RunState = "Validating"
	StateFetchingExisting     RunState = "FetchingExisting"
	StateDeduplicating        RunState = "Deduplicating"
	StateAwaitingConfirmation RunState = "AwaitingConfirmation"
	StateUploading            RunState = "Uploading"
	StateCompleted            RunState = "Completed"
	StatePartiallyFailed      RunState = "PartiallyFailed"
	StateFailed               RunState = "Failed"
)

// Terminal reports whether the state ends a run.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StatePartiallyFailed || s == StateFailed
}

// Rejection records a single dropped row and the reason it was dropped.
// Rejections are surfaced to the caller, never silently swallowed.
type Rejection struct {
	Row    int    `json:"row"` // 1-based position in the source file, excluding the header
	Reason string `json:"reason"`
}

// UploadReport is the outcome of one upload run. Every terminal state
// carries counts; "it ran" without numbers is never a valid report.
type UploadReport struct {
	RunID      string      `json:"run_id"`
	Schema     string      `json:"schema"`
	Filename   string      `json:"filename"`
	State      RunState    `json:"state"`
	RowsRead   int         `json:"rows_read"`
	RowsValid  int         `json:"rows_valid"`
	Duplicates int         `json:"duplicates"`
	Pending    int         `json:"pending"` // candidates awaiting confirmation
	Uploaded   int         `json:"uploaded"`
	Failed     int         `json:"failed"`
	Rejections []Rejection `json:"rejections"`
	Warnings   []string    `json:"warnings,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
}
