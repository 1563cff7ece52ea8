// Package task is the deferred task boundary: work submitted here runs
// outside the request path on a worker pool, at least once, with
// bounded retries, and is observable afterwards purely by task id.
package task

import (
	"time"
)

// Task status values. These strings are part of the external contract —
// callers poll status by string comparison — and must not change.
const (
	StatusPending = "PENDING"
	StatusStarted = "STARTED"
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
	StatusRevoked = "REVOKED"
)

// IsTerminal reports whether a status can never change again. REVOKED
// is terminal for the task but deliberately excluded here: revoking an
// already-revoked task is a harmless repeat, not a conflict.
func IsTerminal(status string) bool {
	return status == StatusSuccess || status == StatusFailure
}

// Task types executed by the runner.
const (
	TypeUploadFile        = "file.upload"
	TypeVectorizeDocument = "vectorize.document"
	TypeVectorizeSummary  = "vectorize.summary"
	TypeDeleteVectors     = "vectors.delete"
)

// Task is one unit of deferred work. Upload tasks carry a staging path
// and target storage key; vectorize/delete tasks address a document.
// FileID is set when the task owns exactly one DocumentFile row — only
// that task mutates the row during its lifetime.
type Task struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	StagingPath string    `json:"staging_path,omitempty"`
	StorageKey  string    `json:"storage_key,omitempty"`
	DocumentID  string    `json:"document_id,omitempty"`
	FileID      string    `json:"file_id,omitempty"`
	Attempt     int       `json:"attempt"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Status is the externally observable state of a task.
type Status struct {
	TaskID    string         `json:"task_id"`
	Status    string         `json:"status"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}
