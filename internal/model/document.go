package model

import (
	"time"
)

// Document status values. One canonical enum; localized literals from
// older clients are treated as a bug, not translated.
const (
	DocumentStatusPending  = "pending_approval"
	DocumentStatusApproved = "approved"
	DocumentStatusRejected = "rejected"
)

// Recognized Document.Metadata keys. The metadata map is an audit trail;
// consumers read these keys by convention.
const (
	MetaApprovedBy          = "approved_by"
	MetaApprovedAt          = "approved_at"
	MetaRejectedBy          = "rejected_by"
	MetaRejectedAt          = "rejected_at"
	MetaRejectedReason      = "rejected_reason"
	MetaVectorizeTaskID     = "vectorize_task_id"
	MetaVectorizeRequestedAt = "vectorize_requested_at"
	MetaVectorizeStartedAt  = "vectorize_started_at"
	MetaVectorizeCompletedAt = "vectorize_completed_at"
	MetaVectorizeError      = "vectorize_error"
	MetaVectorDeletedAt     = "vector_deleted_at"
	MetaVectorDeletedByTask = "vector_deleted_by_task"
	MetaVectorDeleteError   = "vector_delete_error"
	MetaErrorTime           = "error_time"
)

// Document is a logical upload: metadata plus one or more physical files.
type Document struct {
	ID            string      `db:"id"`
	Title         string      `db:"title"`
	Summary       string      `db:"summary"`
	Tags          StringSlice `db:"tags"`
	Status        string      `db:"status"`
	UserID        string      `db:"user_id"`
	IsPublic      bool        `db:"is_public"`
	StartDate     *time.Time  `db:"start_date"`
	EndDate       *time.Time  `db:"end_date"`
	ViewCount     int         `db:"view_count"`
	DownloadCount int         `db:"download_count"`
	Vectorized    bool        `db:"vectorized"`
	Metadata      Metadata    `db:"metadata"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

// WindowClosed reports whether the document's validity window excludes
// now: the end date has passed or the start date has not yet arrived.
// Documents without a window are always valid.
func (d *Document) WindowClosed(now time.Time) bool {
	if d.EndDate != nil && now.After(*d.EndDate) {
		return true
	}
	if d.StartDate != nil && now.Before(*d.StartDate) {
		return true
	}
	return false
}

// SetMeta writes a metadata key, allocating the map on first use.
func (d *Document) SetMeta(key string, value any) {
	if d.Metadata == nil {
		d.Metadata = Metadata{}
	}
	d.Metadata[key] = value
}
