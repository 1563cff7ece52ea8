package model

import (
	"time"
)

// DocumentFile processing status values.
// Happy path is pending → processing → completed; failed is reachable
// from processing and is terminal unless the file is explicitly
// reuploaded, which moves it back to processing.
const (
	FileStatusPending    = "pending"
	FileStatusProcessing = "processing"
	FileStatusCompleted  = "completed"
	FileStatusFailed     = "failed"
)

// Recognized DocumentFile.Metadata keys.
const (
	FileMetaUploadType        = "upload_type" // "sync" or "async"
	FileMetaUploadedBy        = "uploaded_by"
	FileMetaTaskID            = "task_id"
	FileMetaUploadTaskID      = "upload_task_id"
	FileMetaUploadCompletedAt = "upload_completed_at"
	FileMetaUploadError       = "upload_error"
	FileMetaErrorTime         = "error_time"
	FileMetaFileSize          = "file_size"
	FileMetaContentType       = "content_type"
	FileMetaUploadAttempts    = "upload_attempts"
	FileMetaVerifyAttempts    = "verify_attempts"
)

// DocumentFile is one physical file owned by a document. The row is
// created (and flushed, so its id is known) before the bytes necessarily
// land in object storage; the deferred task runner mutates it afterwards.
type DocumentFile struct {
	ID               string    `db:"id"`
	DocumentID       string    `db:"document_id"`
	StoragePath      string    `db:"storage_path"`
	OriginalFilename string    `db:"original_filename"`
	FileType         string    `db:"file_type"`
	FileSize         int64     `db:"file_size"`
	ContentType      string    `db:"content_type"`
	ProcessingStatus string    `db:"processing_status"`
	ErrorMessage     string    `db:"error_message"`
	Metadata         Metadata  `db:"metadata"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// fileTransitions enumerates the legal processing status transitions.
var fileTransitions = map[string]map[string]bool{
	FileStatusPending:    {FileStatusProcessing: true},
	FileStatusProcessing: {FileStatusCompleted: true, FileStatusFailed: true},
	FileStatusFailed:     {FileStatusProcessing: true}, // reupload
	FileStatusCompleted:  {},
}

// ValidFileTransition reports whether processing status may move from
// one value to another. Self-transitions are allowed (idempotent task
// retries re-write the same status).
func ValidFileTransition(from, to string) bool {
	if from == to {
		return true
	}
	allowed, ok := fileTransitions[from]
	return ok && allowed[to]
}

// SetMeta writes a metadata key, allocating the map on first use.
func (f *DocumentFile) SetMeta(key string, value any) {
	if f.Metadata == nil {
		f.Metadata = Metadata{}
	}
	f.Metadata[key] = value
}
