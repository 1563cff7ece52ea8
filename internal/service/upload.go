package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doclane/doclane/internal/model"
	"github.com/doclane/doclane/internal/repository"
	"github.com/doclane/doclane/internal/staging"
	"github.com/doclane/doclane/internal/storage"
	"github.com/doclane/doclane/internal/task"
	"github.com/doclane/doclane/internal/validation"
)

var (
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
	ErrDocumentRequired    = errors.New("document id does not resolve to an existing document")
	ErrEmptyBatch          = errors.New("upload batch is empty")
)

// TaskEnqueuer is the narrow queue contract the coordinator depends on.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, t *task.Task) (string, error)
}

// FileUpload is one incoming file of a batch.
type FileUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// FileAcceptResult is the per-file outcome of AcceptBatch, in request
// order. TaskID is set only for deferred uploads.
type FileAcceptResult struct {
	FileID     string `json:"file_id"`
	Filename   string `json:"filename"`
	StorageKey string `json:"storage_key"`
	Status     string `json:"status"`
	TaskID     string `json:"task_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// UploadService coordinates a batch of file uploads for one document:
// it creates the DocumentFile rows up front, then either uploads inline
// (sync) or stages the bytes and hands off to the task runner (deferred).
type UploadService struct {
	documentRepository repository.DocumentRepository
	fileRepository     repository.DocumentFileRepository
	store              storage.ObjectStore
	staging            *staging.Area
	enqueuer           TaskEnqueuer
}

func NewUploadService(
	documentRepository repository.DocumentRepository,
	fileRepository repository.DocumentFileRepository,
	store storage.ObjectStore,
	stagingArea *staging.Area,
	enqueuer TaskEnqueuer,
) *UploadService {
	return &UploadService{
		documentRepository: documentRepository,
		fileRepository:     fileRepository,
		store:              store,
		staging:            stagingArea,
		enqueuer:           enqueuer,
	}
}

// AcceptBatch validates and accepts a batch of uploads for a document.
//
// Extension validation is all-or-nothing and happens before any row or
// storage write. A missing document is a hard failure in deferred mode;
// sync mode tolerates it (the rows are created unattached-by-lookup but
// still carry the given document id). Duplicate original filenames
// within one batch keep the first occurrence.
func (s *UploadService) AcceptBatch(ctx context.Context, uploads []FileUpload, ownerID, documentID string, deferred bool) ([]*FileAcceptResult, error) {
	if len(uploads) == 0 {
		return nil, ErrEmptyBatch
	}

	for _, u := range uploads {
		if err := validation.ValidateDocumentFilename(u.Filename); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExtensionNotAllowed, err)
		}
	}

	_, err := s.documentRepository.ByID(documentID)
	if err != nil {
		if !errors.Is(err, repository.ErrDocumentNotFound) {
			return nil, fmt.Errorf("failed to resolve document: %w", err)
		}
		if deferred {
			return nil, fmt.Errorf("%w: %s", ErrDocumentRequired, documentID)
		}
		slog.Warn("sync upload for unknown document", "document_id", documentID)
	}

	uploads = dedupeByFilename(uploads)

	results := make([]*FileAcceptResult, 0, len(uploads))
	for _, u := range uploads {
		res := s.acceptOne(ctx, u, ownerID, documentID, deferred)
		results = append(results, res)
	}
	return results, nil
}

func (s *UploadService) acceptOne(ctx context.Context, u FileUpload, ownerID, documentID string, deferred bool) *FileAcceptResult {
	ext := strings.ToLower(filepath.Ext(u.Filename))
	key := uuid.NewString() + ext

	now := time.Now().UTC()
	file := &model.DocumentFile{
		ID:               uuid.NewString(),
		DocumentID:       documentID,
		StoragePath:      key,
		OriginalFilename: u.Filename,
		FileType:         strings.TrimPrefix(ext, "."),
		FileSize:         u.Size,
		ContentType:      u.ContentType,
		ProcessingStatus: model.FileStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	file.SetMeta(model.FileMetaUploadedBy, ownerID)
	if deferred {
		file.SetMeta(model.FileMetaUploadType, "async")
	} else {
		file.SetMeta(model.FileMetaUploadType, "sync")
	}

	// The row is created and flushed before any bytes move, so callers
	// can track status even if the upload never happens.
	if err := s.fileRepository.Create(file); err != nil {
		slog.Error("failed to create file row", "filename", u.Filename, "error", err)
		return &FileAcceptResult{
			Filename: u.Filename,
			Status:   model.FileStatusFailed,
			Error:    fmt.Sprintf("failed to register file: %v", err),
		}
	}

	res := &FileAcceptResult{
		FileID:     file.ID,
		Filename:   u.Filename,
		StorageKey: key,
	}

	if deferred {
		s.acceptDeferred(ctx, u, file, res)
	} else {
		s.acceptSync(ctx, u, file, res)
	}
	return res
}

func (s *UploadService) acceptDeferred(ctx context.Context, u FileUpload, file *model.DocumentFile, res *FileAcceptResult) {
	stagingPath, err := s.staging.Write(u.Body, filepath.Ext(u.Filename))
	if err != nil {
		s.markFailed(file.ID, fmt.Sprintf("failed to stage file: %v", err), res)
		return
	}

	if _, err := s.fileRepository.UpdateStatus(file.ID, model.FileStatusProcessing, "", nil); err != nil {
		_ = s.staging.Remove(stagingPath)
		s.markFailed(file.ID, fmt.Sprintf("failed to mark processing: %v", err), res)
		return
	}

	taskID, err := s.enqueuer.Enqueue(ctx, &task.Task{
		Type:        task.TypeUploadFile,
		StagingPath: stagingPath,
		StorageKey:  file.StoragePath,
		DocumentID:  file.DocumentID,
		FileID:      file.ID,
	})
	if err != nil {
		_ = s.staging.Remove(stagingPath)
		s.markFailed(file.ID, fmt.Sprintf("failed to enqueue upload: %v", err), res)
		return
	}

	if _, err := s.fileRepository.UpdateStatus(file.ID, model.FileStatusProcessing, "", model.Metadata{
		model.FileMetaTaskID:       taskID,
		model.FileMetaUploadTaskID: taskID,
	}); err != nil {
		slog.Error("failed to record task id", "file_id", file.ID, "task_id", taskID, "error", err)
	}

	res.Status = model.FileStatusProcessing
	res.TaskID = taskID
}

// acceptSync uploads inline. Status always lands on completed or
// failed; processing is never left as a terminal state.
func (s *UploadService) acceptSync(ctx context.Context, u FileUpload, file *model.DocumentFile, res *FileAcceptResult) {
	if _, err := s.fileRepository.UpdateStatus(file.ID, model.FileStatusProcessing, "", nil); err != nil {
		s.markFailed(file.ID, fmt.Sprintf("failed to mark processing: %v", err), res)
		return
	}

	contentType := u.ContentType
	if contentType == "" {
		contentType = ContentTypeByExtension(u.Filename)
	}

	if err := s.store.Put(ctx, file.StoragePath, u.Body, u.Size, contentType); err != nil {
		s.markFailed(file.ID, fmt.Sprintf("failed to upload: %v", err), res)
		return
	}

	if _, err := s.fileRepository.UpdateStatus(file.ID, model.FileStatusCompleted, "", model.Metadata{
		model.FileMetaUploadCompletedAt: time.Now().UTC().Format(time.RFC3339),
		model.FileMetaContentType:       contentType,
	}); err != nil {
		slog.Error("failed to mark file completed", "file_id", file.ID, "error", err)
		res.Status = model.FileStatusProcessing
		res.Error = err.Error()
		return
	}

	res.Status = model.FileStatusCompleted
}

func (s *UploadService) markFailed(fileID, message string, res *FileAcceptResult) {
	_, err := s.fileRepository.UpdateStatus(fileID, model.FileStatusFailed, message, model.Metadata{
		model.FileMetaErrorTime: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		slog.Error("failed to mark file failed", "file_id", fileID, "error", err)
	}
	res.Status = model.FileStatusFailed
	res.Error = message
}

func dedupeByFilename(uploads []FileUpload) []FileUpload {
	seen := make(map[string]bool, len(uploads))
	out := uploads[:0]
	for _, u := range uploads {
		if seen[u.Filename] {
			slog.Warn("duplicate filename in batch, keeping first", "filename", u.Filename)
			continue
		}
		seen[u.Filename] = true
		out = append(out, u)
	}
	return out
}

// ContentTypeByExtension infers a MIME type from a filename. Unknown
// extensions fall back to application/octet-stream.
func ContentTypeByExtension(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt", ".md":
		return "text/plain"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
