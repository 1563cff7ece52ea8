package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/doclane/doclane/internal/model"
	"github.com/doclane/doclane/internal/repository"
	"github.com/doclane/doclane/internal/retry"
	"github.com/doclane/doclane/internal/staging"
	"github.com/doclane/doclane/internal/storage"
	"github.com/doclane/doclane/internal/task"
)

// TaskHandlers executes the deferred side of the pipeline: uploading
// staged files to the object store and (re)building or tearing down
// chunks. One instance is registered with the runner per worker process.
type TaskHandlers struct {
	fileRepository repository.DocumentFileRepository
	store          storage.ObjectStore
	staging        *staging.Area
	vectorize      *VectorizeService

	uploadRetry retry.Policy
	verifyRetry retry.Policy
}

func NewTaskHandlers(
	fileRepository repository.DocumentFileRepository,
	store storage.ObjectStore,
	stagingArea *staging.Area,
	vectorize *VectorizeService,
) *TaskHandlers {
	return &TaskHandlers{
		fileRepository: fileRepository,
		store:          store,
		staging:        stagingArea,
		vectorize:      vectorize,
		uploadRetry:    retry.Policy{MaxAttempts: 3, Delay: time.Second},
		verifyRetry:    retry.Policy{MaxAttempts: 3, Delay: time.Second},
	}
}

// Register binds all handlers to their task types.
func (h *TaskHandlers) Register(r *task.Runner) {
	r.Register(task.TypeUploadFile, h.HandleUpload)
	r.Register(task.TypeVectorizeDocument, h.HandleVectorizeDocument)
	r.Register(task.TypeVectorizeSummary, h.HandleVectorizeSummary)
	r.Register(task.TypeDeleteVectors, h.HandleDeleteVectors)
}

// HandleUpload moves a staged file into the object store and settles
// the owning DocumentFile row.
//
// The task is idempotent under queue-level retries: the row already
// exists, a re-run simply re-uploads and re-verifies the same key. On
// any failure the row is marked failed with the error persisted, then
// the error is returned so the task records FAILURE.
func (h *TaskHandlers) HandleUpload(ctx context.Context, t *task.Task) (map[string]any, error) {
	log := slog.With("task_id", t.ID, "file_id", t.FileID, "storage_key", t.StorageKey)

	// A queue-level retry arrives with the row already marked failed by
	// the previous attempt. Move it back to processing first, otherwise
	// the completed write at the end would be an illegal transition.
	file, err := h.fileRepository.ByID(t.FileID)
	if err != nil {
		return nil, fmt.Errorf("failed to load file row: %w", err)
	}
	if file.ProcessingStatus == model.FileStatusFailed {
		if _, err := h.fileRepository.UpdateStatus(t.FileID, model.FileStatusProcessing, "", nil); err != nil {
			return nil, fmt.Errorf("failed to resume failed file: %w", err)
		}
	}

	size, err := h.staging.Validate(t.StagingPath)
	if err != nil {
		return nil, h.failUpload(t, log, fmt.Errorf("staging validation failed: %w", err))
	}

	contentType := ContentTypeByExtension(t.StagingPath)

	uploadAttempts := 0
	err = h.uploadRetry.Do(ctx, func() error {
		uploadAttempts++
		f, err := h.staging.Open(t.StagingPath)
		if err != nil {
			return err
		}
		defer f.Close()
		return h.store.Put(ctx, t.StorageKey, f, size, contentType)
	})
	if err != nil {
		return nil, h.failUpload(t, log, fmt.Errorf("upload failed: %w", err))
	}

	// Verify by re-stat-ing the stored object. Size mismatch within one
	// verification attempt is retried; a persistent mismatch is hard
	// failure (the queue may still retry the whole task from scratch).
	verifyAttempts := 0
	err = h.verifyRetry.Do(ctx, func() error {
		verifyAttempts++
		info, err := h.store.Stat(ctx, t.StorageKey)
		if err != nil {
			return err
		}
		if info.Size != size {
			return fmt.Errorf("size mismatch: stored %d bytes, staged %d bytes", info.Size, size)
		}
		return nil
	})
	if err != nil {
		return nil, h.failUpload(t, log, fmt.Errorf("verification failed: %w", err))
	}

	_, err = h.fileRepository.UpdateStatus(t.FileID, model.FileStatusCompleted, "", model.Metadata{
		model.FileMetaUploadCompletedAt: time.Now().UTC().Format(time.RFC3339),
		model.FileMetaFileSize:          size,
		model.FileMetaContentType:       contentType,
		model.FileMetaUploadAttempts:    uploadAttempts,
		model.FileMetaVerifyAttempts:    verifyAttempts,
		model.FileMetaTaskID:            t.ID,
	})
	if err != nil {
		return nil, h.failUpload(t, log, fmt.Errorf("failed to mark file completed: %w", err))
	}

	if err := h.staging.Remove(t.StagingPath); err != nil {
		log.Warn("failed to remove staging file", "path", t.StagingPath, "error", err)
	}

	log.Info("file uploaded", "size", size, "attempts", uploadAttempts)
	return map[string]any{
		"file_id":      t.FileID,
		"storage_key":  t.StorageKey,
		"size":         size,
		"content_type": contentType,
	}, nil
}

func (h *TaskHandlers) failUpload(t *task.Task, log *slog.Logger, cause error) error {
	log.Error("upload task failed", "error", cause)
	_, err := h.fileRepository.UpdateStatus(t.FileID, model.FileStatusFailed, cause.Error(), model.Metadata{
		model.FileMetaErrorTime:   time.Now().UTC().Format(time.RFC3339),
		model.FileMetaUploadError: cause.Error(),
		model.FileMetaTaskID:      t.ID,
	})
	if err != nil {
		log.Error("failed to persist failure on file row", "error", err)
	}
	return cause
}

// HandleVectorizeDocument rebuilds all chunks for a document.
func (h *TaskHandlers) HandleVectorizeDocument(ctx context.Context, t *task.Task) (map[string]any, error) {
	count, err := h.vectorize.VectorizeDocument(ctx, t.DocumentID, t.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"document_id": t.DocumentID, "chunks": count}, nil
}

// HandleVectorizeSummary rebuilds only the summary chunks.
func (h *TaskHandlers) HandleVectorizeSummary(ctx context.Context, t *task.Task) (map[string]any, error) {
	count, err := h.vectorize.VectorizeSummary(ctx, t.DocumentID, t.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"document_id": t.DocumentID, "chunks": count}, nil
}

// HandleDeleteVectors tears down a document's chunks and vectors.
func (h *TaskHandlers) HandleDeleteVectors(ctx context.Context, t *task.Task) (map[string]any, error) {
	count, err := h.vectorize.DeleteChunksForDocument(ctx, t.DocumentID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"document_id": t.DocumentID, "deleted": count}, nil
}
