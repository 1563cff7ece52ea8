package service

import (
	"context"
	"errors"
	"fmt"
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
)

var (
	ErrNotOwner        = errors.New("user does not own this document")
	ErrNotReuploadable = errors.New("only failed files can be reuploaded")
)

// CreateDocumentInput is the caller-supplied part of a new document.
type CreateDocumentInput struct {
	Title     string
	Summary   string
	Tags      []string
	IsPublic  bool
	StartDate *time.Time
	EndDate   *time.Time
}

// DocumentStatusView aggregates a document with its per-file processing
// state for owner/admin polling.
type DocumentStatusView struct {
	Document *model.Document       `json:"document"`
	Files    []*model.DocumentFile `json:"files"`
}

// DocumentService owns the document lifecycle around the pipeline:
// create, approve/reject, delete (cascading to files, chunks and
// storage), per-file removal and reupload, counters and downloads.
type DocumentService struct {
	documentRepository repository.DocumentRepository
	fileRepository     repository.DocumentFileRepository
	store              storage.ObjectStore
	staging            *staging.Area
	enqueuer           TaskEnqueuer
	vectorize          *VectorizeService
	presignExpiry      time.Duration
}

func NewDocumentService(
	documentRepository repository.DocumentRepository,
	fileRepository repository.DocumentFileRepository,
	store storage.ObjectStore,
	stagingArea *staging.Area,
	enqueuer TaskEnqueuer,
	vectorize *VectorizeService,
	presignExpiry time.Duration,
) *DocumentService {
	return &DocumentService{
		documentRepository: documentRepository,
		fileRepository:     fileRepository,
		store:              store,
		staging:            stagingArea,
		enqueuer:           enqueuer,
		vectorize:          vectorize,
		presignExpiry:      presignExpiry,
	}
}

// Create registers a new document in pending-approval state.
func (s *DocumentService) Create(ownerID string, in CreateDocumentInput) (*model.Document, error) {
	now := time.Now().UTC()
	doc := &model.Document{
		ID:        uuid.NewString(),
		Title:     in.Title,
		Summary:   in.Summary,
		Tags:      model.StringSlice(in.Tags),
		Status:    model.DocumentStatusPending,
		UserID:    ownerID,
		IsPublic:  in.IsPublic,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.documentRepository.Create(doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	slog.Info("document created", "document_id", doc.ID, "owner", ownerID)
	return doc, nil
}

// ByID returns a document without side effects.
func (s *DocumentService) ByID(id string) (*model.Document, error) {
	return s.documentRepository.ByID(id)
}

// View returns a document and bumps its view counter. The counter
// accepts small undercounts under concurrent access.
func (s *DocumentService) View(id string) (*model.Document, error) {
	doc, err := s.documentRepository.ByID(id)
	if err != nil {
		return nil, err
	}
	if err := s.documentRepository.IncrementViewCount(id); err != nil {
		slog.Warn("failed to increment view count", "document_id", id, "error", err)
	}
	return doc, nil
}

// ByUser lists a user's documents, newest first.
func (s *DocumentService) ByUser(userID string) ([]*model.Document, error) {
	return s.documentRepository.ByUser(userID)
}

// PendingApproval lists documents awaiting an admin decision.
func (s *DocumentService) PendingApproval() ([]*model.Document, error) {
	return s.documentRepository.ByStatus(model.DocumentStatusPending)
}

// Status returns the document with its files' processing state.
func (s *DocumentService) Status(id string) (*DocumentStatusView, error) {
	doc, err := s.documentRepository.ByID(id)
	if err != nil {
		return nil, err
	}
	files, err := s.fileRepository.ByDocument(id)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return &DocumentStatusView{Document: doc, Files: files}, nil
}

// BatchResult reports per-member outcomes of a multi-document admin
// action; the batch never fails atomically.
type BatchResult struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// Approve marks documents approved, stamping the audit trail. Each
// member succeeds or fails independently.
func (s *DocumentService) Approve(adminID string, documentIDs []string) *BatchResult {
	return s.decide(adminID, documentIDs, func(doc *model.Document) {
		doc.Status = model.DocumentStatusApproved
		doc.SetMeta(model.MetaApprovedBy, adminID)
		doc.SetMeta(model.MetaApprovedAt, time.Now().UTC().Format(time.RFC3339))
	})
}

// Reject marks documents rejected with a reason.
func (s *DocumentService) Reject(adminID string, documentIDs []string, reason string) *BatchResult {
	return s.decide(adminID, documentIDs, func(doc *model.Document) {
		doc.Status = model.DocumentStatusRejected
		doc.SetMeta(model.MetaRejectedBy, adminID)
		doc.SetMeta(model.MetaRejectedAt, time.Now().UTC().Format(time.RFC3339))
		doc.SetMeta(model.MetaRejectedReason, reason)
	})
}

func (s *DocumentService) decide(adminID string, documentIDs []string, mutate func(*model.Document)) *BatchResult {
	res := &BatchResult{Failed: map[string]string{}}
	for _, id := range documentIDs {
		doc, err := s.documentRepository.ByID(id)
		if err != nil {
			res.Failed[id] = err.Error()
			continue
		}
		mutate(doc)
		if err := s.documentRepository.Update(doc); err != nil {
			res.Failed[id] = err.Error()
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	if len(res.Failed) == 0 {
		res.Failed = nil
	}
	return res
}

// Delete removes a document and everything it owns: chunks and remote
// vectors first, then stored objects, then the file rows, then the
// document row itself.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	doc, err := s.documentRepository.ByID(id)
	if err != nil {
		return err
	}

	if _, err := s.vectorize.DeleteChunksForDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	files, err := s.fileRepository.ByDocument(id)
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}

	keys := make([]string, 0, len(files))
	for _, f := range files {
		keys = append(keys, f.StoragePath)
	}
	if ok, failed := s.store.DeleteMany(ctx, keys); !ok {
		// Orphaned objects are preferable to a document that cannot be
		// deleted; log and continue.
		slog.Error("some stored objects could not be deleted", "document_id", id, "failed_keys", failed)
	}

	for _, f := range files {
		if err := s.fileRepository.Delete(f.ID); err != nil {
			return fmt.Errorf("failed to delete file row %s: %w", f.ID, err)
		}
	}

	if err := s.documentRepository.Delete(id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	slog.Info("document deleted", "document_id", id, "files", len(files), "owner", doc.UserID)
	return nil
}

// DeleteFile removes one file: its chunks, its stored object, its row.
// If it was the document's last file and the document was vectorized,
// the vectorized flag is cleared as a side effect.
func (s *DocumentService) DeleteFile(ctx context.Context, fileID string) error {
	file, err := s.fileRepository.ByID(fileID)
	if err != nil {
		return err
	}

	if _, err := s.vectorize.DeleteChunksForFile(ctx, file.DocumentID, fileID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	if err := s.store.Delete(ctx, file.StoragePath); err != nil {
		slog.Error("failed to delete stored object", "key", file.StoragePath, "error", err)
	}

	if err := s.fileRepository.Delete(fileID); err != nil {
		return fmt.Errorf("failed to delete file row: %w", err)
	}

	remaining, err := s.fileRepository.CountByDocument(file.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to count remaining files: %w", err)
	}
	if remaining == 0 {
		doc, err := s.documentRepository.ByID(file.DocumentID)
		if err != nil {
			return err
		}
		if doc.Vectorized {
			doc.Vectorized = false
			doc.SetMeta(model.MetaVectorDeletedAt, time.Now().UTC().Format(time.RFC3339))
			if err := s.documentRepository.Update(doc); err != nil {
				return fmt.Errorf("failed to clear vectorized flag: %w", err)
			}
		}
	}
	return nil
}

// Reupload replaces the bytes of a failed file: the row transitions
// back to processing and a fresh upload task is enqueued against the
// same storage key.
func (s *DocumentService) Reupload(ctx context.Context, fileID string, upload FileUpload) (*FileAcceptResult, error) {
	file, err := s.fileRepository.ByID(fileID)
	if err != nil {
		return nil, err
	}
	if file.ProcessingStatus != model.FileStatusFailed {
		return nil, fmt.Errorf("%w: file is %s", ErrNotReuploadable, file.ProcessingStatus)
	}

	stagingPath, err := s.staging.Write(upload.Body, filepath.Ext(file.OriginalFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to stage file: %w", err)
	}

	if _, err := s.fileRepository.UpdateStatus(fileID, model.FileStatusProcessing, "", nil); err != nil {
		_ = s.staging.Remove(stagingPath)
		return nil, err
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
		return nil, fmt.Errorf("failed to enqueue reupload: %w", err)
	}

	if _, err := s.fileRepository.UpdateStatus(fileID, model.FileStatusProcessing, "", model.Metadata{
		model.FileMetaTaskID:       taskID,
		model.FileMetaUploadTaskID: taskID,
	}); err != nil {
		slog.Error("failed to record task id", "file_id", fileID, "task_id", taskID, "error", err)
	}

	return &FileAcceptResult{
		FileID:     file.ID,
		Filename:   file.OriginalFilename,
		StorageKey: file.StoragePath,
		Status:     model.FileStatusProcessing,
		TaskID:     taskID,
	}, nil
}

// DownloadURL returns a presigned URL for a file and bumps the
// document's download counter.
func (s *DocumentService) DownloadURL(ctx context.Context, fileID string) (string, error) {
	file, err := s.fileRepository.ByID(fileID)
	if err != nil {
		return "", err
	}
	if file.ProcessingStatus != model.FileStatusCompleted {
		return "", fmt.Errorf("file %s is not ready for download (status %s)", fileID, file.ProcessingStatus)
	}

	url, err := s.store.PresignGet(ctx, file.StoragePath, s.presignExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}
	if err := s.documentRepository.IncrementDownloadCount(file.DocumentID); err != nil {
		slog.Warn("failed to increment download count", "document_id", file.DocumentID, "error", err)
	}
	return url, nil
}

// RequestVectorize enqueues a full re-vectorization of a document and
// stamps the request on its audit trail.
func (s *DocumentService) RequestVectorize(ctx context.Context, documentID string, summaryOnly bool) (string, error) {
	doc, err := s.documentRepository.ByID(documentID)
	if err != nil {
		return "", err
	}

	taskType := task.TypeVectorizeDocument
	if summaryOnly {
		taskType = task.TypeVectorizeSummary
	}
	taskID, err := s.enqueuer.Enqueue(ctx, &task.Task{
		Type:       taskType,
		DocumentID: documentID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue vectorize task: %w", err)
	}

	doc.SetMeta(model.MetaVectorizeTaskID, taskID)
	doc.SetMeta(model.MetaVectorizeRequestedAt, time.Now().UTC().Format(time.RFC3339))
	if err := s.documentRepository.Update(doc); err != nil {
		slog.Error("failed to stamp vectorize request", "document_id", documentID, "error", err)
	}
	return taskID, nil
}

// RequestVectorDelete enqueues deletion of a document's chunks and
// vectors.
func (s *DocumentService) RequestVectorDelete(ctx context.Context, documentID string) (string, error) {
	if _, err := s.documentRepository.ByID(documentID); err != nil {
		return "", err
	}
	return s.enqueuer.Enqueue(ctx, &task.Task{
		Type:       task.TypeDeleteVectors,
		DocumentID: documentID,
	})
}

// Search filters a user's documents by a case-insensitive substring
// match over title, summary, and tags.
func (s *DocumentService) Search(userID, query string) ([]*model.Document, error) {
	docs, err := s.documentRepository.ByUser(userID)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return docs, nil
	}

	matched := docs[:0]
	for _, d := range docs {
		if strings.Contains(strings.ToLower(d.Title), q) ||
			strings.Contains(strings.ToLower(d.Summary), q) ||
			tagsMatch(d.Tags, q) {
			matched = append(matched, d)
		}
	}
	return matched, nil
}

func tagsMatch(tags model.StringSlice, q string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}
