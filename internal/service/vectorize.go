package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/doclane/doclane/internal/extract"
	"github.com/doclane/doclane/internal/model"
	"github.com/doclane/doclane/internal/repository"
	"github.com/doclane/doclane/internal/vectorindex"
)

// Embedding tags stamped on every chunk. The embedding backend is not
// wired yet; the tags record which model chunks were prepared for.
const (
	embeddingModel   = "text-embedding-3-small"
	embeddingVersion = "1"
)

// TextExtractor turns a stored object into plain text.
type TextExtractor interface {
	Text(ctx context.Context, storageKey, fileType string) (string, error)
}

// VectorizeService is the chunk lifecycle manager: it turns documents
// into ordered chunks, tracks the vectorized flag on the parent
// document, and tears chunks and remote vectors down together when a
// document is invalidated.
type VectorizeService struct {
	documentRepository repository.DocumentRepository
	fileRepository     repository.DocumentFileRepository
	chunkRepository    repository.ChunkRepository
	extractor          TextExtractor
	index              vectorindex.Index

	chunkSize         int
	chunkOverlap      int
	summaryChunkChars int
}

func NewVectorizeService(
	documentRepository repository.DocumentRepository,
	fileRepository repository.DocumentFileRepository,
	chunkRepository repository.ChunkRepository,
	extractor TextExtractor,
	index vectorindex.Index,
	chunkSize, chunkOverlap, summaryChunkChars int,
) *VectorizeService {
	return &VectorizeService{
		documentRepository: documentRepository,
		fileRepository:     fileRepository,
		chunkRepository:    chunkRepository,
		extractor:          extractor,
		index:              index,
		chunkSize:          chunkSize,
		chunkOverlap:       chunkOverlap,
		summaryChunkChars:  summaryChunkChars,
	}
}

// CreateChunksForFile extracts a file's text, chunks it, and persists
// the chunks. Extraction failures return an empty list rather than an
// error so one unreadable file cannot abort its siblings.
func (s *VectorizeService) CreateChunksForFile(ctx context.Context, doc *model.Document, file *model.DocumentFile) ([]*model.DocumentChunk, error) {
	text, err := s.extractor.Text(ctx, file.StoragePath, file.FileType)
	if err != nil {
		slog.Warn("text extraction failed, skipping file",
			"document_id", doc.ID, "file_id", file.ID, "file_type", file.FileType, "error", err)
		return nil, nil
	}

	texts := extract.Chunk(text, s.chunkSize, s.chunkOverlap)
	if len(texts) == 0 {
		return nil, nil
	}

	chunks := make([]*model.DocumentChunk, 0, len(texts))
	for i, t := range texts {
		fileID := file.ID
		c := &model.DocumentChunk{
			ID:               uuid.NewString(),
			DocumentID:       doc.ID,
			FileID:           &fileID,
			ChunkText:        t,
			ChunkIndex:       i,
			EmbeddingModel:   embeddingModel,
			EmbeddingVersion: embeddingVersion,
			Metadata:         snapshotMetadata(doc, len(texts)),
			CreatedAt:        time.Now().UTC(),
		}
		c.Metadata[model.ChunkMetaFileID] = file.ID
		c.Metadata[model.ChunkMetaFileName] = file.OriginalFilename
		c.Metadata[model.ChunkMetaFileType] = file.FileType
		chunks = append(chunks, c)
	}

	if err := s.chunkRepository.CreateBatch(chunks); err != nil {
		return nil, fmt.Errorf("failed to persist chunks for file %s: %w", file.ID, err)
	}
	return chunks, nil
}

// CreateChunksForSummary chunks the document's summary with the
// sentence-aware splitter. Summary chunks carry a nil file id.
func (s *VectorizeService) CreateChunksForSummary(ctx context.Context, doc *model.Document) ([]*model.DocumentChunk, error) {
	texts := extract.SplitBudget(doc.Summary, s.summaryChunkChars)
	if len(texts) == 0 {
		return nil, nil
	}

	chunks := make([]*model.DocumentChunk, 0, len(texts))
	for i, t := range texts {
		c := &model.DocumentChunk{
			ID:               uuid.NewString(),
			DocumentID:       doc.ID,
			ChunkText:        t,
			ChunkIndex:       i,
			EmbeddingModel:   embeddingModel,
			EmbeddingVersion: embeddingVersion,
			Metadata:         snapshotMetadata(doc, len(texts)),
			CreatedAt:        time.Now().UTC(),
		}
		c.Metadata[model.ChunkMetaIsSummary] = true
		chunks = append(chunks, c)
	}

	if err := s.chunkRepository.CreateBatch(chunks); err != nil {
		return nil, fmt.Errorf("failed to persist summary chunks: %w", err)
	}
	return chunks, nil
}

// VectorizeDocument rebuilds all chunks for a document: existing chunks
// are dropped, each completed file is re-extracted and chunked, the
// summary is chunked, and the vectorized flag is set. The audit trail
// records the task that did the work.
func (s *VectorizeService) VectorizeDocument(ctx context.Context, documentID, taskID string) (int, error) {
	doc, err := s.documentRepository.ByID(documentID)
	if err != nil {
		return 0, err
	}

	doc.SetMeta(model.MetaVectorizeStartedAt, time.Now().UTC().Format(time.RFC3339))
	if taskID != "" {
		doc.SetMeta(model.MetaVectorizeTaskID, taskID)
	}
	if err := s.documentRepository.Update(doc); err != nil {
		return 0, fmt.Errorf("failed to stamp vectorize start: %w", err)
	}

	if _, err := s.DeleteChunksForDocument(ctx, documentID); err != nil {
		return 0, fmt.Errorf("failed to clear previous chunks: %w", err)
	}

	files, err := s.fileRepository.ByDocument(documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to list files: %w", err)
	}

	total := 0
	for _, f := range files {
		if f.ProcessingStatus != model.FileStatusCompleted {
			continue
		}
		chunks, err := s.CreateChunksForFile(ctx, doc, f)
		if err != nil {
			return total, err
		}
		total += len(chunks)
	}

	summaryChunks, err := s.CreateChunksForSummary(ctx, doc)
	if err != nil {
		return total, err
	}
	total += len(summaryChunks)

	// Re-read: DeleteChunksForDocument rewrote the row.
	doc, err = s.documentRepository.ByID(documentID)
	if err != nil {
		return total, err
	}
	doc.Vectorized = total > 0
	doc.SetMeta(model.MetaVectorizeCompletedAt, time.Now().UTC().Format(time.RFC3339))
	if err := s.documentRepository.Update(doc); err != nil {
		return total, fmt.Errorf("failed to set vectorized flag: %w", err)
	}

	slog.Info("document vectorized", "document_id", documentID, "chunks", total)
	return total, nil
}

// VectorizeSummary rebuilds only the summary chunks of a document.
func (s *VectorizeService) VectorizeSummary(ctx context.Context, documentID, taskID string) (int, error) {
	doc, err := s.documentRepository.ByID(documentID)
	if err != nil {
		return 0, err
	}

	// Drop only the previous summary chunks (nil file id); file chunks
	// are untouched.
	existing, err := s.chunkRepository.ByDocument(documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to list chunks: %w", err)
	}
	summaryVectorIDs := make([]string, 0)
	for _, c := range existing {
		if c.FileID == nil && c.VectorID != nil {
			summaryVectorIDs = append(summaryVectorIDs, *c.VectorID)
		}
	}
	s.deleteRemoteVectors(ctx, doc, summaryVectorIDs, taskID)
	if _, err := s.chunkRepository.DeleteSummaryChunks(documentID); err != nil {
		return 0, fmt.Errorf("failed to clear summary chunks: %w", err)
	}

	chunks, err := s.CreateChunksForSummary(ctx, doc)
	if err != nil {
		return 0, err
	}

	doc.SetMeta(model.MetaVectorizeCompletedAt, time.Now().UTC().Format(time.RFC3339))
	if taskID != "" {
		doc.SetMeta(model.MetaVectorizeTaskID, taskID)
	}
	if len(chunks) > 0 {
		doc.Vectorized = true
	}
	if err := s.documentRepository.Update(doc); err != nil {
		return len(chunks), fmt.Errorf("failed to update document: %w", err)
	}
	return len(chunks), nil
}

// DeleteChunksForDocument removes all of a document's chunks, clears
// its vectorized flag, and best-effort deletes the remote vectors.
func (s *VectorizeService) DeleteChunksForDocument(ctx context.Context, documentID string) (int64, error) {
	doc, err := s.documentRepository.ByID(documentID)
	if err != nil {
		return 0, err
	}

	vectorIDs, err := s.chunkRepository.VectorIDsByDocument(documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to collect vector ids: %w", err)
	}
	s.deleteRemoteVectors(ctx, doc, vectorIDs, "")

	count, err := s.chunkRepository.DeleteByDocument(documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}

	if doc.Vectorized {
		doc.Vectorized = false
	}
	doc.SetMeta(model.MetaVectorDeletedAt, time.Now().UTC().Format(time.RFC3339))
	if err := s.documentRepository.Update(doc); err != nil {
		return count, fmt.Errorf("failed to clear vectorized flag: %w", err)
	}
	return count, nil
}

// DeleteChunksForFile removes one file's chunks. If that leaves the
// document without any chunks at all, the vectorized flag is cleared:
// a removed source must not leave an orphaned vectorized claim.
func (s *VectorizeService) DeleteChunksForFile(ctx context.Context, documentID, fileID string) (int64, error) {
	doc, err := s.documentRepository.ByID(documentID)
	if err != nil {
		return 0, err
	}

	vectorIDs, err := s.chunkRepository.VectorIDsByFile(fileID)
	if err != nil {
		return 0, fmt.Errorf("failed to collect vector ids: %w", err)
	}
	s.deleteRemoteVectors(ctx, doc, vectorIDs, "")

	count, err := s.chunkRepository.DeleteByFile(fileID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}

	remaining, err := s.chunkRepository.ByDocument(documentID)
	if err != nil {
		return count, fmt.Errorf("failed to list remaining chunks: %w", err)
	}
	if len(remaining) == 0 && doc.Vectorized {
		doc.Vectorized = false
		doc.SetMeta(model.MetaVectorDeletedAt, time.Now().UTC().Format(time.RFC3339))
		if err := s.documentRepository.Update(doc); err != nil {
			return count, fmt.Errorf("failed to clear vectorized flag: %w", err)
		}
	}
	return count, nil
}

// ReconcileExpired finds vectorized documents whose validity window has
// closed (or not yet opened), deletes their chunks, and clears the
// flag. Idempotent: a reconciled document is no longer vectorized and
// will not be picked up again.
func (s *VectorizeService) ReconcileExpired(ctx context.Context, now time.Time) (int, error) {
	docs, err := s.documentRepository.ExpiredVectorized(now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired documents: %w", err)
	}

	reconciled := 0
	for _, doc := range docs {
		if !doc.WindowClosed(now) {
			continue
		}
		if _, err := s.DeleteChunksForDocument(ctx, doc.ID); err != nil {
			slog.Error("failed to reconcile expired document", "document_id", doc.ID, "error", err)
			continue
		}
		slog.Info("expired document reconciled", "document_id", doc.ID)
		reconciled++
	}
	return reconciled, nil
}

// deleteRemoteVectors asks the vector index to drop points. A remote
// failure never blocks local deletion; it is recorded on the document's
// metadata for operator visibility.
func (s *VectorizeService) deleteRemoteVectors(ctx context.Context, doc *model.Document, vectorIDs []string, taskID string) {
	if len(vectorIDs) == 0 {
		return
	}
	if err := s.index.DeletePoints(ctx, vectorIDs); err != nil {
		slog.Error("remote vector deletion failed", "document_id", doc.ID, "count", len(vectorIDs), "error", err)
		doc.SetMeta(model.MetaVectorDeleteError, err.Error())
		doc.SetMeta(model.MetaErrorTime, time.Now().UTC().Format(time.RFC3339))
		return
	}
	doc.SetMeta(model.MetaVectorDeletedAt, time.Now().UTC().Format(time.RFC3339))
	if taskID != "" {
		doc.SetMeta(model.MetaVectorDeletedByTask, taskID)
	}
}

// snapshotMetadata denormalizes document fields onto a chunk at
// chunking time. The snapshot is allowed to go stale.
func snapshotMetadata(doc *model.Document, totalChunks int) model.Metadata {
	m := model.Metadata{
		model.ChunkMetaDocumentTitle: doc.Title,
		model.ChunkMetaDocumentTags:  []string(doc.Tags),
		model.ChunkMetaTotalChunks:   totalChunks,
	}
	if doc.StartDate != nil {
		m[model.ChunkMetaStartDate] = doc.StartDate.UTC().Format(time.RFC3339)
	}
	if doc.EndDate != nil {
		m[model.ChunkMetaEndDate] = doc.EndDate.UTC().Format(time.RFC3339)
	}
	return m
}
