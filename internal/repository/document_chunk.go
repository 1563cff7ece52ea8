package repository

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/doclane/doclane/internal/model"
)

type ChunkRepository interface {
	// CreateBatch inserts all chunks in one transaction; any failure
	// rolls the whole batch back.
	CreateBatch(chunks []*model.DocumentChunk) error
	ByDocument(documentID string) ([]*model.DocumentChunk, error)
	ByFile(fileID string) ([]*model.DocumentChunk, error)
	// VectorIDsByDocument returns the non-null vector ids of a
	// document's chunks, for best-effort remote index cleanup.
	VectorIDsByDocument(documentID string) ([]string, error)
	VectorIDsByFile(fileID string) ([]string, error)
	DeleteByDocument(documentID string) (int64, error)
	DeleteByFile(fileID string) (int64, error)
	// DeleteSummaryChunks removes only the chunks with a null file id.
	DeleteSummaryChunks(documentID string) (int64, error)
}

type chunkRepository struct {
	db *sqlx.DB
}

func NewChunkRepository(db *sqlx.DB) *chunkRepository {
	return &chunkRepository{db: db}
}

func (r *chunkRepository) CreateBatch(chunks []*model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}

	query := `INSERT INTO document_chunks (id, document_id, file_id, chunk_text, chunk_index, vector_id, embedding_model, embedding_version, metadata, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for _, c := range chunks {
		_, err = tx.Exec(query,
			c.ID,
			c.DocumentID,
			c.FileID,
			c.ChunkText,
			c.ChunkIndex,
			c.VectorID,
			c.EmbeddingModel,
			c.EmbeddingVersion,
			c.Metadata,
			c.CreatedAt,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
		}
	}

	return tx.Commit()
}

func (r *chunkRepository) ByDocument(documentID string) ([]*model.DocumentChunk, error) {
	var chunks []*model.DocumentChunk
	query := `SELECT * FROM document_chunks WHERE document_id = $1 ORDER BY file_id, chunk_index`

	err := r.db.Select(&chunks, query, documentID)
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

func (r *chunkRepository) ByFile(fileID string) ([]*model.DocumentChunk, error) {
	var chunks []*model.DocumentChunk
	query := `SELECT * FROM document_chunks WHERE file_id = $1 ORDER BY chunk_index`

	err := r.db.Select(&chunks, query, fileID)
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

func (r *chunkRepository) VectorIDsByDocument(documentID string) ([]string, error) {
	var ids []string
	query := `SELECT vector_id FROM document_chunks WHERE document_id = $1 AND vector_id IS NOT NULL`

	err := r.db.Select(&ids, query, documentID)
	if err != nil {
		return nil, err
	}

	return ids, nil
}

func (r *chunkRepository) VectorIDsByFile(fileID string) ([]string, error) {
	var ids []string
	query := `SELECT vector_id FROM document_chunks WHERE file_id = $1 AND vector_id IS NOT NULL`

	err := r.db.Select(&ids, query, fileID)
	if err != nil {
		return nil, err
	}

	return ids, nil
}

func (r *chunkRepository) DeleteByDocument(documentID string) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *chunkRepository) DeleteByFile(fileID string) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM document_chunks WHERE file_id = $1`, fileID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *chunkRepository) DeleteSummaryChunks(documentID string) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM document_chunks WHERE document_id = $1 AND file_id IS NULL`, documentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
