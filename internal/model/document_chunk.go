package model

import (
	"time"
)

// Recognized DocumentChunk.Metadata keys. Chunk metadata is a
// point-in-time snapshot of the owning document taken at chunking time;
// it is intentionally allowed to go stale.
const (
	ChunkMetaFileID        = "file_id"
	ChunkMetaFileName      = "file_name"
	ChunkMetaFileType      = "file_type"
	ChunkMetaTotalChunks   = "total_chunks"
	ChunkMetaDocumentTitle = "document_title"
	ChunkMetaDocumentTags  = "document_tags"
	ChunkMetaStartDate     = "document_start_date"
	ChunkMetaEndDate       = "document_end_date"
	ChunkMetaIsSummary     = "is_summary"
	ChunkMetaPage          = "page"
)

// DocumentChunk is a contiguous fragment of extracted text. FileID is
// nil when the chunk came from the document summary rather than a
// specific file. (document_id, file_id, chunk_index) defines a strict
// restartable order.
type DocumentChunk struct {
	ID               string    `db:"id"`
	DocumentID       string    `db:"document_id"`
	FileID           *string   `db:"file_id"`
	ChunkText        string    `db:"chunk_text"`
	ChunkIndex       int       `db:"chunk_index"`
	VectorID         *string   `db:"vector_id"` // nil while the vector backend is unimplemented
	EmbeddingModel   string    `db:"embedding_model"`
	EmbeddingVersion string    `db:"embedding_version"`
	Metadata         Metadata  `db:"metadata"`
	CreatedAt        time.Time `db:"created_at"`
}
