package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/doclane/doclane/internal/model"
)

var (
	ErrFileNotFound      = errors.New("document file not found")
	ErrInvalidTransition = errors.New("invalid processing status transition")
)

type DocumentFileRepository interface {
	Create(file *model.DocumentFile) error
	ByID(id string) (*model.DocumentFile, error)
	ByDocument(documentID string) ([]*model.DocumentFile, error)
	CountByDocument(documentID string) (int, error)
	Update(file *model.DocumentFile) error
	// UpdateStatus moves the processing status along the legal paths
	// (pending→processing→completed|failed, failed→processing) and
	// merges extra metadata in the same write. Any other transition is
	// rejected with ErrInvalidTransition.
	UpdateStatus(id, to, errorMessage string, extra model.Metadata) (*model.DocumentFile, error)
	Delete(id string) error
}

type documentFileRepository struct {
	db *sqlx.DB
}

func NewDocumentFileRepository(db *sqlx.DB) *documentFileRepository {
	return &documentFileRepository{db: db}
}

func (r *documentFileRepository) Create(file *model.DocumentFile) error {
	query := `INSERT INTO document_files (id, document_id, storage_path, original_filename, file_type, file_size, content_type, processing_status, error_message, metadata, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(query,
		file.ID,
		file.DocumentID,
		file.StoragePath,
		file.OriginalFilename,
		file.FileType,
		file.FileSize,
		file.ContentType,
		file.ProcessingStatus,
		file.ErrorMessage,
		file.Metadata,
		file.CreatedAt,
		file.UpdatedAt,
	)

	return err
}

func (r *documentFileRepository) ByID(id string) (*model.DocumentFile, error) {
	file := &model.DocumentFile{}
	query := `SELECT * FROM document_files WHERE id = $1`

	err := r.db.Get(file, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrFileNotFound
	}

	return file, err
}

func (r *documentFileRepository) ByDocument(documentID string) ([]*model.DocumentFile, error) {
	var files []*model.DocumentFile
	query := `SELECT * FROM document_files WHERE document_id = $1 ORDER BY created_at`

	err := r.db.Select(&files, query, documentID)
	if err != nil {
		return nil, err
	}

	return files, nil
}

func (r *documentFileRepository) CountByDocument(documentID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM document_files WHERE document_id = $1`

	err := r.db.Get(&count, query, documentID)
	return count, err
}

func (r *documentFileRepository) Update(file *model.DocumentFile) error {
	file.UpdatedAt = time.Now().UTC()
	query := `UPDATE document_files
	          SET storage_path = $1, original_filename = $2, file_type = $3, file_size = $4,
	              content_type = $5, processing_status = $6, error_message = $7, metadata = $8, updated_at = $9
	          WHERE id = $10`

	res, err := r.db.Exec(query,
		file.StoragePath,
		file.OriginalFilename,
		file.FileType,
		file.FileSize,
		file.ContentType,
		file.ProcessingStatus,
		file.ErrorMessage,
		file.Metadata,
		file.UpdatedAt,
		file.ID,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err == nil && rows == 0 {
		return ErrFileNotFound
	}

	return err
}

func (r *documentFileRepository) UpdateStatus(id, to, errorMessage string, extra model.Metadata) (*model.DocumentFile, error) {
	file, err := r.ByID(id)
	if err != nil {
		return nil, err
	}

	if !model.ValidFileTransition(file.ProcessingStatus, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, file.ProcessingStatus, to)
	}

	file.ProcessingStatus = to
	file.ErrorMessage = errorMessage
	for k, v := range extra {
		file.SetMeta(k, v)
	}

	err = r.Update(file)
	if err != nil {
		return nil, err
	}

	return file, nil
}

func (r *documentFileRepository) Delete(id string) error {
	query := `DELETE FROM document_files WHERE id = $1`
	_, err := r.db.Exec(query, id)
	return err
}
