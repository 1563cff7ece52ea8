package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/doclane/doclane/internal/model"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
)

type DocumentRepository interface {
	Create(doc *model.Document) error
	ByID(id string) (*model.Document, error)
	ByUser(userID string) ([]*model.Document, error)
	ByStatus(status string) ([]*model.Document, error)
	Update(doc *model.Document) error
	// ExpiredVectorized returns vectorized documents whose validity
	// window excludes now (end date passed or start date not reached).
	ExpiredVectorized(now time.Time) ([]*model.Document, error)
	IncrementViewCount(id string) error
	IncrementDownloadCount(id string) error
	Delete(id string) error
}

type documentRepository struct {
	db *sqlx.DB
}

func NewDocumentRepository(db *sqlx.DB) *documentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(doc *model.Document) error {
	query := `INSERT INTO documents (id, title, summary, tags, status, user_id, is_public, start_date, end_date, view_count, download_count, vectorized, metadata, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.db.Exec(query,
		doc.ID,
		doc.Title,
		doc.Summary,
		doc.Tags,
		doc.Status,
		doc.UserID,
		doc.IsPublic,
		doc.StartDate,
		doc.EndDate,
		doc.ViewCount,
		doc.DownloadCount,
		doc.Vectorized,
		doc.Metadata,
		doc.CreatedAt,
		doc.UpdatedAt,
	)

	return err
}

func (r *documentRepository) ByID(id string) (*model.Document, error) {
	doc := &model.Document{}
	query := `SELECT * FROM documents WHERE id = $1`

	err := r.db.Get(doc, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrDocumentNotFound
	}

	return doc, err
}

func (r *documentRepository) ByUser(userID string) ([]*model.Document, error) {
	var docs []*model.Document
	query := `SELECT * FROM documents WHERE user_id = $1 ORDER BY created_at DESC`

	err := r.db.Select(&docs, query, userID)
	if err != nil {
		return nil, err
	}

	return docs, nil
}

func (r *documentRepository) ByStatus(status string) ([]*model.Document, error) {
	var docs []*model.Document
	query := `SELECT * FROM documents WHERE status = $1 ORDER BY created_at DESC`

	err := r.db.Select(&docs, query, status)
	if err != nil {
		return nil, err
	}

	return docs, nil
}

func (r *documentRepository) Update(doc *model.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	query := `UPDATE documents
	          SET title = $1, summary = $2, tags = $3, status = $4, is_public = $5,
	              start_date = $6, end_date = $7, vectorized = $8, metadata = $9, updated_at = $10
	          WHERE id = $11`

	res, err := r.db.Exec(query,
		doc.Title,
		doc.Summary,
		doc.Tags,
		doc.Status,
		doc.IsPublic,
		doc.StartDate,
		doc.EndDate,
		doc.Vectorized,
		doc.Metadata,
		doc.UpdatedAt,
		doc.ID,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err == nil && rows == 0 {
		return ErrDocumentNotFound
	}

	return err
}

func (r *documentRepository) ExpiredVectorized(now time.Time) ([]*model.Document, error) {
	var docs []*model.Document
	query := `SELECT * FROM documents
	          WHERE vectorized = TRUE
	            AND ((end_date IS NOT NULL AND end_date < $1)
	              OR (start_date IS NOT NULL AND start_date > $2))`

	err := r.db.Select(&docs, query, now, now)
	if err != nil {
		return nil, err
	}

	return docs, nil
}

// Counter bumps are single atomic UPDATEs; concurrent requests never
// lose increments, though readers may briefly see a stale value.
func (r *documentRepository) IncrementViewCount(id string) error {
	_, err := r.db.Exec(`UPDATE documents SET view_count = view_count + 1 WHERE id = $1`, id)
	return err
}

func (r *documentRepository) IncrementDownloadCount(id string) error {
	_, err := r.db.Exec(`UPDATE documents SET download_count = download_count + 1 WHERE id = $1`, id)
	return err
}

func (r *documentRepository) Delete(id string) error {
	query := `DELETE FROM documents WHERE id = $1`
	_, err := r.db.Exec(query, id)
	return err
}
