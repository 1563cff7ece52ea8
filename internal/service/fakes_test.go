package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doclane/doclane/internal/model"
	"github.com/doclane/doclane/internal/repository"
	"github.com/doclane/doclane/internal/task"
)

// In-memory repository fakes. They enforce the same invariants as the
// sqlx implementations (not-found sentinels, legal status transitions)
// so service tests exercise real behavior without a database.

type fakeDocumentRepo struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: map[string]*model.Document{}}
}

func (r *fakeDocumentRepo) Create(doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *fakeDocumentRepo) ByID(id string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrDocumentNotFound
	}
	cp := *doc
	return &cp, nil
}

func (r *fakeDocumentRepo) ByUser(userID string) ([]*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Document
	for _, d := range r.docs {
		if d.UserID == userID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeDocumentRepo) ByStatus(status string) ([]*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Document
	for _, d := range r.docs {
		if d.Status == status {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) Update(doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; !ok {
		return repository.ErrDocumentNotFound
	}
	doc.UpdatedAt = time.Now().UTC()
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *fakeDocumentRepo) ExpiredVectorized(now time.Time) ([]*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Document
	for _, d := range r.docs {
		if d.Vectorized && d.WindowClosed(now) {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) IncrementViewCount(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.docs[id]; ok {
		d.ViewCount++
	}
	return nil
}

func (r *fakeDocumentRepo) IncrementDownloadCount(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.docs[id]; ok {
		d.DownloadCount++
	}
	return nil
}

func (r *fakeDocumentRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}

type fakeFileRepo struct {
	mu    sync.Mutex
	files map[string]*model.DocumentFile
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{files: map[string]*model.DocumentFile{}}
}

func (r *fakeFileRepo) Create(file *model.DocumentFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *file
	r.files[file.ID] = &cp
	return nil
}

func (r *fakeFileRepo) ByID(id string) (*model.DocumentFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return nil, repository.ErrFileNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *fakeFileRepo) ByDocument(documentID string) ([]*model.DocumentFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.DocumentFile
	for _, f := range r.files {
		if f.DocumentID == documentID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeFileRepo) CountByDocument(documentID string) (int, error) {
	files, _ := r.ByDocument(documentID)
	return len(files), nil
}

func (r *fakeFileRepo) Update(file *model.DocumentFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[file.ID]; !ok {
		return repository.ErrFileNotFound
	}
	file.UpdatedAt = time.Now().UTC()
	cp := *file
	r.files[file.ID] = &cp
	return nil
}

func (r *fakeFileRepo) UpdateStatus(id, to, errorMessage string, extra model.Metadata) (*model.DocumentFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return nil, repository.ErrFileNotFound
	}
	if !model.ValidFileTransition(f.ProcessingStatus, to) {
		return nil, fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, f.ProcessingStatus, to)
	}
	f.ProcessingStatus = to
	f.ErrorMessage = errorMessage
	for k, v := range extra {
		f.SetMeta(k, v)
	}
	f.UpdatedAt = time.Now().UTC()
	cp := *f
	return &cp, nil
}

func (r *fakeFileRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, id)
	return nil
}

type fakeChunkRepo struct {
	mu     sync.Mutex
	chunks []*model.DocumentChunk
}

func newFakeChunkRepo() *fakeChunkRepo { return &fakeChunkRepo{} }

func (r *fakeChunkRepo) CreateBatch(chunks []*model.DocumentChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range chunks {
		cp := *c
		r.chunks = append(r.chunks, &cp)
	}
	return nil
}

func (r *fakeChunkRepo) ByDocument(documentID string) ([]*model.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.DocumentChunk
	for _, c := range r.chunks {
		if c.DocumentID == documentID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeChunkRepo) ByFile(fileID string) ([]*model.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.DocumentChunk
	for _, c := range r.chunks {
		if c.FileID != nil && *c.FileID == fileID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeChunkRepo) VectorIDsByDocument(documentID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.chunks {
		if c.DocumentID == documentID && c.VectorID != nil {
			out = append(out, *c.VectorID)
		}
	}
	return out, nil
}

func (r *fakeChunkRepo) VectorIDsByFile(fileID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.chunks {
		if c.FileID != nil && *c.FileID == fileID && c.VectorID != nil {
			out = append(out, *c.VectorID)
		}
	}
	return out, nil
}

func (r *fakeChunkRepo) DeleteByDocument(documentID string) (int64, error) {
	return r.deleteWhere(func(c *model.DocumentChunk) bool { return c.DocumentID == documentID })
}

func (r *fakeChunkRepo) DeleteByFile(fileID string) (int64, error) {
	return r.deleteWhere(func(c *model.DocumentChunk) bool { return c.FileID != nil && *c.FileID == fileID })
}

func (r *fakeChunkRepo) DeleteSummaryChunks(documentID string) (int64, error) {
	return r.deleteWhere(func(c *model.DocumentChunk) bool { return c.DocumentID == documentID && c.FileID == nil })
}

func (r *fakeChunkRepo) deleteWhere(match func(*model.DocumentChunk) bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*model.DocumentChunk
	var deleted int64
	for _, c := range r.chunks {
		if match(c) {
			deleted++
			continue
		}
		kept = append(kept, c)
	}
	r.chunks = kept
	return deleted, nil
}

// fakeEnqueuer records enqueued tasks without a queue.
type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*task.Task
	fail  bool
}

func (e *fakeEnqueuer) Enqueue(_ context.Context, t *task.Task) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return "", errors.New("queue unavailable")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	cp := *t
	e.tasks = append(e.tasks, &cp)
	return t.ID, nil
}

// fakeExtractor returns canned text per storage key.
type fakeExtractor struct {
	texts map[string]string
	errs  map[string]error
}

func (e *fakeExtractor) Text(_ context.Context, storageKey, _ string) (string, error) {
	if err, ok := e.errs[storageKey]; ok {
		return "", err
	}
	return e.texts[storageKey], nil
}

// recordingIndex captures vector deletions and can be made to fail.
type recordingIndex struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (i *recordingIndex) DeletePoints(_ context.Context, ids []string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	i.deleted = append(i.deleted, ids...)
	return nil
}
