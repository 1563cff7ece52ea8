package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclane/doclane/internal/model"
	"github.com/doclane/doclane/internal/staging"
	"github.com/doclane/doclane/internal/storage"
	"github.com/doclane/doclane/internal/task"
	"github.com/doclane/doclane/internal/vectorindex"
)

type documentFixture struct {
	docs     *fakeDocumentRepo
	files    *fakeFileRepo
	chunks   *fakeChunkRepo
	store    *storage.MemStore
	enqueuer *fakeEnqueuer
	svc      *DocumentService
}

func newDocumentFixture(t *testing.T) *documentFixture {
	t.Helper()
	area, err := staging.New(t.TempDir())
	require.NoError(t, err)

	f := &documentFixture{
		docs:     newFakeDocumentRepo(),
		files:    newFakeFileRepo(),
		chunks:   newFakeChunkRepo(),
		store:    storage.NewMemStore(),
		enqueuer: &fakeEnqueuer{},
	}
	vec := NewVectorizeService(f.docs, f.files, f.chunks,
		&fakeExtractor{texts: map[string]string{}}, vectorindex.Noop{}, 512, 50, 1000)
	f.svc = NewDocumentService(f.docs, f.files, f.store, area, f.enqueuer, vec, time.Hour)
	return f
}

func (f *documentFixture) seedCompletedFile(t *testing.T, fileID, docID, key, content string) {
	t.Helper()
	require.NoError(t, f.store.Put(context.Background(), key, strings.NewReader(content), int64(len(content)), "text/plain"))
	require.NoError(t, f.files.Create(&model.DocumentFile{
		ID: fileID, DocumentID: docID, StoragePath: key,
		OriginalFilename: key, FileType: "txt", FileSize: int64(len(content)),
		ProcessingStatus: model.FileStatusCompleted,
		CreatedAt:        time.Now().UTC(),
	}))
}

func TestCreateDocumentStartsPendingApproval(t *testing.T) {
	f := newDocumentFixture(t)
	doc, err := f.svc.Create("user-1", CreateDocumentInput{Title: "handbook", Tags: []string{"hr"}})
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusPending, doc.Status)
	assert.False(t, doc.Vectorized)
	assert.NotEmpty(t, doc.ID)
}

func TestApproveStampsAuditTrail(t *testing.T) {
	f := newDocumentFixture(t)
	doc, err := f.svc.Create("user-1", CreateDocumentInput{Title: "a"})
	require.NoError(t, err)

	res := f.svc.Approve("admin-1", []string{doc.ID})
	assert.Equal(t, []string{doc.ID}, res.Succeeded)
	assert.Nil(t, res.Failed)

	got, err := f.docs.ByID(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusApproved, got.Status)
	assert.Equal(t, "admin-1", got.Metadata[model.MetaApprovedBy])
	assert.NotEmpty(t, got.Metadata[model.MetaApprovedAt])
}

// Batch decisions report per-member outcomes instead of failing whole.
func TestApproveBatchPartialFailure(t *testing.T) {
	f := newDocumentFixture(t)
	doc, err := f.svc.Create("user-1", CreateDocumentInput{Title: "a"})
	require.NoError(t, err)

	res := f.svc.Approve("admin-1", []string{doc.ID, "no-such-doc"})
	assert.Equal(t, []string{doc.ID}, res.Succeeded)
	require.Contains(t, res.Failed, "no-such-doc")
}

func TestRejectRecordsReason(t *testing.T) {
	f := newDocumentFixture(t)
	doc, err := f.svc.Create("user-1", CreateDocumentInput{Title: "a"})
	require.NoError(t, err)

	res := f.svc.Reject("admin-1", []string{doc.ID}, "duplicate submission")
	assert.Equal(t, []string{doc.ID}, res.Succeeded)

	got, err := f.docs.ByID(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusRejected, got.Status)
	assert.Equal(t, "duplicate submission", got.Metadata[model.MetaRejectedReason])
}

func TestDeleteDocumentCascades(t *testing.T) {
	f := newDocumentFixture(t)
	doc, err := f.svc.Create("user-1", CreateDocumentInput{Title: "a"})
	require.NoError(t, err)
	f.seedCompletedFile(t, "file-1", doc.ID, "k1.txt", "one")
	f.seedCompletedFile(t, "file-2", doc.ID, "k2.txt", "two")

	fileID := "file-1"
	require.NoError(t, f.chunks.CreateBatch([]*model.DocumentChunk{{
		ID: "c1", DocumentID: doc.ID, FileID: &fileID, ChunkText: "x", CreatedAt: time.Now().UTC(),
	}}))

	require.NoError(t, f.svc.Delete(context.Background(), doc.ID))

	_, err = f.docs.ByID(doc.ID)
	assert.Error(t, err)
	count, err := f.files.CountByDocument(doc.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	remaining, err := f.chunks.ByDocument(doc.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	assert.Zero(t, f.store.Len())
}

func TestDeleteLastFileClearsVectorized(t *testing.T) {
	f := newDocumentFixture(t)
	doc, err := f.svc.Create("user-1", CreateDocumentInput{Title: "a"})
	require.NoError(t, err)
	f.seedCompletedFile(t, "file-1", doc.ID, "k1.txt", "only file")

	got, err := f.docs.ByID(doc.ID)
	require.NoError(t, err)
	got.Vectorized = true
	require.NoError(t, f.docs.Update(got))

	fileID := "file-1"
	require.NoError(t, f.chunks.CreateBatch([]*model.DocumentChunk{{
		ID: "c1", DocumentID: doc.ID, FileID: &fileID, ChunkText: "x", CreatedAt: time.Now().UTC(),
	}}))

	require.NoError(t, f.svc.DeleteFile(context.Background(), "file-1"))

	got, err = f.docs.ByID(doc.ID)
	require.NoError(t, err)
	assert.False(t, got.Vectorized)
	remaining, err := f.chunks.ByDocument(doc.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestDeleteFileKeepsVectorizedWhileSiblingsExist(t *testing.T) {
	f := newDocumentFixture(t)
	doc, err := f.svc.Create("user-1", CreateDocumentInput{Title: "a"})
	require.NoError(t, err)
	f.seedCompletedFile(t, "file-1", doc.ID, "k1.txt", "one")
	f.seedCompletedFile(t, "file-2", doc.ID, "k2.txt", "two")

	got, err := f.docs.ByID(doc.ID)
	require.NoError(t, err)
	got.Vectorized = true
	require.NoError(t, f.docs.Update(got))

	fileID2 := "file-2"
	require.NoError(t, f.chunks.CreateBatch([]*model.DocumentChunk{{
		ID: "c2", DocumentID: doc.ID, FileID: &fileID2, ChunkText: "x", CreatedAt: time.Now().UTC(),
	}}))

	require.NoError(t, f.svc.DeleteFile(context.Background(), "file-1"))

	got, err = f.docs.ByID(doc.ID)
	require.NoError(t, err)
	assert.True(t, got.Vectorized)
}

func TestReuploadOnlyFromFailed(t *testing.T) {
	f := newDocumentFixture(t)
	doc, err := f.svc.Create("user-1", CreateDocumentInput{Title: "a"})
	require.NoError(t, err)
	f.seedCompletedFile(t, "file-1", doc.ID, "k1.txt", "fine")

	_, err = f.svc.Reupload(context.Background(), "file-1", upload("k1.txt", "new bytes"))
	assert.ErrorIs(t, err, ErrNotReuploadable)
}

func TestReuploadFailedFileGoesBackToProcessing(t *testing.T) {
	f := newDocumentFixture(t)
	doc, err := f.svc.Create("user-1", CreateDocumentInput{Title: "a"})
	require.NoError(t, err)

	require.NoError(t, f.files.Create(&model.DocumentFile{
		ID: "file-1", DocumentID: doc.ID, StoragePath: "k1.txt",
		OriginalFilename: "k1.txt", FileType: "txt",
		ProcessingStatus: model.FileStatusFailed,
		ErrorMessage:     "verification failed",
		CreatedAt:        time.Now().UTC(),
	}))

	res, err := f.svc.Reupload(context.Background(), "file-1", upload("k1.txt", "fresh bytes"))
	require.NoError(t, err)
	assert.Equal(t, model.FileStatusProcessing, res.Status)
	assert.NotEmpty(t, res.TaskID)
	assert.Equal(t, "k1.txt", res.StorageKey, "reupload keeps the original storage key")

	got, err := f.files.ByID("file-1")
	require.NoError(t, err)
	assert.Equal(t, model.FileStatusProcessing, got.ProcessingStatus)
	require.Len(t, f.enqueuer.tasks, 1)
	assert.Equal(t, task.TypeUploadFile, f.enqueuer.tasks[0].Type)
}

func TestDownloadURLBumpsCounter(t *testing.T) {
	f := newDocumentFixture(t)
	doc, err := f.svc.Create("user-1", CreateDocumentInput{Title: "a"})
	require.NoError(t, err)
	f.seedCompletedFile(t, "file-1", doc.ID, "k1.txt", "content")

	url, err := f.svc.DownloadURL(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, "memory://k1.txt", url)

	got, err := f.docs.ByID(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.DownloadCount)
}

func TestDownloadURLRefusesIncompleteFile(t *testing.T) {
	f := newDocumentFixture(t)
	doc, err := f.svc.Create("user-1", CreateDocumentInput{Title: "a"})
	require.NoError(t, err)
	require.NoError(t, f.files.Create(&model.DocumentFile{
		ID: "file-1", DocumentID: doc.ID, StoragePath: "k1.txt",
		FileType: "txt", ProcessingStatus: model.FileStatusProcessing,
		CreatedAt: time.Now().UTC(),
	}))

	_, err = f.svc.DownloadURL(context.Background(), "file-1")
	assert.Error(t, err)
}

func TestRequestVectorizeStampsAuditTrail(t *testing.T) {
	f := newDocumentFixture(t)
	doc, err := f.svc.Create("user-1", CreateDocumentInput{Title: "a"})
	require.NoError(t, err)

	taskID, err := f.svc.RequestVectorize(context.Background(), doc.ID, false)
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)

	got, err := f.docs.ByID(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, taskID, got.Metadata[model.MetaVectorizeTaskID])
	assert.NotEmpty(t, got.Metadata[model.MetaVectorizeRequestedAt])
	require.Len(t, f.enqueuer.tasks, 1)
	assert.Equal(t, task.TypeVectorizeDocument, f.enqueuer.tasks[0].Type)
}

func TestSearchMatchesTitleSummaryTags(t *testing.T) {
	f := newDocumentFixture(t)
	_, err := f.svc.Create("user-1", CreateDocumentInput{Title: "Quarterly Report", Tags: []string{"finance"}})
	require.NoError(t, err)
	_, err = f.svc.Create("user-1", CreateDocumentInput{Title: "Onboarding", Summary: "new hire checklist"})
	require.NoError(t, err)

	byTitle, err := f.svc.Search("user-1", "quarterly")
	require.NoError(t, err)
	assert.Len(t, byTitle, 1)

	byTag, err := f.svc.Search("user-1", "FINANCE")
	require.NoError(t, err)
	assert.Len(t, byTag, 1)

	bySummary, err := f.svc.Search("user-1", "checklist")
	require.NoError(t, err)
	assert.Len(t, bySummary, 1)

	all, err := f.svc.Search("user-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
