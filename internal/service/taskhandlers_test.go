package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclane/doclane/internal/model"
	"github.com/doclane/doclane/internal/retry"
	"github.com/doclane/doclane/internal/task"
	"github.com/doclane/doclane/internal/vectorindex"
)

type handlerFixture struct {
	*uploadFixture
	chunks   *fakeChunkRepo
	handlers *TaskHandlers
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	uf := newUploadFixture(t)
	chunks := newFakeChunkRepo()
	vec := NewVectorizeService(uf.docs, uf.files, chunks,
		&fakeExtractor{texts: map[string]string{}}, vectorindex.Noop{}, 512, 50, 1000)

	h := NewTaskHandlers(uf.files, uf.store, uf.staging, vec)
	h.uploadRetry = retry.Policy{MaxAttempts: 3, Delay: time.Millisecond}
	h.verifyRetry = retry.Policy{MaxAttempts: 3, Delay: time.Millisecond}
	return &handlerFixture{uploadFixture: uf, chunks: chunks, handlers: h}
}

// Full deferred round trip: two files accepted, both tasks executed,
// both rows completed and both objects stored with matching sizes.
func TestDeferredUploadRoundTrip(t *testing.T) {
	f := newHandlerFixture(t)
	f.createDocument(t, "doc-1")

	contents := map[string]string{
		"report.pdf": "%PDF-1.4 pretend report body",
		"notes.txt":  "meeting notes",
	}
	results, err := f.svc.AcceptBatch(context.Background(),
		[]FileUpload{upload("report.pdf", contents["report.pdf"]), upload("notes.txt", contents["notes.txt"])},
		"user-1", "doc-1", true)
	require.NoError(t, err)
	require.Len(t, f.enqueuer.tasks, 2)

	for _, tk := range f.enqueuer.tasks {
		result, err := f.handlers.HandleUpload(context.Background(), tk)
		require.NoError(t, err)
		assert.Equal(t, tk.FileID, result["file_id"])
	}

	for _, res := range results {
		file, err := f.files.ByID(res.FileID)
		require.NoError(t, err)
		assert.Equal(t, model.FileStatusCompleted, file.ProcessingStatus)
		assert.NotEmpty(t, file.Metadata[model.FileMetaUploadCompletedAt])

		info, err := f.store.Stat(context.Background(), res.StorageKey)
		require.NoError(t, err)
		assert.Equal(t, int64(len(contents[res.Filename])), info.Size)
	}
	assert.Equal(t, 2, f.store.Len())
}

func TestHandleUploadRemovesStagingFile(t *testing.T) {
	f := newHandlerFixture(t)
	f.createDocument(t, "doc-1")

	_, err := f.svc.AcceptBatch(context.Background(),
		[]FileUpload{upload("notes.txt", "bytes")}, "user-1", "doc-1", true)
	require.NoError(t, err)

	tk := f.enqueuer.tasks[0]
	_, err = f.handlers.HandleUpload(context.Background(), tk)
	require.NoError(t, err)

	_, err = os.Stat(tk.StagingPath)
	assert.True(t, os.IsNotExist(err), "staging file should be gone after success")
}

func TestHandleUploadEmptyStagingFileFails(t *testing.T) {
	f := newHandlerFixture(t)
	f.createDocument(t, "doc-1")

	file := &model.DocumentFile{
		ID: "file-1", DocumentID: "doc-1", StoragePath: "key.txt",
		OriginalFilename: "empty.txt", FileType: "txt",
		ProcessingStatus: model.FileStatusProcessing,
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, f.files.Create(file))

	emptyPath := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(emptyPath, nil, 0644))

	_, err := f.handlers.HandleUpload(context.Background(), &task.Task{
		ID: "task-1", Type: task.TypeUploadFile,
		StagingPath: emptyPath, StorageKey: "key.txt",
		DocumentID: "doc-1", FileID: "file-1",
	})
	require.Error(t, err)

	got, err := f.files.ByID("file-1")
	require.NoError(t, err)
	assert.Equal(t, model.FileStatusFailed, got.ProcessingStatus)
	assert.NotEmpty(t, got.ErrorMessage)
	assert.NotEmpty(t, got.Metadata[model.FileMetaUploadError])
	assert.Zero(t, f.store.Len())
}

func TestHandleUploadRetriesTransientPutFailures(t *testing.T) {
	f := newHandlerFixture(t)
	f.createDocument(t, "doc-1")

	_, err := f.svc.AcceptBatch(context.Background(),
		[]FileUpload{upload("notes.txt", "eventually lands")}, "user-1", "doc-1", true)
	require.NoError(t, err)

	f.store.FailPuts = 2 // first two attempts fail, third succeeds
	tk := f.enqueuer.tasks[0]
	result, err := f.handlers.HandleUpload(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, int64(len("eventually lands")), result["size"])

	file, err := f.files.ByID(tk.FileID)
	require.NoError(t, err)
	assert.Equal(t, model.FileStatusCompleted, file.ProcessingStatus)
	assert.Equal(t, 3, file.Metadata[model.FileMetaUploadAttempts])
}

func TestHandleUploadExhaustedRetriesFails(t *testing.T) {
	f := newHandlerFixture(t)
	f.createDocument(t, "doc-1")

	_, err := f.svc.AcceptBatch(context.Background(),
		[]FileUpload{upload("notes.txt", "never lands")}, "user-1", "doc-1", true)
	require.NoError(t, err)

	f.store.FailPuts = 3
	tk := f.enqueuer.tasks[0]
	_, err = f.handlers.HandleUpload(context.Background(), tk)
	require.Error(t, err)

	file, err := f.files.ByID(tk.FileID)
	require.NoError(t, err)
	assert.Equal(t, model.FileStatusFailed, file.ProcessingStatus)
}

// A queue-level retry after a failed attempt must be able to finish:
// the first run marks the row failed, the second resumes it through
// processing and settles on completed.
func TestHandleUploadRetryAfterFailureCompletes(t *testing.T) {
	f := newHandlerFixture(t)
	f.createDocument(t, "doc-1")

	_, err := f.svc.AcceptBatch(context.Background(),
		[]FileUpload{upload("notes.txt", "lands on retry")}, "user-1", "doc-1", true)
	require.NoError(t, err)
	tk := f.enqueuer.tasks[0]

	f.store.FailPuts = 3
	_, err = f.handlers.HandleUpload(context.Background(), tk)
	require.Error(t, err)

	file, err := f.files.ByID(tk.FileID)
	require.NoError(t, err)
	require.Equal(t, model.FileStatusFailed, file.ProcessingStatus)

	// The staging file survives a failed run, so the retry re-reads it.
	result, err := f.handlers.HandleUpload(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, int64(len("lands on retry")), result["size"])

	file, err = f.files.ByID(tk.FileID)
	require.NoError(t, err)
	assert.Equal(t, model.FileStatusCompleted, file.ProcessingStatus)
	assert.Empty(t, file.ErrorMessage)
	assert.Equal(t, 1, f.store.Len())
}

// Retrying a task that already succeeded must not duplicate rows; the
// second run re-uploads the same key and settles on completed again.
func TestHandleUploadIsIdempotentAcrossRetries(t *testing.T) {
	f := newHandlerFixture(t)
	f.createDocument(t, "doc-1")

	_, err := f.svc.AcceptBatch(context.Background(),
		[]FileUpload{upload("notes.txt", "same bytes")}, "user-1", "doc-1", true)
	require.NoError(t, err)
	tk := f.enqueuer.tasks[0]

	// Re-stage because the first run deletes the staging file.
	_, err = f.handlers.HandleUpload(context.Background(), tk)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(tk.StagingPath, []byte("same bytes"), 0644))

	_, err = f.handlers.HandleUpload(context.Background(), tk)
	require.NoError(t, err)

	count, err := f.files.CountByDocument("doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, f.store.Len())
}
