package extract

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclane/doclane/internal/storage"
)

func TestTextPlainFile(t *testing.T) {
	store := storage.NewMemStore()
	content := "hello from a plain text file"
	require.NoError(t, store.Put(context.Background(), "doc.txt", strings.NewReader(content), int64(len(content)), "text/plain"))

	ex := NewExtractor(store)
	text, err := ex.Text(context.Background(), "doc.txt", "txt")
	require.NoError(t, err)
	assert.Equal(t, content, text)
}

func TestTextUnsupportedType(t *testing.T) {
	store := storage.NewMemStore()
	require.NoError(t, store.Put(context.Background(), "app.exe", strings.NewReader("MZ"), 2, "application/octet-stream"))

	ex := NewExtractor(store)
	_, err := ex.Text(context.Background(), "app.exe", "exe")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestTextMissingObject(t *testing.T) {
	ex := NewExtractor(storage.NewMemStore())
	_, err := ex.Text(context.Background(), "gone.txt", "txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTextIsDeterministic(t *testing.T) {
	store := storage.NewMemStore()
	content := "same bytes, same text, every time"
	require.NoError(t, store.Put(context.Background(), "doc.txt", strings.NewReader(content), int64(len(content)), "text/plain"))

	ex := NewExtractor(store)
	first, err := ex.Text(context.Background(), "doc.txt", "txt")
	require.NoError(t, err)
	second, err := ex.Text(context.Background(), "doc.txt", "txt")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMarkdownTextDropsFormatting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("# Title\n\nSome **bold** text with a [link](https://example.com).\n\n- item one\n- item two\n"), 0644))

	text, err := markdownText(path)
	require.NoError(t, err)
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "Some bold text with a link.")
	assert.Contains(t, text, "item one")
	assert.NotContains(t, text, "**")
	assert.NotContains(t, text, "https://example.com")
}

func TestTextMarkdownFile(t *testing.T) {
	store := storage.NewMemStore()
	content := "# Heading\n\nbody text"
	require.NoError(t, store.Put(context.Background(), "doc.md", strings.NewReader(content), int64(len(content)), "text/markdown"))

	ex := NewExtractor(store)
	text, err := ex.Text(context.Background(), "doc.md", "md")
	require.NoError(t, err)
	assert.Contains(t, text, "Heading")
	assert.Contains(t, text, "body text")
}

func TestDocxTextParagraphs(t *testing.T) {
	path := writeTestDocx(t, `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
    <w:p></w:p>
  </w:body>
</w:document>`)

	text, err := docxText(path)
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", text)
}

func TestDocxTextMissingDocumentPart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/other.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<x/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = docxText(path)
	assert.Error(t, err)
}

func writeTestDocx(t *testing.T, documentXML string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}
