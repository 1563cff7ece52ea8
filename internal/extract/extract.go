package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"

	"github.com/doclane/doclane/internal/storage"
)

// ErrUnsupportedType is returned for file types the engine cannot read.
var ErrUnsupportedType = errors.New("unsupported file type")

// Extractor turns stored files into plain text. Files are downloaded to
// a temporary local copy which is removed on every exit path.
type Extractor struct {
	store storage.ObjectStore
}

func NewExtractor(store storage.ObjectStore) *Extractor {
	return &Extractor{store: store}
}

// Text downloads the object at storageKey and extracts its text
// according to the declared file type. Page boundaries are preserved as
// double newlines for PDFs, paragraph boundaries as single newlines for
// DOCX.
func (e *Extractor) Text(ctx context.Context, storageKey, fileType string) (string, error) {
	body, _, err := e.store.StreamGet(ctx, storageKey)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", storageKey, err)
	}
	defer func() { _ = body.Close() }()

	tmp, err := os.CreateTemp("", "doclane-extract-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	_, err = io.Copy(tmp, body)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	switch strings.ToLower(fileType) {
	case "pdf":
		return pdfText(ctx, tmpPath)
	case "docx":
		return docxText(tmpPath)
	case "md":
		return markdownText(tmpPath)
	case "txt":
		b, err := os.ReadFile(tmpPath)
		if err != nil {
			return "", fmt.Errorf("failed to read text file: %w", err)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
}

// pdfText extracts one string per page and joins pages with double
// newlines so downstream chunking can still see page boundaries.
func pdfText(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat pdf: %w", err)
	}

	docs, err := documentloaders.NewPDF(f, info.Size()).Load(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to parse pdf: %w", err)
	}

	pages := make([]string, 0, len(docs))
	for _, d := range docs {
		pages = append(pages, d.PageContent)
	}
	return strings.Join(pages, "\n\n"), nil
}
