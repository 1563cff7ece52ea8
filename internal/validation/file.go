package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// documentExtensions is the upload allow-list. Storage keys are always
// generated, so the extension is the only user-controlled part of a
// stored path.
var documentExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".doc":  true,
	".txt":  true,
	".md":   true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".xlsx": true,
	".pptx": true,
	".zip":  true,
}

// ValidateDocumentFilename checks an uploaded filename against the
// document extension allow-list.
func ValidateDocumentFilename(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return fmt.Errorf("file %q has no extension", filename)
	}
	if !documentExtensions[ext] {
		return fmt.Errorf("file extension %q is not allowed", ext)
	}
	return nil
}
