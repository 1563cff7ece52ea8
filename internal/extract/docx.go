package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// docxText reads the main document part of a .docx archive and returns
// its paragraphs joined with newlines. A docx file is a zip containing
// WordprocessingML; text lives in <w:t> runs grouped into <w:p>
// paragraphs, which is all we need here.
func docxText(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer func() { _ = r.Close() }()

	var doc *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx has no word/document.xml")
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open document part: %w", err)
	}
	defer func() { _ = rc.Close() }()

	var b strings.Builder
	var paragraph strings.Builder

	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse document part: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				var text string
				err = dec.DecodeElement(&text, &t)
				if err != nil {
					return "", fmt.Errorf("failed to decode text run: %w", err)
				}
				paragraph.WriteString(text)
			}
		case xml.EndElement:
			if t.Name.Local == "p" {
				line := strings.TrimSpace(paragraph.String())
				if line != "" {
					b.WriteString(line)
					b.WriteString("\n")
				}
				paragraph.Reset()
			}
		}
	}

	return strings.TrimRight(b.String(), "\n"), nil
}
