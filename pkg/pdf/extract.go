// Package pdf extracts per-page text and document metadata from PDF
// bytes.
package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Document is the parsed form of a PDF: metadata plus a 1-based page
// number to text map. Title and Author fall back to the empty string
// when the document carries no metadata.
type Document struct {
	Title    string
	Author   string
	Pages    int
	PageText map[int]string
}

// Extractor parses PDF bytes into a Document.
type Extractor interface {
	Extract(data []byte) (*Document, error)
}

// DefaultExtractor parses with the ledongthuc/pdf reader.
type DefaultExtractor struct{}

// Extract parses the document. Pages whose text cannot be decoded are
// recorded as empty rather than failing the whole document.
func (DefaultExtractor) Extract(data []byte) (*Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	doc := &Document{
		Pages:    reader.NumPage(),
		PageText: make(map[int]string, reader.NumPage()),
	}

	info := reader.Trailer().Key("Info")
	if info.Kind() == pdf.Dict {
		doc.Title = infoString(info.Key("Title"))
		doc.Author = infoString(info.Key("Author"))
	}

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			doc.PageText[i] = ""
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			doc.PageText[i] = ""
			continue
		}
		doc.PageText[i] = strings.TrimSpace(text)
	}

	return doc, nil
}

func infoString(v pdf.Value) string {
	if v.Kind() != pdf.String {
		return ""
	}
	return strings.TrimSpace(v.RawString())
}
