// Package pdf extracts per-page plain text from PDF bytes, keeping the
// 1-indexed page numbers that chunk provenance is built from.
package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/docquery/pkg/models"
)

// Extractor parses PDF documents held in memory.
type Extractor struct{}

// NewExtractor returns a PDF extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractPages returns the text of every extractable page. Pages that
// are null or fail text extraction are skipped with a warning; page
// numbers of the surviving entries are the real 1-indexed positions in
// the document, so gaps are visible downstream.
func (e *Extractor) ExtractPages(name string, data []byte) ([]models.PageText, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf %s: %w", name, err)
	}

	pageCount := reader.NumPage()
	pages := make([]models.PageText, 0, pageCount)

	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn().Err(err).Str("file", name).Int("page", i).Msg("skipping unextractable page")
			continue
		}

		text = normalizeWhitespace(text)
		if text == "" {
			continue
		}

		pages = append(pages, models.PageText{PageNumber: i, Text: text})
	}

	return pages, nil
}

// normalizeWhitespace collapses runs of whitespace to single spaces.
// PDF text extraction produces erratic spacing and line breaks that
// would otherwise skew tokenization.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
