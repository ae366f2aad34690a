package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"github.com/kolade-dev/pagetutor/internal/core"
)

// ErrNoText means no tier of extraction produced any text at all. The state
// machine treats it as document-fatal.
var ErrNoText = errors.New("no extractable text in document")

// PDFExtractor extracts per-page text from a PDF buffer. Extraction degrades
// through three tiers: a page-aware walk with row-grouped lines, then a
// form-feed split of the flattened full text, then the whole text as page 1.
// Page-aware parsing is fragile against malformed files, so every tier
// shields callers from the parser's panics.
type PDFExtractor struct{}

var _ core.PageExtractor = (*PDFExtractor)(nil)

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

func (e *PDFExtractor) ExtractPages(buf []byte) ([]core.PageText, error) {
	if len(buf) == 0 {
		return nil, ErrNoText
	}

	pages, err := extractPageAware(buf)
	if err == nil && len(pages) > 0 {
		return pages, nil
	}
	if err != nil {
		log.Warn().Err(err).Msg("page-aware extraction failed, falling back to flat text")
	}

	flat, err := extractFlatText(buf)
	if err != nil || strings.TrimSpace(flat) == "" {
		return nil, ErrNoText
	}

	var out []core.PageText
	for i, pageText := range strings.Split(flat, "\f") {
		out = append(out, core.PageText{
			Number: i + 1,
			Text:   pageText,
		})
	}
	if len(out) == 0 {
		// Whole buffer as page 1.
		out = []core.PageText{{Number: 1, Text: flat}}
	}
	return out, nil
}

// extractPageAware walks the document's page objects so page boundaries are
// exact and text arrives grouped by visual row, giving the chunker 1-based
// line numbers to work with.
func extractPageAware(buf []byte) (pages []core.PageText, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, core.PageText{Number: i})
			continue
		}

		lines, rowErr := pageLines(page)
		if rowErr != nil {
			// Row grouping failed for this page only; keep the page with
			// plain text and no line numbers.
			text, plainErr := page.GetPlainText(nil)
			if plainErr != nil {
				pages = append(pages, core.PageText{Number: i})
				continue
			}
			pages = append(pages, core.PageText{Number: i, Text: text})
			continue
		}

		pages = append(pages, core.PageText{
			Number:    i,
			Text:      strings.Join(lines, "\n"),
			Lines:     lines,
			LineAware: true,
		})
	}

	if !anyText(pages) {
		return nil, ErrNoText
	}
	return pages, nil
}

func pageLines(page pdf.Page) (lines []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			lines, err = nil, fmt.Errorf("row extraction panic: %v", r)
		}
	}()

	rows, err := page.GetTextByRow()
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		var b strings.Builder
		for _, word := range row.Content {
			b.WriteString(word.S)
		}
		lines = append(lines, b.String())
	}
	return lines, nil
}

func extractFlatText(buf []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	r, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("flat text: %w", err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func anyText(pages []core.PageText) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}
