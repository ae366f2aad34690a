package ingest

import (
	"strings"

	"github.com/kolade-dev/pagetutor/internal/core"
	"github.com/kolade-dev/pagetutor/internal/models"
)

// ChunkPages splits extracted pages into overlapping, size-bounded chunks.
// Pages with line information get 1-based line ranges; other pages fall back
// to a sliding character window with no line numbers. The result is
// deterministic for identical input.
//
// Line ranges are advisory: the overlap carried into the next chunk is
// measured in characters, and its line span is re-derived by walking line
// lengths backwards, which is an approximation whenever the overlap cuts a
// line in half.
func ChunkPages(pages []core.PageText, cfg Config) []models.Chunk {
	cfg = cfg.withDefaults()

	var chunks []models.Chunk
	for _, page := range pages {
		if page.LineAware {
			chunks = append(chunks, chunkLines(page.Number, page.Lines, cfg)...)
		} else {
			chunks = append(chunks, chunkWindow(page.Number, page.Text, cfg)...)
		}
	}
	return chunks
}

// chunkLines accumulates whole lines until the next line would push the
// buffer past MaxLen, then flushes and seeds the next buffer with the last
// Overlap characters of the flushed text.
func chunkLines(pageNum int, lines []string, cfg Config) []models.Chunk {
	var (
		chunks    []models.Chunk
		cur       []rune
		lineStart = 0
		lineEnd   = 0
	)

	flush := func() {
		text := strings.TrimSpace(string(cur))
		if text == "" {
			return
		}
		ls, le := lineStart+1, lineEnd+1
		chunks = append(chunks, models.Chunk{
			Page:      pageNum,
			LineStart: &ls,
			LineEnd:   &le,
			Text:      text,
		})
	}

	for idx, raw := range lines {
		line := []rune(raw + "\n")

		// A single line longer than MaxLen cannot be accumulated whole;
		// split it through the character window so no chunk exceeds the
		// size bound. Its pieces share one line number.
		if len(line) > cfg.MaxLen {
			flush()
			ln := idx + 1
			for _, piece := range chunkWindow(pageNum, raw, cfg) {
				piece.LineStart, piece.LineEnd = &ln, &ln
				chunks = append(chunks, piece)
			}
			cur = nil
			if idx+1 < len(lines) {
				overlap := cfg.Overlap
				if overlap > len(line) {
					overlap = len(line)
				}
				cur = append(cur, line[len(line)-overlap:]...)
			}
			lineStart, lineEnd = idx, idx
			continue
		}

		if len(cur)+len(line) > cfg.MaxLen && len(cur) > 0 {
			flush()

			overlap := cfg.Overlap
			if overlap > len(cur) {
				overlap = len(cur)
			}
			tail := cur[len(cur)-overlap:]
			cur = append(append([]rune{}, tail...), line...)
			lineStart = overlapLineStart(lines, lineEnd, overlap)
			lineEnd = idx
		} else {
			cur = append(cur, line...)
			lineEnd = idx
		}
	}

	flush()
	return chunks
}

// overlapLineStart walks backwards from the last line of the previous chunk,
// summing line lengths until the carried-over character count is covered.
func overlapLineStart(lines []string, lastLine, overlap int) int {
	covered := 0
	idx := lastLine
	for idx > 0 && covered < overlap {
		covered += len([]rune(lines[idx])) + 1
		if covered >= overlap {
			break
		}
		idx--
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// chunkWindow slides a fixed window of MaxLen characters with Overlap
// characters repeated between adjacent windows. The stride is clamped to at
// least one character so Overlap >= MaxLen cannot produce a non-advancing
// window.
func chunkWindow(pageNum int, text string, cfg Config) []models.Chunk {
	runes := []rune(text)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	stride := cfg.MaxLen - cfg.Overlap
	if stride < 1 {
		stride = cfg.MaxLen
	}

	var chunks []models.Chunk
	for start := 0; start < len(runes); start += stride {
		end := start + cfg.MaxLen
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, models.Chunk{
				Page: pageNum,
				Text: piece,
			})
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
