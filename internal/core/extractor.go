package core

// PageText is the extracted text of one physical page, in page order.
// Lines is populated only when extraction was line-aware; Text is always the
// full page text. LineAware tells the chunker which mode to use.
type PageText struct {
	Number    int
	Text      string
	Lines     []string
	LineAware bool
}

// PageExtractor turns a raw document byte buffer into an ordered sequence of
// per-page texts. Implementations degrade gracefully: a merely imperfect
// document should still yield pages, and only a document with no extractable
// text at all is an error.
type PageExtractor interface {
	ExtractPages(buf []byte) ([]PageText, error)
}
