package chapterpipe

import (
	"regexp"
	"strings"
	"unicode"
)

// ExtractionQuality describes how usable the text extracted from a PDF is.
// A reviewer seeing NeedsOCR knows the chapters are likely empty or garbled
// because the book is scanned.
type ExtractionQuality struct {
	PageCount       int     `json:"page_count"`
	CharsPerPage    float64 `json:"chars_per_page"`
	PrintableRatio  float64 `json:"printable_ratio"`
	WordlikeRatio   float64 `json:"wordlike_ratio"`
	HasImageStreams bool    `json:"has_image_streams"`
	VisualRefCount  int     `json:"visual_ref_count"`
	Extractor       string  `json:"extractor"` // "rows", "content-stream" or "raw"
}

// NeedsOCR reports whether the PDF is probably image-only or badly encoded.
func (q *ExtractionQuality) NeedsOCR() bool {
	return (q.CharsPerPage < 50 && q.HasImageStreams) || q.PrintableRatio < 0.85
}

// HasVisualGap reports whether the text refers to figures the import cannot carry.
func (q *ExtractionQuality) HasVisualGap() bool {
	return q.VisualRefCount > 0 && q.HasImageStreams
}

func measureQuality(text string, pageCount int, hasImages bool, extractor string) *ExtractionQuality {
	q := &ExtractionQuality{
		PageCount:       pageCount,
		PrintableRatio:  computePrintableRatio(text),
		WordlikeRatio:   computeWordlikeRatio(text),
		HasImageStreams: hasImages,
		VisualRefCount:  countVisualRefs(text),
		Extractor:       extractor,
	}
	if pageCount > 0 {
		q.CharsPerPage = float64(runeLen(text)) / float64(pageCount)
	}
	return q
}

// computePrintableRatio returns the share of printable characters in text.
func computePrintableRatio(text string) float64 {
	if len(text) == 0 {
		return 1.0
	}
	total, printable := 0, 0
	for _, r := range text {
		total++
		if isGarbageRune(r) {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	return float64(printable) / float64(total)
}

// isGarbageRune matches runes that never belong in chapter text: private use
// area glyphs, the replacement character, a stray byte order mark, and
// control characters other than tab and line breaks.
func isGarbageRune(r rune) bool {
	switch {
	case r >= 0xE000 && r <= 0xF8FF:
		return true
	case r == 0xFFFD, r == 0xFEFF:
		return true
	case r == '\n', r == '\r', r == '\t':
		return false
	}
	return unicode.IsControl(r)
}

// computeWordlikeRatio returns the share of tokens 2 to 15 characters long.
func computeWordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	wordlike := 0
	for _, f := range fields {
		if n := runeLen(f); n >= 2 && n <= 15 {
			wordlike++
		}
	}
	return float64(wordlike) / float64(len(fields))
}

var visualRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(see|refer\s+to|ver|veja|cf\.?)\s+(the\s+|a\s+|o\s+)?(figure|fig\.?|figura|table|tabela|quadro|image|imagem|illustration|ilustra[çc][ãa]o|diagram|diagrama|graph|gr[áa]fico)\s*\d`),
	regexp.MustCompile(`(?i)\b(figure|fig\.|figura|table|tabela|quadro)\s+\d+`),
}

// countVisualRefs counts references to figures, tables and diagrams.
func countVisualRefs(text string) int {
	count := 0
	for _, pat := range visualRefPatterns {
		count += len(pat.FindAllStringIndex(text, -1))
	}
	return count
}
