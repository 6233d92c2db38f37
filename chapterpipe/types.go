package chapterpipe

// Format identifies the declared type of an uploaded document.
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatEPUB    Format = "epub"
	FormatText    Format = "text"
	FormatUnknown Format = "unknown"
)

// Strategy names the segmentation strategy that produced a batch.
const (
	StrategyText    = "text"
	StrategyPattern = "pattern"
	StrategyEPUB    = "epub"
)

// UploadedDocument is the raw input of one import. It is not modified by the
// pipeline.
type UploadedDocument struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// DraftChapter is one chapter proposed for human review. Order is dense and
// zero-based within a batch; ID is only stable for the run that produced it.
type DraftChapter struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Order     int    `json:"order"`
	Truncated bool   `json:"truncated"`
	HTML      string `json:"html,omitempty"`   // sanitized markup, EPUB only
	Source    string `json:"source,omitempty"` // spine href or page range
}

// ChapterBatch is the ordered output of one import.
type ChapterBatch struct {
	Chapters []DraftChapter `json:"chapters"`
	Format   Format         `json:"format"`
	Strategy string         `json:"strategy"`

	// Title is the book title found in the document, if any: EPUB metadata
	// or the first line of a PDF.
	Title string `json:"title,omitempty"`

	// Degraded is set when no structure was found and the whole document was
	// wrapped as a single chapter.
	Degraded bool `json:"degraded"`

	// EncodingFallback is set when the text was not valid UTF-8 and was
	// decoded as Windows-1252 instead.
	EncodingFallback bool `json:"encoding_fallback,omitempty"`

	// Dropped counts candidate chapters discarded by the chapter cap.
	Dropped int `json:"dropped,omitempty"`

	Quality *ExtractionQuality `json:"quality,omitempty"` // PDF only

	// NeedsOCR is set when the PDF looks scanned or badly encoded, so the
	// chapters are likely empty or garbled.
	NeedsOCR bool `json:"needs_ocr,omitempty"`
}

// Len returns the number of chapters in the batch.
func (b *ChapterBatch) Len() int { return len(b.Chapters) }
