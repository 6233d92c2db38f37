package chapterpipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	ledpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var errNoPDFText = errors.New("no text content found in PDF")

// pdfText is the page-ordered text of a PDF. starts[i] is the offset of page
// i+1 in text, so every page has an entry even when it holds no text.
type pdfText struct {
	text    string
	starts  []int
	title   string
	quality *ExtractionQuality
}

// segmentPDF extracts page text and cuts it at chapter markers. When no text
// layer can be read, the raw bytes are scanned instead.
func (p *Pipeline) segmentPDF(ctx context.Context, data []byte, batch *ChapterBatch) []candidate {
	pt, err := extractPDF(data)
	if err != nil {
		p.logger.Warn("pdf text extraction failed, scanning raw bytes", "error", err)
		raw, fallback := decodeText(data)
		batch.EncodingFallback = fallback
		p.applyQuality(batch, measureQuality(raw, 0, false, "raw"))
		return p.segmentPattern(raw, nil, batch)
	}
	batch.Title = pt.title
	p.applyQuality(batch, pt.quality)
	return p.segmentPattern(pt.text, pt.starts, batch)
}

func (p *Pipeline) applyQuality(batch *ChapterBatch, q *ExtractionQuality) {
	batch.Quality = q
	batch.NeedsOCR = q.NeedsOCR()
	if batch.NeedsOCR {
		p.logger.Info("pdf looks scanned, text may be incomplete",
			"extractor", q.Extractor,
			"pages", q.PageCount,
			"chars_per_page", q.CharsPerPage,
			"printable_ratio", q.PrintableRatio,
		)
	}
}

// extractPDF reads page text with the row-aware extractor and falls back to
// scanning content streams with pdfcpu. pdfcpu also reports image streams for
// the quality metrics.
func extractPDF(data []byte) (*pdfText, error) {
	pctx, perr := readPDFContext(data)

	pages, err := extractPDFRows(data)
	extractor := "rows"
	if err != nil || blank(pages) {
		if perr != nil {
			if err == nil {
				err = errNoPDFText
			}
			return nil, fmt.Errorf("rows: %v; pdfcpu: %w", err, perr)
		}
		pages = extractPDFStreams(pctx)
		extractor = "content-stream"
	}
	if blank(pages) {
		return nil, errNoPDFText
	}

	var sb strings.Builder
	pt := &pdfText{starts: make([]int, len(pages))}
	for i, page := range pages {
		pt.starts[i] = sb.Len()
		if page == "" {
			continue
		}
		sb.WriteString(page)
		sb.WriteByte('\n')
		if pt.title == "" {
			pt.title = firstLine(page)
		}
	}
	pt.text = sb.String()

	hasImages := false
	if pctx != nil {
		hasImages = detectImageStreams(pctx)
	}
	pt.quality = measureQuality(pt.text, len(pages), hasImages, extractor)
	return pt, nil
}

func blank(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	return true
}

// extractPDFRows returns one string per page, rows separated by newlines.
// The parser panics on some malformed files; that is reported as an error.
func extractPDFRows(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	r, err := ledpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	n := r.NumPage()
	pages = make([]string, n)
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var sb strings.Builder
		for _, row := range rows {
			line := joinRow(row.Content)
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		pages[i-1] = normalizeNewlines(sb.String())
	}
	return pages, nil
}

// joinRow concatenates the text runs of one row, inserting a space where runs
// are visibly apart.
func joinRow(texts []ledpdf.Text) string {
	var sb strings.Builder
	var prev *ledpdf.Text
	for i := range texts {
		t := &texts[i]
		if t.S == "" {
			continue
		}
		if prev != nil && t.X-(prev.X+prev.W) > 0.25*t.FontSize &&
			!strings.HasSuffix(prev.S, " ") && !strings.HasPrefix(t.S, " ") {
			sb.WriteByte(' ')
		}
		sb.WriteString(t.S)
		prev = t
	}
	return strings.TrimSpace(sb.String())
}

func readPDFContext(data []byte) (ctx *model.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()
	conf := model.NewDefaultConfiguration()
	ctx, err = api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	return ctx, nil
}

// extractPDFStreams scans every page's content stream for text operators.
func extractPDFStreams(ctx *model.Context) []string {
	pages := make([]string, ctx.PageCount)
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
		if err != nil || r == nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil || len(data) == 0 {
			continue
		}
		pages[pageNr-1] = extractTextFromStream(data)
	}
	return pages
}

// detectImageStreams checks if the PDF contains image XObjects.
func detectImageStreams(ctx *model.Context) bool {
	if ctx.Optimize != nil {
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
				return true
			}
		}
	}
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

// pdfStringRe matches PDF string literals, escaped parentheses included.
var pdfStringRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)

// extractTextFromStream reads text-showing operators from a content stream.
// Line-moving operators start a new line so chapter headings stay on their own.
func extractTextFromStream(data []byte) string {
	var sb strings.Builder
	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(pdfString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("'")), bytes.HasSuffix(line, []byte(`"`)):
			newline()
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(pdfString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")),
			bytes.Equal(line, []byte("T*")), bytes.Equal(line, []byte("ET")):
			newline()
		}
	}

	var out []string
	for _, l := range strings.Split(sb.String(), "\n") {
		if l, _ = NormalizeContent(l, 0); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// pdfString decodes a literal string operand. Bytes that are not UTF-8 are
// read as UTF-16 when they carry a byte order mark and as Windows-1252
// otherwise, the closest match to PDFDocEncoding.
func pdfString(raw []byte) string {
	text, _ := decodeText([]byte(decodePDFString(raw)))
	return text
}

// decodePDFString handles PDF literal string escapes.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] < '0' || raw[i] > '7' {
				sb.WriteByte(raw[i])
				continue
			}
			// Octal escape, up to three digits (e.g. \040 for space).
			val := int(raw[i] - '0')
			for k := 0; k < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; k++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

// firstLine returns the first non-empty line of text, bounded to 200 characters.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return truncateRunes(line, 200)
		}
	}
	return ""
}
