package chapterpipe

import (
	"context"
	"strconv"
	"strings"
	"testing"
)

func TestSegmentPDF_ChapterMarkers(t *testing.T) {
	// WHAT: a two-page PDF with line-start markers yields one chapter per marker.
	// WHY: the front matter before the first marker must not become a chapter.
	raw := buildTextPDF([][]string{
		{"My Book", "Chapter 1: Start", "Once upon a time."},
		{"Chapter 2: End", "The end."},
	})

	pipe := New(Config{})
	batch, err := pipe.Import(context.Background(), &UploadedDocument{Name: "book.pdf", Data: raw})
	if err != nil {
		t.Fatal(err)
	}
	if batch.Format != FormatPDF || batch.Strategy != StrategyPattern {
		t.Fatalf("format=%s strategy=%s", batch.Format, batch.Strategy)
	}
	if batch.Degraded {
		t.Fatal("batch should not be degraded")
	}
	if len(batch.Chapters) != 2 {
		t.Fatalf("chapters = %d, want 2: %+v", len(batch.Chapters), batch.Chapters)
	}
	if batch.Chapters[0].Title != "Start" || batch.Chapters[1].Title != "End" {
		t.Errorf("titles = %q, %q", batch.Chapters[0].Title, batch.Chapters[1].Title)
	}
	if got := batch.Chapters[0].Content; got != "Chapter 1: Start Once upon a time." {
		t.Errorf("content[0] = %q", got)
	}
	if batch.Chapters[0].Source != "page 1" || batch.Chapters[1].Source != "page 2" {
		t.Errorf("sources = %q, %q", batch.Chapters[0].Source, batch.Chapters[1].Source)
	}
	if batch.Title != "My Book" {
		t.Errorf("title = %q", batch.Title)
	}

	q := batch.Quality
	if q == nil {
		t.Fatal("expected quality metrics")
	}
	if q.PageCount != 2 {
		t.Errorf("page count = %d", q.PageCount)
	}
	if q.Extractor != "rows" && q.Extractor != "content-stream" {
		t.Errorf("extractor = %q", q.Extractor)
	}
	if batch.NeedsOCR {
		t.Error("text PDF flagged for OCR")
	}
}

func TestSegmentPDF_NoMarkers(t *testing.T) {
	raw := buildTextPDF([][]string{{"Just some prose without headings."}})

	pipe := New(Config{})
	batch, err := pipe.Import(context.Background(), &UploadedDocument{Name: "essay.pdf", Data: raw})
	if err != nil {
		t.Fatal(err)
	}
	if !batch.Degraded || len(batch.Chapters) != 1 {
		t.Fatalf("degraded=%v chapters=%d", batch.Degraded, len(batch.Chapters))
	}
	if c := batch.Chapters[0]; c.Title != "Content" || c.Content != "Just some prose without headings." {
		t.Errorf("chapter = %+v", c)
	}
}

func TestSegmentPDF_ImageOnly(t *testing.T) {
	// WHAT: a PDF without a text layer degrades to one chapter.
	// WHY: scanned books must still import instead of failing.
	pipe := New(Config{})
	batch, err := pipe.Import(context.Background(), &UploadedDocument{Name: "scan.pdf", Data: buildImageOnlyPDF()})
	if err != nil {
		t.Fatal(err)
	}
	if !batch.Degraded || len(batch.Chapters) != 1 {
		t.Fatalf("degraded=%v chapters=%d", batch.Degraded, len(batch.Chapters))
	}
	if batch.Quality == nil || batch.Quality.Extractor != "raw" {
		t.Errorf("quality = %+v", batch.Quality)
	}
}

func TestSegmentPDF_NotAPDF(t *testing.T) {
	// A .pdf upload holding plain text is scanned for markers directly.
	text := "Capítulo 1: Início\nEra uma vez.\nCapítulo 2: Meio\nDepois."
	pipe := New(Config{})
	batch := pipe.Segment(context.Background(), FormatPDF, []byte(text))
	if batch.Strategy != StrategyPattern || len(batch.Chapters) != 2 {
		t.Fatalf("strategy=%s chapters=%d", batch.Strategy, len(batch.Chapters))
	}
	if batch.Quality == nil || batch.Quality.Extractor != "raw" {
		t.Errorf("quality = %+v", batch.Quality)
	}
}

func TestExtractTextFromStream(t *testing.T) {
	stream := []byte("BT\n/F1 12 Tf\n72 720 Td\n(Chapter 1) Tj\n0 -14 Td\n(Caf\\351 \\(open\\)) Tj\nET\n")
	got := extractTextFromStream(stream)
	want := "Chapter 1\nCafé (open)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDecodePDFString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`plain`, "plain"},
		{`a\(b\)`, "a(b)"},
		{`tab\there`, "tab\there"},
		{`sp\040ace`, "sp ace"},
		{`back\\slash`, `back\slash`},
		{`unknown\q`, "unknownq"},
	}
	for _, tt := range tests {
		if got := decodePDFString([]byte(tt.in)); got != tt.want {
			t.Errorf("decodePDFString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("\n  \n  Title here \nnext"); got != "Title here" {
		t.Errorf("got %q", got)
	}
	if got := firstLine(strings.Repeat("x", 300)); runeLen(got) != 200 {
		t.Errorf("len = %d", runeLen(got))
	}
}

// --- PDF test helpers ---

// buildTextPDF creates a valid PDF with one page per entry, each line of a
// page in its own text object positioned with Tm.
func buildTextPDF(pages [][]string) []byte {
	n := len(pages)
	// Objects: 1 catalog, 2 pages, 3 font, then page+contents pairs.
	total := 3 + 2*n

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, total+1)

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, n)
	for i := range pages {
		kids[i] = strconv.Itoa(4+2*i) + " 0 R"
	}
	offsets[2] = b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [" + strings.Join(kids, " ") + "] /Count " + strconv.Itoa(n) + " >>\nendobj\n")

	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>\nendobj\n")

	for i, lines := range pages {
		pageObj, contentObj := 4+2*i, 5+2*i

		var s strings.Builder
		for j, line := range lines {
			y := 720 - 20*j
			s.WriteString("BT\n/F1 12 Tf\n1 0 0 1 72 " + strconv.Itoa(y) + " Tm\n(" + escapePDF(line) + ") Tj\nET\n")
		}
		stream := strings.TrimSuffix(s.String(), "\n")

		offsets[pageObj] = b.Len()
		b.WriteString(strconv.Itoa(pageObj) + " 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents " +
			strconv.Itoa(contentObj) + " 0 R /Resources << /Font << /F1 3 0 R >> >> >>\nendobj\n")

		offsets[contentObj] = b.Len()
		b.WriteString(strconv.Itoa(contentObj) + " 0 obj\n<< /Length " + strconv.Itoa(len(stream)) + " >>\nstream\n")
		b.WriteString(stream)
		b.WriteString("\nendstream\nendobj\n")
	}

	writeXref(&b, offsets)
	return []byte(b.String())
}

func buildImageOnlyPDF() []byte {
	imgData := "\xff\xd8\xff\xe0"

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, 6)

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets[2] = b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")

	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /XObject << /Im1 4 0 R >> >> /Contents 5 0 R >>\nendobj\n")

	offsets[4] = b.Len()
	b.WriteString("4 0 obj\n<< /Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Length ")
	b.WriteString(strconv.Itoa(len(imgData)))
	b.WriteString(" >>\nstream\n")
	b.WriteString(imgData)
	b.WriteString("\nendstream\nendobj\n")

	drawStream := "q 100 0 0 100 72 692 cm /Im1 Do Q"
	offsets[5] = b.Len()
	b.WriteString("5 0 obj\n<< /Length ")
	b.WriteString(strconv.Itoa(len(drawStream)))
	b.WriteString(" >>\nstream\n")
	b.WriteString(drawStream)
	b.WriteString("\nendstream\nendobj\n")

	writeXref(&b, offsets)
	return []byte(b.String())
}

func writeXref(b *strings.Builder, offsets []int) {
	size := strconv.Itoa(len(offsets))
	xrefOffset := b.Len()
	b.WriteString("xref\n0 " + size + "\n")
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets[1:] {
		s := strconv.Itoa(off)
		b.WriteString(strings.Repeat("0", 10-len(s)) + s)
		b.WriteString(" 00000 n \n")
	}
	b.WriteString("trailer\n<< /Size " + size + " /Root 1 0 R >>\nstartxref\n")
	b.WriteString(strconv.Itoa(xrefOffset))
	b.WriteString("\n%%EOF\n")
}

func escapePDF(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "(", `\(`)
	return strings.ReplaceAll(s, ")", `\)`)
}
