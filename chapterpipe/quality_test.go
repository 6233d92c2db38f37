package chapterpipe

import (
	"math"
	"testing"
)

func TestNeedsOCR(t *testing.T) {
	tests := []struct {
		name string
		q    ExtractionQuality
		want bool
	}{
		{"good text", ExtractionQuality{CharsPerPage: 1500, PrintableRatio: 0.99}, false},
		{"sparse with images", ExtractionQuality{CharsPerPage: 10, PrintableRatio: 1, HasImageStreams: true}, true},
		{"sparse without images", ExtractionQuality{CharsPerPage: 10, PrintableRatio: 1}, false},
		{"garbled", ExtractionQuality{CharsPerPage: 2000, PrintableRatio: 0.5}, true},
	}
	for _, tt := range tests {
		if got := tt.q.NeedsOCR(); got != tt.want {
			t.Errorf("%s: NeedsOCR = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestApplyQuality(t *testing.T) {
	p := New(Config{})
	batch := &ChapterBatch{}
	p.applyQuality(batch, measureQuality("Plain readable text on the page.", 1, false, "rows"))
	if batch.Quality == nil || batch.NeedsOCR {
		t.Errorf("readable: quality=%+v needs_ocr=%v", batch.Quality, batch.NeedsOCR)
	}

	batch = &ChapterBatch{}
	p.applyQuality(batch, measureQuality("x", 3, true, "content-stream"))
	if !batch.NeedsOCR {
		t.Error("sparse page with images: NeedsOCR not set")
	}

	batch = &ChapterBatch{}
	p.applyQuality(batch, measureQuality("\ue000\ue001\ue002ab", 1, false, "rows"))
	if !batch.NeedsOCR {
		t.Error("garbled text: NeedsOCR not set")
	}
}

func TestMeasureQuality(t *testing.T) {
	text := "See figure 3 for the map.\nThe table 2 lists the rest."
	q := measureQuality(text, 2, true, "rows")

	if q.PageCount != 2 || q.Extractor != "rows" {
		t.Errorf("q = %+v", q)
	}
	if want := float64(runeLen(text)) / 2; q.CharsPerPage != want {
		t.Errorf("chars per page = %v, want %v", q.CharsPerPage, want)
	}
	if q.PrintableRatio != 1 {
		t.Errorf("printable ratio = %v", q.PrintableRatio)
	}
	if q.VisualRefCount == 0 || !q.HasVisualGap() {
		t.Errorf("visual refs = %d", q.VisualRefCount)
	}
}

func TestPrintableAndWordlikeRatios(t *testing.T) {
	if r := computePrintableRatio(""); r != 1 {
		t.Errorf("empty printable ratio = %v", r)
	}
	if r := computePrintableRatio("ab\ue000\ue001"); r != 0.5 {
		t.Errorf("printable ratio = %v", r)
	}
	if r := computeWordlikeRatio(""); r != 0 {
		t.Errorf("empty wordlike ratio = %v", r)
	}
	if r := computeWordlikeRatio("a bb ccc"); math.Abs(r-2.0/3) > 1e-9 {
		t.Errorf("wordlike ratio = %v", r)
	}
}
