package chapterpipe

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		max     int
		want    string
		wantCut bool
	}{
		{"collapse", "  a \t\n\n b  ", 0, "a b", false},
		{"control", "a\x00b\x07c", 0, "abc", false},
		{"private use", "a\ue000b", 0, "ab", false},
		{"replacement", "a\ufffdb", 0, "ab", false},
		{"bom", "\ufefftext", 0, "text", false},
		{"nfc", "cafe\u0301", 0, "café", false},
		{"cut", "héllo wörld", 5, "héllo", true},
		{"cut trims space", "ab cd", 3, "ab", true},
		{"exact fit", "abc", 3, "abc", false},
		{"empty", "   ", 10, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cut := NormalizeContent(tt.in, tt.max)
			if got != tt.want || cut != tt.wantCut {
				t.Errorf("NormalizeContent(%q, %d) = %q, %v; want %q, %v", tt.in, tt.max, got, cut, tt.want, tt.wantCut)
			}
		})
	}
}

func TestNormalizeContent_Idempotent(t *testing.T) {
	inputs := []string{
		"  Capítulo\t1 \n\n  Era uma veź ",
		"e\u0000\u0301x",
		strings.Repeat("ab ", 100),
	}
	for _, in := range inputs {
		once, _ := NormalizeContent(in, 50)
		twice, cut := NormalizeContent(once, 50)
		if once != twice {
			t.Errorf("not idempotent: %q -> %q", once, twice)
		}
		if cut {
			t.Errorf("second pass reported a cut for %q", once)
		}
	}
}

func TestNormalizeChapter_KeepsTruncated(t *testing.T) {
	c := NormalizeChapter(DraftChapter{Content: "short", Truncated: true}, 100)
	if !c.Truncated {
		t.Error("Truncated flag lost")
	}
	c = NormalizeChapter(DraftChapter{Title: " T ", Content: strings.Repeat("x", 20), Order: 3}, 10)
	if !c.Truncated || c.Content != strings.Repeat("x", 10) {
		t.Errorf("chapter = %+v", c)
	}
	if c.Title != " T " || c.Order != 3 {
		t.Error("title or order changed")
	}
}

func TestNormalizeChapter_HTMLFollowsTruncation(t *testing.T) {
	kept := NormalizeChapter(DraftChapter{Content: "short", HTML: "<p>short</p>"}, 100)
	if kept.HTML != "<p>short</p>" {
		t.Errorf("untruncated chapter lost its markup: %q", kept.HTML)
	}
	cut := NormalizeChapter(DraftChapter{Content: strings.Repeat("x", 20), HTML: "<p>" + strings.Repeat("x", 20) + "</p>"}, 10)
	if !cut.Truncated || cut.HTML != "" {
		t.Errorf("truncated=%v html=%q", cut.Truncated, cut.HTML)
	}
	again := NormalizeChapter(DraftChapter{Content: "short", HTML: "<p>short</p>", Truncated: true}, 100)
	if again.HTML != "" {
		t.Errorf("previously truncated chapter kept markup %q", again.HTML)
	}
}

func TestNormalize_Batch(t *testing.T) {
	p := New(Config{MaxChapterLength: 8, Workers: 2})
	batch := &ChapterBatch{}
	for i := range 20 {
		batch.Chapters = append(batch.Chapters, DraftChapter{Order: i, Content: "  some   long content "})
	}
	if err := p.Normalize(context.Background(), batch); err != nil {
		t.Fatal(err)
	}
	for i, c := range batch.Chapters {
		if c.Order != i || c.Content != "some lon" || !c.Truncated {
			t.Fatalf("chapter %d = %+v", i, c)
		}
	}
}

func TestNormalize_Cancelled(t *testing.T) {
	p := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := &ChapterBatch{Chapters: []DraftChapter{{Content: "x"}}}
	if err := p.Normalize(ctx, batch); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
