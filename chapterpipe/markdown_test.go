package chapterpipe

import (
	"strings"
	"testing"
)

func TestMarkdown(t *testing.T) {
	p := New(Config{})
	batch := &ChapterBatch{
		Title: "The Book",
		Chapters: []DraftChapter{
			{Title: "One", Content: "Hello world", HTML: "<p>Hello <strong>world</strong></p>", Order: 0},
			{Title: "Two", Content: "Plain text only.", Order: 1},
			{Title: "Three", Content: "cut short", HTML: "<p>much longer original</p>", Truncated: true, Order: 2},
		},
	}

	md, err := p.Markdown(batch)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"# The Book\n\n",
		"## One\n\nHello **world**\n\n",
		"## Two\n\nPlain text only.\n\n",
		"## Three\n\ncut short\n",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "much longer original") {
		t.Error("truncated chapter rendered from its full markup")
	}
	if strings.Index(md, "## One") > strings.Index(md, "## Two") {
		t.Error("chapters out of order")
	}
}

func TestMarkdown_NoTitle(t *testing.T) {
	p := New(Config{})
	md, err := p.Markdown(&ChapterBatch{Chapters: []DraftChapter{{Title: "Content", Content: "x"}}})
	if err != nil {
		t.Fatal(err)
	}
	if md != "## Content\n\nx\n" {
		t.Errorf("markdown = %q", md)
	}
}
