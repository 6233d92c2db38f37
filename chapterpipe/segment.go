package chapterpipe

import (
	"context"
	"strings"
	"unicode/utf8"
)

// candidate is a chapter found by a strategy, before ids, order and
// normalization are applied.
type candidate struct {
	title   string
	content string
	html    string
	source  string
}

// Segment splits typed document bytes into a batch of draft chapters. It never
// fails: unreadable structure degrades to a single chapter wrapping the whole
// document. Content is not normalized yet; see Normalize.
func (p *Pipeline) Segment(ctx context.Context, format Format, data []byte) *ChapterBatch {
	batch := &ChapterBatch{Format: format}

	var cands []candidate
	switch format {
	case FormatPDF:
		cands = p.segmentPDF(ctx, data, batch)
	case FormatEPUB:
		cands = p.segmentEPUB(ctx, data, batch)
	default: // FormatText and FormatUnknown
		text, fallback := decodeText(data)
		batch.EncodingFallback = fallback
		cands = p.segmentText(text, batch)
	}

	if len(cands) == 0 {
		text, _ := decodeText(data)
		cands = p.fallback(text, batch)
	}

	if len(cands) > p.cfg.MaxChapters {
		batch.Dropped = len(cands) - p.cfg.MaxChapters
		cands = cands[:p.cfg.MaxChapters]
	}

	batch.Chapters = make([]DraftChapter, len(cands))
	for i, c := range cands {
		batch.Chapters[i] = DraftChapter{
			ID:      p.cfg.NewID(),
			Title:   c.title,
			Content: c.content,
			Order:   i,
			HTML:    c.html,
			Source:  c.source,
		}
	}

	p.logger.Debug("document segmented",
		"format", format,
		"strategy", batch.Strategy,
		"chapters", len(batch.Chapters),
		"degraded", batch.Degraded,
	)
	return batch
}

// fallback wraps the whole text as one chapter and marks the batch degraded.
func (p *Pipeline) fallback(text string, batch *ChapterBatch) []candidate {
	batch.Degraded = true
	return []candidate{{
		title:   p.cfg.FallbackTitle,
		content: text,
	}}
}

// cleanTitle strips control characters, collapses whitespace and bounds the
// title length.
func (p *Pipeline) cleanTitle(s string) string {
	s, _ = NormalizeContent(s, 0)
	return strings.TrimRight(truncateRunes(s, p.cfg.MaxTitleLength), " ")
}

func normalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
