package chapterpipe

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"
)

// Normalize cleans and bounds the content of every chapter in batch. Chapters
// are processed in parallel; cancellation is checked before each chapter and
// returns ctx.Err(). Titles and order are left untouched.
func (p *Pipeline) Normalize(ctx context.Context, batch *ChapterBatch) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for i := range batch.Chapters {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			batch.Chapters[i] = NormalizeChapter(batch.Chapters[i], p.cfg.MaxChapterLength)
			return nil
		})
	}
	return g.Wait()
}

// NormalizeChapter returns c with normalized content. Truncated stays set once
// a previous pass cut the content, and a truncated chapter carries no HTML:
// the markup would hold the text the cut removed.
func NormalizeChapter(c DraftChapter, maxLen int) DraftChapter {
	content, cut := NormalizeContent(c.Content, maxLen)
	c.Content = content
	c.Truncated = c.Truncated || cut
	if c.Truncated {
		c.HTML = ""
	}
	return c
}

// NormalizeContent drops control and garbage characters, collapses whitespace
// runs to a single space, trims, composes to NFC and cuts the result to maxLen
// characters (no limit when maxLen <= 0). The second result reports a cut.
// Applying it to its own output is a no-op.
func NormalizeContent(s string, maxLen int) (string, bool) {
	var sb strings.Builder
	sb.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = sb.Len() > 0
		case isGarbageRune(r):
			// dropped
		default:
			if pendingSpace {
				sb.WriteByte(' ')
				pendingSpace = false
			}
			sb.WriteRune(r)
		}
	}

	// Composition runs after filtering so that removed characters cannot
	// leave decomposed pairs behind for a second pass to compose.
	out := norm.NFC.String(sb.String())
	if maxLen > 0 && runeLen(out) > maxLen {
		return strings.TrimRight(truncateRunes(out, maxLen), " "), true
	}
	return out, false
}
