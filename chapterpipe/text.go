package chapterpipe

import (
	"regexp"
	"strings"
)

// blankLineRe matches a section break: a line break followed by at least one
// empty or whitespace-only line.
var blankLineRe = regexp.MustCompile(`\n[ \t]*\n\s*`)

// minTextSections is the number of blank-line sections below which a plain
// text is considered unstructured.
const minTextSections = 3

// segmentText splits plain text on blank lines. Each kept section becomes a
// chapter titled by its first line. Sections not longer than MinSectionLength
// are noise and are dropped.
func (p *Pipeline) segmentText(text string, batch *ChapterBatch) []candidate {
	batch.Strategy = StrategyText
	// Whitespace-only text is not an empty document: only zero bytes are.
	// It falls through to a single empty "Content" chapter.
	text = strings.TrimSpace(normalizeNewlines(text))

	sections := blankLineRe.Split(text, -1)
	if len(sections) < minTextSections {
		return p.fallback(text, batch)
	}

	var out []candidate
	for _, s := range sections {
		s = strings.TrimSpace(s)
		if runeLen(s) <= p.cfg.MinSectionLength {
			continue
		}
		first, rest, _ := strings.Cut(s, "\n")
		content := strings.TrimSpace(rest)
		if content == "" {
			// A single long line: keep it whole rather than leave an empty chapter.
			content = s
		}
		out = append(out, candidate{
			title:   p.cleanTitle(first),
			content: content,
		})
	}

	if len(out) == 0 {
		return p.fallback(text, batch)
	}
	return out
}
