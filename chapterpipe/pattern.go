package chapterpipe

import (
	"fmt"
	"regexp"
	"strings"
)

// Chapter markers: a heading keyword, an Arabic or upper-case Roman numeral,
// and an optional separator. The trailing title is read up to the end of the
// line. Both expressions run on RE2, so matching stays linear in the input
// whatever the text looks like.
var (
	markerLineRe = regexp.MustCompile(`(?m)^[ \t]*((?i:chapter|cap[ií]tulo))[ \t]+(\d+|[IVXLCDM]+)\b(?:[ \t]*[:.\-–—])?`)
	markerWordRe = regexp.MustCompile(`\b((?i:chapter|cap[ií]tulo))[ \t]+(\d+|[IVXLCDM]+)\b(?:[ \t]*[:.\-–—])?`)
)

type marker struct {
	start   int // offset of the keyword
	end     int // offset just past the numeral and separator
	keyword string
	numeral string
}

// findMarkers prefers markers at the start of a line. Text extracted without
// line structure gets a second pass accepting markers anywhere.
func findMarkers(text string) []marker {
	for _, re := range []*regexp.Regexp{markerLineRe, markerWordRe} {
		locs := re.FindAllStringSubmatchIndex(text, -1)
		if len(locs) == 0 {
			continue
		}
		ms := make([]marker, len(locs))
		for i, loc := range locs {
			ms[i] = marker{
				start:   loc[2],
				end:     loc[1],
				keyword: text[loc[2]:loc[3]],
				numeral: text[loc[4]:loc[5]],
			}
		}
		return ms
	}
	return nil
}

// segmentPattern cuts text at chapter markers. Each chapter spans from its
// marker to the next one; text before the first marker is discarded. Without
// markers the whole text becomes one degraded chapter. pageStarts, when set,
// holds the offset of every page and is used to label chapter sources.
func (p *Pipeline) segmentPattern(text string, pageStarts []int, batch *ChapterBatch) []candidate {
	batch.Strategy = StrategyPattern
	text = normalizeNewlines(text)

	ms := findMarkers(text)
	if len(ms) == 0 {
		return p.fallback(strings.TrimSpace(text), batch)
	}

	out := make([]candidate, 0, len(ms))
	for i, m := range ms {
		end := len(text)
		if i+1 < len(ms) {
			end = ms[i+1].start
		}

		titleEnd := end
		if nl := strings.IndexByte(text[m.end:end], '\n'); nl >= 0 {
			titleEnd = m.end + nl
		}
		title := p.cleanTitle(text[m.end:titleEnd])
		if title == "" {
			title = markerLabel(m.keyword) + " " + m.numeral
		}

		out = append(out, candidate{
			title:   title,
			content: strings.TrimSpace(text[m.start:end]),
			source:  pageRange(pageStarts, m.start, end),
		})
	}
	return out
}

// markerLabel returns the canonical keyword in the marker's language.
func markerLabel(keyword string) string {
	if strings.HasPrefix(strings.ToLower(keyword), "cap") {
		return "Capítulo"
	}
	return "Chapter"
}

// pageRange labels the pages covering text[start:end].
func pageRange(pageStarts []int, start, end int) string {
	if len(pageStarts) == 0 {
		return ""
	}
	first, last := pageAt(pageStarts, start), pageAt(pageStarts, end-1)
	if first == last {
		return fmt.Sprintf("page %d", first)
	}
	return fmt.Sprintf("pages %d-%d", first, last)
}

// pageAt returns the 1-based page containing offset.
func pageAt(pageStarts []int, offset int) int {
	page := 1
	for i, s := range pageStarts {
		if s > offset {
			break
		}
		page = i + 1
	}
	return page
}
