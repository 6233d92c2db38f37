package chapterpipe

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
}

// Markdown renders a batch as one Markdown document, a level-2 heading per
// chapter. Chapters carrying sanitized HTML keep their emphasis, lists and
// tables; the others are emitted as plain paragraphs.
func (p *Pipeline) Markdown(batch *ChapterBatch) (string, error) {
	var sb strings.Builder
	if batch.Title != "" {
		fmt.Fprintf(&sb, "# %s\n\n", batch.Title)
	}
	for _, c := range batch.Chapters {
		fmt.Fprintf(&sb, "## %s\n\n", c.Title)
		body := c.Content
		if c.HTML != "" && !c.Truncated {
			md, err := p.md.ConvertString(c.HTML)
			if err != nil {
				return "", fmt.Errorf("chapter %d: %w", c.Order, err)
			}
			body = md
		}
		sb.WriteString(strings.TrimSpace(body))
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n", nil
}
