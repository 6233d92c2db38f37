// Package chapterpipe turns an uploaded ebook file into an ordered batch of
// draft chapters for human review.
//
// An import runs three stages in sequence:
//   - ingest: classify the upload as PDF, EPUB or plain text
//   - segment: locate chapter boundaries with a format-specific strategy
//   - normalize: clean and bound every chapter's content
//
// Supported formats:
//   - .pdf: page-ordered text (ledongthuc/pdf, pdfcpu fallback), then chapter markers
//   - .epub: container -> OPF -> spine reading order, titles from nav/NCX
//   - anything else: plain text split on blank lines
//
// The pipeline is stateless and performs no I/O beyond ImportFile's read.
// Malformed input never fails an import: it degrades to a single chapter
// wrapping the whole document.
//
// Usage:
//
//	pipe := chapterpipe.New(chapterpipe.Config{})
//	batch, err := pipe.Import(ctx, &chapterpipe.UploadedDocument{Name: "book.epub", Data: data})
//	fmt.Println(len(batch.Chapters), "chapters")
package chapterpipe

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/microcosm-cc/bluemonday"
)

// Pipeline is the chapter import engine. It is safe for concurrent use.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	policy *bluemonday.Policy // chapter markup handed to the editor
	md     *converter.Converter
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
		policy: bluemonday.UGCPolicy(),
		md:     newMarkdownConverter(),
	}
}

// Config returns the effective configuration, defaults applied.
func (p *Pipeline) Config() Config { return p.cfg }

// Detect resolves the document format: an exact PDF or EPUB content type wins,
// then the file extension, and anything else is plain text.
func (p *Pipeline) Detect(name, contentType string) Format {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch strings.ToLower(mt) {
		case "application/pdf":
			return FormatPDF
		case "application/epub+zip":
			return FormatEPUB
		}
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF
	case ".epub":
		return FormatEPUB
	}
	return FormatText
}

// Import runs the whole pipeline on one uploaded document.
func (p *Pipeline) Import(ctx context.Context, doc *UploadedDocument) (*ChapterBatch, error) {
	if doc == nil {
		return nil, ErrMissingInput
	}
	if len(doc.Data) == 0 {
		return nil, ErrEmptyDocument
	}
	if int64(len(doc.Data)) > p.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(doc.Data), p.cfg.MaxFileSize)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	format := p.Detect(doc.Name, doc.ContentType)
	p.logger.Debug("importing document", "name", doc.Name, "content_type", doc.ContentType, "format", format, "bytes", len(doc.Data))

	batch := p.Segment(ctx, format, doc.Data)
	if err := p.Normalize(ctx, batch); err != nil {
		return nil, fmt.Errorf("normalize %s: %w", doc.Name, err)
	}

	p.logger.Info("document imported",
		"name", doc.Name,
		"format", format,
		"strategy", batch.Strategy,
		"chapters", len(batch.Chapters),
		"degraded", batch.Degraded,
		"dropped", batch.Dropped,
	)
	return batch, nil
}

// ImportFile reads a file from disk and imports it.
func (p *Pipeline) ImportFile(ctx context.Context, path, contentType string) (*ChapterBatch, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > p.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, info.Size(), p.cfg.MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return p.Import(ctx, &UploadedDocument{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	})
}

// SupportedFormats returns the formats with a dedicated strategy.
func SupportedFormats() []string {
	return []string{string(FormatPDF), string(FormatEPUB), string(FormatText)}
}
