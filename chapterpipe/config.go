package chapterpipe

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/hazyhaar/ebookimport/idgen"
)

// Config configures the import pipeline.
type Config struct {
	// MaxFileSize is the maximum upload size to process (default: 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// MaxChapterLength bounds the content of every chapter, in characters
	// (default: 10000). Longer content is cut and flagged Truncated.
	MaxChapterLength int `json:"max_chapter_length" yaml:"max_chapter_length"`

	// MaxChapters caps the batch size (default: 50). Extra candidates are dropped.
	MaxChapters int `json:"max_chapters" yaml:"max_chapters"`

	// MinSectionLength is the trimmed length a plain-text section must exceed
	// to be kept (default: 100).
	MinSectionLength int `json:"min_section_length" yaml:"min_section_length"`

	// MaxTitleLength bounds titles taken from section first lines (default: 100).
	MaxTitleLength int `json:"max_title_length" yaml:"max_title_length"`

	// FallbackTitle titles the single chapter of a degraded batch (default: "Content").
	FallbackTitle string `json:"fallback_title" yaml:"fallback_title"`

	// Timeout bounds a whole Import call (default: 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Workers bounds parallel normalization (default: GOMAXPROCS).
	Workers int `json:"workers" yaml:"workers"`

	// NewID generates chapter ids (default: "chp_" + UUIDv7).
	NewID idgen.Generator `json:"-" yaml:"-"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.MaxChapterLength <= 0 {
		c.MaxChapterLength = 10_000
	}
	if c.MaxChapters <= 0 {
		c.MaxChapters = 50
	}
	if c.MinSectionLength <= 0 {
		c.MinSectionLength = 100
	}
	if c.MaxTitleLength <= 0 {
		c.MaxTitleLength = 100
	}
	if c.FallbackTitle == "" {
		c.FallbackTitle = "Content"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.NewID == nil {
		c.NewID = idgen.For(idgen.Chapter)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
