// Package watch runs a handler for every ebook file dropped into an inbox
// directory. Writes are debounced per file so a handler sees the file once
// it has stopped changing.
//
// Typical usage:
//
//	w := watch.New("inbox", watch.Options{Debounce: 500 * time.Millisecond})
//	err := w.Run(ctx, func(ctx context.Context, path string) error { ... })
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler processes one settled inbox file.
type Handler func(ctx context.Context, path string) error

// Options tunes the watcher behaviour.
type Options struct {
	// Debounce is the quiet period a file must stay unchanged before the
	// handler runs. Default: 500ms.
	Debounce time.Duration
	// Extensions are the lowercased file extensions handled.
	// Default: .pdf, .epub, .txt.
	Extensions []string
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Debounce <= 0 {
		o.Debounce = 500 * time.Millisecond
	}
	if len(o.Extensions) == 0 {
		o.Extensions = []string{".pdf", ".epub", ".txt"}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Inbox watches one directory. Run it at most once at a time.
type Inbox struct {
	dir  string
	opts Options

	events    atomic.Int64
	processed atomic.Int64
	errors    atomic.Int64
	handleNs  atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Events        int64         `json:"events"`
	Processed     int64         `json:"processed"`
	Errors        int64         `json:"errors"`
	AvgHandleTime time.Duration `json:"avg_handle_time"`
}

// New creates an Inbox for dir. Call Run to start watching.
func New(dir string, opts Options) *Inbox {
	opts.defaults()
	return &Inbox{dir: dir, opts: opts}
}

// Stats returns the current counters.
func (w *Inbox) Stats() Stats {
	s := Stats{
		Events:    w.events.Load(),
		Processed: w.processed.Load(),
		Errors:    w.errors.Load(),
	}
	if n := s.Processed + s.Errors; n > 0 {
		s.AvgHandleTime = time.Duration(w.handleNs.Load() / n)
	}
	return s
}

// Run handles files already in the directory, then every new or rewritten
// file, until ctx is cancelled. Handler errors are logged and counted; the
// file is not retried until it changes again.
func (w *Inbox) Run(ctx context.Context, handle Handler) error {
	log := w.opts.Logger

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	pending := make(map[string]time.Time)
	existing, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("watch: read %s: %w", w.dir, err)
	}
	now := time.Now()
	for _, e := range existing {
		if p := filepath.Join(w.dir, e.Name()); !e.IsDir() && w.accepts(p) {
			pending[p] = now
		}
	}

	tick := w.opts.Debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	log.Info("watch: started", "dir", w.dir, "debounce", w.opts.Debounce, "queued", len(pending))

	for {
		select {
		case <-ctx.Done():
			log.Info("watch: stopped", "dir", w.dir)
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.accepts(ev.Name) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				w.events.Add(1)
				pending[ev.Name] = time.Now().Add(w.opts.Debounce)
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				delete(pending, ev.Name)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.errors.Add(1)
			log.Warn("watch: fsnotify error", "error", err)

		case now := <-ticker.C:
			for p, due := range pending {
				if now.Before(due) {
					continue
				}
				delete(pending, p)
				w.fire(ctx, handle, p)
				if ctx.Err() != nil {
					return nil
				}
			}
		}
	}
}

func (w *Inbox) fire(ctx context.Context, handle Handler, path string) {
	log := w.opts.Logger
	start := time.Now()
	err := handle(ctx, path)
	w.handleNs.Add(int64(time.Since(start)))
	if err != nil {
		w.errors.Add(1)
		log.Error("watch: handler failed", "path", path, "error", err)
		return
	}
	w.processed.Add(1)
	log.Debug("watch: handled", "path", path, "duration", time.Since(start))
}

// accepts filters by extension and skips hidden or temporary files.
func (w *Inbox) accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range w.opts.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
