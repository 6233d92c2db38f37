// Package importapi exposes the chapter import pipeline over HTTP: upload a
// document to get draft chapters, then commit the reviewed chapters to an
// ebook.
//
//	POST /v1/import                      multipart "file" → draft batch
//	POST /v1/ebooks                      create an ebook
//	POST /v1/ebooks/{ebookID}/chapters   commit reviewed chapters
//	GET  /v1/ebooks/{ebookID}/chapters   list committed chapters
//	GET  /v1/imports                     caller's recent imports
//	GET  /v1/formats                     supported formats
//	GET  /healthz
//	GET  /metrics                        Prometheus exposition
package importapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/ebookimport/auth"
	"github.com/hazyhaar/ebookimport/chapterpipe"
	"github.com/hazyhaar/ebookimport/idgen"
	"github.com/hazyhaar/ebookimport/observability"
	"github.com/hazyhaar/ebookimport/shield"
	"github.com/hazyhaar/ebookimport/store"
)

// ChapterStore persists reviewed chapters.
type ChapterStore interface {
	EnsureEbook(ctx context.Context, id, ownerID, title string) (*store.Ebook, error)
	ReplaceChapters(ctx context.Context, ebookID, ownerID string, chs []store.NewChapter) ([]store.Chapter, error)
	ListChapters(ctx context.Context, ebookID, ownerID string) ([]store.Chapter, error)
}

// BlobStore keeps original uploads.
type BlobStore interface {
	Put(ctx context.Context, namespace, name string, data []byte) (string, error)
}

// Deps wires a Server. Blobs, Limiter, Audit and Metrics are optional.
type Deps struct {
	Pipeline  *chapterpipe.Pipeline
	Store     ChapterStore
	Blobs     BlobStore
	Limiter   *shield.RateLimiter
	Audit     *observability.AuditLogger
	Metrics   *observability.Metrics
	JWTSecret []byte
	Logger    *slog.Logger
}

// Server serves the import API.
type Server struct {
	pipe       *chapterpipe.Pipeline
	store      ChapterStore
	blobs      BlobStore
	limiter    *shield.RateLimiter
	audit      *observability.AuditLogger
	metrics    *observability.Metrics
	secret     []byte
	logger     *slog.Logger
	newEbookID idgen.Generator
	newBlobID  idgen.Generator
}

// NewServer creates a Server from its dependencies.
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Server{
		pipe:       d.Pipeline,
		store:      d.Store,
		blobs:      d.Blobs,
		limiter:    d.Limiter,
		audit:      d.Audit,
		metrics:    d.Metrics,
		secret:     d.JWTSecret,
		logger:     d.Logger,
		newEbookID: idgen.For(idgen.Ebook),
		newBlobID:  idgen.For(idgen.Upload),
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(shield.DefaultAPIStack()...)
	r.Use(s.metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/v1/formats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"formats": chapterpipe.SupportedFormats()})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.secret), auth.RequireAPI)
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}

		// Multipart framing adds a little over the file itself.
		maxUpload := s.pipe.Config().MaxFileSize + 1<<20
		r.With(shield.MaxBody(maxUpload)).Post("/v1/import", s.handleImport)
		r.Get("/v1/imports", s.handleListImports)

		r.Route("/v1/ebooks", func(r chi.Router) {
			r.Use(shield.MaxBody(maxCommitBody))
			r.Post("/", s.handleCreateEbook)
			r.Post("/{ebookID}/chapters", s.handleCommit)
			r.Get("/{ebookID}/chapters", s.handleList)
		})
	})
	return r
}
