package importapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hazyhaar/ebookimport/chapterpipe"
	"github.com/hazyhaar/ebookimport/kit"
	"github.com/hazyhaar/ebookimport/observability"
)

func (s *Server) recordImport(r *http.Request, doc *chapterpipe.UploadedDocument, batch *chapterpipe.ChapterBatch, err error, d time.Duration) {
	res := observability.ImportResult{
		Format:   string(s.pipe.Detect(doc.Name, doc.ContentType)),
		Err:      err,
		Duration: d,
	}
	if batch != nil {
		res.Strategy = batch.Strategy
		res.Chapters = batch.Len()
		res.Degraded = batch.Degraded
		for _, c := range batch.Chapters {
			if c.Truncated {
				res.Truncated++
			}
		}
	}
	s.metrics.ObserveImport(res)

	if s.audit == nil {
		return
	}
	e := &observability.AuditEntry{
		Operation:  "import",
		UserID:     kit.GetUserID(r.Context()),
		RequestID:  kit.GetRequestID(r.Context()),
		FileName:   doc.Name,
		Format:     res.Format,
		Strategy:   res.Strategy,
		Chapters:   res.Chapters,
		Degraded:   res.Degraded,
		DurationMs: d.Milliseconds(),
	}
	if err != nil {
		_, e.ErrorMessage = classify(err)
	}
	s.audit.LogAsync(e)
}

func (s *Server) recordCommit(r *http.Request, ebookID string, chapters int) {
	if s.audit == nil {
		return
	}
	s.audit.LogAsync(&observability.AuditEntry{
		Operation: "commit",
		UserID:    kit.GetUserID(r.Context()),
		RequestID: kit.GetRequestID(r.Context()),
		FileName:  ebookID,
		Chapters:  chapters,
	})
}

// handleListImports returns the caller's recent audit entries.
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusOK, map[string]any{"imports": []any{}})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, r, invalid("limit must be between 1 and 500"))
			return
		}
		limit = n
	}
	entries, err := s.audit.Query(r.Context(), observability.AuditFilter{
		UserID: kit.GetUserID(r.Context()),
		Limit:  limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imports": entries})
}
