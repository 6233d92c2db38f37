package importapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/ebookimport/chapterpipe"
	"github.com/hazyhaar/ebookimport/horosafe"
	"github.com/hazyhaar/ebookimport/kit"
	"github.com/hazyhaar/ebookimport/shield"
	"github.com/hazyhaar/ebookimport/store"
)

const (
	maxCommitBody     = 16 << 20
	maxTitleRunes     = 200
	maxContentRunes   = 100_000
	multipartMemBytes = 32 << 20
)

type importResponse struct {
	*chapterpipe.ChapterBatch
	SourceURL string `json:"source_url,omitempty"`
}

// handleImport accepts a multipart upload in field "file" and returns the
// draft chapter batch.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	log := shield.GetLogger(r.Context())

	if err := r.ParseMultipartForm(multipartMemBytes); err != nil {
		if bodyTooLarge(err) {
			writeError(w, r, fmt.Errorf("%w: %v", chapterpipe.ErrTooLarge, err))
			return
		}
		writeError(w, r, chapterpipe.ErrMissingInput)
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, chapterpipe.ErrMissingInput)
		return
	}
	defer f.Close()

	data, err := horosafe.LimitedReadAll(f, s.pipe.Config().MaxFileSize)
	if err != nil {
		writeError(w, r, err)
		return
	}

	doc := &chapterpipe.UploadedDocument{
		Name:        hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
	}
	start := time.Now()
	batch, err := s.pipe.Import(r.Context(), doc)
	s.recordImport(r, doc, batch, err, time.Since(start))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := importResponse{ChapterBatch: batch}
	if s.blobs != nil {
		// The draft is still useful without the stored original.
		if u, err := s.storeUpload(r, doc); err != nil {
			log.Warn("upload not stored", "error", err)
		} else {
			resp.SourceURL = u
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) storeUpload(r *http.Request, doc *chapterpipe.UploadedDocument) (string, error) {
	name := s.newBlobID()
	switch s.pipe.Detect(doc.Name, doc.ContentType) {
	case chapterpipe.FormatPDF:
		name += ".pdf"
	case chapterpipe.FormatEPUB:
		name += ".epub"
	default:
		name += ".txt"
	}
	return s.blobs.Put(r.Context(), "uploads/"+kit.GetUserID(r.Context()), name, doc.Data)
}

type createEbookRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateEbook(w http.ResponseWriter, r *http.Request) {
	var req createEbookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, invalid("invalid JSON body"))
		return
	}
	title := strings.TrimSpace(req.Title)
	if utf8.RuneCountInString(title) > maxTitleRunes {
		writeError(w, r, invalid("title too long"))
		return
	}
	e, err := s.store.EnsureEbook(r.Context(), s.newEbookID(), kit.GetUserID(r.Context()), title)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

type commitChapter struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Order   int    `json:"order"`
}

type commitRequest struct {
	Title    string          `json:"title"`
	Chapters []commitChapter `json:"chapters"`
}

// handleCommit stores the reviewed batch, replacing the ebook's chapters.
// The ebook is created for the caller if it does not exist yet.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	ebookID := chi.URLParam(r, "ebookID")
	if err := horosafe.ValidateIdentifier(ebookID); err != nil {
		writeError(w, r, invalid("invalid ebook id"))
		return
	}

	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if bodyTooLarge(err) {
			writeError(w, r, err)
			return
		}
		writeError(w, r, invalid("invalid JSON body"))
		return
	}
	chs, err := validateChapters(req.Chapters)
	if err != nil {
		writeError(w, r, err)
		return
	}

	userID := kit.GetUserID(r.Context())
	if _, err := s.store.EnsureEbook(r.Context(), ebookID, userID, strings.TrimSpace(req.Title)); err != nil {
		writeError(w, r, err)
		return
	}
	stored, err := s.store.ReplaceChapters(r.Context(), ebookID, userID, chs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	shield.GetLogger(r.Context()).Info("chapters committed", "ebook_id", ebookID, "chapters", len(stored))
	s.recordCommit(r, ebookID, len(stored))
	writeJSON(w, http.StatusCreated, map[string]any{"ebook_id": ebookID, "chapters": stored})
}

func validateChapters(in []commitChapter) ([]store.NewChapter, error) {
	if len(in) == 0 {
		return nil, invalid("at least one chapter is required")
	}
	out := make([]store.NewChapter, 0, len(in))
	for i, c := range in {
		title := strings.TrimSpace(c.Title)
		n := utf8.RuneCountInString(title)
		if n == 0 {
			return nil, invalid(fmt.Sprintf("chapter %d: title is required", i))
		}
		if n > maxTitleRunes {
			return nil, invalid(fmt.Sprintf("chapter %d: title too long", i))
		}
		if utf8.RuneCountInString(c.Content) > maxContentRunes {
			return nil, invalid(fmt.Sprintf("chapter %d: content too long", i))
		}
		out = append(out, store.NewChapter{Title: title, Content: c.Content, Order: c.Order})
	}
	return out, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ebookID := chi.URLParam(r, "ebookID")
	if err := horosafe.ValidateIdentifier(ebookID); err != nil {
		writeError(w, r, invalid("invalid ebook id"))
		return
	}
	chs, err := s.store.ListChapters(r.Context(), ebookID, kit.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ebook_id": ebookID, "chapters": chs})
}

// bodyTooLarge reports whether err comes from shield.MaxBody. The multipart
// reader does not always wrap it, hence the message check.
func bodyTooLarge(err error) bool {
	var maxBytes *http.MaxBytesError
	return errors.As(err, &maxBytes) || strings.Contains(err.Error(), "request body too large")
}
