package importapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hazyhaar/ebookimport/chapterpipe"
	"github.com/hazyhaar/ebookimport/horosafe"
	"github.com/hazyhaar/ebookimport/shield"
	"github.com/hazyhaar/ebookimport/store"
)

// validationError carries a message safe to show the client.
type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

func invalid(msg string) error { return &validationError{msg: msg} }

// classify maps an error to its HTTP status and client-facing message.
// Internal errors never leak their text.
func classify(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	var verr *validationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.msg
	case errors.Is(err, chapterpipe.ErrMissingInput):
		return http.StatusBadRequest, chapterpipe.ErrMissingInput.Error()
	case errors.Is(err, chapterpipe.ErrEmptyDocument):
		return http.StatusBadRequest, chapterpipe.ErrEmptyDocument.Error()
	case errors.Is(err, chapterpipe.ErrTooLarge),
		errors.Is(err, horosafe.ErrTooLarge),
		errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, chapterpipe.ErrTooLarge.Error()
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "ebook not found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "import timed out"
	case errors.Is(err, context.Canceled):
		return 499, "request cancelled"
	}
	return http.StatusInternalServerError, "failed to process file"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	log := shield.GetLogger(r.Context())
	if status >= 500 {
		log.Error("request failed", "status", status, "error", err)
	} else {
		log.Info("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
