package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/brojonat/moonportal/service/sync"
)

// maxBodySize bounds request bodies; entries are far smaller.
const maxBodySize = 16 * 1024

// viewResponse wraps the view with its rendered error message.
type viewResponse struct {
	sync.View
	Message string `json:"message,omitempty"`
}

func toResponse(v sync.View) viewResponse {
	return viewResponse{View: v, Message: sync.DescribeError(v)}
}

// handleGetView returns the current view.
// GET /api/v1/view
func handleGetView(c Controller, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, err := c.View(r.Context())
		if err != nil {
			writeControllerError(w, r, err, logger)
			return
		}
		writeJSON(w, toResponse(v), http.StatusOK)
	})
}

// handleAction runs a controller operation and returns the resulting view.
// Operations complete asynchronously, so success is 202 Accepted.
func handleAction(action func(context.Context) error, c Controller, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := action(r.Context()); err != nil {
			writeControllerError(w, r, err, logger)
			return
		}
		writeView(w, r, c, http.StatusAccepted, logger)
	})
}

type setDraftRequest struct {
	Text string `json:"text"`
}

// handleSetDraft replaces the draft.
// PUT /api/v1/draft
func handleSetDraft(c Controller, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req setDraftRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, err.Error(), "", http.StatusBadRequest)
			return
		}
		if err := c.SetDraft(r.Context(), req.Text); err != nil {
			writeControllerError(w, r, err, logger)
			return
		}
		writeView(w, r, c, http.StatusOK, logger)
	})
}

type submitEntryRequest struct {
	Link *string `json:"link,omitempty"`
}

// handleSubmitEntry submits the draft, optionally replacing it first.
// POST /api/v1/entries
func handleSubmitEntry(c Controller, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req submitEntryRequest
		if r.ContentLength != 0 {
			if err := decodeBody(w, r, &req); err != nil {
				writeError(w, err.Error(), "", http.StatusBadRequest)
				return
			}
		}
		if req.Link != nil {
			if err := c.SetDraft(r.Context(), *req.Link); err != nil {
				writeControllerError(w, r, err, logger)
				return
			}
		}
		if err := c.Submit(r.Context()); err != nil {
			writeControllerError(w, r, err, logger)
			return
		}
		writeView(w, r, c, http.StatusAccepted, logger)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return errors.New("invalid request body: must be valid JSON")
	}
	return nil
}

func writeView(w http.ResponseWriter, r *http.Request, c Controller, status int, logger *slog.Logger) {
	v, err := c.View(r.Context())
	if err != nil {
		writeControllerError(w, r, err, logger)
		return
	}
	writeJSON(w, toResponse(v), status)
}

// writeControllerError maps a controller rejection to a status code.
func writeControllerError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	kind := sync.KindOf(err)
	status := statusForKind(kind)
	if errors.Is(err, sync.ErrStopped) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		logger.ErrorContext(r.Context(), "controller request failed", "path", r.URL.Path, "error", err)
	} else {
		logger.DebugContext(r.Context(), "controller rejected request", "path", r.URL.Path, "kind", kind, "error", err)
	}
	writeError(w, err.Error(), kind, status)
}

func statusForKind(kind sync.ErrorKind) int {
	switch kind {
	case sync.KindOperationInProgress:
		return http.StatusConflict
	case sync.KindInvalidMode, sync.KindNotConnected, sync.KindSubmitFailed:
		return http.StatusBadRequest
	case sync.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, kind sync.ErrorKind, statusCode int) {
	body := map[string]string{"error": message}
	if kind != sync.KindNone {
		body["kind"] = string(kind)
	}
	writeJSON(w, body, statusCode)
}
