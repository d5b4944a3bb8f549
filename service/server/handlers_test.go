package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brojonat/moonportal/service/record"
	"github.com/brojonat/moonportal/service/sync"
	"github.com/brojonat/moonportal/service/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeController implements Controller for testing.
// Each operation returns the configured error and records the call.
type fakeController struct {
	view  sync.View
	err   error
	calls []string
	draft string
}

func (f *fakeController) View(ctx context.Context) (sync.View, error) {
	return f.view, nil
}

func (f *fakeController) do(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeController) Connect(ctx context.Context) error    { return f.do("connect") }
func (f *fakeController) Disconnect(ctx context.Context) error { return f.do("disconnect") }
func (f *fakeController) Initialize(ctx context.Context) error { return f.do("initialize") }
func (f *fakeController) Refresh(ctx context.Context) error    { return f.do("refresh") }
func (f *fakeController) Submit(ctx context.Context) error     { return f.do("submit") }

func (f *fakeController) SetDraft(ctx context.Context, text string) error {
	f.draft = text
	f.calls = append(f.calls, "draft")
	return nil
}

func (f *fakeController) Subscribe(fn func(sync.View)) func() {
	return func() {}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetView(t *testing.T) {
	fc := &fakeController{view: sync.View{
		Mode:      sync.ModeReady,
		Identity:  "A",
		Entries:   []string{"https://x"},
		LastError: sync.KindSubmitFailed,
	}}
	h := New(":0", fc, nil, testLogger()).Handler()

	w := do(t, h, http.MethodGet, "/api/v1/view", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Connected/Ready", body["mode"])
	assert.Equal(t, "A", body["identity"])
	assert.Equal(t, "SubmitFailed", body["last_error"])
	assert.Contains(t, body["message"], "not accepted")
}

func TestActions_RouteToController(t *testing.T) {
	tests := []struct {
		method string
		path   string
		call   string
	}{
		{http.MethodPost, "/api/v1/session/connect", "connect"},
		{http.MethodPost, "/api/v1/session/disconnect", "disconnect"},
		{http.MethodPost, "/api/v1/record/initialize", "initialize"},
		{http.MethodPost, "/api/v1/record/refresh", "refresh"},
		{http.MethodPost, "/api/v1/entries", "submit"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			fc := &fakeController{}
			h := New(":0", fc, nil, testLogger()).Handler()

			w := do(t, h, tt.method, tt.path, "")
			assert.Equal(t, http.StatusAccepted, w.Code)
			assert.Equal(t, []string{tt.call}, fc.calls)
		})
	}
}

func TestActions_RejectionStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"in progress", sync.ErrOperationInProgress, http.StatusConflict, "OperationInProgress"},
		{"not ready", sync.ErrInvalidMode, http.StatusBadRequest, "InvalidMode"},
		{"not connected", wallet.ErrNotConnected, http.StatusBadRequest, "NotConnected"},
		{"empty draft", record.ErrSubmitFailed, http.StatusBadRequest, "SubmitFailed"},
		{"no wallet", wallet.ErrProviderUnavailable, http.StatusServiceUnavailable, "ProviderUnavailable"},
		{"stopped", sync.ErrStopped, http.StatusServiceUnavailable, "Internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeController{err: tt.err}
			h := New(":0", fc, nil, testLogger()).Handler()

			w := do(t, h, http.MethodPost, "/api/v1/entries", "")
			assert.Equal(t, tt.wantStatus, w.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantKind, body["kind"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSetDraft(t *testing.T) {
	fc := &fakeController{}
	h := New(":0", fc, nil, testLogger()).Handler()

	w := do(t, h, http.MethodPut, "/api/v1/draft", `{"text":"https://x"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://x", fc.draft)

	w = do(t, h, http.MethodPut, "/api/v1/draft", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")

	w = do(t, h, http.MethodPut, "/api/v1/draft", `{"text":"`+strings.Repeat("a", maxBodySize)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "request body too large")
}

func TestSubmitEntry_WithLinkSetsDraftFirst(t *testing.T) {
	fc := &fakeController{}
	h := New(":0", fc, nil, testLogger()).Handler()

	w := do(t, h, http.MethodPost, "/api/v1/entries", `{"link":"https://y"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"draft", "submit"}, fc.calls)
	assert.Equal(t, "https://y", fc.draft)
}

func TestHealthAndCORS(t *testing.T) {
	h := New(":0", &fakeController{}, nil, testLogger()).Handler()

	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(t, h, http.MethodOptions, "/api/v1/entries", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Metrics are disabled without a collector.
	w = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
