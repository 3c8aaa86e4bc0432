package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adventure/internal/config"
	"adventure/internal/service/pipeline"
	"adventure/internal/service/session"
)

type stubRunner struct {
	result *pipeline.Result
	err    error
	turns  []session.Turn
	got    string
}

func (s *stubRunner) Submit(_ context.Context, utterance string) (*pipeline.Result, error) {
	s.got = utterance
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubRunner) Transcript() []session.Turn { return s.turns }

func newTestServer(t *testing.T, runner TurnRunner) *Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.SettingsPath = filepath.Join(t.TempDir(), ".env")
	cfg.IllustrationPath = filepath.Join(t.TempDir(), "scene.jpg")
	logger := zap.NewNop().Sugar()
	srv := NewServer(cfg, config.NewStore(cfg.SettingsPath, logger), logger)
	srv.pipe = runner
	return srv
}

func TestIndexServesSetupFormUntilStarted(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Start App")
}

func TestIndexServesChatViewAfterStart(t *testing.T) {
	srv := newTestServer(t, &stubRunner{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "submit-form")
}

func postForm(srv *Server, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSubmitReturnsReply(t *testing.T) {
	runner := &stubRunner{result: &pipeline.Result{Reply: "You enter the hall", TurnNumber: 3, Illustrated: true, IllustrationPath: "images/scene.jpg"}}
	srv := newTestServer(t, runner)

	rec := postForm(srv, "/submit", url.Values{"message": {"I enter"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "I enter", runner.got)

	var body struct {
		Reply       string `json:"reply"`
		TurnNumber  int    `json:"turnNumber"`
		Illustrated bool   `json:"illustrated"`
		ImageURL    string `json:"imageUrl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "You enter the hall", body.Reply)
	assert.Equal(t, 3, body.TurnNumber)
	assert.True(t, body.Illustrated)
	assert.Contains(t, body.ImageURL, "/illustration")
}

func TestSubmitErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		runner TurnRunner
		status int
	}{
		{"no session", nil, http.StatusConflict},
		{"empty utterance", &stubRunner{err: pipeline.ErrEmptyUtterance}, http.StatusBadRequest},
		{"turn in flight", &stubRunner{err: pipeline.ErrTurnInFlight}, http.StatusConflict},
		{"backend down", &stubRunner{err: assert.AnError}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.runner)
			rec := postForm(srv, "/submit", url.Values{"message": {"hi"}})
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestSubmitRequiresPost(t *testing.T) {
	srv := newTestServer(t, &stubRunner{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/submit", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	runner := &stubRunner{turns: []session.Turn{
		{Role: session.RoleUser, Content: "hello"},
		{Role: session.RoleAssistant, Content: "well met"},
	}}
	srv := newTestServer(t, runner)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var turns []session.Turn
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turns))
	require.Len(t, turns, 2)
	assert.Equal(t, session.RoleAssistant, turns[1].Role)
}

func TestHistoryEmptyBeforeStart(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
