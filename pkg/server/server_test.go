package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanvihe/jarvis-core/pkg/config"
	"github.com/ivanvihe/jarvis-core/pkg/generation"
	"github.com/ivanvihe/jarvis-core/pkg/logging"
	"github.com/ivanvihe/jarvis-core/pkg/registry"
	"github.com/ivanvihe/jarvis-core/pkg/sandbox"
)

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	rec := logging.NewRecorder()
	log := logging.New("test", rec)
	bus := registry.NewBus()
	reg, err := registry.New(t.TempDir(), log, bus, nil)
	require.NoError(t, err)
	gen := generation.NewManager(log, generation.LaunchCommand{})
	sb, err := sandbox.New([]string{t.TempDir()})
	require.NoError(t, err)
	exec := sandbox.NewExecutor(sb, nil)
	return New(cfg, log, rec, reg, gen, exec)
}

func TestHealthRequiresNoAuthWhenTokenUnset(t *testing.T) {
	s := newTestServer(t, config.Config{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthRejectsMissingTokenWhenConfigured(t *testing.T) {
	s := newTestServer(t, config.Config{Token: "secret"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthAcceptsMatchingToken(t *testing.T) {
	s := newTestServer(t, config.Config{Token: "secret"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "secret")
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetConfigMasksToken(t *testing.T) {
	s := newTestServer(t, config.Config{Token: "secret"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	req.Header.Set("Authorization", "secret")
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "***", body["token"])
}

func TestListModelsEmptyCatalogue(t *testing.T) {
	s := newTestServer(t, config.Config{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"models":[]}`, w.Body.String())
}

func TestGetModelNotFound(t *testing.T) {
	s := newTestServer(t, config.Config{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/models/missing", nil)
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestActionsRunTimesOutReturns504(t *testing.T) {
	s := newTestServer(t, config.Config{})
	w := httptest.NewRecorder()
	body := `{"command":["sleep","5"],"timeout":1}`
	req := httptest.NewRequest(http.MethodPost, "/actions/run", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	var respBody map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, "Command timed out", respBody["detail"])
}

func TestChatCompletionsWithoutLoadedModelReturns503(t *testing.T) {
	s := newTestServer(t, config.Config{})
	w := httptest.NewRecorder()
	body := `{"prompt":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
