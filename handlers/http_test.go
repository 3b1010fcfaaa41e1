package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneytech/selenium/distributor"
	"github.com/moneytech/selenium/domain"
	"github.com/moneytech/selenium/eventbus"
	"github.com/moneytech/selenium/graverr"
	"github.com/moneytech/selenium/healthcheck"
	"github.com/moneytech/selenium/sessionmap/memory"
)

type fakeCreator struct{}

func (fakeCreator) CreateSession(_ context.Context, uri string, caps domain.Capabilities) (domain.SessionRecord, error) {
	return domain.SessionRecord{SessionID: uuid.New(), URI: uri, Capabilities: caps}, nil
}

type alwaysHealthy struct{}

func (alwaysHealthy) Probe(_ context.Context, _ string) bool { return true }

func newTestServer(t *testing.T) (*echo.Echo, *Server) {
	t.Helper()
	logger := log.NewNopLogger()
	bus := eventbus.NewLocal(logger)
	sessions := memory.New(bus)
	checker := healthcheck.New(alwaysHealthy{}, logger)
	dist := distributor.New(bus, sessions, checker, fakeCreator{}, logger)
	t.Cleanup(func() { dist.Close() })

	srv := NewServer(dist, logger)
	e := echo.New()
	graverr.RegisterErrorHandler(e, logger)
	srv.Register(e)
	return e, srv
}

func TestServer_NewSession_NoCandidates(t *testing.T) {
	e, _ := newTestServer(t)
	body := `{"desiredCapabilities":[{"browserName":"chrome"}]}`
	req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	errObj := payload["error"].(map[string]any)
	assert.Equal(t, graverr.SessionNotCreated, errObj["code"])
}

func TestServer_AddThenNewSessionThenStatus(t *testing.T) {
	e, _ := newTestServer(t)

	addBody := `{"uri":"http://n1:5555","stereotypes":[{"Capabilities":{"browserName":"chrome"},"Slots":2}]}`
	req := httptest.NewRequest(http.MethodPost, "/node", strings.NewReader(addBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	sessionBody := `{"desiredCapabilities":[{"browserName":"chrome"}]}`
	req2 := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(sessionBody))
	req2.Header.Set("Content-Type", "application/json")
	rec2 := httptest.NewRecorder()
	e.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)

	var sess sessionRecordResponse
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &sess))
	assert.NotEmpty(t, sess.SessionID)

	req3 := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec3 := httptest.NewRecorder()
	e.ServeHTTP(rec3, req3)
	require.Equal(t, http.StatusOK, rec3.Code)

	var summaries []nodeSummaryResponse
	require.NoError(t, json.Unmarshal(rec3.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].UsedSlots)
}

func TestServer_Ready(t *testing.T) {
	e, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
