package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/MikeSquared-Agency/moniker/internal/admin"
	"github.com/MikeSquared-Agency/moniker/internal/audit"
	"github.com/MikeSquared-Agency/moniker/internal/callsign"
	"github.com/MikeSquared-Agency/moniker/internal/interview"
	"github.com/MikeSquared-Agency/moniker/internal/ledger"
	"github.com/MikeSquared-Agency/moniker/internal/metrics"
	"github.com/MikeSquared-Agency/moniker/internal/sentinel"
	"github.com/MikeSquared-Agency/moniker/internal/store"
)

const testToken = "moniker-test-token"

func do(srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(8760, "", nil, nil, nil)

	w := do(srv, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusEndpoint(t *testing.T) {
	srv := NewServer(8760, "", nil, nil, nil)

	w := do(srv, http.MethodGet, "/api/v1/moniker/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"service":"moniker","status":"enforcing"}`, w.Body.String())
}

func TestReadyEndpoint(t *testing.T) {
	ok := CheckFunc(func(context.Context) error { return nil })
	down := CheckFunc(func(context.Context) error { return errors.New("connection refused") })

	srv := NewServer(8760, "", nil, nil, map[string]Checker{"postgres": ok})
	assert.Equal(t, http.StatusOK, do(srv, http.MethodGet, "/ready", "", "").Code)

	srv = NewServer(8760, "", nil, nil, map[string]Checker{"postgres": ok, "nats": down})
	w := do(srv, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg).IncStarted()
	srv := NewServer(8760, "", nil, reg, nil)

	w := do(srv, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "moniker_")
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := NewServer(8760, "", nil, nil, nil)
	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodGet, "/nonexistent", "", "").Code)
}

type platform struct {
	current     map[string]string
	undelivered bool
}

func (p *platform) SendInteractive(context.Context, interview.Prompt) (bool, error) {
	return !p.undelivered, nil
}

func (p *platform) Apply(_ context.Context, _, participantID, value, _ string) error {
	p.current[participantID] = value
	return nil
}

func (p *platform) Current(_ context.Context, _, participantID string) (string, error) {
	v, ok := p.current[participantID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return v, nil
}

type nopAuditor struct{}

func (nopAuditor) Emit(context.Context, audit.Event) error { return nil }

type AdminRoutesSuite struct {
	suite.Suite
	srv   *Server
	store *store.Memory
	plat  *platform
}

func (s *AdminRoutesSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemory()
	l := ledger.NewMemory()
	plat := &platform{current: map[string]string{"p1": "CoolNick"}}
	s.store, s.plat = st, plat
	m := interview.New(st, callsign.New(st, logger), plat, l, nopAuditor{}, logger)
	svc := admin.NewService(m, st, l, plat, nopAuditor{}, logger)
	s.srv = NewServer(8760, testToken, svc, nil, nil)
}

func (s *AdminRoutesSuite) TestRequiresToken() {
	s.Equal(http.StatusUnauthorized, do(s.srv, http.MethodGet, "/api/v1/protections/g1", "", "").Code)
	s.Equal(http.StatusUnauthorized, do(s.srv, http.MethodGet, "/api/v1/protections/g1", "wrong", "").Code)
	s.Equal(http.StatusOK, do(s.srv, http.MethodGet, "/api/v1/protections/g1", testToken, "").Code)
}

func (s *AdminRoutesSuite) TestDisabledWithoutConfiguredToken() {
	srv := NewServer(8760, "", &admin.Service{}, nil, nil)
	s.Equal(http.StatusServiceUnavailable, do(srv, http.MethodGet, "/api/v1/protections/g1", "anything", "").Code)
}

func (s *AdminRoutesSuite) TestInterviewRoutes() {
	w := do(s.srv, http.MethodGet, "/api/v1/sessions/g1/p1", testToken, "")
	s.Equal(http.StatusNotFound, w.Code)

	w = do(s.srv, http.MethodPost, "/api/v1/interviews/g1/p1/start", testToken, "")
	s.Require().Equal(http.StatusCreated, w.Code)
	var sess interview.Session
	s.Require().NoError(json.NewDecoder(w.Body).Decode(&sess))
	s.Equal(interview.StageInitiated, sess.Stage)

	w = do(s.srv, http.MethodGet, "/api/v1/sessions/g1/p1", testToken, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), sess.ID.String())

	s.Equal(http.StatusOK, do(s.srv, http.MethodPost, "/api/v1/interviews/g1/p1/reset", testToken, "").Code)
	s.Equal(http.StatusNotFound, do(s.srv, http.MethodPost, "/api/v1/interviews/g1/p1/reset", testToken, "").Code)
}

func (s *AdminRoutesSuite) TestStalledRoute() {
	w := do(s.srv, http.MethodGet, "/api/v1/interviews/g1/stalled", testToken, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"sessions":[],"count":0}`, w.Body.String())

	s.plat.undelivered = true
	s.Require().Equal(http.StatusCreated, do(s.srv, http.MethodPost, "/api/v1/interviews/g1/p1/start", testToken, "").Code)

	w = do(s.srv, http.MethodGet, "/api/v1/interviews/g1/stalled", testToken, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"count":1`)
	s.Contains(w.Body.String(), `"p1"`)
}

func (s *AdminRoutesSuite) TestIdentifierRoute() {
	_, err := s.store.InsertIfAbsent(context.Background(), callsign.Record{
		Identifier:    "ION-2203",
		GroupID:       "g1",
		ParticipantID: "p1",
		Source:        callsign.SourceRandom,
		Attempts:      65,
	})
	s.Require().NoError(err)

	w := do(s.srv, http.MethodGet, "/api/v1/identifiers/ION-2203", testToken, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"participant_id":"p1"`)
	s.Contains(w.Body.String(), `"source":"random"`)
	s.NotContains(w.Body.String(), "session_id")

	s.Equal(http.StatusNotFound, do(s.srv, http.MethodGet, "/api/v1/identifiers/ARC-0000", testToken, "").Code)
}

func (s *AdminRoutesSuite) TestProtectionRoutes() {
	w := do(s.srv, http.MethodGet, "/api/v1/protections/g1/p1", testToken, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"protected":false}`, w.Body.String())

	w = do(s.srv, http.MethodPut, "/api/v1/protections/g1/p1", testToken, `{"value":"Moderator-Pick"}`)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"applied":true`)

	w = do(s.srv, http.MethodGet, "/api/v1/protections/g1/p1", testToken, "")
	s.Contains(w.Body.String(), `"protected":true`)
	s.Contains(w.Body.String(), `"administrative_override"`)

	s.Equal(http.StatusUnprocessableEntity, do(s.srv, http.MethodPut, "/api/v1/protections/g1/p1", testToken, `{"value":""}`).Code)
	s.Equal(http.StatusBadRequest, do(s.srv, http.MethodPut, "/api/v1/protections/g1/p1", testToken, `{`).Code)

	s.Equal(http.StatusNoContent, do(s.srv, http.MethodDelete, "/api/v1/protections/g1/p1", testToken, "").Code)
	s.Equal(http.StatusNotFound, do(s.srv, http.MethodDelete, "/api/v1/protections/g1/p1", testToken, "").Code)
}

func (s *AdminRoutesSuite) TestLockRoute() {
	w := do(s.srv, http.MethodPost, "/api/v1/protections/g1/p1/lock", testToken, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"manual_current_value_lock"`)
	s.Contains(w.Body.String(), "CoolNick")

	s.Equal(http.StatusNotFound, do(s.srv, http.MethodPost, "/api/v1/protections/g1/ghost/lock", testToken, "").Code)

	w = do(s.srv, http.MethodGet, "/api/v1/protections/g1", testToken, "")
	s.Contains(w.Body.String(), `"count":1`)
}

func TestAdminRoutesSuite(t *testing.T) {
	suite.Run(t, new(AdminRoutesSuite))
}
