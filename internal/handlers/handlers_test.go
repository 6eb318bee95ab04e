package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvv37912/iotedge/internal/common/logging"
	"github.com/vvv37912/iotedge/internal/diagnostics"
	"github.com/vvv37912/iotedge/internal/routing"
)

// fakeCompiler maps a tiny condition vocabulary onto predicate outcomes
type fakeCompiler struct{}

func (fakeCompiler) Compile(route *routing.Route, _ routing.OperatorSet) (routing.Predicate, error) {
	switch route.Condition {
	case "", "true":
		return func(routing.Message) (routing.Tristate, error) { return routing.TriTrue, nil }, nil
	case "false":
		return func(routing.Message) (routing.Tristate, error) { return routing.TriFalse, nil }, nil
	case "error":
		return func(routing.Message) (routing.Tristate, error) {
			return routing.TriFalse, errors.New("predicate failed")
		}, nil
	default:
		return nil, errors.New("syntax error")
	}
}

// nopLogger drops all log output in tests
type nopLogger struct{}

func (nopLogger) Debug(string, ...logging.Field)        {}
func (nopLogger) Info(string, ...logging.Field)         {}
func (nopLogger) Warn(string, ...logging.Field)         {}
func (nopLogger) Error(string, error, ...logging.Field) {}
func (n nopLogger) WithFields(...logging.Field) logging.Logger {
	return n
}

func newTestAPI(t *testing.T, cfg routing.RouterConfig) (*mux.Router, *routing.Evaluator) {
	t.Helper()

	diag := diagnostics.NewLogSink(nopLogger{})
	eval, err := routing.NewEvaluator(cfg, fakeCompiler{}, diag)
	require.NoError(t, err)

	h := New(eval, diag, nopLogger{})

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/routes", h.GetRoutes).Methods("GET")
	api.HandleFunc("/routes", h.ReplaceRoutes).Methods("PUT")
	api.HandleFunc("/routes/test", h.TestEvaluate).Methods("POST")
	api.HandleFunc("/routes/{id}", h.SetRoute).Methods("PUT")
	api.HandleFunc("/routes/{id}", h.DeleteRoute).Methods("DELETE")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	return router, eval
}

func doRequest(router *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetRoutes(t *testing.T) {
	router, _ := newTestAPI(t, routing.RouterConfig{
		Routes: []*routing.Route{
			{ID: "a", Source: routing.MatchTelemetry, Condition: "true", Endpoint: "e1"},
		},
	})

	rec := doRequest(router, "GET", "/api/routes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Routes []routing.Route `json:"routes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Routes, 1)
	assert.Equal(t, "a", body.Routes[0].ID)
}

func TestSetRouteInstallsRoute(t *testing.T) {
	router, eval := newTestAPI(t, routing.RouterConfig{})

	rec := doRequest(router, "PUT", "/api/routes/alerts",
		`{"source": "telemetry", "condition": "true", "endpoint": "upstream", "priority": 1, "ttl_secs": 60}`)
	require.Equal(t, http.StatusOK, rec.Code)

	routes := eval.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, "alerts", routes[0].ID)
	assert.Equal(t, "upstream", routes[0].Endpoint)
}

func TestSetRouteCompileFailure(t *testing.T) {
	router, eval := newTestAPI(t, routing.RouterConfig{})

	rec := doRequest(router, "PUT", "/api/routes/bad",
		`{"source": "telemetry", "condition": "not-a-condition", "endpoint": "e1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, eval.Routes())
}

func TestSetRouteBadJSON(t *testing.T) {
	router, _ := newTestAPI(t, routing.RouterConfig{})
	rec := doRequest(router, "PUT", "/api/routes/x", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteRoute(t *testing.T) {
	router, eval := newTestAPI(t, routing.RouterConfig{
		Routes: []*routing.Route{{ID: "a", Source: routing.MatchAll, Condition: "true", Endpoint: "e1"}},
	})

	rec := doRequest(router, "DELETE", "/api/routes/a", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, eval.Routes())

	// Deleting again still succeeds
	rec = doRequest(router, "DELETE", "/api/routes/a", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestReplaceRoutes(t *testing.T) {
	router, eval := newTestAPI(t, routing.RouterConfig{
		Routes: []*routing.Route{{ID: "old", Source: routing.MatchAll, Condition: "true", Endpoint: "e1"}},
	})

	rec := doRequest(router, "PUT", "/api/routes", `{"routes": [
		{"id": "n1", "source": "telemetry", "condition": "true", "endpoint": "e2"},
		{"id": "n2", "source": "telemetry", "condition": "false", "endpoint": "e3"}
	]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	routes := eval.Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, "n1", routes[0].ID)
	assert.Equal(t, "n2", routes[1].ID)
}

func TestReplaceRoutesAtomicOnFailure(t *testing.T) {
	router, eval := newTestAPI(t, routing.RouterConfig{
		Routes: []*routing.Route{{ID: "old", Source: routing.MatchAll, Condition: "true", Endpoint: "e1"}},
	})

	rec := doRequest(router, "PUT", "/api/routes", `{"routes": [
		{"id": "good", "source": "telemetry", "condition": "true", "endpoint": "e2"},
		{"id": "bad", "source": "telemetry", "condition": "not-a-condition", "endpoint": "e3"}
	]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	routes := eval.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, "old", routes[0].ID)
}

func TestTestEvaluate(t *testing.T) {
	router, _ := newTestAPI(t, routing.RouterConfig{
		Routes: []*routing.Route{
			{ID: "a", Source: routing.MatchTelemetry, Condition: "true", Endpoint: "e1", Priority: 1, TTLSecs: 30},
		},
	})

	rec := doRequest(router, "POST", "/api/routes/test",
		`{"source": "telemetry", "properties": {"severity": "critical"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		MessageID string                `json:"message_id"`
		Results   []routing.RouteResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.MessageID)
	require.Len(t, body.Results, 1)
	assert.Equal(t, routing.RouteResult{Endpoint: "e1", Priority: 1, TTLSecs: 30}, body.Results[0])
}

func TestTestEvaluateUnknownSource(t *testing.T) {
	router, _ := newTestAPI(t, routing.RouterConfig{})
	rec := doRequest(router, "POST", "/api/routes/test", `{"source": "smoke-signal"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTestEvaluatePredicateError(t *testing.T) {
	router, _ := newTestAPI(t, routing.RouterConfig{
		Routes: []*routing.Route{{ID: "a", Source: routing.MatchAll, Condition: "error", Endpoint: "e1"}},
	})

	rec := doRequest(router, "POST", "/api/routes/test", `{"source": "telemetry"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetStats(t *testing.T) {
	router, _ := newTestAPI(t, routing.RouterConfig{})

	rec := doRequest(router, "GET", "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats diagnostics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestAPI(t, routing.RouterConfig{})
	rec := doRequest(router, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
