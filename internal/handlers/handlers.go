// Package handlers implements the HTTP admin API for route management:
// listing, installing, removing and bulk-replacing routes, test-evaluating
// messages against the live table, and exposing routing statistics.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vvv37912/iotedge/internal/common/logging"
	"github.com/vvv37912/iotedge/internal/diagnostics"
	"github.com/vvv37912/iotedge/internal/message"
	"github.com/vvv37912/iotedge/internal/routing"
)

// Handlers holds the dependencies for all admin API endpoints
type Handlers struct {
	evaluator *routing.Evaluator
	diag      *diagnostics.LogSink
	logger    logging.Logger
}

// New creates the handler set for the admin API
func New(evaluator *routing.Evaluator, diag *diagnostics.LogSink, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handlers{
		evaluator: evaluator,
		diag:      diag,
		logger:    logger,
	}
}

// GetRoutes returns the live route definitions
func (h *Handlers) GetRoutes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"routes":   h.evaluator.Routes(),
		"fallback": h.evaluator.FallbackRoute(),
	})
}

// SetRoute installs or overwrites a single route. The route ID comes from
// the URL path and wins over any ID in the body.
func (h *Handlers) SetRoute(w http.ResponseWriter, r *http.Request) {
	var route routing.Route
	if err := json.NewDecoder(r.Body).Decode(&route); err != nil {
		writeError(w, http.StatusBadRequest, "invalid route JSON: "+err.Error())
		return
	}
	route.ID = mux.Vars(r)["id"]

	if err := h.evaluator.SetRoute(&route); err != nil {
		h.writeRoutingError(w, err)
		return
	}
	h.logger.Info("route installed", logging.Field{Key: "route_id", Value: route.ID})
	writeJSON(w, http.StatusOK, route)
}

// DeleteRoute removes a single route; removing an unknown route succeeds
func (h *Handlers) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.evaluator.RemoveRoute(id); err != nil {
		h.writeRoutingError(w, err)
		return
	}
	h.logger.Info("route removed", logging.Field{Key: "route_id", Value: id})
	w.WriteHeader(http.StatusNoContent)
}

// ReplaceRoutes replaces the entire route table. A single bad route
// rejects the whole set and leaves the prior table untouched.
func (h *Handlers) ReplaceRoutes(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Routes []*routing.Route `json:"routes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid routes JSON: "+err.Error())
		return
	}

	if err := h.evaluator.ReplaceAll(payload.Routes); err != nil {
		h.writeRoutingError(w, err)
		return
	}
	h.logger.Info("route table replaced", logging.Field{Key: "route_count", Value: len(payload.Routes)})
	writeJSON(w, http.StatusOK, map[string]interface{}{"routes": h.evaluator.Routes()})
}

// TestEvaluate runs the routing algorithm for a caller-supplied message
// and returns the resulting decisions without delivering anything
func (h *Handlers) TestEvaluate(w http.ResponseWriter, r *http.Request) {
	var env message.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid message JSON: "+err.Error())
		return
	}

	msg, err := message.FromEnvelope(env)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.evaluator.Evaluate(msg)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message_id": msg.ID(),
		"results":    results,
	})
}

// GetStats returns the routing diagnostics counters
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.diag.Stats())
}

// HealthCheck reports service liveness
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeRoutingError maps evaluator errors onto HTTP statuses
func (h *Handlers) writeRoutingError(w http.ResponseWriter, err error) {
	var compileErr *routing.CompileError
	switch {
	case errors.As(err, &compileErr):
		writeError(w, http.StatusUnprocessableEntity, compileErr.Error())
	case errors.Is(err, routing.ErrNilRoute), errors.Is(err, routing.ErrEmptyRouteID):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("route mutation failed", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
