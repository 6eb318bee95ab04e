// Package diagnostics implements the routing DiagnosticsSink: structured
// logs for every routing signal plus in-memory counters surfaced through
// the stats endpoint. Signals are fire-and-forget; nothing in this package
// errors or panics back into the evaluation path.
package diagnostics

import (
	"sync"
	"sync/atomic"

	"github.com/vvv37912/iotedge/internal/common/logging"
)

// Snapshot is a point-in-time copy of the routing counters
type Snapshot struct {
	Compiles             int64            `json:"compiles"`
	CompileFailures      int64            `json:"compile_failures"`
	EvaluationFailures   int64            `json:"evaluation_failures"`
	UndefinedEvaluations int64            `json:"undefined_evaluations"`
	FallbackHits         int64            `json:"fallback_hits"`
	UndefinedByRoute     map[string]int64 `json:"undefined_by_route"`
}

// LogSink counts routing signals and mirrors them to the structured log
type LogSink struct {
	logger logging.Logger

	compiles             atomic.Int64
	compileFailures      atomic.Int64
	evaluationFailures   atomic.Int64
	undefinedEvaluations atomic.Int64
	fallbackHits         atomic.Int64

	mu               sync.Mutex
	undefinedByRoute map[string]int64
}

// NewLogSink creates a sink writing through the given logger. A nil logger
// falls back to the global logger.
func NewLogSink(logger logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &LogSink{
		logger:           logger,
		undefinedByRoute: make(map[string]int64),
	}
}

// RouteCompileBegin signals that compilation of a route condition started
func (s *LogSink) RouteCompileBegin(routeID string) {
	s.logger.Debug("compiling route condition", logging.Field{Key: "route_id", Value: routeID})
}

// RouteCompileSuccess signals that a route condition compiled cleanly
func (s *LogSink) RouteCompileSuccess(routeID string) {
	s.compiles.Add(1)
	s.logger.Debug("route condition compiled", logging.Field{Key: "route_id", Value: routeID})
}

// RouteCompileFailure signals that a route condition failed to compile
func (s *LogSink) RouteCompileFailure(routeID string, err error) {
	s.compileFailures.Add(1)
	s.logger.Error("route condition failed to compile", err, logging.Field{Key: "route_id", Value: routeID})
}

// EvaluationFailure signals that a predicate raised while executing
func (s *LogSink) EvaluationFailure(routeID string, err error) {
	s.evaluationFailures.Add(1)
	s.logger.Error("route condition evaluation failed", err, logging.Field{Key: "route_id", Value: routeID})
}

// UndefinedEvaluation signals that a predicate returned undefined for a
// message, usually a condition referencing a property the message lacks.
// Logged at warn so operators can spot routes that need tuning.
func (s *LogSink) UndefinedEvaluation(routeID string) {
	s.undefinedEvaluations.Add(1)
	s.mu.Lock()
	s.undefinedByRoute[routeID]++
	s.mu.Unlock()
	s.logger.Warn("route condition undefined for message", logging.Field{Key: "route_id", Value: routeID})
}

// FallbackUsed signals that the fallback route produced the decision
func (s *LogSink) FallbackUsed(endpoint string) {
	s.fallbackHits.Add(1)
	s.logger.Info("fallback route used", logging.Field{Key: "endpoint", Value: endpoint})
}

// Stats returns a copy of the current counters
func (s *LogSink) Stats() Snapshot {
	s.mu.Lock()
	byRoute := make(map[string]int64, len(s.undefinedByRoute))
	for id, n := range s.undefinedByRoute {
		byRoute[id] = n
	}
	s.mu.Unlock()

	return Snapshot{
		Compiles:             s.compiles.Load(),
		CompileFailures:      s.compileFailures.Load(),
		EvaluationFailures:   s.evaluationFailures.Load(),
		UndefinedEvaluations: s.undefinedEvaluations.Load(),
		FallbackHits:         s.fallbackHits.Load(),
		UndefinedByRoute:     byRoute,
	}
}
