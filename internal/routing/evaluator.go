package routing

import (
	"context"
	"sort"
	"sync"
)

// Evaluator owns the live route table and the optional fallback route and
// implements the per-message routing algorithm.
//
// Evaluate is lock-free and safe to call from any number of goroutines.
// SetRoute, RemoveRoute and ReplaceAll serialize with each other through a
// single mutex scoped to compile+publish; none of them blocks concurrent
// Evaluate calls.
type Evaluator struct {
	table    *RouteTable
	fallback *CompiledRoute
	compiler Compiler
	diag     DiagnosticsSink

	// mu serializes mutations; Evaluate never takes it
	mu sync.Mutex
}

// NewEvaluator builds an evaluator from a router configuration. Every
// route and the fallback (when present) are compiled up front; any compile
// failure rejects the whole configuration.
func NewEvaluator(cfg RouterConfig, compiler Compiler, diag DiagnosticsSink) (*Evaluator, error) {
	if compiler == nil {
		return nil, ErrNilCompiler
	}
	if diag == nil {
		diag = NopSink{}
	}

	e := &Evaluator{
		compiler: compiler,
		diag:     diag,
	}

	table := make(map[string]*CompiledRoute, len(cfg.Routes))
	for _, route := range cfg.Routes {
		compiled, err := e.compileRoute(route)
		if err != nil {
			return nil, err
		}
		table[route.ID] = compiled
	}
	e.table = NewRouteTable(table)

	if cfg.Fallback != nil {
		compiled, err := e.compileRoute(cfg.Fallback)
		if err != nil {
			return nil, err
		}
		e.fallback = compiled
	}

	return e, nil
}

// Evaluate decides which endpoints should receive msg.
//
// Every compiled route in the current snapshot whose source matcher
// accepts the message has its predicate evaluated. True is a match,
// undefined is a non-match that emits a diagnostic signal, and a predicate
// error aborts the call. Matches are then reduced to at most one
// RouteResult per endpoint, keeping the numerically smallest priority;
// equal priorities are broken by the lexicographically smallest route ID.
// When nothing matched, the message is telemetry-class and a fallback
// route is configured, the fallback predicate gets one chance to supply
// the decision.
//
// The returned slice is sorted by endpoint for deterministic output.
func (e *Evaluator) Evaluate(msg Message) ([]RouteResult, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}

	snapshot := e.table.Current()

	type winner struct {
		routeID string
		result  RouteResult
	}
	matched := make(map[string]winner)

	// Deterministic iteration so an evaluation error always surfaces the
	// same route for identical table state.
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		compiled := snapshot[id]
		if !msg.MatchesSource(compiled.Route.Source) {
			continue
		}

		verdict, err := compiled.Predicate(msg)
		if err != nil {
			e.diag.EvaluationFailure(id, err)
			return nil, &EvaluationError{RouteID: id, Err: err}
		}

		switch verdict {
		case TriUndefined:
			e.diag.UndefinedEvaluation(id)
		case TriTrue:
			candidate := winner{
				routeID: id,
				result: RouteResult{
					Endpoint: compiled.Route.Endpoint,
					Priority: compiled.Route.Priority,
					TTLSecs:  compiled.Route.TTLSecs,
				},
			}
			current, exists := matched[candidate.result.Endpoint]
			if !exists || candidateWins(candidate.result, candidate.routeID, current.result, current.routeID) {
				matched[candidate.result.Endpoint] = candidate
			}
		}
	}

	results := make([]RouteResult, 0, len(matched))
	for _, w := range matched {
		results = append(results, w.result)
	}

	if len(results) == 0 && msg.IsTelemetry() && e.fallback != nil {
		verdict, err := e.fallback.Predicate(msg)
		if err != nil {
			e.diag.EvaluationFailure(e.fallback.Route.ID, err)
			return nil, &EvaluationError{RouteID: e.fallback.Route.ID, Err: err}
		}
		switch verdict {
		case TriUndefined:
			e.diag.UndefinedEvaluation(e.fallback.Route.ID)
		case TriTrue:
			results = append(results, RouteResult{
				Endpoint: e.fallback.Route.Endpoint,
				Priority: e.fallback.Route.Priority,
				TTLSecs:  e.fallback.Route.TTLSecs,
			})
			e.diag.FallbackUsed(e.fallback.Route.Endpoint)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Endpoint < results[j].Endpoint
	})
	return results, nil
}

// candidateWins reports whether the candidate result beats the incumbent
// for the same endpoint: smaller priority wins, and among equal priorities
// the lexicographically smallest route ID wins.
func candidateWins(cand RouteResult, candID string, incumbent RouteResult, incumbentID string) bool {
	if cand.Priority != incumbent.Priority {
		return cand.Priority < incumbent.Priority
	}
	return candID < incumbentID
}

// SetRoute compiles route and atomically installs it under its ID,
// overwriting any prior route with the same ID. On compile failure the
// table keeps its previous state, including any prior entry for the ID.
func (e *Evaluator) SetRoute(route *Route) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRoute(route)
	if err != nil {
		return err
	}

	next := e.table.clone()
	next[route.ID] = compiled
	e.table.Publish(next)
	return nil
}

// RemoveRoute atomically removes the route with the given ID. Removing an
// absent ID is a no-op, not an error.
func (e *Evaluator) RemoveRoute(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.table.Current()[id]; !exists {
		return nil
	}

	next := e.table.clone()
	delete(next, id)
	e.table.Publish(next)
	return nil
}

// ReplaceAll replaces the entire table with the given route set. Every
// route is compiled before anything is committed: a single compile failure
// aborts the whole replacement and leaves the prior table untouched.
// Routes absent from the set are dropped; routes present are installed
// fresh even when identical to a prior version.
func (e *Evaluator) ReplaceAll(routes []*Route) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*CompiledRoute, len(routes))
	for _, route := range routes {
		compiled, err := e.compileRoute(route)
		if err != nil {
			return err
		}
		next[route.ID] = compiled
	}

	e.table.Publish(next)
	return nil
}

// Routes returns a snapshot of the live route definitions sorted by ID.
// The underlying mapping is immutable, so no locking is needed.
func (e *Evaluator) Routes() []Route {
	snapshot := e.table.Current()

	routes := make([]Route, 0, len(snapshot))
	for _, compiled := range snapshot {
		routes = append(routes, *compiled.Route)
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].ID < routes[j].ID
	})
	return routes
}

// FallbackRoute returns a copy of the configured fallback route definition,
// or nil when no fallback is configured.
func (e *Evaluator) FallbackRoute() *Route {
	if e.fallback == nil {
		return nil
	}
	route := *e.fallback.Route
	return &route
}

// Close releases nothing: the evaluator holds no background resources.
// The context exists for interface symmetry with the evaluator's owner
// and is ignored.
func (e *Evaluator) Close(_ context.Context) error {
	return nil
}

// compileRoute validates route, invokes the compiler with all operators
// enabled and emits the compile diagnostic signals.
func (e *Evaluator) compileRoute(route *Route) (*CompiledRoute, error) {
	if route == nil {
		return nil, ErrNilRoute
	}
	if route.ID == "" {
		return nil, ErrEmptyRouteID
	}

	e.diag.RouteCompileBegin(route.ID)
	predicate, err := e.compiler.Compile(route, AllOperators)
	if err != nil {
		e.diag.RouteCompileFailure(route.ID, err)
		return nil, &CompileError{RouteID: route.ID, Condition: route.Condition, Err: err}
	}
	e.diag.RouteCompileSuccess(route.ID)

	// Copy so later mutation of the caller's Route cannot leak into the table
	frozen := *route
	return &CompiledRoute{Route: &frozen, Predicate: predicate}, nil
}
