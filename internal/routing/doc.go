// Package routing implements the routing-decision core of the edge hub:
// a hot-swappable table of declarative routes and the per-message
// evaluation algorithm that decides which endpoints receive a message.
//
// The package is built around three pieces:
//
// 1. RouteTable: an atomically-swappable, immutable mapping from route ID
// to compiled route. Reads are wait-free; writes are copy-on-write.
//
// 2. Compiler: an external collaborator that turns a route's textual
// condition into an executable tri-state predicate. This package never
// parses condition syntax itself.
//
// 3. Evaluator: owns the table and an optional fallback route, exposes
// the mutation operations (SetRoute, RemoveRoute, ReplaceAll) and the
// Evaluate algorithm invoked once per message.
//
// Concurrency contract:
//
// Evaluate never blocks and never takes a lock; it is safe to call from
// arbitrarily many goroutines concurrently with mutations. Mutations
// serialize with each other through a single mutex and publish a brand-new
// table snapshot atomically, so an Evaluate call observes either the
// fully-old or fully-new route set, never a mixture.
//
// Example usage:
//
//	compiler := condition.MustNewCompiler()
//	eval, err := routing.NewEvaluator(routing.RouterConfig{
//		Routes: []*routing.Route{{
//			ID:        "alerts",
//			Source:    routing.MatchTelemetry,
//			Condition: `properties["severity"] == "critical"`,
//			Endpoint:  "alerts-upstream",
//			Priority:  1,
//			TTLSecs:   3600,
//		}},
//	}, compiler, sink)
//	if err != nil {
//		log.Fatalf("routing config rejected: %v", err)
//	}
//
//	results, err := eval.Evaluate(msg)
//	if err != nil {
//		// predicate raised while executing; caller decides whether to
//		// drop, retry or dead-letter the message
//	}
//	for _, r := range results {
//		deliver(msg, r.Endpoint, r.TTLSecs)
//	}
package routing
