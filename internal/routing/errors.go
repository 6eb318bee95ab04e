package routing

import (
	"errors"
	"fmt"
)

var (
	// ErrNilRoute is returned when a mutation is given a nil route
	ErrNilRoute = errors.New("route is nil")

	// ErrEmptyRouteID is returned when a route has no identifier
	ErrEmptyRouteID = errors.New("route ID is empty")

	// ErrNilCompiler is returned when an evaluator is constructed without a compiler
	ErrNilCompiler = errors.New("compiler is nil")

	// ErrNilMessage is returned when Evaluate is given a nil message
	ErrNilMessage = errors.New("message is nil")
)

// CompileError reports that a route's condition failed to compile. The
// mutation that triggered compilation fails as a whole and the table keeps
// its prior state.
type CompileError struct {
	RouteID   string
	Condition string
	Err       error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("route %q: condition %q failed to compile: %v", e.RouteID, e.Condition, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// EvaluationError reports that a compiled predicate raised while executing
// against a message. The Evaluate call that hit it terminates; routes not
// yet visited are not evaluated for that message.
type EvaluationError struct {
	RouteID string
	Err     error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("route %q: condition evaluation failed: %v", e.RouteID, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}
