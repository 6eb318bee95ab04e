// Package condition compiles textual route conditions into executable
// tri-state predicates using CEL (Common Expression Language).
//
// Expressions see three variables:
//
//   - properties: the message's application properties (map of string)
//   - system: the hub-assigned system properties (map of string)
//   - body: the decoded JSON payload, when the payload decodes
//
// A condition that references a property or body field the message does
// not carry evaluates to undefined rather than raising: routing treats
// undefined as a non-match and records a diagnostic signal.
package condition

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/vvv37912/iotedge/internal/routing"
)

// Compiler is a CEL-backed implementation of routing.Compiler. It is
// stateless after construction and safe for concurrent use.
type Compiler struct {
	baseEnv     *cel.Env
	extendedEnv *cel.Env
}

// NewCompiler creates a compiler with both the base and the extended
// operator environments prepared.
func NewCompiler() (*Compiler, error) {
	declarations := []cel.EnvOption{
		cel.Variable("properties", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("system", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("body", cel.DynType),
	}

	baseEnv, err := cel.NewEnv(declarations...)
	if err != nil {
		return nil, fmt.Errorf("failed to create base CEL environment: %w", err)
	}

	extendedEnv, err := cel.NewEnv(append(declarations, ext.Strings(), ext.Math())...)
	if err != nil {
		return nil, fmt.Errorf("failed to create extended CEL environment: %w", err)
	}

	return &Compiler{baseEnv: baseEnv, extendedEnv: extendedEnv}, nil
}

// MustNewCompiler is NewCompiler that panics on failure, for composition
// roots where a broken CEL environment is unrecoverable.
func MustNewCompiler() *Compiler {
	c, err := NewCompiler()
	if err != nil {
		panic(err)
	}
	return c
}

// Compile translates route's condition into a predicate. An empty or
// blank condition compiles to an always-true predicate, matching the
// hub's default of routing every source-matched message.
func (c *Compiler) Compile(route *routing.Route, operators routing.OperatorSet) (routing.Predicate, error) {
	expr := strings.TrimSpace(route.Condition)
	if expr == "" {
		return func(routing.Message) (routing.Tristate, error) {
			return routing.TriTrue, nil
		}, nil
	}

	env := c.baseEnv
	if operators&routing.ExtendedOperators != 0 {
		env = c.extendedEnv
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("parse error: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("condition must evaluate to a boolean, got %s", out)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program generation error: %w", err)
	}

	return func(msg routing.Message) (routing.Tristate, error) {
		out, _, err := program.Eval(activation(msg))
		if err != nil {
			if isUndefinedError(err) {
				return routing.TriUndefined, nil
			}
			return routing.TriFalse, err
		}
		if b, ok := out.Value().(bool); ok {
			if b {
				return routing.TriTrue, nil
			}
			return routing.TriFalse, nil
		}
		// Non-boolean result from a dyn expression is undecidable
		return routing.TriUndefined, nil
	}, nil
}

// activation builds the variable bindings for one evaluation. The body
// variable is bound only when the payload decodes as JSON; conditions
// referencing it against a non-JSON payload come back undefined.
func activation(msg routing.Message) map[string]interface{} {
	vars := map[string]interface{}{
		"properties": msg.Properties(),
		"system":     msg.SystemProperties(),
	}
	if raw := msg.Body(); len(raw) > 0 {
		var decoded interface{}
		if err := json.Unmarshal(raw, &decoded); err == nil {
			vars["body"] = decoded
		}
	}
	return vars
}

// isUndefinedError reports whether a CEL runtime error means the
// expression referenced data the message does not carry
func isUndefinedError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such key") ||
		strings.Contains(msg, "no such attribute") ||
		strings.Contains(msg, "no such overload")
}
