package routing

// Tristate is the outcome of evaluating a route condition against a
// message. Undefined is distinct from false: it means the condition
// referenced data the message does not carry, and routing treats it as a
// non-match while still surfacing it as a diagnostic signal.
type Tristate int

const (
	// TriFalse means the condition evaluated to false
	TriFalse Tristate = iota
	// TriTrue means the condition evaluated to true
	TriTrue
	// TriUndefined means the condition could not be decided for this message
	TriUndefined
)

// String returns the string representation of a tristate value
func (t Tristate) String() string {
	switch t {
	case TriFalse:
		return "false"
	case TriTrue:
		return "true"
	case TriUndefined:
		return "undefined"
	default:
		return "unknown"
	}
}

// SourceMatcher classifies which message categories a route is eligible
// for. Matching is performed by the message itself via MatchesSource, so
// this package stays agnostic of the concrete source taxonomy.
type SourceMatcher string

const (
	// MatchAll accepts every message source
	MatchAll SourceMatcher = "*"
	// MatchTelemetry accepts device-to-cloud telemetry messages
	MatchTelemetry SourceMatcher = "telemetry"
	// MatchTwinChange accepts twin change notification messages
	MatchTwinChange SourceMatcher = "twin-change"
	// MatchLifecycle accepts device lifecycle event messages
	MatchLifecycle SourceMatcher = "lifecycle"
	// MatchModuleOutput accepts module-to-module output messages
	MatchModuleOutput SourceMatcher = "module-output"
)

// Route is a declarative routing rule: messages whose source matches
// Source and whose properties satisfy Condition are forwarded to Endpoint.
// Routes are immutable once constructed; reconfiguring a route means
// publishing a new Route value under the same ID.
type Route struct {
	ID        string        `json:"id"`        // Unique route identifier
	Source    SourceMatcher `json:"source"`    // Message categories this route applies to
	Condition string        `json:"condition"` // Textual condition expression
	Endpoint  string        `json:"endpoint"`  // Destination endpoint identifier
	Priority  int           `json:"priority"`  // Lower value wins per endpoint
	TTLSecs   int           `json:"ttl_secs"`  // Message time-to-live once routed
}

// Predicate is a compiled route condition: a pure function over a message
// returning a tri-state verdict. Predicates must be side-effect free and
// safe for concurrent use. A returned error means the predicate raised
// while executing, which aborts the evaluation call that invoked it.
type Predicate func(msg Message) (Tristate, error)

// CompiledRoute pairs a route with its compiled predicate. Compiled routes
// are owned exclusively by the route table and rebuilt whenever the
// underlying route changes.
type CompiledRoute struct {
	Route     *Route
	Predicate Predicate
}

// RouteResult is the routing decision emitted for one endpoint. Two
// results are equal when all three fields match; the struct is comparable
// so == gives exactly that equality.
type RouteResult struct {
	Endpoint string `json:"endpoint"`
	Priority int    `json:"priority"`
	TTLSecs  int    `json:"ttl_secs"`
}

// OperatorSet selects which condition operators the compiler makes
// available to an expression.
type OperatorSet uint32

const (
	// BaseOperators is the minimal comparison and boolean surface
	BaseOperators OperatorSet = 1 << iota
	// ExtendedOperators adds the string and math helper functions
	ExtendedOperators

	// AllOperators enables everything; the hub always compiles with this
	AllOperators = BaseOperators | ExtendedOperators
)

// Compiler translates a route's textual condition into an executable
// predicate. Implementations must be safe for concurrent use and must not
// retain or mutate the route. A malformed condition yields an error and
// no predicate.
type Compiler interface {
	Compile(route *Route, operators OperatorSet) (Predicate, error)
}

// Message is the view of a message the routing core needs: source
// classification plus the property surface condition predicates inspect.
type Message interface {
	// MatchesSource reports whether the message's source classification
	// is accepted by the given matcher
	MatchesSource(matcher SourceMatcher) bool

	// IsTelemetry reports whether the message is telemetry-class and
	// therefore eligible for fallback routing
	IsTelemetry() bool

	// Properties returns the application properties set by the sender
	Properties() map[string]string

	// SystemProperties returns the hub-assigned system properties
	SystemProperties() map[string]string

	// Body returns the raw message payload
	Body() []byte
}

// DiagnosticsSink receives fire-and-forget routing signals. Implementations
// must never panic or propagate failures back into the routing path;
// anything that goes wrong inside a sink is the sink's problem.
type DiagnosticsSink interface {
	// RouteCompileBegin signals that compilation of a route condition started
	RouteCompileBegin(routeID string)

	// RouteCompileSuccess signals that a route condition compiled cleanly
	RouteCompileSuccess(routeID string)

	// RouteCompileFailure signals that a route condition failed to compile
	RouteCompileFailure(routeID string, err error)

	// EvaluationFailure signals that a predicate raised while executing
	EvaluationFailure(routeID string, err error)

	// UndefinedEvaluation signals that a predicate returned undefined,
	// typically because the condition references a property the message
	// does not carry
	UndefinedEvaluation(routeID string)

	// FallbackUsed signals that the fallback route produced the decision
	FallbackUsed(endpoint string)
}

// NopSink is a DiagnosticsSink that discards every signal
type NopSink struct{}

func (NopSink) RouteCompileBegin(string)          {}
func (NopSink) RouteCompileSuccess(string)        {}
func (NopSink) RouteCompileFailure(string, error) {}
func (NopSink) EvaluationFailure(string, error)   {}
func (NopSink) UndefinedEvaluation(string)        {}
func (NopSink) FallbackUsed(string)               {}

// RouterConfig is the construction input for an Evaluator: the initial
// route set and an optional fallback route consulted only when no ordinary
// route matches a telemetry-class message.
type RouterConfig struct {
	Routes   []*Route `json:"routes"`
	Fallback *Route   `json:"fallback,omitempty"`
}
