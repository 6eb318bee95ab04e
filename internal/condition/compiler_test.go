package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvv37912/iotedge/internal/message"
	"github.com/vvv37912/iotedge/internal/routing"
)

func testRoute(condition string) *routing.Route {
	return &routing.Route{
		ID:        "test",
		Source:    routing.MatchAll,
		Condition: condition,
		Endpoint:  "e1",
	}
}

func telemetry(body []byte, props map[string]string) *message.Message {
	return message.New(message.SourceTelemetry, body, props, nil)
}

func TestCompileMalformedCondition(t *testing.T) {
	c := MustNewCompiler()
	_, err := c.Compile(testRoute("1 +"), routing.AllOperators)
	assert.Error(t, err)
}

func TestCompileNonBooleanCondition(t *testing.T) {
	c := MustNewCompiler()
	_, err := c.Compile(testRoute("1 + 2"), routing.AllOperators)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "boolean")
}

func TestEmptyConditionAlwaysMatches(t *testing.T) {
	c := MustNewCompiler()
	pred, err := c.Compile(testRoute("   "), routing.AllOperators)
	require.NoError(t, err)

	verdict, err := pred(telemetry(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, routing.TriTrue, verdict)
}

func TestPropertyComparison(t *testing.T) {
	c := MustNewCompiler()
	pred, err := c.Compile(testRoute(`properties["severity"] == "critical"`), routing.AllOperators)
	require.NoError(t, err)

	tests := []struct {
		name  string
		props map[string]string
		want  routing.Tristate
	}{
		{"matching value", map[string]string{"severity": "critical"}, routing.TriTrue},
		{"different value", map[string]string{"severity": "info"}, routing.TriFalse},
		{"missing property", map[string]string{"other": "x"}, routing.TriUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := pred(telemetry(nil, tt.props))
			require.NoError(t, err)
			assert.Equal(t, tt.want, verdict)
		})
	}
}

func TestSystemPropertyAccess(t *testing.T) {
	c := MustNewCompiler()
	pred, err := c.Compile(testRoute(`system["source"] == "telemetry"`), routing.AllOperators)
	require.NoError(t, err)

	verdict, err := pred(telemetry(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, routing.TriTrue, verdict)
}

func TestBodyFieldComparison(t *testing.T) {
	c := MustNewCompiler()
	pred, err := c.Compile(testRoute(`body.temperature > 25.0`), routing.AllOperators)
	require.NoError(t, err)

	verdict, err := pred(telemetry([]byte(`{"temperature": 30.5}`), nil))
	require.NoError(t, err)
	assert.Equal(t, routing.TriTrue, verdict)

	verdict, err = pred(telemetry([]byte(`{"temperature": 20}`), nil))
	require.NoError(t, err)
	assert.Equal(t, routing.TriFalse, verdict)
}

func TestBodyUndefinedForNonJSONPayload(t *testing.T) {
	c := MustNewCompiler()
	pred, err := c.Compile(testRoute(`body.temperature > 25.0`), routing.AllOperators)
	require.NoError(t, err)

	verdict, err := pred(telemetry([]byte("not json"), nil))
	require.NoError(t, err)
	assert.Equal(t, routing.TriUndefined, verdict)
}

func TestBodyMissingFieldIsUndefined(t *testing.T) {
	c := MustNewCompiler()
	pred, err := c.Compile(testRoute(`body.humidity > 50.0`), routing.AllOperators)
	require.NoError(t, err)

	verdict, err := pred(telemetry([]byte(`{"temperature": 30}`), nil))
	require.NoError(t, err)
	assert.Equal(t, routing.TriUndefined, verdict)
}

func TestExtendedOperatorsGating(t *testing.T) {
	c := MustNewCompiler()
	expr := `properties["name"].lowerAscii() == "sensor"`

	_, err := c.Compile(testRoute(expr), routing.BaseOperators)
	assert.Error(t, err, "extended string functions must be rejected by the base operator set")

	pred, err := c.Compile(testRoute(expr), routing.AllOperators)
	require.NoError(t, err)

	verdict, err := pred(telemetry(nil, map[string]string{"name": "SENSOR"}))
	require.NoError(t, err)
	assert.Equal(t, routing.TriTrue, verdict)
}

func TestBooleanCombinators(t *testing.T) {
	c := MustNewCompiler()
	pred, err := c.Compile(testRoute(`properties["a"] == "1" && properties["b"] != "2"`), routing.AllOperators)
	require.NoError(t, err)

	verdict, err := pred(telemetry(nil, map[string]string{"a": "1", "b": "3"}))
	require.NoError(t, err)
	assert.Equal(t, routing.TriTrue, verdict)
}
