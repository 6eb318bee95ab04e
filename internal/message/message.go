// Package message provides the hub's message object model: source
// classification, system and application properties, and the raw payload.
// It implements the routing.Message interface consumed by the evaluation
// engine.
package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vvv37912/iotedge/internal/routing"
)

// Source classifies where a message entered the hub
type Source int

const (
	// SourceTelemetry is a device-to-cloud telemetry message
	SourceTelemetry Source = iota
	// SourceTwinChange is a twin change notification
	SourceTwinChange
	// SourceLifecycle is a device lifecycle event
	SourceLifecycle
	// SourceModuleOutput is a message emitted by a module output
	SourceModuleOutput
)

// String returns the string representation of a source classification
func (s Source) String() string {
	switch s {
	case SourceTelemetry:
		return "telemetry"
	case SourceTwinChange:
		return "twin-change"
	case SourceLifecycle:
		return "lifecycle"
	case SourceModuleOutput:
		return "module-output"
	default:
		return "unknown"
	}
}

// ParseSource converts a source name to its Source value
func ParseSource(name string) (Source, error) {
	switch name {
	case "telemetry":
		return SourceTelemetry, nil
	case "twin-change":
		return SourceTwinChange, nil
	case "lifecycle":
		return SourceLifecycle, nil
	case "module-output":
		return SourceModuleOutput, nil
	default:
		return 0, fmt.Errorf("unknown message source %q", name)
	}
}

// Message is an immutable in-flight hub message. Construct with New; the
// property maps and payload must not be mutated afterwards.
type Message struct {
	id         string
	source     Source
	appProps   map[string]string
	sysProps   map[string]string
	body       []byte
	enqueuedAt time.Time
}

// System property keys assigned by the hub
const (
	SysMessageID    = "messageId"
	SysEnqueuedTime = "enqueuedTime"
	SysSource       = "source"
)

// New creates a message with a generated ID and enqueue timestamp. The
// hub-assigned system properties (messageId, enqueuedTime, source) are
// filled in unless the caller already supplied them.
func New(source Source, body []byte, appProps, sysProps map[string]string) *Message {
	m := &Message{
		id:         uuid.NewString(),
		source:     source,
		appProps:   appProps,
		body:       body,
		enqueuedAt: time.Now().UTC(),
	}
	if m.appProps == nil {
		m.appProps = map[string]string{}
	}

	m.sysProps = make(map[string]string, len(sysProps)+3)
	for k, v := range sysProps {
		m.sysProps[k] = v
	}
	if existing, ok := m.sysProps[SysMessageID]; ok {
		m.id = existing
	} else {
		m.sysProps[SysMessageID] = m.id
	}
	if _, ok := m.sysProps[SysEnqueuedTime]; !ok {
		m.sysProps[SysEnqueuedTime] = m.enqueuedAt.Format(time.RFC3339Nano)
	}
	if _, ok := m.sysProps[SysSource]; !ok {
		m.sysProps[SysSource] = source.String()
	}
	return m
}

// ID returns the message identifier
func (m *Message) ID() string {
	return m.id
}

// Source returns the message's source classification
func (m *Message) Source() Source {
	return m.source
}

// EnqueuedAt returns when the hub accepted the message
func (m *Message) EnqueuedAt() time.Time {
	return m.enqueuedAt
}

// MatchesSource reports whether matcher accepts this message's source
// classification. The "*" matcher accepts everything.
func (m *Message) MatchesSource(matcher routing.SourceMatcher) bool {
	if matcher == routing.MatchAll {
		return true
	}
	return string(matcher) == m.source.String()
}

// IsTelemetry reports whether the message is telemetry-class and therefore
// eligible for fallback routing
func (m *Message) IsTelemetry() bool {
	return m.source == SourceTelemetry
}

// Properties returns the application properties. The map is shared;
// callers must treat it as read-only.
func (m *Message) Properties() map[string]string {
	return m.appProps
}

// SystemProperties returns the hub-assigned system properties. The map is
// shared; callers must treat it as read-only.
func (m *Message) SystemProperties() map[string]string {
	return m.sysProps
}

// Body returns the raw payload
func (m *Message) Body() []byte {
	return m.body
}
