package message

import "encoding/json"

// Envelope is the JSON wire form of a message accepted by the admin API's
// test-evaluation endpoint.
type Envelope struct {
	Source           string            `json:"source"`
	Body             json.RawMessage   `json:"body,omitempty"`
	Properties       map[string]string `json:"properties,omitempty"`
	SystemProperties map[string]string `json:"system_properties,omitempty"`
}

// FromEnvelope builds a Message from its JSON wire form
func FromEnvelope(env Envelope) (*Message, error) {
	source, err := ParseSource(env.Source)
	if err != nil {
		return nil, err
	}
	return New(source, []byte(env.Body), env.Properties, env.SystemProperties), nil
}
