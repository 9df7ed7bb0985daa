package ws

import "encoding/json"

// Frame is the JSON envelope for every outbound event. Type carries
// the chat event name; Payload is event-specific.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// inboundFrame is the client-to-server envelope. Payload stays raw so
// each event type can enforce its own payload shape; for both inbound
// events that shape is a JSON string.
type inboundFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound event names understood by the server.
const (
	inboundNewUser = "newUser"
	inboundMessage = "message"
)
