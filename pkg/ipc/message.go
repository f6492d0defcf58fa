package ipc

import "encoding/json"

// Message type values carried on the wire.
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeError    = "error"
)

// Message is one framed IPC record. ID is the correlation token chosen by
// the side that originates a request; the matching response or error echoes
// it back. Payload is opaque to the framing layer.
type Message struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// errorPayload is the payload shape of TypeError messages.
type errorPayload struct {
	Message string `json:"message"`
}

// EncodeMessage serializes msg as a single JSON line terminated by '\n'.
// JSON escaping turns any control character inside strings into an escape
// sequence, so an encoded record never contains a raw newline byte and the
// delimiter stays unambiguous.
func EncodeMessage(msg Message) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
