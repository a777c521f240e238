// Package hub provides a thread-safe websocket broadcast hub using the
// channel-based fan-out pattern. The dashboard uses it to push change
// events and call state to connected browsers.
package hub

// Message is a pre-encoded payload to broadcast to clients.
type Message struct {
	Data []byte
}

// NewJSONMessage creates a message from pre-encoded JSON bytes.
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}
