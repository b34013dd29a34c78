package websocket

import (
	"fmt"

	json "github.com/json-iterator/go"
)

// Event names a realtime event. connect, disconnect and connect_error are
// raised locally by the channel; the rest come from the server.
type Event string

const (
	EventConnect      Event = "connect"
	EventDisconnect   Event = "disconnect"
	EventConnectError Event = "connect_error"

	EventNewNotification      Event = "new_notification"
	EventNotificationsRead    Event = "notifications-read"
	EventNotificationsAllRead Event = "notifications-all-read"
)

// Message is the wire envelope. Payload is kept raw; handlers decode the
// shape they expect.
type Message struct {
	Type    Event           `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v interface{}) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	return json.Unmarshal(m.Payload, v)
}

// DisconnectInfo is the payload of a local disconnect event.
type DisconnectInfo struct {
	Reason string `json:"reason"`
}

// ErrorInfo is the payload of a local connect_error event.
type ErrorInfo struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// Reasons carried by DisconnectInfo.
const (
	ReasonServerDisconnect = "io server disconnect"
	ReasonTransportClose   = "transport close"
)

func newMessage(event Event, payload interface{}) Message {
	msg := Message{Type: event}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			msg.Payload = data
		}
	}
	return msg
}
