package gateway

import "encoding/json"

// FrameType identifies the kind of frame sent over the WebSocket connection.
type FrameType string

const (
	FrameTypeRequest  FrameType = "request"
	FrameTypeResponse FrameType = "response"
	FrameTypeEvent    FrameType = "event"
)

// Client-callable methods.
const (
	MethodRegister    = "register"
	MethodChatMessage = "chat-message"
)

// Server-pushed event names, carried in Frame.Method.
const (
	EventMissionNotification = "mission-notification"
	EventAgentConnected      = "agent-connected"
	EventAgentDisconnected   = "agent-disconnected"
	EventChatMessage         = "chat-message"
)

// Frame is the envelope exchanged between client and server over WebSocket.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      uint64          `json:"id,omitempty"`      // request/response correlation ID
	Method  string          `json:"method,omitempty"`  // RPC method or event name
	Payload json.RawMessage `json:"payload,omitempty"` // request params, response result or event body
	Error   string          `json:"error,omitempty"`   // error description (response only)
}

// eventFrame marshals payload into a server-pushed event.
func eventFrame(name string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Method: name, Payload: data}, nil
}
