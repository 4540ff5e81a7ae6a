package webchat

import (
	"github.com/go-go-golems/concierge/pkg/stream"
	"github.com/go-go-golems/concierge/pkg/trace"
)

// FrameType names the kind of a websocket frame.
type FrameType string

const (
	FrameWelcome  FrameType = "welcome"
	FrameSnapshot FrameType = "snapshot"
	FrameFinal    FrameType = "final"
	FrameQuestion FrameType = "question"
	FrameTrace    FrameType = "trace"
	FrameError    FrameType = "error"
)

// Frame is the JSON envelope sent to websocket clients.
type Frame struct {
	Type    FrameType       `json:"type"`
	ConvID  string          `json:"conv_id"`
	TurnID  string          `json:"turn_id,omitempty"`
	Text    string          `json:"text,omitempty"`
	Display *stream.Display `json:"display,omitempty"`
	Event   *trace.Event    `json:"event,omitempty"`
}

// ClientFrame is what websocket clients send.
type ClientFrame struct {
	// Type is "chat" for a new message or "answer" for a reply to a question.
	Type string `json:"type"`
	Text string `json:"text"`
}
