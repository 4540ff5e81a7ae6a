package trace

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names one kind of internal trace record.
type EventType string

const (
	EventDecomposed       EventType = "decomposed"
	EventClassified       EventType = "classified"
	EventDedup            EventType = "dedup"
	EventHandlerOutput    EventType = "handler_output"
	EventUsageLimit       EventType = "usage_limit"
	EventSnapshot         EventType = "snapshot"
	EventValidationFailed EventType = "validation_failed"
	EventFinal            EventType = "final"
	EventSystemError      EventType = "system_error"
	EventClarification    EventType = "clarification"
)

// Event is one trace record. Fields hold JSON-compatible values.
type Event struct {
	ID     string         `json:"id"`
	Type   EventType      `json:"type"`
	ConvID string         `json:"conv_id,omitempty"`
	TurnID string         `json:"turn_id,omitempty"`
	Time   time.Time      `json:"time"`
	Fields map[string]any `json:"fields,omitempty"`
}

type ctxKey int

const (
	convKey ctxKey = iota
	turnKey
)

// WithConversation tags ctx with the conversation id used on emitted events.
func WithConversation(ctx context.Context, convID string) context.Context {
	return context.WithValue(ctx, convKey, convID)
}

// WithTurn tags ctx with the id of the message being processed.
func WithTurn(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, turnKey, turnID)
}

func ConversationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(convKey).(string)
	return v
}

func TurnID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(turnKey).(string)
	return v
}

func NewEvent(ctx context.Context, t EventType, fields map[string]any) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   t,
		ConvID: ConversationID(ctx),
		TurnID: TurnID(ctx),
		Time:   time.Now().UTC(),
		Fields: fields,
	}
}
