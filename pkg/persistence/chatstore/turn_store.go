package chatstore

import (
	"context"

	"github.com/go-go-golems/concierge/pkg/usage"
)

// MessageRecord is one message of a stored exchange.
type MessageRecord struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	Content     string `json:"content"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// TurnRecord captures one processed incoming message for inspection.
type TurnRecord struct {
	ConvID      string          `json:"conv_id"`
	TurnID      string          `json:"turn_id"`
	Phase       string          `json:"phase"`
	CreatedAtMs int64           `json:"created_at_ms"`
	Kind        string          `json:"kind"`
	UserMessage string          `json:"user_message"`
	Markdown    string          `json:"markdown"`
	Usage       usage.Counters  `json:"usage"`
	Messages    []MessageRecord `json:"messages,omitempty"`
}

const (
	PhaseFinal       = "final"
	PhaseSystemError = "system_error"
)

// TurnQuery describes filters for loading stored turns.
type TurnQuery struct {
	ConvID  string
	Phase   string
	SinceMs int64
	Limit   int
}

// TurnStore persists processed turns for inspection/debugging.
type TurnStore interface {
	Save(ctx context.Context, t TurnRecord) error
	List(ctx context.Context, q TurnQuery) ([]TurnRecord, error)
	Close() error
}
