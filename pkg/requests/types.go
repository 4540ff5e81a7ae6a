package requests

import (
	"strings"
)

// Priority of a guest request.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority maps free text onto a Priority, defaulting to medium.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

// Request is one sub-request extracted from an incoming guest message.
type Request struct {
	RequestType string   `json:"request_type" yaml:"request_type"`
	Description string   `json:"description" yaml:"description"`
	RoomContext string   `json:"room_context,omitempty" yaml:"room_context,omitempty"`
	Priority    Priority `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Fingerprint is the dedup key: request type and description joined by a colon,
// compared exactly.
type Fingerprint string

func (r Request) Fingerprint() Fingerprint {
	return Fingerprint(r.RequestType + ":" + r.Description)
}

func (r Request) WithDefaults() Request {
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
	return r
}

// Status of a successful outcome.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

// Outcome is the normalized result of handling one request: either a success
// carrying status/message/eta, or a failure carrying a reason.
type Outcome struct {
	ok      bool
	paused  bool
	Status  Status `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	ETA     string `json:"eta,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func Success(status Status, message, eta string) Outcome {
	if status == "" {
		status = StatusCompleted
	}
	return Outcome{ok: true, Status: status, Message: message, ETA: eta}
}

func Failure(reason string) Outcome {
	return Outcome{Reason: reason}
}

// Paused builds the failure produced when the usage budget stops processing.
func Paused(reason string) Outcome {
	return Outcome{paused: true, Reason: reason}
}

func (o Outcome) IsSuccess() bool { return o.ok }

// IsPaused is true for failures caused by the usage budget.
func (o Outcome) IsPaused() bool { return o.paused }

// Text is the message for a success and the reason for a failure.
func (o Outcome) Text() string {
	if o.ok {
		return o.Message
	}
	return o.Reason
}

// AsMap renders the outcome in the TaskResponse / Failed wire shape.
func (o Outcome) AsMap() map[string]any {
	if !o.ok {
		return map[string]any{"reason": o.Reason}
	}
	return map[string]any{
		"status":  string(o.Status),
		"message": o.Message,
		"eta":     o.ETA,
	}
}
