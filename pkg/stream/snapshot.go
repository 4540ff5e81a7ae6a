package stream

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/concierge/pkg/requests"
	"github.com/go-go-golems/concierge/pkg/usage"
)

// ErrValidation marks an update that does not have the TaskResponse or Failed shape.
var ErrValidation = errors.New("invalid update")

// Update is one raw increment produced by the coordination call.
type Update struct {
	Payload map[string]any
	IsLast  bool
}

// Kind classifies a validated snapshot for display and tracing.
type Kind string

const (
	KindStatus      Kind = "status"
	KindFailed      Kind = "failed"
	KindPaused      Kind = "paused"
	KindSystemError Kind = "system_error"
)

// Snapshot is a validated update.
type Snapshot struct {
	Kind    Kind   `json:"kind"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	ETA     string `json:"eta,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Final   bool   `json:"final"`
	// Interrupted is set on the snapshot synthesized when the source itself stopped on
	// the usage budget.
	Interrupted bool `json:"interrupted,omitempty"`
}

var validStatuses = map[string]bool{
	string(requests.StatusCompleted): true,
	string(requests.StatusPending):   true,
	string(requests.StatusFailed):    true,
}

// Validate checks payload against the TaskResponse / Failed shapes. With partial set,
// missing fields are allowed; fields that are present must still be well formed.
func Validate(payload map[string]any, partial bool) (Snapshot, error) {
	if payload == nil {
		if partial {
			return Snapshot{Kind: KindStatus}, nil
		}
		return Snapshot{}, errors.Wrap(ErrValidation, "empty payload")
	}

	if raw, ok := payload["reason"]; ok {
		reason, ok := raw.(string)
		if !ok {
			return Snapshot{}, errors.Wrapf(ErrValidation, "reason must be a string, got %T", raw)
		}
		if !partial && strings.TrimSpace(reason) == "" {
			return Snapshot{}, errors.Wrap(ErrValidation, "reason is empty")
		}
		kind := KindFailed
		if strings.Contains(reason, usage.LimitExceededMarker) {
			kind = KindPaused
		}
		return Snapshot{Kind: kind, Reason: reason, Final: !partial}, nil
	}

	s := Snapshot{Kind: KindStatus, Final: !partial}
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"status", &s.Status},
		{"message", &s.Message},
		{"eta", &s.ETA},
	} {
		raw, ok := payload[f.key]
		if !ok || raw == nil {
			if !partial && f.key != "eta" {
				return Snapshot{}, errors.Wrapf(ErrValidation, "missing %s", f.key)
			}
			continue
		}
		v, ok := raw.(string)
		if !ok {
			return Snapshot{}, errors.Wrapf(ErrValidation, "%s must be a string, got %T", f.key, raw)
		}
		*f.dst = v
	}
	if s.Status != "" && !validStatuses[s.Status] {
		return Snapshot{}, errors.Wrapf(ErrValidation, "unknown status %q", s.Status)
	}
	return s, nil
}

// PayloadFromOutcome converts an aggregated outcome into the payload shape the
// pipeline consumes.
func PayloadFromOutcome(o requests.Outcome) map[string]any {
	return o.AsMap()
}

func (s Snapshot) String() string {
	switch s.Kind {
	case KindStatus:
		return fmt.Sprintf("%s: %s (%s)", s.Status, s.Message, s.ETA)
	default:
		return fmt.Sprintf("%s: %s", s.Kind, s.Reason)
	}
}
