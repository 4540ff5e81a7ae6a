package requests

import (
	"fmt"
	"strings"

	"github.com/go-go-golems/concierge/pkg/usage"
)

// PausedItemText replaces the ledger error of a request the budget stopped. It keeps
// the usage marker so the combined result is still recognized as paused.
const PausedItemText = usage.LimitExceededMarker + " before I could handle this, so please send it again as a separate message."

// Item pairs a request with the outcome produced for it.
type Item struct {
	Request Request
	Outcome Outcome
}

// Combine merges the outcomes of one incoming message. Items must be in the order
// the requests were identified.
func Combine(items []Item) Outcome {
	if len(items) == 0 {
		out := Failure("no request could be identified in the message")
		out.Status = StatusFailed
		return out
	}

	var (
		lines     = make([]string, 0, len(items))
		succeeded bool
		paused    bool
		eta       string
		first     = true
	)
	for _, it := range items {
		lines = append(lines, tagLine(it, len(items) > 1))
		if it.Outcome.IsPaused() {
			paused = true
		}
		if !it.Outcome.IsSuccess() {
			continue
		}
		if first {
			eta = it.Outcome.ETA
			first = false
		} else {
			eta = LaterETA(eta, it.Outcome.ETA)
		}
		succeeded = true
	}

	msg := strings.Join(lines, "\n")
	if !succeeded {
		var out Outcome
		if paused {
			out = Paused(msg)
		} else {
			out = Failure(msg)
		}
		out.Status = StatusFailed
		return out
	}
	return Success(StatusCompleted, msg, eta)
}

func tagLine(it Item, tagged bool) string {
	text := it.Outcome.Text()
	if it.Outcome.IsPaused() {
		text = PausedItemText
	}
	if !tagged {
		return text
	}
	label := strings.TrimSpace(it.Request.Description)
	if label == "" {
		label = it.Request.RequestType
	}
	if it.Outcome.IsSuccess() || it.Outcome.IsPaused() {
		return fmt.Sprintf("- %s: %s", label, text)
	}
	return fmt.Sprintf("- %s: could not be completed (%s)", label, text)
}
