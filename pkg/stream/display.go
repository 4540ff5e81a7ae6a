package stream

import (
	"fmt"
	"strings"

	"github.com/go-go-golems/concierge/pkg/usage"
)

// Display is what the caller sees for a snapshot: a markdown status panel and the
// natural-language message sent to the guest.
type Display struct {
	Kind        Kind   `json:"kind"`
	Markdown    string `json:"markdown"`
	UserMessage string `json:"user_message"`
	Final       bool   `json:"final"`
}

const (
	pausedUserMessage = "I need to pause briefly to stay within limits. " +
		"I've processed part of your request, but please send any remaining requests as separate messages."
	interruptedUserMessage = "I need to pause to stay within limits. " +
		"Please break down your request into smaller parts - " +
		"first ask about one thing, then about the other."
	systemErrorUserMessage = "I encountered a system error. Please try again or contact the front desk for assistance."
)

// Format renders a snapshot.
func Format(s Snapshot) Display {
	d := Display{Kind: s.Kind, Final: s.Final}
	switch s.Kind {
	case KindPaused:
		if s.Interrupted {
			d.Markdown = fmt.Sprintf(`## ⏸️ Request Paused
We need to pause processing to stay within usage limits.
Please try breaking down your request into smaller parts.

**Reason**: %s

## 💡 Tip
For multiple requests, try sending them as separate messages
for better handling (e.g. first ask for towels, then for recommendations).
`, s.Reason)
			d.UserMessage = interruptedUserMessage
			return d
		}
		d.Markdown = fmt.Sprintf(`## ⏸️ Request Paused
Some parts of your request were processed, but we need to pause to stay within limits.
Please try any remaining requests as separate messages.

**Reason**: %s

## 💡 Tip
For multiple requests like towels and restaurant recommendations,
try sending them as separate messages for better handling.
`, s.Reason)
		d.UserMessage = pausedUserMessage
	case KindFailed:
		d.Markdown = fmt.Sprintf("## ❌ Request Failed\n**Reason**: %s\n", s.Reason)
		d.UserMessage = "I apologize, but I couldn't process your request: " + s.Reason
	case KindSystemError:
		d.Markdown = fmt.Sprintf(`❌ System Error:
**Details**: %s

Please try again or contact the front desk for assistance.
`, s.Reason)
		d.UserMessage = systemErrorUserMessage
	default:
		status := orDefault(s.Status, "Processing")
		message := orDefault(s.Message, "Working on your request...")
		eta := orDefault(s.ETA, "Calculating...")
		d.Markdown = fmt.Sprintf("## ✅ Request Status\n**Status**: %s\n**Details**: %s\n**Timeline**: %s\n", status, message, eta)
		d.UserMessage = message
		if s.ETA != "" && !strings.EqualFold(s.ETA, "immediate") {
			d.UserMessage += "\n\nExpected time: " + s.ETA
		}
	}
	return d
}

// WithStatistics appends the usage block to the markdown panel.
func (d Display) WithStatistics(c usage.Counters) Display {
	d.Markdown += "\n" + usage.FormatStatistics(c)
	return d
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
