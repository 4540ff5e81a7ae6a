package usage

import (
	"fmt"

	"github.com/pkg/errors"
)

// LimitExceededMarker is the phrase carried by every budget error. Presentation code
// branches on it, so it must stay stable.
const LimitExceededMarker = "Usage limit reached"

const (
	DefaultRequestLimit = 10
	DefaultTokenLimit   = 12000
)

// Budget is the configured ceiling for one processing round.
type Budget struct {
	RequestLimit int `json:"request_limit" yaml:"request_limit"`
	TokenLimit   int `json:"token_limit" yaml:"token_limit"`
}

func DefaultBudget() Budget {
	return Budget{RequestLimit: DefaultRequestLimit, TokenLimit: DefaultTokenLimit}
}

// Counters only ever grow.
type Counters struct {
	RequestsMade     int `json:"requests_made"`
	TokensConsumed   int `json:"tokens_consumed"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (c Counters) Add(o Counters) Counters {
	return Counters{
		RequestsMade:     c.RequestsMade + o.RequestsMade,
		TokensConsumed:   c.TokensConsumed + o.TokensConsumed,
		PromptTokens:     c.PromptTokens + o.PromptTokens,
		CompletionTokens: c.CompletionTokens + o.CompletionTokens,
	}
}

// Tokens is the measured consumption of one backend call.
type Tokens struct {
	Prompt     int
	Completion int
}

func (t Tokens) Total() int { return t.Prompt + t.Completion }

// LimitExceededError signals that an operation would breach the budget. It is a
// normal stop condition for the current message, not a program failure.
type LimitExceededError struct {
	Limit     string
	Used      int
	Requested int
	Max       int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s: %s would be %d of %d (already used %d)",
		LimitExceededMarker, e.Limit, e.Used+e.Requested, e.Max, e.Used)
}

// IsLimitExceeded reports whether err, or anything it wraps, is a budget stop.
func IsLimitExceeded(err error) bool {
	var le *LimitExceededError
	return errors.As(err, &le)
}

// Reservation is what Reserve committed for one call.
type Reservation struct {
	Estimated int
}

// Ledger tracks one processing round against a Budget. It is owned by a single
// processing task and carries no lock.
type Ledger struct {
	budget   Budget
	counters Counters
}

func NewLedger(b Budget) *Ledger {
	if b.RequestLimit <= 0 {
		b.RequestLimit = DefaultRequestLimit
	}
	if b.TokenLimit <= 0 {
		b.TokenLimit = DefaultTokenLimit
	}
	return &Ledger{budget: b}
}

func (l *Ledger) Budget() Budget { return l.budget }

func (l *Ledger) Snapshot() Counters { return l.counters }

// Remaining returns how many requests and tokens are still available.
func (l *Ledger) Remaining() (requests int, tokens int) {
	return l.budget.RequestLimit - l.counters.RequestsMade, l.budget.TokenLimit - l.counters.TokensConsumed
}

// Check answers whether one more call costing estimatedTokens fits, without
// committing anything.
func (l *Ledger) Check(estimatedTokens int) error {
	return l.CheckCost(1, estimatedTokens)
}

// CheckCost is Check for an operation made of several calls.
func (l *Ledger) CheckCost(calls, estimatedTokens int) error {
	if estimatedTokens < 0 {
		estimatedTokens = 0
	}
	if calls < 1 {
		calls = 1
	}
	leftRequests, leftTokens := l.Remaining()
	if calls > leftRequests {
		return &LimitExceededError{
			Limit:     "request_limit",
			Used:      l.counters.RequestsMade,
			Requested: calls,
			Max:       l.budget.RequestLimit,
		}
	}
	if estimatedTokens > leftTokens {
		return &LimitExceededError{
			Limit:     "token_limit",
			Used:      l.counters.TokensConsumed,
			Requested: estimatedTokens,
			Max:       l.budget.TokenLimit,
		}
	}
	return nil
}

// Reserve commits one request and the estimated tokens, or commits nothing and
// returns a *LimitExceededError.
func (l *Ledger) Reserve(estimatedTokens int) (Reservation, error) {
	if err := l.Check(estimatedTokens); err != nil {
		return Reservation{}, err
	}
	if estimatedTokens < 0 {
		estimatedTokens = 0
	}
	l.counters.RequestsMade++
	l.counters.TokensConsumed += estimatedTokens
	return Reservation{Estimated: estimatedTokens}, nil
}

// Settle records the measured usage of a reserved call. Consumption above the
// estimate is charged up to the token limit; when it does not fit, the charge is
// capped at the limit and a *LimitExceededError is returned. The call already
// happened, so callers keep its result and make no further calls.
// The prompt/completion breakdown always records what was actually measured.
func (l *Ledger) Settle(res Reservation, actual Tokens) error {
	l.counters.PromptTokens += actual.Prompt
	l.counters.CompletionTokens += actual.Completion
	extra := actual.Total() - res.Estimated
	if extra <= 0 {
		return nil
	}
	used := l.counters.TokensConsumed
	room := l.budget.TokenLimit - used
	if extra > room {
		l.counters.TokensConsumed = l.budget.TokenLimit
		return &LimitExceededError{
			Limit:     "token_limit",
			Used:      used,
			Requested: extra,
			Max:       l.budget.TokenLimit,
		}
	}
	l.counters.TokensConsumed += extra
	return nil
}
