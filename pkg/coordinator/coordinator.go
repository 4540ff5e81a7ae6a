package coordinator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/concierge/pkg/ask"
	"github.com/go-go-golems/concierge/pkg/handlers"
	"github.com/go-go-golems/concierge/pkg/requests"
	"github.com/go-go-golems/concierge/pkg/session"
	"github.com/go-go-golems/concierge/pkg/stream"
	"github.com/go-go-golems/concierge/pkg/trace"
	"github.com/go-go-golems/concierge/pkg/usage"
)

// ClarifyingQuestion is asked when no request could be typed.
const ClarifyingQuestion = "I want to make sure I get this right. Could you tell me what you need: room service, maintenance or housekeeping, or a local recommendation?"

// StoppedNote closes a reply whose coordination call ran out of budget after
// its requests were handled.
const StoppedNote = usage.LimitExceededMarker + ", so I had to stop here. Please send anything else as a separate message."

// Coordinator is the top-level coordination call: it decomposes an incoming message,
// dispatches every request sequentially under one ledger and reports progress as a
// stream.Source.
type Coordinator struct {
	dispatcher *requests.Dispatcher
	decomposer Decomposer
	estimator  usage.Estimator
	recorder   trace.Recorder
	budget     usage.Budget
	guest      handlers.Guest
	askTimeout time.Duration
}

type Option func(*Coordinator)

func WithDecomposer(d Decomposer) Option { return func(c *Coordinator) { c.decomposer = d } }

func WithEstimator(e usage.Estimator) Option { return func(c *Coordinator) { c.estimator = e } }

func WithRecorder(r trace.Recorder) Option { return func(c *Coordinator) { c.recorder = r } }

func WithBudget(b usage.Budget) Option { return func(c *Coordinator) { c.budget = b } }

func WithGuest(g handlers.Guest) Option { return func(c *Coordinator) { c.guest = g } }

func WithAskTimeout(d time.Duration) Option { return func(c *Coordinator) { c.askTimeout = d } }

func New(d *requests.Dispatcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		dispatcher: d,
		estimator:  usage.NewTiktokenEstimator(),
		recorder:   trace.Nop{},
		budget:     usage.DefaultBudget(),
		guest:      handlers.DefaultGuest(),
		askTimeout: ask.DefaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	if c.decomposer == nil {
		c.decomposer = NewRuleDecomposer(nil)
	}
	return c
}

func (c *Coordinator) Budget() usage.Budget { return c.budget }

type phase int

const (
	phaseStart phase = iota
	phaseDispatch
	phaseDone
)

// Run is one coordination call for one incoming message. It is driven by the
// streaming pipeline through Next and must not be shared.
type Run struct {
	c      *Coordinator
	st     *session.State
	asker  ask.Asker
	ledger *usage.Ledger

	message  string
	phase    phase
	coordRes usage.Reservation
	reqs     []requests.Request
	next     int
	items    []requests.Item
	msgs     []session.Message
}

// Start prepares a run. Nothing is charged until the first Next.
func (c *Coordinator) Start(st *session.State, message string, asker ask.Asker) *Run {
	return &Run{
		c:       c,
		st:      st,
		asker:   asker,
		ledger:  usage.NewLedger(c.budget),
		message: message,
		msgs:    []session.Message{session.NewMessage(session.RoleUser, message)},
	}
}

var _ stream.Source = (*Run)(nil)

func (r *Run) Messages() []session.Message { return r.msgs }

func (r *Run) Usage() usage.Counters { return r.ledger.Snapshot() }

func (r *Run) Ledger() *usage.Ledger { return r.ledger }

func (r *Run) Next(ctx context.Context) (stream.Update, error) {
	if err := ctx.Err(); err != nil {
		return stream.Update{}, err
	}
	switch r.phase {
	case phaseStart:
		return r.start(ctx)
	case phaseDispatch:
		return r.dispatchNext(ctx)
	default:
		return stream.Update{}, io.EOF
	}
}

func (r *Run) start(ctx context.Context) (stream.Update, error) {
	prompt := r.c.estimator.Count(r.message)
	res, err := r.ledger.Reserve(prompt)
	if err != nil {
		r.phase = phaseDone
		return stream.Update{}, errors.Wrap(err, "coordination call")
	}
	r.coordRes = res

	r.reqs = r.c.decomposer.Decompose(r.message, r.c.guest)
	if !anyTyped(r.reqs) {
		r.reqs = r.clarify(ctx)
	}
	r.record(ctx, trace.EventDecomposed, map[string]any{
		"message":  r.message,
		"requests": requestFields(r.reqs),
	})

	r.phase = phaseDispatch
	if len(r.reqs) == 0 {
		return r.finish(ctx)
	}
	return stream.Update{Payload: map[string]any{
		"status":  string(requests.StatusPending),
		"message": fmt.Sprintf("Working on %d request(s)...", len(r.reqs)),
	}}, nil
}

// clarify asks the guest once and decomposes the answer. Without an answer the
// untyped clauses are kept and end up with the concierge.
func (r *Run) clarify(ctx context.Context) []requests.Request {
	answer := ask.Bounded(ctx, r.asker, ClarifyingQuestion, r.c.askTimeout)
	r.msgs = append(r.msgs,
		session.NewMessage(session.RoleAssistant, ClarifyingQuestion),
		session.NewMessage(session.RoleUser, answer),
	)
	r.record(ctx, trace.EventClarification, map[string]any{
		"question": ClarifyingQuestion,
		"answer":   answer,
	})
	if answer == ask.NoResponse {
		return r.reqs
	}
	if reqs := r.c.decomposer.Decompose(answer, r.c.guest); len(reqs) > 0 {
		return reqs
	}
	return r.reqs
}

func (r *Run) dispatchNext(ctx context.Context) (stream.Update, error) {
	if r.next >= len(r.reqs) {
		return r.finish(ctx)
	}
	req := r.reqs[r.next]
	r.next++

	out := r.c.dispatcher.Handle(ctx, req, r.st.Dedup, r.ledger)
	r.items = append(r.items, requests.Item{Request: req, Outcome: out})
	r.msgs = append(r.msgs, session.NewMessage(session.RoleTool, toolLine(req, out)))

	if out.IsPaused() {
		log.Info().Str("component", "coordinator").Str("conv_id", r.st.ID).
			Int("remaining", len(r.reqs)-r.next).Msg("usage limit reached, skipping remaining requests")
		return r.finish(ctx)
	}
	if r.next >= len(r.reqs) {
		return r.finish(ctx)
	}
	partial := requests.Combine(r.items)
	return stream.Update{Payload: map[string]any{
		"status":  string(requests.StatusPending),
		"message": partial.Text(),
		"eta":     partial.ETA,
	}}, nil
}

func (r *Run) finish(ctx context.Context) (stream.Update, error) {
	r.phase = phaseDone
	combined := requests.Combine(r.items)
	completion := r.c.estimator.Count(combined.Text())
	if err := r.ledger.Settle(r.coordRes, usage.Tokens{Prompt: r.coordRes.Estimated, Completion: completion}); err != nil {
		// the requests already ran; keep their outcome and say we stopped
		remReq, remTok := r.ledger.Remaining()
		r.record(ctx, trace.EventUsageLimit, map[string]any{
			"capability":         "coordinator",
			"error":              err.Error(),
			"usage":              r.ledger.Snapshot(),
			"remaining_requests": remReq,
			"remaining_tokens":   remTok,
		})
		log.Info().Err(err).Str("component", "coordinator").Str("conv_id", r.st.ID).
			Msg("coordination call went over budget after dispatch")
		if combined.IsSuccess() {
			combined.Message = strings.TrimSpace(combined.Message + "\n\n" + StoppedNote)
		}
	}
	r.record(ctx, trace.EventHandlerOutput, map[string]any{
		"capability": "coordinator",
		"output":     combined.Text(),
		"success":    combined.IsSuccess(),
		"usage":      r.ledger.Snapshot(),
	})
	return stream.Update{Payload: stream.PayloadFromOutcome(combined), IsLast: true}, nil
}

func (r *Run) record(ctx context.Context, t trace.EventType, fields map[string]any) {
	if r.c.recorder == nil {
		return
	}
	r.c.recorder.Record(ctx, trace.NewEvent(ctx, t, fields))
}

func anyTyped(reqs []requests.Request) bool {
	for _, r := range reqs {
		if r.RequestType != TypeGeneral {
			return true
		}
	}
	return false
}

func requestFields(reqs []requests.Request) []any {
	out := make([]any, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, map[string]any{
			"request_type": r.RequestType,
			"description":  r.Description,
			"priority":     string(r.Priority),
		})
	}
	return out
}

func toolLine(req requests.Request, out requests.Outcome) string {
	c := requests.Classify(req)
	verdict := "ok"
	if !out.IsSuccess() {
		verdict = "failed"
	}
	return strings.TrimSpace(fmt.Sprintf("%s %s [%s] %s: %s", c.Emoji(), c.String(), verdict, req.Description, out.Text()))
}
