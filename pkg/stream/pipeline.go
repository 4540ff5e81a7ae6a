package stream

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/concierge/pkg/session"
	"github.com/go-go-golems/concierge/pkg/trace"
	"github.com/go-go-golems/concierge/pkg/usage"
)

// State of the pipeline for one incoming message.
type State int

const (
	Awaiting State = iota
	PartialValid
	Final
)

func (s State) String() string {
	switch s {
	case Awaiting:
		return "awaiting"
	case PartialValid:
		return "partial_valid"
	case Final:
		return "final"
	default:
		return "unknown"
	}
}

// Source is the incremental output of the coordination call. Next returns io.EOF
// when the sequence is exhausted and a *usage.LimitExceededError when the call was
// stopped by the budget.
type Source interface {
	Next(ctx context.Context) (Update, error)
	// Messages is the full exchange produced so far, the incoming message included.
	Messages() []session.Message
	// Usage reports what the coordination call consumed.
	Usage() usage.Counters
}

// Sink receives the outward-visible state. Update replaces the current snapshot;
// Final is called exactly once per incoming message.
type Sink interface {
	Update(ctx context.Context, d Display) error
	Final(ctx context.Context, d Display) error
}

// Result summarizes one run.
type Result struct {
	State     State
	Display   Display
	Snapshots int
	Discarded int
	// Appended is true when the exchange was written to the session history.
	Appended bool
	// Err holds the cause of a system error.
	Err error
}

// Pipeline relays validated snapshots from a Source to a Sink.
type Pipeline struct {
	recorder trace.Recorder
}

type PipelineOption func(*Pipeline)

func WithRecorder(r trace.Recorder) PipelineOption {
	return func(p *Pipeline) { p.recorder = r }
}

func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{recorder: trace.Nop{}}
	for _, o := range opts {
		o(p)
	}
	return p
}

type run struct {
	p      *Pipeline
	ctx    context.Context
	src    Source
	st     *session.State
	sink   Sink
	result Result
}

// Run drives src to completion for one incoming message. It never returns an error:
// every failure ends in exactly one Final call on sink.
func (p *Pipeline) Run(ctx context.Context, src Source, st *session.State, sink Sink) Result {
	r := &run{p: p, ctx: ctx, src: src, st: st, sink: sink}
	return r.loop()
}

func (r *run) loop() Result {
	for {
		up, err := r.src.Next(r.ctx)
		if errors.Is(err, io.EOF) {
			return r.systemError(errors.New("update sequence ended without a valid final update"))
		}
		if err != nil {
			if usage.IsLimitExceeded(err) {
				return r.finalize(Snapshot{Kind: KindPaused, Reason: err.Error(), Final: true, Interrupted: true})
			}
			return r.systemError(err)
		}

		snap, verr := Validate(up.Payload, !up.IsLast)
		if verr != nil {
			r.result.Discarded++
			r.p.record(r.ctx, trace.EventValidationFailed, map[string]any{
				"error":   verr.Error(),
				"is_last": up.IsLast,
				"state":   r.result.State.String(),
			})
			if up.IsLast {
				return r.systemError(errors.Wrap(verr, "final update"))
			}
			continue
		}

		if up.IsLast {
			return r.finalize(snap)
		}
		r.result.State = PartialValid
		r.result.Snapshots++
		d := Format(snap)
		r.result.Display = d
		r.p.record(r.ctx, trace.EventSnapshot, map[string]any{
			"kind":    string(snap.Kind),
			"summary": snap.String(),
		})
		if err := r.sink.Update(r.ctx, d); err != nil {
			log.Warn().Err(err).Str("component", "stream").Msg("sink update failed")
		}
	}
}

func (r *run) finalize(snap Snapshot) Result {
	used := r.src.Usage()
	d := Format(snap).WithStatistics(used)
	d.Final = true

	r.result.State = Final
	r.result.Snapshots++
	r.result.Display = d
	if r.st != nil {
		r.st.AppendExchange(r.exchange(d))
		r.st.AddUsage(used)
		r.result.Appended = true
	}
	r.p.record(r.ctx, trace.EventFinal, map[string]any{
		"kind":      string(snap.Kind),
		"summary":   snap.String(),
		"usage":     used,
		"discarded": r.result.Discarded,
	})
	if err := r.sink.Final(r.ctx, d); err != nil {
		log.Warn().Err(err).Str("component", "stream").Msg("sink final failed")
	}
	return r.result
}

func (r *run) systemError(cause error) Result {
	log.Error().Err(cause).Str("component", "stream").Msg("system error while streaming")
	d := Format(Snapshot{Kind: KindSystemError, Reason: cause.Error(), Final: true})
	d.Final = true

	r.result.State = Final
	r.result.Display = d
	r.result.Err = cause
	r.p.record(r.ctx, trace.EventSystemError, map[string]any{
		"error":     cause.Error(),
		"discarded": r.result.Discarded,
	})
	if err := r.sink.Final(r.ctx, d); err != nil {
		log.Warn().Err(err).Str("component", "stream").Msg("sink final failed")
	}
	return r.result
}

// exchange is every message of the run plus the final reply.
func (r *run) exchange(d Display) []session.Message {
	msgs := append([]session.Message(nil), r.src.Messages()...)
	return append(msgs, session.NewMessage(session.RoleAssistant, d.UserMessage))
}

func (p *Pipeline) record(ctx context.Context, t trace.EventType, fields map[string]any) {
	if p.recorder == nil {
		return
	}
	p.recorder.Record(ctx, trace.NewEvent(ctx, t, fields))
}
