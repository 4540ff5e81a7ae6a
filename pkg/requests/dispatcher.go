package requests

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/concierge/pkg/trace"
	"github.com/go-go-golems/concierge/pkg/usage"
)

// DuplicateReason is returned for a request whose fingerprint was already handled in
// the session.
const DuplicateReason = "duplicate request: I've already processed this request. Would you like to make any modifications or try something else?"

// Handler is a specialized capability. It receives the request description and the
// ledger of the current round so its own backend calls are charged to the same
// budget. The result may be a map[string]any in the TaskResponse/Failed shape, a
// Reply, or anything else (treated as a plain acknowledgement).
type Handler interface {
	Invoke(ctx context.Context, description string, ledger *usage.Ledger) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, description string, ledger *usage.Ledger) (any, error)

func (f HandlerFunc) Invoke(ctx context.Context, description string, ledger *usage.Ledger) (any, error) {
	return f(ctx, description, ledger)
}

// Reply is the typed form of a handler result.
type Reply struct {
	Status  string `json:"status,omitempty" yaml:"status,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	ETA     string `json:"eta,omitempty" yaml:"eta,omitempty"`
	Reason  string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Dispatcher routes requests to handlers under a shared ledger and a per-session
// dedup cache.
type Dispatcher struct {
	handlers  map[Capability]Handler
	estimator usage.Estimator
	recorder  trace.Recorder
	// handlerCalls is how many ledger calls a handler makes per request, at most.
	handlerCalls int
}

type DispatcherOption func(*Dispatcher)

func WithHandler(c Capability, h Handler) DispatcherOption {
	return func(d *Dispatcher) { d.handlers[c] = h }
}

func WithEstimator(e usage.Estimator) DispatcherOption {
	return func(d *Dispatcher) { d.estimator = e }
}

// WithHandlerCalls declares how many ledger calls a handler makes per request. A
// request is only accepted when the dispatch and all of these calls still fit.
func WithHandlerCalls(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.handlerCalls = n
		}
	}
}

func WithRecorder(r trace.Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handlers:  map[Capability]Handler{},
		estimator: usage.NewTiktokenEstimator(),
		recorder:  trace.Nop{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Handle processes one request and always returns an Outcome; handler errors and
// panics are converted, never propagated.
func (d *Dispatcher) Handle(ctx context.Context, req Request, dedup *DedupCache, ledger *usage.Ledger) Outcome {
	req = req.WithDefaults()
	estimate := d.estimator.Count(req.Description)

	// the fingerprint is only marked for requests that can actually run
	calls := 1 + d.handlerCalls
	if err := ledger.CheckCost(calls, estimate*calls); err != nil {
		d.recordLimit(ctx, "request_type", req.RequestType, err, ledger)
		return Paused(err.Error())
	}

	fp := req.Fingerprint()
	mark := dedup.CheckAndMark(fp)
	d.record(ctx, trace.EventDedup, map[string]any{
		"fingerprint": string(fp),
		"decision":    mark.String(),
	})
	if mark == Duplicate {
		return Failure(DuplicateReason)
	}

	capability := Classify(req)
	d.record(ctx, trace.EventClassified, map[string]any{
		"request_type": req.RequestType,
		"priority":     string(req.Priority),
		"capability":   capability.String(),
	})

	h, ok := d.handlers[capability]
	if !ok || h == nil {
		return Failure(fmt.Sprintf("error processing %s request: no handler registered", strings.ToLower(capability.String())))
	}

	res, err := ledger.Reserve(estimate)
	if err != nil {
		return Paused(err.Error())
	}

	raw, err := invoke(ctx, h, req.Description, ledger)
	if err != nil {
		if usage.IsLimitExceeded(err) {
			d.recordLimit(ctx, "capability", capability.String(), err, ledger)
			return Paused(err.Error())
		}
		log.Warn().Err(err).Str("component", "dispatcher").Str("capability", capability.String()).Msg("handler failed")
		out := Failure(fmt.Sprintf("error processing %s request: %s", strings.ToLower(capability.String()), err.Error()))
		d.recordOutput(ctx, capability, out, ledger)
		return out
	}

	out := Normalize(raw)
	if err := ledger.Settle(res, usage.Tokens{Prompt: estimate, Completion: d.estimator.Count(out.Text())}); err != nil {
		// the handler already ran; its outcome stands and the full ledger stops
		// the next request
		d.recordLimit(ctx, "capability", capability.String(), err, ledger)
	}
	d.recordOutput(ctx, capability, out, ledger)
	return out
}

func invoke(ctx context.Context, h Handler, description string, ledger *usage.Ledger) (raw any, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw = nil
			err = errors.Errorf("handler panic: %v", r)
		}
	}()
	return h.Invoke(ctx, description, ledger)
}

// Normalize maps a handler result onto an Outcome.
func Normalize(raw any) Outcome {
	switch v := raw.(type) {
	case Outcome:
		return v
	case map[string]any:
		if reason, ok := v["reason"]; ok {
			return Failure(stringField(reason))
		}
		return Success(Status(stringField(v["status"])), stringField(v["message"]), stringField(v["eta"]))
	case map[string]string:
		if reason, ok := v["reason"]; ok {
			return Failure(reason)
		}
		return Success(Status(v["status"]), v["message"], v["eta"])
	case Reply:
		return normalizeReply(v)
	case *Reply:
		if v == nil {
			return genericSuccess()
		}
		return normalizeReply(*v)
	default:
		return genericSuccess()
	}
}

func normalizeReply(r Reply) Outcome {
	if r.Reason != "" {
		return Failure(r.Reason)
	}
	return Success(Status(r.Status), r.Message, r.ETA)
}

func genericSuccess() Outcome {
	return Success(StatusCompleted, "request processed", "immediate")
}

func stringField(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func (d *Dispatcher) recordOutput(ctx context.Context, c Capability, out Outcome, ledger *usage.Ledger) {
	d.record(ctx, trace.EventHandlerOutput, map[string]any{
		"capability": c.String(),
		"output":     c.Emoji() + " " + out.Text(),
		"success":    out.IsSuccess(),
		"usage":      ledger.Snapshot(),
	})
}

func (d *Dispatcher) recordLimit(ctx context.Context, key, value string, err error, ledger *usage.Ledger) {
	leftRequests, leftTokens := ledger.Remaining()
	d.record(ctx, trace.EventUsageLimit, map[string]any{
		key:                  value,
		"error":              err.Error(),
		"usage":              ledger.Snapshot(),
		"remaining_requests": leftRequests,
		"remaining_tokens":   leftTokens,
	})
}

func (d *Dispatcher) record(ctx context.Context, t trace.EventType, fields map[string]any) {
	if d.recorder == nil {
		return
	}
	d.recorder.Record(ctx, trace.NewEvent(ctx, t, fields))
}
