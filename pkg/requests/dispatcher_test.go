package requests

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/concierge/pkg/trace"
	"github.com/go-go-golems/concierge/pkg/usage"
)

type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) Invoke(ctx context.Context, description string, ledger *usage.Ledger) (any, error) {
	args := m.Called(ctx, description, ledger)
	return args.Get(0), args.Error(1)
}

func newTestDispatcher(h Handler, rec trace.Recorder) *Dispatcher {
	return NewDispatcher(
		WithHandler(Maintenance, h),
		WithHandler(Concierge, h),
		WithHandler(RoomService, h),
		WithEstimator(usage.FixedEstimator(5)),
		WithRecorder(rec),
	)
}

func TestDispatcherMapsHandlerSuccess(t *testing.T) {
	h := &mockHandler{}
	h.On("Invoke", mock.Anything, "need extra towels", mock.Anything).
		Return(map[string]any{"status": "completed", "message": "towels on the way", "eta": "5-10 minutes"}, nil).Once()

	d := newTestDispatcher(h, nil)
	ledger := usage.NewLedger(usage.DefaultBudget())
	out := d.Handle(context.Background(), Request{RequestType: "maintenance", Description: "need extra towels"}, NewDedupCache(), ledger)

	require.True(t, out.IsSuccess())
	require.Equal(t, StatusCompleted, out.Status)
	require.Equal(t, "towels on the way", out.Message)
	require.Equal(t, "5-10 minutes", out.ETA)
	require.Equal(t, 1, ledger.Snapshot().RequestsMade)
	h.AssertExpectations(t)
}

func TestDispatcherDuplicateSkipsHandlerAndCharge(t *testing.T) {
	h := &mockHandler{}
	h.On("Invoke", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]any{"message": "ok"}, nil).Once()

	rec := &trace.Memory{}
	d := newTestDispatcher(h, rec)
	ledger := usage.NewLedger(usage.DefaultBudget())
	dedup := NewDedupCache()
	req := Request{RequestType: "maintenance", Description: "need extra towels"}

	first := d.Handle(context.Background(), req, dedup, ledger)
	require.True(t, first.IsSuccess())
	before := ledger.Snapshot()

	second := d.Handle(context.Background(), req, dedup, ledger)
	require.False(t, second.IsSuccess())
	require.Contains(t, second.Reason, "duplicate request")
	require.Equal(t, before, ledger.Snapshot())
	h.AssertNumberOfCalls(t, "Invoke", 1)

	decisions := rec.OfType(trace.EventDedup)
	require.Len(t, decisions, 2)
	require.Equal(t, "duplicate", decisions[1].Fields["decision"])
}

func TestDispatcherNormalize(t *testing.T) {
	cases := []struct {
		name string
		raw  any
		want Outcome
	}{
		{"reason map", map[string]any{"reason": "kitchen closed"}, Failure("kitchen closed")},
		{"defaults", map[string]any{"message": "done"}, Success(StatusCompleted, "done", "")},
		{"string map", map[string]string{"status": "pending", "message": "queued", "eta": "1 hour"}, Success(StatusPending, "queued", "1 hour")},
		{"reply", Reply{Message: "booked", ETA: "immediate"}, Success(StatusCompleted, "booked", "immediate")},
		{"reply failure", &Reply{Reason: "full"}, Failure("full")},
		{"plain string", "sure thing", Success(StatusCompleted, "request processed", "immediate")},
		{"nil", nil, Success(StatusCompleted, "request processed", "immediate")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Normalize(tc.raw))
		})
	}
}

func TestDispatcherHandlerErrorBecomesFailure(t *testing.T) {
	h := HandlerFunc(func(context.Context, string, *usage.Ledger) (any, error) {
		return nil, errors.New("backend unreachable")
	})
	d := newTestDispatcher(h, nil)
	out := d.Handle(context.Background(), Request{RequestType: "room_service", Description: "pizza"}, NewDedupCache(), usage.NewLedger(usage.DefaultBudget()))
	require.False(t, out.IsSuccess())
	require.False(t, out.IsPaused())
	require.Equal(t, "error processing room service request: backend unreachable", out.Reason)
}

func TestDispatcherRecoversPanic(t *testing.T) {
	h := HandlerFunc(func(context.Context, string, *usage.Ledger) (any, error) {
		panic("boom")
	})
	d := newTestDispatcher(h, nil)
	out := d.Handle(context.Background(), Request{RequestType: "maintenance", Description: "fix the lamp"}, NewDedupCache(), usage.NewLedger(usage.DefaultBudget()))
	require.False(t, out.IsSuccess())
	require.Contains(t, out.Reason, "error processing maintenance request")
	require.Contains(t, out.Reason, "boom")
}

func TestDispatcherStopsAtBudget(t *testing.T) {
	h := &mockHandler{}
	h.On("Invoke", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]any{"message": "ok", "eta": "immediate"}, nil)

	rec := &trace.Memory{}
	d := newTestDispatcher(h, rec)
	ledger := usage.NewLedger(usage.Budget{RequestLimit: 2, TokenLimit: 1000})
	dedup := NewDedupCache()

	var items []Item
	for _, desc := range []string{"towels", "pillows", "soap"} {
		req := Request{RequestType: "maintenance", Description: desc}
		items = append(items, Item{Request: req, Outcome: d.Handle(context.Background(), req, dedup, ledger)})
	}

	require.True(t, items[0].Outcome.IsSuccess())
	require.True(t, items[1].Outcome.IsSuccess())
	require.True(t, items[2].Outcome.IsPaused())
	require.Contains(t, items[2].Outcome.Reason, usage.LimitExceededMarker)
	h.AssertNumberOfCalls(t, "Invoke", 2)
	require.Equal(t, 2, ledger.Snapshot().RequestsMade)
	require.LessOrEqual(t, ledger.Snapshot().TokensConsumed, 1000)
	require.False(t, dedup.Contains(items[2].Request.Fingerprint()))
	require.Len(t, rec.OfType(trace.EventUsageLimit), 1)

	combined := Combine(items)
	require.True(t, combined.IsSuccess())
	require.Contains(t, combined.Message, "Usage limit reached")
	require.NotContains(t, combined.Message, "request_limit")
}

func TestDispatcherHandlerLimitExceeded(t *testing.T) {
	h := HandlerFunc(func(_ context.Context, _ string, l *usage.Ledger) (any, error) {
		if _, err := l.Reserve(10_000); err != nil {
			return nil, errors.Wrap(err, "search backend")
		}
		return nil, nil
	})
	d := newTestDispatcher(h, nil)
	out := d.Handle(context.Background(), Request{RequestType: "concierge", Description: "museums"}, NewDedupCache(), usage.NewLedger(usage.Budget{RequestLimit: 5, TokenLimit: 100}))
	require.True(t, out.IsPaused())
	require.Contains(t, out.Reason, usage.LimitExceededMarker)
}

func TestDispatcherSettleOverrunKeepsOutcome(t *testing.T) {
	h := &mockHandler{}
	h.On("Invoke", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]any{"message": "a very long answer"}, nil)
	rec := &trace.Memory{}
	d := NewDispatcher(WithHandler(Concierge, h), WithEstimator(usage.FixedEstimator(60)), WithRecorder(rec))
	ledger := usage.NewLedger(usage.Budget{RequestLimit: 5, TokenLimit: 100})
	dedup := NewDedupCache()

	out := d.Handle(context.Background(), Request{RequestType: "concierge", Description: "museums"}, dedup, ledger)
	require.True(t, out.IsSuccess())
	require.Equal(t, "a very long answer", out.Message)
	require.Equal(t, 100, ledger.Snapshot().TokensConsumed)
	events := rec.OfType(trace.EventUsageLimit)
	require.Len(t, events, 1)
	require.Equal(t, 0, events[0].Fields["remaining_tokens"])

	next := d.Handle(context.Background(), Request{RequestType: "concierge", Description: "theatres"}, dedup, ledger)
	require.True(t, next.IsPaused())
	h.AssertNumberOfCalls(t, "Invoke", 1)
}

func TestDispatcherLeavesUnaffordableRequestUnmarked(t *testing.T) {
	lookups := 0
	h := HandlerFunc(func(_ context.Context, _ string, l *usage.Ledger) (any, error) {
		if _, err := l.Reserve(5); err != nil {
			return nil, errors.Wrap(err, "catalog lookup")
		}
		lookups++
		return map[string]any{"message": "done"}, nil
	})
	d := NewDispatcher(
		WithHandler(Maintenance, h),
		WithHandler(Concierge, h),
		WithEstimator(usage.FixedEstimator(5)),
		WithHandlerCalls(1),
	)
	dedup := NewDedupCache()
	towels := Request{RequestType: "maintenance", Description: "towels"}
	museum := Request{RequestType: "concierge", Description: "a museum"}

	ledger := usage.NewLedger(usage.Budget{RequestLimit: 3, TokenLimit: 1000})
	require.True(t, d.Handle(context.Background(), towels, dedup, ledger).IsSuccess())
	out := d.Handle(context.Background(), museum, dedup, ledger)
	require.True(t, out.IsPaused())
	require.False(t, dedup.Contains(museum.Fingerprint()))
	require.Equal(t, 1, lookups)

	// the next message gets a fresh ledger and the request goes through
	out = d.Handle(context.Background(), museum, dedup, usage.NewLedger(usage.Budget{RequestLimit: 3, TokenLimit: 1000}))
	require.True(t, out.IsSuccess())
	require.Equal(t, 2, lookups)
}

func TestDispatcherMissingHandler(t *testing.T) {
	d := NewDispatcher(WithEstimator(usage.FixedEstimator(1)))
	out := d.Handle(context.Background(), Request{RequestType: "maintenance", Description: "x"}, NewDedupCache(), usage.NewLedger(usage.DefaultBudget()))
	require.Equal(t, "error processing maintenance request: no handler registered", out.Reason)
}
