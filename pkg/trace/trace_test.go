package trace

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTripKeepsFields(t *testing.T) {
	ctx := WithTurn(WithConversation(context.Background(), "conv-1"), "turn-1")
	ev := NewEvent(ctx, EventDedup, map[string]any{
		"fingerprint": "maintenance:need extra towels",
		"decision":    "fresh",
		"usage":       struct{ RequestsMade int }{RequestsMade: 2},
	})

	b, err := Encode(ev)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, ev.ID, got.ID)
	require.Equal(t, EventDedup, got.Type)
	require.Equal(t, "conv-1", got.ConvID)
	require.Equal(t, "turn-1", got.TurnID)
	require.Equal(t, "fresh", got.Fields["decision"])
	require.Equal(t, map[string]any{"RequestsMade": float64(2)}, got.Fields["usage"])
	require.WithinDuration(t, ev.Time, got.Time, time.Millisecond)
}

func TestBusRecorderOverGoChannel(t *testing.T) {
	ps, err := BuildPubSub(RedisSettings{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		got []Event
	)
	ready := make(chan struct{})
	go func() {
		ch, err := ps.Subscriber.Subscribe(ctx, Topic)
		if err != nil {
			close(ready)
			return
		}
		close(ready)
		for msg := range ch {
			if msg.Metadata.Get("conv_id") == "c1" {
				ev, err := Decode(msg.Payload)
				if err == nil {
					mu.Lock()
					got = append(got, ev)
					mu.Unlock()
				}
			}
			msg.Ack()
		}
	}()
	<-ready

	rec := NewBusRecorder(ps.Publisher)
	rec.Record(ctx, NewEvent(WithConversation(ctx, "c2"), EventFinal, nil))
	rec.Record(ctx, NewEvent(WithConversation(ctx, "c1"), EventClassified, map[string]any{"capability": "Concierge"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	require.Equal(t, EventClassified, got[0].Type)
	require.Equal(t, "Concierge", got[0].Fields["capability"])
	mu.Unlock()
}

func TestMemoryOfType(t *testing.T) {
	m := &Memory{}
	ctx := context.Background()
	Multi{m, Nop{}, nil}.Record(ctx, NewEvent(ctx, EventDedup, nil))
	m.Record(ctx, NewEvent(ctx, EventFinal, nil))
	require.Len(t, m.Events(), 2)
	require.Len(t, m.OfType(EventFinal), 1)
}

func TestStartAtTailIsNoOpInMemory(t *testing.T) {
	ps, err := BuildPubSub(RedisSettings{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })

	require.NoError(t, ps.StartAtTail(context.Background(), Topic))
	var nilBus *PubSub
	require.NoError(t, nilBus.StartAtTail(context.Background(), Topic))
}

func TestStartAtTailUsesBusClient(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	ps := &PubSub{client: client, group: "concierge-trace", closers: []func() error{client.Close}}
	t.Cleanup(func() { _ = ps.Close() })

	err := ps.StartAtTail(context.Background(), Topic)
	require.Error(t, err)
	require.Contains(t, err.Error(), "trace: consumer group concierge-trace on "+Topic)
}
