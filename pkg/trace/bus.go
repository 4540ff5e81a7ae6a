package trace

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// Topic carries every trace event; consumers filter by conversation.
const Topic = "concierge.trace"

// BusRecorder publishes events on a watermill publisher.
type BusRecorder struct {
	pub   message.Publisher
	topic string
}

func NewBusRecorder(pub message.Publisher) *BusRecorder {
	return &BusRecorder{pub: pub, topic: Topic}
}

func (b *BusRecorder) Record(_ context.Context, ev Event) {
	if b == nil || b.pub == nil {
		return
	}
	payload, err := Encode(ev)
	if err != nil {
		log.Warn().Err(err).Str("component", "trace").Str("event", string(ev.Type)).Msg("encode failed")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("conv_id", ev.ConvID)
	msg.Metadata.Set("event", string(ev.Type))
	if err := b.pub.Publish(b.topic, msg); err != nil {
		log.Warn().Err(err).Str("component", "trace").Str("event", string(ev.Type)).Msg("publish failed")
	}
}

// Follow subscribes to the trace topic and calls fn for every event of convID (all
// conversations when convID is empty) until ctx is done.
func Follow(ctx context.Context, sub message.Subscriber, convID string, fn func(Event)) error {
	ch, err := sub.Subscribe(ctx, Topic)
	if err != nil {
		return err
	}
	for msg := range ch {
		if convID != "" && msg.Metadata.Get("conv_id") != convID {
			msg.Ack()
			continue
		}
		ev, err := Decode(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("component", "trace").Msg("failed to decode event")
			msg.Ack()
			continue
		}
		fn(ev)
		msg.Ack()
	}
	return nil
}
