package trace

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisSettings holds Redis Streams transport configuration for the trace bus.
type RedisSettings struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Addr     string `yaml:"addr" env:"ADDR"`
	Group    string `yaml:"group" env:"GROUP"`
	Consumer string `yaml:"consumer" env:"CONSUMER"`
}

func DefaultRedisSettings() RedisSettings {
	return RedisSettings{Addr: "localhost:6379", Group: "concierge-trace", Consumer: "trace-1"}
}

// PubSub bundles the publisher and subscriber used by the trace bus.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	closers    []func() error

	// set for the redis transport only
	client redis.UniversalClient
	group  string
}

func (p *PubSub) Close() error {
	if p == nil {
		return nil
	}
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BuildPubSub returns a Redis Streams backed pubsub when enabled, otherwise an
// in-memory gochannel.
func BuildPubSub(s RedisSettings) (*PubSub, error) {
	logger := NewWatermillLogger(log.Logger)
	if !s.Enabled {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		return &PubSub{
			Publisher:  ch,
			Subscriber: ch,
			closers:    []func() error{ch.Close},
		}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "trace: redis publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "trace: redis subscriber")
	}

	log.Info().Str("component", "trace").Str("addr", s.Addr).Str("group", s.Group).Msg("trace bus on redis streams")
	return &PubSub{
		Publisher:  pub,
		Subscriber: sub,
		closers:    []func() error{pub.Close, sub.Close, client.Close},
		client:     client,
		group:      s.Group,
	}, nil
}

// StartAtTail makes the trace consumer group on topic start at new entries, so a
// restarted server does not replay old turns. It is a no-op on the in-memory bus.
func (p *PubSub) StartAtTail(ctx context.Context, topic string) error {
	if p == nil || p.client == nil {
		return nil
	}
	err := p.client.XGroupCreateMkStream(ctx, topic, p.group, "$").Err()
	switch {
	case err == nil:
		log.Info().Str("component", "trace").Str("topic", topic).Str("group", p.group).Msg("trace consumer group created at tail")
		return nil
	case strings.HasPrefix(err.Error(), "BUSYGROUP"):
		return nil
	default:
		return errors.Wrapf(err, "trace: consumer group %s on %s", p.group, topic)
	}
}
