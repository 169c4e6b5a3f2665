package alert

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"terraguard/pkg/platform/circuit"
)

// Publisher is the go-redis surface used to publish alerts.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisSink publishes alerts as JSON on a Redis pub/sub channel.
type RedisSink struct {
	client  Publisher
	channel string
	breaker *circuit.Breaker
}

func NewRedisSink(client Publisher, channel string) *RedisSink {
	return &RedisSink{
		client:  client,
		channel: channel,
		breaker: circuit.New("redis-alerts"),
	}
}

func (s *RedisSink) Notify(ctx context.Context, a Alert) error {
	if !s.breaker.Allow() {
		return fmt.Errorf("redis alert channel %s: %w", s.channel, ErrCircuitOpen)
	}
	payload, err := a.encode()
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		s.breaker.RecordFailure()
		return fmt.Errorf("publish alert to %s: %w", s.channel, err)
	}
	s.breaker.RecordSuccess()
	return nil
}
