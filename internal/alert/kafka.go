package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"terraguard/pkg/platform/circuit"
)

// ErrCircuitOpen is returned while a sink's broker is considered down.
var ErrCircuitOpen = errors.New("circuit open")

// Producer is the franz-go surface used to publish alerts.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaSink produces alerts to a topic keyed by identity number, so one
// driver's alerts stay in order on a single partition.
type KafkaSink struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
}

func NewKafkaSink(producer Producer, topic string) *KafkaSink {
	return &KafkaSink{
		producer: producer,
		topic:    topic,
		breaker:  circuit.New("kafka-alerts"),
	}
}

func (s *KafkaSink) Notify(ctx context.Context, a Alert) error {
	if !s.breaker.Allow() {
		return fmt.Errorf("kafka alert topic %s: %w", s.topic, ErrCircuitOpen)
	}
	payload, err := a.encode()
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(a.IdentityNumber),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "zone_id", Value: []byte(a.ZoneID)},
		},
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		s.breaker.RecordFailure()
		return fmt.Errorf("produce alert to %s: %w", s.topic, err)
	}
	s.breaker.RecordSuccess()
	return nil
}
