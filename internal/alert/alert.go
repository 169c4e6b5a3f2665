// Package alert notifies downstream systems about recorded violations.
//
// Sinks are called after the violation is durably stored, so an alert always
// refers to an existing record. Delivery is best effort: a failing sink is
// logged and counted by the caller but never undoes the record.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// Alert is the payload published for one recorded violation.
type Alert struct {
	ViolationID    string    `json:"violation_id"`
	IdentityNumber string    `json:"aadhaar"`
	ActorID        string    `json:"actor_id"`
	ZoneID         string    `json:"zone_id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	SampledAt      time.Time `json:"sampled_at,omitzero"`
	DetectedAt     time.Time `json:"detected_at"`
	Message        string    `json:"message"`
}

func (a Alert) encode() ([]byte, error) {
	return json.Marshal(a)
}

// Sink delivers alerts.
type Sink interface {
	Notify(ctx context.Context, a Alert) error
}

// LogSink writes alerts to the structured log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, a Alert) error {
	s.logger.WarnContext(ctx, "geofence breach alert",
		"violation_id", a.ViolationID,
		"aadhaar", a.IdentityNumber,
		"zone_id", a.ZoneID,
		"latitude", a.Latitude,
		"longitude", a.Longitude,
		"detected_at", a.DetectedAt,
	)
	return nil
}

// Fanout notifies every sink and joins their errors. One failing sink does not
// stop the others.
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
