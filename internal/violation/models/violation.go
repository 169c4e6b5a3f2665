package models

import (
	"time"

	actormodels "terraguard/internal/actor/models"
	"terraguard/internal/geo"
	id "terraguard/pkg/domain"
	dErrors "terraguard/pkg/domain-errors"
)

// DefaultMessage is the reason recorded for automatic breaches.
const DefaultMessage = "Geofence Breach"

// Violation is an immutable record of one breach. ID, Seq and DetectedAt are
// assigned by the store on append.
type Violation struct {
	ID         id.ViolationID `json:"id"`
	ActorID    id.ActorID     `json:"actor_id"`
	Latitude   float64        `json:"latitude"`
	Longitude  float64        `json:"longitude"`
	SampledAt  time.Time      `json:"sampled_at,omitzero"`
	DetectedAt time.Time      `json:"detected_at"`
	ZoneID     string         `json:"zone_id"`
	Message    string         `json:"message"`
	// Seq is the append sequence. It orders records that share a DetectedAt.
	Seq int64 `json:"-"`
}

// Position returns the sample the violation was raised for.
func (v Violation) Position() geo.Position {
	return geo.At(v.Latitude, v.Longitude, v.SampledAt)
}

// Input is what callers hand to the store.
type Input struct {
	ActorID  id.ActorID
	Position geo.Position
	ZoneID   string
	Message  string
}

// Validate checks an append input.
func (in Input) Validate() error {
	if in.ActorID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "actor_id is required")
	}
	if err := in.Position.Point().Validate(); err != nil {
		return err
	}
	if in.ZoneID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "zone_id is required")
	}
	if in.Message == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "message is required")
	}
	return nil
}

// RecordRequest is an inbound violation keyed by identity number, as sent by
// devices and the breach dispatcher.
type RecordRequest struct {
	IdentityNumber string
	Position       geo.Position
	ZoneID         string
	Message        string
}

// Window bounds DetectedAt: From inclusive, To exclusive. Zero means unbounded.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// Validate rejects inverted windows.
func (w Window) Validate() error {
	if !w.From.IsZero() && !w.To.IsZero() && !w.From.Before(w.To) {
		return dErrors.New(dErrors.CodeInvalidInput, "from must be before to")
	}
	return nil
}

// WithActor is a violation joined with its driver for reporting.
type WithActor struct {
	Violation
	Driver *actormodels.Actor `json:"driver"`
}
