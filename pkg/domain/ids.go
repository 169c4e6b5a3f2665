// Package domain holds identifier primitives shared across modules.
//
// IDs are distinct named types over uuid.UUID so an ActorID can never be passed
// where a ViolationID is expected. Parsing happens once at the trust boundary.
package domain

import (
	"github.com/google/uuid"

	dErrors "terraguard/pkg/domain-errors"
)

// ActorID identifies a registered driver.
type ActorID uuid.UUID

// ViolationID identifies a persisted violation record.
type ViolationID uuid.UUID

// NewActorID returns a random ActorID.
func NewActorID() ActorID { return ActorID(uuid.New()) }

// NewViolationID returns a random ViolationID.
func NewViolationID() ViolationID { return ViolationID(uuid.New()) }

// ParseActorID parses and validates an actor identifier.
func ParseActorID(s string) (ActorID, error) {
	u, err := parseUUID(s, "actor_id")
	return ActorID(u), err
}

// ParseViolationID parses and validates a violation identifier.
func ParseViolationID(s string) (ViolationID, error) {
	u, err := parseUUID(s, "violation_id")
	return ViolationID(u), err
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be nil")
	}
	return u, nil
}

func (id ActorID) String() string { return uuid.UUID(id).String() }
func (id ActorID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets ActorID appear as a plain string in JSON.
func (id ActorID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ActorID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id ViolationID) String() string { return uuid.UUID(id).String() }
func (id ViolationID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id ViolationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ViolationID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
