package models

import (
	"strings"
	"time"
	"unicode"

	id "terraguard/pkg/domain"
	dErrors "terraguard/pkg/domain-errors"
)

// Role classifies an actor.
type Role string

const (
	RoleDriver Role = "DRIVER"
	RoleAdmin  Role = "ADMIN"
)

const maxIdentityLength = 32

// Actor is a registered identity that violations are recorded against.
// IdentityNumber (the driver's Aadhaar) is unique and used as the login key
// and as the tracked entity id.
type Actor struct {
	ID             id.ActorID `json:"id"`
	Name           string     `json:"name"`
	IdentityNumber string     `json:"aadhaar"`
	Role           Role       `json:"role"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NewActor validates and builds an actor.
func NewActor(actorID id.ActorID, name, identityNumber string, role Role, now time.Time) (*Actor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "name is required")
	}
	identityNumber, err := NormalizeIdentityNumber(identityNumber)
	if err != nil {
		return nil, err
	}
	if role == "" {
		role = RoleDriver
	}
	if role != RoleDriver && role != RoleAdmin {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	return &Actor{
		ID:             actorID,
		Name:           name,
		IdentityNumber: identityNumber,
		Role:           role,
		CreatedAt:      now.UTC(),
	}, nil
}

// NormalizeIdentityNumber trims the identity number and rejects empty,
// overlong or whitespace-containing values.
func NormalizeIdentityNumber(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "aadhaar is required")
	}
	if len(v) > maxIdentityLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "aadhaar is too long")
	}
	if strings.IndexFunc(v, unicode.IsSpace) >= 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "aadhaar must not contain spaces")
	}
	return v, nil
}
