package monitor

import (
	"fmt"
	"time"

	"terraguard/internal/geo"
)

// State is the containment state of a tracked entity.
type State int

const (
	// StateUnknown means no sample has been evaluated since assignment or reset.
	StateUnknown State = iota
	StateInside
	StateOutside
)

func (s State) String() string {
	switch s {
	case StateInside:
		return "INSIDE"
	case StateOutside:
		return "OUTSIDE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "UNKNOWN":
		*s = StateUnknown
	case "INSIDE":
		*s = StateInside
	case "OUTSIDE":
		*s = StateOutside
	default:
		return fmt.Errorf("unknown containment state %q", string(b))
	}
	return nil
}

// next returns the state after a containment evaluation and whether the
// transition is a breach. Only INSIDE -> OUTSIDE is a breach; re-sampling while
// outside, re-entry, and the first sample never are.
func next(prev State, inside bool) (State, bool) {
	if inside {
		return StateInside, false
	}
	return StateOutside, prev == StateInside
}

// BreachEvent reports that an entity left its permitted zone. It is handed to
// the violation recorder and the alert sink and never persisted itself.
type BreachEvent struct {
	ActorID    string       `json:"actor_id"`
	Position   geo.Position `json:"position"`
	ZoneID     string       `json:"zone_id"`
	DetectedAt time.Time    `json:"detected_at"`
}

// Snapshot is a read-only view of a tracked entity.
type Snapshot struct {
	EntityID     string        `json:"entity_id"`
	ZoneID       string        `json:"zone_id"`
	State        State         `json:"state"`
	Position     *geo.Position `json:"position,omitempty"`
	Observations int           `json:"observations"`
	Breaches     int           `json:"breaches"`
}
