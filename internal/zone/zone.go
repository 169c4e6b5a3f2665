// Package zone holds the registry of permitted zones that tracked vehicles are
// checked against.
package zone

import (
	"strings"
	"time"

	"terraguard/internal/geo"
	dErrors "terraguard/pkg/domain-errors"
)

// DefaultZoneID names the mining zone seeded at startup.
const DefaultZoneID = "mining-zone"

// Zone is a named permitted area.
//
// Invariants:
//   - ID is non-empty and unique within a registry
//   - Boundary has at least 3 vertices, is implicitly closed and simple
//   - Version starts at 1 and increments on every replacement
type Zone struct {
	ID        string      `json:"id"`
	Name      string      `json:"name,omitempty"`
	Boundary  []geo.Point `json:"boundary"`
	Version   int         `json:"version"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// DefaultMiningZone returns the permitted mining area used when no zones file
// is configured.
func DefaultMiningZone() Zone {
	return Zone{
		ID:   DefaultZoneID,
		Name: "Mining Zone",
		Boundary: []geo.Point{
			{Lat: 13.09, Lon: 80.27},
			{Lat: 13.09, Lon: 80.28},
			{Lat: 13.08, Lon: 80.28},
			{Lat: 13.08, Lon: 80.27},
		},
	}
}

// Contains reports whether the position lies inside the zone. Points on the
// boundary count as inside.
func (z Zone) Contains(p geo.Position) (bool, error) {
	return geo.Contains(z.Boundary, p.Point())
}

// Validate normalizes and checks the zone before registration.
func (z *Zone) Validate() error {
	z.ID = strings.TrimSpace(z.ID)
	z.Name = strings.TrimSpace(z.Name)
	if z.ID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "zone id is required")
	}
	z.Boundary = geo.TrimClosingVertex(z.Boundary)
	return geo.ValidatePolygon(z.Boundary)
}

func (z Zone) clone() Zone {
	out := z
	out.Boundary = append([]geo.Point(nil), z.Boundary...)
	return out
}
