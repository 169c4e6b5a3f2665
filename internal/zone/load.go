package zone

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadFile registers every zone in a JSON file of the form
//
//	[{"id": "quarry-north", "name": "...", "boundary": [{"latitude": 13.1, "longitude": 80.2}, ...]}]
//
// Zones already present are replaced.
func (r *Registry) LoadFile(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read zones file: %w", err)
	}
	var zones []Zone
	if err := json.Unmarshal(raw, &zones); err != nil {
		return 0, fmt.Errorf("decode zones file: %w", err)
	}
	for i, z := range zones {
		if _, err := r.Register(z, true); err != nil {
			return i, fmt.Errorf("register zone %q: %w", z.ID, err)
		}
	}
	return len(zones), nil
}

// Seed registers the default mining zone unless a zone with that id exists.
func (r *Registry) Seed() error {
	if _, err := r.Get(DefaultZoneID); err == nil {
		return nil
	}
	_, err := r.Register(DefaultMiningZone(), false)
	return err
}
