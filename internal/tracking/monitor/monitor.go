// Package monitor runs the per-entity containment state machine.
//
// Each tracked entity moves UNKNOWN -> INSIDE|OUTSIDE on its first sample and
// then follows the zone boundary. A BreachEvent is emitted only on the edge
// INSIDE -> OUTSIDE, so an entity parked outside produces exactly one event no
// matter how often it is sampled. The monitor never performs I/O; handing
// events on is the caller's job.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"terraguard/internal/geo"
	"terraguard/internal/tracking/metrics"
	"terraguard/internal/zone"
	dErrors "terraguard/pkg/domain-errors"
)

// ZoneSource resolves zone ids. Satisfied by *zone.Registry.
type ZoneSource interface {
	Get(zoneID string) (zone.Zone, error)
}

type entity struct {
	mu           sync.Mutex
	id           string
	zoneID       string
	state        State
	position     geo.Position
	hasPosition  bool
	observations int
	breaches     int
}

// Monitor tracks entities against their assigned zones. Observations of one
// entity are serialized by that entity's mutex; different entities proceed in
// parallel and share only the read-only zone source.
type Monitor struct {
	zones   ZoneSource
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	entities map[string]*entity
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = mt
	}
}

// WithClock overrides the time source stamped on BreachEvent.DetectedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New creates a Monitor reading zones from zones.
func New(zones ZoneSource, opts ...Option) *Monitor {
	m := &Monitor{
		zones:    zones,
		logger:   slog.Default(),
		now:      time.Now,
		entities: make(map[string]*entity),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Assign binds an entity to a zone. The entity starts (or restarts, when the
// zone changes) in StateUnknown. Re-assigning the same zone keeps its state.
func (m *Monitor) Assign(entityID, zoneID string) error {
	if entityID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "entity id is required")
	}
	if _, err := m.zones.Get(zoneID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[entityID]
	if !ok {
		m.entities[entityID] = &entity{id: entityID, zoneID: zoneID}
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.zoneID != zoneID {
		e.zoneID = zoneID
		e.reset()
	}
	return nil
}

// Observe evaluates one sample for an entity and returns a BreachEvent when
// the sample moves it from inside to outside its zone, nil otherwise.
//
// Fails with CodeUnknownEntity when the entity has no zone assignment, and
// propagates the registry's CodeNotFound when the zone has gone away. A failed
// observation leaves the entity's state untouched.
func (m *Monitor) Observe(ctx context.Context, entityID string, pos geo.Position) (*BreachEvent, error) {
	e, err := m.lookup(entityID)
	if err != nil {
		m.metrics.IncObservationError(string(dErrors.CodeUnknownEntity))
		return nil, err
	}
	if err := pos.Point().Validate(); err != nil {
		m.metrics.IncObservationError(string(dErrors.CodeInvalidInput))
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hasPosition && !pos.Timestamp.IsZero() && pos.Timestamp.Before(e.position.Timestamp) {
		m.metrics.IncObservationError(string(dErrors.CodeInvalidInput))
		return nil, dErrors.New(dErrors.CodeInvalidInput, "sample is older than the last observation")
	}

	z, err := m.zones.Get(e.zoneID)
	if err != nil {
		m.metrics.IncObservationError(string(dErrors.CodeOf(err)))
		return nil, err
	}
	inside, err := z.Contains(pos)
	if err != nil {
		m.metrics.IncObservationError(string(dErrors.CodeOf(err)))
		return nil, err
	}

	prev := e.state
	state, breached := next(prev, inside)
	e.state = state
	e.position = pos
	e.hasPosition = true
	e.observations++
	m.metrics.IncObservation()

	if prev != state {
		m.logger.DebugContext(ctx, "containment changed",
			"entity_id", entityID,
			"zone_id", z.ID,
			"from", prev.String(),
			"to", state.String(),
		)
	}
	if !breached {
		return nil, nil
	}

	e.breaches++
	m.metrics.IncBreach(z.ID)
	event := &BreachEvent{
		ActorID:    entityID,
		Position:   pos,
		ZoneID:     z.ID,
		DetectedAt: m.now().UTC(),
	}
	m.logger.InfoContext(ctx, "geofence breach detected",
		"entity_id", entityID,
		"zone_id", z.ID,
		"zone_version", z.Version,
		"latitude", pos.Latitude,
		"longitude", pos.Longitude,
	)
	return event, nil
}

// Reset returns an entity to StateUnknown, keeping its zone assignment.
func (m *Monitor) Reset(entityID string) error {
	e, err := m.lookup(entityID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
	return nil
}

// Release discards an entity's state and assignment.
func (m *Monitor) Release(entityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entities, entityID)
}

// State returns the entity's containment state.
func (m *Monitor) State(entityID string) (State, error) {
	e, err := m.lookup(entityID)
	if err != nil {
		return StateUnknown, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, nil
}

// Snapshot returns the entity's current view.
func (m *Monitor) Snapshot(entityID string) (Snapshot, error) {
	e, err := m.lookup(entityID)
	if err != nil {
		return Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := Snapshot{
		EntityID:     e.id,
		ZoneID:       e.zoneID,
		State:        e.state,
		Observations: e.observations,
		Breaches:     e.breaches,
	}
	if e.hasPosition {
		pos := e.position
		snap.Position = &pos
	}
	return snap, nil
}

func (m *Monitor) lookup(entityID string) (*entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[entityID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnknownEntity, "entity "+entityID+" has no zone assignment")
	}
	return e, nil
}

func (e *entity) reset() {
	e.state = StateUnknown
	e.position = geo.Position{}
	e.hasPosition = false
}
