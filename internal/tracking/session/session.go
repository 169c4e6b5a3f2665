// Package session runs tracking sessions: one position feed per driver wired
// through the geofence monitor, with breaches handed to the dispatcher.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	actormodels "terraguard/internal/actor/models"
	"terraguard/internal/geo"
	"terraguard/internal/tracking/dispatcher"
	"terraguard/internal/tracking/feed"
	"terraguard/internal/tracking/metrics"
	"terraguard/internal/tracking/monitor"
	"terraguard/internal/zone"
	dErrors "terraguard/pkg/domain-errors"
)

// Actors resolves the driver a session belongs to.
type Actors interface {
	LookupActor(ctx context.Context, identityNumber string) (*actormodels.Actor, error)
}

// Tracker is the containment state machine sessions feed.
type Tracker interface {
	Assign(entityID, zoneID string) error
	Observe(ctx context.Context, entityID string, pos geo.Position) (*monitor.BreachEvent, error)
	Reset(entityID string) error
	Snapshot(entityID string) (monitor.Snapshot, error)
}

// Dispatcher takes breach events off the observation path.
type Dispatcher interface {
	Enqueue(ctx context.Context, ev monitor.BreachEvent, onFailure dispatcher.FailureFunc) error
}

// StartRequest describes a new session. A nil Source starts a push session
// that only receives samples through Observe.
type StartRequest struct {
	IdentityNumber string
	ZoneID         string
	Source         feed.Source
	Interval       time.Duration
}

// Status is the externally visible view of a session.
type Status struct {
	IdentityNumber string        `json:"aadhaar"`
	ActorID        string        `json:"actor_id"`
	Name           string        `json:"name"`
	ZoneID         string        `json:"zone_id"`
	Active         bool          `json:"active"`
	State          monitor.State `json:"state"`
	Position       *geo.Position `json:"position,omitempty"`
	Observations   int           `json:"observations"`
	Breaches       int           `json:"breaches"`
	DistanceMeters float64       `json:"distance_meters"`
	StartedAt      time.Time     `json:"started_at"`
	StoppedAt      *time.Time    `json:"stopped_at,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
}

type session struct {
	actor     *actormodels.Actor
	zoneID    string
	interval  time.Duration
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	// pushMu serializes pushed samples against Stop.
	pushMu sync.Mutex

	mu           sync.Mutex
	active       bool
	stoppedAt    time.Time
	last         *geo.Position
	distance     float64
	observations int
	breaches     int
	lastErr      string
}

func (s *session) key() string {
	return s.actor.IdentityNumber
}

func (s *session) moved(pos geo.Position, breached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations++
	if breached {
		s.breaches++
	}
	if s.last != nil {
		s.distance += geo.Distance(s.last.Point(), pos.Point())
	}
	p := pos
	s.last = &p
}

func (s *session) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err.Error()
}

func (s *session) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Manager owns every tracking session in the process.
type Manager struct {
	actors         Actors
	tracker        Tracker
	dispatch       Dispatcher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	now            func() time.Time
	interval       time.Duration
	freezeOnBreach bool

	mu       sync.Mutex
	sessions map[string]*session
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithInterval sets the sampling period used when a StartRequest has none.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithFreezeOnBreach stops a session's feed after its first breach.
func WithFreezeOnBreach(freeze bool) Option {
	return func(m *Manager) {
		m.freezeOnBreach = freeze
	}
}

func NewManager(actors Actors, tracker Tracker, dispatch Dispatcher, opts ...Option) *Manager {
	m := &Manager{
		actors:   actors,
		tracker:  tracker,
		dispatch: dispatch,
		logger:   slog.Default(),
		now:      time.Now,
		interval: feed.DefaultInterval,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a session for a registered driver. A driver can have one active
// session at a time; a stopped session is replaced.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Status, error) {
	actor, err := m.actors.LookupActor(ctx, req.IdentityNumber)
	if err != nil {
		return nil, err
	}
	zoneID := req.ZoneID
	if zoneID == "" {
		zoneID = zone.DefaultZoneID
	}
	interval := req.Interval
	if interval <= 0 {
		interval = m.interval
	}

	s := &session{
		actor:     actor,
		zoneID:    zoneID,
		interval:  interval,
		startedAt: m.now().UTC(),
		active:    true,
	}

	var f *feed.Feed
	if req.Source != nil {
		if f, err = feed.New(req.Source, feed.WithInterval(interval), feed.WithClock(m.now)); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	if prev, ok := m.sessions[s.key()]; ok && prev.isActive() {
		m.mu.Unlock()
		return nil, dErrors.New(dErrors.CodeConflict, "tracking session already active")
	}
	if err := m.tracker.Assign(s.key(), zoneID); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := m.tracker.Reset(s.key()); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.metrics.SessionStarted()
	if f != nil {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.cancel = cancel
		s.done = make(chan struct{})
		go m.run(runCtx, s, f.Stream(runCtx))
	}
	m.sessions[s.key()] = s
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "tracking session started",
		"entity_id", s.key(),
		"zone_id", zoneID,
		"interval", interval,
		"push_only", req.Source == nil,
	)
	return m.status(s)
}

func (m *Manager) run(ctx context.Context, s *session, stream <-chan geo.Position) {
	defer close(s.done)
	defer m.deactivate(ctx, s, "feed ended")
	for pos := range stream {
		ev, err := m.handle(ctx, s, pos)
		if err == nil && ev != nil && m.freezeOnBreach {
			s.cancel()
			return
		}
	}
}

// handle runs one sample through the monitor and queues any breach. The
// enqueue waits at most one sample interval. Failures are kept as the
// session's last error.
func (m *Manager) handle(ctx context.Context, s *session, pos geo.Position) (*monitor.BreachEvent, error) {
	ev, err := m.tracker.Observe(ctx, s.key(), pos)
	if err != nil {
		m.logger.WarnContext(ctx, "sample rejected",
			"entity_id", s.key(),
			"error", err.Error(),
		)
		s.setError(err)
		return nil, err
	}
	s.moved(pos, ev != nil)
	if ev == nil {
		return nil, nil
	}

	// The monitor already moved to OUTSIDE, so only the interval bounds the
	// hand-off. Caller cancellation would lose the breach for good.
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.interval)
	defer cancel()
	if err := m.dispatch.Enqueue(enqueueCtx, *ev, m.reportFailure(s)); err != nil {
		m.logger.ErrorContext(ctx, "breach could not be queued",
			"entity_id", s.key(),
			"zone_id", ev.ZoneID,
			"latitude", ev.Position.Latitude,
			"longitude", ev.Position.Longitude,
			"error", err.Error(),
		)
		s.setError(err)
		return ev, err
	}
	return ev, nil
}

func (m *Manager) reportFailure(s *session) dispatcher.FailureFunc {
	return func(_ monitor.BreachEvent, err error) {
		s.setError(err)
	}
}

// deactivate marks s stopped once and reports whether it was running.
func (m *Manager) deactivate(ctx context.Context, s *session, reason string) bool {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return false
	}
	s.active = false
	s.stoppedAt = m.now().UTC()
	s.mu.Unlock()

	m.metrics.SessionStopped()
	m.logger.InfoContext(ctx, "tracking session stopped",
		"entity_id", s.key(),
		"reason", reason,
	)
	return true
}

// Stop ends a driver's session, waits for its feed to finish and resets the
// monitor to UNKNOWN. Stopping an already stopped session only resets.
func (m *Manager) Stop(ctx context.Context, identityNumber string) error {
	s, err := m.lookup(identityNumber)
	if err != nil {
		return err
	}
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	m.deactivate(ctx, s, "stopped")
	return m.tracker.Reset(s.key())
}

// Observe pushes an externally reported sample through an active session. A
// zero timestamp is stamped with the current time.
func (m *Manager) Observe(ctx context.Context, identityNumber string, pos geo.Position) (*monitor.BreachEvent, error) {
	s, err := m.lookup(identityNumber)
	if err != nil {
		return nil, err
	}
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	if !s.isActive() {
		return nil, dErrors.New(dErrors.CodeConflict, "tracking session is not active")
	}
	if pos.Timestamp.IsZero() {
		pos.Timestamp = m.now().UTC()
	}
	ev, err := m.handle(ctx, s, pos)
	if err != nil {
		return ev, err
	}
	if ev != nil && m.freezeOnBreach {
		if s.cancel != nil {
			s.cancel()
		}
		m.deactivate(ctx, s, "breach")
	}
	return ev, nil
}

// Status reports a session's state, last position, breach count, distance
// travelled and the most recent error.
func (m *Manager) Status(identityNumber string) (*Status, error) {
	s, err := m.lookup(identityNumber)
	if err != nil {
		return nil, err
	}
	return m.status(s)
}

func (m *Manager) status(s *session) (*Status, error) {
	snap, err := m.tracker.Snapshot(s.key())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &Status{
		IdentityNumber: s.actor.IdentityNumber,
		ActorID:        s.actor.ID.String(),
		Name:           s.actor.Name,
		ZoneID:         s.zoneID,
		Active:         s.active,
		State:          snap.State,
		Position:       snap.Position,
		Observations:   s.observations,
		Breaches:       s.breaches,
		DistanceMeters: s.distance,
		StartedAt:      s.startedAt,
		LastError:      s.lastErr,
	}
	if !s.active {
		stopped := s.stoppedAt
		st.StoppedAt = &stopped
	}
	return st, nil
}

// Shutdown stops every running feed and waits for them until ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	running := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.isActive() {
			running = append(running, s)
		}
	}
	m.mu.Unlock()

	for _, s := range running {
		if s.cancel != nil {
			s.cancel()
		}
	}
	for _, s := range running {
		if s.done != nil {
			select {
			case <-s.done:
			case <-ctx.Done():
				return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "tracking sessions did not stop in time")
			}
		}
		m.deactivate(ctx, s, "shutdown")
	}
	return nil
}

func (m *Manager) lookup(identityNumber string) (*session, error) {
	key, err := actormodels.NormalizeIdentityNumber(identityNumber)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "no tracking session for this driver")
	}
	return s, nil
}
