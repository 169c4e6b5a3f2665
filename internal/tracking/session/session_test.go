package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	actormodels "terraguard/internal/actor/models"
	"terraguard/internal/geo"
	"terraguard/internal/tracking/dispatcher"
	"terraguard/internal/tracking/feed"
	"terraguard/internal/tracking/monitor"
	"terraguard/internal/violation/models"
	"terraguard/internal/zone"
	id "terraguard/pkg/domain"
	dErrors "terraguard/pkg/domain-errors"
)

const driverAadhaar = "123456789012"

var (
	insideMine  = geo.Point{Lat: 13.085, Lon: 80.275}
	nearEdge    = geo.Point{Lat: 13.089, Lon: 80.275}
	outsideMine = geo.Point{Lat: 13.095, Lon: 80.275}
)

type stubActors map[string]*actormodels.Actor

func (a stubActors) LookupActor(_ context.Context, identityNumber string) (*actormodels.Actor, error) {
	actor, ok := a[identityNumber]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "Aadhaar not found. Please Sign Up!")
	}
	return actor, nil
}

type recordingDispatch struct {
	mu         sync.Mutex
	events     []monitor.BreachEvent
	enqueueErr error
	recordErr  error
}

func (d *recordingDispatch) Enqueue(_ context.Context, ev monitor.BreachEvent, onFailure dispatcher.FailureFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enqueueErr != nil {
		return d.enqueueErr
	}
	d.events = append(d.events, ev)
	if d.recordErr != nil && onFailure != nil {
		onFailure(ev, d.recordErr)
	}
	return nil
}

func (d *recordingDispatch) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

type ManagerSuite struct {
	suite.Suite
	ctx      context.Context
	monitor  *monitor.Monitor
	dispatch *recordingDispatch
	manager  *Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()
	registry := zone.NewRegistry()
	s.Require().NoError(registry.Seed())
	s.monitor = monitor.New(registry)
	s.dispatch = &recordingDispatch{}
	s.manager = s.newManager()
}

func (s *ManagerSuite) TearDownTest() {
	s.Require().NoError(s.manager.Shutdown(context.Background()))
}

func (s *ManagerSuite) newManager(opts ...Option) *Manager {
	actor, err := actormodels.NewActor(id.NewActorID(), "Ravi", driverAadhaar, actormodels.RoleDriver, time.Now())
	s.Require().NoError(err)
	return NewManager(stubActors{driverAadhaar: actor}, s.monitor, s.dispatch,
		append([]Option{WithInterval(time.Millisecond)}, opts...)...)
}

func (s *ManagerSuite) push(p geo.Point) (*monitor.BreachEvent, error) {
	return s.manager.Observe(s.ctx, driverAadhaar, geo.At(p.Lat, p.Lon, time.Time{}))
}

func (s *ManagerSuite) TestPushSessionRecordsBreach() {
	st, err := s.manager.Start(s.ctx, StartRequest{IdentityNumber: driverAadhaar})
	s.Require().NoError(err)
	s.True(st.Active)
	s.Equal(zone.DefaultZoneID, st.ZoneID)
	s.Equal(monitor.StateUnknown, st.State)
	s.Equal("Ravi", st.Name)

	ev, err := s.push(insideMine)
	s.Require().NoError(err)
	s.Nil(ev)
	ev, err = s.push(nearEdge)
	s.Require().NoError(err)
	s.Nil(ev)
	ev, err = s.push(outsideMine)
	s.Require().NoError(err)
	s.Require().NotNil(ev)
	s.Equal(driverAadhaar, ev.ActorID)
	s.Equal(zone.DefaultZoneID, ev.ZoneID)

	ev, err = s.push(outsideMine)
	s.Require().NoError(err)
	s.Nil(ev, "staying outside does not breach again")

	st, err = s.manager.Status(driverAadhaar)
	s.Require().NoError(err)
	s.Equal(monitor.StateOutside, st.State)
	s.Equal(4, st.Observations)
	s.Equal(1, st.Breaches)
	s.Require().NotNil(st.Position)
	s.Equal(outsideMine.Lat, st.Position.Latitude)
	s.InDelta(geo.Distance(insideMine, outsideMine), st.DistanceMeters, 1)
	s.Empty(st.LastError)
	s.Equal(1, s.dispatch.count())
}

func (s *ManagerSuite) TestObserveStampsMissingTimestamp() {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.manager = s.newManager(WithClock(func() time.Time { return now }))
	_, err := s.manager.Start(s.ctx, StartRequest{IdentityNumber: driverAadhaar})
	s.Require().NoError(err)

	_, err = s.push(insideMine)
	s.Require().NoError(err)
	st, err := s.manager.Status(driverAadhaar)
	s.Require().NoError(err)
	s.Require().NotNil(st.Position)
	s.Equal(now, st.Position.Timestamp)
}

func (s *ManagerSuite) TestStartRejectsSecondActiveSession() {
	_, err := s.manager.Start(s.ctx, StartRequest{IdentityNumber: driverAadhaar})
	s.Require().NoError(err)

	_, err = s.manager.Start(s.ctx, StartRequest{IdentityNumber: driverAadhaar})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ManagerSuite) TestStartUnknownDriver() {
	_, err := s.manager.Start(s.ctx, StartRequest{IdentityNumber: "999999999999"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ManagerSuite) TestStartUnknownZone() {
	_, err := s.manager.Start(s.ctx, StartRequest{IdentityNumber: driverAadhaar, ZoneID: "quarry-9"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.manager.Status(driverAadhaar)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "failed start leaves no session")
}

func (s *ManagerSuite) TestStartRejectsEmptyWaypoints() {
	_, err := s.manager.Start(s.ctx, StartRequest{IdentityNumber: driverAadhaar, Source: feed.Waypoints{}})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ManagerSuite) TestStopResetsToUnknown() {
	_, err := s.manager.Start(s.ctx, StartRequest{IdentityNumber: driverAadhaar})
	s.Require().NoError(err)
	_, err = s.push(insideMine)
	s.Require().NoError(err)
	_, err = s.push(outsideMine)
	s.Require().NoError(err)

	s.Require().NoError(s.manager.Stop(s.ctx, driverAadhaar))

	state, err := s.monitor.State(driverAadhaar)
	s.Require().NoError(err)
	s.Equal(monitor.StateUnknown, state)

	st, err := s.manager.Status(driverAadhaar)
	s.Require().NoError(err)
	s.False(st.Active)
	s.NotNil(st.StoppedAt)
	s.Equal(monitor.StateUnknown, st.State)
	s.Nil(st.Position)

	_, err = s.push(insideMine)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "stopped sessions take no samples")

	s.NoError(s.manager.Stop(s.ctx, driverAadhaar), "stopping twice is allowed")

	st, err = s.manager.Start(s.ctx, StartRequest{IdentityNumber: driverAadhaar})
	s.Require().NoError(err, "a stopped session can be restarted")
	s.True(st.Active)
	s.Zero(st.Breaches)
}

func (s *ManagerSuite) TestStopUnknownSession() {
	err := s.manager.Stop(s.ctx, driverAadhaar)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.manager.Stop(s.ctx, "  ")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ManagerSuite) TestFeedSessionKeepsTrackingAfterBreach() {
	_, err := s.manager.Start(s.ctx, StartRequest{
		IdentityNumber: driverAadhaar,
		Source:         feed.Waypoints{insideMine, nearEdge, outsideMine},
	})
	s.Require().NoError(err)

	s.Eventually(func() bool {
		st, err := s.manager.Status(driverAadhaar)
		return err == nil && st.Observations >= 6
	}, time.Second, 2*time.Millisecond)

	st, err := s.manager.Status(driverAadhaar)
	s.Require().NoError(err)
	s.True(st.Active)
	s.Equal(monitor.StateOutside, st.State)
	s.Equal(1, st.Breaches)
	s.Equal(1, s.dispatch.count())

	s.Require().NoError(s.manager.Stop(s.ctx, driverAadhaar))
	st, err = s.manager.Status(driverAadhaar)
	s.Require().NoError(err)
	s.False(st.Active)
}

func (s *ManagerSuite) TestFreezeOnBreachStopsFeed() {
	s.manager = s.newManager(WithFreezeOnBreach(true))
	_, err := s.manager.Start(s.ctx, StartRequest{
		IdentityNumber: driverAadhaar,
		Source:         feed.Waypoints{insideMine, outsideMine},
	})
	s.Require().NoError(err)

	s.Eventually(func() bool {
		st, err := s.manager.Status(driverAadhaar)
		return err == nil && !st.Active
	}, time.Second, 2*time.Millisecond)

	st, err := s.manager.Status(driverAadhaar)
	s.Require().NoError(err)
	s.Equal(2, st.Observations)
	s.Equal(1, st.Breaches)
	s.Equal(monitor.StateOutside, st.State, "frozen sessions keep the breach state until stopped")
	s.Equal(1, s.dispatch.count())
}

func (s *ManagerSuite) TestFreezeOnBreachPushSession() {
	s.manager = s.newManager(WithFreezeOnBreach(true))
	_, err := s.manager.Start(s.ctx, StartRequest{IdentityNumber: driverAadhaar})
	s.Require().NoError(err)

	_, err = s.push(insideMine)
	s.Require().NoError(err)
	ev, err := s.push(outsideMine)
	s.Require().NoError(err)
	s.NotNil(ev)

	_, err = s.push(insideMine)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ManagerSuite) TestRecordFailureSurfacesAsLastError() {
	s.dispatch.recordErr = dErrors.New(dErrors.CodePersistence, "Log failed")
	_, err := s.manager.Start(s.ctx, StartRequest{IdentityNumber: driverAadhaar})
	s.Require().NoError(err)

	_, err = s.push(insideMine)
	s.Require().NoError(err)
	_, err = s.push(outsideMine)
	s.Require().NoError(err)

	st, err := s.manager.Status(driverAadhaar)
	s.Require().NoError(err)
	s.Contains(st.LastError, "Log failed")
}

func (s *ManagerSuite) TestEnqueueFailureIsReported() {
	s.dispatch.enqueueErr = errors.New("queue full")
	_, err := s.manager.Start(s.ctx, StartRequest{IdentityNumber: driverAadhaar})
	s.Require().NoError(err)

	_, err = s.push(insideMine)
	s.Require().NoError(err)
	ev, err := s.push(outsideMine)
	s.Require().Error(err)
	s.NotNil(ev, "the breach is still returned to the caller")

	st, err := s.manager.Status(driverAadhaar)
	s.Require().NoError(err)
	s.Equal("queue full", st.LastError)
	s.Equal(monitor.StateOutside, st.State)
}

func (s *ManagerSuite) TestRejectedSampleSurfacesAsLastError() {
	_, err := s.manager.Start(s.ctx, StartRequest{IdentityNumber: driverAadhaar})
	s.Require().NoError(err)

	_, err = s.manager.Observe(s.ctx, driverAadhaar, geo.At(91, 80.27, time.Time{}))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	st, err := s.manager.Status(driverAadhaar)
	s.Require().NoError(err)
	s.NotEmpty(st.LastError)
	s.Zero(st.Observations)
}

func (s *ManagerSuite) TestShutdownStopsFeeds() {
	_, err := s.manager.Start(s.ctx, StartRequest{
		IdentityNumber: driverAadhaar,
		Source:         feed.DemoPath(),
	})
	s.Require().NoError(err)

	s.Require().NoError(s.manager.Shutdown(s.ctx))

	st, err := s.manager.Status(driverAadhaar)
	s.Require().NoError(err)
	s.False(st.Active)
}

func (s *ManagerSuite) TestStatusUnknownDriver() {
	_, err := s.manager.Status(driverAadhaar)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

type countingRecorder struct {
	mu       sync.Mutex
	recorded int
}

func (r *countingRecorder) RecordViolation(_ context.Context, req models.RecordRequest) (*models.Violation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded++
	return &models.Violation{ZoneID: req.ZoneID}, nil
}

func (r *countingRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recorded
}

func (s *ManagerSuite) TestBreachIsQueuedWhenCallerContextIsCancelled() {
	rec := &countingRecorder{}
	disp := dispatcher.New(rec, dispatcher.WithShards(1), dispatcher.WithQueueSize(64))
	disp.Run(context.Background())

	actor, err := actormodels.NewActor(id.NewActorID(), "Ravi", driverAadhaar, actormodels.RoleDriver, time.Now())
	s.Require().NoError(err)
	s.manager = NewManager(stubActors{driverAadhaar: actor}, s.monitor, disp, WithInterval(time.Second))
	_, err = s.manager.Start(s.ctx, StartRequest{IdentityNumber: driverAadhaar})
	s.Require().NoError(err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	const crossings = 50
	for range crossings {
		_, err := s.push(insideMine)
		s.Require().NoError(err)
		ev, err := s.manager.Observe(cancelled, driverAadhaar, geo.At(outsideMine.Lat, outsideMine.Lon, time.Time{}))
		s.Require().NoError(err)
		s.Require().NotNil(ev)
	}

	s.Require().NoError(disp.Close(context.Background()))
	s.Equal(crossings, rec.count())

	st, err := s.manager.Status(driverAadhaar)
	s.Require().NoError(err)
	s.Empty(st.LastError)
	s.Equal(crossings, st.Breaches)
}

// gatedTracker holds Observe until released once armed.
type gatedTracker struct {
	*monitor.Monitor
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTracker) Observe(ctx context.Context, entityID string, pos geo.Position) (*monitor.BreachEvent, error) {
	if g.armed {
		close(g.entered)
		<-g.release
	}
	return g.Monitor.Observe(ctx, entityID, pos)
}

func (s *ManagerSuite) TestStopDuringPushLeavesStateUnknown() {
	tracker := &gatedTracker{
		Monitor: s.monitor,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	actor, err := actormodels.NewActor(id.NewActorID(), "Ravi", driverAadhaar, actormodels.RoleDriver, time.Now())
	s.Require().NoError(err)
	s.manager = NewManager(stubActors{driverAadhaar: actor}, tracker, s.dispatch, WithInterval(time.Millisecond))
	_, err = s.manager.Start(s.ctx, StartRequest{IdentityNumber: driverAadhaar})
	s.Require().NoError(err)
	_, err = s.push(insideMine)
	s.Require().NoError(err)

	tracker.armed = true
	pushed := make(chan error, 1)
	go func() {
		_, err := s.push(insideMine)
		pushed <- err
	}()
	<-tracker.entered

	stopped := make(chan error, 1)
	go func() { stopped <- s.manager.Stop(s.ctx, driverAadhaar) }()
	time.Sleep(20 * time.Millisecond)
	close(tracker.release)

	s.Require().NoError(<-pushed)
	s.Require().NoError(<-stopped)

	st, err := s.manager.Status(driverAadhaar)
	s.Require().NoError(err)
	s.False(st.Active)
	s.Equal(monitor.StateUnknown, st.State)
}
