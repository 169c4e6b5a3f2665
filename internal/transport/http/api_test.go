package httptransport_test

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	actorhandler "terraguard/internal/actor/handler"
	actormodels "terraguard/internal/actor/models"
	actorservice "terraguard/internal/actor/service"
	actorstore "terraguard/internal/actor/store"
	"terraguard/internal/alert"
	"terraguard/internal/tracking/dispatcher"
	trackinghandler "terraguard/internal/tracking/handler"
	"terraguard/internal/tracking/monitor"
	"terraguard/internal/tracking/session"
	httptransport "terraguard/internal/transport/http"
	violationhandler "terraguard/internal/violation/handler"
	"terraguard/internal/violation/models"
	violationservice "terraguard/internal/violation/service"
	violationstore "terraguard/internal/violation/store"
	"terraguard/internal/zone"
	zonehandler "terraguard/internal/zone/handler"
	"terraguard/pkg/testutil"
)

type captureSink struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (c *captureSink) Notify(_ context.Context, a alert.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *captureSink) received() []alert.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]alert.Alert(nil), c.alerts...)
}

// APISuite drives the assembled router backed by in-memory stores.
type APISuite struct {
	suite.Suite
	router   http.Handler
	disp     *dispatcher.Dispatcher
	sessions *session.Manager
	sink     *captureSink
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	zones := zone.NewRegistry()
	s.Require().NoError(zones.Seed())
	actors := actorservice.New(actorstore.NewInMemory(), actorservice.WithLogger(log))
	violations := violationservice.New(violationstore.NewInMemory(), actors, violationservice.WithLogger(log))

	s.sink = &captureSink{}
	s.disp = dispatcher.New(violations,
		dispatcher.WithLogger(log),
		dispatcher.WithSink(s.sink),
		dispatcher.WithShards(2),
	)
	s.disp.Run(context.Background())
	s.sessions = session.NewManager(actors, monitor.New(zones, monitor.WithLogger(log)), s.disp,
		session.WithLogger(log),
		session.WithInterval(time.Millisecond),
	)

	s.router = httptransport.NewRouter(httptransport.Config{
		Logger: log,
		Handlers: []httptransport.RouteRegistrar{
			actorhandler.New(actors, log),
			violationhandler.New(violations, log),
			zonehandler.New(zones, log),
			trackinghandler.New(s.sessions, log),
		},
	})
}

func (s *APISuite) TearDownTest() {
	s.Require().NoError(s.sessions.Shutdown(context.Background()))
	s.Require().NoError(s.disp.Close(context.Background()))
}

func (s *APISuite) register(name, aadhaar string) actormodels.Actor {
	rec := testutil.Do(s.router, testutil.JSONRequest(s.T(), http.MethodPost, "/api/register-driver",
		map[string]string{"name": name, "aadhaar": aadhaar}))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	return testutil.DecodeJSON[actormodels.Actor](s.T(), rec)
}

func (s *APISuite) logViolation(aadhaar string, lat, lon float64, message string) *models.Violation {
	rec := testutil.Do(s.router, testutil.JSONRequest(s.T(), http.MethodPost, "/api/log-violation", map[string]any{
		"aadhaar":   aadhaar,
		"latitude":  lat,
		"longitude": lon,
		"message":   message,
	}))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	v := testutil.DecodeJSON[models.Violation](s.T(), rec)
	return &v
}

func (s *APISuite) adminFeed() []models.WithActor {
	rec := testutil.Do(s.router, testutil.JSONRequest(s.T(), http.MethodGet, "/api/admin/violations", nil))
	s.Require().Equal(http.StatusOK, rec.Code)
	return testutil.DecodeJSON[[]models.WithActor](s.T(), rec)
}

func (s *APISuite) TestDriverRegistrationAndLogin() {
	ravi := s.register("Ravi", "123412341234")
	s.Equal(actormodels.RoleDriver, ravi.Role)

	rec := testutil.Do(s.router, testutil.JSONRequest(s.T(), http.MethodPost, "/api/register-driver",
		map[string]string{"name": "Someone Else", "aadhaar": "123412341234"}))
	testutil.AssertError(s.T(), rec, http.StatusConflict, "conflict", "Aadhaar already registered.")

	rec = testutil.Do(s.router, testutil.JSONRequest(s.T(), http.MethodPost, "/api/register-driver",
		map[string]string{"name": "Ravi"}))
	testutil.AssertError(s.T(), rec, http.StatusBadRequest, "invalid_input", "Missing fields")

	rec = testutil.Do(s.router, testutil.JSONRequest(s.T(), http.MethodPost, "/api/login-driver",
		map[string]string{"aadhaar": "123412341234"}))
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(ravi.ID, testutil.DecodeJSON[actormodels.Actor](s.T(), rec).ID)

	rec = testutil.Do(s.router, testutil.JSONRequest(s.T(), http.MethodPost, "/api/login-driver",
		map[string]string{"aadhaar": "999999999999"}))
	testutil.AssertError(s.T(), rec, http.StatusNotFound, "not_found", "Aadhaar not found. Please Sign Up!")
}

func (s *APISuite) TestManualReportsAndAdminFeed() {
	ravi := s.register("Ravi", "123412341234")
	meena := s.register("Meena", "567856785678")

	first := s.logViolation("123412341234", 13.0950, 80.2750, "Left the pit")
	second := s.logViolation("567856785678", 13.0700, 80.2650, "")
	third := s.logViolation("123412341234", 13.0960, 80.2760, "Left again")
	s.Equal(models.DefaultMessage, second.Message)
	s.Equal(zone.DefaultZoneID, second.ZoneID)

	rec := testutil.Do(s.router, testutil.JSONRequest(s.T(), http.MethodPost, "/api/log-violation", map[string]any{
		"aadhaar": "999999999999", "latitude": 13.1, "longitude": 80.2,
	}))
	testutil.AssertError(s.T(), rec, http.StatusNotFound, "not_found", "Driver not found")

	feed := s.adminFeed()
	s.Require().Len(feed, 3)
	s.Equal(third.ID, feed[0].ID, "newest first")
	s.Equal(second.ID, feed[1].ID)
	s.Equal(first.ID, feed[2].ID)
	s.Require().NotNil(feed[1].Driver)
	s.Equal(meena.ID, feed[1].Driver.ID)
	s.Equal("Ravi", feed[0].Driver.Name)

	rec = testutil.Do(s.router, testutil.JSONRequest(s.T(), http.MethodGet, "/api/drivers/123412341234/violations", nil))
	s.Require().Equal(http.StatusOK, rec.Code)
	own := testutil.DecodeJSON[[]models.Violation](s.T(), rec)
	s.Require().Len(own, 2)
	s.Equal(first.ID, own[0].ID, "a driver's history is in append order")
	s.Equal(third.ID, own[1].ID)
	s.Equal(ravi.ID, own[0].ActorID)

	rec = testutil.Do(s.router, testutil.JSONRequest(s.T(), http.MethodGet, "/api/admin/violations.csv", nil))
	s.Require().Equal(http.StatusOK, rec.Code)
	rows, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	s.Require().NoError(err)
	s.Require().Len(rows, 4)
	s.Equal("driver", rows[0][0])
	s.Equal([]string{"Ravi", "123412341234", "13.096", "80.276"}, rows[1][:4])
}

func (s *APISuite) TestTrackedBreachIsRecordedAndAlerted() {
	ravi := s.register("Ravi", "123412341234")

	rec := testutil.Do(s.router, testutil.JSONRequest(s.T(), http.MethodPost, "/api/tracking/123412341234/start",
		map[string]string{"mode": "push"}))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	for _, p := range []struct {
		lat, lon float64
		breached bool
	}{
		{13.0850, 80.2750, false},
		{13.0900, 80.2750, false},
		{13.0950, 80.2750, true},
		{13.0960, 80.2750, false},
	} {
		rec = testutil.Do(s.router, testutil.JSONRequest(s.T(), http.MethodPost, "/api/tracking/123412341234/positions",
			map[string]float64{"latitude": p.lat, "longitude": p.lon}))
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		got := testutil.DecodeJSON[map[string]any](s.T(), rec)
		s.Equal(p.breached, got["breached"], "sample %v", p)
	}

	s.Require().NoError(s.disp.Close(context.Background()))

	feed := s.adminFeed()
	s.Require().Len(feed, 1)
	s.Equal(ravi.ID, feed[0].ActorID)
	s.Equal(zone.DefaultZoneID, feed[0].ZoneID)
	s.Equal(models.DefaultMessage, feed[0].Message)
	s.Equal(13.0950, feed[0].Latitude)

	alerts := s.sink.received()
	s.Require().Len(alerts, 1)
	s.Equal(feed[0].ID.String(), alerts[0].ViolationID)
	s.Equal("123412341234", alerts[0].IdentityNumber)

	rec = testutil.Do(s.router, testutil.JSONRequest(s.T(), http.MethodGet, "/api/tracking/123412341234", nil))
	s.Require().Equal(http.StatusOK, rec.Code)
	status := testutil.DecodeJSON[session.Status](s.T(), rec)
	s.Equal(monitor.StateOutside, status.State)
	s.Equal(1, status.Breaches)
	s.Positive(status.DistanceMeters)

	rec = testutil.Do(s.router, testutil.JSONRequest(s.T(), http.MethodPost, "/api/tracking/123412341234/stop", nil))
	s.Require().Equal(http.StatusOK, rec.Code)
	status = testutil.DecodeJSON[session.Status](s.T(), rec)
	s.False(status.Active)
	s.Equal(monitor.StateUnknown, status.State)
}

func (s *APISuite) TestTrackingUnregisteredDriver() {
	rec := testutil.Do(s.router, testutil.JSONRequest(s.T(), http.MethodPost, "/api/tracking/999999999999/start", map[string]string{}))
	testutil.AssertError(s.T(), rec, http.StatusNotFound, "not_found", "")
}

func (s *APISuite) TestZonesAreServed() {
	rec := testutil.Do(s.router, testutil.JSONRequest(s.T(), http.MethodGet, "/zones/mining-zone", nil))
	s.Require().Equal(http.StatusOK, rec.Code)
	z := testutil.DecodeJSON[zone.Zone](s.T(), rec)
	s.Equal(1, z.Version)
	s.Len(z.Boundary, 4)
}
