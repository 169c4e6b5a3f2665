package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	actorservice "terraguard/internal/actor/service"
	actorstore "terraguard/internal/actor/store"
	"terraguard/internal/geo"
	"terraguard/internal/violation/metrics"
	"terraguard/internal/violation/models"
	"terraguard/internal/violation/store"
	"terraguard/internal/zone"
	id "terraguard/pkg/domain"
	dErrors "terraguard/pkg/domain-errors"
	txcontext "terraguard/pkg/platform/tx"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	actors  *actorservice.Service
	store   *store.InMemory
	metrics *metrics.Metrics
	service *Service
	clock   time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.actors = actorservice.New(actorstore.NewInMemory())
	s.store = store.NewInMemory(store.WithClock(func() time.Time { return s.clock }))
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.store, s.actors, WithMetrics(s.metrics))
}

func (s *ServiceSuite) register(identity string) id.ActorID {
	a, err := s.actors.RegisterActor(s.ctx, "Driver "+identity, identity)
	s.Require().NoError(err)
	return a.ID
}

func breachAt(lat float64) geo.Position {
	return geo.At(lat, 80.2707, time.Date(2024, 5, 1, 9, 59, 59, 0, time.UTC))
}

func (s *ServiceSuite) TestRecordViolation() {
	actorID := s.register("123412341234")

	v, err := s.service.RecordViolation(s.ctx, models.RecordRequest{
		IdentityNumber: "123412341234",
		Position:       breachAt(13.0907),
	})
	s.Require().NoError(err)
	s.Equal(actorID, v.ActorID)
	s.Equal(zone.DefaultZoneID, v.ZoneID, "zone defaults to the mining zone")
	s.Equal(models.DefaultMessage, v.Message)
	s.Equal(s.clock, v.DetectedAt)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Recorded))
}

// Unknown identities fail with NotFound and leave the store empty.
func (s *ServiceSuite) TestRecordViolationUnknownActor() {
	_, err := s.service.RecordViolation(s.ctx, models.RecordRequest{
		IdentityNumber: "999999999999",
		Position:       breachAt(13.0907),
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Equal("Driver not found", dErrors.Message(err))

	all, err := s.store.ListAll(s.ctx, models.Window{})
	s.Require().NoError(err)
	s.Empty(all)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.RecordFailures.WithLabelValues(string(dErrors.CodeNotFound))))
}

// A failing store surfaces a persistence error and the log is unchanged.
func (s *ServiceSuite) TestRecordViolationStoreFailure() {
	s.register("123412341234")
	kept, err := s.service.RecordViolation(s.ctx, models.RecordRequest{
		IdentityNumber: "123412341234",
		Position:       breachAt(13.0901),
	})
	s.Require().NoError(err)
	svc := New(failingStore{Store: s.store}, s.actors)

	_, err = svc.RecordViolation(s.ctx, models.RecordRequest{
		IdentityNumber: "123412341234",
		Position:       breachAt(13.0907),
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePersistence))
	s.Equal("Log failed", dErrors.Message(err))

	all, err := s.store.ListAll(s.ctx, models.Window{})
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal(kept.ID, all[0].ID)
}

func (s *ServiceSuite) TestRecordViolationRejectsBadCoordinates() {
	s.register("1")
	_, err := s.service.RecordViolation(s.ctx, models.RecordRequest{
		IdentityNumber: "1",
		Position:       geo.At(200, 0, time.Time{}),
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestListViolationsJoinsDrivers() {
	s.register("1")
	s.register("2")

	_, err := s.service.RecordViolation(s.ctx, models.RecordRequest{IdentityNumber: "1", Position: breachAt(13.1)})
	s.Require().NoError(err)
	s.clock = s.clock.Add(time.Second)
	_, err = s.service.RecordViolation(s.ctx, models.RecordRequest{IdentityNumber: "2", Position: breachAt(13.2)})
	s.Require().NoError(err)

	list, err := s.service.ListViolations(s.ctx, models.Window{})
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("2", list[0].Driver.IdentityNumber, "newest first")
	s.Equal("1", list[1].Driver.IdentityNumber)

	_, err = s.service.ListViolations(s.ctx, models.Window{From: s.clock, To: s.clock})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestListByActor() {
	s.register("1")
	first, err := s.service.RecordViolation(s.ctx, models.RecordRequest{IdentityNumber: "1", Position: breachAt(13.1)})
	s.Require().NoError(err)
	second, err := s.service.RecordViolation(s.ctx, models.RecordRequest{IdentityNumber: "1", Position: breachAt(13.2)})
	s.Require().NoError(err)

	list, err := s.service.ListByActor(s.ctx, "1", models.Window{})
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(first.ID, list[0].ID)
	s.Equal(second.ID, list[1].ID)

	_, err = s.service.ListByActor(s.ctx, "404", models.Window{})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// The lookup and the insert share one transaction; a failed insert rolls it
// back.
func TestRecordViolationRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	actorID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM actors WHERE identity_number = $1")).
		WithArgs("123412341234").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "identity_number", "role", "created_at"}).
			AddRow(actorID.String(), "Ravi", "123412341234", "DRIVER", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO violations")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	svc := New(
		store.NewPostgres(db),
		actorservice.New(actorstore.NewPostgres(db)),
		WithTx(txcontext.NewSQLRunner(db)),
	)
	_, err = svc.RecordViolation(context.Background(), models.RecordRequest{
		IdentityNumber: "123412341234",
		Position:       breachAt(13.0907),
	})
	require.Error(t, err)
	require.True(t, dErrors.HasCode(err, dErrors.CodePersistence))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordViolationBeginFailureIsPersistenceError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	svc := New(store.NewPostgres(db), actorservice.New(actorstore.NewPostgres(db)), WithTx(txcontext.NewSQLRunner(db)))
	_, err = svc.RecordViolation(context.Background(), models.RecordRequest{
		IdentityNumber: "1",
		Position:       breachAt(13.0907),
	})
	require.True(t, dErrors.HasCode(err, dErrors.CodePersistence))
}

func TestRecordViolationCommitFailureIsPersistenceError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	actorID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM actors WHERE identity_number = $1")).
		WithArgs("123412341234").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "identity_number", "role", "created_at"}).
			AddRow(actorID.String(), "Ravi", "123412341234", "DRIVER", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO violations")).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(7)))
	mock.ExpectCommit().WillReturnError(errors.New("connection reset during commit"))

	svc := New(
		store.NewPostgres(db),
		actorservice.New(actorstore.NewPostgres(db)),
		WithTx(txcontext.NewSQLRunner(db)),
	)
	v, err := svc.RecordViolation(context.Background(), models.RecordRequest{
		IdentityNumber: "123412341234",
		Position:       breachAt(13.0907),
	})
	require.Error(t, err)
	assert.Nil(t, v)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePersistence))
	assert.Equal(t, "Log failed", dErrors.Message(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

type failingStore struct {
	Store
}

func (failingStore) Append(context.Context, models.Input) (*models.Violation, error) {
	return nil, errors.New("insert violation: connection reset")
}
