// Package service records violations and serves the reporting feed.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	actormodels "terraguard/internal/actor/models"
	"terraguard/internal/violation/metrics"
	"terraguard/internal/violation/models"
	"terraguard/internal/zone"
	id "terraguard/pkg/domain"
	dErrors "terraguard/pkg/domain-errors"
	"terraguard/pkg/platform/sentinel"
	txcontext "terraguard/pkg/platform/tx"
)

// Store is the append-only violation log.
type Store interface {
	Append(ctx context.Context, in models.Input) (*models.Violation, error)
	ListByActor(ctx context.Context, actorID id.ActorID, w models.Window) ([]*models.Violation, error)
	ListAll(ctx context.Context, w models.Window) ([]*models.Violation, error)
}

// Actors resolves identity numbers and actor ids.
type Actors interface {
	LookupActor(ctx context.Context, identityNumber string) (*actormodels.Actor, error)
	ActorsByID(ctx context.Context, ids []id.ActorID) (map[id.ActorID]*actormodels.Actor, error)
}

// Service records violations against registered actors.
type Service struct {
	store   Store
	actors  Actors
	tx      txcontext.Runner
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTx runs the actor lookup and the append in one unit of work.
func WithTx(runner txcontext.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func New(store Store, actors Actors, opts ...Option) *Service {
	s := &Service{
		store:  store,
		actors: actors,
		tx:     txcontext.Direct{},
		logger: slog.Default(),
		tracer: otel.Tracer("terraguard/violation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordViolation resolves the identity number and appends a violation.
//
// Fails with CodeNotFound ("Driver not found") for unknown identities, leaving
// the store untouched, and with CodePersistence when the append fails. A
// persistence failure is safe to retry.
func (s *Service) RecordViolation(ctx context.Context, req models.RecordRequest) (*models.Violation, error) {
	ctx, span := s.tracer.Start(ctx, "violation.RecordViolation",
		trace.WithAttributes(
			attribute.String("zone.id", req.ZoneID),
		))
	defer span.End()

	v, err := s.record(ctx, req)
	if err != nil {
		code := dErrors.CodeOf(err)
		s.metrics.IncFailure(string(code))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		return nil, err
	}
	span.SetAttributes(attribute.String("violation.id", v.ID.String()))
	s.metrics.IncRecorded()
	s.logger.InfoContext(ctx, "violation recorded",
		"violation_id", v.ID.String(),
		"actor_id", v.ActorID.String(),
		"zone_id", v.ZoneID,
		"latitude", v.Latitude,
		"longitude", v.Longitude,
	)
	return v, nil
}

func (s *Service) record(ctx context.Context, req models.RecordRequest) (*models.Violation, error) {
	if err := req.Position.Point().Validate(); err != nil {
		return nil, err
	}
	zoneID := strings.TrimSpace(req.ZoneID)
	if zoneID == "" {
		zoneID = zone.DefaultZoneID
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = models.DefaultMessage
	}

	var stored *models.Violation
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		actor, err := s.actors.LookupActor(ctx, req.IdentityNumber)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "Driver not found")
			}
			return err
		}

		start := time.Now()
		stored, err = s.store.Append(ctx, models.Input{
			ActorID:  actor.ID,
			Position: req.Position,
			ZoneID:   zoneID,
			Message:  message,
		})
		s.metrics.ObserveAppend(start)
		if err != nil {
			return s.translateAppendError(err)
		}
		return nil
	})
	if err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return nil, err
		}
		// begin or commit failed
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "Log failed")
	}
	return stored, nil
}

func (s *Service) translateAppendError(err error) error {
	var de *dErrors.Error
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "Driver not found")
	case errors.As(err, &de):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodePersistence, "Log failed")
	}
}

// ListViolations returns the reporting feed: every violation newest first,
// joined with its driver.
func (s *Service) ListViolations(ctx context.Context, w models.Window) ([]models.WithActor, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "violation.ListViolations")
	defer span.End()

	all, err := s.store.ListAll(ctx, w)
	if err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "Fetch failed")
	}

	seen := make(map[id.ActorID]struct{})
	ids := make([]id.ActorID, 0)
	for _, v := range all {
		if _, ok := seen[v.ActorID]; !ok {
			seen[v.ActorID] = struct{}{}
			ids = append(ids, v.ActorID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	actors, err := s.actors.ActorsByID(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "Fetch failed")
	}

	out := make([]models.WithActor, 0, len(all))
	for _, v := range all {
		out = append(out, models.WithActor{Violation: *v, Driver: actors[v.ActorID]})
	}
	return out, nil
}

// ListByActor returns one driver's violations in the order they were recorded.
func (s *Service) ListByActor(ctx context.Context, identityNumber string, w models.Window) ([]*models.Violation, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	actor, err := s.actors.LookupActor(ctx, identityNumber)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Driver not found")
		}
		return nil, err
	}
	list, err := s.store.ListByActor(ctx, actor.ID, w)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "Fetch failed")
	}
	return list, nil
}
