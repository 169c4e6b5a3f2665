package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"terraguard/internal/actor/models"
	id "terraguard/pkg/domain"
	dErrors "terraguard/pkg/domain-errors"
	"terraguard/pkg/platform/sentinel"
)

// Store persists actors.
type Store interface {
	Create(ctx context.Context, actor *models.Actor) error
	FindByID(ctx context.Context, actorID id.ActorID) (*models.Actor, error)
	FindByIdentity(ctx context.Context, identityNumber string) (*models.Actor, error)
	FindByIDs(ctx context.Context, ids []id.ActorID) (map[id.ActorID]*models.Actor, error)
}

// Service registers and resolves actors.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterActor creates a driver. A taken identity number fails with
// CodeConflict.
func (s *Service) RegisterActor(ctx context.Context, name, identityNumber string) (*models.Actor, error) {
	actor, err := models.NewActor(id.NewActorID(), name, identityNumber, models.RoleDriver, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, actor); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "Aadhaar already registered.")
		}
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed to register driver")
	}
	s.logger.InfoContext(ctx, "driver registered", "actor_id", actor.ID.String())
	return actor, nil
}

// LookupActor resolves an identity number. Unknown numbers fail with
// CodeNotFound.
func (s *Service) LookupActor(ctx context.Context, identityNumber string) (*models.Actor, error) {
	identityNumber, err := models.NormalizeIdentityNumber(identityNumber)
	if err != nil {
		return nil, err
	}
	actor, err := s.store.FindByIdentity(ctx, identityNumber)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Aadhaar not found. Please Sign Up!")
		}
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed to load driver")
	}
	return actor, nil
}

// ActorsByID loads the actors referenced by ids. Missing ids are absent from
// the result.
func (s *Service) ActorsByID(ctx context.Context, ids []id.ActorID) (map[id.ActorID]*models.Actor, error) {
	found, err := s.store.FindByIDs(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed to load drivers")
	}
	return found, nil
}
