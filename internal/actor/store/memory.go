package store

import (
	"context"
	"fmt"
	"sync"

	"terraguard/internal/actor/models"
	id "terraguard/pkg/domain"
	"terraguard/pkg/platform/sentinel"
)

// InMemory keeps actors in maps indexed by id and identity number.
type InMemory struct {
	mu         sync.RWMutex
	byID       map[id.ActorID]*models.Actor
	byIdentity map[string]id.ActorID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:       make(map[id.ActorID]*models.Actor),
		byIdentity: make(map[string]id.ActorID),
	}
}

// Create inserts the actor unless its identity number is taken.
func (s *InMemory) Create(_ context.Context, actor *models.Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byIdentity[actor.IdentityNumber]; ok {
		return fmt.Errorf("identity %s: %w", actor.IdentityNumber, sentinel.ErrAlreadyUsed)
	}
	cp := *actor
	s.byID[actor.ID] = &cp
	s.byIdentity[actor.IdentityNumber] = actor.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, actorID id.ActorID) (*models.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[actorID]
	if !ok {
		return nil, fmt.Errorf("actor %s: %w", actorID, sentinel.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (s *InMemory) FindByIdentity(_ context.Context, identityNumber string) (*models.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actorID, ok := s.byIdentity[identityNumber]
	if !ok {
		return nil, fmt.Errorf("identity %s: %w", identityNumber, sentinel.ErrNotFound)
	}
	cp := *s.byID[actorID]
	return &cp, nil
}

// FindByIDs returns the actors that exist among ids, keyed by id.
func (s *InMemory) FindByIDs(_ context.Context, ids []id.ActorID) (map[id.ActorID]*models.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.ActorID]*models.Actor, len(ids))
	for _, actorID := range ids {
		if a, ok := s.byID[actorID]; ok {
			cp := *a
			out[actorID] = &cp
		}
	}
	return out, nil
}
