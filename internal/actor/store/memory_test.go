package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"terraguard/internal/actor/models"
	id "terraguard/pkg/domain"
	"terraguard/pkg/platform/sentinel"
)

type ActorStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestActorStoreSuite(t *testing.T) {
	suite.Run(t, new(ActorStoreSuite))
}

func (s *ActorStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *ActorStoreSuite) newActor(identity string) *models.Actor {
	a, err := models.NewActor(id.NewActorID(), "Driver "+identity, identity, models.RoleDriver, time.Now())
	s.Require().NoError(err)
	return a
}

func (s *ActorStoreSuite) TestCreateAndLookups() {
	s.Run("finds by id and identity", func() {
		a := s.newActor("111122223333")
		s.Require().NoError(s.store.Create(s.ctx, a))

		byID, err := s.store.FindByID(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Equal(a.Name, byID.Name)

		byIdentity, err := s.store.FindByIdentity(s.ctx, "111122223333")
		s.Require().NoError(err)
		s.Equal(a.ID, byIdentity.ID)
	})

	s.Run("unknown ids map to ErrNotFound", func() {
		_, err := s.store.FindByID(s.ctx, id.NewActorID())
		s.ErrorIs(err, sentinel.ErrNotFound)

		_, err = s.store.FindByIdentity(s.ctx, "000000000000")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returns copies", func() {
		a := s.newActor("444455556666")
		s.Require().NoError(s.store.Create(s.ctx, a))
		a.Name = "mutated"

		found, err := s.store.FindByID(s.ctx, a.ID)
		s.Require().NoError(err)
		s.NotEqual("mutated", found.Name)
	})
}

func (s *ActorStoreSuite) TestDuplicateIdentity() {
	s.Require().NoError(s.store.Create(s.ctx, s.newActor("999988887777")))
	err := s.store.Create(s.ctx, s.newActor("999988887777"))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *ActorStoreSuite) TestConcurrentDuplicateIdentity() {
	const goroutines = 50
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, _ := models.NewActor(id.NewActorID(), "Racer", "123123123123", models.RoleDriver, time.Now())
			if err := s.store.Create(s.ctx, a); err == nil {
				successes.Add(1)
			} else {
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *ActorStoreSuite) TestFindByIDs() {
	a := s.newActor("1")
	b := s.newActor("2")
	s.Require().NoError(s.store.Create(s.ctx, a))
	s.Require().NoError(s.store.Create(s.ctx, b))

	found, err := s.store.FindByIDs(s.ctx, []id.ActorID{a.ID, b.ID, id.NewActorID()})
	s.Require().NoError(err)
	s.Len(found, 2)
	s.Equal("Driver 1", found[a.ID].Name)
}
