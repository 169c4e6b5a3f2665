package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"terraguard/internal/violation/models"
	id "terraguard/pkg/domain"
)

// InMemory is an append-only violation log guarded by a mutex. The sequence
// counter and the slice are updated under the same lock, so an append is
// either fully visible or not at all.
type InMemory struct {
	mu      sync.RWMutex
	records []models.Violation
	seq     int64
	now     func() time.Time
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source for DetectedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func NewInMemory(opts ...Option) *InMemory {
	o := buildOptions(opts)
	return &InMemory{now: o.now}
}

// Append stores a new violation and returns it with its id, sequence and
// detection time filled in.
func (s *InMemory) Append(_ context.Context, in models.Input) (*models.Violation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	v := newViolation(in, s.now())
	v.Seq = s.seq
	s.records = append(s.records, v)
	return &v, nil
}

// ListByActor returns the actor's violations in append order.
func (s *InMemory) ListByActor(_ context.Context, actorID id.ActorID, w models.Window) ([]*models.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Violation, 0)
	for i := range s.records {
		v := s.records[i]
		if v.ActorID == actorID && w.Contains(v.DetectedAt) {
			out = append(out, &v)
		}
	}
	return out, nil
}

// ListAll returns every violation, newest detection first; ties go to the
// later append.
func (s *InMemory) ListAll(_ context.Context, w models.Window) ([]*models.Violation, error) {
	s.mu.RLock()
	out := make([]*models.Violation, 0, len(s.records))
	for i := range s.records {
		v := s.records[i]
		if w.Contains(v.DetectedAt) {
			out = append(out, &v)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(vs []*models.Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		if !vs[i].DetectedAt.Equal(vs[j].DetectedAt) {
			return vs[i].DetectedAt.After(vs[j].DetectedAt)
		}
		return vs[i].Seq > vs[j].Seq
	})
}

// newViolation stamps an input. Times are truncated to microseconds so a record
// reads back identically from Postgres.
func newViolation(in models.Input, now time.Time) models.Violation {
	v := models.Violation{
		ID:         id.NewViolationID(),
		ActorID:    in.ActorID,
		Latitude:   in.Position.Latitude,
		Longitude:  in.Position.Longitude,
		DetectedAt: now.UTC().Truncate(time.Microsecond),
		ZoneID:     in.ZoneID,
		Message:    in.Message,
	}
	if !in.Position.Timestamp.IsZero() {
		v.SampledAt = in.Position.Timestamp.UTC().Truncate(time.Microsecond)
	}
	return v
}
