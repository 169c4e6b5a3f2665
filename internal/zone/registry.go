package zone

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	dErrors "terraguard/pkg/domain-errors"
)

// Registry holds zones in memory. It is read-mostly: lookups share a read lock
// and registrations serialize on the write lock, last writer wins.
type Registry struct {
	mu     sync.RWMutex
	zones  map[string]Zone
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		zones:  make(map[string]Zone),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a zone. A duplicate id fails with CodeConflict unless replace
// is set, in which case the stored zone is swapped and its version bumped.
// Returns a copy of the stored zone.
func (r *Registry) Register(z Zone, replace bool) (Zone, error) {
	if err := z.Validate(); err != nil {
		return Zone{}, err
	}
	z = z.clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.zones[z.ID]
	switch {
	case ok && !replace:
		return Zone{}, dErrors.New(dErrors.CodeConflict, "zone "+z.ID+" already registered")
	case ok:
		z.Version = existing.Version + 1
	default:
		z.Version = 1
	}
	z.UpdatedAt = r.now().UTC()
	r.zones[z.ID] = z

	r.logger.Info("zone registered",
		"zone_id", z.ID,
		"version", z.Version,
		"vertices", len(z.Boundary),
	)
	return z.clone(), nil
}

// Get returns a copy of the zone or CodeNotFound.
func (r *Registry) Get(zoneID string) (Zone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.zones[zoneID]
	if !ok {
		return Zone{}, dErrors.New(dErrors.CodeNotFound, "zone "+zoneID+" not found")
	}
	return z.clone(), nil
}

// ListAll returns copies of every zone ordered by id.
func (r *Registry) ListAll() []Zone {
	r.mu.RLock()
	out := make([]Zone, 0, len(r.zones))
	for _, z := range r.zones {
		out = append(out, z.clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
