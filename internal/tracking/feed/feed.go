// Package feed produces timestamped position samples for tracking sessions.
package feed

import (
	"context"
	"time"

	"terraguard/internal/geo"
	dErrors "terraguard/pkg/domain-errors"
)

// DefaultInterval is the sampling period used when none is configured.
const DefaultInterval = time.Second

// Source yields the coordinate for the n-th sample (n starts at 0).
type Source interface {
	Next(n int) geo.Point
}

// LinearPath moves by a constant step per sample.
type LinearPath struct {
	Start geo.Point
	Step  geo.Point
}

// DemoPath is the northbound drift used by the demo truck: it starts inside
// the mining zone and leaves it through the northern edge after about eight
// samples.
func DemoPath() LinearPath {
	return LinearPath{
		Start: geo.Point{Lat: 13.0827, Lon: 80.2707},
		Step:  geo.Point{Lat: 0.001},
	}
}

func (p LinearPath) Next(n int) geo.Point {
	return geo.Point{
		Lat: p.Start.Lat + float64(n)*p.Step.Lat,
		Lon: p.Start.Lon + float64(n)*p.Step.Lon,
	}
}

// Waypoints replays a fixed list and holds the last point once exhausted.
type Waypoints []geo.Point

func (w Waypoints) Next(n int) geo.Point {
	if len(w) == 0 {
		return geo.Point{}
	}
	if n >= len(w) {
		return w[len(w)-1]
	}
	return w[n]
}

// Feed emits samples from a Source at a fixed interval.
type Feed struct {
	source   Source
	interval time.Duration
	now      func() time.Time
}

// Option configures a Feed.
type Option func(*Feed)

// WithInterval sets the sampling period.
func WithInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.interval = d
		}
	}
}

// WithClock overrides the time stamped on each sample.
func WithClock(now func() time.Time) Option {
	return func(f *Feed) {
		f.now = now
	}
}

// New builds a feed for source. Each tracking session gets its own feed.
func New(source Source, opts ...Option) (*Feed, error) {
	if source == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "feed source is required")
	}
	if w, ok := source.(Waypoints); ok && len(w) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "waypoints must not be empty")
	}
	f := &Feed{
		source:   source,
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Interval returns the sampling period.
func (f *Feed) Interval() time.Duration {
	return f.interval
}

// Stream emits the first sample immediately and one more per interval until
// ctx is cancelled, then closes the channel. Each sample is complete before it
// is sent; a send still pending at cancellation is abandoned.
func (f *Feed) Stream(ctx context.Context) <-chan geo.Position {
	out := make(chan geo.Position)
	go func() {
		defer close(out)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for n := 0; ; n++ {
			p := f.source.Next(n)
			sample := geo.At(p.Lat, p.Lon, f.now().UTC())
			select {
			case out <- sample:
			case <-ctx.Done():
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
