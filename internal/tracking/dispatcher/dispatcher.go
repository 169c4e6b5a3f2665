// Package dispatcher moves breach events from the monitor to the violation
// recorder and the alert sinks without blocking observation.
//
// Events are routed to a shard by actor, and each shard has a single consumer,
// so one actor's violations are recorded in detection order while different
// actors proceed in parallel.
package dispatcher

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"terraguard/internal/alert"
	"terraguard/internal/tracking/metrics"
	"terraguard/internal/tracking/monitor"
	"terraguard/internal/violation/models"
	dErrors "terraguard/pkg/domain-errors"
)

// ErrClosed is returned by Enqueue once Close has been called.
var ErrClosed = errors.New("dispatcher closed")

const (
	defaultShards    = 8
	defaultQueueSize = 64
	defaultMaxRetry  = 5
	notifyTimeout    = 5 * time.Second
)

// Recorder durably records a violation.
type Recorder interface {
	RecordViolation(ctx context.Context, req models.RecordRequest) (*models.Violation, error)
}

// FailureFunc is told about an event that could not be recorded.
type FailureFunc func(ev monitor.BreachEvent, err error)

type job struct {
	event     monitor.BreachEvent
	onFailure FailureFunc
}

// Dispatcher records breach events on sharded background workers.
type Dispatcher struct {
	recorder   Recorder
	sink       alert.Sink
	logger     *slog.Logger
	metrics    *metrics.Metrics
	shardCount int
	queueSize  int
	maxRetry   int
	newBackOff func() backoff.BackOff

	mu      sync.RWMutex
	shards  []chan job
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithSink sets where alerts go after a violation is recorded.
func WithSink(sink alert.Sink) Option {
	return func(d *Dispatcher) {
		d.sink = sink
	}
}

func WithShards(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.shardCount = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithMaxRetry bounds retries of a persistence failure.
func WithMaxRetry(n int) Option {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.maxRetry = n
		}
	}
}

// WithBackOff overrides the retry schedule.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(d *Dispatcher) {
		d.newBackOff = newBackOff
	}
}

func New(recorder Recorder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		recorder:   recorder,
		logger:     slog.Default(),
		shardCount: defaultShards,
		queueSize:  defaultQueueSize,
		maxRetry:   defaultMaxRetry,
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.shards = make([]chan job, d.shardCount)
	for i := range d.shards {
		d.shards[i] = make(chan job, d.queueSize)
	}
	return d
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Run starts one consumer per shard. Workers keep going after ctx is
// cancelled so queued events can still be drained by Close.
func (d *Dispatcher) Run(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	for i, ch := range d.shards {
		d.wg.Add(1)
		go d.work(runCtx, i, ch)
	}
	d.logger.InfoContext(ctx, "breach dispatcher started", "shards", len(d.shards))
}

// Enqueue hands an event to its actor's shard. A shard with room always
// accepts, even when ctx is already done. A full shard blocks at most until
// ctx is done. onFailure may be nil.
func (d *Dispatcher) Enqueue(ctx context.Context, ev monitor.BreachEvent, onFailure FailureFunc) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	ch := d.shards[d.shardFor(ev.ActorID)]
	j := job{event: ev, onFailure: onFailure}
	select {
	case ch <- j:
		d.metrics.Queued(1)
		return nil
	default:
	}
	select {
	case ch <- j:
		d.metrics.Queued(1)
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "breach queue is full")
		}
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "breach enqueue cancelled")
	}
}

// Close stops intake and waits for queued events to be recorded. If ctx ends
// first, in-flight retries are abandoned and the remaining events are
// reported as failures.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, ch := range d.shards {
		close(ch)
	}
	started := d.started
	d.mu.Unlock()

	if !started {
		d.failPending(ErrClosed)
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "breach dispatcher drain timed out")
	}
}

func (d *Dispatcher) work(ctx context.Context, shard int, ch <-chan job) {
	defer d.wg.Done()
	for j := range ch {
		d.metrics.Queued(-1)
		d.process(ctx, shard, j)
	}
}

func (d *Dispatcher) process(ctx context.Context, shard int, j job) {
	ev := j.event
	req := models.RecordRequest{
		IdentityNumber: ev.ActorID,
		Position:       ev.Position,
		ZoneID:         ev.ZoneID,
		Message:        models.DefaultMessage,
	}

	var recorded *models.Violation
	op := func() error {
		v, err := d.recorder.RecordViolation(ctx, req)
		if err == nil {
			recorded = v
			return nil
		}
		if dErrors.HasCode(err, dErrors.CodePersistence) {
			return err
		}
		return backoff.Permanent(err)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(d.newBackOff(), uint64(d.maxRetry)), ctx)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		d.metrics.IncRetry()
		d.logger.WarnContext(ctx, "retrying violation record",
			"entity_id", ev.ActorID,
			"shard", shard,
			"wait", wait,
			"error", err.Error(),
		)
	})
	if err != nil {
		d.fail(ctx, j, err)
		return
	}

	d.notify(ctx, ev, recorded)
}

func (d *Dispatcher) notify(ctx context.Context, ev monitor.BreachEvent, v *models.Violation) {
	if d.sink == nil || v == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	err := d.sink.Notify(notifyCtx, alert.Alert{
		ViolationID:    v.ID.String(),
		IdentityNumber: ev.ActorID,
		ActorID:        v.ActorID.String(),
		ZoneID:         v.ZoneID,
		Latitude:       v.Latitude,
		Longitude:      v.Longitude,
		SampledAt:      v.SampledAt,
		DetectedAt:     v.DetectedAt,
		Message:        v.Message,
	})
	if err != nil {
		d.metrics.IncAlertFailure()
		d.logger.WarnContext(ctx, "breach alert delivery failed",
			"violation_id", v.ID.String(),
			"error", err.Error(),
		)
	}
}

func (d *Dispatcher) fail(ctx context.Context, j job, err error) {
	d.metrics.IncDispatchFailure()
	d.logger.ErrorContext(ctx, "breach could not be recorded",
		"entity_id", j.event.ActorID,
		"zone_id", j.event.ZoneID,
		"latitude", j.event.Position.Latitude,
		"longitude", j.event.Position.Longitude,
		"detected_at", j.event.DetectedAt,
		"error", err.Error(),
	)
	if j.onFailure != nil {
		j.onFailure(j.event, err)
	}
}

// failPending reports events that were queued but never consumed.
func (d *Dispatcher) failPending(err error) {
	for _, ch := range d.shards {
		for j := range ch {
			d.metrics.Queued(-1)
			d.fail(context.Background(), j, err)
		}
	}
}

func (d *Dispatcher) shardFor(actorID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(actorID))
	return int(h.Sum32() % uint32(len(d.shards)))
}
