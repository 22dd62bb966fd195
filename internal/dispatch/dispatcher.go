// Package dispatch runs work on per-key serial queues: jobs sharing a key
// run one at a time in submission order, jobs with different keys run in
// parallel.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned when submitting to a closed Dispatcher.
var ErrClosed = errors.New("dispatcher closed")

// Func is a unit of work.
type Func func(ctx context.Context) (any, error)

// Result is delivered once per job.
type Result struct {
	JobID string
	Key   string
	Value any
	Err   error
}

type job struct {
	id   string
	key  string
	fn   Func
	done chan Result
}

// Dispatcher owns one worker goroutine per key.
type Dispatcher struct {
	ctx       context.Context
	cancel    context.CancelFunc
	g         *errgroup.Group
	queueSize int
	logger    *slog.Logger

	mu     sync.RWMutex
	queues map[string]chan job
	closed bool
}

// New creates a Dispatcher whose jobs run under ctx. If queueSize is <= 0,
// it defaults to 64 pending jobs per key.
func New(ctx context.Context, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	return &Dispatcher{
		ctx:       gctx,
		cancel:    cancel,
		g:         g,
		queueSize: queueSize,
		logger:    slog.Default(),
		queues:    make(map[string]chan job),
	}
}

// Submit queues fn on key's worker and returns the job ID and a channel
// that receives exactly one Result. It blocks while key's queue is full,
// until ctx is done.
func (d *Dispatcher) Submit(ctx context.Context, key string, fn Func) (string, <-chan Result, error) {
	j := job{
		id:   uuid.New().String(),
		key:  key,
		fn:   fn,
		done: make(chan Result, 1),
	}

	q, err := d.queue(key)
	if err != nil {
		return "", nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return "", nil, ErrClosed
	}
	select {
	case q <- j:
		d.logger.Debug("job queued", "job_id", j.id, "key", key)
		return j.id, j.done, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	case <-d.ctx.Done():
		return "", nil, ErrClosed
	}
}

func (d *Dispatcher) queue(key string) (chan job, error) {
	d.mu.RLock()
	q, ok := d.queues[key]
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ok {
		return q, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if q, ok := d.queues[key]; ok {
		return q, nil
	}
	q = make(chan job, d.queueSize)
	d.queues[key] = q
	d.g.Go(func() error {
		d.run(q)
		return nil
	})
	return q, nil
}

// run drains q until it is closed. Once the dispatcher's context is done,
// remaining jobs fail with the context error without running.
func (d *Dispatcher) run(q chan job) {
	for j := range q {
		if err := d.ctx.Err(); err != nil {
			j.done <- Result{JobID: j.id, Key: j.key, Err: err}
			continue
		}
		start := time.Now()
		v, err := d.safeRun(j)
		if err != nil {
			d.logger.Warn("job failed", "job_id", j.id, "key", j.key, "error", err)
		} else {
			d.logger.Debug("job done", "job_id", j.id, "key", j.key, "duration_ms", time.Since(start).Milliseconds())
		}
		j.done <- Result{JobID: j.id, Key: j.key, Value: v, Err: err}
	}
}

func (d *Dispatcher) safeRun(j job) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.id, r)
		}
	}()
	return j.fn(d.ctx)
}

// Close stops accepting jobs, lets queued jobs finish and waits for every
// worker to exit.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()

	err := d.g.Wait()
	d.cancel()
	return err
}

// Abort cancels running jobs, fails queued ones and waits like Close.
func (d *Dispatcher) Abort() error {
	d.cancel()
	return d.Close()
}

// Do submits fn on key and waits for its result.
func Do[T any](ctx context.Context, d *Dispatcher, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	_, done, err := d.Submit(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	select {
	case r := <-done:
		if r.Err != nil {
			return zero, r.Err
		}
		v, _ := r.Value.(T)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
