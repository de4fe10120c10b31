// Package worker runs expensive computations off the caller's goroutine
// through a single-slot, cancel-and-replace task queue.
//
// A Slot owns one background goroutine, started lazily on the first Submit.
// At most one job runs at a time. Submitting while a job is in flight cancels
// that job and replaces any queued request, so two jobs never write results
// for the same generation. Results for superseded or terminated generations
// are discarded before delivery, and consumers re-check with Accept on
// receipt.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrTerminated is returned when submitting to a terminated slot.
	ErrTerminated = errors.New("worker terminated")
	// ErrJobPanicked wraps a panic recovered from a job.
	ErrJobPanicked = errors.New("worker job panicked")
)

// Submission outcomes reported to the Observer.
const (
	OutcomeAccepted = "accepted"
	OutcomeReplaced = "replaced"
	OutcomeStale    = "stale"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// Job is the computation run by a slot. It must honour ctx cancellation.
type Job[Req, Res any] func(ctx context.Context, req Req) (Res, error)

// Result is delivered for the latest generation only.
type Result[Res any] struct {
	Generation uint64
	Value      Res
	Err        error
	Elapsed    time.Duration
}

// Observer receives submission outcomes, typically a metrics registry.
type Observer interface {
	ObserveSubmission(worker, outcome string)
}

type options struct {
	logger   *zap.Logger
	observer Observer
}

// Option configures a Slot.
type Option func(*options)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver sets the submission observer.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

type task[Req any] struct {
	gen uint64
	req Req
}

// Slot is a single-slot background executor.
type Slot[Req, Res any] struct {
	name     string
	job      Job[Req, Res]
	logger   *zap.Logger
	observer Observer

	mu         sync.Mutex
	started    bool
	terminated bool
	generation uint64
	pending    *task[Req]
	cancel     context.CancelFunc

	wake    chan struct{}
	results chan Result[Res]
	done    chan struct{}
}

// New creates a slot. No goroutine is started until the first Submit.
func New[Req, Res any](name string, job Job[Req, Res], opts ...Option) *Slot[Req, Res] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Slot[Req, Res]{
		name:     name,
		job:      job,
		logger:   o.logger.With(zap.String("worker", name)),
		observer: o.observer,
		wake:     make(chan struct{}, 1),
		results:  make(chan Result[Res], 1),
		done:     make(chan struct{}),
	}
}

// Submit queues req, cancelling any in-flight job and replacing any queued
// one. It returns the generation assigned to req.
func (s *Slot[Req, Res]) Submit(req Req) (uint64, error) {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		s.observe(OutcomeRejected)
		return 0, ErrTerminated
	}
	if !s.started {
		s.started = true
		go s.loop()
		s.logger.Debug("worker started")
	}

	s.generation++
	gen := s.generation
	if s.pending != nil {
		s.observe(OutcomeReplaced)
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.pending = &task[Req]{gen: gen, req: req}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.observe(OutcomeAccepted)
	return gen, nil
}

// Results delivers completed jobs. The channel is never closed; select on
// Done alongside it.
func (s *Slot[Req, Res]) Results() <-chan Result[Res] { return s.results }

// Done is closed when the slot is terminated.
func (s *Slot[Req, Res]) Done() <-chan struct{} { return s.done }

// Accept reports whether r belongs to the latest generation of a live slot.
// Consumers must call it before applying a result.
func (s *Slot[Req, Res]) Accept(r Result[Res]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := !s.terminated && r.Generation == s.generation
	if !ok {
		s.observe(OutcomeStale)
	}
	return ok
}

// Started reports whether the background goroutine has been created.
func (s *Slot[Req, Res]) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Terminate cancels outstanding work and stops the goroutine. Any result
// that arrives afterwards is ignored. Safe to call more than once.
func (s *Slot[Req, Res]) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	s.terminated = true
	s.pending = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	close(s.done)
	s.logger.Debug("worker terminated", zap.Uint64("generation", s.generation))
}

func (s *Slot[Req, Res]) loop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			t := s.pending
			s.pending = nil
			if t == nil || s.terminated {
				s.mu.Unlock()
				break
			}
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			s.mu.Unlock()

			start := time.Now()
			value, err := s.run(ctx, t.req)
			elapsed := time.Since(start)
			cancel()

			s.mu.Lock()
			s.cancel = nil
			stale := s.terminated || t.gen != s.generation
			s.mu.Unlock()

			if stale {
				s.observe(OutcomeStale)
				s.logger.Debug("discarding stale result", zap.Uint64("generation", t.gen))
				continue
			}
			if err != nil {
				s.observe(OutcomeFailed)
				s.logger.Warn("worker job failed", zap.Uint64("generation", t.gen), zap.Error(err))
			}

			select {
			case s.results <- Result[Res]{Generation: t.gen, Value: value, Err: err, Elapsed: elapsed}:
			case <-s.done:
				return
			}
		}
	}
}

func (s *Slot[Req, Res]) run(ctx context.Context, req Req) (value Res, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return s.job(ctx, req)
}

func (s *Slot[Req, Res]) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveSubmission(s.name, outcome)
	}
}
