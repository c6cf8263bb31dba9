package fileio

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
)

// ErrStopped is returned for operations which can't be executed because scheduler is not running anymore.
var ErrStopped = errors.New("I/O scheduler stopped")

const (
	statePending int32 = iota
	stateRunning
	stateCancelled
)

// Config stores configuration of the scheduler.
type Config struct {
	// Workers is the number of goroutines executing operations.
	Workers int
}

// DefaultConfig is the default configuration of the scheduler.
var DefaultConfig = Config{
	Workers: 2,
}

// New creates new scheduler. Metrics are registered only if registerer is not nil.
func New(config Config, registerer prometheus.Registerer) *Scheduler {
	s := &Scheduler{
		config:  config,
		metrics: newMetrics(),
		wakeCh:  make(chan struct{}, 1),
		classes: map[string]*Class{},
	}
	if registerer != nil {
		registerer.MustRegister(s.metrics.collectors()...)
	}
	return s
}

// Scheduler executes filesystem operations on dedicated goroutines.
// Operations are arbitrated between classes using weighted round robin.
type Scheduler struct {
	config  Config
	metrics metrics
	wakeCh  chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	classes map[string]*Class
	order   []*Class
	current int
	served  uint32
	pending int
}

// Class returns scheduling class registered under the name, creating it if needed.
// Shares define how many operations of the class are executed before moving to the next class.
func (s *Scheduler) Class(name string, shares uint32) *Class {
	if shares == 0 {
		shares = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, exists := s.classes[name]; exists {
		return c
	}

	c := &Class{
		name:   name,
		shares: shares,
		s:      s,
	}
	s.classes[name] = c
	s.order = append(s.order, c)
	return c
}

// Run runs workers until context is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.config.Workers <= 0 {
		return errors.Errorf("invalid number of workers: %d", s.config.Workers)
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler has been already started")
	}
	s.started = true
	s.mu.Unlock()

	defer s.stop()

	log := logger.Get(ctx)
	log.Debug("I/O scheduler started", zap.Int("workers", s.config.Workers))
	defer log.Debug("I/O scheduler stopped")

	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		for i := range s.config.Workers {
			spawn("worker-"+strconv.Itoa(i), parallel.Fail, s.runWorker)
		}
		return nil
	})
}

func (s *Scheduler) runWorker(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}

		r := s.next()
		if r == nil {
			select {
			case <-ctx.Done():
				return errors.WithStack(ctx.Err())
			case <-s.wakeCh:
			}
			continue
		}

		s.execute(r)
	}
}

func (s *Scheduler) enqueue(r *request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errors.WithStack(ErrStopped)
	}

	r.class.queue = append(r.class.queue, r)
	s.pending++
	s.wake()
	return nil
}

func (s *Scheduler) next() *request {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == 0 {
		return nil
	}

	n := len(s.order)
	for range n + 1 {
		c := s.order[s.current]
		if len(c.queue) > 0 && s.served < c.shares {
			r := c.queue[0]
			c.queue[0] = nil
			c.queue = c.queue[1:]
			s.served++
			s.pending--
			if s.pending > 0 {
				s.wake()
			}
			return r
		}
		s.current = (s.current + 1) % n
		s.served = 0
	}

	return nil
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) execute(r *request) {
	if !r.state.CompareAndSwap(statePending, stateRunning) {
		return
	}

	s.metrics.queueWait.WithLabelValues(r.class.name).Observe(time.Since(r.queuedAt).Seconds())

	err := r.fn()
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	s.metrics.operations.WithLabelValues(r.class.name, result).Inc()

	r.doneCh <- err
}

func (s *Scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for _, c := range s.order {
		for _, r := range c.queue {
			if r.state.CompareAndSwap(statePending, stateCancelled) {
				r.doneCh <- errors.WithStack(ErrStopped)
			}
		}
		c.queue = nil
	}
	s.pending = 0
}

// Class is the scheduling class used to submit operations to the scheduler.
type Class struct {
	name   string
	shares uint32
	s      *Scheduler

	queue []*request
}

// Name returns the name of the class.
func (c *Class) Name() string {
	return c.name
}

// Do executes the function on the scheduler's worker and returns its result.
// If context is canceled before the function is started, it is never executed.
// Once started, the function is always awaited.
func (c *Class) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}

	r := &request{
		class:    c,
		fn:       fn,
		queuedAt: time.Now(),
		doneCh:   make(chan error, 1),
	}
	if err := c.s.enqueue(r); err != nil {
		return err
	}

	select {
	case err := <-r.doneCh:
		return err
	case <-ctx.Done():
		if r.state.CompareAndSwap(statePending, stateCancelled) {
			c.s.metrics.operations.WithLabelValues(c.name, resultCancelled).Inc()
			return errors.WithStack(ctx.Err())
		}
		return <-r.doneCh
	}
}

type request struct {
	class    *Class
	fn       func() error
	queuedAt time.Time
	state    atomic.Int32
	doneCh   chan error
}
