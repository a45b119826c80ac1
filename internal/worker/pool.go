// Package worker runs training tasks on a bounded set of goroutines. Tasks
// carry an exported copy of a genome, never a live reference, and at most one
// task per genome identity is outstanding at any time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"neatforge/internal/model"
)

var (
	ErrDeadlinePassed = errors.New("training deadline passed")
	ErrInFlight       = errors.New("identity already has a task in flight")
	ErrCapReached     = errors.New("per-generation submission cap reached")
	ErrPoolClosed     = errors.New("worker pool closed")
)

// Task is one unit of work handed to a Trainer.
type Task struct {
	Identity  string
	Genome    model.IndexedGenome
	Submitted time.Time
}

// Outcome is what a Trainer reports for a successful task.
type Outcome struct {
	Trained   model.IndexedGenome
	Compacted *model.IndexedGenome
	Error     float64
}

// Result is a finished task as seen by the control loop.
type Result struct {
	Identity  string
	Trained   model.IndexedGenome
	Compacted *model.IndexedGenome
	Error     float64
	Duration  time.Duration
	Err       error
}

// Trainer executes a task. Implementations must honour ctx cooperatively and
// must not retain the task's genome after returning.
type Trainer interface {
	Train(ctx context.Context, task Task) (Outcome, error)
}

// TrainerFunc adapts a function to Trainer.
type TrainerFunc func(ctx context.Context, task Task) (Outcome, error)

func (f TrainerFunc) Train(ctx context.Context, task Task) (Outcome, error) {
	return f(ctx, task)
}

type Config struct {
	// Workers bounds concurrently running tasks.
	Workers int
	// PerGenerationCap bounds submissions between NextGeneration calls. Zero
	// means unbounded.
	PerGenerationCap int
	// Deadline refuses submissions once passed. Zero means none.
	Deadline time.Time
	Logger   *slog.Logger
	// Now is a clock override for tests.
	Now func() time.Time
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Running   int
	Queued    int
	Submitted int
	Pending   int
}

type Pool struct {
	cfg     Config
	trainer Trainer
	slots   *semaphore.Weighted
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	queue     []Task
	inFlight  map[string]struct{}
	running   int
	submitted int
	results   []Result
	closed    bool
	changed   chan struct{}
}

func New(trainer Trainer, cfg Config) (*Pool, error) {
	if trainer == nil {
		return nil, fmt.Errorf("trainer is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PerGenerationCap < 0 {
		return nil, fmt.Errorf("per-generation cap must be >= 0")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:      cfg,
		trainer:  trainer,
		slots:    semaphore.NewWeighted(int64(cfg.Workers)),
		logger:   logger.With("component", "worker_pool"),
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[string]struct{}),
		changed:  make(chan struct{}, 1),
	}, nil
}

// Submit enqueues a training task for identity. The genome is deep-copied.
func (p *Pool) Submit(identity string, g model.IndexedGenome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		return ErrPoolClosed
	case !p.cfg.Deadline.IsZero() && !p.cfg.Now().Before(p.cfg.Deadline):
		return ErrDeadlinePassed
	}
	if _, busy := p.inFlight[identity]; busy {
		return fmt.Errorf("%w: %s", ErrInFlight, identity)
	}
	if p.cfg.PerGenerationCap > 0 && p.submitted >= p.cfg.PerGenerationCap {
		return ErrCapReached
	}
	p.inFlight[identity] = struct{}{}
	p.submitted++
	p.queue = append(p.queue, Task{Identity: identity, Genome: g.Clone(), Submitted: p.cfg.Now()})
	p.dispatchLocked()
	return nil
}

// dispatchLocked starts queued tasks while slots are free.
func (p *Pool) dispatchLocked() {
	for len(p.queue) > 0 && p.slots.TryAcquire(1) {
		task := p.queue[0]
		p.queue = p.queue[1:]
		p.running++
		p.wg.Add(1)
		go p.run(task)
	}
}

func (p *Pool) run(task Task) {
	defer p.wg.Done()
	started := p.cfg.Now()
	outcome, err := p.train(task)
	result := Result{
		Identity:  task.Identity,
		Trained:   outcome.Trained,
		Compacted: outcome.Compacted,
		Error:     outcome.Error,
		Duration:  p.cfg.Now().Sub(started),
		Err:       err,
	}
	if err != nil {
		p.logger.Warn("training task failed", "identity", task.Identity, "error", err)
	} else {
		p.logger.Debug("training task finished", "identity", task.Identity, "error_value", outcome.Error, "duration", result.Duration)
	}

	p.mu.Lock()
	p.results = append(p.results, result)
	delete(p.inFlight, task.Identity)
	p.running--
	p.slots.Release(1)
	if !p.closed {
		p.dispatchLocked()
	}
	p.mu.Unlock()

	select {
	case p.changed <- struct{}{}:
	default:
	}
}

func (p *Pool) train(task Task) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trainer panic: %v", r)
		}
	}()
	return p.trainer.Train(p.ctx, task)
}

// Drain waits until nothing is in flight, the grace period elapses or ctx is
// done, whichever comes first, and returns every result collected so far.
// Tasks still running keep their identity reserved and report on a later
// Drain.
func (p *Pool) Drain(ctx context.Context, grace time.Duration) []Result {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	for {
		p.mu.Lock()
		idle := len(p.inFlight) == 0
		p.mu.Unlock()
		if idle {
			break
		}
		select {
		case <-p.changed:
			continue
		case <-timer.C:
		case <-ctx.Done():
		}
		break
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.results
	p.results = nil
	return out
}

// NextGeneration resets the per-generation submission counter.
func (p *Pool) NextGeneration() {
	p.mu.Lock()
	p.submitted = 0
	p.mu.Unlock()
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Running:   p.running,
		Queued:    len(p.queue),
		Submitted: p.submitted,
		Pending:   len(p.results),
	}
}

// Close refuses new work, drops queued tasks, signals cancellation to
// running trainers and waits for them to return.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, task := range p.queue {
		delete(p.inFlight, task.Identity)
	}
	p.queue = nil
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}
