package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/voicepeer/internal/pkg/metrics"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/core"
	"github.com/autopeer-io/voicepeer/pkg/log"
)

// DefaultInterval is how often the queue is drained.
const DefaultInterval = 100 * time.Millisecond

// Scheduler runs tasks on a single goroutine in the order they were scheduled.
// Every interval the pending queue is swapped out and executed; tasks
// scheduled while a batch runs wait for the next tick.
type Scheduler struct {
	mu    sync.Mutex
	queue []core.Task

	interval time.Duration
	clock    clock.WithTicker
}

var _ core.Scheduler = (*Scheduler)(nil)

type Option func(*Scheduler)

// WithClock replaces the wall clock driving the loop.
func WithClock(c clock.WithTicker) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithInterval sets the drain period.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		interval: DefaultInterval,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule enqueues task. It is safe to call from any goroutine.
func (s *Scheduler) Schedule(task core.Task) {
	if task == nil {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, task)
	s.mu.Unlock()
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// RunOnce executes the tasks queued so far and returns how many ran.
func (s *Scheduler) RunOnce() int {
	s.mu.Lock()
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, task := range batch {
		s.execute(task)
	}
	return len(batch)
}

// Run drains the queue every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if n := s.Pending(); n > 0 {
				log.Debug("Scheduler stopped with pending tasks", "pending", n)
			}
			return nil
		case <-ticker.C():
			s.RunOnce()
		}
	}
}

func (s *Scheduler) execute(task core.Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(fmt.Errorf("%v", r), "Task panicked")
		}
	}()
	defer metrics.TasksExecuted.Inc()

	task()
}
