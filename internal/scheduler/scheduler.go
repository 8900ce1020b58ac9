// Package scheduler runs named periodic jobs on a small fixed-size worker
// pool. Every job owns a try-lock: a tick that fires while the previous
// run is still executing is skipped, so no job ever overlaps itself.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Job is one named periodic task.
type Job struct {
	Name       string
	Interval   time.Duration
	RunAtStart bool
	Run        func(ctx context.Context) error
}

type scheduledJob struct {
	Job
	running atomic.Bool
}

type Scheduler struct {
	workers int
	queue   chan *scheduledJob
	log     zerolog.Logger

	mu      sync.Mutex
	jobs    []*scheduledJob
	started bool

	wg sync.WaitGroup
}

func New(workers int, log zerolog.Logger) *Scheduler {
	if workers <= 0 {
		workers = 5
	}
	return &Scheduler{
		workers: workers,
		queue:   make(chan *scheduledJob, workers*4),
		log:     log,
	}
}

// Register adds a job. Must be called before Start.
func (s *Scheduler) Register(j Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &scheduledJob{Job: j})
}

// Start launches the worker pool and one ticker per job. It returns
// immediately; jobs stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	jobs := s.jobs
	s.mu.Unlock()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	for _, j := range jobs {
		s.wg.Add(1)
		go s.tick(ctx, j)
	}
	s.log.Info().Int("workers", s.workers).Int("jobs", len(jobs)).Msg("scheduler started")
}

// Wait blocks until all workers and tickers have exited or the timeout
// elapses. On timeout the drain goroutine stays blocked in wg.Wait for
// the rest of the process lifetime; Wait is called once, at shutdown.
func (s *Scheduler) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Scheduler) tick(ctx context.Context, j *scheduledJob) {
	defer s.wg.Done()

	if j.RunAtStart {
		s.enqueue(j)
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueue(j)
		}
	}
}

// enqueue claims the job's run-lock before queueing so a job can never be
// in flight twice. The lock is released when the worker finishes the run.
func (s *Scheduler) enqueue(j *scheduledJob) {
	if !j.running.CompareAndSwap(false, true) {
		s.log.Warn().Str("job", j.Name).Msg("previous run still in progress, tick skipped")
		return
	}
	select {
	case s.queue <- j:
	default:
		j.running.Store(false)
		s.log.Error().Str("job", j.Name).Msg("scheduler queue full, tick dropped")
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			s.execute(ctx, j)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, j *scheduledJob) {
	defer j.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("job", j.Name).Interface("panic", r).Msg("job panicked")
		}
	}()

	started := time.Now()
	if err := j.Run(ctx); err != nil {
		s.log.Error().Err(err).Str("job", j.Name).Dur("elapsed", time.Since(started)).Msg("job failed")
		return
	}
	s.log.Debug().Str("job", j.Name).Dur("elapsed", time.Since(started)).Msg("job complete")
}
