package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultAttempts is how many times a scheduled job is tried before giving up.
const DefaultAttempts = 3

// Scheduler fires one-off jobs at a point in time. Timers live in memory
// only: a restart forgets them.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	wg     sync.WaitGroup

	// Attempts bounds retries of a failing job.
	Attempts int
	// NewBackOff builds the retry policy between attempts.
	NewBackOff func() backoff.BackOff

	now func() time.Time
}

// NewScheduler returns a Scheduler whose jobs receive a context derived from ctx.
func NewScheduler(ctx context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		ctx:      ctx,
		cancel:   cancel,
		timers:   map[*time.Timer]struct{}{},
		Attempts: DefaultAttempts,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = 0
			return b
		},
		now: time.Now,
	}
}

// At runs fn at when, immediately if when already passed. A failing job is
// retried with exponential backoff up to Attempts times in total.
func (s *Scheduler) At(when time.Time, name string, fn func(ctx context.Context) error) {
	delay := when.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}

	var t *time.Timer
	s.wg.Add(1)
	t = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()
		s.execute(name, fn)
	})
	s.timers[t] = struct{}{}
}

func (s *Scheduler) execute(name string, fn func(ctx context.Context) error) {
	attempts := s.Attempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(s.NewBackOff(), uint64(attempts-1)),
		s.ctx,
	)
	_ = backoff.Retry(func() error {
		if s.ctx.Err() != nil {
			return backoff.Permanent(s.ctx.Err())
		}
		return run(s.ctx, name, fn)
	}, policy)
}

// Pending reports how many timers have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels pending timers and the context of running jobs, then waits
// for running jobs to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	for t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, t)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
