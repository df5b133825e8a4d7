// Package scheduler admits outbound service calls against the capacity
// tracker, applies retry with exponential backoff, and fails fast through a
// per-resource circuit breaker.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trendcast/capacity"
	"trendcast/faults"
	"trendcast/internal/retry"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a submission.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Priority orders waiters contending for a resource's in-flight slots:
// when a slot frees up, the highest-priority waiter takes it.
type Priority int

const (
	// PriorityLow is for background or speculative work.
	PriorityLow Priority = iota
	// PriorityNormal is the default.
	PriorityNormal
	// PriorityHigh is for latency-sensitive stage transitions.
	PriorityHigh
)

// String returns the string representation of a priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// Request is one unit of outbound work. The payload stays opaque to the
// scheduler: Do performs the actual call and returns its result.
type Request struct {
	// ResourceID names the capacity-tracked resource the call consumes.
	ResourceID string
	// Priority decides who gets a freed in-flight slot under contention.
	Priority Priority
	// Cost is the capacity cost of the call; 0 uses the resource default.
	Cost int
	// MaxAttempts bounds execution attempts; 0 uses the scheduler default.
	MaxAttempts int
	// Do performs the call. It must honor ctx cancellation.
	Do func(ctx context.Context) (any, error)
}

// Config holds scheduler configuration.
type Config struct {
	// Retry is the backoff schedule for transient failures.
	Retry retry.Config
	// MaxInFlight caps concurrently executing calls per resource,
	// independent of token budget. Default: 4.
	MaxInFlight int
	// Breaker configures the per-resource circuit breaker.
	Breaker BreakerConfig
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Retry:       retry.DefaultConfig(),
		MaxInFlight: 4,
		Breaker:     DefaultBreakerConfig(),
	}
}

// Scheduler serializes admission decisions for outbound calls.
type Scheduler struct {
	tracker *capacity.Tracker
	breaker *CircuitBreaker
	config  Config
	log     *slog.Logger

	mu       sync.Mutex
	inflight map[string]*slotQueue
}

// New creates a scheduler backed by the given capacity tracker. The tracker
// is shared state passed in by whoever owns the run batch; the scheduler
// never constructs its own.
func New(tracker *capacity.Tracker, cfg Config, log *slog.Logger) *Scheduler {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultConfig().MaxInFlight
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		tracker:  tracker,
		breaker:  NewCircuitBreaker(cfg.Breaker),
		config:   cfg,
		log:      log,
		inflight: make(map[string]*slotQueue),
	}
}

// Breaker exposes the circuit breaker for inspection.
func (s *Scheduler) Breaker() *CircuitBreaker {
	return s.breaker
}

// Submit admits, executes, and retries the request until it succeeds, fails
// fatally, or exhausts its attempts. Resource-local denials (rate limit,
// quota) are absorbed into waiting; they surface only when the wait cannot
// fit the caller's deadline.
func (s *Scheduler) Submit(ctx context.Context, req Request) (any, error) {
	if req.Do == nil {
		return nil, faults.New(faults.ValidationError, "request has no call body")
	}
	if !s.tracker.Has(req.ResourceID) {
		return nil, faults.New(faults.ValidationError, "unknown resource %q", req.ResourceID)
	}

	probe, err := s.breaker.Allow(req.ResourceID)
	if err != nil {
		s.log.Debug("submission short-circuited",
			slog.String("resource", req.ResourceID),
			slog.String("state", s.breaker.State(req.ResourceID).String()))
		return nil, err
	}

	// A probe claim must not leak: if this submission exits before the call
	// body runs (admission denied, deadline while waiting), release it so the
	// next cooldown admits a fresh probe.
	recorded := false
	if probe {
		defer func() {
			if !recorded {
				s.breaker.AbandonProbe(req.ResourceID)
			}
		}()
	}

	release, err := s.acquireSlot(ctx, req.ResourceID, req.Priority)
	if err != nil {
		return nil, err
	}
	defer release()

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.config.Retry.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.awaitAdmission(ctx, req); err != nil {
			return nil, err
		}

		result, err := req.Do(ctx)
		if err == nil {
			recorded = true
			s.breaker.RecordSuccess(req.ResourceID)
			return result, nil
		}
		lastErr = err
		recorded = true

		if ctxErr := ctx.Err(); ctxErr != nil {
			s.breaker.RecordFailure(req.ResourceID, err)
			return nil, faults.WrapResource(faults.Timeout, req.ResourceID, ctxErr)
		}

		s.breaker.RecordFailure(req.ResourceID, err)

		if !faults.Retryable(err) {
			return nil, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := s.config.Retry.Delay(attempt)
		s.log.Debug("retrying request",
			slog.String("resource", req.ResourceID),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.Any("error", err))
		if err := retry.Sleep(ctx, delay); err != nil {
			return nil, faults.WrapResource(faults.Timeout, req.ResourceID, err)
		}
	}

	return nil, faults.WrapResource(faults.RetriesExhausted, req.ResourceID,
		fmt.Errorf("%d attempts failed: %w", maxAttempts, lastErr))
}

// awaitAdmission loops on the capacity tracker until the call is admitted or
// the wait cannot complete before the deadline. Cancellation exits without
// returning tokens: a granted acquisition is consumed.
func (s *Scheduler) awaitAdmission(ctx context.Context, req Request) error {
	for {
		dec, err := s.tracker.TryAcquire(req.ResourceID, req.Cost)
		if err != nil {
			return err
		}
		if dec.Granted {
			return nil
		}

		if deadline, ok := ctx.Deadline(); ok && time.Now().Add(dec.RetryAfter).After(deadline) {
			// The wait cannot fit the deadline. Quota denials fail fast: the
			// reset is hours away, not a backoff away.
			return faults.WrapResource(dec.Cause, req.ResourceID,
				fmt.Errorf("admission requires %v wait, past deadline", dec.RetryAfter))
		}

		s.log.Debug("admission denied, waiting",
			slog.String("resource", req.ResourceID),
			slog.String("cause", string(dec.Cause)),
			slog.Duration("retry_after", dec.RetryAfter))
		if err := retry.Sleep(ctx, dec.RetryAfter); err != nil {
			return faults.WrapResource(faults.Timeout, req.ResourceID, err)
		}
	}
}

// acquireSlot takes an in-flight slot for the resource, blocking until one
// frees up or the context is done. Waiters are served by priority, FIFO
// within a priority class.
func (s *Scheduler) acquireSlot(ctx context.Context, resourceID string, pri Priority) (func(), error) {
	s.mu.Lock()
	q, ok := s.inflight[resourceID]
	if !ok {
		q = &slotQueue{limit: s.config.MaxInFlight}
		s.inflight[resourceID] = q
	}
	s.mu.Unlock()

	release, err := q.acquire(ctx, pri)
	if err != nil {
		return nil, faults.WrapResource(faults.Timeout, resourceID, err)
	}
	return release, nil
}

// InFlight reports how many calls are currently executing for a resource.
func (s *Scheduler) InFlight(resourceID string) int {
	s.mu.Lock()
	q, ok := s.inflight[resourceID]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inUse
}

// slotWaiter is one queued acquisition. granted is set under the queue lock
// when a released slot is handed over.
type slotWaiter struct {
	ready   chan struct{}
	granted bool
}

// slotQueue bounds concurrently executing calls for one resource. When a
// slot frees up it is handed to the highest-priority waiter rather than
// whichever goroutine the runtime wakes first.
type slotQueue struct {
	mu      sync.Mutex
	limit   int
	inUse   int
	waiters [PriorityHigh + 1][]*slotWaiter
}

func (q *slotQueue) acquire(ctx context.Context, pri Priority) (func(), error) {
	if pri < PriorityLow || pri > PriorityHigh {
		pri = PriorityNormal
	}

	q.mu.Lock()
	if q.inUse < q.limit {
		q.inUse++
		q.mu.Unlock()
		return q.release, nil
	}
	w := &slotWaiter{ready: make(chan struct{})}
	q.waiters[pri] = append(q.waiters[pri], w)
	q.mu.Unlock()

	select {
	case <-w.ready:
		return q.release, nil
	case <-ctx.Done():
		q.mu.Lock()
		if w.granted {
			// A release handed us the slot concurrently with cancellation;
			// pass it on.
			q.mu.Unlock()
			q.release()
			return nil, ctx.Err()
		}
		q.removeWaiter(w, pri)
		q.mu.Unlock()
		return nil, ctx.Err()
	}
}

// release frees the caller's slot, handing it to the best waiter if any.
func (q *slotQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for pri := PriorityHigh; pri >= PriorityLow; pri-- {
		if len(q.waiters[pri]) > 0 {
			w := q.waiters[pri][0]
			q.waiters[pri] = q.waiters[pri][1:]
			w.granted = true
			close(w.ready)
			// Slot transferred; inUse is unchanged.
			return
		}
	}
	q.inUse--
}

// removeWaiter drops a cancelled waiter. Must be called with the mutex held.
func (q *slotQueue) removeWaiter(w *slotWaiter, pri Priority) {
	for i, cand := range q.waiters[pri] {
		if cand == w {
			q.waiters[pri] = append(q.waiters[pri][:i], q.waiters[pri][i+1:]...)
			return
		}
	}
}
