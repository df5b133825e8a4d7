package scheduler

import (
	"sync"
	"time"

	"trendcast/faults"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal state where requests are allowed.
	CircuitClosed CircuitState = iota
	// CircuitOpen is the state where requests fail fast.
	CircuitOpen
	// CircuitHalfOpen is the testing state where one probe is allowed.
	CircuitHalfOpen
)

// String returns the string representation of a circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Circuit breaker defaults.
const (
	// DefaultWindowSize is the number of recent outcomes tracked per resource.
	DefaultWindowSize = 10
	// DefaultMinSamples is the minimum number of recorded outcomes before the
	// failure fraction is evaluated.
	DefaultMinSamples = 5
	// DefaultFailureThreshold is the failure fraction that opens the circuit.
	DefaultFailureThreshold = 0.5
	// DefaultCooldown is how long the circuit stays open before a probe.
	DefaultCooldown = 30 * time.Second
)

// BreakerConfig configures circuit breaker behavior.
type BreakerConfig struct {
	// WindowSize is the number of recent outcomes in the rolling window.
	WindowSize int
	// MinSamples is the minimum window fill before the threshold applies.
	MinSamples int
	// FailureThreshold is the failure fraction in the window that opens the
	// circuit.
	FailureThreshold float64
	// Cooldown is how long the circuit stays open before transitioning to
	// half-open.
	Cooldown time.Duration
	// IgnoreError reports errors that must not count against the circuit.
	// Validation failures are item problems, not resource health problems.
	IgnoreError func(error) bool
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		WindowSize:       DefaultWindowSize,
		MinSamples:       DefaultMinSamples,
		FailureThreshold: DefaultFailureThreshold,
		Cooldown:         DefaultCooldown,
		IgnoreError: func(err error) bool {
			return faults.KindOf(err) == faults.ValidationError
		},
	}
}

// circuit holds breaker state for a single resource.
type circuit struct {
	state           CircuitState
	window          []bool // true = failure
	next            int
	filled          int
	lastStateChange time.Time
	probeInFlight   bool
}

// CircuitBreaker short-circuits submissions to failing resources. It tracks
// a rolling window of outcomes per resource; when the failure fraction
// exceeds the threshold the circuit opens, and after a cooldown a single
// probe request decides whether it closes again.
type CircuitBreaker struct {
	circuits map[string]*circuit
	mu       sync.Mutex
	config   BreakerConfig
	now      func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given configuration.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.IgnoreError == nil {
		cfg.IgnoreError = DefaultBreakerConfig().IgnoreError
	}
	return &CircuitBreaker{
		circuits: make(map[string]*circuit),
		config:   cfg,
		now:      time.Now,
	}
}

// Allow checks whether a submission for the resource may proceed. Returns a
// faults.CircuitOpen error when the circuit is open or a probe is already in
// flight. When the admitted submission is the half-open probe, probe is true
// and the caller owns the claim: it must end in RecordSuccess, RecordFailure,
// or AbandonProbe, or the circuit stays half-open with no probe ever run.
func (cb *CircuitBreaker) Allow(resourceID string) (probe bool, err error) {
	if cb == nil {
		return false, nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.getOrCreate(resourceID)

	switch c.state {
	case CircuitClosed:
		return false, nil

	case CircuitOpen:
		if cb.now().Sub(c.lastStateChange) >= cb.config.Cooldown {
			// Cooldown elapsed: this request becomes the half-open probe.
			c.state = CircuitHalfOpen
			c.lastStateChange = cb.now()
			c.probeInFlight = true
			return true, nil
		}
		return false, faults.WrapResource(faults.CircuitOpen, resourceID, ErrCircuitOpen)

	case CircuitHalfOpen:
		if !c.probeInFlight {
			c.probeInFlight = true
			return true, nil
		}
		return false, faults.WrapResource(faults.CircuitOpen, resourceID, ErrCircuitOpen)

	default:
		return false, nil
	}
}

// AbandonProbe releases a probe claim whose call never executed (admission
// denied, deadline hit while waiting). The circuit returns to open so the
// next cooldown admits a fresh probe instead of waiting on an outcome that
// will never arrive.
func (cb *CircuitBreaker) AbandonProbe(resourceID string) {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[resourceID]
	if !ok {
		return
	}
	if c.state == CircuitHalfOpen && c.probeInFlight {
		c.state = CircuitOpen
		c.lastStateChange = cb.now()
		c.probeInFlight = false
	}
}

// RecordSuccess records a successful call. A successful half-open probe
// closes the circuit and clears the window. A success arriving while the
// circuit is open (a retry following a failed probe, or a call that was in
// flight when the circuit tripped) is the same evidence: the resource is
// serving again, so the circuit closes.
func (cb *CircuitBreaker) RecordSuccess(resourceID string) {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.getOrCreate(resourceID)

	switch c.state {
	case CircuitHalfOpen, CircuitOpen:
		c.state = CircuitClosed
		c.lastStateChange = cb.now()
		c.probeInFlight = false
		c.resetWindow(cb.config.WindowSize)

	case CircuitClosed:
		c.record(false)
	}
}

// RecordFailure records a failed call. Ignored errors never count. A failed
// half-open probe reopens the circuit; in the closed state the circuit opens
// once the windowed failure fraction crosses the threshold.
func (cb *CircuitBreaker) RecordFailure(resourceID string, err error) {
	if cb == nil {
		return
	}
	if cb.config.IgnoreError != nil && cb.config.IgnoreError(err) {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.getOrCreate(resourceID)

	switch c.state {
	case CircuitClosed:
		c.record(true)
		if c.filled >= cb.config.MinSamples && c.failureFraction() >= cb.config.FailureThreshold {
			c.state = CircuitOpen
			c.lastStateChange = cb.now()
		}

	case CircuitHalfOpen:
		c.state = CircuitOpen
		c.lastStateChange = cb.now()
		c.probeInFlight = false
	}
}

// State returns the current state of the resource's circuit.
func (cb *CircuitBreaker) State(resourceID string) CircuitState {
	if cb == nil {
		return CircuitClosed
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[resourceID]
	if !ok {
		return CircuitClosed
	}
	if c.state == CircuitOpen && cb.now().Sub(c.lastStateChange) >= cb.config.Cooldown {
		return CircuitHalfOpen
	}
	return c.state
}

// Reset returns the resource's circuit to the closed state.
func (cb *CircuitBreaker) Reset(resourceID string) {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	delete(cb.circuits, resourceID)
}

// getOrCreate returns the circuit for a resource. Must be called with the
// mutex held.
func (cb *CircuitBreaker) getOrCreate(resourceID string) *circuit {
	c, ok := cb.circuits[resourceID]
	if !ok {
		c = &circuit{
			state:           CircuitClosed,
			window:          make([]bool, cb.config.WindowSize),
			lastStateChange: cb.now(),
		}
		cb.circuits[resourceID] = c
	}
	return c
}

// record pushes an outcome into the rolling window.
func (c *circuit) record(failure bool) {
	c.window[c.next] = failure
	c.next = (c.next + 1) % len(c.window)
	if c.filled < len(c.window) {
		c.filled++
	}
}

// failureFraction returns the fraction of failures among recorded outcomes.
func (c *circuit) failureFraction() float64 {
	if c.filled == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < c.filled; i++ {
		if c.window[i] {
			failures++
		}
	}
	return float64(failures) / float64(c.filled)
}

// resetWindow clears recorded outcomes.
func (c *circuit) resetWindow(size int) {
	c.window = make([]bool, size)
	c.next = 0
	c.filled = 0
}
