// Package capacity tracks per-resource admission state: a token bucket for
// request rate and a cost-weighted ledger for daily quotas.
//
// The two mechanisms are independent: token refill is time-based and is not
// affected by quota status, and quota exhaustion is never bypassed by
// available tokens.
package capacity

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"trendcast/faults"
)

// Resource describes one external service endpoint class. Immutable after
// the tracker is constructed.
type Resource struct {
	// ID identifies the resource, e.g. "trend-api".
	ID string
	// Capacity is the number of tokens per refill window.
	Capacity int
	// RefillInterval is the window over which Capacity tokens accrue.
	RefillInterval time.Duration
	// DailyQuota bounds cost-weighted consumption per UTC day. 0 disables
	// quota tracking for the resource.
	DailyQuota int
	// DefaultCost is charged when a request does not specify its own cost.
	// Defaults to 1.
	DefaultCost int
}

// Decision is the outcome of an acquisition attempt.
type Decision struct {
	// Granted is true when tokens were deducted and quota charged.
	Granted bool
	// RetryAfter is the wait until the acquisition could succeed. For quota
	// denials this is the time until the quota resets.
	RetryAfter time.Duration
	// Cause classifies a denial: faults.RateLimited for token starvation,
	// faults.QuotaExhausted for quota denial. Empty on grant.
	Cause faults.Kind
}

// resourceState holds mutable admission state for one resource. Each
// resource has its own lock so acquisitions for different resources never
// contend.
type resourceState struct {
	mu       sync.Mutex
	cfg      Resource
	bucket   *rate.Limiter
	consumed int
	resetAt  time.Time
}

// Tracker answers admission questions for a fixed set of resources.
type Tracker struct {
	resources map[string]*resourceState
	now       func() time.Time
}

// Option customizes tracker construction.
type Option func(*Tracker)

// WithClock overrides the time source. Used in tests to exercise quota
// rollover without waiting for midnight.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker builds a tracker for the given resources.
func NewTracker(resources []Resource, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		resources: make(map[string]*resourceState, len(resources)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	for _, res := range resources {
		if res.ID == "" {
			return nil, fmt.Errorf("resource with empty id")
		}
		if _, dup := t.resources[res.ID]; dup {
			return nil, fmt.Errorf("duplicate resource %q", res.ID)
		}
		if res.Capacity <= 0 {
			return nil, fmt.Errorf("resource %q: capacity must be positive", res.ID)
		}
		if res.RefillInterval <= 0 {
			return nil, fmt.Errorf("resource %q: refill interval must be positive", res.ID)
		}
		if res.DefaultCost <= 0 {
			res.DefaultCost = 1
		}

		// Continuous refill at capacity/interval tokens per unit time,
		// capped at capacity.
		perSecond := float64(res.Capacity) / res.RefillInterval.Seconds()
		t.resources[res.ID] = &resourceState{
			cfg:     res,
			bucket:  rate.NewLimiter(rate.Limit(perSecond), res.Capacity),
			resetAt: nextUTCMidnight(t.now()),
		}
	}
	return t, nil
}

// TryAcquire attempts to admit a call of the given cost against the
// resource. A cost of 0 charges the resource's default cost. The decision
// is computed and applied in a single critical section per resource.
func (t *Tracker) TryAcquire(resourceID string, cost int) (Decision, error) {
	rs, ok := t.resources[resourceID]
	if !ok {
		return Decision{}, fmt.Errorf("unknown resource %q", resourceID)
	}
	if cost <= 0 {
		cost = rs.cfg.DefaultCost
	}
	if cost > rs.cfg.Capacity {
		return Decision{}, faults.WrapResource(faults.ValidationError, resourceID,
			fmt.Errorf("cost %d exceeds bucket capacity %d", cost, rs.cfg.Capacity))
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	now := t.now()

	// Quota first: an exhausted quota is absolute and cannot be bypassed by
	// available tokens.
	if rs.cfg.DailyQuota > 0 {
		if !now.Before(rs.resetAt) {
			rs.consumed = 0
			rs.resetAt = nextUTCMidnight(now)
		}
		if rs.consumed+cost > rs.cfg.DailyQuota {
			return Decision{
				RetryAfter: rs.resetAt.Sub(now),
				Cause:      faults.QuotaExhausted,
			}, nil
		}
	}

	reservation := rs.bucket.ReserveN(now, cost)
	if !reservation.OK() {
		// Unreachable given the capacity check above; treat as starvation.
		return Decision{RetryAfter: rs.cfg.RefillInterval, Cause: faults.RateLimited}, nil
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		// Not enough tokens yet; give the refill time back and report how
		// long the caller should wait.
		reservation.CancelAt(now)
		return Decision{RetryAfter: delay, Cause: faults.RateLimited}, nil
	}

	if rs.cfg.DailyQuota > 0 {
		rs.consumed += cost
	}
	return Decision{Granted: true}, nil
}

// Snapshot reports current quota consumption for a resource.
type Snapshot struct {
	ResourceID    string
	ConsumedToday int
	DailyQuota    int
	ResetAt       time.Time
}

// Snapshot returns quota state for the resource, rolling the ledger over
// first if the reset instant has passed.
func (t *Tracker) Snapshot(resourceID string) (Snapshot, error) {
	rs, ok := t.resources[resourceID]
	if !ok {
		return Snapshot{}, fmt.Errorf("unknown resource %q", resourceID)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	now := t.now()
	if rs.cfg.DailyQuota > 0 && !now.Before(rs.resetAt) {
		rs.consumed = 0
		rs.resetAt = nextUTCMidnight(now)
	}
	return Snapshot{
		ResourceID:    resourceID,
		ConsumedToday: rs.consumed,
		DailyQuota:    rs.cfg.DailyQuota,
		ResetAt:       rs.resetAt,
	}, nil
}

// Resources returns the IDs of all tracked resources.
func (t *Tracker) Resources() []string {
	ids := make([]string, 0, len(t.resources))
	for id := range t.resources {
		ids = append(ids, id)
	}
	return ids
}

// Has reports whether the tracker knows the resource.
func (t *Tracker) Has(resourceID string) bool {
	_, ok := t.resources[resourceID]
	return ok
}

func nextUTCMidnight(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}
