// Package resilience provides circuit breaker and retry patterns for external
// provider calls.
package resilience

import (
	"sync"
	"time"

	"github.com/dispatchlab/failover/internal/model"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state — requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means too many failures — requests are rejected immediately.
	CircuitOpen
	// CircuitHalfOpen allows a single probe request to test recovery.
	CircuitHalfOpen
)

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

// CircuitConfig controls breaker behavior for one provider key.
type CircuitConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	// the circuit under non-critical urgency. Default: 5. Providers may carry
	// a tighter or looser threshold via SetFailureThreshold.
	FailureThreshold int

	// CriticalThreshold applies when the failing call carried critical
	// urgency — the breaker fails faster to protect safety-critical paths.
	// Default: 2.
	CriticalThreshold int

	// Cooldown is how long the circuit stays open before a half-open probe
	// is allowed. Default: 30s.
	Cooldown time.Duration

	// OnStateChange is called with the provider key on every transition.
	OnStateChange func(key string, from, to CircuitState)
}

// DefaultCircuitConfig returns sensible defaults.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		FailureThreshold:  5,
		CriticalThreshold: 2,
		Cooldown:          30 * time.Second,
	}
}

type breaker struct {
	state               CircuitState
	consecutiveFailures int
	lastFailure         time.Time
	nextRetry           time.Time
	probeInFlight       bool
}

// Breakers is a table of per-provider circuit breakers sharing one config.
// All state transitions are evaluated lazily on Allow; there is no background
// timer.
type Breakers struct {
	cfg CircuitConfig

	mu         sync.Mutex
	table      map[string]*breaker
	thresholds map[string]int

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewBreakers creates a breaker table with the given config.
func NewBreakers(cfg CircuitConfig) *Breakers {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.CriticalThreshold <= 0 {
		cfg.CriticalThreshold = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breakers{
		cfg:        cfg,
		table:      make(map[string]*breaker),
		thresholds: make(map[string]int),
		nowFunc:    time.Now,
	}
}

// SetFailureThreshold overrides the non-critical failure threshold for one
// provider key. Non-positive thresholds are ignored.
func (b *Breakers) SetFailureThreshold(key string, threshold int) {
	if threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.thresholds[key] = threshold
}

func (b *Breakers) get(key string) *breaker {
	br, ok := b.table[key]
	if !ok {
		br = &breaker{state: CircuitClosed}
		b.table[key] = br
	}
	return br
}

// Allow reports whether a call to the keyed provider may proceed. An open
// circuit whose cooldown has elapsed transitions to half-open and admits
// exactly one probe; further calls are rejected until the probe resolves.
func (b *Breakers) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	br := b.get(key)
	switch br.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if b.nowFunc().Before(br.nextRetry) {
			return false
		}
		b.transition(key, br, CircuitHalfOpen)
		br.probeInFlight = true
		return true
	case CircuitHalfOpen:
		if br.probeInFlight {
			return false
		}
		br.probeInFlight = true
		return true
	default:
		return true
	}
}

// RecordSuccess marks a successful call. A half-open probe success closes
// the circuit and resets the failure counter.
func (b *Breakers) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	br := b.get(key)
	switch br.state {
	case CircuitHalfOpen:
		b.transition(key, br, CircuitClosed)
		br.consecutiveFailures = 0
		br.probeInFlight = false
	case CircuitClosed:
		br.consecutiveFailures = 0
	}
}

// RecordFailure marks a failed call under the given urgency. Critical
// urgency trips the breaker at a lower threshold. A half-open probe failure
// reopens the circuit with a fresh cooldown.
func (b *Breakers) RecordFailure(key string, urgency model.Urgency) {
	b.mu.Lock()
	defer b.mu.Unlock()

	br := b.get(key)
	br.consecutiveFailures++
	br.lastFailure = b.nowFunc()

	threshold := b.cfg.FailureThreshold
	if t, ok := b.thresholds[key]; ok {
		threshold = t
	}
	if urgency == model.UrgencyCritical && b.cfg.CriticalThreshold < threshold {
		threshold = b.cfg.CriticalThreshold
	}

	switch br.state {
	case CircuitClosed:
		if br.consecutiveFailures >= threshold {
			b.open(key, br)
		}
	case CircuitHalfOpen:
		br.probeInFlight = false
		b.open(key, br)
	}
}

// ForceOpen trips the keyed breaker immediately with the given cooldown.
// Used by the predictive monitor ahead of hard failures. A zero cooldown
// uses the configured default. The forced open state is authoritative even
// if a reactive failure lands at the same time; the cooldown reconciles.
func (b *Breakers) ForceOpen(key string, cooldown time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cooldown <= 0 {
		cooldown = b.cfg.Cooldown
	}
	br := b.get(key)
	br.lastFailure = b.nowFunc()
	br.nextRetry = b.nowFunc().Add(cooldown)
	br.probeInFlight = false
	if br.state != CircuitOpen {
		b.transition(key, br, CircuitOpen)
	}
}

// Reset forces the keyed breaker back to closed. Useful for manual recovery.
func (b *Breakers) Reset(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	br := b.get(key)
	old := br.state
	br.state = CircuitClosed
	br.consecutiveFailures = 0
	br.probeInFlight = false
	if old != CircuitClosed && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(key, old, CircuitClosed)
	}
}

// State returns the effective state for the keyed provider, accounting for
// an elapsed cooldown.
func (b *Breakers) State(key string) CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	br := b.get(key)
	if br.state == CircuitOpen && !b.nowFunc().Before(br.nextRetry) {
		return CircuitHalfOpen
	}
	return br.state
}

// States returns a snapshot of all breaker states for observability.
func (b *Breakers) States() map[string]CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	states := make(map[string]CircuitState, len(b.table))
	for key, br := range b.table {
		s := br.state
		if s == CircuitOpen && !b.nowFunc().Before(br.nextRetry) {
			s = CircuitHalfOpen
		}
		states[key] = s
	}
	return states
}

// Counters returns the failure count and raw state for the keyed provider.
func (b *Breakers) Counters(key string) (consecutiveFailures int, state CircuitState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	br := b.get(key)
	return br.consecutiveFailures, br.state
}

func (b *Breakers) open(key string, br *breaker) {
	br.nextRetry = b.nowFunc().Add(b.cfg.Cooldown)
	b.transition(key, br, CircuitOpen)
}

func (b *Breakers) transition(key string, br *breaker, to CircuitState) {
	from := br.state
	br.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(key, from, to)
	}
}
