// Package monitoring is the alerting sink for the resilience core: an
// observer-style event bus, webhook alert delivery, and Prometheus metrics.
package monitoring

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType identifies the kind of resilience event.
type EventType string

const (
	EventCircuitOpened     EventType = "circuit_breaker_opened"
	EventCircuitClosed     EventType = "circuit_breaker_closed"
	EventProviderDegraded  EventType = "provider_degraded"
	EventFallbackExecuted  EventType = "fallback_executed"
	EventPredictiveFailure EventType = "predictive_failure_detected"
	EventRecoveryInitiated EventType = "production_recovery_initiated"
	EventRecoveryCompleted EventType = "production_recovery_completed"
	EventRecoveryEscalated EventType = "production_recovery_escalated"
)

// Event is a structured observability event. Details carry provider/plan/
// incident identifiers depending on the event type.
type Event struct {
	Type      EventType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Observer receives events. Implementations must not block; delivery is
// fire-and-forget from the emitter's perspective.
type Observer interface {
	OnEvent(e Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(e Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Bus fans events out to subscribed observers. Emit never blocks the
// caller on observer work beyond the synchronous callback itself; slow
// sinks (webhooks) buffer internally.
type Bus struct {
	mu        sync.RWMutex
	observers []Observer
	nowFunc   func() time.Time
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{nowFunc: time.Now}
}

// Subscribe registers an observer for all subsequent events.
func (b *Bus) Subscribe(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Emit stamps and delivers an event to every observer.
func (b *Bus) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = b.nowFunc().UTC()
	}
	if e.Severity == "" {
		e.Severity = "info"
	}

	b.mu.RLock()
	observers := make([]Observer, len(b.observers))
	copy(observers, b.observers)
	b.mu.RUnlock()

	for _, o := range observers {
		o.OnEvent(e)
	}

	zap.L().Debug("event emitted",
		zap.String("type", string(e.Type)),
		zap.String("severity", e.Severity),
	)
}
