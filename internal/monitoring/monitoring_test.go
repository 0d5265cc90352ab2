package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchlab/failover/internal/model"
)

func TestBus_FansOutToObservers(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var got []Event
	bus.Subscribe(ObserverFunc(func(e Event) { got = append(got, e) }))
	bus.Subscribe(ObserverFunc(func(e Event) { got = append(got, e) }))

	bus.Emit(Event{Type: EventCircuitOpened, Message: "osrm opened"})

	require.Len(t, got, 2)
	assert.Equal(t, EventCircuitOpened, got[0].Type)
	assert.False(t, got[0].Timestamp.IsZero(), "emit stamps timestamp")
	assert.Equal(t, "info", got[0].Severity, "emit defaults severity")
}

func TestBus_ConcurrentEmitAndSubscribe(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var mu sync.Mutex
	count := 0
	bus.Subscribe(ObserverFunc(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Emit(Event{Type: EventFallbackExecuted})
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Subscribe(ObserverFunc(func(Event) {}))
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 20, count)
}

func TestAlerter_DeliversToWebhook(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var received []Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	a.OnEvent(Event{Type: EventCircuitOpened, Severity: "high", Message: "osrm opened", Timestamp: time.Now()})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, EventCircuitOpened, received[0].Type)
}

func TestAlerter_RetriesTransientDelivery(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(srv.URL)
	a.retry.InitialBackoff = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	a.OnEvent(Event{Type: EventProviderDegraded, Timestamp: time.Now()})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAlerter_NoWebhookDropsSilently(t *testing.T) {
	t.Parallel()

	a := NewAlerter("")
	a.OnEvent(Event{Type: EventCircuitOpened})
	assert.Equal(t, int64(0), a.Dropped())
}

func TestAlerter_CountsDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	// No Run loop draining: the queue fills and overflow is counted.
	a := NewAlerter("http://alerts.invalid/hook")
	for i := 0; i < cap(a.queue)+3; i++ {
		a.OnEvent(Event{Type: EventProviderDegraded})
	}
	assert.Equal(t, int64(3), a.Dropped())
}

type stubFleet struct{ fleet []model.ServiceProvider }

func (s *stubFleet) Snapshot() []model.ServiceProvider { return s.fleet }

func TestChecker_EmitsOnUnhealthyRatio(t *testing.T) {
	t.Parallel()

	fleet := &stubFleet{fleet: []model.ServiceProvider{
		{ID: "a", HealthStatus: model.HealthUnhealthy, Reliability: 0.9},
		{ID: "b", HealthStatus: model.HealthOffline, Reliability: 0.8},
		{ID: "c", HealthStatus: model.HealthHealthy, Reliability: 0.99},
	}}

	bus := NewBus()
	var got []Event
	bus.Subscribe(ObserverFunc(func(e Event) { got = append(got, e) }))

	c := NewChecker(fleet, bus, CheckerConfig{UnhealthyRatioThreshold: 0.5})
	events := c.Evaluate()

	require.Len(t, events, 1)
	assert.Equal(t, "critical", events[0].Severity)
	assert.Len(t, got, 1, "events reach bus subscribers")
}

func TestChecker_EmitsOnLowReliability(t *testing.T) {
	t.Parallel()

	fleet := &stubFleet{fleet: []model.ServiceProvider{
		{ID: "a", HealthStatus: model.HealthHealthy, Reliability: 0.2},
		{ID: "b", HealthStatus: model.HealthHealthy, Reliability: 0.99},
	}}

	c := NewChecker(fleet, NewBus(), CheckerConfig{MinReliability: 0.5})
	events := c.Evaluate()

	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].Details["provider"])
}

func TestChecker_QuietWhenHealthy(t *testing.T) {
	t.Parallel()

	fleet := &stubFleet{fleet: []model.ServiceProvider{
		{ID: "a", HealthStatus: model.HealthHealthy, Reliability: 0.99},
	}}
	c := NewChecker(fleet, NewBus(), CheckerConfig{})
	assert.Empty(t, c.Evaluate())
}
