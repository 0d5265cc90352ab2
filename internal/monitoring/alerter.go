package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dispatchlab/failover/internal/resilience"
)

// Alerter delivers events to a webhook URL. It subscribes to the bus with a
// buffered queue so slow webhook delivery never blocks an emitter; when the
// queue is full the oldest behavior is to drop and count.
type Alerter struct {
	webhookURL string
	client     *http.Client
	retry      resilience.RetryConfig
	queue      chan Event
	dropped    atomic.Int64
}

// NewAlerter creates a webhook alerter. An empty URL disables delivery.
func NewAlerter(webhookURL string) *Alerter {
	return &Alerter{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		retry:      resilience.DefaultRetryConfig(),
		queue:      make(chan Event, 256),
	}
}

// OnEvent implements Observer. Non-blocking: a full queue drops the event.
func (a *Alerter) OnEvent(e Event) {
	if a.webhookURL == "" {
		return
	}
	select {
	case a.queue <- e:
	default:
		a.dropped.Add(1)
		zap.L().Warn("alert queue full, dropping event",
			zap.String("type", string(e.Type)),
		)
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (a *Alerter) Dropped() int64 {
	return a.dropped.Load()
}

// Run consumes the queue and posts each event, retrying transient delivery
// failures. It blocks until ctx is cancelled.
func (a *Alerter) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.alerter"))
	if a.webhookURL == "" {
		log.Info("no webhook configured, alerter idle")
		<-ctx.Done()
		return
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("alerter stopped")
			return
		case e := <-a.queue:
			if err := a.deliver(ctx, e); err != nil {
				log.Error("failed to deliver alert",
					zap.String("type", string(e.Type)),
					zap.Error(err),
				)
				continue
			}
			log.Debug("alert delivered", zap.String("type", string(e.Type)))
		}
	}
}

func (a *Alerter) deliver(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal event")
	}

	return resilience.Retry(ctx, a.retry, "alert_webhook", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(payload))
		if err != nil {
			return eris.Wrap(err, "monitoring: create webhook request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			return resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			err := eris.Errorf("monitoring: webhook returned %d", resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(err, resp.StatusCode)
			}
			return err
		}
		return nil
	})
}
