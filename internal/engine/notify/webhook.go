// Package notify delivers downstream notifications for transactions that
// reached a terminal status. Delivery is best effort: a failed webhook never
// rolls back a status update.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/deweblabs/txrelay/internal/core/domain"
	"github.com/deweblabs/txrelay/internal/engine/metrics"
)

// Batch is one notification payload: the hashes that newly reached a
// terminal status for a wallet.
type Batch struct {
	Chain     domain.Chain     `json:"chain"`
	ChainType domain.ChainType `json:"chainType"`
	Address   string           `json:"address"`
	Confirmed []string         `json:"confirmed"`
	Failed    []string         `json:"failed"`
}

// Empty reports whether the batch carries no hashes.
func (b Batch) Empty() bool {
	return len(b.Confirmed) == 0 && len(b.Failed) == 0
}

// Dispatcher posts batches to the configured webhook endpoint with bounded
// exponential backoff.
type Dispatcher struct {
	url        string
	maxRetries uint64
	httpClient *http.Client
	log        *slog.Logger
}

// NewDispatcher creates a webhook dispatcher. With an empty url every
// delivery is a no-op.
func NewDispatcher(url string, timeout time.Duration, maxRetries uint64, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		url:        url,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Notify delivers one batch. Transport failures and 5xx responses are
// retried; anything else fails the delivery immediately.
func (d *Dispatcher) Notify(ctx context.Context, batch Batch) error {
	if d.url == "" || batch.Empty() {
		return nil
	}

	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal webhook batch: %w", err)
	}
	deliveryID := uuid.NewString()

	backoff := retry.WithMaxRetries(d.maxRetries, retry.NewExponential(time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, "POST", d.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Delivery-ID", deliveryID)

		resp, err := d.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("webhook returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned %d", resp.StatusCode)
		}
		return nil
	})

	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
		return fmt.Errorf("deliver webhook %s: %w", deliveryID, err)
	}

	metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
	d.log.Info("Webhook delivered",
		"delivery_id", deliveryID,
		"address", batch.Address,
		"confirmed", len(batch.Confirmed),
		"failed", len(batch.Failed),
	)
	return nil
}
