package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/google/uuid"
)

// Outcome is the result of one Deliver call.
type Outcome string

const (
	OutcomeOk      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Payload is the outbound completion notification body.
type Payload struct {
	JobID      uuid.UUID         `json:"job_id"`
	Status     string            `json:"status"`
	ResultURLs map[string]string `json:"result_urls"`
	ArchiveURL string            `json:"archive_url,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// retryDelays gives a delivery at most two retries with backoff between
// them before the attempt counts as failed.
var retryDelays = []time.Duration{500 * time.Millisecond, 2 * time.Second}

// Delivery posts completion payloads and gates them through a per-host
// circuit breaker.
type Delivery struct {
	client  *http.Client
	breaker *Breaker
}

// New creates a Delivery with the given per-attempt HTTP timeout.
func New(requestTimeout time.Duration, breaker *Breaker) *Delivery {
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Second
	}
	return &Delivery{
		client:  &http.Client{Timeout: requestTimeout},
		breaker: breaker,
	}
}

// Deliver posts payload to target, consulting and updating the circuit
// breaker for target's host.
func (d *Delivery) Deliver(ctx context.Context, target string, payload Payload) Outcome {
	host, err := hostOf(target)
	if err != nil {
		zlog.Logger.Warn().Str("url", target).Err(err).Msg("webhook url unparsable, treating as failure")
		return OutcomeFailed
	}

	if !d.breaker.Allow(host) {
		zlog.Logger.Info().Str("host", host).Msg("webhook breaker open, skipping delivery")
		return OutcomeSkipped
	}

	body, err := json.Marshal(payload)
	if err != nil {
		zlog.Logger.Err(err).Msg("marshal webhook payload")
		d.breaker.RecordFailure(host)
		return OutcomeFailed
	}

	var lastErr error
retryLoop:
	for attempt := 0; attempt < len(retryDelays)+1; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelays[attempt-1]):
			case <-ctx.Done():
				lastErr = ctx.Err()
				break retryLoop
			}
		}

		if err := d.post(ctx, target, body); err != nil {
			lastErr = err
			continue
		}

		d.breaker.RecordSuccess(host)
		return OutcomeOk
	}

	zlog.Logger.Warn().Str("host", host).Err(lastErr).Msg("webhook delivery exhausted retries")
	d.breaker.RecordFailure(host)
	return OutcomeFailed
}

func (d *Delivery) post(ctx context.Context, target string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func hostOf(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", target)
	}
	return u.Host, nil
}
