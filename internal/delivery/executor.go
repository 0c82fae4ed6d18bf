package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Executor performs exactly one outbound POST. Retry bookkeeping lives in the
// Engine; a non-2xx response, timeout, or transport error is simply reported
// back as an error with the reason text the Engine records as last_error.
type Executor struct {
	HTTP    *http.Client
	Timeout time.Duration
}

type AttemptRequest struct {
	DeliveryID string
	TargetURL  string
	EventName  string
	Payload    []byte
}

func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{
		HTTP:    &http.Client{Timeout: timeout},
		Timeout: timeout,
	}
}

// Attempt returns the response status code (0 when the request never got a
// response) and a nil error only for 2xx.
func (e *Executor) Attempt(ctx context.Context, req AttemptRequest) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, req.TargetURL, bytes.NewReader(req.Payload))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "pharmabill-webhooks/1.0")
	httpReq.Header.Set("X-Webhook-Event", req.EventName)
	httpReq.Header.Set("X-Webhook-Delivery", req.DeliveryID)

	resp, err := e.HTTP.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("timeout after %s: %w", e.Timeout, err)
		}
		return 0, err
	}
	defer resp.Body.Close()
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
