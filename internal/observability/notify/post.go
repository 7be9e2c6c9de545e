package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultPostTimeout = 5 * time.Second
	retryStep          = 200 * time.Millisecond
	maxErrorBody       = 4096
)

// Poster sends JSON payloads to a webhook-style endpoint with linear backoff.
// Sinks embed it and supply their own payload shape.
type Poster struct {
	Name    string
	Client  *http.Client
	Retries int
}

// NewPoster returns a Poster; a nil client gets one with the given timeout.
func NewPoster(name string, client *http.Client, timeout time.Duration, retries int) Poster {
	if client == nil {
		if timeout <= 0 {
			timeout = defaultPostTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return Poster{Name: name, Client: client, Retries: max(retries, 0)}
}

// PostJSON encodes payload once and posts it until a 2xx response, the retry
// budget runs out, or ctx ends.
func (p Poster) PostJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", p.Name, err)
	}

	var lastErr error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, time.Duration(attempt)*retryStep); err != nil {
				return err
			}
		}
		if lastErr = p.once(ctx, url, body); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (p Poster) once(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", p.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", p.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s responded %s: %s", p.Name, resp.Status, strings.TrimSpace(string(msg)))
	}
	// Drain so the connection can be reused.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain %s response: %w", p.Name, err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
