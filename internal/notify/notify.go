// Package notify delivers household notifications to registered push
// endpoints. The server side fans a notification out to every endpoint of
// its recipients; the client side hands notifications to the server without
// waiting for the outcome.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Notification is the payload sent to each endpoint.
type Notification struct {
	// Recipients are member names. Empty means every member except Except.
	Recipients []string `json:"recipients,omitempty"`
	Except     string   `json:"except,omitempty"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	URL        string   `json:"url,omitempty"`
}

// Target is one endpoint to deliver to.
type Target struct {
	ID     string
	URL    string
	Secret string
}

// Result is the outcome of one delivery.
type Result struct {
	EndpointID string `json:"endpoint_id"`
	Status     int    `json:"status,omitempty"`
	Gone       bool   `json:"gone,omitempty"`
	Err        error  `json:"-"`
}

// OK reports whether the endpoint accepted the notification.
func (r Result) OK() bool {
	return r.Err == nil
}

// DefaultTimeout bounds a single endpoint delivery.
const DefaultTimeout = 10 * time.Second

// Dispatcher posts notifications to endpoints.
type Dispatcher struct {
	HTTP *http.Client
	now  func() time.Time
}

// NewDispatcher returns a dispatcher whose deliveries time out after
// DefaultTimeout.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{HTTP: &http.Client{Timeout: DefaultTimeout}, now: time.Now}
}

// Fanout delivers n to every target concurrently. One endpoint failing never
// stops the others; results come back in target order.
func (d *Dispatcher) Fanout(ctx context.Context, n Notification, targets []Target) []Result {
	body, err := json.Marshal(n)
	results := make([]Result, len(targets))
	if err != nil {
		for i, t := range targets {
			results[i] = Result{EndpointID: t.ID, Err: fmt.Errorf("marshal notification: %w", err)}
		}
		return results
	}

	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = d.send(ctx, t, body)
		}()
	}
	wg.Wait()

	for _, r := range results {
		if r.Err != nil {
			slog.Warn("notify: delivery failed", "endpoint", r.EndpointID, "status", r.Status, "gone", r.Gone, "err", r.Err)
		}
	}
	return results
}

func (d *Dispatcher) send(ctx context.Context, t Target, body []byte) Result {
	res := Result{EndpointID: t.ID}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		res.Err = fmt.Errorf("create request: %w", err)
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "hearth-notify/1")

	ts := strconv.FormatInt(d.now().Unix(), 10)
	req.Header.Set("X-Hearth-Timestamp", ts)
	if t.Secret != "" {
		req.Header.Set("X-Hearth-Signature", Sign(t.Secret, ts, body))
	}

	resp, err := d.HTTP.Do(req)
	if err != nil {
		res.Err = fmt.Errorf("POST %s: %w", t.URL, err)
		return res
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		res.Gone = true
		res.Err = fmt.Errorf("POST %s: endpoint gone (status %d)", t.URL, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		res.Err = fmt.Errorf("POST %s: status %d", t.URL, resp.StatusCode)
	}
	return res
}

// Sign returns the signature header value for body sent at unix time ts.
func Sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign.
func Verify(secret, ts string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, ts, body)), []byte(signature))
}
