// Package storeclient is the HTTP client for hearth-server. It implements
// remote.Store, so optimistic controllers can run against a live server, and
// carries the push-notification calls.
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/marcus/hearth/internal/notify"
	"github.com/marcus/hearth/internal/record"
	"github.com/marcus/hearth/internal/remote"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// Client is an HTTP client for hearth-server.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	// Timeout bounds every request except change polls.
	Timeout time.Duration
	// PollWait is how long the server may hold a change poll open.
	PollWait time.Duration
}

// New creates a new store client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		HTTP:     &http.Client{},
		Timeout:  30 * time.Second,
		PollWait: 25 * time.Second,
	}
}

var _ remote.Store = (*Client)(nil)

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// HealthCheck hits the /healthz endpoint to verify server reachability.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, "GET", "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- remote.Store ---

func collectionPath(name string) string {
	return "/v1/collections/" + url.PathEscape(name)
}

// Select returns the rows of collection matching q.
func (c *Client) Select(ctx context.Context, collection string, q remote.Query) ([]record.Record, error) {
	path := collectionPath(collection)
	if v := q.Values(); len(v) > 0 {
		path += "?" + v.Encode()
	}
	var rows []record.Record
	if err := c.do(ctx, "GET", path, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Get returns one row.
func (c *Client) Get(ctx context.Context, collection, id string) (record.Record, error) {
	var rec record.Record
	err := c.do(ctx, "GET", collectionPath(collection)+"/"+url.PathEscape(id), nil, &rec)
	return rec, err
}

// Insert creates a row and returns the canonical record.
func (c *Client) Insert(ctx context.Context, collection string, rec record.Record) (record.Record, error) {
	var out record.Record
	err := c.do(ctx, "POST", collectionPath(collection), rec, &out)
	return out, err
}

// Update merges fields into a row and returns the canonical record.
func (c *Client) Update(ctx context.Context, collection, id string, fields map[string]any) (record.Record, error) {
	var out record.Record
	err := c.do(ctx, "PATCH", collectionPath(collection)+"/"+url.PathEscape(id), fields, &out)
	return out, err
}

// Delete removes a row.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, "DELETE", collectionPath(collection)+"/"+url.PathEscape(id), nil, nil)
}

// --- change feed ---

// ChangePage is one page of the change log.
type ChangePage struct {
	Changes []remote.Change `json:"changes"`
	LastSeq int64           `json:"last_seq"`
	HasMore bool            `json:"has_more"`
}

// Head returns the newest change sequence on the server.
func (c *Client) Head(ctx context.Context) (int64, error) {
	var resp struct {
		HeadSeq int64 `json:"head_seq"`
	}
	if err := c.do(ctx, "GET", "/v1/changes/head", nil, &resp); err != nil {
		return 0, err
	}
	return resp.HeadSeq, nil
}

// Changes polls the change log of collection after afterSeq, letting the
// server hold the request for up to wait. An empty collection reads all.
func (c *Client) Changes(ctx context.Context, collection string, afterSeq int64, wait time.Duration) (*ChangePage, error) {
	params := url.Values{}
	params.Set("after_seq", strconv.FormatInt(afterSeq, 10))
	if wait > 0 {
		params.Set("wait", wait.String())
	}
	path := "/v1/changes"
	if collection != "" {
		path = collectionPath(collection) + "/changes"
	}

	ctx, cancel := context.WithTimeout(ctx, wait+c.Timeout)
	defer cancel()
	var page ChangePage
	if err := c.doRequest(ctx, "GET", path+"?"+params.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// --- members & push ---

// Member is a household member as listed by the server.
type Member struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// Members lists the household.
func (c *Client) Members(ctx context.Context) ([]Member, error) {
	var out []Member
	if err := c.do(ctx, "GET", "/v1/members", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Endpoint is a registered push endpoint.
type Endpoint struct {
	ID        string `json:"id"`
	MemberID  string `json:"member_id"`
	URL       string `json:"url"`
	Failures  int    `json:"failures"`
	LastError string `json:"last_error,omitempty"`
	CreatedAt string `json:"created_at"`
}

// RegisterEndpoint registers a push endpoint for the calling member.
func (c *Client) RegisterEndpoint(ctx context.Context, endpointURL, secret string) (*Endpoint, error) {
	body := map[string]string{"url": endpointURL, "secret": secret}
	var ep Endpoint
	if err := c.do(ctx, "POST", "/v1/push/endpoints", body, &ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

// Endpoints lists the calling member's push endpoints.
func (c *Client) Endpoints(ctx context.Context) ([]Endpoint, error) {
	var out []Endpoint
	if err := c.do(ctx, "GET", "/v1/push/endpoints", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteEndpoint removes one of the calling member's push endpoints.
func (c *Client) DeleteEndpoint(ctx context.Context, id string) error {
	return c.do(ctx, "DELETE", "/v1/push/endpoints/"+url.PathEscape(id), nil, nil)
}

// Notify hands a notification to the server for delivery. It returns once
// the server has accepted it.
func (c *Client) Notify(ctx context.Context, n notify.Notification) error {
	return c.do(ctx, "POST", "/v1/notify", n, nil)
}

// --- HTTP helpers ---

// errorResponse is the standard error body from the server.
type errorResponse struct {
	Error remote.Error `json:"error"`
}

// do executes a request bounded by the client timeout.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	return c.doRequest(ctx, method, path, body, result)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// statusError turns an error response into a *remote.Error so callers can
// classify it. 401 and 404 also match the package sentinels.
func statusError(status int, body []byte) error {
	var er errorResponse
	se := &er.Error
	if json.Unmarshal(body, &er) != nil || se.Code == "" {
		se = &remote.Error{Code: codeForStatus(status), Message: fmt.Sprintf("HTTP %d", status)}
	}
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrUnauthorized, &remote.Error{Code: remote.CodePermissionDenied, Message: se.Message})
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, se)
	}
	return se
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return remote.CodePermissionDenied
	case status == http.StatusNotFound:
		return remote.CodeNoRows
	case status == http.StatusTooManyRequests:
		return remote.CodeRateLimited
	case status >= 500:
		return remote.CodeUnavailable
	}
	return remote.CodeBadRequest
}
