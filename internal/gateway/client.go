// Package gateway is the outbound HTTP client for the hosted REST data layer.
// It speaks the PostgREST query dialect and is the only path to persisted state.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrNotFound covers both "no such record" and "record outside the caller's
// scope". The two are deliberately indistinguishable; see Service scoped lookups.
var ErrNotFound = errors.New("not found")

// ErrUpstream reports an unexpected status from the data layer. The original
// status and body are logged, never surfaced to the portal caller.
var ErrUpstream = errors.New("data layer error")

const maxRetries = 3

// Client issues requests against the data layer base URL using a service key.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	logger     *zap.Logger
}

func New(baseURL, serviceKey string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
			},
		},
		logger: logger.With(zap.String("component", "gateway")),
	}
}

// NewWithHTTPClient is used by tests to point the gateway at an httptest server.
func NewWithHTTPClient(baseURL, serviceKey string, httpClient *http.Client, logger *zap.Logger) *Client {
	c := New(baseURL, serviceKey, logger)
	c.httpClient = httpClient
	return c
}

// Select fetches rows matching q and decodes them into out (a pointer to a
// slice). Returns the exact total row count when q.Count is set, else -1.
// Any non-2xx response collapses to ErrNotFound.
func (c *Client) Select(ctx context.Context, resource string, q Query, out any) (int, error) {
	var resp *response
	operation := func() error {
		var err error
		resp, err = c.do(ctx, http.MethodGet, resource, q, nil)
		return err
	}
	// Reads are idempotent; retry transient network failures and 5xx.
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return -1, fmt.Errorf("select %s: %w", resource, err)
	}

	if resp.status < 200 || resp.status > 299 {
		c.logger.Debug("select non-2xx", zap.String("resource", resource), zap.Int("status", resp.status))
		return -1, ErrNotFound
	}
	if out != nil {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return -1, fmt.Errorf("decode %s: %w", resource, err)
		}
	}
	return resp.total, nil
}

// Insert creates one row and decodes the representation into out when non-nil.
func (c *Client) Insert(ctx context.Context, resource string, record, out any) error {
	return c.write(ctx, http.MethodPost, resource, Query{}, record, out, false)
}

// Upsert creates-or-updates using merge-duplicates semantics resolved against
// conflictColumns, the resource's natural key (e.g. "file_id,client_id"). A
// repeat submission overwrites the existing row instead of inserting a new one.
func (c *Client) Upsert(ctx context.Context, resource string, record, out any, conflictColumns string) error {
	return c.write(ctx, http.MethodPost, resource, Query{}.OnConflict(conflictColumns), record, out, true)
}

// Update patches rows matching q. A match count of zero is not an error at this
// layer; callers that require a match must select first through a scoped query.
func (c *Client) Update(ctx context.Context, resource string, q Query, patch any) error {
	return c.write(ctx, http.MethodPatch, resource, q, patch, nil, false)
}

// Delete removes rows matching q.
func (c *Client) Delete(ctx context.Context, resource string, q Query) error {
	return c.write(ctx, http.MethodDelete, resource, q, nil, nil, false)
}

func (c *Client) write(ctx context.Context, method, resource string, q Query, record, out any, merge bool) error {
	headers := map[string]string{}
	if out != nil {
		headers["Prefer"] = "return=representation"
	}
	if merge {
		if p, ok := headers["Prefer"]; ok {
			headers["Prefer"] = p + ",resolution=merge-duplicates"
		} else {
			headers["Prefer"] = "resolution=merge-duplicates"
		}
	}

	resp, err := c.doWithHeaders(ctx, method, resource, q, record, headers)
	if err != nil {
		return fmt.Errorf("%s %s: %w", strings.ToLower(method), resource, err)
	}
	switch resp.status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
	default:
		c.logger.Warn("write rejected by data layer",
			zap.String("resource", resource),
			zap.String("method", method),
			zap.Int("status", resp.status),
			zap.ByteString("body", truncate(resp.body, 512)),
		)
		return fmt.Errorf("%s %s: status %d: %w", strings.ToLower(method), resource, resp.status, ErrUpstream)
	}
	if out != nil && len(resp.body) > 0 {
		// Representation comes back as an array even for single-row writes.
		if err := decodeRepresentation(resp.body, out); err != nil {
			return fmt.Errorf("decode %s representation: %w", resource, err)
		}
	}
	return nil
}

type response struct {
	status int
	body   []byte
	total  int
}

func (c *Client) do(ctx context.Context, method, resource string, q Query, record any) (*response, error) {
	return c.doWithHeaders(ctx, method, resource, q, record, nil)
}

func (c *Client) doWithHeaders(ctx context.Context, method, resource string, q Query, record any, extra map[string]string) (*response, error) {
	reqURL := c.baseURL + "/" + resource
	if encoded := q.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	var body io.Reader
	if record != nil {
		payload, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if record != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.serviceKey != "" {
		req.Header.Set("apikey", c.serviceKey)
		req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	}
	if q.Count {
		req.Header.Set("Prefer", "count=exact")
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", resource, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 500 {
		// Signal retryable failure to the backoff loop.
		return nil, fmt.Errorf("upstream status %d", httpResp.StatusCode)
	}

	return &response{
		status: httpResp.StatusCode,
		body:   raw,
		total:  parseTotal(httpResp.Header.Get("Content-Range")),
	}, nil
}

// parseTotal extracts the exact count from a Content-Range header ("0-24/3573").
func parseTotal(contentRange string) int {
	idx := strings.LastIndex(contentRange, "/")
	if idx < 0 {
		return -1
	}
	total, err := strconv.Atoi(contentRange[idx+1:])
	if err != nil {
		return -1
	}
	return total
}

func decodeRepresentation(body []byte, out any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return err
		}
		if len(rows) == 0 {
			return ErrNotFound
		}
		return json.Unmarshal(rows[0], out)
	}
	return json.Unmarshal(trimmed, out)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
