// Tracksync - Adaptive Location Tracking and Offline-First Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracksync

// Package backend is the JSON-over-HTTPS client for the tracking backend:
// auth, batch upload, track query and life events.
//
// Every call is bounded by the configured timeout, paced by a client-side
// token bucket and guarded by a circuit breaker that only counts transient
// failures.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/tracksync/internal/config"
	"github.com/tomtom215/tracksync/internal/metrics"
	"github.com/tomtom215/tracksync/internal/models"
)

// maxErrorBodySize bounds how much of an error body is read.
const maxErrorBodySize = 64 * 1024

// Client calls the backend API. It is safe for concurrent use.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	cb        *gobreaker.CircuitBreaker[any]
}

// New returns a client for cfg.
func New(cfg config.BackendConfig) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	if cfg.Breaker.Enabled {
		c.cb = newBreaker(cfg.Breaker)
	}
	return c
}

// Window is a UTC [Start, End) time range with paging.
type Window struct {
	Start  time.Time
	End    time.Time
	Limit  int
	Offset int
}

func (w Window) values() url.Values {
	v := url.Values{}
	v.Set("start", w.Start.UTC().Format(time.RFC3339Nano))
	v.Set("end", w.End.UTC().Format(time.RFC3339Nano))
	if w.Limit > 0 {
		v.Set("limit", strconv.Itoa(w.Limit))
	}
	v.Set("offset", strconv.Itoa(w.Offset))
	return v
}

// Login exchanges user credentials for a token pair.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.TokenResponse, error) {
	return call[models.TokenResponse](ctx, c, http.MethodPost, "/auth/login", nil, "", req)
}

// Refresh exchanges a refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.TokenResponse, error) {
	return call[models.TokenResponse](ctx, c, http.MethodPost, "/auth/refresh", nil, "", models.RefreshRequest{RefreshToken: refreshToken})
}

// UploadBatch posts points and returns the server receipt.
func (c *Client) UploadBatch(ctx context.Context, token string, items []models.TrackPoint) (*models.Receipt, error) {
	return call[models.Receipt](ctx, c, http.MethodPost, "/tracks/batch", nil, token, models.BatchRequest{Items: items})
}

// QueryTracks fetches one page of server points in w.
func (c *Client) QueryTracks(ctx context.Context, token string, w Window) (*models.TrackQueryResponse, error) {
	return call[models.TrackQueryResponse](ctx, c, http.MethodGet, "/tracks/query", w.values(), token, nil)
}

// ListLifeEvents fetches one page of server life events in w.
func (c *Client) ListLifeEvents(ctx context.Context, token string, w Window) (*models.LifeEventListResponse, error) {
	return call[models.LifeEventListResponse](ctx, c, http.MethodGet, "/life-events", w.values(), token, nil)
}

// PutLifeEvent upserts a life event by its client id.
func (c *Client) PutLifeEvent(ctx context.Context, token string, ev models.LifeEvent) error {
	_, err := call[struct{}](ctx, c, http.MethodPut, "/life-events/"+url.PathEscape(ev.ClientEventID), nil, token, ev)
	return err
}

// DeleteLifeEvent deletes a life event by its client id.
func (c *Client) DeleteLifeEvent(ctx context.Context, token, id string) error {
	_, err := call[struct{}](ctx, c, http.MethodDelete, "/life-events/"+url.PathEscape(id), nil, token, nil)
	return err
}

// call runs one request through the limiter and breaker and decodes a 2xx
// body into T. An empty 2xx body yields a zero T.
func call[T any](ctx context.Context, c *Client, method, path string, query url.Values, token string, body any) (*T, error) {
	endpoint := method + " " + path
	if strings.HasPrefix(path, "/life-events/") {
		endpoint = method + " /life-events/{id}"
	}

	result, err := c.execute(func() (any, error) {
		return do[T](ctx, c, endpoint, method, path, query, token, body)
	})
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", endpoint, result)
	}
	return typed, nil
}

func do[T any](ctx context.Context, c *Client, endpoint, method, path string, query url.Values, token string, body any) (*T, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Endpoint: endpoint, Err: err}
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", endpoint, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordBackendRequest(endpoint, "error", time.Since(start))
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	metrics.RecordBackendRequest(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(endpoint, resp)
	}

	out := new(T)
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("read response: %w", err)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	return out, nil
}

func decodeError(endpoint string, resp *http.Response) *APIError {
	apiErr := &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	body := readBodyForError(resp.Body)

	var env models.ErrorEnvelope
	if json.Unmarshal(body, &env) == nil && !env.Empty() {
		apiErr.Code = env.Code
		apiErr.Message = env.Message
		apiErr.TraceID = env.TraceID
	}
	return apiErr
}

func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return nil
	}
	return body
}
