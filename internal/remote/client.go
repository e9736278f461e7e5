// Package remote is the HTTP client of the community service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"ummah-sync/config"
	"ummah-sync/internal/model"
)

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: received status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to the remote service. Requests are paced by a token bucket
// so a burst of timers and user actions cannot flood the service.
type Client struct {
	baseURL string
	headers map[string]string
	http    *http.Client
	limiter *rate.Limiter

	mu    sync.RWMutex
	token string
}

// NewClient creates a client for the service described by cfg.
func NewClient(cfg config.RemoteConfig) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		headers: cfg.Headers,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.Burst),
	}
}

// SetToken sets the bearer token sent with every request. An empty token
// clears it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// do sends one request. body, when non-nil, is sent as JSON; out, when
// non-nil, receives the decoded JSON response.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s %s response: %w", method, path, err)
	}
	return nil
}

func list[T any](ctx context.Context, c *Client, kind model.Kind) ([]T, error) {
	var items []T
	if err := c.do(ctx, http.MethodGet, "/api/"+string(kind), nil, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	log.Debug().Str("kind", string(kind)).Int("items", len(items)).Msg("fetched collection")
	return items, nil
}

func create[T any](ctx context.Context, c *Client, kind model.Kind, rec T) (T, error) {
	var out T
	err := c.do(ctx, http.MethodPost, "/api/"+string(kind), rec, &out)
	return out, err
}

func update[T any](ctx context.Context, c *Client, kind model.Kind, id string, rec T) (T, error) {
	var out T
	err := c.do(ctx, http.MethodPut, "/api/"+string(kind)+"/"+url.PathEscape(id), rec, &out)
	return out, err
}

func remove(ctx context.Context, c *Client, kind model.Kind, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/"+string(kind)+"/"+url.PathEscape(id), nil, nil)
}
