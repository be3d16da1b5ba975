// Package nautobot implements the Nautobot gateway: a GraphQL + REST client
// with an in-memory + Redis-backed cache and name-to-UUID resolvers.
// Grounded on original_source/backend/services/nautobot/* for the
// resolver/cache shape, and on kubernaut's circuit breaker usage
// (pkg/orchestration/dependency, sony/gobreaker) for upstream resilience.
package nautobot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
)

// Device is the gateway's normalised view of a Nautobot dcim.Device,
// flattened (including `_custom_field_data.*`) so it satisfies
// pkg/inventory.Device directly.
type Device struct {
	ID         string
	Name       string
	PrimaryIP4 string
	Platform   string
	Location   string
	Attrs      map[string]any
}

// Field implements pkg/inventory.Device.
func (d Device) Field(name string) (any, bool) {
	switch name {
	case "id":
		return d.ID, true
	case "name":
		return d.Name, true
	case "primary_ip4":
		return d.PrimaryIP4, true
	case "platform":
		return d.Platform, true
	case "location.name":
		return d.Location, true
	}
	v, ok := d.Attrs[name]
	return v, ok
}

// Client is the Nautobot GraphQL+REST gateway. GraphQL requests are
// retried on 5xx and transport errors with exponential backoff; the REST
// Get, Patch and Delete calls make a single attempt through the circuit
// breaker and return its outcome.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	cache      Cache
	logger     interface {
		Warnf(format string, args ...any)
	}
}

// Cache abstracts the in-memory + Redis-backed cache. Client keys entries
// by REST request path (query string included) with a 30-min TTL; a write
// invalidates only its own path, so cached list responses are not
// invalidated.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Invalidate(ctx context.Context, keys ...string)
}

const cacheTTL = 30 * time.Minute

func New(baseURL, token string, cache Cache) *Client {
	cbSettings := gobreaker.Settings{
		Name:        "nautobot",
		MaxRequests: 2,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		breaker:    gobreaker.NewCircuitBreaker(cbSettings),
		cache:      cache,
		logger:     cockpitlog.WithComponent("nautobot"),
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GraphQL executes a GraphQL query against Nautobot's /api/graphql/
// endpoint through the circuit breaker, retrying 5xx responses up to 3
// times with exponential backoff.
func (c *Client) GraphQL(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("nautobot: marshal graphql request: %w", err)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.postWithRetry(ctx, "/api/graphql/", body)
	})
	if err != nil {
		return apperrors.Wrap(apperrors.UpstreamUnavailable, "nautobot graphql request failed", err)
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(result.([]byte), &gqlResp); err != nil {
		return fmt.Errorf("nautobot: decode graphql response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return apperrors.New(apperrors.UpstreamUnavailable, gqlResp.Errors[0].Message)
	}
	if out != nil {
		return json.Unmarshal(gqlResp.Data, out)
	}
	return nil
}

func (c *Client) postWithRetry(ctx context.Context, path string, body []byte) ([]byte, error) {
	var lastErr error
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < 4; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Token "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(backoff)
			backoff *= 2
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("nautobot: server error %d", resp.StatusCode)
			time.Sleep(backoff)
			backoff *= 2
			continue
		}
		return data, nil
	}
	return nil, lastErr
}

// Get performs a REST GET against path, using the cache when present.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	if cached, ok := c.cache.Get(ctx, path); ok {
		return cached, nil
	}

	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Token "+c.token)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, apperrors.New(apperrors.NotFound, "nautobot: resource not found: "+path)
		}
		if resp.StatusCode >= 500 {
			return nil, apperrors.New(apperrors.UpstreamUnavailable, fmt.Sprintf("nautobot: server error %d", resp.StatusCode))
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}

	data := result.([]byte)
	c.cache.Set(ctx, path, data, cacheTTL)
	return data, nil
}

// Patch performs a REST PATCH against path with the given JSON body and
// invalidates path from the cache on success.
func (c *Client) Patch(ctx context.Context, path string, body []byte) ([]byte, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Token "+c.token)
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, apperrors.New(apperrors.NotFound, "nautobot: resource not found: "+path)
		}
		if resp.StatusCode >= 400 {
			return nil, apperrors.New(apperrors.UpstreamUnavailable, fmt.Sprintf("nautobot: patch %s failed with status %d: %s", path, resp.StatusCode, string(data)))
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	c.InvalidateOnWrite(ctx, path, "")
	return result.([]byte), nil
}

// Delete performs a REST DELETE against path and invalidates the cache.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Token "+c.token)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode == http.StatusNotFound {
			return nil, apperrors.New(apperrors.NotFound, "nautobot: resource not found: "+path)
		}
		if resp.StatusCode >= 400 {
			return nil, apperrors.New(apperrors.UpstreamUnavailable, fmt.Sprintf("nautobot: delete %s failed with status %d", path, resp.StatusCode))
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	c.InvalidateOnWrite(ctx, path, "")
	return nil
}

// InvalidateOnWrite must be called after any REST write to Nautobot so
// subsequent reads are not served stale cache entries. It drops path and,
// when non-empty, listIndexKey; Patch and Delete pass an empty
// listIndexKey.
func (c *Client) InvalidateOnWrite(ctx context.Context, path, listIndexKey string) {
	c.cache.Invalidate(ctx, path, listIndexKey)
}
