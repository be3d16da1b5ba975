// Package checkmk implements the CheckMK REST gateway: folder/host
// creation, ETag-guarded updates, moves, deletes, and activate_changes.
// Grounded on original_source/backend/services/checkmk/* and the
// checkmk.examples/*.py reference fragments; circuit breaker shared with
// pkg/nautobot's sony/gobreaker usage.
package checkmk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
)

// Client talks to one CheckMK site's REST API.
type Client struct {
	baseURL    string
	site       string
	username   string
	password   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func New(baseURL, site, username, password string) *Client {
	return &Client{
		baseURL:    baseURL,
		site:       site,
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "checkmk",
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 5 },
		}),
	}
}

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s/%s/check_mk/api/1.0%s", strings.TrimRight(c.baseURL, "/"), c.site, path)
}

func (c *Client) authHeader() string {
	return fmt.Sprintf("Bearer %s %s", c.username, c.password)
}

// apiResponse carries a status code and body together so callers can
// branch on 404 (host not found), ETag headers, and 303 redirects.
type apiResponse struct {
	StatusCode int
	Body       []byte
	ETag       string
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, extraHeaders map[string]string) (*apiResponse, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", c.authHeader())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range extraHeaders {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return &apiResponse{StatusCode: resp.StatusCode, Body: data, ETag: resp.Header.Get("ETag")}, nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.UpstreamUnavailable, "checkmk request failed", err)
	}
	return result.(*apiResponse), nil
}

// EnsureFolder creates folder (and every missing parent along its path),
// idempotent on CheckMK's 400 "already exists" response.
func (c *Client) EnsureFolder(ctx context.Context, folderPath string) error {
	components := strings.Split(strings.Trim(folderPath, "/"), "/")
	current := ""
	for _, comp := range components {
		if comp == "" {
			continue
		}
		parent := current
		if parent == "" {
			parent = "~"
		} else {
			parent = strings.ReplaceAll("/"+parent, "/", "~")
		}
		current = path(current, comp)

		body, _ := json.Marshal(map[string]any{
			"name":  comp,
			"title": comp,
			"parent": parent,
		})
		resp, err := c.do(ctx, http.MethodPost, "/domain-types/folder_config/collections/all", body, nil)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 && resp.StatusCode != 400 {
			return apperrors.New(apperrors.UpstreamConflict, fmt.Sprintf("checkmk: create folder %q failed: %d %s", current, resp.StatusCode, resp.Body))
		}
	}
	return nil
}

func path(current, comp string) string {
	if current == "" {
		return comp
	}
	return current + "/" + comp
}

// HostConfig is the folder + attributes body exchanged with CheckMK,
// matching the normalised representation pkg/reconcile produces.
type HostConfig struct {
	Folder     string         `json:"folder"`
	Attributes map[string]any `json:"attributes"`
}

// GetHost fetches a host_config by name, returning apperrors.NotFound on a
// CheckMK 404 — the HOST_NOT_FOUND branch of the reconciliation state
// machine.
func (c *Client) GetHost(ctx context.Context, hostname string) (*HostConfig, string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/objects/host_config/"+hostname, nil, nil)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, "", apperrors.New(apperrors.NotFound, "checkmk: host "+hostname+" not found")
	}
	if resp.StatusCode >= 300 {
		return nil, "", apperrors.New(apperrors.UpstreamUnavailable, fmt.Sprintf("checkmk: get host %s failed: %d", hostname, resp.StatusCode))
	}

	var parsed struct {
		Extensions struct {
			Folder     string         `json:"folder"`
			Attributes map[string]any `json:"attributes"`
		} `json:"extensions"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, "", fmt.Errorf("checkmk: decode host %s: %w", hostname, err)
	}
	return &HostConfig{Folder: parsed.Extensions.Folder, Attributes: parsed.Extensions.Attributes}, resp.ETag, nil
}

// CreateHost POSTs a new host_config.
func (c *Client) CreateHost(ctx context.Context, hostname string, cfg HostConfig) error {
	body, _ := json.Marshal(map[string]any{
		"host_name":  hostname,
		"folder":     cfg.Folder,
		"attributes": cfg.Attributes,
	})
	resp, err := c.do(ctx, http.MethodPost, "/domain-types/host_config/collections/all", body, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 && resp.StatusCode != 400 {
		return apperrors.New(apperrors.UpstreamConflict, fmt.Sprintf("checkmk: create host %s failed: %d %s", hostname, resp.StatusCode, resp.Body))
	}
	return nil
}

// UpdateHost re-fetches the ETag immediately before PATCHing — CheckMK
// writes require a per-host ETag obtained immediately before the
// PATCH/MOVE to avoid stale writes. If the remote rejects the write for
// staleness, the UpstreamConflict recovery (re-fetch ETag once and retry)
// applies.
func (c *Client) UpdateHost(ctx context.Context, hostname string, attributes map[string]any) error {
	_, etag, err := c.GetHost(ctx, hostname)
	if err != nil {
		return err
	}

	body, _ := json.Marshal(map[string]any{"attributes": attributes})
	resp, err := c.do(ctx, http.MethodPut, "/objects/host_config/"+hostname, body, map[string]string{"If-Match": etag})
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusPreconditionFailed {
		_, etag2, rerr := c.GetHost(ctx, hostname)
		if rerr != nil {
			return rerr
		}
		resp, err = c.do(ctx, http.MethodPut, "/objects/host_config/"+hostname, body, map[string]string{"If-Match": etag2})
		if err != nil {
			return err
		}
	}
	if resp.StatusCode >= 300 {
		return apperrors.New(apperrors.UpstreamConflict, fmt.Sprintf("checkmk: update host %s failed: %d %s", hostname, resp.StatusCode, resp.Body))
	}
	return nil
}

// MoveHost relocates hostname to newFolder via the move action endpoint,
// used on the update action's folder-changed branch.
func (c *Client) MoveHost(ctx context.Context, hostname, newFolder string) error {
	_, etag, err := c.GetHost(ctx, hostname)
	if err != nil {
		return err
	}
	body, _ := json.Marshal(map[string]any{"target_folder": newFolder})
	resp, err := c.do(ctx, http.MethodPost, "/objects/host_config/"+hostname+"/actions/move/invoke", body, map[string]string{"If-Match": etag})
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return apperrors.New(apperrors.UpstreamConflict, fmt.Sprintf("checkmk: move host %s failed: %d %s", hostname, resp.StatusCode, resp.Body))
	}
	return nil
}

// DeleteHost removes hostname.
func (c *Client) DeleteHost(ctx context.Context, hostname string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/objects/host_config/"+hostname, nil, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return apperrors.New(apperrors.UpstreamUnavailable, fmt.Sprintf("checkmk: delete host %s failed: %d", hostname, resp.StatusCode))
	}
	return nil
}

// ActivateChanges POSTs the activation_run invoke endpoint with
// If-Match: "*", handling the 303 redirect CheckMK issues while the
// activation runs in the background.
func (c *Client) ActivateChanges(ctx context.Context, sites []string) error {
	body, _ := json.Marshal(map[string]any{
		"redirect":                false,
		"sites":                   sites,
		"force_foreign_changes":   false,
	})
	resp, err := c.do(ctx, http.MethodPost, "/domain-types/activation_run/actions/activate-changes/invoke", body, map[string]string{"If-Match": "*"})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusSeeOther {
		return apperrors.New(apperrors.UpstreamUnavailable, fmt.Sprintf("checkmk: activate changes failed: %d %s", resp.StatusCode, resp.Body))
	}
	return nil
}
