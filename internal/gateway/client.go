// Package gateway is the HTTP client for the remote session authority. It
// exposes the fetch and action operations the tracker consumes and decodes
// error responses into the domain error taxonomy.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/initiative.watch/internal/platform/errors"
	"github.com/louisbranch/initiative.watch/internal/platform/timeouts"
	"github.com/louisbranch/initiative.watch/internal/session"
	"github.com/louisbranch/initiative.watch/internal/session/event"
)

// RoleHeader carries the caller's session role. Mutating actions require the
// GM role.
const RoleHeader = "X-Session-Role"

// requestIDHeader is the correlation header attached by the authority.
const requestIDHeader = "X-Request-Id"

// Client talks to one remote session authority.
type Client struct {
	baseURL    string
	httpClient *http.Client
	role       string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithRole sets the session role sent on every request.
func WithRole(role string) Option {
	return func(c *Client) {
		c.role = strings.TrimSpace(role)
	}
}

// New creates a client for the authority at baseURL.
func New(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeouts.HTTPRequest},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// FetchFullSession hydrates the complete session snapshot, including the
// current event journal tail.
func (c *Client) FetchFullSession(ctx context.Context, sessionID string) (session.Model, error) {
	var model session.Model
	path := "/v1/sessions/" + url.PathEscape(sessionID)
	if err := c.get(ctx, path, &model); err != nil {
		return session.Model{}, err
	}
	return model, nil
}

// FetchRosterSummary fetches the roster-level delta snapshot.
func (c *Client) FetchRosterSummary(ctx context.Context, sessionID string) (session.RosterSummary, error) {
	var summary session.RosterSummary
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/summary"
	if err := c.get(ctx, path, &summary); err != nil {
		return session.RosterSummary{}, err
	}
	return summary, nil
}

// FetchCombatSnapshot fetches the combat-actor delta snapshot. Valid only
// while an encounter is active.
func (c *Client) FetchCombatSnapshot(ctx context.Context, sessionID string) (session.CombatSnapshot, error) {
	var snapshot session.CombatSnapshot
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/combat"
	if err := c.get(ctx, path, &snapshot); err != nil {
		return session.CombatSnapshot{}, err
	}
	return snapshot, nil
}

// FetchEventsSince fetches events ordered after the cursor sequence token.
// An empty cursor means "from the beginning" and is used only at hydration.
// An empty result is not an error.
func (c *Client) FetchEventsSince(ctx context.Context, sessionID string, limit int, cursor string) ([]event.Event, error) {
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		values.Set("after", cursor)
	}
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/events"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var batch struct {
		Events []event.Event `json:"events"`
	}
	if err := c.get(ctx, path, &batch); err != nil {
		return nil, err
	}
	return batch.Events, nil
}

// ExecuteUnifiedAction submits a command through the unified action endpoint.
func (c *Client) ExecuteUnifiedAction(ctx context.Context, sessionID string, action UnifiedAction) (ActionResult, error) {
	var result ActionResult
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/actions"
	if err := c.post(ctx, path, action, &result); err != nil {
		return ActionResult{}, err
	}
	return result, nil
}

// ExecuteLegacyAction submits a command through the action-specific legacy
// endpoint. The legacy protocol accepts no idempotency key.
func (c *Client) ExecuteLegacyAction(ctx context.Context, sessionID string, actionType ActionType, payload map[string]any) (ActionResult, error) {
	var result ActionResult
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/actions/" + url.PathEscape(string(actionType))
	if err := c.post(ctx, path, payload, &result); err != nil {
		return ActionResult{}, err
	}
	return result, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.role != "" {
		req.Header.Set(RoleHeader, c.role)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeNetworkFailure, "request "+method+" "+path+" failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.CodeServerFailure, "decode response body", err)
	}
	return nil
}
