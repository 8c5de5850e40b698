package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/bastionhq/bastionctl/internal/config"
	"github.com/bastionhq/bastionctl/internal/eventlog"
	"github.com/bastionhq/bastionctl/internal/loggy"
	"github.com/bastionhq/bastionctl/internal/ulid"
)

// SessionProvider yields the bearer token for hub requests. It is consulted
// per request (and per WebSocket dial), so a rotated or re-resolved token is
// picked up without rebuilding the client.
type SessionProvider interface {
	SessionToken(ctx context.Context) (string, error)
}

// SessionProviderFunc adapts a function to the SessionProvider interface.
type SessionProviderFunc func(ctx context.Context) (string, error)

func (f SessionProviderFunc) SessionToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// APIError is a non-2xx response from the hub.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Error implements the error interface for APIError
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("hub API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("hub API error (status %d)", e.StatusCode)
}

// Client talks to a Bastion hub
// It handles authentication, request ids, rate limiting and retries
type Client struct {
	baseURL    string
	session    SessionProvider
	httpClient *http.Client
	maxRetries int
	limiter    *rate.Limiter
	logger     *loggy.Logger
}

// NewClient creates a new hub client from config
func NewClient(cfg config.HubConfig, session SessionProvider, logger *loggy.Logger) *Client {
	// Ensure baseURL doesn't end with a slash
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if logger == nil {
		logger = loggy.NewNoopLogger()
	}

	return &Client{
		baseURL:    baseURL,
		session:    session,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: cfg.MaxRetries,
		limiter:    newLimiter(cfg.RequestsPerMinute, cfg.BurstLimit),
		logger:     logger,
	}
}

// helper function to create a rate limiter from RPM and Burst
func newLimiter(rpm, burst int) *rate.Limiter {
	if rpm <= 0 {
		// If RPM is zero or negative, allow infinite rate (no limiting)
		return rate.NewLimiter(rate.Inf, burst)
	}
	// Calculate rate per second
	r := rate.Limit(float64(rpm) / 60.0)
	// Burst should be at least 1
	b := burst
	if b <= 0 {
		b = 1
	}
	return rate.NewLimiter(r, b)
}

type runsResponse struct {
	Runs []Run `json:"runs"`
}

type eventsResponse struct {
	Events []eventlog.Event `json:"events"`
}

// ListRuns returns recent runs, newest first. jobID and limit are optional;
// zero values are omitted from the query.
func (c *Client) ListRuns(ctx context.Context, jobID string, limit int) ([]Run, error) {
	query := url.Values{}
	if jobID != "" {
		query.Set("job_id", jobID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp runsResponse
	if err := c.getJSON(ctx, "/api/runs", query, &resp); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return resp.Runs, nil
}

// GetRun fetches one run with its latest progress snapshot.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := c.getJSON(ctx, "/api/runs/"+url.PathEscape(id), nil, &run); err != nil {
		return nil, fmt.Errorf("fetching run %s: %w", id, err)
	}
	return &run, nil
}

// GetOperation fetches one operation with its per-item breakdown.
func (c *Client) GetOperation(ctx context.Context, id string) (*Operation, error) {
	var op Operation
	if err := c.getJSON(ctx, "/api/operations/"+url.PathEscape(id), nil, &op); err != nil {
		return nil, fmt.Errorf("fetching operation %s: %w", id, err)
	}
	return &op, nil
}

// TargetStatus polls the target and normalizes the answer into a
// StatusSnapshot, so callers handle runs and operations uniformly.
func (c *Client) TargetStatus(ctx context.Context, target Target) (*StatusSnapshot, error) {
	switch target.Kind {
	case TargetOperation:
		op, err := c.GetOperation(ctx, target.ID)
		if err != nil {
			return nil, err
		}
		label := op.Kind
		if label == "" {
			label = op.ID
		}
		return &StatusSnapshot{
			Target:    target,
			Label:     label,
			Status:    op.Status,
			StartedAt: op.StartedAt,
			EndedAt:   op.EndedAt,
			Progress:  op.Progress,
			Items:     op.Items,
			Error:     op.Error,
		}, nil
	default:
		run, err := c.GetRun(ctx, target.ID)
		if err != nil {
			return nil, err
		}
		label := run.JobName
		if label == "" {
			label = run.ID
		}
		return &StatusSnapshot{
			Target:    target,
			Label:     label,
			Status:    run.Status,
			StartedAt: run.StartedAt,
			EndedAt:   run.EndedAt,
			Progress:  run.Progress,
			Error:     run.Error,
		}, nil
	}
}

// TargetEvents backfills the target's event log after the given sequence,
// ascending. limit <= 0 leaves the page size to the hub.
func (c *Client) TargetEvents(ctx context.Context, target Target, afterSeq int64, limit int) ([]eventlog.Event, error) {
	query := url.Values{}
	query.Set("after_seq", strconv.FormatInt(afterSeq, 10))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp eventsResponse
	if err := c.getJSON(ctx, target.eventsPath(), query, &resp); err != nil {
		return nil, fmt.Errorf("fetching events for %s: %w", target, err)
	}
	return resp.Events, nil
}

func (t Target) eventsPath() string {
	switch t.Kind {
	case TargetOperation:
		return "/api/operations/" + url.PathEscape(t.ID) + "/events"
	default:
		return "/api/runs/" + url.PathEscape(t.ID) + "/events"
	}
}

// getJSON is a helper function to make GET requests with retries
// It uses exponential backoff for retrying failed requests
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, response any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	token, err := c.session.SessionToken(ctx)
	if err != nil {
		return fmt.Errorf("resolving session token: %w", err)
	}

	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	c.logger.Debug("hub request", "method", "GET", "url", requestURL)

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Request-ID", ulid.RequestID())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return c.handleErrorResponse(resp, respBody)
		}

		if response != nil {
			if err := json.Unmarshal(respBody, response); err != nil {
				return fmt.Errorf("unmarshalling response: %w, body: %s", err, string(respBody))
			}
		}

		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)), ctx)
	return backoff.Retry(operation, policy)
}

// handleErrorResponse turns a non-2xx response into an APIError. Client
// errors are permanent; 429 and 5xx stay retryable.
func (c *Client) handleErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}

	c.logger.Debug("hub API error response",
		"status", resp.Status,
		"code", apiErr.Code,
		"message", apiErr.Message)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return apiErr // retryable
	}
	return backoff.Permanent(apiErr) // not retryable
}
