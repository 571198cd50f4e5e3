package daemonctl

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
	"strings"
	"syscall"
	"time"

	"shotdiff/internal/api"
	"shotdiff/internal/config"
)

// ErrDaemonNotRunning indicates the daemon API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.StatusCode)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the daemon HTTP API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewClient returns a client for the daemon configured by cfg.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		BaseURL: "http://" + strings.TrimSpace(cfg.Paths.APIBind),
		Token:   cfg.Paths.APIToken,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Status fetches daemon runtime state.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var out api.DaemonStatus
	if err := c.call(ctx, http.MethodGet, "/api/status", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload stores an image and returns its asset key.
func (c *Client) Upload(ctx context.Context, body io.Reader) (*api.AssetResponse, error) {
	var out api.AssetResponse
	if err := c.call(ctx, http.MethodPost, "/api/assets", "application/octet-stream", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit records a screenshot batch.
func (c *Client) Submit(ctx context.Context, req api.SubmissionRequest) (*api.SubmissionResponse, error) {
	var out api.SubmissionResponse
	if err := c.postJSON(ctx, "/api/builds", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBuilds returns the newest builds, optionally for one repository.
func (c *Client) ListBuilds(ctx context.Context, repositoryID int64, limit int) ([]api.Build, error) {
	query := url.Values{}
	if repositoryID > 0 {
		query.Set("repository", strconv.FormatInt(repositoryID, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/builds"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out api.BuildListResponse
	if err := c.call(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return out.Builds, nil
}

// Build returns one build with derived state.
func (c *Client) Build(ctx context.Context, id int64) (*api.Build, error) {
	var out api.BuildResponse
	if err := c.call(ctx, http.MethodGet, buildPath(id), "", nil, &out); err != nil {
		return nil, err
	}
	return &out.Build, nil
}

// Diffs lists the screenshot diffs of a build.
func (c *Client) Diffs(ctx context.Context, buildID int64) ([]api.Diff, error) {
	var out api.DiffListResponse
	if err := c.call(ctx, http.MethodGet, buildPath(buildID)+"/diffs", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Diffs, nil
}

// Review records a validation decision on a diff and returns its build.
func (c *Client) Review(ctx context.Context, diffID int64, status string) (*api.Build, error) {
	var out api.BuildResponse
	path := "/api/diffs/" + strconv.FormatInt(diffID, 10) + "/validation"
	if err := c.postJSON(ctx, path, api.ValidationRequest{Status: status}, &out); err != nil {
		return nil, err
	}
	return &out.Build, nil
}

// Abort stops a build.
func (c *Client) Abort(ctx context.Context, id int64) (*api.Build, error) {
	var out api.BuildResponse
	if err := c.postJSON(ctx, buildPath(id)+"/abort", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out.Build, nil
}

func buildPath(id int64) string {
	return "/api/builds/" + strconv.FormatInt(id, 10)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.call(ctx, http.MethodPost, path, "application/json", bytes.NewReader(data), out)
}

func (c *Client) call(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		if isDaemonUnavailable(err) {
			return ErrDaemonNotRunning
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isDaemonUnavailable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}
