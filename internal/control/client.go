package control

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
	"time"

	"github.com/smazurov/svisor/internal/logging"
	"github.com/smazurov/svisor/internal/version"
)

// DefaultAddress is where the control API listens unless configured otherwise.
const DefaultAddress = "127.0.0.1:9001"

// ErrServiceUnreachable is returned when no supervisor answers at the address.
var ErrServiceUnreachable = errors.New("supervisor service is not reachable")

// Client talks to a running supervisor's control API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	username   string
	password   string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBasicAuth sets credentials for APIs that require them.
func WithBasicAuth(username, password string) ClientOption {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for addr, either host:port or a full URL.
func NewClient(addr string, opts ...ClientOption) *Client {
	if addr == "" {
		addr = DefaultAddress
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	c := &Client{
		baseURL: strings.TrimRight(addr, "/"),
		// Stop waits out grace periods, keep well above them.
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status fetches every process, or a single one when name is set.
func (c *Client) Status(ctx context.Context, name string) (Result, error) {
	path := "/api/processes"
	if name != "" && name != "all" {
		path += "/" + url.PathEscape(name)
	}
	return c.do(ctx, http.MethodGet, path)
}

// Start asks the supervisor to start name ("all" for every process).
func (c *Client) Start(ctx context.Context, name string) (Result, error) {
	return c.action(ctx, ActionStart, name)
}

// Stop asks the supervisor to stop name ("all" for every process).
func (c *Client) Stop(ctx context.Context, name string) (Result, error) {
	return c.action(ctx, ActionStop, name)
}

// Restart asks the supervisor to restart name ("all" for every process).
func (c *Client) Restart(ctx context.Context, name string) (Result, error) {
	return c.action(ctx, ActionRestart, name)
}

// StopAll stops every process.
func (c *Client) StopAll(ctx context.Context) (Result, error) {
	return c.do(ctx, http.MethodPost, "/api/processes/stop-all")
}

// Execute dispatches cmd to the matching endpoint.
func (c *Client) Execute(ctx context.Context, cmd Command) (Result, error) {
	switch cmd.Action {
	case ActionStatus:
		return c.Status(ctx, cmd.Name)
	case ActionStopAll:
		return c.StopAll(ctx)
	case ActionStart, ActionStop, ActionRestart:
		return c.action(ctx, cmd.Action, cmd.Name)
	}
	return Result{}, fmt.Errorf("unknown action %q", cmd.Action)
}

func (c *Client) action(ctx context.Context, action Action, name string) (Result, error) {
	if name == "" {
		return Result{}, fmt.Errorf("%s requires a process name", action)
	}
	return c.do(ctx, http.MethodPost, "/api/processes/"+url.PathEscape(name)+"/"+string(action))
}

func (c *Client) do(ctx context.Context, method, path string) (Result, error) {
	status, body, err := c.send(ctx, method, path)
	if err != nil {
		return Result{}, err
	}

	var res Result
	if err := json.Unmarshal(body, &res); err == nil && res.Code != "" {
		return res, nil
	}
	return Result{}, responseError(method, path, status, body)
}

// LogsQuery selects entries from the daemon's log buffer.
type LogsQuery struct {
	Module string
	After  uint64
	Limit  int
}

// LogsPage is one page of buffered log entries, oldest first.
type LogsPage struct {
	Entries []logging.LogEntry `json:"entries"`
	LastSeq uint64             `json:"last_seq"`
}

// Logs fetches buffered log entries. Pass the previous LastSeq as After to poll.
func (c *Client) Logs(ctx context.Context, q LogsQuery) (LogsPage, error) {
	params := url.Values{}
	if q.Module != "" {
		params.Set("module", q.Module)
	}
	if q.After > 0 {
		params.Set("after", strconv.FormatUint(q.After, 10))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/api/logs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	status, body, err := c.send(ctx, http.MethodGet, path)
	if err != nil {
		return LogsPage{}, err
	}
	if status != http.StatusOK {
		return LogsPage{}, responseError(http.MethodGet, path, status, body)
	}

	var page LogsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return LogsPage{}, fmt.Errorf("failed to decode logs: %w", err)
	}
	if page.LastSeq < q.After {
		page.LastSeq = q.After
	}
	return page, nil
}

func (c *Client) send(ctx context.Context, method, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, http.NoBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w at %s: %w", ErrServiceUnreachable, c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// responseError describes a non-result body, usually a huma problem response.
func responseError(method, path string, status int, body []byte) error {
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &problem); err == nil && (problem.Detail != "" || problem.Title != "") {
		msg := problem.Detail
		if msg == "" {
			msg = problem.Title
		}
		return fmt.Errorf("%s %s: %d %s", method, path, status, msg)
	}
	return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, status, bytes.TrimSpace(body))
}
