package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/smazurov/svisor/internal/control"
	"github.com/smazurov/svisor/internal/version"
)

// ControlClient sends control commands to a svisor over NATS request/reply.
type ControlClient struct {
	url    string
	creds  Credentials
	conn   *nats.Conn
	logger *slog.Logger
}

// NewControlClient creates a client for the NATS server at url.
func NewControlClient(url string, creds Credentials, logger *slog.Logger) *ControlClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlClient{
		url:    url,
		creds:  creds,
		logger: logger.With("component", "nats-control"),
	}
}

// Connect establishes the connection. Unlike the bridge, a client used from
// the CLI fails fast instead of reconnecting forever.
func (c *ControlClient) Connect() error {
	opts := append(c.creds.options(),
		nats.Name(version.UserAgent()),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(3),
		nats.Timeout(5*time.Second),
	)
	conn, err := nats.Connect(c.url, opts...)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.url, err)
	}
	c.conn = conn
	return nil
}

// Execute sends cmd and decodes the reply.
func (c *ControlClient) Execute(ctx context.Context, cmd control.Command) (control.Result, error) {
	if c.conn == nil {
		return control.Result{}, fmt.Errorf("not connected to %s", c.url)
	}
	if cmd.Action == "" {
		return control.Result{}, fmt.Errorf("empty action")
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return control.Result{}, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	msg, err := c.conn.RequestWithContext(ctx, SubjectControl(cmd.Action), data)
	if err != nil {
		return control.Result{}, fmt.Errorf("%s request: %w", cmd.Action, err)
	}

	var res control.Result
	if err := json.Unmarshal(msg.Data, &res); err != nil {
		return control.Result{}, fmt.Errorf("decode %s reply: %w", cmd.Action, err)
	}
	return res, nil
}

// IsConnected returns true if the client is connected to NATS.
func (c *ControlClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close closes the connection.
func (c *ControlClient) Close() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
