package nats

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/smazurov/svisor/internal/control"
	"github.com/smazurov/svisor/internal/events"
)

const requestTimeout = 30 * time.Second

// Executor runs control commands. *control.Controller satisfies it.
type Executor interface {
	Execute(ctx context.Context, cmd control.Command) control.Result
}

// Credentials authenticate against a NATS server. Empty means none.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) options() []nats.Option {
	if c.Username == "" {
		return nil
	}
	return []nats.Option{nats.UserInfo(c.Username, c.Password)}
}

// Bridge publishes event bus events to NATS and answers control requests.
type Bridge struct {
	url      string
	creds    Credentials
	eventBus *events.Bus
	executor Executor
	conn     *nats.Conn
	active   atomic.Pointer[nats.Conn] // read by event handlers without mu
	subs     []*nats.Subscription
	unsubs   []func()
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewBridge creates a new EventBus-to-NATS bridge. A nil executor disables
// the control subjects.
func NewBridge(url string, creds Credentials, eventBus *events.Bus, executor Executor, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bridge{
		url:      url,
		creds:    creds,
		eventBus: eventBus,
		executor: executor,
		logger:   logger.With("component", "nats-bridge"),
	}
}

// Start connects to NATS, forwards process events and serves control subjects.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := append(b.creds.options(),
		nats.Name("svisor-bridge"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("NATS bridge disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.logger.Info("NATS bridge reconnected")
		}),
	)
	conn, err := nats.Connect(b.url, opts...)
	if err != nil {
		return err
	}

	b.conn = conn
	b.active.Store(conn)
	b.logger.Info("NATS bridge connected", "url", b.url)

	if b.executor != nil {
		sub, err := conn.Subscribe(SubjectControlPrefix+".*", b.handleControl)
		if err != nil {
			b.cleanup()
			return err
		}
		b.subs = append(b.subs, sub)
		// Requests are answered only once the server knows about the subscription
		if err := conn.Flush(); err != nil {
			b.cleanup()
			return err
		}
	}

	if b.eventBus != nil {
		b.unsubs = append(b.unsubs,
			b.eventBus.Subscribe(func(e events.ProcessStateChangedEvent) {
				b.publish(SubjectProcessState(e.Name), e)
			}),
			b.eventBus.Subscribe(func(e events.ProcessCrashedEvent) {
				b.publish(SubjectProcessCrashed(e.Name), e)
			}),
			b.eventBus.Subscribe(func(e events.SupervisorLifecycleEvent) {
				b.publish(SubjectLifecycle, e)
			}),
		)
	}

	b.logger.Info("NATS bridge serving control subjects", "prefix", SubjectControlPrefix)
	return nil
}

func (b *Bridge) publish(subject string, v any) {
	conn := b.active.Load()
	if conn == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Warn("Failed to marshal event", "subject", subject, "error", err)
		return
	}
	if err := conn.Publish(subject, data); err != nil {
		b.logger.Debug("Failed to publish event", "subject", subject, "error", err)
	}
}

// handleControl executes one control request and replies with the result.
func (b *Bridge) handleControl(msg *nats.Msg) {
	var res control.Result
	cmd, err := UnmarshalCommand(msg.Subject, msg.Data)
	if err != nil {
		res = control.Result{OK: false, Code: control.CodeInvalidCommand, Message: err.Error()}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		res = b.executor.Execute(ctx, cmd)
		cancel()
	}

	b.logger.Debug("Handled control request", "action", cmd.Action, "name", cmd.Name, "code", res.Code)

	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		b.logger.Warn("Failed to marshal control result", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		b.logger.Warn("Failed to respond to control request", "error", err)
	}
}

// cleanup unsubscribes and closes connection.
func (b *Bridge) cleanup() {
	b.active.Store(nil)
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil

	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil

	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

// Stop closes the bridge connection.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cleanup()
	b.logger.Info("NATS bridge stopped")
}

// IsConnected returns true if the bridge is connected to NATS.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}
