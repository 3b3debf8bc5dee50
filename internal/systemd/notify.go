package systemd

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/svisor/internal/logging"
)

// Notifier reports daemon state to systemd through sd_notify. Outside of a
// Type=notify unit every call is a no-op.
type Notifier struct {
	logger *slog.Logger
	notify func(state string) (bool, error)
	ready  atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNotifier creates a notifier that writes to $NOTIFY_SOCKET.
func NewNotifier() *Notifier {
	return &Notifier{
		logger: logging.GetLogger("systemd"),
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
	}
}

func (n *Notifier) send(state string) bool {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return false
	}
	return sent
}

// Ready signals that startup finished.
func (n *Notifier) Ready() {
	if n.send(daemon.SdNotifyReady) {
		n.ready.Store(true)
		n.logger.Debug("Notified systemd of readiness")
	}
}

// IsReady reports whether READY=1 was delivered.
func (n *Notifier) IsReady() bool {
	return n.ready.Load()
}

// Reloading signals that the configuration is being reloaded. Call Ready when done.
func (n *Notifier) Reloading() {
	n.send(daemon.SdNotifyReloading)
}

// Stopping signals that shutdown began.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(msg string) {
	n.send("STATUS=" + msg)
}

// StartWatchdog pings the watchdog at half the configured interval until ctx
// ends or Stop is called. It does nothing when WatchdogSec is unset.
func (n *Notifier) StartWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.logger.Warn("Failed to read watchdog settings", "error", err)
		return
	}
	if interval <= 0 {
		return
	}
	n.startPinger(ctx, interval/2)
}

func (n *Notifier) startPinger(ctx context.Context, every time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return
	}
	ctx, n.cancel = context.WithCancel(ctx)

	n.logger.Info("Watchdog enabled", "interval", every)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n.send(daemon.SdNotifyWatchdog)
			}
		}
	}()
}

// Stop ends the watchdog loop.
func (n *Notifier) Stop() {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	n.wg.Wait()
}
