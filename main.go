package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/svisor/cmd"
	"github.com/smazurov/svisor/internal/api"
	"github.com/smazurov/svisor/internal/config"
	"github.com/smazurov/svisor/internal/control"
	"github.com/smazurov/svisor/internal/events"
	"github.com/smazurov/svisor/internal/logging"
	"github.com/smazurov/svisor/internal/metrics"
	"github.com/smazurov/svisor/internal/metrics/collectors"
	"github.com/smazurov/svisor/internal/metrics/exporters"
	"github.com/smazurov/svisor/internal/nats"
	"github.com/smazurov/svisor/internal/process"
	"github.com/smazurov/svisor/internal/systemd"
	"github.com/smazurov/svisor/internal/version"
)

const (
	shutdownTimeout = 2 * time.Minute
	serverStopWait  = 5 * time.Second
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"svisor.toml"`

	// Supervisor settings
	Programs    string `help:"Programs file (TOML or YAML), defaults to the configuration file" toml:"supervisor.programs" env:"PROGRAMS"`
	Env         string `help:"Comma-separated NAME=VALUE pairs exported as ENV_NAME for %(ENV_NAME)s interpolation" toml:"supervisor.env" env:"ENV"`
	WatchConfig bool   `help:"Reload all programs when the programs file changes" default:"false" toml:"supervisor.watch_config" env:"WATCH_CONFIG"`

	// Server settings
	Listen      string `help:"Control API listen address" short:"l" default:"127.0.0.1:9001" toml:"server.listen" env:"SERVER_LISTEN"`
	CORSOrigins string `help:"Comma-separated origins allowed to call the API, empty allows any" default:"" toml:"server.cors_origins" env:"SERVER_CORS_ORIGINS"`

	// Auth settings, empty disables auth
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Metrics settings
	MetricsEnabled bool `help:"Expose Prometheus metrics on /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// NATS settings, empty URL and no embedded server disables the bridge
	NATSURL      string `help:"NATS server to publish events to and serve control requests on" default:"" toml:"nats.url" env:"NATS_URL"`
	NATSEmbedded bool   `help:"Run an embedded NATS server on 127.0.0.1" default:"false" toml:"nats.embedded" env:"NATS_EMBEDDED"`
	NATSPort     int    `help:"Port of the embedded NATS server" default:"4222" toml:"nats.port" env:"NATS_PORT"`

	// Systemd settings
	ServiceUnit string `help:"systemd unit svisor runs under" default:"svisor.service" toml:"systemd.unit" env:"SYSTEMD_UNIT"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingFile       string `help:"Rotated log file for svisor's own output" default:"" toml:"logging.file" env:"LOGGING_FILE"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingAPI        string `help:"API logging level" default:"" toml:"logging.api" env:"LOGGING_API"`
}

// host owns the running supervisor and swaps it on reload.
type host struct {
	mu         sync.Mutex
	sup        *process.Supervisor
	supOpts    *process.Options
	controller *control.Controller
	eventBus   *events.Bus
	notifier   *systemd.Notifier
	logger     *slog.Logger
}

func (h *host) current() *process.Supervisor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sup
}

// swap makes sup the control target.
func (h *host) swap(sup *process.Supervisor) {
	h.mu.Lock()
	h.sup = sup
	h.mu.Unlock()
	h.controller.Replace(sup)
}

func (h *host) startAll(ctx context.Context, sup *process.Supervisor, phase string) {
	if err := sup.StartAll(ctx); err != nil && !errors.Is(err, process.ErrSupervisorStopping) {
		h.logger.Warn("Some processes failed to start", "error", err)
	}
	h.notifier.Ready()
	h.notifier.Status(fmt.Sprintf("supervising %d processes", len(sup.Names())))
	h.eventBus.Publish(events.SupervisorLifecycleEvent{
		Phase:     phase,
		Processes: len(sup.Names()),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// reload replaces every program wholesale: stop all, rebuild, start all.
// Invalid programs leave the running set untouched.
func (h *host) reload(ctx context.Context, specs []process.Spec) {
	sup, err := process.NewSupervisor(specs, h.supOpts)
	if err != nil {
		h.logger.Error("Reloaded programs are invalid, keeping current set", "error", err)
		return
	}

	h.logger.Info("Programs file changed, reloading", "processes", len(specs))
	h.notifier.Reloading()

	if old := h.current(); old != nil {
		stopCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		if err := old.Shutdown(stopCtx); err != nil {
			h.logger.Warn("Errors while stopping previous programs", "error", err)
		}
		cancel()

		for _, name := range old.Names() {
			if !slices.Contains(sup.Names(), name) {
				metrics.DeleteProcessMetrics(name)
			}
		}
	}

	h.swap(sup)
	h.startAll(ctx, sup, "reloaded")
}

func (h *host) shutdown() {
	h.notifier.Stopping()
	sup := h.current()
	if sup == nil {
		return
	}
	h.eventBus.Publish(events.SupervisorLifecycleEvent{
		Phase:     "stopping",
		Processes: len(sup.Names()),
		Timestamp: time.Now().Format(time.RFC3339),
	})

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sup.Shutdown(ctx); err != nil {
		h.logger.Error("Errors while stopping programs", "error", err)
	}
}

// splitList parses a comma-separated option, dropping empty items.
func splitList(s string) []string {
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// configuredNATSURL is where client commands reach the daemon over NATS.
func configuredNATSURL(opts Options) string {
	if opts.NATSURL == "" && opts.NATSEmbedded {
		return nats.LocalURL(opts.NATSPort)
	}
	return opts.NATSURL
}

func main() {
	var cli humacli.CLI

	// Set by the options callback, read by the client subcommands
	var current Options

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}
		current = *opts

		// Initialize logging system, module levels come from the [logging] table
		loggingConfig := config.LoadLoggingConfig(opts.Config)
		loggingConfig.Level = opts.LoggingLevel
		loggingConfig.Format = opts.LoggingFormat
		loggingConfig.File = opts.LoggingFile
		if opts.LoggingSupervisor != "" {
			loggingConfig.Modules["supervisor"] = opts.LoggingSupervisor
		}
		if opts.LoggingAPI != "" {
			loggingConfig.Modules["api"] = opts.LoggingAPI
		}
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")

		// Create event bus for in-process event handling
		eventBus := events.New()
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryFrom(entry))
		})

		metrics.SetBuildInfo(version.Version, version.GitCommit)

		publishState := eventBus.ProcessStateCallback()
		h := &host{
			supOpts: &process.Options{
				Logger: logging.GetLogger("supervisor"),
				OnStateChange: func(name string, oldState, newState process.State, info process.Info) {
					metrics.RecordTransition(name, oldState, newState, info)
					publishState(name, oldState, newState, info)
				},
			},
			controller: control.NewController(nil),
			eventBus:   eventBus,
			notifier:   systemd.NewNotifier(),
			logger:     logger,
		}

		programsPath := opts.Programs
		if programsPath == "" {
			programsPath = opts.Config
		}

		uptimeCollector := collectors.NewUptimeCollector(collectors.StatusFunc(h.controller.Snapshot), 5*time.Second)
		sseExporter := exporters.NewSSEExporter(eventBus, h.controller.Names)

		// Guards the fields below between OnStart and OnStop
		var startMu sync.Mutex
		var (
			runCtx    context.Context
			runCancel context.CancelFunc = func() {}
			server    *api.Server
			unitMgr   *systemd.Manager
			watcher   *config.Watcher[[]process.Spec]
			natsSrv   *nats.Server
			bridge    *nats.Bridge
		)

		hooks.OnStart(func() {
			startMu.Lock()
			runCtx, runCancel = context.WithCancel(context.Background())

			if err := config.ExportEnvFlags(opts.Env); err != nil {
				logger.Error("Invalid --env value", "error", err)
				os.Exit(1)
			}

			specs, err := config.LoadPrograms(programsPath)
			if err != nil {
				logger.Error("Failed to load programs", "path", programsPath, "error", err)
				os.Exit(1)
			}
			sup, err := process.NewSupervisor(specs, h.supOpts)
			if err != nil {
				logger.Error("Invalid programs", "path", programsPath, "error", err)
				os.Exit(1)
			}
			h.swap(sup)

			apiOpts := &api.Options{
				AuthUsername: opts.AuthUsername,
				AuthPassword: opts.AuthPassword,
				Controller:   h.controller,
				EventBus:     eventBus,
				Notifier:     h.notifier,
				ServiceUnit:  opts.ServiceUnit,
				CORSOrigins:  splitList(opts.CORSOrigins),
			}
			if opts.MetricsEnabled {
				apiOpts.PrometheusHandler = exporters.HTTPHandler()
			}
			if mgr, mgrErr := systemd.NewManager(runCtx, false); mgrErr == nil {
				unitMgr = mgr
				apiOpts.SystemdManager = mgr
			} else {
				logger.Debug("systemd D-Bus unavailable, service status disabled", "error", mgrErr)
			}
			server = api.NewServer(apiOpts)

			_ = uptimeCollector.Start(runCtx)
			sseExporter.Start(runCtx)
			h.notifier.StartWatchdog(runCtx)

			natsURL := opts.NATSURL
			if opts.NATSEmbedded {
				natsSrv = nats.NewServer(nats.ServerOptions{
					Port:     opts.NATSPort,
					Username: opts.AuthUsername,
					Password: opts.AuthPassword,
					Logger:   logging.GetLogger("nats"),
				})
				if natsErr := natsSrv.Start(); natsErr != nil {
					logger.Warn("Failed to start embedded NATS server", "error", natsErr)
					natsSrv = nil
				} else if natsURL == "" {
					natsURL = natsSrv.ClientURL()
				}
			}
			if natsURL != "" {
				creds := nats.Credentials{Username: opts.AuthUsername, Password: opts.AuthPassword}
				bridge = nats.NewBridge(natsURL, creds, eventBus, h.controller, logging.GetLogger("nats"))
				if natsErr := bridge.Start(); natsErr != nil {
					logger.Warn("Failed to connect NATS bridge, continuing without it", "url", natsURL, "error", natsErr)
					bridge = nil
				}
			}

			if opts.WatchConfig {
				watcher = config.NewConfigWatcher(programsPath, config.LoadPrograms, logger)
				watcher.OnReload(func(specs []process.Spec) {
					h.reload(runCtx, specs)
				})
				if watchErr := watcher.Start(runCtx); watchErr != nil {
					logger.Warn("Failed to start config watcher, hot-reload disabled", "error", watchErr)
					watcher = nil
				}
			}

			serverErr := make(chan error, 1)
			go func() {
				serverErr <- server.Start(opts.Listen)
			}()
			startMu.Unlock()

			logger.Info("Starting programs", "count", len(specs), "config", programsPath)
			h.startAll(runCtx, sup, "started")

			if startErr := <-serverErr; startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				h.shutdown()
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			startMu.Lock()
			defer startMu.Unlock()

			logger.Info("Shutting down")
			if watcher != nil {
				_ = watcher.Stop()
			}

			if server != nil {
				ctx, cancel := context.WithTimeout(context.Background(), serverStopWait)
				if stopErr := server.Stop(ctx); stopErr != nil {
					logger.Error("Error stopping HTTP server", "error", stopErr)
				}
				cancel()
			}

			// Stop all programs after the API stops accepting requests
			h.shutdown()

			if bridge != nil {
				bridge.Stop()
			}
			if natsSrv != nil {
				natsSrv.Stop()
			}

			_ = uptimeCollector.Stop()
			sseExporter.Stop()
			h.notifier.Stop()
			if unitMgr != nil {
				unitMgr.Close()
			}
			runCancel()
			_ = logging.Close()
		})
	})

	clientConfig := func() cmd.ClientConfig {
		return cmd.ClientConfig{
			Address:  current.Listen,
			Username: current.AuthUsername,
			Password: current.AuthPassword,
			NATSURL:  configuredNATSURL(current),
		}
	}
	cli.Root().AddCommand(cmd.CreateClientCmds(clientConfig)...)
	cli.Root().AddCommand(cmd.CreateLogsCmd(clientConfig))
	cli.Root().AddCommand(cmd.CreateServiceCmd(func() string { return current.ServiceUnit }))
	cli.Root().AddCommand(cmd.CreateVersionCmd())

	// Run the CLI
	cli.Run()
}
