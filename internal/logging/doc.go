// Package logging provides structured logging with per-module log level configuration.
//
// # Outputs
//
// Every module logger writes through one handler chain:
//   - systemd journal, when journald is reachable
//   - stdout, unless systemd already connected stdout to the journal
//   - a lumberjack-rotated file, when Config.File is set
//   - an in-memory ring buffer, always
//
// The ring buffer keeps the last 1000 entries, each with a monotonic Seq.
// The control API serves it at /api/logs (poll with ?after=<seq>) and
// /api/logs/stream, and `svisor logs -f` follows it. Only svisor's own logs
// go here; child stdout/stderr are appended raw to the per-process files.
//
// # Usage
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"supervisor": "debug"},
//	})
//
//	logger := logging.GetLogger("supervisor")
//	logger.Info("Process started", "name", "web", "pid", 4242)
//
// Loggers obtained before Initialize are rebuilt in place, so package-level
// GetLogger calls are fine.
//
// # Levels
//
// Module levels override the global level for that module only. Both can be
// changed at runtime with SetModuleLevel (PUT /api/logs/levels); the change
// is not written back to the config file.
//
// # Viewing Logs
//
//	journalctl -t svisor -f
//	journalctl -t svisor -p err
//	journalctl -t svisor MODULE=supervisor NAME=web
//
// Attribute keys become journal fields: uppercased, with anything outside
// [A-Z0-9_] replaced by '_'.
//
// # Configuration
//
//	[logging]
//	level = "info"
//	format = "json"
//	file = "/var/log/svisor/svisor.log"
//	max_size_mb = 50
//	max_backups = 5
//	supervisor = "debug"   # any other key is a module level
//	api = "warn"
package logging
