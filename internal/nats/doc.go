// Package nats mirrors svisor's process events onto NATS and serves the
// control commands over request/reply, so a fleet of supervisors can be
// watched and driven from one place.
//
// # Architecture
//
//   - Server: optional embedded NATS server (svisor --nats-embedded)
//   - Bridge: subscribes to the event bus and publishes to NATS, and answers
//     control requests with the controller
//   - ControlClient: request/reply client used by svisor status/start/stop --nats
//
// # Subject Hierarchy
//
//	svisor.processes.{name}.state      # every state transition
//	svisor.processes.{name}.crashed    # unexpected exits
//	svisor.supervisor.lifecycle        # started, reloaded, stopping
//	svisor.control.{action}            # request/reply: status, start, stop, restart, stop-all
//
// Process names are used as a single subject token; '.', '*' and '>' are
// replaced with '_'.
//
// # Debugging with nats CLI
//
//	nats sub "svisor.>" -s nats://localhost:4222
//
//	nats req svisor.control.restart '{"action":"restart","name":"web"}' \
//	  -s nats://localhost:4222
//
// # Message Formats
//
// State (svisor.processes.{name}.state):
//
//	{
//	  "name": "web",
//	  "old_state": "running",
//	  "new_state": "backoff",
//	  "consecutive_failures": 1,
//	  "restart_count": 3,
//	  "last_exit_code": 1,
//	  "next_restart_at": "2025-01-27T10:30:01Z",
//	  "timestamp": "2025-01-27T10:30:00Z"
//	}
//
// Control reply (svisor.control.{action}):
//
//	{
//	  "ok": false,
//	  "code": "unknown_process",
//	  "message": "process \"ghost\" not found"
//	}
package nats
