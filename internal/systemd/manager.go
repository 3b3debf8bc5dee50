// Package systemd integrates svisor with systemd: unit control over D-Bus for
// the service subcommands, and sd_notify readiness and watchdog for the daemon.
package systemd

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
)

// DefaultUnit is the unit name svisor is installed under.
const DefaultUnit = "svisor.service"

// UnitStatus is the subset of unit properties svisor reports.
type UnitStatus struct {
	Unit        string
	ActiveState string
	SubState    string
	MainPID     uint32
}

// Manager handles systemd unit lifecycle operations via D-Bus.
type Manager struct {
	conn *dbus.Conn
}

// NewManager connects to the system bus, or the user bus when user is set.
func NewManager(ctx context.Context, user bool) (*Manager, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	if user {
		conn, err = dbus.NewUserConnectionContext(ctx)
	} else {
		conn, err = dbus.NewSystemConnectionContext(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	return &Manager{conn: conn}, nil
}

// UnitName appends ".service" when name has no unit suffix.
func UnitName(name string) string {
	if name == "" {
		return DefaultUnit
	}
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}

// GetServiceStatus reads the state properties of a unit.
func (m *Manager) GetServiceStatus(ctx context.Context, unit string) (UnitStatus, error) {
	unit = UnitName(unit)
	props, err := m.conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		return UnitStatus{}, fmt.Errorf("failed to read %s: %w", unit, err)
	}

	st := UnitStatus{Unit: unit}
	if v, ok := props["ActiveState"].(string); ok {
		st.ActiveState = v
	}
	if v, ok := props["SubState"].(string); ok {
		st.SubState = v
	}

	// MainPID lives on the Service interface, not the Unit one.
	if prop, err := m.conn.GetServicePropertyContext(ctx, unit, "MainPID"); err == nil {
		if pid, ok := prop.Value.Value().(uint32); ok {
			st.MainPID = pid
		}
	}
	return st, nil
}

// StartService starts a unit and waits for the job to finish.
func (m *Manager) StartService(ctx context.Context, unit string) error {
	return m.runJob(ctx, "start", unit, m.conn.StartUnitContext)
}

// StopService stops a unit and waits for the job to finish.
func (m *Manager) StopService(ctx context.Context, unit string) error {
	return m.runJob(ctx, "stop", unit, m.conn.StopUnitContext)
}

// RestartService restarts a unit and waits for the job to finish.
func (m *Manager) RestartService(ctx context.Context, unit string) error {
	return m.runJob(ctx, "restart", unit, m.conn.RestartUnitContext)
}

type jobFunc func(ctx context.Context, name, mode string, ch chan<- string) (int, error)

func (m *Manager) runJob(ctx context.Context, verb, unit string, fn jobFunc) error {
	unit = UnitName(unit)
	done := make(chan string, 1)
	if _, err := fn(ctx, unit, "replace", done); err != nil {
		return fmt.Errorf("failed to %s %s: %w", verb, unit, err)
	}

	select {
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("%s %s: job %s", verb, unit, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cleanly closes the D-Bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}
