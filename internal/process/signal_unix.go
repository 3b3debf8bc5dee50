//go:build !windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

var stopSignals = map[string]syscall.Signal{
	"TERM": syscall.SIGTERM,
	"INT":  syscall.SIGINT,
	"QUIT": syscall.SIGQUIT,
	"HUP":  syscall.SIGHUP,
	"KILL": syscall.SIGKILL,
	"USR1": syscall.SIGUSR1,
	"USR2": syscall.SIGUSR2,
}

// parseStopSignal accepts names with or without the SIG prefix.
func parseStopSignal(name string) (os.Signal, error) {
	key := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "SIG")
	sig, ok := stopSignals[key]
	if !ok {
		return nil, fmt.Errorf("unsupported stop signal %q", name)
	}
	return sig, nil
}

func signalName(sig os.Signal) string {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return sig.String()
	}
	for name, candidate := range stopSignals {
		if candidate == s {
			return "SIG" + name
		}
	}
	if s == syscall.SIGSEGV {
		return "SIGSEGV"
	}
	if s == syscall.SIGABRT {
		return "SIGABRT"
	}
	return fmt.Sprintf("signal %d", int(s))
}

// sendStop signals the whole process group of cmd.
func sendStop(cmd *exec.Cmd, sig os.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	s, ok := sig.(syscall.Signal)
	if !ok {
		return cmd.Process.Signal(sig)
	}
	err := syscall.Kill(-cmd.Process.Pid, s)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func forceKill(cmd *exec.Cmd) error {
	return sendStop(cmd, syscall.SIGKILL)
}
