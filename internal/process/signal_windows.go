//go:build windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Windows cannot deliver POSIX signals; every stop signal name is accepted
// and degrades to an interrupt attempt followed by termination.
var stopSignals = map[string]os.Signal{
	"TERM": os.Interrupt,
	"INT":  os.Interrupt,
	"QUIT": os.Interrupt,
	"HUP":  os.Interrupt,
	"KILL": os.Kill,
	"USR1": os.Interrupt,
	"USR2": os.Interrupt,
}

func parseStopSignal(name string) (os.Signal, error) {
	key := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "SIG")
	sig, ok := stopSignals[key]
	if !ok {
		return nil, fmt.Errorf("unsupported stop signal %q", name)
	}
	return sig, nil
}

func signalName(sig os.Signal) string {
	return sig.String()
}

func sendStop(cmd *exec.Cmd, sig os.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	// Interrupt is not deliverable to most Windows processes; the error
	// sends Terminate straight to forceKill.
	err := cmd.Process.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func forceKill(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
