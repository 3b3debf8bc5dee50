package nats

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smazurov/svisor/internal/control"
)

// Subject prefixes for NATS topics.
const (
	SubjectProcessesPrefix = "svisor.processes"
	SubjectControlPrefix   = "svisor.control"
	SubjectLifecycle       = "svisor.supervisor.lifecycle"
)

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_")

// SubjectToken makes a process name safe to use as one subject token.
func SubjectToken(name string) string {
	return tokenReplacer.Replace(name)
}

// SubjectProcessState returns the subject for state transitions of a process.
func SubjectProcessState(name string) string {
	return fmt.Sprintf("%s.%s.state", SubjectProcessesPrefix, SubjectToken(name))
}

// SubjectProcessCrashed returns the subject for unexpected exits of a process.
func SubjectProcessCrashed(name string) string {
	return fmt.Sprintf("%s.%s.crashed", SubjectProcessesPrefix, SubjectToken(name))
}

// SubjectControl returns the request subject for a control action.
func SubjectControl(action control.Action) string {
	return fmt.Sprintf("%s.%s", SubjectControlPrefix, action)
}

// UnmarshalCommand parses a control request. The action comes from the
// subject when the payload omits it; an empty payload is a bare command.
func UnmarshalCommand(subject string, data []byte) (control.Command, error) {
	var cmd control.Command
	if len(data) > 0 {
		if err := json.Unmarshal(data, &cmd); err != nil {
			return control.Command{}, fmt.Errorf("invalid control request: %w", err)
		}
	}
	if cmd.Action == "" {
		cmd.Action = control.Action(strings.TrimPrefix(subject, SubjectControlPrefix+"."))
	}
	return cmd, nil
}
