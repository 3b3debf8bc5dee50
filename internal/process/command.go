package process

import (
	"errors"
	"os/exec"
	"strings"
	"syscall"
)

// SplitCommand splits a command string into arguments.
// Handles quoted strings and basic escaping.
func SplitCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	hasToken := false
	quoteChar := rune(0)

	command = strings.TrimSpace(command)
	runes := []rune(command)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				hasToken = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case (r == ' ' || r == '\t') && !inQuote:
			if hasToken {
				args = append(args, current.String())
				current.Reset()
				hasToken = false
			}
		case r == '\\' && i+1 < len(runes) && quoteChar != '\'':
			i++
			current.WriteRune(runes[i])
			hasToken = true
		default:
			current.WriteRune(r)
			hasToken = true
		}
	}

	if inQuote {
		return nil, errors.New("unclosed quote in command")
	}

	if hasToken {
		args = append(args, current.String())
	}

	return args, nil
}

// exitCodeFromError extracts exit code from a Wait error.
// Signalled processes report 128 plus the signal number.
func exitCodeFromError(err error) (int, string) {
	if err == nil {
		return 0, ""
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal()), signalName(ws.Signal())
		}
		return exitErr.ExitCode(), ""
	}
	return 1, ""
}
