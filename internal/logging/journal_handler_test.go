package logging

import (
	"log/slog"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

func TestFieldName(t *testing.T) {
	tests := []struct {
		groups []string
		key    string
		want   string
	}{
		{nil, "name", "NAME"},
		{nil, "remote_addr", "REMOTE_ADDR"},
		{nil, "user-agent", "USER_AGENT"},
		{[]string{"http"}, "status", "HTTP_STATUS"},
		{nil, "_private", "PRIVATE"},
		{nil, "2fa", "F_2FA"},
		{nil, "__", ""},
	}
	for _, tt := range tests {
		if got := fieldName(tt.groups, tt.key); got != tt.want {
			t.Errorf("fieldName(%v, %q) = %q, want %q", tt.groups, tt.key, got, tt.want)
		}
	}
}

func TestAddAttrToFields(t *testing.T) {
	fields := map[string]string{"MESSAGE": "original"}
	at := time.Date(2025, 1, 27, 10, 30, 0, 0, time.UTC)

	for _, attr := range []slog.Attr{
		slog.String("name", "web"),
		slog.Int("pid", 4242),
		slog.Bool("gave_up", true),
		slog.Duration("grace", 10*time.Second),
		slog.Time("next_restart_at", at),
		slog.Group("exit", slog.Int("code", 1), slog.String("signal", "SIGTERM")),
		slog.String("message", "attempted override"),
		{},
	} {
		addAttrToFields(fields, attr, nil)
	}

	want := map[string]string{
		"MESSAGE":         "original",
		"NAME":            "web",
		"PID":             "4242",
		"GAVE_UP":         "true",
		"GRACE":           "10s",
		"NEXT_RESTART_AT": "2025-01-27T10:30:00Z",
		"EXIT_CODE":       "1",
		"EXIT_SIGNAL":     "SIGTERM",
	}
	if len(fields) != len(want) {
		t.Errorf("fields = %v, want %v", fields, want)
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("%s = %q, want %q", k, fields[k], v)
		}
	}
}

func TestMapLevelToPriority(t *testing.T) {
	tests := map[slog.Level]journal.Priority{
		slog.LevelDebug:     journal.PriDebug,
		slog.LevelInfo:      journal.PriInfo,
		slog.LevelWarn:      journal.PriWarning,
		slog.LevelError:     journal.PriErr,
		slog.LevelError + 4: journal.PriErr,
	}
	for level, want := range tests {
		if got := mapLevelToPriority(level); got != want {
			t.Errorf("mapLevelToPriority(%v) = %v, want %v", level, got, want)
		}
	}
}

func TestJournalHandlerWithAttrsIsolated(t *testing.T) {
	base := NewJournalHandler(slog.LevelInfo)
	a := base.WithAttrs([]slog.Attr{slog.String("module", "supervisor")}).(*JournalHandler)
	b := base.WithGroup("http").(*JournalHandler)

	if len(base.attrs) != 0 || len(base.groups) != 0 {
		t.Error("base handler was mutated")
	}
	if len(a.attrs) != 1 || len(b.groups) != 1 || len(b.attrs) != 0 {
		t.Errorf("unexpected derived handlers: %+v %+v", a, b)
	}
	if base.WithGroup("") != slog.Handler(base) {
		t.Error("empty group should return the same handler")
	}
}
