package control

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientRoutes(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Result{OK: true, Code: CodeOK, Message: "done"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := t.Context()

	calls := []func() (Result, error){
		func() (Result, error) { return c.Status(ctx, "") },
		func() (Result, error) { return c.Status(ctx, "web") },
		func() (Result, error) { return c.Start(ctx, "web") },
		func() (Result, error) { return c.Stop(ctx, "all") },
		func() (Result, error) { return c.Restart(ctx, "web") },
		func() (Result, error) { return c.StopAll(ctx) },
	}
	for i, call := range calls {
		res, err := call()
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
		if !res.OK {
			t.Errorf("call %d: unexpected result %+v", i, res)
		}
	}

	want := []string{
		"GET /api/processes",
		"GET /api/processes/web",
		"POST /api/processes/web/start",
		"POST /api/processes/all/stop",
		"POST /api/processes/web/restart",
		"POST /api/processes/stop-all",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("routes:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestClientDecodesFailureResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(Result{Code: CodeUnknownProcess, Message: `process "db" not found`})
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).Start(t.Context(), "db")
	if err != nil {
		t.Fatalf("expected result, got error %v", err)
	}
	if res.OK || res.Code != CodeUnknownProcess {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestClientProblemResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"title":"Unauthorized","status":401,"detail":"Authentication required"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Status(t.Context(), "")
	if err == nil || !strings.Contains(err.Error(), "Authentication required") {
		t.Errorf("expected problem detail in error, got %v", err)
	}
}

func TestClientBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(Result{OK: true, Code: CodeOK})
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, WithBasicAuth("admin", "secret")).Status(t.Context(), ""); err != nil {
		t.Errorf("expected auth to pass, got %v", err)
	}
	if _, err := NewClient(srv.URL).Status(t.Context(), ""); err == nil {
		t.Error("expected failure without credentials")
	}
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	_, err := NewClient(addr).Status(t.Context(), "")
	if !errors.Is(err, ErrServiceUnreachable) {
		t.Errorf("expected ErrServiceUnreachable, got %v", err)
	}
}

func TestClientRequiresName(t *testing.T) {
	if _, err := NewClient("").Start(t.Context(), ""); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := NewClient("").Execute(t.Context(), Command{Action: "reload"}); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestNewClientAddress(t *testing.T) {
	if c := NewClient(""); c.baseURL != "http://"+DefaultAddress {
		t.Errorf("unexpected default base %q", c.baseURL)
	}
	if c := NewClient("https://example.test:9001/"); c.baseURL != "https://example.test:9001" {
		t.Errorf("unexpected base %q", c.baseURL)
	}
}

func TestClientLogs(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		if r.URL.Path != "/api/logs" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("after") == "7" {
			_, _ = w.Write([]byte(`{"entries":[],"count":0,"last_seq":7}`))
			return
		}
		_, _ = w.Write([]byte(`{"entries":[{"seq":7,"timestamp":"2025-01-27T10:30:00.123Z","level":"info","module":"supervisor","message":"Process started","attributes":{"name":"web"}}],"count":1,"last_seq":7}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	page, err := c.Logs(t.Context(), LogsQuery{Module: "supervisor", Limit: 50})
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(page.Entries) != 1 || page.LastSeq != 7 {
		t.Fatalf("unexpected page %+v", page)
	}
	entry := page.Entries[0]
	if entry.Message != "Process started" || entry.Attributes["name"] != "web" || entry.Timestamp.IsZero() {
		t.Errorf("unexpected entry %+v", entry)
	}

	page, err = c.Logs(t.Context(), LogsQuery{After: page.LastSeq})
	if err != nil {
		t.Fatalf("Logs after: %v", err)
	}
	if len(page.Entries) != 0 || page.LastSeq != 7 {
		t.Errorf("poll page = %+v, want empty at seq 7", page)
	}

	want := []string{"limit=50&module=supervisor", "after=7"}
	if strings.Join(queries, " ") != strings.Join(want, " ") {
		t.Errorf("queries = %v, want %v", queries, want)
	}
}

func TestClientLogsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"title":"Unauthorized","status":401,"detail":"Authentication required"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Logs(t.Context(), LogsQuery{})
	if err == nil || !strings.Contains(err.Error(), "Authentication required") {
		t.Errorf("expected problem detail in error, got %v", err)
	}
}
