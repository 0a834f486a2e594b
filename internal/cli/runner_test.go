package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStatusCallsAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("expected GET, got %s", r.Method)
		}
		_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-08-20T00:00:00Z","status":"ok","tracked":3}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient(srv.URL, srv.Client(), out, errOut)
	if code := r.Run(context.Background(), []string{"status"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "ok\ttracked=3") {
		t.Fatalf("unexpected status output: %s", out.String())
	}

	out.Reset()
	if code := r.Run(context.Background(), []string{"status", "--json"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), `"tracked":3`) {
		t.Fatalf("expected JSON output, got: %s", out.String())
	}
}

func TestEntitiesTabularOutput(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/entities", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-08-20T00:00:00Z","entities":[{"entity_id":"%1","pid":4242,"visible":true},{"entity_id":"%2","visible":false}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient(srv.URL, srv.Client(), out, errOut)
	if code := r.Run(context.Background(), []string{"entities"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "%1\t4242\tvisible") {
		t.Fatalf("unexpected entities output: %s", out.String())
	}
	if !strings.Contains(out.String(), "%2\t-\thidden") {
		t.Fatalf("unresolved pid must render as dash: %s", out.String())
	}
}

func TestHistoryPassesLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/cycles", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Fatalf("expected limit=5, got %q", got)
		}
		_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-08-20T00:00:00Z","cycles":[{"cycle_id":"c1","triggered_by":"manual","started_at":"2026-08-20T00:00:00Z","entity_count":2,"plan_size":3}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient(srv.URL, srv.Client(), out, errOut)
	if code := r.Run(context.Background(), []string{"history", "-limit", "5"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "c1\t2026-08-20T00:00:00Z\tmanual\tentities=2\tplan=3\tok") {
		t.Fatalf("unexpected history output: %s", out.String())
	}
}

func TestHistoryRejectsNonPositiveLimit(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient("http://unused", nil, out, errOut)
	if code := r.Run(context.Background(), []string{"history", "-limit", "0"}); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "-limit must be positive") {
		t.Fatalf("unexpected stderr: %s", errOut.String())
	}
}

func TestDispatchesRequiresCycleID(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient("http://unused", nil, out, errOut)
	if code := r.Run(context.Background(), []string{"dispatches"}); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "usage: panenap dispatches") {
		t.Fatalf("unexpected stderr: %s", errOut.String())
	}
}

func TestDispatchesCallsAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/cycles/c1/dispatches", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-08-20T00:00:00Z","cycle_id":"c1","dispatches":[{"dispatch_id":"d1","pid":100,"action":"suspend","result_code":"ok","dispatched_at":"2026-08-20T00:00:00Z"},{"dispatch_id":"d2","pid":200,"action":"resume","result_code":"gone","error":"no such process","dispatched_at":"2026-08-20T00:00:00Z"}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient(srv.URL, srv.Client(), out, errOut)
	if code := r.Run(context.Background(), []string{"dispatches", "c1"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "100\tsuspend\tok") {
		t.Fatalf("unexpected dispatches output: %s", out.String())
	}
	if !strings.Contains(out.String(), "200\tresume\tgone\tno such process") {
		t.Fatalf("error detail missing: %s", out.String())
	}
}

func TestRunAndDrainPost(t *testing.T) {
	mux := http.NewServeMux()
	for _, path := range []string{"/v1/run", "/v1/drain"} {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Fatalf("expected POST, got %s", r.Method)
			}
			_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-08-20T00:00:00Z","cycle_id":"c9","plan_size":2,"resumed":1,"suspended":1,"failed":0}`)
		})
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient(srv.URL, srv.Client(), out, errOut)
	if code := r.Run(context.Background(), []string{"run"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "c9\tplan=2\tresumed=1\tsuspended=1\tfailed=0") {
		t.Fatalf("unexpected run output: %s", out.String())
	}
	out.Reset()
	if code := r.Run(context.Background(), []string{"drain"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if out.Len() == 0 {
		t.Fatalf("drain produced no output")
	}
}

func TestAPIErrorSurfacesCodeAndMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/run", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-08-20T00:00:00Z","error":{"code":"cycle_failed","message":"process table snapshot unavailable"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient(srv.URL, srv.Client(), out, errOut)
	if code := r.Run(context.Background(), []string{"run"}); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(errOut.String(), "cycle_failed: process table snapshot unavailable") {
		t.Fatalf("unexpected stderr: %s", errOut.String())
	}
}

func TestUnknownCommandPrintsUsage(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient("http://unused", nil, out, errOut)
	if code := r.Run(context.Background(), []string{"bogus"}); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "unknown command: bogus") {
		t.Fatalf("unexpected stderr: %s", errOut.String())
	}
	if !strings.Contains(errOut.String(), "usage: panenap") {
		t.Fatalf("usage line missing: %s", errOut.String())
	}
}
