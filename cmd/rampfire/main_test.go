package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/torosent/rampfire/internal/config"
)

// fakeKeystone issues "tok" on POST and accepts GETs carrying it.
type fakeKeystone struct {
	issued     atomic.Int64
	validated  atomic.Int64
	rejectAuth bool
}

func (f *fakeKeystone) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v3/auth/tokens" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodPost:
		f.issued.Add(1)
		if f.rejectAuth {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("X-Subject-Token", "tok")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"token":{"expires_at":"2099-01-01T00:00:00Z"}}`)
	case http.MethodGet:
		f.validated.Add(1)
		if r.Header.Get("X-Auth-Token") != "tok" || r.Header.Get("X-Subject-Token") != "tok" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// lockedBuffer is shared by the logger and the reporter goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) Bytes() []byte {
	return []byte(b.String())
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvPassword, "")
	t.Setenv(config.EnvToken, "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
}

func quickArgs(url string, extra ...string) []string {
	args := []string{
		"--url", url,
		"--password", "secret",
		"--duration", "150ms",
		"--warmup", "0s",
		"--report-interval", "50ms",
		"--no-color",
	}
	return append(args, extra...)
}

func TestRunIssueScenarioJSON(t *testing.T) {
	clearEnv(t)
	fake := &fakeKeystone{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	var stdout, stderr lockedBuffer
	err := run(context.Background(), quickArgs(srv.URL, "--levels", "1,2", "--output", "json"), &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v\nstderr:\n%s", err, stderr.String())
	}

	out := stdout.Bytes()
	if !gjson.ValidBytes(out) {
		t.Fatalf("stdout is not a JSON document:\n%s", out)
	}
	if got := gjson.GetBytes(out, "levels.#").Int(); got != 2 {
		t.Fatalf("levels = %d, want 2", got)
	}
	runID := gjson.GetBytes(out, "run_id").String()
	if runID == "" {
		t.Error("run_id missing")
	}
	for i, want := range []int64{1, 2} {
		level := gjson.GetBytes(out, fmt.Sprintf("levels.%d", i))
		if level.Get("concurrency").Int() != want {
			t.Errorf("level %d concurrency = %d, want %d", i, level.Get("concurrency").Int(), want)
		}
		if level.Get("run_id").String() != runID {
			t.Errorf("level %d run_id = %q, want %q", i, level.Get("run_id").String(), runID)
		}
		if level.Get("stats.count").Int() == 0 {
			t.Errorf("level %d has no measurements", i)
		}
		if level.Get("stats.failures").Int() != 0 {
			t.Errorf("level %d failures = %d", i, level.Get("stats.failures").Int())
		}
	}
	if fake.issued.Load() == 0 {
		t.Error("no issue requests reached the server")
	}
	// Per-level summary lines go to stderr so stdout stays parseable.
	if !strings.Contains(stderr.String(), "1 start_time: ") {
		t.Errorf("level summary line missing from stderr:\n%s", stderr.String())
	}
}

func TestRunValidateScenarioText(t *testing.T) {
	clearEnv(t)
	fake := &fakeKeystone{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	var stdout, stderr lockedBuffer
	err := run(context.Background(), quickArgs(srv.URL, "--scenario", "validate"), &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v\nstderr:\n%s", err, stderr.String())
	}
	if fake.issued.Load() != 1 {
		t.Errorf("issued = %d, want exactly one setup call", fake.issued.Load())
	}
	if fake.validated.Load() == 0 {
		t.Error("no validate requests reached the server")
	}
	out := stdout.String()
	for _, want := range []string{"1 start_time: ", "--- Ramp Results ---", "Concurrency 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
}

func TestRunValidateWithStaticToken(t *testing.T) {
	clearEnv(t)
	fake := &fakeKeystone{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	args := []string{
		"--url", srv.URL, "--scenario", "validate", "--token", "tok",
		"--duration", "100ms", "--warmup", "0s", "--output", "yaml",
	}
	var stdout, stderr lockedBuffer
	if err := run(context.Background(), args, &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v\nstderr:\n%s", err, stderr.String())
	}
	if fake.issued.Load() != 0 {
		t.Errorf("static token should skip issuing, issued = %d", fake.issued.Load())
	}
	if !strings.Contains(stdout.String(), "run_id:") {
		t.Errorf("expected YAML report:\n%s", stdout.String())
	}
}

func TestRunValidateSetupFailureAborts(t *testing.T) {
	clearEnv(t)
	fake := &fakeKeystone{rejectAuth: true}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	var stdout, stderr lockedBuffer
	err := run(context.Background(), quickArgs(srv.URL, "--scenario", "validate"), &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "acquire subject token") {
		t.Fatalf("run() error = %v, want setup failure", err)
	}
	if fake.validated.Load() != 0 {
		t.Error("no level should start after a setup failure")
	}
	if stdout.Len() != 0 {
		t.Errorf("nothing should be emitted, got:\n%s", stdout.String())
	}
}

func TestRunRecordsFailures(t *testing.T) {
	clearEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var stdout, stderr lockedBuffer
	err := run(context.Background(), quickArgs(srv.URL, "--output", "json", "--log-errors"), &stdout, &stderr)
	if err != nil {
		t.Fatalf("failures must not abort the run, got %v", err)
	}
	stats := gjson.GetBytes(stdout.Bytes(), "levels.0.stats")
	if stats.Get("count").Int() == 0 || stats.Get("count").Int() != stats.Get("failures").Int() {
		t.Errorf("expected every sample to fail: %s", stats.Raw)
	}
	if got := stats.Get(`failure_reasons.HTTP 503`).Int(); got != stats.Get("failures").Int() {
		t.Errorf("failure_reasons = %s", stats.Get("failure_reasons").Raw)
	}
	if !strings.Contains(stderr.String(), "request failed") {
		t.Errorf("--log-errors should log failures:\n%s", stderr.String())
	}
}

func TestRunAppendsResultsFile(t *testing.T) {
	clearEnv(t)
	srv := httptest.NewServer(&fakeKeystone{})
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "results.csv")
	var stdout, stderr lockedBuffer
	if err := run(context.Background(), quickArgs(srv.URL, "--levels", "1,3", "--results-file", path), &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("results file has %d lines, want header + 2:\n%s", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "run_id,") {
		t.Errorf("header = %q", lines[0])
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	clearEnv(t)
	srv := httptest.NewServer(&fakeKeystone{})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr lockedBuffer
	err := run(ctx, quickArgs(srv.URL), &stdout, &stderr)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("run() error = %v, want context.Canceled", err)
	}
	if !strings.Contains(stdout.String(), "Levels:            0") {
		t.Errorf("an empty report should still be emitted:\n%s", stdout.String())
	}
}

func TestRunHelpAndValidation(t *testing.T) {
	clearEnv(t)
	var stdout, stderr lockedBuffer
	if err := run(context.Background(), []string{"--help"}, &stdout, &stderr); err != nil {
		t.Errorf("--help should succeed, got %v", err)
	}

	err := run(context.Background(), []string{"--levels", "0"}, &stdout, &stderr)
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("run() error = %v, want ValidationError", err)
	}
}

func TestRunMetricsServerBindFailure(t *testing.T) {
	clearEnv(t)
	srv := httptest.NewServer(&fakeKeystone{})
	defer srv.Close()

	var stdout, stderr lockedBuffer
	err := run(context.Background(), quickArgs(srv.URL, "--metrics-addr", "bogus"), &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "metrics server") {
		t.Fatalf("run() error = %v, want metrics server error", err)
	}
}
