package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/color"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"shotdiff/internal/imagediff"
	"shotdiff/internal/testsupport"
)

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// writeTestConfig writes a config rooted in a temp dir that points the API
// at bind.
func writeTestConfig(t *testing.T, bind string) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", base)
	t.Setenv("SHOTDIFF_API_TOKEN", "")
	path := filepath.Join(base, "config.toml")
	content := fmt.Sprintf("[paths]\ndata_dir = %q\nlog_dir = %q\nasset_dir = %q\napi_bind = %q\n",
		filepath.Join(base, "data"), filepath.Join(base, "logs"), filepath.Join(base, "assets"), bind)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigInitAndValidate(t *testing.T) {
	configPath := writeTestConfig(t, "127.0.0.1:7488")

	out, _, err := runCLI(t, []string{"config", "validate"}, configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
}

func TestConfigShowRedactsToken(t *testing.T) {
	configPath := writeTestConfig(t, "127.0.0.1:7488")
	t.Setenv("SHOTDIFF_API_TOKEN", "s3cret")

	out, _, err := runCLI(t, []string{"config", "show"}, configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "<redacted>")
	if strings.Contains(out, "s3cret") {
		t.Fatalf("token leaked in output: %s", out)
	}
}

func TestCompareWritesMask(t *testing.T) {
	dir := t.TempDir()
	base := testsupport.WritePNG(t, filepath.Join(dir, "base.png"), 4, 4, testsupport.Solid(color.NRGBA{A: 255}))
	cmp := testsupport.WritePNG(t, filepath.Join(dir, "cmp.png"), 4, 4, testsupport.Solid(color.NRGBA{R: 255, A: 255}))
	mask := filepath.Join(dir, "out", "mask.png")

	out, _, err := runCLI(t, []string{"compare", base, cmp, "--tolerance", "0", "-o", mask, "--json"}, "")
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if payload["score"] != imagediff.MaxPixelScore {
		t.Fatalf("expected every pixel to differ, got %v", payload["score"])
	}
	if _, err := os.Stat(mask); err != nil {
		t.Fatalf("expected mask at %s: %v", mask, err)
	}
}

func TestBuildsRendersTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/builds" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"builds":[{"id":12,"repositoryId":3,"number":4,"name":"default","status":"complete","conclusion":"diffDetected","reviewStatus":null}]}`))
	}))
	defer srv.Close()

	configPath := writeTestConfig(t, strings.TrimPrefix(srv.URL, "http://"))
	out, _, err := runCLI(t, []string{"builds"}, configPath)
	if err != nil {
		t.Fatalf("builds: %v", err)
	}
	requireContains(t, out, "Diff Detected")
	requireContains(t, out, "Complete")
	requireContains(t, out, "12")
}

func TestShowWaitsForFinalStatusAndFiltersDiffs(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/builds/5":
			status := "progress"
			if polls.Add(1) >= 3 {
				status = "complete"
			}
			fmt.Fprintf(w, `{"build":{"id":5,"repositoryId":1,"number":2,"status":%q,"createdAt":"2026-03-01T10:00:00.000Z"}}`, status)
		case "/api/builds/5/diffs":
			_, _ = w.Write([]byte(`{"diffs":[{"id":1,"name":"home","status":"changed","jobStatus":"complete"},{"id":2,"name":"about","status":"unchanged","jobStatus":"complete"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	configPath := writeTestConfig(t, strings.TrimPrefix(srv.URL, "http://"))
	out, _, err := runCLI(t, []string{"show", "5", "--wait", "--interval", "10ms", "--status", "changed", "--json"}, configPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if polls.Load() < 3 {
		t.Fatalf("expected show to poll until complete, polled %d times", polls.Load())
	}
	var payload struct {
		Build struct {
			Status string `json:"status"`
		} `json:"build"`
		Diffs []struct {
			Name string `json:"name"`
		} `json:"diffs"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if payload.Build.Status != "complete" || len(payload.Diffs) != 1 || payload.Diffs[0].Name != "home" {
		t.Fatalf("unexpected output %+v", payload)
	}

	if _, _, err := runCLI(t, []string{"show", "5", "--status", "blurry"}, configPath); err == nil {
		t.Fatal("expected unknown diff status to be rejected")
	}
}

func TestLocalTimeFormatsAPITimestamps(t *testing.T) {
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).Local().Format("2006-01-02 15:04:05")
	if got := localTime("2026-03-01T10:00:00.000Z"); got != want {
		t.Fatalf("localTime = %q, want %q", got, want)
	}
	if got := localTime("garbage"); got != "garbage" {
		t.Fatalf("localTime kept %q, want raw value", got)
	}
}

func TestStatusFallsBackWhenDaemonDown(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	configPath := writeTestConfig(t, addr)
	out, _, err := runCLI(t, []string{"status"}, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "Pending")
}

func TestHumanLabel(t *testing.T) {
	cases := map[string]string{
		"":             "-",
		"diffDetected": "Diff Detected",
		"pending":      "Pending",
		"already_done": "Already Done",
	}
	for in, want := range cases {
		if got := humanLabel(in); got != want {
			t.Fatalf("humanLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestParseScreenshotArg(t *testing.T) {
	name, path := parseScreenshotArg("home=/tmp/a.png")
	if name != "home" || path != "/tmp/a.png" {
		t.Fatalf("unexpected split %q %q", name, path)
	}
	name, path = parseScreenshotArg("/tmp/signup.png")
	if name != "signup" || path != "/tmp/signup.png" {
		t.Fatalf("unexpected default %q %q", name, path)
	}
}
