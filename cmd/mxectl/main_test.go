package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/bountymxe/mxe-go/internal/config"
)

func init() {
	color.NoColor = true
}

func TestDefaultIOConfig(t *testing.T) {
	cfg := DefaultIOConfig()
	require.Equal(t, os.Stdout, cfg.Stdout)
	require.Equal(t, os.Stderr, cfg.Stderr)
}

func TestParseValues(t *testing.T) {
	got, err := parseValues([]string{"8", "9", "18446744073709551615"})
	require.NoError(t, err)
	require.Equal(t, []uint64{8, 9, 18446744073709551615}, got)

	for _, bad := range []string{"-1", "x", "1.5", "18446744073709551616"} {
		_, err := parseValues([]string{bad})
		require.Error(t, err, bad)
	}
}

// startSim serves a simulated cluster for the duration of the test and
// returns its URL.
func startSim(t *testing.T) string {
	t.Helper()
	t.Setenv(config.EnvGatewayURL, "")
	t.Setenv(config.EnvAPIKey, "")

	cfg, err := config.Load(nil)
	require.NoError(t, err)
	cfg.Logging.Disable = true

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan net.Addr, 1)
	done := make(chan error, 1)
	f := &serveFlags{listen: "127.0.0.1:0", publishAfter: 2, execDelay: 5 * time.Millisecond, notifyDelay: -1}
	go func() {
		done <- runServeSim(ctx, cfg, f, IOConfig{Stdout: io.Discard, Stderr: io.Discard}, func(a net.Addr) { ready <- a })
	}()

	var addr net.Addr
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve-sim exited: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve-sim did not start")
	}
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return "http://" + addr.String()
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	argv := append([]string{"mxectl", "--env-file", "", "--log-level", "ERROR"}, args...)
	err := run(argv, IOConfig{Stdout: &stdout, Stderr: &stderr})
	return stdout.String(), err
}

func TestComputeAndHistory(t *testing.T) {
	require := require.New(t)
	url := startSim(t)
	journalPath := filepath.Join(t.TempDir(), "sessions.db")

	out, err := execute(t, "compute", "--gateway", url, "--journal", journalPath, "--delivery", "polling", "--json", "8", "9")
	require.NoError(err)
	var res ComputeOutput
	require.NoError(json.Unmarshal([]byte(out), &res))
	require.Equal([]uint64{12_500_000}, res.Values)
	require.Len(res.CorrelationID, 16)

	out, err = execute(t, "compute", "--gateway", url, "--journal", journalPath, "2", "4")
	require.NoError(err)
	require.Contains(out, "bounty:         4000000")

	out, err = execute(t, "history", "--journal", journalPath)
	require.NoError(err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(lines, 3)
	require.Contains(lines[0], "STATE")
	require.Contains(out, res.CorrelationID)
	require.Contains(out, "decrypted")

	out, err = execute(t, "history", "--journal", journalPath, "--id", res.CorrelationID)
	require.NoError(err)
	require.Contains(out, "awaiting_notification")

	out, err = execute(t, "history", "--journal", journalPath, "--json", "-n", "1")
	require.NoError(err)
	var recs []map[string]any
	require.NoError(json.Unmarshal([]byte(out), &recs))
	require.Len(recs, 1)
}

func TestComputeErrors(t *testing.T) {
	t.Setenv(config.EnvGatewayURL, "")
	t.Setenv(config.EnvAPIKey, "")

	_, err := execute(t, "compute", "1", "2")
	require.ErrorContains(t, err, "gateway URL is not set")

	_, err = execute(t, "compute", "--gateway", "http://127.0.0.1:1", "one")
	require.ErrorContains(t, err, "invalid argument")

	_, err = execute(t, "compute", "--gateway", "http://127.0.0.1:1")
	require.Error(t, err)

	_, err = execute(t, "history")
	require.ErrorContains(t, err, "journal file is not set")
}

func TestComputeWrongArity(t *testing.T) {
	url := startSim(t)
	_, err := execute(t, "compute", "--gateway", url, "1", "2", "3")
	require.ErrorContains(t, err, "arity")
}

func TestConfigFile(t *testing.T) {
	require := require.New(t)
	url := startSim(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "mxe.toml")
	body := "[Gateway]\nURL = \"" + url + "\"\nDelivery = \"sse\"\n\n[Journal]\nPath = \"" + filepath.Join(dir, "j.db") + "\"\n"
	require.NoError(os.WriteFile(path, []byte(body), 0o600))

	out, err := execute(t, "--config", path, "compute", "5", "0")
	require.NoError(err)
	require.Contains(out, "bounty:         5000000")

	out, err = execute(t, "--config", path, "history")
	require.NoError(err)
	require.Contains(out, "compute_bounty")

	_, err = execute(t, "--config", filepath.Join(dir, "missing.toml"), "history")
	require.ErrorContains(err, "failed to load config file")
}

func TestEnvFile(t *testing.T) {
	url := startSim(t)
	env := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(env, []byte(config.EnvGatewayURL+"="+url+"\n"), 0o600))
	os.Unsetenv(config.EnvGatewayURL)

	var stdout bytes.Buffer
	err := run([]string{"mxectl", "--env-file", env, "--log-level", "ERROR", "compute", "1", "1"}, IOConfig{Stdout: &stdout, Stderr: io.Discard})
	require.NoError(t, err)
	require.Contains(t, stdout.String(), "bounty:         1500000")
}

func TestBench(t *testing.T) {
	url := startSim(t)
	t.Setenv(config.EnvGatewayURL, url)

	cfg, err := config.Load(nil)
	require.NoError(t, err)
	cfg.Logging.Disable = true

	profDir := t.TempDir()
	f := &benchFlags{sessions: 6, concurrency: 3, maxInput: 50, metrics: "127.0.0.1:0", profileDir: profDir}
	report, err := runBench(context.Background(), cfg, f, IOConfig{Stdout: io.Discard, Stderr: io.Discard})
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(profDir, "cpu.pprof"))
	require.Equal(t, 6, report.Decrypted)
	require.Empty(t, report.Failed)
	require.Len(t, report.Latencies, 6)

	var out bytes.Buffer
	printReport(IOConfig{Stdout: &out}, report)
	require.Contains(t, out.String(), "decrypted: 6")
	require.Contains(t, out.String(), "p50")

	_, err = runBench(context.Background(), cfg, &benchFlags{}, IOConfig{Stdout: io.Discard, Stderr: io.Discard})
	require.Error(t, err)
}
