package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/healthpilot/internal/observability"
	"github.com/ent0n29/healthpilot/internal/toolcall"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", ""))
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestToolsCommandPrintsDeclarations(t *testing.T) {
	var payload struct {
		Tools       []toolcall.Declaration `json:"tools"`
		Instruction string                 `json:"instruction"`
	}
	require.NoError(t, json.Unmarshal([]byte(run(t, "tools", "--instruction", "--language", "Hindi")), &payload))

	require.Len(t, payload.Tools, len(toolcall.Declarations()))
	assert.Equal(t, toolcall.NameNavigate, payload.Tools[0].Name)
	assert.Contains(t, payload.Instruction, "Language: Hindi.")
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, loadEnvFile(filepath.Join(dir, "missing.env"), false))
	assert.Error(t, loadEnvFile(filepath.Join(dir, "missing.env"), true))

	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("HEALTHPILOT_TEST_KEY=from-file\n"), 0o600))
	t.Setenv("HEALTHPILOT_TEST_KEY", "")
	require.NoError(t, os.Unsetenv("HEALTHPILOT_TEST_KEY"))
	require.NoError(t, loadEnvFile(path, true))
	assert.Equal(t, "from-file", os.Getenv("HEALTHPILOT_TEST_KEY"))
}

func TestPerfCommandPrintsStages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/perf/latency", r.URL.Path)
		_ = json.NewEncoder(w).Encode(observability.LatencySnapshot{
			WindowSize: 256,
			Stages: []observability.StageStats{
				{Stage: "live_connect", Samples: 3, LastMS: 900, P50MS: 850, P95MS: 1200, TargetP95MS: 2500},
			},
		})
	}))
	defer srv.Close()

	out := run(t, "perf", "--base-url", srv.URL+"/")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "STAGE")
	assert.Contains(t, lines[1], "live_connect")
	assert.Contains(t, lines[1], "2500ms")
}
