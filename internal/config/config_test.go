package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsAreValid(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, mdap.Config{KMargin: 2, MaxCandidates: 10, BatchSize: 2}, f.Protocol())
	assert.Equal(t, "[3,2,1][][]", f.Initial().String())
	assert.Equal(t, 30*time.Second, f.SamplerOptions().CallTimeout)
	assert.Len(t, f.Grid(), 9)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "agent.yaml", `
mdap:
  k_margin: 3
  max_candidates: 9
  batch_escalation_size: 3
  call_timeout: 5s
hanoi:
  initial_pegs: [[2, 1], [], []]
  goal_pegs: [[], [], [2, 1]]
  step_budget: 12
predictor:
  kind: noisy
  error_rate: 0.25
  seed: 7
calibration:
  k_margins: [1, 2]
  max_candidates: [2, 4]
  episodes: 5
storage:
  db_path: /tmp/x.db
`)
	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, mdap.Config{KMargin: 3, MaxCandidates: 9, BatchSize: 3}, f.Protocol())
	assert.Equal(t, 5*time.Second, f.MDAP.CallTimeout.Duration)
	assert.Equal(t, "[][][2,1]", f.Goal().String())
	assert.Equal(t, 12, f.Hanoi.StepBudget)
	assert.Equal(t, "noisy", f.Predictor.Kind)
	assert.Equal(t, 0.25, f.Predictor.ErrorRate)
	assert.Equal(t, 4, f.MDAP.Concurrency) // untouched default
	assert.Len(t, f.Grid(), 4)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "agent.toml", `
[mdap]
k_margin = 1
max_candidates = 3
call_timeout = "2s"

[predictor]
kind = "grpc"
addr = "localhost:7070"
`)
	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, f.MDAP.KMargin)
	assert.Equal(t, 2*time.Second, f.MDAP.CallTimeout.Duration)
	assert.Equal(t, "localhost:7070", f.Predictor.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MDAP_DB", "/var/lib/mdap.db")
	t.Setenv("OPENAI_MODEL", "local-model")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:11434/v1")
	f, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/mdap.db", f.Storage.DBPath)
	assert.Equal(t, "local-model", f.Predictor.Model)
	assert.Equal(t, "http://localhost:11434/v1", f.Predictor.BaseURL)
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"cap below k":  "mdap:\n  k_margin: 5\n  max_candidates: 3\n",
		"bad kind":     "predictor:\n  kind: psychic\n",
		"grpc no addr": "predictor:\n  kind: grpc\n",
		"bad pegs":     "hanoi:\n  initial_pegs: [[1, 2], [], []]\n",
		"mixed disks":  "hanoi:\n  goal_pegs: [[], [2, 1], []]\n",
		"error rate":   "predictor:\n  kind: noisy\n  error_rate: 1.5\n",
		"no episodes":  "calibration:\n  episodes: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.yaml", body))
			assert.ErrorIs(t, err, mdap.ErrInvalidConfig)
		})
	}

	_, err := Load(writeFile(t, "c.json", "{}"))
	assert.ErrorIs(t, err, mdap.ErrInvalidConfig)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
