package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	predictions "github.com/bryanwahyu/tomvto/internal/domain/predictions"
)

const seededDocument = `[
  {"id": "b2", "prediction": "non-viable", "confidence": 70, "processingTime": 400,
   "modelVersion": "YOLO + CNN", "timestamp": "2025-03-02T10:00:00.000Z", "detectionType": "multi", "seedNumber": 2},
  {"id": "a1", "prediction": "viable", "confidence": 90, "processingTime": 200,
   "modelVersion": "CNN-v2.1.0", "timestamp": "2025-03-01T10:00:00.000Z"}
]`

func setupCLI(t *testing.T) (string, string) {
	t.Helper()
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("PREDICTIONS_FILE", "")
	t.Setenv("PYTHON_ML_SERVICE_URL", "")
	t.Setenv("PORT", "")

	dir := t.TempDir()
	docPath := filepath.Join(dir, "predictions.json")
	require.NoError(t, os.WriteFile(docPath, []byte(seededDocument), 0o644))

	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "storage:\n  driver: file\n  path: " + docPath + "\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath, docPath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStatsCommand(t *testing.T) {
	cfgPath, _ := setupCLI(t)

	out, err := runCLI(t, "--config", cfgPath, "stats")
	require.NoError(t, err)

	var st predictions.Statistics
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 2, st.TotalPredictions)
	assert.InDelta(t, 50.0, st.ViabilityRate, 1e-9)
	assert.InDelta(t, 80.0, st.AvgConfidence, 1e-9)
}

func TestHistoryCommand(t *testing.T) {
	cfgPath, _ := setupCLI(t)

	out, err := runCLI(t, "--config", cfgPath, "history", "--limit", "1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "RESULT")
	assert.Contains(t, lines[1], "b2")
	assert.Contains(t, lines[1], "multi")
}

func TestDeleteCommand(t *testing.T) {
	cfgPath, docPath := setupCLI(t)

	out, err := runCLI(t, "--config", cfgPath, "delete", "a1")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted a1")

	data, err := os.ReadFile(docPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"a1"`)

	_, err = runCLI(t, "--config", cfgPath, "delete", "a1")
	assert.ErrorIs(t, err, predictions.ErrNotFound)

	_, err = runCLI(t, "--config", cfgPath, "delete", "../x")
	assert.Error(t, err)
}

func TestMissingExplicitConfig(t *testing.T) {
	setupCLI(t)
	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "stats")
	assert.Error(t, err)
}
