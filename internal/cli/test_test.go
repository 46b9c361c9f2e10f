package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xmlpersist/internal/testutil"
)

const qtyScenario = `name: qty
schema: kinds.cue
document: |
  <items>
    <item id="A1" qty="1"/>
  </items>
steps:
  - do: invoke
    commit: true
    ops:
      - op: set
        target: {id: A1}
        name: qty
        value: "2"
assertions:
  - type: attr
    target: {id: A1}
    name: qty
    value: "2"
`

func scenarioDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "kinds.cue", kindsCUE)
	testutil.WriteFile(t, dir, "qty.yaml", qtyScenario)
	return dir
}

func TestTestCommand_HarnessScenarios(t *testing.T) {
	out, err := execute(t, "test", filepath.Join("..", "harness", "testdata", "scenarios"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ qty_update")
	assert.Contains(t, out, "✓ shadow_conflict")
	assert.Contains(t, out, "Test Summary: 6 passed, 0 failed, 6 total")
}

func TestTestCommand_Golden(t *testing.T) {
	dir := scenarioDir(t)
	golden := filepath.Join(dir, "golden", "qty.golden")

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err, out)
	assert.FileExists(t, golden)

	out, err = execute(t, "test", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ All scenarios passed")

	require.NoError(t, os.WriteFile(golden, []byte("stale\n"), 0o644))
	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ qty")
	assert.Contains(t, out, "golden file mismatch")
}

func TestTestCommand_FailingAssertion(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "kinds.cue", kindsCUE)
	testutil.WriteFile(t, dir, "wrong.yaml", `name: wrong
schema: kinds.cue
document: <items><item id="A1" qty="1"/></items>
steps:
  - do: invoke
    ops:
      - op: set
        target: {id: A1}
        name: qty
        value: "2"
assertions:
  - type: attr
    target: {id: A1}
    name: qty
    value: "9"
`)

	out, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.NotEmpty(t, resp.Data.Scenarios[0].Errors)
}

func TestTestCommand_Filter(t *testing.T) {
	dir := scenarioDir(t)

	out, err := execute(t, "test", dir, "--filter", "order_*")
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)

	out, err = execute(t, "test", dir, "--filter", "q*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed")
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
