package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/qty_update.yaml")
	require.NoError(t, err)

	assert.Equal(t, "qty_update", s.Name)
	assert.Equal(t, filepath.Join("testdata", "scenarios", "kinds.cue"), s.Schema)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, StepInvoke, s.Steps[0].Do)
	assert.True(t, s.Steps[0].Commit)
	require.Len(t, s.Steps[0].Ops, 1)
	op := s.Steps[0].Ops[0]
	assert.Equal(t, OpSet, op.Op)
	assert.Equal(t, "A1", op.Target.ID)
	assert.Equal(t, "2", op.Value)
	assert.Len(t, s.Assertions, 5)
}

func TestAttrList_KeepsOrder(t *testing.T) {
	path := writeScenario(t, `
name: order
description: attrs keep their order
document: "<items/>"
steps:
  - do: invoke
    ops:
      - op: create
        tag: item
        attrs: {z: "1", a: "2", m: "3"}
`)
	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, AttrList{{"z", "1"}, {"a", "2"}, {"m", "3"}}, s.Steps[0].Ops[0].Attrs)
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown field",
			content: "name: x\ndescription: d\ndocument: \"<a/>\"\nsteps: [{do: reload}]\nassertion: []\n",
			wantErr: "field assertion not found",
		},
		{
			name:    "missing name",
			content: "description: d\ndocument: \"<a/>\"\nsteps: [{do: reload}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing document",
			content: "name: x\ndescription: d\nsteps: [{do: reload}]\n",
			wantErr: "document is required",
		},
		{
			name:    "no steps",
			content: "name: x\ndescription: d\ndocument: \"<a/>\"\n",
			wantErr: "steps list is required",
		},
		{
			name:    "unknown step",
			content: "name: x\ndescription: d\ndocument: \"<a/>\"\nsteps: [{do: jump}]\n",
			wantErr: `unknown step "jump"`,
		},
		{
			name:    "invoke without ops",
			content: "name: x\ndescription: d\ndocument: \"<a/>\"\nsteps: [{do: invoke}]\n",
			wantErr: "ops are required for invoke",
		},
		{
			name:    "reload with ops",
			content: "name: x\ndescription: d\ndocument: \"<a/>\"\nsteps: [{do: reload, ops: [{op: delete, target: {id: A}}]}]\n",
			wantErr: "reload takes no ops",
		},
		{
			name:    "overwrite without document",
			content: "name: x\ndescription: d\ndocument: \"<a/>\"\nsteps: [{do: overwrite}]\n",
			wantErr: "overwrite takes a document",
		},
		{
			name:    "set without name",
			content: "name: x\ndescription: d\ndocument: \"<a/>\"\nsteps: [{do: invoke, ops: [{op: set, target: {id: A}}]}]\n",
			wantErr: "name is required for set",
		},
		{
			name:    "op without target",
			content: "name: x\ndescription: d\ndocument: \"<a/>\"\nsteps: [{do: invoke, ops: [{op: delete}]}]\n",
			wantErr: "target is required for delete",
		},
		{
			name:    "move without parent",
			content: "name: x\ndescription: d\ndocument: \"<a/>\"\nsteps: [{do: invoke, ops: [{op: move, target: {id: A}}]}]\n",
			wantErr: "parent is required for move",
		},
		{
			name:    "count without count",
			content: "name: x\ndescription: d\ndocument: \"<a/>\"\nsteps: [{do: reload}]\nassertions: [{type: count}]\n",
			wantErr: "count is required for count",
		},
		{
			name:    "state without state",
			content: "name: x\ndescription: d\ndocument: \"<a/>\"\nsteps: [{do: reload}]\nassertions: [{type: state, target: {id: A}}]\n",
			wantErr: "state is required",
		},
		{
			name:    "unknown assertion",
			content: "name: x\ndescription: d\ndocument: \"<a/>\"\nsteps: [{do: reload}]\nassertions: [{type: vibes}]\n",
			wantErr: `unknown assertion type "vibes"`,
		},
		{
			name:    "missing schema",
			content: "name: x\ndescription: d\nschema: nope.cue\ndocument: \"<a/>\"\nsteps: [{do: reload}]\n",
			wantErr: "schema not found",
		},
		{
			name:    "attrs not a mapping",
			content: "name: x\ndescription: d\ndocument: \"<a/>\"\nsteps: [{do: invoke, ops: [{op: create, tag: a, attrs: [x]}]}]\n",
			wantErr: "attrs must be a mapping",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestTarget_String(t *testing.T) {
	assert.Equal(t, "A1", Target{ID: "A1"}.String())
	assert.Equal(t, "order:7/0/1", Target{Tag: "order", ID: "7", Child: []int{0, 1}}.String())
	assert.Equal(t, "dup", Target{Ref: "dup"}.String())
}
