package config

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xmlpersist/internal/engine"
)

const kindsCUE = `
kind: item: {
	id:       "id"
	required: ["id"]
}
`

func TestBuild_PartitionedWithJournal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "template.xml", `<items/>`)
	writeFile(t, dir, "kinds.cue", kindsCUE)
	path := writeFile(t, dir, "xpersist.yaml", `
mode: partitioned
dir: tenants
template: template.xml
schema: kinds.cue
journal: journal.db
ids: ulid
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	rt, err := cfg.Build(t.Context(), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "id", rt.Kinds.Lookup("item").IDAttribute)
	require.NotNil(t, rt.Journal)

	c, err := rt.Manager.Context("acme")
	require.NoError(t, err)
	require.NoError(t, c.Invoke(t.Context(), true, func() error {
		_, err := c.Create("item", engine.Attrs("id", "A1"), "")
		return err
	}))
	assert.FileExists(t, filepath.Join(dir, "tenants", "acme.xml"))

	seq, err := rt.Journal.LastSeq(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
	require.NoError(t, rt.Close())

	// A second run continues the journal's sequence.
	rt, err = cfg.Build(t.Context(), io.Discard)
	require.NoError(t, err)
	defer rt.Close()
	c, err = rt.Manager.Context("acme")
	require.NoError(t, err)
	a1, err := c.ElementOf("item", "A1")
	require.NoError(t, err)
	require.NoError(t, c.Invoke(t.Context(), true, func() error {
		return a1.SetAttribute("qty", "2")
	}))

	entries, err := rt.Journal.ReadTransactions(t.Context(), "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[1].Seq)
}

func TestBuild_SharedWithoutJournal(t *testing.T) {
	dir := t.TempDir()
	var logs bytes.Buffer
	cfg := Default(filepath.Join(dir, "records.xml"))
	cfg.Log.Level = "debug"

	rt, err := cfg.Build(t.Context(), &logs)
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.Journal)
	assert.Nil(t, rt.Kinds)
	assert.Equal(t, engine.ModeShared, rt.Manager.Mode())
	assert.FileExists(t, filepath.Join(dir, "records.xml"))
	assert.Contains(t, logs.String(), "runtime built")
}

func TestBuild_BadSchema(t *testing.T) {
	dir := t.TempDir()
	cfg := Default(filepath.Join(dir, "records.xml"))
	cfg.Schema = writeFile(t, dir, "kinds.cue", `kind: x: colour: "red"`)

	_, err := cfg.Build(t.Context(), io.Discard)
	assert.ErrorContains(t, err, "load schema")
}
