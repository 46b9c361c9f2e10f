package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xmlpersist/internal/engine"
	"github.com/roach88/xmlpersist/internal/testutil"
)

// itemsDoc writes a document with its vocabulary and returns the document
// path and the flags selecting both.
func itemsDoc(t *testing.T) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	schema := testutil.WriteFile(t, dir, "kinds.cue", kindsCUE)
	doc := testutil.WriteFile(t, dir, "items.xml", `<items>
  <item id="A1" qty="1">
    <tag name="red"/>
  </item>
  <note>milk</note>
</items>`)
	return doc, []string{"--doc", doc, "--schema", schema}
}

func args(cmd []string, flags []string) []string {
	return append(cmd, flags...)
}

func TestShow(t *testing.T) {
	_, flags := itemsDoc(t)

	out, err := execute(t, args([]string{"show"}, flags)...)
	require.NoError(t, err)
	assert.Equal(t, `<item id="A1" qty="1">
  <tag name="red">
<note> "milk"
`, out)

	out, err = execute(t, args([]string{"show", "--tag", "note"}, flags)...)
	require.NoError(t, err)
	assert.Equal(t, "<note> \"milk\"\n", out)
}

func TestShow_JSON(t *testing.T) {
	_, flags := itemsDoc(t)
	out, err := execute(t, args([]string{"show", "--format", "json"}, flags)...)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   []RecordView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "A1", resp.Data[0].ID)
	assert.Equal(t, "CLEAN", resp.Data[0].State)
	require.Len(t, resp.Data[0].Children, 1)
	assert.Equal(t, "tag", resp.Data[0].Children[0].Tag)
	assert.Equal(t, "milk", resp.Data[1].Text)
}

func TestGet(t *testing.T) {
	_, flags := itemsDoc(t)

	out, err := execute(t, args([]string{"get", "milk"}, flags)...)
	require.NoError(t, err)
	assert.Equal(t, "<note> \"milk\"\n", out)

	out, err = execute(t, args([]string{"get", "ZZ"}, flags)...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [NOT_FOUND]")
}

func TestCreate(t *testing.T) {
	doc, flags := itemsDoc(t)

	out, err := execute(t, args([]string{"create", "item", "id=B2", "qty=3"}, flags)...)
	require.NoError(t, err)
	assert.Equal(t, "created <item>\n", out)
	assert.Contains(t, testutil.ReadFile(t, doc), `  <item id="B2" qty="3"/>`)

	out, err = execute(t, args([]string{"create", "item", "id=A1", "qty=9"}, flags)...)
	require.NoError(t, err)
	assert.Equal(t, "merged into existing <item id=A1>\n", out)
	assert.Contains(t, testutil.ReadFile(t, doc), `<item id="A1" qty="9">`)

	_, err = execute(t, args([]string{"create", "item", "qty"}, flags)...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCreate_ChildAndKindRules(t *testing.T) {
	dir := t.TempDir()
	schema := testutil.WriteFile(t, dir, "kinds.cue", kindsCUE)
	doc := testutil.WriteFile(t, dir, "orders.xml", `<orders><order no="7" customer="acme"/></orders>`)

	_, err := execute(t, "create", "line", "sku=x1", "--parent", "7", "--parent-tag", "order", "--doc", doc, "--schema", schema)
	require.NoError(t, err)
	assert.Equal(t, testutil.Header+`<orders>
  <order no="7" customer="acme">
    <line sku="x1"/>
  </order>
</orders>
`, testutil.ReadFile(t, doc))

	out, err := execute(t, "create", "order", "no=8", "--doc", doc, "--schema", schema)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "COMMIT_FAILED")
	assert.Contains(t, out, "INVALID_RECORD")
	assert.NotContains(t, testutil.ReadFile(t, doc), `no="8"`)
}

func TestSet(t *testing.T) {
	doc, flags := itemsDoc(t)

	out, err := execute(t, args([]string{"set", "A1", "qty=2", "color=blue"}, flags)...)
	require.NoError(t, err)
	assert.Equal(t, "updated <item id=A1>\n", out)
	assert.Contains(t, testutil.ReadFile(t, doc), `<item id="A1" qty="2" color="blue">`)

	_, err = execute(t, args([]string{"set", "A1", "--unset", "qty,color"}, flags)...)
	require.NoError(t, err)
	assert.Contains(t, testutil.ReadFile(t, doc), `<item id="A1">`)

	_, err = execute(t, args([]string{"set", "milk", "--text", "bread", "--tag", "note"}, flags)...)
	require.NoError(t, err)
	assert.Contains(t, testutil.ReadFile(t, doc), `<note>bread</note>`)

	_, err = execute(t, args([]string{"set", "A1"}, flags)...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSet_JSON(t *testing.T) {
	_, flags := itemsDoc(t)
	out, err := execute(t, args([]string{"set", "A1", "qty=5", "--format", "json"}, flags)...)
	require.NoError(t, err)

	var resp struct {
		Data RecordView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "CLEAN", resp.Data.State)
	assert.Contains(t, resp.Data.Attrs, engine.Attr{Name: "qty", Value: "5"})
}

func TestDelete(t *testing.T) {
	doc, flags := itemsDoc(t)

	out, err := execute(t, args([]string{"delete", "A1"}, flags)...)
	require.NoError(t, err)
	assert.Equal(t, "deleted <item id=A1>\n", out)
	assert.Equal(t, testutil.Header+"<items>\n  <note>milk</note>\n</items>\n", testutil.ReadFile(t, doc))

	_, err = execute(t, args([]string{"delete", "A1"}, flags)...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestPartitioned(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tenants")

	_, err := execute(t, "create", "item", "id=A1", "--dir", dir, "--key", "alpha")
	require.NoError(t, err)
	assert.Contains(t, testutil.ReadFile(t, filepath.Join(dir, "alpha.xml")), `<item id="A1"/>`)

	out, err := execute(t, "show", "--dir", dir, "--key", "beta")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = execute(t, "show", "--dir", dir, "--key", "../escape")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
