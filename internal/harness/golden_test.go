package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xmlpersist/internal/ir"
)

// TestScenarios runs every scenario under testdata/scenarios against its
// golden snapshot.
func TestScenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(file)
			require.NoError(t, err)
			require.Equal(t, name, s.Name, "scenario name must match its file")

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshot_Format(t *testing.T) {
	result := NewResult()
	result.Document = "<a/>"
	result.Notifications = []string{"created <a>"}
	result.Journal = []ir.Entry{{
		TxID: "tx-1",
		Seq:  4,
		Events: []ir.EventRecord{
			{Kind: ir.KindCreated, Tag: "a", Payload: ir.IRObject{"text": ir.IRString("")}},
			{Kind: ir.KindDeleting, Tag: "b", RecordID: "B1"},
		},
	}}

	got, err := Snapshot("demo", result)
	require.NoError(t, err)
	assert.Equal(t, `scenario: demo

== document ==
<a/>

== notifications ==
created <a>

== journal ==
tx-1 seq=4
  created <a> - {"text":""}
  deleting <b> B1 {}
`, string(got))
}
