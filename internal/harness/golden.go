package harness

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/xmlpersist/internal/ir"
)

// Snapshot renders the deterministic parts of a result: the committed
// document, the notifications and the journal. Hashes and document paths
// depend on the temp dir and are left out.
func Snapshot(name string, result *Result) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", name)

	buf.WriteString("\n== document ==\n")
	buf.WriteString(result.Document)
	if !strings.HasSuffix(result.Document, "\n") {
		buf.WriteByte('\n')
	}

	buf.WriteString("\n== notifications ==\n")
	for _, line := range result.Notifications {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	buf.WriteString("\n== journal ==\n")
	for _, e := range result.Journal {
		fmt.Fprintf(&buf, "%s seq=%d\n", e.TxID, e.Seq)
		for _, ev := range e.Events {
			payload, err := ir.MarshalCanonical(ev.Payload)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", e.TxID, err)
			}
			id := ev.RecordID
			if id == "" {
				id = "-"
			}
			fmt.Fprintf(&buf, "  %s <%s> %s %s\n", ev.Kind, ev.Tag, id, payload)
		}
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check Pass and Errors.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, snapshot)
	return nil
}
