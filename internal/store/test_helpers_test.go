package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/xmlpersist/internal/ir"
)

// createTestStore opens a fresh journal in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntry builds an entry creating one item and changing its qty.
func createTestEntry(txID, document, recordID string, seq int64) ir.Entry {
	return ir.Entry{
		TxID:     txID,
		Seq:      seq,
		Document: document,
		Events: []ir.EventRecord{
			{
				Kind:     ir.KindCreated,
				Tag:      "item",
				RecordID: recordID,
				Payload:  ir.IRObject{"attrs": ir.IRObject{"id": ir.IRString(recordID), "qty": ir.IRString("1")}},
			},
			{
				Kind:     ir.KindChanging,
				Tag:      "item",
				RecordID: recordID,
				Payload: ir.IRObject{"attrs": ir.IRObject{
					"qty": ir.IRObject{"old": ir.IRString("1"), "new": ir.IRString("2")},
				}},
			},
		},
	}
}
