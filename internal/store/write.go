package store

import (
	"context"
	"fmt"

	"github.com/roach88/xmlpersist/internal/ir"
)

// Append writes a committed transaction to the journal.
// The entry hash is computed here; entry.Hash is ignored. Appending a tx_id
// that is already journaled is silently ignored.
//
// Append implements engine.Journal.
func (s *Store) Append(ctx context.Context, entry ir.Entry) error {
	hash, err := ir.EntryHash(entry)
	if err != nil {
		return fmt.Errorf("append %s: %w", entry.TxID, err)
	}

	payloads := make([]string, len(entry.Events))
	for i, ev := range entry.Events {
		if payloads[i], err = marshalPayload(ev.Payload); err != nil {
			return fmt.Errorf("append %s: %w", entry.TxID, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append %s: begin tx: %w", entry.TxID, err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (tx_id, seq, document, hash, event_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tx_id) DO NOTHING
	`, entry.TxID, entry.Seq, entry.Document, hash, len(entry.Events))
	if err != nil {
		return fmt.Errorf("append %s: %w", entry.TxID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("append %s: %w", entry.TxID, err)
	} else if n == 0 {
		return nil
	}

	for i, ev := range entry.Events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO events (tx_id, idx, kind, tag, record_id, payload)
			VALUES (?, ?, ?, ?, ?, ?)
		`, entry.TxID, i, ev.Kind, ev.Tag, ev.RecordID, payloads[i])
		if err != nil {
			return fmt.Errorf("append %s: event %d: %w", entry.TxID, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append %s: commit: %w", entry.TxID, err)
	}
	return nil
}
