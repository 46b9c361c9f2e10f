package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/xmlpersist/internal/ir"
)

// ErrNotFound is returned when a transaction is not in the journal.
var ErrNotFound = errors.New("transaction not found")

// ReadTransaction returns one journaled transaction with its events.
func (s *Store) ReadTransaction(ctx context.Context, txID string) (ir.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tx_id, seq, document, hash
		FROM transactions
		WHERE tx_id = ?
	`, txID)

	var e ir.Entry
	if err := row.Scan(&e.TxID, &e.Seq, &e.Document, &e.Hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Entry{}, fmt.Errorf("read transaction %s: %w", txID, ErrNotFound)
		}
		return ir.Entry{}, fmt.Errorf("read transaction %s: %w", txID, err)
	}
	events, err := s.readEvents(ctx, txID)
	if err != nil {
		return ir.Entry{}, err
	}
	e.Events = events
	return e, nil
}

// ReadTransactions returns the journaled transactions of document in commit
// order. An empty document returns the transactions of all documents.
//
// Returns an empty slice (not nil) if nothing is journaled.
func (s *Store) ReadTransactions(ctx context.Context, document string) ([]ir.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id, seq, document, hash
		FROM transactions
		WHERE ? = '' OR document = ?
		ORDER BY seq ASC, tx_id COLLATE BINARY ASC
	`, document, document)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	entries := []ir.Entry{}
	for rows.Next() {
		var e ir.Entry
		if err := rows.Scan(&e.TxID, &e.Seq, &e.Document, &e.Hash); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	rows.Close()

	// Events are read after the cursor is closed: the pool holds one connection.
	for i := range entries {
		events, err := s.readEvents(ctx, entries[i].TxID)
		if err != nil {
			return nil, err
		}
		entries[i].Events = events
	}
	return entries, nil
}

func (s *Store) readEvents(ctx context.Context, txID string) ([]ir.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, tag, record_id, payload
		FROM events
		WHERE tx_id = ?
		ORDER BY idx ASC
	`, txID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.EventRecord{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (ir.EventRecord, error) {
	var ev ir.EventRecord
	var payload string
	if err := rows.Scan(&ev.Kind, &ev.Tag, &ev.RecordID, &payload); err != nil {
		return ir.EventRecord{}, fmt.Errorf("scan event: %w", err)
	}
	obj, err := unmarshalPayload(payload)
	if err != nil {
		return ir.EventRecord{}, err
	}
	ev.Payload = obj
	return ev, nil
}

// HistoryItem is one journaled event of a record.
type HistoryItem struct {
	TxID     string         `json:"tx_id"`
	Seq      int64          `json:"seq"`
	Document string         `json:"document"`
	Event    ir.EventRecord `json:"event"`
}

// RecordHistory returns every journaled event of the record with the given tag
// and business id, oldest first.
func (s *Store) RecordHistory(ctx context.Context, tag, recordID string) ([]HistoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.tx_id, t.seq, t.document, e.kind, e.tag, e.record_id, e.payload
		FROM events e
		JOIN transactions t ON t.tx_id = e.tx_id
		WHERE e.tag = ? AND e.record_id = ?
		ORDER BY t.seq ASC, t.tx_id COLLATE BINARY ASC, e.idx ASC
	`, tag, recordID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	items := []HistoryItem{}
	for rows.Next() {
		var it HistoryItem
		var payload string
		if err := rows.Scan(&it.TxID, &it.Seq, &it.Document, &it.Event.Kind, &it.Event.Tag, &it.Event.RecordID, &payload); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if it.Event.Payload, err = unmarshalPayload(payload); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return items, nil
}

// LastSeq returns the highest journaled sequence number, or 0 for an empty
// journal. Engine clocks resume from it.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM transactions`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// Documents returns the distinct document paths in the journal, sorted.
func (s *Store) Documents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT document FROM transactions ORDER BY document COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
