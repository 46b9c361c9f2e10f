package store

import (
	"context"
	"fmt"

	"github.com/roach88/xmlpersist/internal/ir"
)

// Mismatch is a journaled transaction whose stored hash no longer matches its
// content.
type Mismatch struct {
	TxID   string `json:"tx_id"`
	Stored string `json:"stored"`
	Actual string `json:"actual"`
}

// Verify recomputes the hash of every journaled transaction and reports the
// ones that differ from the stored hash. An intact journal returns an empty
// slice.
func (s *Store) Verify(ctx context.Context) ([]Mismatch, error) {
	entries, err := s.ReadTransactions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	mismatches := []Mismatch{}
	for _, e := range entries {
		actual, err := ir.EntryHash(e)
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", e.TxID, err)
		}
		if actual != e.Hash {
			mismatches = append(mismatches, Mismatch{TxID: e.TxID, Stored: e.Hash, Actual: actual})
		}
	}
	return mismatches, nil
}
