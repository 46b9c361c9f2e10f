package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainEntry prefixes journal entry hashes. The version suffix leaves room
// for a future algorithm change.
const DomainEntry = "xmlpersist/entry/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EntryHash computes the content hash of a journal entry.
// The hash covers the transaction id, sequence number, document path and
// every event payload; the Hash field itself is excluded.
func EntryHash(e Entry) (string, error) {
	canonical, err := MarshalCanonical(e.toIRObject())
	if err != nil {
		return "", fmt.Errorf("EntryHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEntry, canonical), nil
}

// MustEntryHash is like EntryHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEntryHash(e Entry) string {
	h, err := EntryHash(e)
	if err != nil {
		panic(err)
	}
	return h
}
