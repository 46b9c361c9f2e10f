// Package ir provides the value model and canonical encoding used for
// journal entries.
//
// Every committed transaction is described as an Entry whose events carry
// their change sets as IRObject payloads. Payloads are serialized with
// MarshalCanonical (RFC 8785 ordering, NFC strings, no floats) so that the
// content hash of an entry is stable across processes and replays.
//
// ir imports nothing internal; engine and store both depend on it.
package ir
