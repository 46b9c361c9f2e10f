// Package engine keeps an in-memory graph of records in sync with one XML
// document per context.
//
// Every mutation of a Record is expressed as a reversible Event (created,
// changing, deleting) queued on the context's active Transaction. Events are
// applied to memory immediately; committing a transaction translates them into
// document mutations, rewrites the file and reloads it. A failed commit rolls
// the whole transaction back and reloads the document, so memory and file
// never diverge.
//
// ARCHITECTURE:
//
// Record identity:
// The file has no row ids. A persisted record is found again by its Shadow,
// the attribute and text snapshot taken at load or at its last commit, matched
// against the children of its parent's node. Exactly one match is required.
//
// Invocation:
// Context.Invoke opens a transaction (or joins the active one), runs the task,
// applies the transaction and then commits it or queues it for
// CommitAll/RevertAll. Context.Apply runs corrective edits in an apply-only
// transaction that is never committed.
//
// Single writer:
// A context is not safe for concurrent use. Manager hands out one context per
// partition key and serializes work per context through Do.
//
// Duplicates:
// Business ids are unique per tag among top-level records. Creating a second
// record with a known id merges its values into the existing record and locks
// the new one.
package engine
