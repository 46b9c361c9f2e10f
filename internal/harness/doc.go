// Package harness runs YAML scenarios against the persistence engine.
//
// A scenario seeds a document, runs steps through a Context and checks
// assertions on the records, the notifications listeners received, the
// committed file and the journal.
//
// # Scenario Format
//
//	name: qty_update
//	description: "Changing one attribute rewrites only that attribute"
//	schema: kinds.cue            # optional, relative to the scenario file
//	document: |
//	  <items>
//	    <item id="A1" qty="1"/>
//	  </items>
//	steps:
//	  - do: invoke
//	    commit: true
//	    ops:
//	      - op: set
//	        target: { id: A1 }
//	        name: qty
//	        value: "2"
//	  - do: invoke
//	    error: NO_ELEMENT          # expected error code
//	    ops: [...]
//	assertions:
//	  - type: attr
//	    target: { id: A1 }
//	    name: qty
//	    value: "2"
//
// # Steps
//
//   - invoke: run ops in Context.Invoke (commit, env)
//   - apply: run ops in an apply-only transaction
//   - commit_all, revert_all: flush or drop queued transactions
//   - reload: Context.ReloadElements
//   - reopen: open a fresh Context on the committed file
//
// # Ops
//
// create (tag, attrs, text, optional parent, optional "as" ref name), set,
// unset, text, delete, detach (remove a child from its parent) and move
// (SetParent). Targets select a record by ref, by id (optionally scoped to a
// tag) and then by a path of child indexes.
//
// # Assertions
//
//   - attr, text, state, locked: properties of one record
//   - exists, missing: whether a target resolves
//   - count: number of usable top-level records (optionally of one tag)
//   - notifications: exact listener lines
//   - unchanged: committed file is byte-identical to the seed
//   - journal: number of journaled transactions
//
// # Deterministic Testing
//
// Every run uses a fresh temp document, an in-memory SQLite journal, a
// logical clock starting at 0 and sequential transaction ids (tx-1, tx-2,
// ...), so golden snapshots are byte-identical across runs.
package harness
