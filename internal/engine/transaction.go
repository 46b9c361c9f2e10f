package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/xmlpersist/internal/ir"
	"github.com/roach88/xmlpersist/internal/xmldoc"
)

// Transaction is an ordered batch of events that is committed or rolled back
// as a whole.
type Transaction struct {
	id        string
	seq       int64
	events    []Event
	applyOnly bool
	rollback  bool
	committed bool
}

func newTransaction(id string, seq int64, applyOnly bool) *Transaction {
	return &Transaction{id: id, seq: seq, applyOnly: applyOnly}
}

// ID returns the transaction id.
func (tx *Transaction) ID() string { return tx.id }

// Seq returns the logical clock value stamped when the transaction opened.
func (tx *Transaction) Seq() int64 { return tx.seq }

// Events returns the queued events in order.
func (tx *Transaction) Events() []Event { return append([]Event(nil), tx.events...) }

// Len returns the number of queued events.
func (tx *Transaction) Len() int { return len(tx.events) }

// ApplyOnly reports whether the transaction can never be committed.
func (tx *Transaction) ApplyOnly() bool { return tx.applyOnly }

// RolledBack reports whether Rollback ran.
func (tx *Transaction) RolledBack() bool { return tx.rollback }

// Committed reports whether Commit succeeded.
func (tx *Transaction) Committed() bool { return tx.committed }

func (tx *Transaction) add(ev Event) {
	tx.events = append(tx.events, ev)
}

// Apply applies every event not yet in effect, in insertion order.
// For apply-only transactions each changing event is detached from its
// record's pending list so it can never be committed.
func (tx *Transaction) Apply() error {
	for _, ev := range tx.events {
		if !ev.Applied() {
			if err := ev.apply(); err != nil {
				return err
			}
		}
		if ch, ok := ev.(*ChangingEvent); ok && tx.applyOnly {
			ch.source.dropPending(map[Event]bool{ev: true})
		}
	}
	return nil
}

// Rollback reverts every applied event, last first, and drops the events from
// their records' pending lists.
func (tx *Transaction) Rollback() error {
	done := make(map[Event]bool, len(tx.events))
	var errs []error
	for i := len(tx.events) - 1; i >= 0; i-- {
		ev := tx.events[i]
		done[ev] = true
		if !ev.Applied() {
			continue
		}
		if err := ev.revert(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, ev := range tx.events {
		ev.Source().dropPending(done)
	}
	for _, ev := range tx.events {
		ev.Source().settleReverted()
	}
	tx.rollback = true
	return errors.Join(errs...)
}

// Commit writes the transaction to the backing document.
//
// Events are translated into document mutations in order, the file is written
// and reloaded, then the in-memory records are finalized: created records
// become clean, deleted records are destroyed and every changed record gets a
// fresh shadow. If anything fails before the file is written, the whole
// transaction is rolled back and the document reloaded from disk so memory
// and file agree again.
func (tx *Transaction) Commit(p *Persister) error {
	return tx.commit(p, nil)
}

// commit runs onFail, if set, before rolling back a failed commit. Later
// transactions applied on top of this one must be reverted first.
func (tx *Transaction) commit(p *Persister, onFail func()) error {
	if tx.applyOnly {
		return &PersistError{Code: ErrCodeInvalidState, Message: "apply-only transaction cannot be committed"}
	}
	if tx.committed || tx.rollback {
		return &PersistError{Code: ErrCodeInvalidState, Message: fmt.Sprintf("transaction %s is closed", tx.id)}
	}

	run := newCommitRun(p)
	if err := run.persist(tx.events); err != nil {
		cause := err
		if onFail != nil {
			onFail()
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			cause = errors.Join(cause, fmt.Errorf("rollback: %w", rbErr))
		}
		if rlErr := p.Reload(); rlErr != nil {
			cause = errors.Join(cause, rlErr)
		}
		return &PersistError{
			Code:    ErrCodeCommitFailed,
			Message: fmt.Sprintf("transaction %s", tx.id),
			Err:     cause,
		}
	}
	if err := p.Reload(); err != nil {
		return &PersistError{Code: ErrCodeCommitFailed, Message: fmt.Sprintf("transaction %s", tx.id), Err: err}
	}
	run.finalize(tx.events)
	tx.committed = true
	return nil
}

// Entry describes the transaction for the journal. Merged duplicates are
// left out; their values appear as changes of the original record.
func (tx *Transaction) Entry(document string) ir.Entry {
	e := ir.Entry{TxID: tx.id, Seq: tx.seq, Document: document}
	for _, ev := range tx.events {
		if ce, ok := ev.(*CreatedEvent); ok && ce.duplicateOf != nil {
			continue
		}
		e.Events = append(e.Events, eventRecord(ev))
	}
	return e
}

func eventRecord(ev Event) ir.EventRecord {
	r := ev.Source()
	rec := ir.EventRecord{Kind: ev.Kind(), Tag: r.tag, RecordID: r.ID(), Payload: ir.IRObject{}}
	switch e := ev.(type) {
	case *CreatedEvent:
		attrs := ir.IRObject{}
		for _, a := range e.attrs {
			attrs[a.Name] = ir.IRString(a.Value)
		}
		rec.Payload["attrs"] = attrs
		rec.Payload["text"] = ir.IRString(e.text)
	case *ChangingEvent:
		if len(e.attrs) > 0 {
			attrs := ir.IRObject{}
			for _, ch := range e.attrs {
				pair := ir.IRObject{}
				if ch.Old().Present {
					pair["old"] = ir.IRString(ch.Old().Value)
				}
				if ch.New().Present {
					pair["new"] = ir.IRString(ch.New().Value)
				}
				attrs[ch.Name] = pair
			}
			rec.Payload["attrs"] = attrs
		}
		if e.text != nil {
			rec.Payload["text"] = ir.IRObject{
				"old": ir.IRString(e.text.Old()),
				"new": ir.IRString(e.text.New()),
			}
		}
		if len(e.added) > 0 {
			rec.Payload["added"] = tags(e.added)
		}
		if len(e.removed) > 0 {
			rec.Payload["removed"] = tags(e.removed)
		}
	}
	return rec
}

func tags(rs []*Record) ir.IRArray {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.tag
	}
	return ir.Strings(out...)
}

// commitRun holds the working state of one commit. Shadows in work reflect
// the document as mutated so far; records keep their committed shadows until
// finalize.
//
// New records are written with the values they were created with, never
// their current ones: memory may already hold changes of transactions queued
// behind this one.
type commitRun struct {
	p       *Persister
	work    map[*Record]*Shadow
	nodes   map[*Record]*xmldoc.Node
	built   map[*Record]bool
	removed map[*Record]bool
	early   map[*Record][]*ChangingEvent // changes seen before the node was built
	gone    []*Record
}

func newCommitRun(p *Persister) *commitRun {
	return &commitRun{
		p:       p,
		work:    make(map[*Record]*Shadow),
		nodes:   make(map[*Record]*xmldoc.Node),
		built:   make(map[*Record]bool),
		removed: make(map[*Record]bool),
		early:   make(map[*Record][]*ChangingEvent),
	}
}

func (run *commitRun) shadowOf(r *Record) *Shadow {
	if sh, ok := run.work[r]; ok {
		return sh
	}
	return r.shadow
}

func (run *commitRun) persist(events []Event) error {
	for _, ev := range events {
		var err error
		switch e := ev.(type) {
		case *CreatedEvent:
			err = run.create(e)
		case *ChangingEvent:
			err = run.change(e)
		case *DeletingEvent:
			err = run.delete(e)
		}
		if err != nil {
			return err
		}
	}
	return run.p.Write()
}

func (run *commitRun) create(e *CreatedEvent) error {
	r := e.source
	if e.duplicateOf != nil || r.state == StateDeletion {
		return nil
	}
	if r.parent == nil && !r.ctx.isTop(r) {
		// Removed again before commit.
		return nil
	}
	if err := r.kind.Validate(r); err != nil {
		return err
	}
	if r.parent != nil && !r.parent.kind.AllowsChild(r.tag) {
		return newError(ErrCodeInvalidRecord, r.parent, "child <%s> not allowed", r.tag)
	}
	if r.parent != nil || run.built[r] {
		// Written together with its parent.
		return nil
	}
	n, err := run.build(r)
	if err != nil {
		return err
	}
	run.p.doc.Root.AppendChild(n)
	return nil
}

// build creates the node of a new record from its creation values and
// replays the changes of this transaction already seen for it. Children
// arrive through those changes.
func (run *commitRun) build(r *Record) (*xmldoc.Node, error) {
	attrs, text := r.attrs, r.text
	if r.created != nil {
		attrs, text = r.created.attrs, r.created.text
	}
	n := xmldoc.NewNode(r.tag, attrs...)
	n.Text = text
	run.nodes[r] = n
	run.built[r] = true

	early := run.early[r]
	delete(run.early, r)
	for _, e := range early {
		if err := run.mutate(n, e); err != nil {
			return nil, err
		}
	}
	run.work[r] = shadowOfNode(n)
	return n, nil
}

func (run *commitRun) change(e *ChangingEvent) error {
	r := e.source
	var n *xmldoc.Node
	switch {
	case run.built[r]:
		var ok bool
		if n, ok = run.nodes[r]; !ok {
			// Removed again in this transaction.
			return nil
		}
	case r.shadow == nil:
		// Not in the file yet.
		run.early[r] = append(run.early[r], e)
		return nil
	default:
		var err error
		if n, err = run.p.locate(r, run.shadowOf, run.nodes); err != nil {
			return err
		}
	}

	if err := run.mutate(n, e); err != nil {
		return err
	}
	run.work[r] = shadowOfNode(n)
	return nil
}

// mutate applies one change event to the node of its record.
func (run *commitRun) mutate(n *xmldoc.Node, e *ChangingEvent) error {
	r := e.source
	for _, ch := range e.attrs {
		if v := ch.New(); v.Present {
			n.SetAttr(ch.Name, v.Value)
		} else {
			n.RemoveAttr(ch.Name)
		}
	}
	if e.text != nil {
		n.Text = e.text.New()
	}
	for _, c := range e.removed {
		if c.shadow == nil && !run.built[c] {
			continue
		}
		cn, ok := run.nodes[c]
		if !ok && run.built[c] {
			continue
		}
		if !ok {
			var err error
			if cn, err = matchShadow(n, c, run.shadowOf(c)); err != nil {
				return err
			}
		}
		// A re-parented child may still sit deeper in the file.
		if cn.Parent != nil {
			cn.Parent.RemoveChild(cn)
		}
		delete(run.nodes, c)
		run.removed[c] = true
	}
	for _, c := range e.added {
		if c.parent != r || c.shadow != nil || run.built[c] {
			continue
		}
		cn, err := run.build(c)
		if err != nil {
			return err
		}
		n.AppendChild(cn)
	}
	return nil
}

func (run *commitRun) delete(e *DeletingEvent) error {
	r := e.source
	run.gone = append(run.gone, r)
	if r.shadow == nil && !run.built[r] {
		return nil
	}
	for p := r.parent; p != nil; p = p.parent {
		if run.removed[p] {
			return nil
		}
	}
	n, err := run.p.locate(r, run.shadowOf, run.nodes)
	if err != nil {
		return err
	}
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
	run.removed[r] = true
	return nil
}

// finalize brings memory in line with the written document.
func (run *commitRun) finalize(events []Event) {
	done := make(map[Event]bool, len(events))
	for _, ev := range events {
		done[ev] = true
	}
	touched := make(map[*Record]bool)
	for _, ev := range events {
		r := ev.Source()
		r.dropPending(done)
		touched[r] = true
	}

	for r, sh := range run.work {
		r.shadow = sh
	}
	for r := range run.removed {
		r.shadow = nil
	}
	for _, r := range run.gone {
		if r.parent != nil {
			r.parent.detachChild(r)
		} else {
			r.ctx.removeTop(r)
		}
		r.shadow = nil
	}
	for r := range touched {
		r.settle(run.built[r])
	}
	for r := range run.built {
		if !touched[r] {
			r.settle(true)
		}
	}
}
