package engine

import (
	"slices"

	"github.com/roach88/xmlpersist/internal/ir"
)

// ValueChange is an immutable (old, new) pair describing one scalar change.
type ValueChange[V comparable] struct {
	old V
	new V
}

// NewValueChange builds a change. A pair whose values are equal is
// malformed: an event must never carry a change that changes nothing.
func NewValueChange[V comparable](old, new V) (ValueChange[V], error) {
	if old == new {
		return ValueChange[V]{}, &PersistError{
			Code:    ErrCodeInvalidChange,
			Message: "old and new values are equal",
		}
	}
	return ValueChange[V]{old: old, new: new}, nil
}

// Old returns the value before the change.
func (c ValueChange[V]) Old() V { return c.old }

// New returns the value after the change.
func (c ValueChange[V]) New() V { return c.new }

// Invert returns the change that undoes c.
func (c ValueChange[V]) Invert() ValueChange[V] {
	return ValueChange[V]{old: c.new, new: c.old}
}

// AttrValue is an attribute value that may be absent.
type AttrValue struct {
	Value   string
	Present bool
}

// Present wraps an existing attribute value.
func Present(v string) AttrValue { return AttrValue{Value: v, Present: true} }

// Absent is the value of a missing attribute.
var Absent = AttrValue{}

// AttributeChange is a value change of one named attribute.
type AttributeChange struct {
	Name string
	ValueChange[AttrValue]
}

// Event is one reversible change to a record.
// Events are applied when queued and reverted on rollback.
type Event interface {
	// Source returns the record the event belongs to.
	Source() *Record
	// Applied reports whether the event is currently in effect.
	Applied() bool
	// Kind returns ir.KindCreated, ir.KindChanging or ir.KindDeleting.
	Kind() string

	apply() error
	revert() error
}

type baseEvent struct {
	source    *Record
	applied   bool
	prevState State
}

func (e *baseEvent) Source() *Record { return e.source }
func (e *baseEvent) Applied() bool   { return e.applied }

// CreatedEvent introduces a new record.
//
// When a top-level record of the same tag and business id already exists,
// the new record becomes a duplicate: it is locked and never written, and
// its values are merged into the original by the caller.
type CreatedEvent struct {
	baseEvent
	duplicateOf *Record

	// Values the record was created with. Commit writes these; later
	// changes reach the file through their own events.
	attrs []Attr
	text  string
}

func newCreatedEvent(r *Record) *CreatedEvent {
	e := &CreatedEvent{
		baseEvent: baseEvent{source: r},
		attrs:     slices.Clone(r.attrs),
		text:      r.text,
	}
	r.created = e
	return e
}

// Kind implements Event.
func (e *CreatedEvent) Kind() string { return ir.KindCreated }

// DuplicateOf returns the existing record this one was merged into, or nil.
func (e *CreatedEvent) DuplicateOf() *Record { return e.duplicateOf }

func (e *CreatedEvent) apply() error {
	r := e.source
	c := r.ctx
	if r.parent == nil {
		if dup := c.findDuplicate(r); dup != nil {
			r.locked = true
			e.duplicateOf = dup
			e.applied = true
			return nil
		}
		c.addTop(r)
	}
	e.applied = true
	c.notifyCreated(e)
	return nil
}

func (e *CreatedEvent) revert() error {
	r := e.source
	if e.duplicateOf != nil {
		r.locked = false
		e.duplicateOf = nil
	} else if r.parent == nil {
		r.ctx.removeTop(r)
	}
	e.applied = false
	return nil
}

// ChangingEvent changes attributes, text and children of one record.
// An event where all four are empty is never queued.
type ChangingEvent struct {
	baseEvent
	attrs   []AttributeChange
	text    *ValueChange[string]
	added   []*Record
	removed []*Record

	// Bookkeeping that makes revert the exact inverse of apply.
	attrPos   []int
	removedAt []int
	detached  map[*Record]bool
}

// Kind implements Event.
func (e *ChangingEvent) Kind() string { return ir.KindChanging }

// AttributeChanges returns the attribute changes in application order.
func (e *ChangingEvent) AttributeChanges() []AttributeChange {
	return slices.Clone(e.attrs)
}

// TextChange returns the text change, if any.
func (e *ChangingEvent) TextChange() (ValueChange[string], bool) {
	if e.text == nil {
		return ValueChange[string]{}, false
	}
	return *e.text, true
}

// Added returns the children added by the event.
func (e *ChangingEvent) Added() []*Record { return slices.Clone(e.added) }

// Removed returns the children removed by the event.
func (e *ChangingEvent) Removed() []*Record { return slices.Clone(e.removed) }

// IsEmpty reports whether the event changes nothing.
func (e *ChangingEvent) IsEmpty() bool {
	return len(e.attrs) == 0 && e.text == nil && len(e.added) == 0 && len(e.removed) == 0
}

func (e *ChangingEvent) apply() error {
	r := e.source

	// Validate children first so a failure leaves the record untouched.
	for _, c := range e.removed {
		if c.parent != r {
			return newError(ErrCodeInvalidChange, c, "not a child of <%s>", r.tag)
		}
	}

	e.attrPos = make([]int, len(e.attrs))
	for i, ch := range e.attrs {
		e.attrPos[i] = r.putAttr(ch.Name, ch.New())
	}
	if e.text != nil {
		r.text = e.text.New()
	}

	e.removedAt = make([]int, len(e.removed))
	for i, c := range e.removed {
		e.removedAt[i] = r.detachChild(c)
	}

	e.detached = make(map[*Record]bool)
	for _, c := range e.added {
		if r.ctx.isTop(c) {
			r.ctx.removeTop(c)
			e.detached[c] = true
		}
		c.parent = r
		r.children = append(r.children, c)
	}

	e.prevState = r.state
	r.state = r.state.afterChange()
	e.applied = true
	r.ctx.notifyChanging(e)
	return nil
}

func (e *ChangingEvent) revert() error {
	r := e.source

	for i := len(e.added) - 1; i >= 0; i-- {
		c := e.added[i]
		r.detachChild(c)
		if e.detached[c] {
			r.ctx.addTop(c)
		}
	}
	for i := len(e.removed) - 1; i >= 0; i-- {
		c := e.removed[i]
		r.insertChild(e.removedAt[i], c)
	}
	if e.text != nil {
		r.text = e.text.Old()
	}
	for i := len(e.attrs) - 1; i >= 0; i-- {
		ch := e.attrs[i]
		r.restoreAttr(ch.Name, ch.Old(), e.attrPos[i])
	}

	r.state = e.prevState
	e.applied = false
	return nil
}

// DeletingEvent marks a record for removal.
type DeletingEvent struct {
	baseEvent
}

// Kind implements Event.
func (e *DeletingEvent) Kind() string { return ir.KindDeleting }

func (e *DeletingEvent) apply() error {
	r := e.source
	e.prevState = r.state
	r.state = StateDeletion
	e.applied = true
	r.ctx.notifyDeleting(e)
	return nil
}

func (e *DeletingEvent) revert() error {
	e.source.state = e.prevState
	e.applied = false
	return nil
}
