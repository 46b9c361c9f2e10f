package engine

import (
	"slices"
	"strings"

	"github.com/roach88/xmlpersist/internal/xmldoc"
)

// Attr is a single attribute of a record.
type Attr = xmldoc.Attr

// Attrs builds an attribute list from name/value pairs.
// A trailing name without value is ignored.
func Attrs(kv ...string) []Attr {
	out := make([]Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, Attr{Name: kv[i], Value: kv[i+1]})
	}
	return out
}

// Record is the in-memory representation of one element of the backing
// document.
//
// All mutations go through events queued on the owning context's active
// transaction. They are visible in memory immediately and reach the file
// only when the transaction commits.
type Record struct {
	tag      string
	kind     *Kind
	attrs    []Attr
	text     string
	children []*Record
	parent   *Record
	state    State
	pending  []Event
	locked   bool
	shadow   *Shadow
	created  *CreatedEvent
	ctx      *Context
}

func newRecord(ctx *Context, tag string) *Record {
	return &Record{
		tag:  tag,
		kind: ctx.kinds.Lookup(tag),
		ctx:  ctx,
	}
}

// Tag returns the element name.
func (r *Record) Tag() string { return r.tag }

// Kind returns the tag descriptor of the record.
func (r *Record) Kind() *Kind { return r.kind }

// ID returns the business id, or "" if the kind defines none.
func (r *Record) ID() string {
	switch r.kind.IDAttribute {
	case "":
		return ""
	case TextID:
		return strings.TrimSpace(r.text)
	default:
		return r.Attr(r.kind.IDAttribute)
	}
}

// Attr returns the value of the named attribute, or "".
func (r *Record) Attr(name string) string {
	v, _ := r.LookupAttr(name)
	return v
}

// LookupAttr returns the value of the named attribute and whether it exists.
func (r *Record) LookupAttr(name string) (string, bool) {
	for _, a := range r.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Attrs returns a copy of the attributes in document order.
func (r *Record) Attrs() []Attr { return slices.Clone(r.attrs) }

// Text returns the text content.
func (r *Record) Text() string { return r.text }

// Children returns a copy of the child list.
func (r *Record) Children() []*Record { return slices.Clone(r.children) }

// Parent returns the parent record, or nil for a top-level record.
func (r *Record) Parent() *Record { return r.parent }

// State returns the lifecycle state.
func (r *Record) State() State { return r.state }

// Locked reports whether the record was rejected as a duplicate.
func (r *Record) Locked() bool { return r.locked }

// Shadow returns the last committed snapshot, or nil if the record was never
// persisted.
func (r *Record) Shadow() *Shadow { return r.shadow }

// Pending returns the uncommitted events of the record.
func (r *Record) Pending() []Event { return slices.Clone(r.pending) }

// Context returns the owning context.
func (r *Record) Context() *Context { return r.ctx }

// Persisted reports whether the record has a node in the backing file.
func (r *Record) Persisted() bool { return r.shadow != nil }

// SetAttribute sets an attribute, adding it if absent.
func (r *Record) SetAttribute(name, value string) error {
	old, ok := r.LookupAttr(name)
	if ok && old == value {
		return nil
	}
	before := Absent
	if ok {
		before = Present(old)
	}
	return r.changeAttr(name, before, Present(value))
}

// RemoveAttribute removes an attribute. Removing an absent attribute is a
// no-op.
func (r *Record) RemoveAttribute(name string) error {
	old, ok := r.LookupAttr(name)
	if !ok {
		return nil
	}
	return r.changeAttr(name, Present(old), Absent)
}

func (r *Record) changeAttr(name string, before, after AttrValue) error {
	vc, err := NewValueChange(before, after)
	if err != nil {
		return err
	}
	return r.queue(&ChangingEvent{
		baseEvent: baseEvent{source: r},
		attrs:     []AttributeChange{{Name: name, ValueChange: vc}},
	})
}

// SetText replaces the text content. Surrounding whitespace is dropped, as
// it would be when the document is read back.
func (r *Record) SetText(text string) error {
	text = xmldoc.NormalizeText(text)
	if text == r.text {
		return nil
	}
	vc, err := NewValueChange(r.text, text)
	if err != nil {
		return err
	}
	return r.queue(&ChangingEvent{baseEvent: baseEvent{source: r}, text: &vc})
}

// AddChild appends child to the record's children.
// Only records that are not yet persisted can be added; use SetParent to
// re-attach a persisted record.
func (r *Record) AddChild(child *Record) error {
	if err := r.checkChild(child); err != nil {
		return err
	}
	return r.queue(&ChangingEvent{baseEvent: baseEvent{source: r}, added: []*Record{child}})
}

func (r *Record) checkChild(child *Record) error {
	switch {
	case child == nil:
		return newError(ErrCodeInvalidChange, r, "nil child")
	case child.ctx != r.ctx:
		return newError(ErrCodeInvalidChange, child, "child belongs to another context")
	case child.locked:
		return newError(ErrCodeLocked, child, "locked, probably duplicate")
	case child.state != StateConception:
		return newError(ErrCodeInvalidState, child, "only new records can be added as children, use SetParent")
	case child.parent != nil:
		return newError(ErrCodeInvalidChange, child, "record already has a parent")
	case child == r || r.isDescendantOf(child):
		return newError(ErrCodeInvalidChange, child, "adding <%s> would create a cycle", child.tag)
	}
	return nil
}

// RemoveChild detaches child from the record. The child's node is removed from
// the file on commit.
func (r *Record) RemoveChild(child *Record) error {
	if child == nil || child.parent != r {
		return newError(ErrCodeInvalidChange, r, "not a child of <%s>", r.tag)
	}
	return r.queue(&ChangingEvent{baseEvent: baseEvent{source: r}, removed: []*Record{child}})
}

// CreateChild creates a new record and adds it as the last child.
func (r *Record) CreateChild(tag string, attrs []Attr, text string) (*Record, error) {
	if _, err := r.writable(); err != nil {
		return nil, err
	}
	c := newRecord(r.ctx, tag)
	for _, a := range attrs {
		c.putAttr(a.Name, Present(a.Value))
	}
	c.text = xmldoc.NormalizeText(text)

	if err := r.queue(&ChangingEvent{baseEvent: baseEvent{source: r}, added: []*Record{c}}); err != nil {
		return nil, err
	}
	// Parent is already set, so the created event only notifies.
	if err := c.queue(newCreatedEvent(c)); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete marks the record for deletion. Deleting a record twice is a no-op.
func (r *Record) Delete() error {
	if r.state == StateDeletion {
		return nil
	}
	return r.queue(&DeletingEvent{baseEvent: baseEvent{source: r}})
}

// SetParent moves the record under parent.
//
// A record that is not yet persisted may take any parent. A persisted record
// may only be re-attached to a parent whose node already contains its node in
// the backing document; the link is then fixed up in memory only.
func (r *Record) SetParent(parent *Record) error {
	if parent == r.parent {
		return nil
	}
	if r.locked {
		return newError(ErrCodeLocked, r, "locked, probably duplicate")
	}
	if !r.Persisted() {
		if parent == nil {
			return newError(ErrCodeInvalidChange, r, "cannot detach a new record")
		}
		if r.parent != nil {
			return newError(ErrCodeInvalidChange, r, "record already has a parent")
		}
		return parent.AddChild(r)
	}
	if parent == nil || !parent.Persisted() {
		return newError(ErrCodeNotDescendant, r, "new parent is not persisted")
	}
	ok, err := r.ctx.persister.IsDescendant(r, parent)
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrCodeNotDescendant, r, "not a descendant of <%s>", parent.tag)
	}
	if r.parent != nil {
		r.parent.detachChild(r)
	} else {
		r.ctx.removeTop(r)
	}
	r.parent = parent
	parent.children = append(parent.children, r)
	return nil
}

// writable returns the active transaction if the record accepts changes.
func (r *Record) writable() (*Transaction, error) {
	if r.locked {
		return nil, newError(ErrCodeLocked, r, "locked, probably duplicate")
	}
	tx := r.ctx.active
	if tx == nil {
		return nil, newError(ErrCodeNoTransaction, r, "Context has no transaction")
	}
	if err := r.state.checkMutable(r); err != nil {
		return nil, err
	}
	return tx, nil
}

// queue applies ev and records it on the record and the active transaction.
// Nothing is queued when application fails.
func (r *Record) queue(ev Event) error {
	tx, err := r.writable()
	if err != nil {
		return err
	}
	if ch, ok := ev.(*ChangingEvent); ok && ch.IsEmpty() {
		return nil
	}
	if err := ev.apply(); err != nil {
		return err
	}
	r.pending = append(r.pending, ev)
	tx.add(ev)
	return nil
}

// putAttr sets or removes an attribute and returns the attribute's previous
// position, or -1 if it was absent.
func (r *Record) putAttr(name string, v AttrValue) int {
	for i := range r.attrs {
		if r.attrs[i].Name != name {
			continue
		}
		if v.Present {
			r.attrs[i].Value = v.Value
		} else {
			r.attrs = slices.Delete(r.attrs, i, i+1)
		}
		return i
	}
	if v.Present {
		r.attrs = append(r.attrs, Attr{Name: name, Value: v.Value})
	}
	return -1
}

// restoreAttr undoes putAttr, putting a removed attribute back at pos.
func (r *Record) restoreAttr(name string, v AttrValue, pos int) {
	for i := range r.attrs {
		if r.attrs[i].Name != name {
			continue
		}
		if v.Present {
			r.attrs[i].Value = v.Value
		} else {
			r.attrs = slices.Delete(r.attrs, i, i+1)
		}
		return
	}
	if !v.Present {
		return
	}
	if pos < 0 || pos > len(r.attrs) {
		pos = len(r.attrs)
	}
	r.attrs = slices.Insert(r.attrs, pos, Attr{Name: name, Value: v.Value})
}

func (r *Record) detachChild(c *Record) int {
	i := slices.Index(r.children, c)
	if i < 0 {
		return -1
	}
	r.children = slices.Delete(r.children, i, i+1)
	c.parent = nil
	return i
}

func (r *Record) insertChild(i int, c *Record) {
	if i < 0 || i > len(r.children) {
		i = len(r.children)
	}
	r.children = slices.Insert(r.children, i, c)
	c.parent = r
}

func (r *Record) isDescendantOf(anc *Record) bool {
	for p := r.parent; p != nil; p = p.parent {
		if p == anc {
			return true
		}
	}
	return false
}

// dropPending removes the given events from the pending list.
func (r *Record) dropPending(done map[Event]bool) {
	r.pending = slices.DeleteFunc(r.pending, func(ev Event) bool { return done[ev] })
}

// settle moves the record to its post-commit state once its own events are
// committed. Records with events queued in later transactions stay touched.
// settleReverted fixes the state of a record after a rollback. Events
// restore the state they saw when applied, which is stale when an earlier
// transaction committed the record in between.
func (r *Record) settleReverted() {
	if r.shadow == nil || r.locked || r.state == StateDeletion {
		return
	}
	switch {
	case len(r.pending) == 0 && r.shadow.MatchesRecord(r):
		r.state = StateClean
	case r.state == StateConception:
		r.state = StateTouched
	}
}

func (r *Record) settle(created bool) {
	if r.state == StateDeletion || r.locked {
		return
	}
	if len(r.pending) == 0 {
		r.state = r.state.afterCommit()
		return
	}
	if created {
		r.state = StateTouched
	}
}
