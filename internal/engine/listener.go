package engine

import (
	"fmt"
	"strings"
)

// Listener is notified synchronously whenever an event is applied, before the
// surrounding transaction commits. Env on the record's context carries the
// value passed to InvokeEnv.
type Listener interface {
	OnCreated(ev *CreatedEvent)
	OnChanging(ev *ChangingEvent)
	OnDeleting(ev *DeletingEvent)
}

// ListenerFuncs adapts plain functions to Listener. Nil hooks are skipped.
type ListenerFuncs struct {
	Created  func(*CreatedEvent)
	Changing func(*ChangingEvent)
	Deleting func(*DeletingEvent)
}

// OnCreated implements Listener.
func (f ListenerFuncs) OnCreated(ev *CreatedEvent) {
	if f.Created != nil {
		f.Created(ev)
	}
}

// OnChanging implements Listener.
func (f ListenerFuncs) OnChanging(ev *ChangingEvent) {
	if f.Changing != nil {
		f.Changing(ev)
	}
}

// OnDeleting implements Listener.
func (f ListenerFuncs) OnDeleting(ev *DeletingEvent) {
	if f.Deleting != nil {
		f.Deleting(ev)
	}
}

type subscription struct {
	l Listener
}

// Subscribe registers l and returns a function removing it again.
// Listeners are called in subscription order.
func (c *Context) Subscribe(l Listener) (unsubscribe func()) {
	s := &subscription{l: l}
	c.listeners = append(c.listeners, s)
	return func() {
		for i, cur := range c.listeners {
			if cur == s {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// snapshot guards against listeners that unsubscribe while being notified.
func (c *Context) snapshot() []*subscription {
	return append([]*subscription(nil), c.listeners...)
}

func (c *Context) notifyCreated(ev *CreatedEvent) {
	for _, s := range c.snapshot() {
		s.l.OnCreated(ev)
	}
}

func (c *Context) notifyChanging(ev *ChangingEvent) {
	for _, s := range c.snapshot() {
		s.l.OnChanging(ev)
	}
}

func (c *Context) notifyDeleting(ev *DeletingEvent) {
	for _, s := range c.snapshot() {
		s.l.OnDeleting(ev)
	}
}

// Describe renders a one-line human readable summary of ev, e.g.
//
//	changed <item id=A1>: qty "1" -> "2"
func Describe(ev Event) string {
	r := ev.Source()
	subject := "<" + r.tag
	if id := r.ID(); id != "" {
		subject += " id=" + id
	}
	subject += ">"

	switch e := ev.(type) {
	case *CreatedEvent:
		if e.duplicateOf != nil {
			return "merged duplicate " + subject
		}
		return "created " + subject
	case *DeletingEvent:
		return "deleting " + subject
	case *ChangingEvent:
		var parts []string
		for _, ch := range e.attrs {
			parts = append(parts, fmt.Sprintf("%s %s -> %s", ch.Name, quoteAttr(ch.Old()), quoteAttr(ch.New())))
		}
		if e.text != nil {
			parts = append(parts, fmt.Sprintf("text %q -> %q", e.text.Old(), e.text.New()))
		}
		for _, c := range e.added {
			parts = append(parts, "+<"+c.tag+">")
		}
		for _, c := range e.removed {
			parts = append(parts, "-<"+c.tag+">")
		}
		return "changed " + subject + ": " + strings.Join(parts, ", ")
	default:
		return subject
	}
}

func quoteAttr(v AttrValue) string {
	if !v.Present {
		return "(absent)"
	}
	return fmt.Sprintf("%q", v.Value)
}
