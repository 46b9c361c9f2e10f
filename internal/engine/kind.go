package engine

import (
	"slices"
	"strings"
)

// TextID is the IDAttribute value that makes a kind use its text content as
// business id.
const TextID = "#text"

// Kind describes the behaviour of one tag: where its business id comes
// from, whether text participates in shadow matching, and the attributes and
// child tags it accepts.
type Kind struct {
	Tag string

	// IDAttribute names the attribute holding the business id, or TextID.
	// Empty means records of this kind have no id.
	IDAttribute string

	// HasText makes text content part of the shadow match.
	HasText bool

	// Required attributes must be present and non-empty when a record of
	// this kind is first written.
	Required []string

	// Children restricts the tags of child records. Empty allows any.
	Children []string

	// Extends names the kind this one is an instance of.
	Extends string
}

// Validate checks r against the kind's attribute and child contracts.
func (k *Kind) Validate(r *Record) error {
	for _, name := range k.Required {
		if v, ok := r.LookupAttr(name); !ok || strings.TrimSpace(v) == "" {
			return newError(ErrCodeInvalidRecord, r, "missing required attribute %q", name)
		}
	}
	if k.IDAttribute == TextID && strings.TrimSpace(r.text) == "" {
		return newError(ErrCodeInvalidRecord, r, "missing text id")
	}
	for _, c := range r.children {
		if !k.AllowsChild(c.tag) {
			return newError(ErrCodeInvalidRecord, r, "child <%s> not allowed", c.tag)
		}
	}
	return nil
}

// AllowsChild reports whether records of this kind may contain tag.
func (k *Kind) AllowsChild(tag string) bool {
	return len(k.Children) == 0 || slices.Contains(k.Children, tag)
}

// Kinds is the tag vocabulary of a document.
// Unknown tags get a generic kind without id whose text is matched.
type Kinds struct {
	byTag map[string]*Kind
}

// NewKinds creates a vocabulary from the given kinds.
func NewKinds(kinds ...*Kind) *Kinds {
	ks := &Kinds{byTag: make(map[string]*Kind, len(kinds))}
	for _, k := range kinds {
		ks.Add(k)
	}
	return ks
}

// Add registers or replaces a kind.
func (ks *Kinds) Add(k *Kind) {
	ks.byTag[k.Tag] = k
}

// Lookup returns the kind for tag. Safe on a nil receiver.
func (ks *Kinds) Lookup(tag string) *Kind {
	if ks != nil {
		if k, ok := ks.byTag[tag]; ok {
			return k
		}
	}
	return &Kind{Tag: tag, HasText: true}
}

// Tags returns the registered tags in sorted order.
func (ks *Kinds) Tags() []string {
	if ks == nil {
		return nil
	}
	tags := make([]string, 0, len(ks.byTag))
	for t := range ks.byTag {
		tags = append(tags, t)
	}
	slices.Sort(tags)
	return tags
}

// IsA reports whether tag is typ or extends it, directly or transitively.
func (ks *Kinds) IsA(tag, typ string) bool {
	seen := make(map[string]bool)
	for cur := tag; cur != "" && !seen[cur]; {
		if cur == typ {
			return true
		}
		seen[cur] = true
		if ks == nil {
			return false
		}
		k, ok := ks.byTag[cur]
		if !ok {
			return false
		}
		cur = k.Extends
	}
	return false
}
