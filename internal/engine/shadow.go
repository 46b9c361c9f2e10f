package engine

import (
	"maps"

	"github.com/roach88/xmlpersist/internal/xmldoc"
)

// Shadow is the last committed snapshot of a record's attributes and text.
//
// The backing document has no row ids, so a persisted record is found again by
// matching its shadow against the nodes of the same tag. Changes queued in an
// open transaction never touch the shadow.
type Shadow struct {
	attrs map[string]string
	text  string
}

func shadowOfNode(n *xmldoc.Node) *Shadow {
	return &Shadow{attrs: n.AttrMap(), text: n.Text}
}

// Attr returns the committed value of an attribute.
func (s *Shadow) Attr(name string) (string, bool) {
	v, ok := s.attrs[name]
	return v, ok
}

// Attrs returns a copy of the committed attributes.
func (s *Shadow) Attrs() map[string]string { return maps.Clone(s.attrs) }

// Text returns the committed text content.
func (s *Shadow) Text() string { return s.text }

// Matches reports whether n carries exactly the shadow's attributes, and its
// text when withText is set.
func (s *Shadow) Matches(n *xmldoc.Node, withText bool) bool {
	if len(n.Attrs) != len(s.attrs) {
		return false
	}
	for _, a := range n.Attrs {
		if v, ok := s.attrs[a.Name]; !ok || v != a.Value {
			return false
		}
	}
	return !withText || n.Text == s.text
}

// MatchesRecord reports whether r's current values equal the shadow.
func (s *Shadow) MatchesRecord(r *Record) bool {
	if len(r.attrs) != len(s.attrs) {
		return false
	}
	for _, a := range r.attrs {
		if v, ok := s.attrs[a.Name]; !ok || v != a.Value {
			return false
		}
	}
	return r.text == s.text
}

// matchShadow returns the single node with the given tag that matches sh.
// Direct children of scope are searched first. A record moved up to an
// ancestor with SetParent still sits deeper in the file, so when no direct
// child matches the rest of scope's subtree is searched. Top-level records
// are never moved and are only matched among the root's children.
func matchShadow(scope *xmldoc.Node, r *Record, sh *Shadow) (*xmldoc.Node, error) {
	match := func(n *xmldoc.Node) bool {
		return n.Name == r.tag && sh.Matches(n, r.kind.HasText)
	}
	var found []*xmldoc.Node
	for _, n := range scope.Children {
		if match(n) {
			found = append(found, n)
		}
	}
	if len(found) == 0 && scope.Parent != nil {
		for _, c := range scope.Children {
			for _, gc := range c.Children {
				gc.Walk(func(n *xmldoc.Node) bool {
					if match(n) {
						found = append(found, n)
					}
					return true
				})
			}
		}
	}
	switch len(found) {
	case 0:
		return nil, newError(ErrCodeNoElement, r, "no element found under %s", scope.Path())
	case 1:
		return found[0], nil
	default:
		return nil, newError(ErrCodeDuplicateElements, r, "duplicate elements found under %s (%d matches)", scope.Path(), len(found))
	}
}
