package xmldoc

import (
	"fmt"
	"strings"
)

// Attr is a single attribute of a node.
type Attr struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Node is one element of a document.
type Node struct {
	Name     string
	Attrs    []Attr
	Text     string
	Children []*Node
	Parent   *Node
}

// NewNode creates a detached node with the given tag name.
func NewNode(name string, attrs ...Attr) *Node {
	n := &Node{Name: name}
	for _, a := range attrs {
		n.SetAttr(a.Name, a.Value)
	}
	return n
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets an attribute, replacing an existing value in place or
// appending a new attribute at the end.
func (n *Node) SetAttr(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// RemoveAttr deletes an attribute. Returns false if it was not present.
func (n *Node) RemoveAttr(name string) bool {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs = append(n.Attrs[:i], n.Attrs[i+1:]...)
			return true
		}
	}
	return false
}

// AttrMap returns a copy of the attributes keyed by name.
func (n *Node) AttrMap() map[string]string {
	m := make(map[string]string, len(n.Attrs))
	for _, a := range n.Attrs {
		m[a.Name] = a.Value
	}
	return m
}

// AppendChild attaches c as the last child of n, detaching it from any
// previous parent first.
func (n *Node) AppendChild(c *Node) {
	if c.Parent != nil {
		c.Parent.RemoveChild(c)
	}
	c.Parent = n
	n.Children = append(n.Children, c)
}

// RemoveChild detaches c from n. Returns false if c is not a child of n.
func (n *Node) RemoveChild(c *Node) bool {
	for i, child := range n.Children {
		if child == c {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			c.Parent = nil
			return true
		}
	}
	return false
}

// ChildrenNamed returns the direct children with the given tag name, in
// document order.
func (n *Node) ChildrenNamed(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// IsDescendantOf reports whether anc is a strict ancestor of n.
func (n *Node) IsDescendantOf(anc *Node) bool {
	if anc == nil {
		return false
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p == anc {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of n. The copy has no parent.
func (n *Node) Clone() *Node {
	c := &Node{
		Name:  n.Name,
		Text:  n.Text,
		Attrs: append([]Attr(nil), n.Attrs...),
	}
	for _, child := range n.Children {
		cc := child.Clone()
		cc.Parent = c
		c.Children = append(c.Children, cc)
	}
	return c
}

// Walk visits n and its descendants depth-first, parents before children.
// Returning false from fn skips the node's subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Path returns a human-readable location such as /items/item[2].
// Indexes are 1-based among siblings of the same name.
func (n *Node) Path() string {
	var parts []string
	for cur := n; cur != nil; cur = cur.Parent {
		seg := cur.Name
		if cur.Parent != nil {
			same := cur.Parent.ChildrenNamed(cur.Name)
			if len(same) > 1 {
				for i, s := range same {
					if s == cur {
						seg = fmt.Sprintf("%s[%d]", cur.Name, i+1)
						break
					}
				}
			}
		}
		parts = append(parts, seg)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}
