package engine

import (
	"fmt"

	"github.com/roach88/xmlpersist/internal/xmldoc"
)

// Persister owns the parsed backing document of one context.
//
// The document is held in memory for the persister's lifetime and is replaced
// wholesale by Reload after every write, successful or not.
type Persister struct {
	path string
	doc  *xmldoc.Document
}

// NewPersister parses the document at path.
func NewPersister(path string) (*Persister, error) {
	p := &Persister{path: path}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Path returns the backing file path.
func (p *Persister) Path() string { return p.path }

// Document returns the parsed document. Callers must not mutate it.
func (p *Persister) Document() *xmldoc.Document { return p.doc }

// Reload discards the in-memory document and parses the file again.
func (p *Persister) Reload() error {
	doc, err := xmldoc.ParseFile(p.path)
	if err != nil {
		return fmt.Errorf("reload %s: %w", p.path, err)
	}
	p.doc = doc
	return nil
}

// Write serializes the document to the backing file.
func (p *Persister) Write() error {
	if err := p.doc.WriteFile(p.path); err != nil {
		return fmt.Errorf("write %s: %w", p.path, err)
	}
	return nil
}

// Locate finds the node of a persisted record by its committed shadow,
// scoped to the node of its parent.
func (p *Persister) Locate(r *Record) (*xmldoc.Node, error) {
	return p.locate(r, func(r *Record) *Shadow { return r.shadow }, nil)
}

// locate resolves r's node using shadowOf, caching results in nodes when it
// is non-nil.
func (p *Persister) locate(r *Record, shadowOf func(*Record) *Shadow, nodes map[*Record]*xmldoc.Node) (*xmldoc.Node, error) {
	if n, ok := nodes[r]; ok {
		return n, nil
	}
	sh := shadowOf(r)
	if sh == nil {
		return nil, newError(ErrCodeNoElement, r, "record was never persisted")
	}
	scope := p.doc.Root
	if r.parent != nil {
		var err error
		if scope, err = p.locate(r.parent, shadowOf, nodes); err != nil {
			return nil, err
		}
	}
	n, err := matchShadow(scope, r, sh)
	if err != nil {
		return nil, err
	}
	if nodes != nil {
		nodes[r] = n
	}
	return n, nil
}

// IsDescendant reports whether child's node lies inside parent's node.
// Child is searched by its shadow anywhere below parent's node.
func (p *Persister) IsDescendant(child, parent *Record) (bool, error) {
	pn, err := p.Locate(parent)
	if err != nil {
		return false, err
	}
	if child.shadow == nil {
		return false, nil
	}
	var found []*xmldoc.Node
	for _, c := range pn.Children {
		c.Walk(func(n *xmldoc.Node) bool {
			if n.Name == child.tag && child.shadow.Matches(n, child.kind.HasText) {
				found = append(found, n)
			}
			return true
		})
	}
	switch len(found) {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, newError(ErrCodeDuplicateElements, child, "duplicate elements found under <%s>", parent.tag)
	}
}

// Load instantiates clean records for the whole document.
//
// Records are built bottom-up so every child exists before its parent, then
// parent links are wired top-down in a second pass. The top-level records are
// returned in document order.
func (p *Persister) Load(c *Context) []*Record {
	byNode := make(map[*xmldoc.Node]*Record)
	var build func(n *xmldoc.Node)
	build = func(n *xmldoc.Node) {
		for _, ch := range n.Children {
			build(ch)
		}
		r := newRecord(c, n.Name)
		r.attrs = append([]Attr(nil), n.Attrs...)
		r.text = n.Text
		r.state = StateClean
		r.shadow = shadowOfNode(n)
		byNode[n] = r
	}
	for _, n := range p.doc.Root.Children {
		build(n)
	}

	var wire func(n *xmldoc.Node)
	wire = func(n *xmldoc.Node) {
		r := byNode[n]
		for _, ch := range n.Children {
			cr := byNode[ch]
			cr.parent = r
			r.children = append(r.children, cr)
			wire(ch)
		}
	}
	top := make([]*Record, 0, len(p.doc.Root.Children))
	for _, n := range p.doc.Root.Children {
		wire(n)
		top = append(top, byNode[n])
	}
	return top
}
