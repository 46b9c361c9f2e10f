package schema

import (
	"fmt"
	"strings"

	"github.com/roach88/xmlpersist/internal/engine"
	"github.com/roach88/xmlpersist/internal/xmldoc"
)

// Problem is a document node that violates the vocabulary.
type Problem struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	return p.Path + ": " + p.Message
}

// CheckDocument reports every element of doc that breaks its kind's
// contract, plus top-level records sharing a tag and business id. The root
// element itself is not a record and is not checked.
func CheckDocument(doc *xmldoc.Document, ks *engine.Kinds) []Problem {
	var problems []Problem
	for _, top := range doc.Root.Children {
		top.Walk(func(n *xmldoc.Node) bool {
			problems = append(problems, checkNode(n, ks)...)
			return true
		})
	}

	seen := make(map[string]*xmldoc.Node)
	for _, top := range doc.Root.Children {
		id := nodeID(top, ks.Lookup(top.Name))
		if id == "" {
			continue
		}
		key := top.Name + "\x00" + id
		if first, ok := seen[key]; ok {
			problems = append(problems, Problem{
				Path:    top.Path(),
				Message: fmt.Sprintf("duplicate id %q (first at %s)", id, first.Path()),
			})
			continue
		}
		seen[key] = top
	}
	return problems
}

func checkNode(n *xmldoc.Node, ks *engine.Kinds) []Problem {
	var problems []Problem
	k := ks.Lookup(n.Name)
	for _, name := range k.Required {
		if v, ok := n.Attr(name); !ok || strings.TrimSpace(v) == "" {
			problems = append(problems, Problem{Path: n.Path(), Message: fmt.Sprintf("missing required attribute %q", name)})
		}
	}
	if k.IDAttribute == engine.TextID && strings.TrimSpace(n.Text) == "" {
		problems = append(problems, Problem{Path: n.Path(), Message: "missing text id"})
	}
	for _, c := range n.Children {
		if !k.AllowsChild(c.Name) {
			problems = append(problems, Problem{Path: c.Path(), Message: fmt.Sprintf("<%s> not allowed in <%s>", c.Name, n.Name)})
		}
	}
	return problems
}

func nodeID(n *xmldoc.Node, k *engine.Kind) string {
	switch k.IDAttribute {
	case "":
		return ""
	case engine.TextID:
		return strings.TrimSpace(n.Text)
	default:
		v, _ := n.Attr(k.IDAttribute)
		return v
	}
}
