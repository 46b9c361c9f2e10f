package xmldoc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Header is written at the top of every encoded document.
const Header = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// Document is a parsed backing file.
type Document struct {
	Root *Node
}

// New creates a document with an empty root element.
func New(rootName string) *Document {
	return &Document{Root: NewNode(rootName)}
}

// Parse reads a document from r.
// Namespace prefixes are kept verbatim as part of tag and attribute names.
func Parse(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true

	var (
		root  *Node
		stack []*Node
		texts []*strings.Builder
	)

	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: qualified(t.Name)}
			for _, a := range t.Attr {
				n.SetAttr(qualified(a.Name), a.Value)
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("parse document: multiple root elements")
				}
				root = n
			} else {
				stack[len(stack)-1].AppendChild(n)
			}
			stack = append(stack, n)
			texts = append(texts, &strings.Builder{})

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("parse document: unexpected </%s>", qualified(t.Name))
			}
			top := stack[len(stack)-1]
			if top.Name != qualified(t.Name) {
				return nil, fmt.Errorf("parse document: </%s> closes <%s>", qualified(t.Name), top.Name)
			}
			top.Text = NormalizeText(texts[len(texts)-1].String())
			stack = stack[:len(stack)-1]
			texts = texts[:len(texts)-1]

		case xml.CharData:
			if len(texts) > 0 {
				texts[len(texts)-1].Write(t)
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("parse document: no root element")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("parse document: unclosed <%s>", stack[len(stack)-1].Name)
	}
	return &Document{Root: root}, nil
}

// NormalizeText returns text as it reads back from an encoded document.
// Surrounding whitespace belongs to the indentation and is dropped.
func NormalizeText(text string) string {
	return strings.TrimSpace(text)
}

// ParseString parses a document held in a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// ParseFile opens and parses the document at path.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func qualified(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

// Encode writes the document with the XML header and two-space indentation.
func (d *Document) Encode(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteString(Header)
	if err := encodeNode(&buf, d.Root, 0); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Bytes returns the encoded document.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile encodes the document into a temporary file next to path and
// renames it over path.
func (d *Document) WriteFile(path string) error {
	data, err := d.Bytes()
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write document: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

func encodeNode(buf *bytes.Buffer, n *Node, depth int) error {
	indent := strings.Repeat("  ", depth)
	buf.WriteString(indent)
	buf.WriteByte('<')
	buf.WriteString(n.Name)
	for _, a := range n.Attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Name)
		buf.WriteString(`="`)
		if err := xml.EscapeText(buf, []byte(a.Value)); err != nil {
			return err
		}
		buf.WriteByte('"')
	}

	if n.Text == "" && len(n.Children) == 0 {
		buf.WriteString("/>\n")
		return nil
	}
	buf.WriteByte('>')
	if n.Text != "" {
		if err := xml.EscapeText(buf, []byte(n.Text)); err != nil {
			return err
		}
	}
	if len(n.Children) > 0 {
		buf.WriteByte('\n')
		for _, c := range n.Children {
			if err := encodeNode(buf, c, depth+1); err != nil {
				return err
			}
		}
		buf.WriteString(indent)
	}
	buf.WriteString("</")
	buf.WriteString(n.Name)
	buf.WriteString(">\n")
	return nil
}
