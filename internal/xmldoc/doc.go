// Package xmldoc holds the parsed form of a backing document.
//
// A Document is a single-rooted tree of element Nodes. Each node carries a
// tag name, an ordered attribute list with unique names, optional text
// content, and ordered child elements. Comments, processing instructions and
// directives are not preserved; whitespace-only character data between
// elements is dropped and text content is stored trimmed.
//
// Serialization is deterministic: attributes keep their insertion order and
// children are indented by two spaces, so an unchanged tree always encodes to
// the same bytes. Writes go through a temporary file in the target directory
// followed by a rename, which makes a single file rewrite the unit of
// persistence.
package xmldoc
