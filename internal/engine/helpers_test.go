package engine

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const header = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

func testKinds() *Kinds {
	return NewKinds(
		&Kind{Tag: "item", IDAttribute: "id"},
		&Kind{Tag: "tool", IDAttribute: "id", Extends: "item"},
		&Kind{Tag: "note", IDAttribute: TextID, HasText: true},
		&Kind{Tag: "order", IDAttribute: "no", Required: []string{"no", "customer"}, Children: []string{"line"}},
		&Kind{Tag: "line"},
		&Kind{Tag: "tag"},
	)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readDoc(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func openDoc(t *testing.T, content string, opts ...Option) *Context {
	t.Helper()
	base := []Option{WithKinds(testKinds()), WithLogger(discardLogger())}
	c, err := Open(writeDoc(t, content), append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func mustElement(t *testing.T, c *Context, id string) *Record {
	t.Helper()
	r, err := c.Element(id)
	require.NoError(t, err)
	return r
}

// invoke runs task in a committing invocation.
func invoke(t *testing.T, c *Context, task func() error) {
	t.Helper()
	require.NoError(t, c.Invoke(t.Context(), true, task))
}
