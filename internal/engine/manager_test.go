package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Partitioned(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(t.TempDir(), "template.xml")
	require.NoError(t, os.WriteFile(template, []byte(`<items><item id="welcome"/></items>`), 0o644))

	m, err := NewPartitionedManager(filepath.Join(dir, "tenants"), template,
		WithKinds(testKinds()), WithLogger(discardLogger()))
	require.NoError(t, err)
	assert.Equal(t, ModePartitioned, m.Mode())

	alpha, err := m.Context("alpha")
	require.NoError(t, err)
	again, err := m.Context("alpha")
	require.NoError(t, err)
	assert.Same(t, alpha, again)

	_, err = os.Stat(filepath.Join(dir, "tenants", "alpha.xml"))
	require.NoError(t, err, "file created from template")
	assert.Len(t, alpha.Elements(), 1)

	err = m.Do("alpha", func(c *Context) error {
		return c.Invoke(t.Context(), true, func() error {
			_, err := c.Create("item", Attrs("id", "A1"), "")
			return err
		})
	})
	require.NoError(t, err)

	beta, err := m.Context("beta")
	require.NoError(t, err)
	assert.Len(t, beta.Elements(), 1, "new partition starts from the template, not from alpha")
	assert.Len(t, alpha.Elements(), 2)
	assert.Equal(t, []string{"alpha", "beta"}, m.Keys())

	for _, bad := range []string{"", "../x", "a/b", `a\b`} {
		_, err := m.Context(bad)
		assert.Error(t, err, "key %q", bad)
	}
}

func TestManager_PartitionedWithoutTemplate(t *testing.T) {
	m, err := NewPartitionedManager(t.TempDir(), "", WithLogger(discardLogger()))
	require.NoError(t, err)

	c, err := m.Context("k")
	require.NoError(t, err)
	assert.Empty(t, c.Elements())
	assert.Equal(t, DefaultRoot, c.Persister().Document().Root.Name)
}

func TestManager_Shared(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.xml")
	m, err := NewSharedManager(path, "", WithKinds(testKinds()), WithLogger(discardLogger()))
	require.NoError(t, err)
	assert.Equal(t, ModeShared, m.Mode())

	a, err := m.Context("alpha")
	require.NoError(t, err)
	b, err := m.Context("beta")
	require.NoError(t, err)
	assert.Same(t, a, b)

	require.NoError(t, a.Invoke(t.Context(), false, func() error {
		_, err := a.Create("item", Attrs("id", "A1"), "")
		return err
	}))
	require.NoError(t, m.CommitAll(t.Context()))
	assert.Equal(t, header+"<records>\n  <item id=\"A1\"/>\n</records>\n", readDoc(t, path))
}
