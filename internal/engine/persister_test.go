package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersister_LoadWiresTree(t *testing.T) {
	c := openDoc(t, `<items>
  <item id="A1">
    <group name="g">
      <tag name="red"/>
      <tag name="blue"/>
    </group>
  </item>
  <item id="B2"/>
</items>`)

	top := c.Elements()
	require.Len(t, top, 2)

	a1 := top[0]
	assert.Nil(t, a1.Parent())
	require.Len(t, a1.Children(), 1)
	group := a1.Children()[0]
	assert.Same(t, a1, group.Parent())
	require.Len(t, group.Children(), 2)
	for _, tag := range group.Children() {
		assert.Same(t, group, tag.Parent())
		assert.Equal(t, StateClean, tag.State())
		require.NotNil(t, tag.Shadow())
	}
	assert.Equal(t, "blue", group.Children()[1].Attr("name"))
}

func TestPersister_Locate(t *testing.T) {
	c := openDoc(t, `<items>
  <item id="A1">
    <tag name="red"/>
  </item>
  <item id="B2">
    <tag name="red"/>
  </item>
</items>`)
	b2 := mustElement(t, c, "B2")
	red := b2.Children()[0]

	n, err := c.Persister().Locate(red)
	require.NoError(t, err)
	assert.Equal(t, "/items/item[2]/tag", n.Path(), "match is scoped to the parent's node")

	tmp := &Record{tag: "item", kind: c.kinds.Lookup("item"), ctx: c}
	_, err = c.Persister().Locate(tmp)
	assert.True(t, IsNoElement(err))
}

func TestShadow_Matches(t *testing.T) {
	c := openDoc(t, `<items><item id="A1" qty="1">text</item></items>`)
	a1 := mustElement(t, c, "A1")
	n, err := c.Persister().Locate(a1)
	require.NoError(t, err)

	sh := a1.Shadow()
	assert.True(t, sh.Matches(n, true))
	assert.True(t, sh.MatchesRecord(a1))

	n.SetAttr("extra", "1")
	assert.False(t, sh.Matches(n, false), "attribute sets must be equal")
	n.RemoveAttr("extra")

	n.Text = "other"
	assert.True(t, sh.Matches(n, false))
	assert.False(t, sh.Matches(n, true))
}
