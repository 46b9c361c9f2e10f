package engine

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_CommitAndReload(t *testing.T) {
	c := openDoc(t, `<items/>`)

	invoke(t, c, func() error {
		_, err := c.Create("item", Attrs("id", "A1", "qty", "1"), "")
		return err
	})
	assert.Equal(t, header+"<items>\n  <item id=\"A1\" qty=\"1\"/>\n</items>\n", readDoc(t, c.Path()))

	r := mustElement(t, c, "A1")
	assert.Equal(t, StateClean, r.State())
	require.NotNil(t, r.Shadow())

	invoke(t, c, func() error { return r.SetAttribute("qty", "2") })
	assert.Equal(t, StateClean, r.State())
	qty, _ := r.Shadow().Attr("qty")
	assert.Equal(t, "2", qty)

	require.NoError(t, c.ReloadElements())
	reloaded := mustElement(t, c, "A1")
	assert.NotSame(t, r, reloaded)
	assert.Equal(t, "2", reloaded.Attr("qty"))

	node, err := c.Persister().Locate(reloaded)
	require.NoError(t, err)
	assert.True(t, reloaded.Shadow().Matches(node, false))
}

func TestContext_MutationNeedsTransaction(t *testing.T) {
	c := openDoc(t, `<items><item id="A1"/></items>`)
	r := mustElement(t, c, "A1")

	assert.True(t, IsNoTransaction(r.SetAttribute("qty", "1")))
	assert.True(t, IsNoTransaction(r.Delete()))
	_, err := c.Create("item", nil, "")
	assert.True(t, IsNoTransaction(err))
	assert.Equal(t, StateClean, r.State())
}

func TestContext_NoOpChangesAreNotQueued(t *testing.T) {
	c := openDoc(t, `<items><item id="A1" qty="1"/></items>`)
	r := mustElement(t, c, "A1")

	require.NoError(t, c.Invoke(t.Context(), false, func() error {
		if err := r.SetAttribute("qty", "1"); err != nil {
			return err
		}
		if err := r.RemoveAttribute("missing"); err != nil {
			return err
		}
		return r.SetText("")
	}))
	assert.Empty(t, c.Uncommitted())
	assert.Empty(t, r.Pending())
	assert.Equal(t, StateClean, r.State())
}

func TestContext_DuplicateIDsMerge(t *testing.T) {
	c := openDoc(t, `<items/>`)

	var first, second *Record
	invoke(t, c, func() error {
		var err error
		if first, err = c.Create("item", Attrs("id", "A1", "qty", "1"), ""); err != nil {
			return err
		}
		second, err = c.Create("item", Attrs("id", "A1", "qty", "5", "color", "red"), "")
		return err
	})

	assert.False(t, first.Locked())
	assert.True(t, second.Locked())
	assert.Len(t, c.UsableElements(), 1)
	assert.Same(t, first, mustElement(t, c, "A1"))
	assert.Equal(t, "5", first.Attr("qty"))
	assert.Equal(t, "red", first.Attr("color"))
	assert.Equal(t,
		header+"<items>\n  <item id=\"A1\" qty=\"5\" color=\"red\"/>\n</items>\n",
		readDoc(t, c.Path()))

	err := c.Invoke(t.Context(), true, func() error { return second.SetAttribute("qty", "9") })
	assert.True(t, IsLocked(err))
	assert.Contains(t, err.Error(), "locked, probably duplicate")
}

func TestContext_DuplicatesAreTagScoped(t *testing.T) {
	c := openDoc(t, `<items><item id="X"/></items>`)

	invoke(t, c, func() error {
		_, err := c.Create("tool", Attrs("id", "X"), "")
		return err
	})
	assert.Len(t, c.UsableElements(), 2)

	_, err := c.Element("X")
	assert.Equal(t, ErrCodeAmbiguousID, Code(err))
	assert.False(t, IsDuplicate(err))
	assert.Contains(t, err.Error(), "id used by <item> and <tool>")

	tool, err := c.ElementOf("tool", "X")
	require.NoError(t, err)
	assert.Equal(t, "tool", tool.Tag())
}

func TestContext_ElementErrors(t *testing.T) {
	c := openDoc(t, `<items><note>milk</note><note>milk</note></items>`)

	_, err := c.Element("")
	assert.True(t, IsNotFound(err))
	_, err = c.Element("bread")
	assert.True(t, IsNotFound(err))
	_, err = c.Element("milk")
	assert.Equal(t, ErrCodeDuplicateID, Code(err))
	assert.True(t, IsDuplicate(err))
	_, err = c.ElementOf("note", "milk")
	assert.Equal(t, ErrCodeDuplicateID, Code(err))
}

func TestContext_FailedShadowMatchLeavesEverythingUnchanged(t *testing.T) {
	tests := []struct {
		name     string
		external string
		code     ErrorCode
	}{
		{
			name:     "node edited externally",
			external: header + "<items>\n  <item id=\"A1\" qty=\"9\"/>\n</items>\n",
			code:     ErrCodeNoElement,
		},
		{
			name:     "node duplicated externally",
			external: header + "<items>\n  <item id=\"A1\" qty=\"1\"/>\n  <item id=\"A1\" qty=\"1\"/>\n</items>\n",
			code:     ErrCodeDuplicateElements,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := openDoc(t, `<items><item id="A1" qty="1"/></items>`)
			r := mustElement(t, c, "A1")

			require.NoError(t, os.WriteFile(c.Path(), []byte(tc.external), 0o644))
			require.NoError(t, c.Persister().Reload())

			var created *Record
			err := c.Invoke(t.Context(), true, func() error {
				var err error
				if created, err = c.Create("item", Attrs("id", "B2"), ""); err != nil {
					return err
				}
				return r.SetAttribute("qty", "2")
			})
			require.Error(t, err)
			assert.Equal(t, ErrCodeCommitFailed, Code(err))
			assert.True(t, HasCode(err, tc.code), "got %v", err)

			assert.Equal(t, tc.external, readDoc(t, c.Path()))
			assert.Equal(t, []*Record{r}, c.Elements())
			assert.Equal(t, "1", r.Attr("qty"))
			assert.Equal(t, StateClean, r.State())
			assert.Empty(t, r.Pending())
			assert.Equal(t, StateConception, created.State())
			assert.Nil(t, created.Shadow())

			// The in-memory document was reloaded from disk.
			for _, n := range c.Persister().Document().Root.Children {
				id, _ := n.Attr("id")
				assert.NotEqual(t, "B2", id)
			}
		})
	}
}

func TestContext_RevertAllRestoresFile(t *testing.T) {
	c := openDoc(t, `<items>
  <item id="A1" qty="1"/>
</items>`)
	before := readDoc(t, c.Path())
	a1 := mustElement(t, c, "A1")

	require.NoError(t, c.Invoke(t.Context(), false, func() error {
		if _, err := c.Create("item", Attrs("id", "B2"), ""); err != nil {
			return err
		}
		return a1.SetAttribute("qty", "3")
	}))
	assert.Len(t, c.InstancesOf("item"), 2)
	assert.Len(t, c.Uncommitted(), 1)
	assert.Equal(t, before, readDoc(t, c.Path()))

	require.NoError(t, c.RevertAll())
	assert.Empty(t, c.Uncommitted())
	assert.Equal(t, before, readDoc(t, c.Path()))
	for _, r := range c.InstancesOf("item") {
		assert.NotEqual(t, "B2", r.ID())
	}
	assert.Equal(t, "1", a1.Attr("qty"))
	assert.Equal(t, StateClean, a1.State())
}

func TestContext_CommitAll(t *testing.T) {
	c := openDoc(t, `<items/>`, WithIDGenerator(NewFixedGenerator("tx-1", "tx-2")))

	for _, id := range []string{"A1", "B2"} {
		require.NoError(t, c.Invoke(t.Context(), false, func() error {
			_, err := c.Create("item", Attrs("id", id), "")
			return err
		}))
	}
	queued := c.Uncommitted()
	require.Len(t, queued, 2)
	assert.Equal(t, "tx-1", queued[0].ID())
	assert.Less(t, queued[0].Seq(), queued[1].Seq())

	require.NoError(t, c.CommitAll(t.Context()))
	assert.Empty(t, c.Uncommitted())
	assert.True(t, queued[0].Committed())
	assert.Equal(t,
		header+"<items>\n  <item id=\"A1\"/>\n  <item id=\"B2\"/>\n</items>\n",
		readDoc(t, c.Path()))
}

func TestContext_CommitAllFailureRevertsRest(t *testing.T) {
	c := openDoc(t, `<items><item id="A1" qty="1"/></items>`)
	before := readDoc(t, c.Path())
	a1 := mustElement(t, c, "A1")

	require.NoError(t, c.Invoke(t.Context(), false, func() error {
		_, err := c.Create("order", Attrs("no", "7"), "") // missing customer
		return err
	}))
	require.NoError(t, c.Invoke(t.Context(), false, func() error {
		return a1.SetAttribute("qty", "2")
	}))

	err := c.CommitAll(t.Context())
	assert.True(t, HasCode(err, ErrCodeInvalidRecord), "got %v", err)
	assert.Empty(t, c.Uncommitted())
	assert.Equal(t, before, readDoc(t, c.Path()))
	assert.Equal(t, "1", a1.Attr("qty"))
	assert.Empty(t, c.InstancesOf("order"))
}

func TestContext_CommitAllWritesEachTransactionOnItsOwn(t *testing.T) {
	c := openDoc(t, `<items/>`)

	var a1, order *Record
	require.NoError(t, c.Invoke(t.Context(), false, func() error {
		var err error
		if a1, err = c.Create("item", Attrs("id", "A1", "qty", "1"), ""); err != nil {
			return err
		}
		order, err = c.Create("order", Attrs("no", "7", "customer", "acme"), "")
		return err
	}))
	require.NoError(t, c.Invoke(t.Context(), false, func() error {
		if err := a1.SetAttribute("qty", "2"); err != nil {
			return err
		}
		if _, err := order.CreateChild("line", Attrs("sku", "x1"), ""); err != nil {
			return err
		}
		_, err := c.Create("order", Attrs("no", "8"), "") // missing customer
		return err
	}))

	err := c.CommitAll(t.Context())
	assert.True(t, HasCode(err, ErrCodeInvalidRecord), "got %v", err)

	onDisk := header + `<items>
  <item id="A1" qty="1"/>
  <order no="7" customer="acme"/>
</items>
`
	assert.Equal(t, onDisk, readDoc(t, c.Path()))
	assert.Equal(t, "1", a1.Attr("qty"))
	assert.Equal(t, StateClean, a1.State())
	assert.Empty(t, a1.Pending())
	assert.Empty(t, order.Children())
	assert.Equal(t, StateClean, order.State())
	assert.Len(t, c.InstancesOf("order"), 1)

	// Memory already agrees with the file, so a reload changes nothing.
	require.NoError(t, c.ReloadElements())
	reloaded := mustElement(t, c, "A1")
	assert.Equal(t, a1.Attrs(), reloaded.Attrs())
	require.Len(t, c.InstancesOf("order"), 1)
	assert.Empty(t, c.InstancesOf("order")[0].Children())

	invoke(t, c, func() error { return reloaded.SetAttribute("qty", "3") })
	assert.Equal(t, header+`<items>
  <item id="A1" qty="3"/>
  <order no="7" customer="acme"/>
</items>
`, readDoc(t, c.Path()))
}

func TestContext_DeleteSemantics(t *testing.T) {
	c := openDoc(t, `<items>
  <item id="A1"/>
  <item id="B2"/>
</items>`)

	a1 := mustElement(t, c, "A1")
	require.NoError(t, c.Invoke(t.Context(), false, func() error { return a1.Delete() }))

	assert.Equal(t, StateDeletion, a1.State())
	assert.Len(t, c.UsableElements(), 1)
	assert.Same(t, a1, mustElement(t, c, "A1"), "still known until committed")
	assert.True(t, IsNoTransaction(a1.SetAttribute("x", "1")))

	require.NoError(t, c.ReloadElements())
	assert.Empty(t, c.Uncommitted())
	assert.Len(t, c.UsableElements(), 2)

	a1 = mustElement(t, c, "A1")
	invoke(t, c, func() error {
		if err := a1.Delete(); err != nil {
			return err
		}
		return a1.Delete()
	})
	_, err := c.Element("A1")
	assert.True(t, IsNotFound(err))
	assert.Nil(t, a1.Shadow())
	assert.Equal(t, header+"<items>\n  <item id=\"B2\"/>\n</items>\n", readDoc(t, c.Path()))
}

func TestContext_DeletedRecordRejectsChanges(t *testing.T) {
	c := openDoc(t, `<items><item id="A1"/></items>`)
	a1 := mustElement(t, c, "A1")

	err := c.Invoke(t.Context(), false, func() error {
		if err := a1.Delete(); err != nil {
			return err
		}
		return a1.SetAttribute("qty", "1")
	})
	assert.Equal(t, ErrCodeInvalidState, Code(err))
	assert.Equal(t, StateClean, a1.State(), "task error rolls the transaction back")
	assert.Empty(t, c.Uncommitted())
}

func TestContext_CreateThenDeleteInOneTransaction(t *testing.T) {
	c := openDoc(t, `<items/>`)

	invoke(t, c, func() error {
		r, err := c.Create("item", Attrs("id", "tmp"), "")
		if err != nil {
			return err
		}
		return r.Delete()
	})
	assert.Empty(t, c.Elements())
	assert.Equal(t, header+"<items/>\n", readDoc(t, c.Path()))
}

func TestContext_TaskErrorRollsBack(t *testing.T) {
	c := openDoc(t, `<items><item id="A1" a="1" b="2"/></items>`)
	a1 := mustElement(t, c, "A1")
	boom := errors.New("boom")

	err := c.Invoke(t.Context(), true, func() error {
		if err := a1.RemoveAttribute("a"); err != nil {
			return err
		}
		if err := a1.SetAttribute("a", "9"); err != nil {
			return err
		}
		if _, err := c.Create("item", Attrs("id", "B2"), ""); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Attrs("id", "A1", "a", "1", "b", "2"), a1.Attrs())
	assert.Len(t, c.Elements(), 1)
	assert.Nil(t, c.Transaction())
}

func TestContext_NestedInvokeSharesTransaction(t *testing.T) {
	c := openDoc(t, `<items><item id="A1"/></items>`)
	before := readDoc(t, c.Path())
	a1 := mustElement(t, c, "A1")

	require.NoError(t, c.Invoke(t.Context(), false, func() error {
		outer := c.Transaction()
		return c.Invoke(t.Context(), true, func() error {
			if c.Transaction() != outer {
				return errors.New("nested invoke opened a new transaction")
			}
			return a1.SetAttribute("qty", "1")
		})
	}))
	assert.Len(t, c.Uncommitted(), 1)
	assert.Equal(t, before, readDoc(t, c.Path()), "the outer invoke decides")
}

func TestInvokeValue(t *testing.T) {
	c := openDoc(t, `<items/>`)

	r, err := InvokeValue(t.Context(), c, true, func() (*Record, error) {
		return c.Create("note", nil, "milk")
	})
	require.NoError(t, err)
	assert.Equal(t, "milk", r.ID())
	assert.Equal(t, StateClean, r.State())

	got, err := InvokeValue(t.Context(), c, true, func() (int, error) { return 7, errors.New("nope") })
	assert.Error(t, err)
	assert.Zero(t, got)
}

func TestContext_ApplyOnly(t *testing.T) {
	c := openDoc(t, `<items><item id="A1" qty="1"/></items>`)
	before := readDoc(t, c.Path())
	a1 := mustElement(t, c, "A1")

	require.NoError(t, c.Apply(func() error { return a1.SetAttribute("qty", "7") }))
	assert.Equal(t, "7", a1.Attr("qty"))
	assert.Empty(t, a1.Pending())
	assert.Empty(t, c.Uncommitted())
	assert.Nil(t, c.Transaction())
	assert.Equal(t, before, readDoc(t, c.Path()))

	// The shadow still describes the file, so later commits locate the node.
	invoke(t, c, func() error { return a1.SetAttribute("note", "x") })
	assert.Equal(t,
		header+"<items>\n  <item id=\"A1\" qty=\"1\" note=\"x\"/>\n</items>\n",
		readDoc(t, c.Path()))
}

func TestContext_ApplyInsideInvokeRestoresTransaction(t *testing.T) {
	c := openDoc(t, `<items><item id="A1"/></items>`)
	a1 := mustElement(t, c, "A1")

	require.NoError(t, c.Invoke(t.Context(), false, func() error {
		outer := c.Transaction()
		if err := c.Apply(func() error { return a1.SetAttribute("fix", "1") }); err != nil {
			return err
		}
		if c.Transaction() != outer {
			return errors.New("transaction not restored")
		}
		return a1.SetAttribute("qty", "2")
	}))
	require.Len(t, c.Uncommitted(), 1)
	assert.Equal(t, 1, c.Uncommitted()[0].Len())
	assert.Len(t, a1.Pending(), 1)
}

func TestContext_ReloadInsideTransactionFails(t *testing.T) {
	c := openDoc(t, `<items/>`)
	err := c.Invoke(t.Context(), false, func() error { return c.ReloadElements() })
	assert.Equal(t, ErrCodeInvalidState, Code(err))
}

func TestContext_InstancesOf(t *testing.T) {
	c := openDoc(t, `<items>
  <item id="A1"/>
  <tool id="T1"/>
  <note>milk</note>
</items>`)

	ids := func(rs []*Record) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.ID())
		}
		return out
	}
	assert.Equal(t, []string{"A1", "T1"}, ids(c.InstancesOf("item")))
	assert.Equal(t, []string{"A1"}, ids(c.InstancesOf("item", "tool")))
	assert.Equal(t, []string{"milk"}, ids(c.InstancesOf("note")))
	assert.Equal(t, []string{"T1"}, ids(c.Filter(func(r *Record) bool { return r.Tag() == "tool" })))
}

func TestContext_RequiredAttributes(t *testing.T) {
	c := openDoc(t, `<orders/>`)
	before := readDoc(t, c.Path())

	err := c.Invoke(t.Context(), true, func() error {
		_, err := c.Create("order", Attrs("no", "1"), "")
		return err
	})
	assert.True(t, HasCode(err, ErrCodeInvalidRecord), "got %v", err)
	assert.Empty(t, c.Elements())
	assert.Equal(t, before, readDoc(t, c.Path()))

	invoke(t, c, func() error {
		o, err := c.Create("order", Attrs("no", "1", "customer", "ada"), "")
		if err != nil {
			return err
		}
		_, err = o.CreateChild("line", Attrs("sku", "x"), "")
		return err
	})
	assert.Equal(t,
		header+"<orders>\n  <order no=\"1\" customer=\"ada\">\n    <line sku=\"x\"/>\n  </order>\n</orders>\n",
		readDoc(t, c.Path()))

	written := readDoc(t, c.Path())
	o := mustElement(t, c, "1")
	err = c.Invoke(t.Context(), true, func() error {
		_, err := o.CreateChild("tag", nil, "")
		return err
	})
	assert.True(t, HasCode(err, ErrCodeInvalidRecord), "got %v", err)
	assert.Len(t, o.Children(), 1)
	assert.Equal(t, written, readDoc(t, c.Path()))
}
