package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/xmlpersist/internal/engine"
	"github.com/roach88/xmlpersist/internal/schema"
	"github.com/roach88/xmlpersist/internal/store"
	"github.com/roach88/xmlpersist/internal/testutil"
)

// runner executes one scenario.
type runner struct {
	ctx    context.Context
	c      *engine.Context
	path   string
	seed   string
	opts   []engine.Option
	refs   map[string]*engine.Record
	result *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on its own temp document and in-memory journal.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
//  1. Write the seed document and load the vocabulary
//  2. Open a context with a journal and a notification recorder
//  3. Execute steps, checking expected errors
//  4. Capture the committed file and the journal
//  5. Evaluate assertions
//
// An error is returned only when the scenario cannot be set up; step and
// assertion failures are reported in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "xmlpersist-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "document.xml")
	if err := os.WriteFile(path, []byte(scenario.Document), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write seed document: %w", err)
	}

	var kinds *engine.Kinds
	if scenario.Schema != "" {
		if kinds, err = schema.Load(scenario.Schema); err != nil {
			return nil, fmt.Errorf("failed to load schema: %w", err)
		}
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer st.Close()

	r := &runner{
		ctx:  ctx,
		path: path,
		seed: scenario.Document,
		opts: []engine.Option{
			engine.WithKinds(kinds),
			engine.WithJournal(st),
			engine.WithLogger(testutil.DiscardLogger()),
			engine.WithClock(engine.NewClock()),
			engine.WithIDGenerator(testutil.NewSequentialIDs(scenario.TxPrefix)),
		},
		result: NewResult(),
	}
	if err := r.open(); err != nil {
		return nil, err
	}

	for i, step := range scenario.Steps {
		r.step(i, step)
	}

	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read committed document: %w", err)
	}
	r.result.Document = string(doc)
	if r.result.Journal, err = st.ReadTransactions(ctx, ""); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	for _, msg := range r.evaluate(scenario.Assertions) {
		r.result.AddError(msg)
	}
	return r.result, nil
}

// open (re)opens the context on the backing file.
func (r *runner) open() error {
	c, err := engine.Open(r.path, r.opts...)
	if err != nil {
		return fmt.Errorf("failed to open context: %w", err)
	}
	record := func(ev engine.Event) {
		r.result.Notifications = append(r.result.Notifications, engine.Describe(ev))
	}
	c.Subscribe(engine.ListenerFuncs{
		Created:  func(ev *engine.CreatedEvent) { record(ev) },
		Changing: func(ev *engine.ChangingEvent) { record(ev) },
		Deleting: func(ev *engine.DeletingEvent) { record(ev) },
	})
	r.c = c
	r.refs = make(map[string]*engine.Record)
	return nil
}

func (r *runner) step(index int, s Step) {
	var err error
	switch s.Do {
	case StepInvoke:
		var env any
		if s.Env != "" {
			env = s.Env
		}
		err = r.c.InvokeEnv(r.ctx, s.Commit, env, func() error { return r.ops(s.Ops) })
	case StepApply:
		err = r.c.Apply(func() error { return r.ops(s.Ops) })
	case StepCommitAll:
		err = r.c.CommitAll(r.ctx)
	case StepRevertAll:
		err = r.c.RevertAll()
	case StepReload:
		err = r.c.ReloadElements()
		clear(r.refs)
	case StepReopen:
		err = r.open()
	case StepOverwrite:
		err = os.WriteFile(r.path, []byte(s.Document), 0o644)
	}

	switch {
	case s.Error == "" && err != nil:
		r.result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", index, s.Do, err))
	case s.Error != "" && err == nil:
		r.result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got success", index, s.Do, s.Error))
	case s.Error != "" && !engine.HasCode(err, engine.ErrorCode(s.Error)):
		r.result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %v", index, s.Do, s.Error, err))
	}
}

func (r *runner) ops(ops []Op) error {
	for i, op := range ops {
		if err := r.op(op); err != nil {
			return fmt.Errorf("ops[%d] %s: %w", i, op.Op, err)
		}
	}
	return nil
}

func (r *runner) op(op Op) error {
	if op.Op == OpCreate {
		return r.create(op)
	}

	rec, err := r.resolve(*op.Target)
	if err != nil {
		return err
	}
	switch op.Op {
	case OpSet:
		return rec.SetAttribute(op.Name, op.Value)
	case OpUnset:
		return rec.RemoveAttribute(op.Name)
	case OpText:
		return rec.SetText(op.Value)
	case OpDelete:
		return rec.Delete()
	case OpDetach:
		parent := rec.Parent()
		if parent == nil {
			return fmt.Errorf("%s has no parent", op.Target)
		}
		return parent.RemoveChild(rec)
	case OpMove:
		parent, err := r.resolve(*op.Parent)
		if err != nil {
			return err
		}
		return rec.SetParent(parent)
	}
	return fmt.Errorf("unknown op %q", op.Op)
}

func (r *runner) create(op Op) error {
	attrs := make([]engine.Attr, len(op.Attrs))
	for i, a := range op.Attrs {
		attrs[i] = engine.Attr{Name: a.Name, Value: a.Value}
	}

	var rec *engine.Record
	var err error
	if op.Parent != nil {
		parent, perr := r.resolve(*op.Parent)
		if perr != nil {
			return perr
		}
		rec, err = parent.CreateChild(op.Tag, attrs, op.Text)
	} else {
		rec, err = r.c.Create(op.Tag, attrs, op.Text)
	}
	if err != nil {
		return err
	}
	if op.As != "" {
		r.refs[op.As] = rec
	}
	return nil
}

// resolve finds the record a target selects.
func (r *runner) resolve(t Target) (*engine.Record, error) {
	var rec *engine.Record
	var err error
	switch {
	case t.Ref != "":
		var ok bool
		if rec, ok = r.refs[t.Ref]; !ok {
			return nil, fmt.Errorf("unknown ref %q", t.Ref)
		}
	case t.Tag != "":
		rec, err = r.c.ElementOf(t.Tag, t.ID)
	default:
		rec, err = r.c.Element(t.ID)
	}
	if err != nil {
		return nil, err
	}

	for _, i := range t.Child {
		children := rec.Children()
		if i < 0 || i >= len(children) {
			return nil, fmt.Errorf("%s: child index %d out of range", t, i)
		}
		rec = children[i]
	}
	return rec, nil
}
