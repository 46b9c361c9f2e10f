package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/xmlpersist/internal/ir"
	"github.com/roach88/xmlpersist/internal/xmldoc"
)

// IDGenerator generates transaction ids.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// Journal receives every committed transaction.
type Journal interface {
	Append(ctx context.Context, entry ir.Entry) error
}

// Context owns the in-memory records of one backing document together with
// the active transaction and the queue of applied but uncommitted
// transactions.
//
// A Context is not safe for concurrent use. Callers serialize Invoke, Apply,
// CommitAll and RevertAll per context; Manager does so for the contexts it
// hands out.
type Context struct {
	path      string
	persister *Persister
	kinds     *Kinds

	records     []*Record
	active      *Transaction
	uncommitted []*Transaction
	listeners   []*subscription
	env         any

	journal Journal
	logger  *slog.Logger
	clock   *Clock
	ids     IDGenerator
}

// Option configures a Context.
type Option func(*Context)

// WithKinds sets the tag vocabulary.
func WithKinds(kinds *Kinds) Option {
	return func(c *Context) { c.kinds = kinds }
}

// WithJournal appends every committed transaction to j.
func WithJournal(j Journal) Option {
	return func(c *Context) { c.journal = j }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) { c.logger = l }
}

// WithClock sets the logical clock stamping transactions.
// Use NewClockAt to resume after the last journaled transaction.
func WithClock(clock *Clock) Option {
	return func(c *Context) { c.clock = clock }
}

// WithIDGenerator sets the transaction id generator. Default: UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Context) { c.ids = g }
}

// Open loads the document at path and instantiates its records.
func Open(path string, opts ...Option) (*Context, error) {
	c := &Context{path: path}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.clock == nil {
		c.clock = NewClock()
	}
	if c.ids == nil {
		c.ids = UUIDv7Generator{}
	}

	p, err := NewPersister(path)
	if err != nil {
		return nil, fmt.Errorf("open context: %w", err)
	}
	c.persister = p
	c.records = p.Load(c)

	c.logger.Debug("context opened", "path", path, "records", len(c.records))
	return c, nil
}

// Path returns the backing file path.
func (c *Context) Path() string { return c.path }

// Persister returns the persister of the backing document.
func (c *Context) Persister() *Persister { return c.persister }

// Kinds returns the tag vocabulary.
func (c *Context) Kinds() *Kinds { return c.kinds }

// Env returns the environment value of the innermost InvokeEnv, or nil.
func (c *Context) Env() any { return c.env }

// Transaction returns the active transaction, or nil.
func (c *Context) Transaction() *Transaction { return c.active }

// Uncommitted returns the applied transactions waiting for CommitAll.
func (c *Context) Uncommitted() []*Transaction { return slices.Clone(c.uncommitted) }

// Invoke runs task inside a transaction.
//
// If a transaction is already active the task joins it and the outermost
// invocation decides what happens. Otherwise a fresh transaction is opened,
// the task runs, and the transaction is applied and then either committed
// right away or queued for CommitAll/RevertAll. A task error rolls back the
// transaction and is returned unchanged.
func (c *Context) Invoke(ctx context.Context, commit bool, task func() error) error {
	if c.active != nil {
		return task()
	}

	tx := newTransaction(c.ids.Generate(), c.clock.Next(), false)
	c.active = tx
	err := func() error {
		defer func() { c.active = nil }()
		return task()
	}()
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Error("rollback failed", "tx", tx.ID(), "error", rbErr)
		}
		return err
	}
	if err := tx.Apply(); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Error("rollback failed", "tx", tx.ID(), "error", rbErr)
		}
		return err
	}
	if tx.Len() == 0 {
		return nil
	}
	if commit {
		return c.commit(ctx, tx, nil)
	}
	c.uncommitted = append(c.uncommitted, tx)
	c.logger.Debug("transaction queued", "tx", tx.ID(), "events", tx.Len(), "queued", len(c.uncommitted))
	return nil
}

// InvokeEnv is Invoke with env visible through Env while task runs.
func (c *Context) InvokeEnv(ctx context.Context, commit bool, env any, task func() error) error {
	prev := c.env
	c.env = env
	defer func() { c.env = prev }()
	return c.Invoke(ctx, commit, task)
}

// InvokeValue is Invoke for tasks producing a value.
// The zero value is returned when the invocation fails.
func InvokeValue[T any](ctx context.Context, c *Context, commit bool, task func() (T, error)) (T, error) {
	var out T
	err := c.Invoke(ctx, commit, func() error {
		v, err := task()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Apply runs task inside an apply-only transaction.
// Its changes take effect in memory but are never committed: the
// transaction is discarded once applied.
func (c *Context) Apply(task func() error) error {
	prev := c.active
	tx := newTransaction(c.ids.Generate(), c.clock.Next(), true)
	c.active = tx
	err := func() error {
		defer func() { c.active = prev }()
		return task()
	}()
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Error("rollback failed", "tx", tx.ID(), "error", rbErr)
		}
		return err
	}
	if err := tx.Apply(); err != nil {
		return err
	}
	c.logger.Debug("apply-only transaction discarded", "tx", tx.ID(), "events", tx.Len())
	return nil
}

// CommitAll commits the queued transactions in order. When one fails, it and
// all transactions after it are rolled back.
func (c *Context) CommitAll(ctx context.Context) error {
	queue := c.uncommitted
	c.uncommitted = nil
	for i, tx := range queue {
		if err := c.commit(ctx, tx, queue[i+1:]); err != nil {
			return err
		}
	}
	return nil
}

// RevertAll rolls back the queued transactions, newest first.
func (c *Context) RevertAll() error {
	queue := c.uncommitted
	c.uncommitted = nil
	return c.revert(queue)
}

func (c *Context) revert(queue []*Transaction) error {
	var first error
	for i := len(queue) - 1; i >= 0; i-- {
		tx := queue[i]
		if err := tx.Rollback(); err != nil {
			c.logger.Error("rollback failed", "tx", tx.ID(), "error", err)
			if first == nil {
				first = err
			}
			continue
		}
		c.logger.Debug("transaction reverted", "tx", tx.ID())
	}
	return first
}

// commit commits tx. On failure the later transactions are reverted before tx
// itself is rolled back.
func (c *Context) commit(ctx context.Context, tx *Transaction, later []*Transaction) error {
	var onFail func()
	if len(later) > 0 {
		onFail = func() { _ = c.revert(later) }
	}
	if err := tx.commit(c.persister, onFail); err != nil {
		c.logger.Error("commit failed", "tx", tx.ID(), "path", c.path, "error", err)
		return err
	}
	c.logger.Info("transaction committed", "tx", tx.ID(), "seq", tx.Seq(), "events", tx.Len(), "path", c.path)

	if c.journal != nil {
		// The file is already written; a journal failure cannot undo it.
		if err := c.journal.Append(ctx, tx.Entry(c.path)); err != nil {
			c.logger.Warn("journal append failed", "tx", tx.ID(), "error", err)
		}
	}
	return nil
}

// Create creates a top-level record inside the active transaction.
//
// If a usable top-level record with the same tag and business id exists, the
// new record's values are merged into it and the returned record is locked.
func (c *Context) Create(tag string, attrs []Attr, text string) (*Record, error) {
	if c.active == nil {
		return nil, &PersistError{Code: ErrCodeNoTransaction, Message: "Context has no transaction", Tag: tag}
	}
	r := newRecord(c, tag)
	for _, a := range attrs {
		r.putAttr(a.Name, Present(a.Value))
	}
	r.text = xmldoc.NormalizeText(text)

	ev := newCreatedEvent(r)
	if err := r.queue(ev); err != nil {
		return nil, err
	}
	dup := ev.duplicateOf
	if dup == nil {
		return r, nil
	}

	c.logger.Debug("duplicate merged", "tag", tag, "id", r.ID())
	for _, a := range r.attrs {
		if err := dup.SetAttribute(a.Name, a.Value); err != nil {
			return nil, err
		}
	}
	if r.text != "" {
		if err := dup.SetText(r.text); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Element returns the top-level record with the given business id.
// Ids are unique per tag. An id used by several tags is ambiguous here and
// must be looked up with ElementOf.
func (c *Context) Element(id string) (*Record, error) {
	return c.element("", id)
}

// ElementOf returns the top-level record of tag with the given business id.
func (c *Context) ElementOf(tag, id string) (*Record, error) {
	return c.element(tag, id)
}

func (c *Context) element(tag, id string) (*Record, error) {
	if id == "" {
		return nil, &PersistError{Code: ErrCodeNotFound, Message: "empty id", Tag: tag}
	}
	var found []*Record
	for _, r := range c.records {
		if (tag == "" || r.tag == tag) && r.ID() == id {
			found = append(found, r)
		}
	}
	switch len(found) {
	case 0:
		return nil, &PersistError{Code: ErrCodeNotFound, Message: "no record with id", Tag: tag, ID: id}
	case 1:
		return found[0], nil
	}
	for _, r := range found[1:] {
		if r.tag != found[0].tag {
			return nil, &PersistError{
				Code:    ErrCodeAmbiguousID,
				Message: fmt.Sprintf("id used by <%s> and <%s>, give a tag", found[0].tag, r.tag),
				ID:      id,
			}
		}
	}
	return nil, &PersistError{
		Code:    ErrCodeDuplicateID,
		Message: fmt.Sprintf("%d records share the id", len(found)),
		Tag:     found[0].tag,
		ID:      id,
	}
}

// Elements returns all top-level records, including those marked for
// deletion.
func (c *Context) Elements() []*Record { return slices.Clone(c.records) }

// UsableElements returns the top-level records not marked for deletion.
func (c *Context) UsableElements() []*Record {
	return c.Filter(func(*Record) bool { return true })
}

// Filter returns the usable top-level records satisfying pred.
func (c *Context) Filter(pred func(*Record) bool) []*Record {
	var out []*Record
	for _, r := range c.records {
		if r.state != StateDeletion && pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// InstancesOf returns the usable top-level records whose tag is typ or
// extends it, leaving out those that are instances of any excluded kind.
func (c *Context) InstancesOf(typ string, excluded ...string) []*Record {
	return c.Filter(func(r *Record) bool {
		if !c.kinds.IsA(r.tag, typ) {
			return false
		}
		for _, ex := range excluded {
			if c.kinds.IsA(r.tag, ex) {
				return false
			}
		}
		return true
	})
}

// ReloadElements discards all records and loads them again from the file.
// Queued uncommitted transactions are dropped.
func (c *Context) ReloadElements() error {
	if c.active != nil {
		return &PersistError{Code: ErrCodeInvalidState, Message: "cannot reload inside a transaction"}
	}
	if err := c.persister.Reload(); err != nil {
		return err
	}
	if n := len(c.uncommitted); n > 0 {
		c.logger.Warn("dropping uncommitted transactions on reload", "path", c.path, "count", n)
		c.uncommitted = nil
	}
	c.records = c.persister.Load(c)
	c.logger.Debug("records reloaded", "path", c.path, "records", len(c.records))
	return nil
}

func (c *Context) findDuplicate(r *Record) *Record {
	id := r.ID()
	if id == "" {
		return nil
	}
	for _, other := range c.records {
		if other != r && other.tag == r.tag && other.state != StateDeletion && other.ID() == id {
			return other
		}
	}
	return nil
}

func (c *Context) isTop(r *Record) bool { return slices.Contains(c.records, r) }

func (c *Context) addTop(r *Record) {
	if !c.isTop(r) {
		c.records = append(c.records, r)
	}
}

func (c *Context) removeTop(r *Record) {
	if i := slices.Index(c.records, r); i >= 0 {
		c.records = slices.Delete(c.records, i, i+1)
	}
}
