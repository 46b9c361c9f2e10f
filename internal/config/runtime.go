package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/xmlpersist/internal/engine"
	"github.com/roach88/xmlpersist/internal/schema"
	"github.com/roach88/xmlpersist/internal/store"
)

// Runtime is a built persistence setup.
type Runtime struct {
	Config  *Config
	Manager *engine.Manager
	Kinds   *engine.Kinds
	Journal *store.Store // nil without a journal
	Logger  *slog.Logger
}

// Build loads the vocabulary, opens the journal and creates the manager.
// The engine clock resumes after the last journaled sequence number so
// journal entries stay ordered across runs. Logs go to logw.
func (c *Config) Build(ctx context.Context, logw io.Writer) (*Runtime, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := c.NewLogger(logw)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: c, Logger: logger}
	if c.Schema != "" {
		if rt.Kinds, err = schema.Load(c.Schema); err != nil {
			return nil, fmt.Errorf("load schema: %w", err)
		}
	}

	opts := []engine.Option{engine.WithKinds(rt.Kinds), engine.WithLogger(logger)}
	switch c.IDs {
	case IDsULID:
		opts = append(opts, engine.WithIDGenerator(engine.ULIDGenerator{}))
	default:
		opts = append(opts, engine.WithIDGenerator(engine.UUIDv7Generator{}))
	}

	if c.Journal != "" {
		if rt.Journal, err = store.Open(c.Journal); err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		seq, err := rt.Journal.LastSeq(ctx)
		if err != nil {
			rt.Close()
			return nil, err
		}
		opts = append(opts, engine.WithJournal(rt.Journal), engine.WithClock(engine.NewClockAt(seq)))
	}

	switch c.Mode {
	case engine.ModePartitioned:
		rt.Manager, err = engine.NewPartitionedManager(c.Dir, c.Template, opts...)
	default:
		rt.Manager, err = engine.NewSharedManager(c.Path, c.Template, opts...)
	}
	if err != nil {
		rt.Close()
		return nil, err
	}

	logger.Debug("runtime built", "mode", string(c.Mode), "journal", c.Journal, "schema", c.Schema)
	return rt, nil
}

// Close releases the journal.
func (rt *Runtime) Close() error {
	if rt.Journal == nil {
		return nil
	}
	return rt.Journal.Close()
}
