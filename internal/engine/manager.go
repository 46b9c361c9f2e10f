package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/xmlpersist/internal/xmldoc"
)

// Mode selects how a Manager maps partition keys to contexts.
type Mode string

const (
	// ModeShared uses one context for every key.
	ModeShared Mode = "shared"
	// ModePartitioned gives every key its own context and file.
	ModePartitioned Mode = "partitioned"
)

// DefaultRoot is the root element of documents created from scratch.
const DefaultRoot = "records"

// Manager hands out contexts per partition key, e.g. per tenant.
//
// In partitioned mode the file of a key is <dir>/<key>.xml. It is created
// from the template document the first time the key is seen, or as an empty
// document when there is no template.
//
// Manager is safe for concurrent use. Do serializes work per context.
type Manager struct {
	mode     Mode
	path     string
	dir      string
	template string
	opts     []Option

	mu       sync.Mutex
	contexts map[string]*partition
}

type partition struct {
	mu  sync.Mutex
	ctx *Context
}

// NewSharedManager opens the single document at path, creating it from
// template (if not empty) when it does not exist.
func NewSharedManager(path, template string, opts ...Option) (*Manager, error) {
	m := &Manager{
		mode:     ModeShared,
		path:     path,
		template: template,
		opts:     opts,
		contexts: make(map[string]*partition),
	}
	if _, err := m.open(""); err != nil {
		return nil, err
	}
	return m, nil
}

// NewPartitionedManager creates a manager storing one document per key in
// dir. Contexts are opened lazily.
func NewPartitionedManager(dir, template string, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create partition dir: %w", err)
	}
	return &Manager{
		mode:     ModePartitioned,
		dir:      dir,
		template: template,
		opts:     opts,
		contexts: make(map[string]*partition),
	}, nil
}

// Mode returns the partitioning mode.
func (m *Manager) Mode() Mode { return m.mode }

// Context returns the context for key, opening it on first use.
// In shared mode the key is ignored.
func (m *Manager) Context(key string) (*Context, error) {
	p, err := m.open(key)
	if err != nil {
		return nil, err
	}
	return p.ctx, nil
}

// Do runs fn with the context for key while holding that context's lock.
func (m *Manager) Do(key string, fn func(*Context) error) error {
	p, err := m.open(key)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(p.ctx)
}

// Keys returns the keys with an open context, sorted. In shared mode it
// returns the single empty key.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.contexts))
	for k := range m.contexts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// CommitAll commits the queued transactions of every open context.
func (m *Manager) CommitAll(ctx context.Context) error {
	var errs []error
	for _, key := range m.Keys() {
		err := m.Do(key, func(c *Context) error { return c.CommitAll(ctx) })
		if err != nil {
			errs = append(errs, fmt.Errorf("partition %q: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// PathFor returns the backing file of key.
func (m *Manager) PathFor(key string) (string, error) {
	if m.mode == ModeShared {
		return m.path, nil
	}
	if err := validKey(key); err != nil {
		return "", err
	}
	return filepath.Join(m.dir, key+".xml"), nil
}

func (m *Manager) open(key string) (*partition, error) {
	if m.mode == ModeShared {
		key = ""
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.contexts[key]; ok {
		return p, nil
	}
	path, err := m.PathFor(key)
	if err != nil {
		return nil, err
	}
	if err := m.ensureFile(path); err != nil {
		return nil, err
	}
	c, err := Open(path, m.opts...)
	if err != nil {
		return nil, err
	}
	p := &partition{ctx: c}
	m.contexts[key] = p
	c.logger.Info("partition opened", "key", key, "path", path, "mode", string(m.mode))
	return p, nil
}

// ensureFile creates the document at path if it is missing.
func (m *Manager) ensureFile(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	doc := xmldoc.New(DefaultRoot)
	if m.template != "" {
		if doc, err = xmldoc.ParseFile(m.template); err != nil {
			return fmt.Errorf("read template: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	return doc.WriteFile(path)
}

func validKey(key string) error {
	switch {
	case key == "":
		return errors.New("partition key is empty")
	case strings.ContainsAny(key, `/\`) || strings.Contains(key, ".."):
		return fmt.Errorf("partition key %q is not a plain name", key)
	}
	return nil
}
