package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/xmlpersist/internal/config"
	"github.com/roach88/xmlpersist/internal/engine"
)

// session is an opened runtime together with the context of the selected key.
type session struct {
	rt  *config.Runtime
	c   *engine.Context
	key string
}

// buildConfig merges the config file with the flags set on cmd.
func (o *RootOptions) buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default("")
	if o.Config != "" {
		var err error
		if cfg, err = config.Load(o.Config); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("doc") {
		cfg.Mode = engine.ModeShared
		cfg.Path = o.Document
	}
	if flags.Changed("dir") {
		cfg.Mode = engine.ModePartitioned
		cfg.Dir = o.Dir
	}
	if flags.Changed("template") {
		cfg.Template = o.Template
	}
	if flags.Changed("schema") {
		cfg.Schema = o.Schema
	}
	if flags.Changed("journal") {
		cfg.Journal = o.Journal
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	} else if cfg.Log.Level == "" {
		cfg.Log.Level = "warn"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openSession builds the runtime and opens the context for --key.
func (o *RootOptions) openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := o.buildConfig(cmd)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	rt, err := cfg.Build(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open runtime", err)
	}
	c, err := rt.Manager.Context(o.Key)
	if err != nil {
		rt.Close()
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open document for key %q", o.Key), err)
	}
	return &session{rt: rt, c: c, key: o.Key}, nil
}

func (s *session) Close() error { return s.rt.Close() }

// lookup finds a top-level record by id, optionally restricted to tag.
func (s *session) lookup(tag, id string) (*engine.Record, error) {
	if tag != "" {
		return s.c.ElementOf(tag, id)
	}
	return s.c.Element(id)
}

// parseAssignments splits name=value arguments, keeping their order.
func parseAssignments(args []string) ([]engine.Attr, error) {
	attrs := make([]engine.Attr, 0, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q: want name=value", arg)
		}
		attrs = append(attrs, engine.Attr{Name: name, Value: value})
	}
	return attrs, nil
}

// engineError reports a failed engine operation and returns the exit error.
func engineError(f *OutputFormatter, message string, err error) error {
	code := string(engine.Code(err))
	if code == "" {
		code = ErrCodeGeneric
	}
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(ExitFailure, message, err)
}
