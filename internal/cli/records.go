package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/xmlpersist/internal/engine"
)

// RecordView is the output form of a record.
type RecordView struct {
	Tag      string        `json:"tag"`
	ID       string        `json:"id,omitempty"`
	State    string        `json:"state"`
	Attrs    []engine.Attr `json:"attrs,omitempty"`
	Text     string        `json:"text,omitempty"`
	Children []RecordView  `json:"children,omitempty"`
}

func viewOf(r *engine.Record) RecordView {
	v := RecordView{
		Tag:   r.Tag(),
		ID:    r.ID(),
		State: r.State().String(),
		Attrs: r.Attrs(),
		Text:  r.Text(),
	}
	for _, c := range r.Children() {
		v.Children = append(v.Children, viewOf(c))
	}
	return v
}

// writeView prints a record tree, one element per line.
func writeView(w io.Writer, v RecordView, depth int) {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString("<" + v.Tag)
	for _, a := range v.Attrs {
		fmt.Fprintf(&b, " %s=%q", a.Name, a.Value)
	}
	b.WriteString(">")
	if v.Text != "" {
		fmt.Fprintf(&b, " %q", v.Text)
	}
	if v.State != engine.StateClean.String() {
		b.WriteString(" [" + v.State + "]")
	}
	fmt.Fprintln(w, b.String())
	for _, c := range v.Children {
		writeView(w, c, depth+1)
	}
}

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Tag string
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List the records of a document",
		Long: `List the top-level records of the document with their children.

Examples:
  xpersist show --doc items.xml
  xpersist show --dir ./tenants --key alpha --tag item --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "only records of this tag or a tag extending it")
	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	s, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	records := s.c.UsableElements()
	if opts.Tag != "" {
		records = s.c.InstancesOf(opts.Tag)
	}
	views := make([]RecordView, len(records))
	for i, r := range records {
		views[i] = viewOf(r)
	}

	if opts.Format == "json" {
		return f.Success(views)
	}
	w := cmd.OutOrStdout()
	for _, v := range views {
		writeView(w, v, 0)
	}
	f.VerboseLog("%d record(s) in %s", len(views), s.c.Path())
	return nil
}

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Tag string
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one record by id",
		Long: `Print the top-level record with the given business id.

Ids are unique per tag; use --tag when several tags share an id.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "tag of the record")
	return cmd
}

func runGet(opts *GetOptions, id string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	s, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.lookup(opts.Tag, id)
	if err != nil {
		return engineError(f, "lookup failed", err)
	}
	if opts.Format == "json" {
		return f.Success(viewOf(r))
	}
	writeView(cmd.OutOrStdout(), viewOf(r), 0)
	return nil
}

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	Text      string
	Parent    string
	ParentTag string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <tag> [name=value...]",
		Short: "Create a record and commit it",
		Long: `Create a record and commit it to the document.

A top-level record whose tag and id match an existing record is merged
into it instead of being added twice.

Examples:
  xpersist create item id=A1 qty=1 --doc items.xml
  xpersist create line sku=x1 --parent 7 --parent-tag order --doc orders.xml
  xpersist create note --text milk --doc notes.xml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, args[0], args[1:], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Text, "text", "", "text content")
	cmd.Flags().StringVar(&opts.Parent, "parent", "", "id of the parent record")
	cmd.Flags().StringVar(&opts.ParentTag, "parent-tag", "", "tag of the parent record")
	return cmd
}

func runCreate(opts *CreateOptions, tag string, assignments []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	attrs, err := parseAssignments(assignments)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}
	s, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var parent *engine.Record
	if opts.Parent != "" {
		if parent, err = s.lookup(opts.ParentTag, opts.Parent); err != nil {
			return engineError(f, "parent lookup failed", err)
		}
	}

	r, err := engine.InvokeValue(cmd.Context(), s.c, true, func() (*engine.Record, error) {
		if parent != nil {
			return parent.CreateChild(tag, attrs, opts.Text)
		}
		return s.c.Create(tag, attrs, opts.Text)
	})
	if err != nil {
		return engineError(f, "create failed", err)
	}

	if opts.Format == "json" {
		return f.Success(viewOf(r))
	}
	if r.Locked() {
		fmt.Fprintf(cmd.OutOrStdout(), "merged into existing <%s id=%s>\n", r.Tag(), r.ID())
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created <%s>\n", tag)
	return nil
}

// SetOptions holds flags for the set command.
type SetOptions struct {
	*RootOptions
	Tag   string
	Unset []string
	Text  string
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set <id> [name=value...]",
		Short: "Change attributes or text of a record and commit",
		Long: `Change attributes or text of a record and commit.

All changes run in one transaction. The commit fails, and nothing is
written, when the element no longer matches what was loaded.

Examples:
  xpersist set A1 qty=2 --doc items.xml
  xpersist set A1 --unset qty --doc items.xml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(opts, args[0], args[1:], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "tag of the record")
	cmd.Flags().StringSliceVar(&opts.Unset, "unset", nil, "attributes to remove")
	cmd.Flags().StringVar(&opts.Text, "text", "", "new text content")
	return cmd
}

func runSet(opts *SetOptions, id string, assignments []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	attrs, err := parseAssignments(assignments)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}
	setText := cmd.Flags().Changed("text")
	if len(attrs) == 0 && len(opts.Unset) == 0 && !setText {
		return NewExitError(ExitCommandError, "nothing to change: give name=value, --unset or --text")
	}

	s, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.lookup(opts.Tag, id)
	if err != nil {
		return engineError(f, "lookup failed", err)
	}
	err = s.c.Invoke(cmd.Context(), true, func() error {
		for _, a := range attrs {
			if err := r.SetAttribute(a.Name, a.Value); err != nil {
				return err
			}
		}
		for _, name := range opts.Unset {
			if err := r.RemoveAttribute(name); err != nil {
				return err
			}
		}
		if setText {
			return r.SetText(opts.Text)
		}
		return nil
	})
	if err != nil {
		return engineError(f, "set failed", err)
	}

	if opts.Format == "json" {
		return f.Success(viewOf(r))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "updated <%s id=%s>\n", r.Tag(), r.ID())
	return nil
}

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	Tag string
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a record and commit",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "tag of the record")
	return cmd
}

func runDelete(opts *DeleteOptions, id string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	s, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.lookup(opts.Tag, id)
	if err != nil {
		return engineError(f, "lookup failed", err)
	}
	if err := s.c.Invoke(cmd.Context(), true, r.Delete); err != nil {
		return engineError(f, "delete failed", err)
	}

	if opts.Format == "json" {
		return f.Success(map[string]string{"deleted": id, "tag": r.Tag()})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted <%s id=%s>\n", r.Tag(), id)
	return nil
}
