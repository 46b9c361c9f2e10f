package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config is a YAML config file. The flags below override it.
	Config   string
	Document string // shared-mode document
	Dir      string // partitioned-mode directory
	Key      string // partition key
	Template string
	Schema   string
	Journal  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// DefaultKey is the partition used when --key is not given.
const DefaultKey = "default"

// NewRootCommand creates the root command for the xpersist CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "xpersist",
		Short: "xpersist - transactional XML records",
		Long: `Edit XML documents as transactional records.

Every change runs in a transaction that is applied in memory and then
written back to the document. Writes only touch elements whose content
still matches what was loaded, so concurrent edits by other writers are
detected instead of overwritten.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVarP(&opts.Config, "config", "c", "", "YAML config file")
	flags.StringVarP(&opts.Document, "doc", "d", "", "XML document (shared mode)")
	flags.StringVar(&opts.Dir, "dir", "", "directory of per-key documents (partitioned mode)")
	flags.StringVarP(&opts.Key, "key", "k", DefaultKey, "partition key")
	flags.StringVar(&opts.Template, "template", "", "document that seeds new files")
	flags.StringVar(&opts.Schema, "schema", "", "CUE tag vocabulary")
	flags.StringVar(&opts.Journal, "journal", "", "SQLite commit journal")

	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
