package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/xmlpersist/internal/ir"
	"github.com/roach88/xmlpersist/internal/store"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	All    bool
	Record string
	Tag    string
	Verify bool
}

// JournalResult holds verification results.
type JournalResult struct {
	Transactions int              `json:"transactions"`
	Intact       bool             `json:"intact"`
	Mismatches   []store.Mismatch `json:"mismatches,omitempty"`
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List or verify committed transactions",
		Long: `List the committed transactions recorded in the SQLite journal.

By default only the transactions of the selected document are listed.
With --record the history of one record is shown instead. With --verify
the content hash of every transaction is recomputed.

Exit codes:
  0 - Success (journal intact when verifying)
  1 - Tampered transactions found
  2 - Command error (no journal configured, etc.)

Examples:
  xpersist journal --doc items.xml --journal journal.db
  xpersist journal --config xpersist.yaml --record A1 --tag item
  xpersist journal --config xpersist.yaml --verify --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "list transactions of every document")
	cmd.Flags().StringVar(&opts.Record, "record", "", "business id of a record to show the history of")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "tag of the record (required with --record)")
	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "recompute and check transaction hashes")
	return cmd
}

func runJournal(opts *JournalOptions, cmd *cobra.Command) error {
	if opts.Record != "" && opts.Tag == "" {
		return NewExitError(ExitCommandError, "--tag is required with --record")
	}

	f := opts.formatter(cmd)
	cfg, err := opts.buildConfig(cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if cfg.Journal == "" {
		return NewExitError(ExitCommandError, "no journal configured: use --journal or set journal in the config")
	}
	rt, err := cfg.Build(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open runtime", err)
	}
	defer rt.Close()

	ctx := cmd.Context()
	switch {
	case opts.Verify:
		return verifyJournal(opts, f, rt.Journal, cmd)

	case opts.Record != "":
		items, err := rt.Journal.RecordHistory(ctx, opts.Tag, opts.Record)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		if opts.Format == "json" {
			return f.Success(items)
		}
		w := cmd.OutOrStdout()
		for _, it := range items {
			fmt.Fprintf(w, "%s seq=%d %s\n", it.TxID, it.Seq, it.Document)
			if err := writeEventLine(w, it.Event); err != nil {
				return err
			}
		}
		return nil

	default:
		document := ""
		if !opts.All {
			if document, err = rt.Manager.PathFor(opts.Key); err != nil {
				return WrapExitError(ExitCommandError, "invalid key", err)
			}
		}
		entries, err := rt.Journal.ReadTransactions(ctx, document)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		if opts.Format == "json" {
			return f.Success(entries)
		}
		w := cmd.OutOrStdout()
		for _, e := range entries {
			fmt.Fprintf(w, "%s seq=%d %s\n", e.TxID, e.Seq, e.Document)
			for _, ev := range e.Events {
				if err := writeEventLine(w, ev); err != nil {
					return err
				}
			}
		}
		f.VerboseLog("%d transaction(s)", len(entries))
		return nil
	}
}

func verifyJournal(opts *JournalOptions, f *OutputFormatter, st *store.Store, cmd *cobra.Command) error {
	ctx := cmd.Context()
	entries, err := st.ReadTransactions(ctx, "")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	mismatches, err := st.Verify(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to verify journal", err)
	}

	result := JournalResult{
		Transactions: len(entries),
		Intact:       len(mismatches) == 0,
		Mismatches:   mismatches,
	}
	if opts.Format == "json" {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, m := range mismatches {
			fmt.Fprintf(w, "✗ %s: stored %s, actual %s\n", m.TxID, m.Stored, m.Actual)
		}
		if result.Intact {
			fmt.Fprintf(w, "✓ journal intact (%d transactions)\n", result.Transactions)
		}
	}
	if !result.Intact {
		return NewExitError(ExitFailure, fmt.Sprintf("%d tampered transaction(s)", len(mismatches)))
	}
	return nil
}

// writeEventLine prints one journaled event with its canonical payload.
func writeEventLine(w io.Writer, ev ir.EventRecord) error {
	payload, err := ir.MarshalCanonical(ev.Payload)
	if err != nil {
		return err
	}
	id := ev.RecordID
	if id == "" {
		id = "-"
	}
	_, err = fmt.Fprintf(w, "  %s <%s> %s %s\n", ev.Kind, ev.Tag, id, payload)
	return err
}
