package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/xmlpersist/internal/engine"
	"github.com/roach88/xmlpersist/internal/schema"
	"github.com/roach88/xmlpersist/internal/xmldoc"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool             `json:"valid"`
	Document string           `json:"document"`
	Records  int              `json:"records"`
	Problems []schema.Problem `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a document against the tag vocabulary",
		Long: `Check a document against the CUE tag vocabulary without changing it.

Reports elements missing required attributes or a text id, children a
kind does not allow, and top-level records sharing a tag and id.

Exit codes:
  0 - Document valid
  1 - Problems found, or the vocabulary does not compile
  2 - Command error (document not found, etc.)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.buildConfig(cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	path, err := cfg.DocumentPath(opts.Key)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid key", err)
	}

	var kinds *engine.Kinds
	if cfg.Schema != "" {
		formatter.VerboseLog("Loading vocabulary from %s", cfg.Schema)
		if kinds, err = schema.Load(cfg.Schema); err != nil {
			code := ErrCodeSchema
			var verr schema.ValidationError
			if errors.As(err, &verr) {
				code = verr.Code
			}
			_ = formatter.Error(code, err.Error(), nil)
			return WrapExitError(ExitFailure, "invalid vocabulary", err)
		}
	}

	doc, err := xmldoc.ParseFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return outputValidateError(formatter, ErrCodeNotFound, fmt.Sprintf("document not found: %s", path))
	}
	if err != nil {
		_ = formatter.Error(ErrCodeParse, err.Error(), nil)
		return WrapExitError(ExitFailure, "document is not well-formed", err)
	}

	result := ValidationResult{
		Valid:    true,
		Document: path,
		Records:  len(doc.Root.Children),
		Problems: schema.CheckDocument(doc, kinds),
	}
	if len(result.Problems) > 0 {
		result.Valid = false
		return outputValidationProblems(formatter, result)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s valid (%d records)\n", path, result.Records)
	return nil
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationProblems outputs every problem found in the document.
func outputValidationProblems(formatter *OutputFormatter, result ValidationResult) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d problem(s)", len(result.Problems)))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    ErrCodeInvalidRecord,
				Message: result.Problems[0].String(),
			},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, p := range result.Problems {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", ErrCodeInvalidRecord, p)
	}
	return failure
}
