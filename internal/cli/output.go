package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit status of xpersist.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the document, journal or scenarios were checked and found wanting
	ExitCommandError = 2 // the command could not run: bad flags or unreadable inputs
)

// Codes reported by commands that fail before reaching the engine.
// Engine failures keep the engine's code, such as NO_ELEMENT.
const (
	ErrCodeGeneric       = "E001"
	ErrCodeNotFound      = "E005" // document, journal or scenario dir missing
	ErrCodeSchema        = "E100" // kinds file does not compile
	ErrCodeParse         = "E300" // document is not well-formed
	ErrCodeInvalidRecord = "E301" // element breaks its kind's contract
)

// ExitError carries the exit status main should use for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError fails a command with code.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError fails a command with code, keeping err as the cause.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode is the status for err. Errors without an ExitError in their
// chain, engine errors included, exit with ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or as one JSON object
// per result when --format=json is given.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // progress notes; Writer when nil
	Verbose   bool
}

// CLIResponse is the JSON envelope of every result.
type CLIResponse struct {
	Status string    `json:"status"` // ok or error
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failed command. Code is an E-code or an engine code.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes data, in text form through its String method if any.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error writes a failure. Text output shows details only when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog notes progress, such as which document was loaded, under
// --verbose. Notes go to LogWriter so JSON on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.LogWriter(), format+"\n", args...)
}

// LogWriter is where progress notes go.
func (f *OutputFormatter) LogWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
