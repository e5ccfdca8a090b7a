package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"sheetsync/internal/models"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The remote operation ran and failed
	ExitCommandError = 2 // Bad input or a backend could not be opened
)

// ExitError carries the process exit code for a failed command.
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

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as JSON or aligned text.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// JSON writes v as indented JSON when the json format is selected and
// reports whether it did.
func (f *OutputFormatter) JSON(v interface{}) (bool, error) {
	if f.Format != "json" {
		return false, nil
	}
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}

// Matrix prints rows tab-separated.
func (f *OutputFormatter) Matrix(m models.Matrix) error {
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	for _, row := range m {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

// Operations prints one line per operation.
func (f *OutputFormatter) Operations(ops []models.Operation) error {
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTORE\tRANGE\tSTATUS\tERROR")
	for i := range ops {
		op := &ops[i]
		errText := ""
		if op.Error != nil {
			errText = string(op.Error.Code) + ": " + op.Error.Message
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", op.ID, op.Kind, op.StoreID, op.Range, op.Status, errText)
	}
	return tw.Flush()
}

// Line prints a formatted line.
func (f *OutputFormatter) Line(format string, args ...interface{}) {
	fmt.Fprintf(f.Writer, format+"\n", args...)
}
