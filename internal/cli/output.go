package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/roach88/usc/internal/diag"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitCommandError = 2 // Any reported error: bad input, unsupported version, backend or I/O failure
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code
	Message string // Diagnostic line shown to the user
	Err     error  // Underlying error (optional)
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// commandError turns a compilation failure into an ExitError. Classified
// failures show only their own message; the cause is kept for debug logs.
func commandError(err error) *ExitError {
	var de *diag.Error
	if errors.As(err, &de) {
		return WrapExitError(ExitCommandError, de.Message, err)
	}
	return WrapExitError(ExitCommandError, err.Error(), err)
}

// GetExitCode extracts the exit code from an error.
// Errors that are not ExitErrors, such as flag parsing failures, exit with
// ExitCommandError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// PrintError writes the single diagnostic line for err.
func PrintError(w io.Writer, err error) {
	msg := err.Error()
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		msg = exitErr.Message
	}
	tag := color.New(color.FgRed).Sprint("ERROR")
	fmt.Fprintf(w, "[%s] %s\n", tag, msg)
}

// writeOutput writes a rendered document to path, or to stdout followed by
// a newline when path is empty. An existing file is truncated.
func writeOutput(data []byte, path string, stdout io.Writer) error {
	if path == "" {
		if _, err := stdout.Write(append(data, '\n')); err != nil {
			return diag.Wrap(diag.KindIO, diag.MsgSaveOutput, err)
		}
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return diag.Wrap(diag.KindIO, diag.MsgOpenOutput, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return diag.Wrap(diag.KindIO, diag.MsgSaveOutput, err)
	}
	if err := f.Close(); err != nil {
		return diag.Wrap(diag.KindIO, diag.MsgSaveOutput, err)
	}
	return nil
}
