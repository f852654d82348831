// Package diag defines the error taxonomy shared by every compilation path.
//
// All failures are terminal for an invocation: compilation is deterministic,
// so nothing is retried. Errors travel unchanged from adapters and pipelines
// to the CLI, which renders Error() as a single diagnostic line.
package diag

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure.
type Kind string

const (
	// KindMalformedVersionField: the version-bearing felt array is missing or invalid.
	KindMalformedVersionField Kind = "MALFORMED_VERSION_FIELD"

	// KindUnsupportedVersion: no registry entry matches the probed version.
	KindUnsupportedVersion Kind = "UNSUPPORTED_VERSION"

	// KindBackendDeserialization: input does not fit the matched backend's native shape.
	KindBackendDeserialization Kind = "BACKEND_DESERIALIZATION"

	// KindBackendCompilation: the compiler capability rejected the program.
	KindBackendCompilation Kind = "BACKEND_COMPILATION"

	// KindRawDeserialization: raw Sierra program input is malformed.
	KindRawDeserialization Kind = "RAW_DESERIALIZATION"

	// KindIO: file open/create/read/write failure.
	KindIO Kind = "IO"
)

// Error is a classified failure.
//
// Message is what the user sees. Err is the underlying cause, appended to the
// message when present.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	// Version carries the rejected version for KindUnsupportedVersion.
	Version []uint8
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Messages shared between the CLI and the compilation paths.
const (
	MsgMalformedVersionField = "Unable to read sierra_program. Make sure it is an array of felts"
	MsgRawDeserialization    = "Unable to deserialize Sierra program. Make sure it is in a correct format"
	MsgContractDeserialize   = "Unable to deserialize Sierra contract class"
	MsgContractCompile       = "Unable to compile Sierra to Casm"
	MsgRawCompile            = "Unable to compile Sierra program to Casm"
	MsgOpenInput             = "Unable to open sierra json file"
	MsgReadInput             = "Unable to read sierra json file"
	MsgOpenOutput            = "Unable to open/create casm json file"
	MsgSaveOutput            = "Unable to save casm json file"
)
