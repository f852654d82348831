// Package version identifies which Sierra revision a document was written
// in and maps revisions to the backends that compile them.
package version

import (
	"strconv"
	"strings"

	"github.com/roach88/usc/internal/diag"
	"github.com/roach88/usc/internal/jsondoc"
)

// SchemaVersion is the [major, minor, patch] prefix read from a program's
// felt stream. It may hold fewer than three components when the stream is
// shorter; missing components count as zero when matching.
type SchemaVersion []uint8

// String joins the components with dots, without padding.
func (v SchemaVersion) String() string {
	parts := make([]string, len(v))
	for i, c := range v {
		parts[i] = strconv.Itoa(int(c))
	}
	return strings.Join(parts, ".")
}

// Padded returns the version extended with zeros to three components.
func (v SchemaVersion) Padded() [3]uint8 {
	var out [3]uint8
	copy(out[:], v)
	return out
}

// ProgramField is the document field holding the felt stream.
const ProgramField = "sierra_program"

// Probe reads the version from the first three felts of sierra_program.
//
// Each felt contributes its value when it is a 0x-prefixed hex string that
// fits in a byte, and zero otherwise. The oldest revision stores its version
// as a short string, so it always probes as zeros.
func Probe(doc jsondoc.Object) (SchemaVersion, error) {
	arr, ok := doc[ProgramField].(jsondoc.Array)
	if !ok || len(arr) == 0 {
		return nil, diag.New(diag.KindMalformedVersionField, diag.MsgMalformedVersionField)
	}
	n := min(3, len(arr))
	out := make(SchemaVersion, n)
	for i := range n {
		out[i] = probeByte(arr[i])
	}
	return out, nil
}

func probeByte(v jsondoc.Value) uint8 {
	s, ok := v.(jsondoc.String)
	if !ok || len(s) < 2 {
		return 0
	}
	b, err := strconv.ParseUint(string(s[2:]), 16, 8)
	if err != nil {
		return 0
	}
	return uint8(b)
}
