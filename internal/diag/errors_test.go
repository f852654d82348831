package diag

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := New(KindMalformedVersionField, MsgMalformedVersionField)
	assert.Equal(t, "Unable to read sierra_program. Make sure it is an array of felts", err.Error())

	wrapped := Wrap(KindBackendCompilation, MsgContractCompile, errors.New("unknown libfunc id 7"))
	assert.Equal(t, "Unable to compile Sierra to Casm: unknown libfunc id 7", wrapped.Error())
}

func TestKindOfThroughWrapping(t *testing.T) {
	inner := New(KindUnsupportedVersion, "no backend")
	outer := fmt.Errorf("compile-contract: %w", inner)

	assert.Equal(t, KindUnsupportedVersion, KindOf(outer))
	assert.True(t, Is(outer, KindUnsupportedVersion))
	assert.False(t, Is(outer, KindIO))
	assert.False(t, Is(nil, KindIO))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindIO, MsgSaveOutput, cause)
	assert.ErrorIs(t, err, cause)
}
