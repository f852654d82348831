package version

import (
	"fmt"

	"github.com/roach88/usc/internal/diag"
)

// Descriptor binds a version range to an adapter.
type Descriptor[A any] struct {
	// Name identifies the backend family.
	Name string

	// Range describes the matched versions for display.
	Range string

	// Match tests a version padded to three components.
	Match func(v [3]uint8) bool

	Adapter A
}

// Registry is an ordered list of descriptors; the first match wins.
type Registry[A any] struct {
	descriptors []Descriptor[A]
}

// NewRegistry creates a registry. Descriptors must be ordered from the most
// specific range to the most general.
func NewRegistry[A any](descriptors ...Descriptor[A]) *Registry[A] {
	return &Registry[A]{descriptors: descriptors}
}

// Resolve returns the first descriptor matching v.
func (r *Registry[A]) Resolve(v SchemaVersion) (Descriptor[A], error) {
	padded := v.Padded()
	for _, d := range r.descriptors {
		if d.Match(padded) {
			return d, nil
		}
	}
	return Descriptor[A]{}, &diag.Error{
		Kind:    diag.KindUnsupportedVersion,
		Message: fmt.Sprintf("%s. No matching ContractClass or CasmContractClass found for version %s", diag.MsgContractCompile, v),
		Version: v,
	}
}

// Describe lists descriptors in match order.
func (r *Registry[A]) Describe() []Descriptor[A] {
	return append([]Descriptor[A](nil), r.descriptors...)
}

// Always matches every version.
func Always(_ [3]uint8) bool { return true }
