// Package schema validates documents against the CUE definitions embedded
// in this package: the contract class shape of each backend family, the raw
// Sierra program and both output documents.
package schema

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed *.cue
var files embed.FS

// Definitions available for validation.
const (
	Sierra010         = "#Sierra010"
	Sierra100         = "#Sierra100"
	Latest            = "#Latest"
	Program           = "#Program"
	CasmContractClass = "#CasmContractClass"
	RawOutput         = "#RawOutput"
)

// ValidationError reports the first violation found in a document.
type ValidationError struct {
	Schema  string
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Schema, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Schema, e.Message)
}

// Set is a compiled set of definitions. A cue.Context is not safe for
// concurrent use, so validation is serialized.
type Set struct {
	mu   sync.Mutex
	ctx  *cue.Context
	root cue.Value
}

// Load compiles the embedded schema files.
func Load() (*Set, error) {
	ctx := cuecontext.New()
	names, err := fs.Glob(files, "*.cue")
	if err != nil {
		return nil, err
	}
	var root cue.Value
	for i, name := range names {
		src, err := files.ReadFile(name)
		if err != nil {
			return nil, err
		}
		v := ctx.CompileBytes(src, cue.Filename(name))
		if err := v.Err(); err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		if i == 0 {
			root = v
		} else {
			root = root.Unify(v)
		}
	}
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return &Set{ctx: ctx, root: root}, nil
}

var defaultSet = sync.OnceValues(Load)

// Validate checks a JSON document against a definition of the embedded
// schema set.
func Validate(def string, doc []byte) error {
	s, err := defaultSet()
	if err != nil {
		return err
	}
	return s.Validate(def, doc)
}

// Validate checks a JSON document against the named definition.
func (s *Set) Validate(def string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema := s.root.LookupPath(cue.ParsePath(def))
	if !schema.Exists() {
		return fmt.Errorf("schema %s is not defined", def)
	}
	expr, err := cuejson.Extract(def, doc)
	if err != nil {
		return &ValidationError{Schema: def, Message: err.Error()}
	}
	v := s.ctx.BuildExpr(expr)
	if err := v.Err(); err != nil {
		return &ValidationError{Schema: def, Message: err.Error()}
	}
	if err := schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return firstError(def, err)
	}
	return nil
}

// firstError keeps the first CUE error with its path.
func firstError(def string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Schema: def, Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &ValidationError{
		Schema:  def,
		Path:    strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
}
