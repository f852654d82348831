package sierra

import (
	"fmt"
	"math"
	"math/big"

	"github.com/roach88/usc/internal/felt"
)

// Felt-stream body layout shared by every contract-class revision. The
// revision-specific header (and any compression) wraps this word sequence.
//
//	n_types    { id, ss(generic_id), n_args, arg* }
//	n_libfuncs { id, ss(generic_id), n_args, arg* }
//	n_stmts    { 0, libfunc, n_args, var*, n_branches { target, n_results, var* } }
//	           | { 1, n_vars, var* }
//	n_funcs    { id, n_params, { var, type }*, n_rets, type*, entry_point }
//
// A generic arg is a tag (0 type, 1 user type, 2 value, 3 user func,
// 4 libfunc) followed by its payload. Branch target 0 is Fallthrough,
// k+1 is statement k. Negative values are stored as field negations.

const (
	tagInvocation = 0
	tagReturn     = 1
)

// EncodeBody serializes a program into body words. Debug names are dropped.
func EncodeBody(p *Program) ([]*big.Int, error) {
	w := &wordWriter{}

	w.uint(uint64(len(p.TypeDeclarations)))
	for _, d := range p.TypeDeclarations {
		if err := w.decl(d.ID, d.LongID); err != nil {
			return nil, fmt.Errorf("type %s: %w", d.ID, err)
		}
	}

	w.uint(uint64(len(p.LibfuncDeclarations)))
	for _, d := range p.LibfuncDeclarations {
		if err := w.decl(d.ID, d.LongID); err != nil {
			return nil, fmt.Errorf("libfunc %s: %w", d.ID, err)
		}
	}

	w.uint(uint64(len(p.Statements)))
	for _, s := range p.Statements {
		if s.Invocation == nil {
			w.uint(tagReturn)
			w.ids(s.Return)
			continue
		}
		inv := s.Invocation
		w.uint(tagInvocation)
		w.uint(inv.LibfuncID.ID)
		w.ids(inv.Args)
		w.uint(uint64(len(inv.Branches)))
		for _, b := range inv.Branches {
			if b.Target.Fallthrough {
				w.uint(0)
			} else {
				w.uint(uint64(b.Target.Statement) + 1)
			}
			w.ids(b.Results)
		}
	}

	w.uint(uint64(len(p.Funcs)))
	for _, f := range p.Funcs {
		w.uint(f.ID.ID)
		w.uint(uint64(len(f.Params)))
		for _, param := range f.Params {
			w.uint(param.ID.ID)
			w.uint(param.Ty.ID)
		}
		w.ids(f.Signature.RetTypes)
		w.uint(uint64(f.EntryPoint))
	}

	return w.words, nil
}

// DecodeBody parses body words. The whole input must be consumed.
func DecodeBody(words []*big.Int) (*Program, error) {
	r := &wordReader{words: words}
	p := &Program{}

	n, err := r.count("type declarations")
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		id, long, err := r.decl()
		if err != nil {
			return nil, fmt.Errorf("type declaration %d: %w", i, err)
		}
		p.TypeDeclarations = append(p.TypeDeclarations, TypeDeclaration{ID: id, LongID: long})
	}

	if n, err = r.count("libfunc declarations"); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		id, long, err := r.decl()
		if err != nil {
			return nil, fmt.Errorf("libfunc declaration %d: %w", i, err)
		}
		p.LibfuncDeclarations = append(p.LibfuncDeclarations, LibfuncDeclaration{ID: id, LongID: long})
	}

	if n, err = r.count("statements"); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		s, err := r.statement()
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		p.Statements = append(p.Statements, s)
	}

	if n, err = r.count("functions"); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		f, err := r.function()
		if err != nil {
			return nil, fmt.Errorf("function %d: %w", i, err)
		}
		p.Funcs = append(p.Funcs, f)
	}

	if r.pos != len(r.words) {
		return nil, fmt.Errorf("%d trailing words after program body", len(r.words)-r.pos)
	}
	return p, nil
}

type wordWriter struct {
	words []*big.Int
}

func (w *wordWriter) uint(v uint64) {
	w.words = append(w.words, new(big.Int).SetUint64(v))
}

func (w *wordWriter) felt(v *big.Int) {
	w.words = append(w.words, felt.Reduce(v))
}

func (w *wordWriter) ids(ids []ID) {
	w.uint(uint64(len(ids)))
	for _, id := range ids {
		w.uint(id.ID)
	}
}

func (w *wordWriter) decl(id ID, long LongID) error {
	name, err := felt.ShortString(long.GenericID)
	if err != nil {
		return err
	}
	w.uint(id.ID)
	w.felt(name)
	w.uint(uint64(len(long.GenericArgs)))
	for _, a := range long.GenericArgs {
		w.uint(uint64(a.Kind))
		switch a.Kind {
		case ArgValue, ArgUserType:
			w.felt(a.Value)
		default:
			w.uint(a.ID.ID)
		}
	}
	return nil
}

type wordReader struct {
	words []*big.Int
	pos   int
}

func (r *wordReader) next() (*big.Int, error) {
	if r.pos >= len(r.words) {
		return nil, fmt.Errorf("unexpected end of felt stream at word %d", r.pos)
	}
	v := r.words[r.pos]
	r.pos++
	return v, nil
}

func (r *wordReader) uint() (uint64, error) {
	v, err := r.next()
	if err != nil {
		return 0, err
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("word %d: expected small integer, got %s", r.pos-1, felt.Hex(v))
	}
	return v.Uint64(), nil
}

// count reads a length prefix and bounds it by the remaining words so that a
// corrupted length fails fast instead of allocating.
func (r *wordReader) count(what string) (int, error) {
	v, err := r.uint()
	if err != nil {
		return 0, fmt.Errorf("%s count: %w", what, err)
	}
	if v > uint64(len(r.words)-r.pos) || v > math.MaxInt32 {
		return 0, fmt.Errorf("%s count %d exceeds remaining stream", what, v)
	}
	return int(v), nil
}

func (r *wordReader) ids() ([]ID, error) {
	n, err := r.count("ids")
	if err != nil {
		return nil, err
	}
	out := make([]ID, n)
	for i := range out {
		v, err := r.uint()
		if err != nil {
			return nil, err
		}
		out[i] = ID{ID: v}
	}
	return out, nil
}

// signed interprets a felt above Prime/2 as a negative value.
func signed(v *big.Int) *big.Int {
	half := new(big.Int).Rsh(felt.Prime, 1)
	if v.Cmp(half) > 0 {
		return new(big.Int).Sub(v, felt.Prime)
	}
	return new(big.Int).Set(v)
}

func (r *wordReader) decl() (ID, LongID, error) {
	id, err := r.uint()
	if err != nil {
		return ID{}, LongID{}, err
	}
	nameFelt, err := r.next()
	if err != nil {
		return ID{}, LongID{}, err
	}
	name, err := felt.DecodeShortString(nameFelt)
	if err != nil {
		return ID{}, LongID{}, fmt.Errorf("generic id: %w", err)
	}
	n, err := r.count("generic args")
	if err != nil {
		return ID{}, LongID{}, err
	}
	long := LongID{GenericID: name, GenericArgs: make([]GenericArg, 0, n)}
	for i := 0; i < n; i++ {
		tag, err := r.uint()
		if err != nil {
			return ID{}, LongID{}, err
		}
		kind := ArgKind(tag)
		switch kind {
		case ArgValue, ArgUserType:
			v, err := r.next()
			if err != nil {
				return ID{}, LongID{}, err
			}
			long.GenericArgs = append(long.GenericArgs, GenericArg{Kind: kind, Value: signed(v)})
		case ArgType, ArgUserFunc, ArgLibfunc:
			ref, err := r.uint()
			if err != nil {
				return ID{}, LongID{}, err
			}
			long.GenericArgs = append(long.GenericArgs, GenericArg{Kind: kind, ID: ID{ID: ref}})
		default:
			return ID{}, LongID{}, fmt.Errorf("unknown generic arg tag %d", tag)
		}
	}
	return ID{ID: id}, long, nil
}

func (r *wordReader) statement() (Statement, error) {
	tag, err := r.uint()
	if err != nil {
		return Statement{}, err
	}
	switch tag {
	case tagReturn:
		vars, err := r.ids()
		if err != nil {
			return Statement{}, err
		}
		return Statement{Return: vars}, nil
	case tagInvocation:
		libfunc, err := r.uint()
		if err != nil {
			return Statement{}, err
		}
		args, err := r.ids()
		if err != nil {
			return Statement{}, err
		}
		nb, err := r.count("branches")
		if err != nil {
			return Statement{}, err
		}
		inv := &Invocation{LibfuncID: ID{ID: libfunc}, Args: args, Branches: make([]BranchInfo, nb)}
		for i := range inv.Branches {
			target, err := r.uint()
			if err != nil {
				return Statement{}, err
			}
			results, err := r.ids()
			if err != nil {
				return Statement{}, err
			}
			bt := Fallthrough
			if target > 0 {
				if target-1 > math.MaxInt32 {
					return Statement{}, fmt.Errorf("branch target %d out of range", target-1)
				}
				bt = Target(int(target - 1))
			}
			inv.Branches[i] = BranchInfo{Target: bt, Results: results}
		}
		return Statement{Invocation: inv}, nil
	default:
		return Statement{}, fmt.Errorf("unknown statement tag %d", tag)
	}
}

func (r *wordReader) function() (Function, error) {
	id, err := r.uint()
	if err != nil {
		return Function{}, err
	}
	np, err := r.count("params")
	if err != nil {
		return Function{}, err
	}
	f := Function{ID: ID{ID: id}, Params: make([]Param, np)}
	f.Signature.ParamTypes = make([]ID, np)
	for i := range f.Params {
		v, err := r.uint()
		if err != nil {
			return Function{}, err
		}
		ty, err := r.uint()
		if err != nil {
			return Function{}, err
		}
		f.Params[i] = Param{ID: ID{ID: v}, Ty: ID{ID: ty}}
		f.Signature.ParamTypes[i] = ID{ID: ty}
	}
	if f.Signature.RetTypes, err = r.ids(); err != nil {
		return Function{}, err
	}
	entry, err := r.uint()
	if err != nil {
		return Function{}, err
	}
	if entry > math.MaxInt32 {
		return Function{}, fmt.Errorf("entry point %d out of range", entry)
	}
	f.EntryPoint = int(entry)
	return f, nil
}
