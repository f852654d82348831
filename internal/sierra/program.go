package sierra

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/roach88/usc/internal/felt"
)

// ID identifies a declaration (type, libfunc, function) or a variable.
// DebugName is informational and never affects compilation.
type ID struct {
	ID        uint64 `json:"id"`
	DebugName string `json:"debug_name,omitempty"`
}

// String renders the id with its debug name when known.
func (id ID) String() string {
	if id.DebugName != "" {
		return fmt.Sprintf("[%d](%s)", id.ID, id.DebugName)
	}
	return fmt.Sprintf("[%d]", id.ID)
}

// LongID is a generic declaration instantiated with arguments,
// e.g. store_temp<felt252>.
type LongID struct {
	GenericID   string       `json:"generic_id"`
	GenericArgs []GenericArg `json:"generic_args"`
}

// String renders the long id in Sierra text form.
func (l LongID) String() string {
	if len(l.GenericArgs) == 0 {
		return l.GenericID
	}
	parts := make([]string, len(l.GenericArgs))
	for i, a := range l.GenericArgs {
		parts[i] = a.String()
	}
	return l.GenericID + "<" + strings.Join(parts, ", ") + ">"
}

// ArgKind discriminates generic arguments.
type ArgKind int

const (
	ArgType ArgKind = iota
	ArgUserType
	ArgValue
	ArgUserFunc
	ArgLibfunc
)

var argKindNames = map[ArgKind]string{
	ArgType:     "Type",
	ArgUserType: "UserType",
	ArgValue:    "Value",
	ArgUserFunc: "UserFunc",
	ArgLibfunc:  "Libfunc",
}

// GenericArg is one argument of a LongID.
// ID is set for Type, UserFunc and Libfunc; Value for Value and UserType.
type GenericArg struct {
	Kind      ArgKind
	ID        ID
	Value     *big.Int
	DebugName string
}

// TypeArg builds a Type generic argument.
func TypeArg(id uint64) GenericArg { return GenericArg{Kind: ArgType, ID: ID{ID: id}} }

// ValueArg builds a Value generic argument.
func ValueArg(v int64) GenericArg { return GenericArg{Kind: ArgValue, Value: big.NewInt(v)} }

// UserTypeArg builds a UserType generic argument from its debug name.
func UserTypeArg(name string) GenericArg {
	return GenericArg{Kind: ArgUserType, Value: big.NewInt(0), DebugName: name}
}

// UserFuncArg builds a UserFunc generic argument.
func UserFuncArg(id uint64) GenericArg { return GenericArg{Kind: ArgUserFunc, ID: ID{ID: id}} }

func (a GenericArg) String() string {
	switch a.Kind {
	case ArgValue:
		return a.Value.String()
	case ArgUserType:
		if a.DebugName != "" {
			return "ut@" + a.DebugName
		}
		return "ut@" + a.Value.String()
	case ArgUserFunc:
		return "user@" + a.ID.String()
	default:
		return a.ID.String()
	}
}

// MarshalJSON renders the externally tagged form, e.g. {"Type": {"id": 3}}.
func (a GenericArg) MarshalJSON() ([]byte, error) {
	var inner any
	switch a.Kind {
	case ArgType, ArgUserFunc, ArgLibfunc:
		inner = a.ID
	case ArgValue:
		inner = json.Number(a.Value.String())
	case ArgUserType:
		ut := map[string]any{"id": json.Number(a.Value.String())}
		if a.DebugName != "" {
			ut["debug_name"] = a.DebugName
		}
		inner = ut
	default:
		return nil, fmt.Errorf("unknown generic arg kind %d", a.Kind)
	}
	return json.Marshal(map[string]any{argKindNames[a.Kind]: inner})
}

// UnmarshalJSON accepts the externally tagged form.
func (a *GenericArg) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("generic arg: %w", err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("generic arg: expected exactly one variant, got %d", len(tagged))
	}
	for tag, body := range tagged {
		switch tag {
		case "Type", "UserFunc", "Libfunc":
			var id ID
			if err := json.Unmarshal(body, &id); err != nil {
				return fmt.Errorf("generic arg %s: %w", tag, err)
			}
			a.ID = id
			a.Kind = map[string]ArgKind{"Type": ArgType, "UserFunc": ArgUserFunc, "Libfunc": ArgLibfunc}[tag]
		case "Value":
			v, err := decodeBigInt(body)
			if err != nil {
				return fmt.Errorf("generic arg Value: %w", err)
			}
			a.Kind, a.Value = ArgValue, v
		case "UserType":
			var ut struct {
				ID        json.RawMessage `json:"id"`
				DebugName string          `json:"debug_name"`
			}
			if err := json.Unmarshal(body, &ut); err != nil {
				return fmt.Errorf("generic arg UserType: %w", err)
			}
			v, err := decodeBigInt(ut.ID)
			if err != nil {
				return fmt.Errorf("generic arg UserType id: %w", err)
			}
			a.Kind, a.Value, a.DebugName = ArgUserType, v, ut.DebugName
		default:
			return fmt.Errorf("generic arg: unknown variant %q", tag)
		}
	}
	return nil
}

// decodeBigInt accepts a JSON number, a decimal or 0x-hex string, a
// little-endian u32 digit array, or the signed [sign, [digits]] pair.
func decodeBigInt(data []byte) (*big.Int, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		if strings.HasPrefix(s, "0x") {
			v, ok := new(big.Int).SetString(s[2:], 16)
			if !ok {
				return nil, fmt.Errorf("invalid hex integer %q", s)
			}
			return v, nil
		}
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		return v, nil
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil {
			return nil, err
		}
		if len(parts) == 2 && bytes.HasPrefix(bytes.TrimSpace(parts[1]), []byte("[")) {
			var sign int
			if err := json.Unmarshal(parts[0], &sign); err != nil {
				return nil, fmt.Errorf("bigint sign: %w", err)
			}
			mag, err := decodeDigits(parts[1])
			if err != nil {
				return nil, err
			}
			if sign < 0 {
				mag.Neg(mag)
			}
			return mag, nil
		}
		return decodeDigits(data)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		v, ok := new(big.Int).SetString(n.String(), 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %s", n)
		}
		return v, nil
	}
}

func decodeDigits(data []byte) (*big.Int, error) {
	var digits []uint32
	if err := json.Unmarshal(data, &digits); err != nil {
		return nil, fmt.Errorf("bigint digits: %w", err)
	}
	v := new(big.Int)
	for i := len(digits) - 1; i >= 0; i-- {
		v.Lsh(v, 32)
		v.Or(v, big.NewInt(int64(digits[i])))
	}
	return v, nil
}

// TypeDeclaration declares a concrete type.
type TypeDeclaration struct {
	ID     ID     `json:"id"`
	LongID LongID `json:"long_id"`
}

// LibfuncDeclaration declares a concrete libfunc.
type LibfuncDeclaration struct {
	ID     ID     `json:"id"`
	LongID LongID `json:"long_id"`
}

// BranchTarget is either the next statement (Fallthrough) or an explicit index.
type BranchTarget struct {
	Fallthrough bool
	Statement   int
}

// Fallthrough is the implicit next-statement target.
var Fallthrough = BranchTarget{Fallthrough: true}

// Target returns an explicit statement target.
func Target(idx int) BranchTarget { return BranchTarget{Statement: idx} }

// Resolve returns the absolute statement index reached from statement idx.
func (t BranchTarget) Resolve(idx int) int {
	if t.Fallthrough {
		return idx + 1
	}
	return t.Statement
}

// MarshalJSON renders "Fallthrough" or {"Statement": n}.
func (t BranchTarget) MarshalJSON() ([]byte, error) {
	if t.Fallthrough {
		return []byte(`"Fallthrough"`), nil
	}
	return json.Marshal(map[string]int{"Statement": t.Statement})
}

// UnmarshalJSON accepts "Fallthrough" or {"Statement": n}.
func (t *BranchTarget) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "Fallthrough" {
			return fmt.Errorf("branch target: unknown variant %q", s)
		}
		*t = Fallthrough
		return nil
	}
	var obj struct {
		Statement *int `json:"Statement"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("branch target: %w", err)
	}
	if obj.Statement == nil || *obj.Statement < 0 {
		return fmt.Errorf("branch target: missing or negative statement index")
	}
	*t = Target(*obj.Statement)
	return nil
}

// BranchInfo is one outcome of an invocation.
type BranchInfo struct {
	Target  BranchTarget `json:"target"`
	Results []ID         `json:"results"`
}

// Invocation calls a libfunc.
type Invocation struct {
	LibfuncID ID           `json:"libfunc_id"`
	Args      []ID         `json:"args"`
	Branches  []BranchInfo `json:"branches"`
}

// Statement is either an Invocation or a Return.
type Statement struct {
	Invocation *Invocation
	Return     []ID
}

// IsReturn reports whether the statement returns from the current function.
func (s Statement) IsReturn() bool { return s.Invocation == nil }

// MarshalJSON renders {"Invocation": {...}} or {"Return": [...]}.
func (s Statement) MarshalJSON() ([]byte, error) {
	if s.Invocation != nil {
		return json.Marshal(map[string]any{"Invocation": s.Invocation})
	}
	ret := s.Return
	if ret == nil {
		ret = []ID{}
	}
	return json.Marshal(map[string]any{"Return": ret})
}

// UnmarshalJSON accepts the externally tagged statement form.
func (s *Statement) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("statement: %w", err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("statement: expected exactly one variant, got %d", len(tagged))
	}
	if body, ok := tagged["Invocation"]; ok {
		var inv Invocation
		if err := json.Unmarshal(body, &inv); err != nil {
			return fmt.Errorf("statement Invocation: %w", err)
		}
		*s = Statement{Invocation: &inv}
		return nil
	}
	if body, ok := tagged["Return"]; ok {
		var ret []ID
		if err := json.Unmarshal(body, &ret); err != nil {
			return fmt.Errorf("statement Return: %w", err)
		}
		if ret == nil {
			ret = []ID{}
		}
		*s = Statement{Return: ret}
		return nil
	}
	for tag := range tagged {
		return fmt.Errorf("statement: unknown variant %q", tag)
	}
	return nil
}

// Signature lists a function's parameter and return types.
type Signature struct {
	ParamTypes []ID `json:"param_types"`
	RetTypes   []ID `json:"ret_types"`
}

// Param binds a parameter variable to its type.
type Param struct {
	ID ID `json:"id"`
	Ty ID `json:"ty"`
}

// Function is a user function: a signature plus the index of its first statement.
type Function struct {
	ID         ID        `json:"id"`
	Signature  Signature `json:"signature"`
	Params     []Param   `json:"params"`
	EntryPoint int       `json:"entry_point"`
}

// Program is a complete Sierra program.
type Program struct {
	TypeDeclarations    []TypeDeclaration    `json:"type_declarations"`
	LibfuncDeclarations []LibfuncDeclaration `json:"libfunc_declarations"`
	Statements          []Statement          `json:"statements"`
	Funcs               []Function           `json:"funcs"`
}

// Decode parses a Sierra program from its JSON form.
func Decode(data []byte) (*Program, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var p Program
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ValueFelt converts a generic Value argument to its felt representation.
func ValueFelt(v *big.Int) *big.Int {
	return felt.Reduce(v)
}
