package ndt

import (
	"fmt"

	"github.com/hashicorp/go-set/v2"
)

// ValidTypeVarName reports whether name can name a type variable: an
// ASCII capital followed by letters, digits or underscores.
func ValidTypeVarName(name string) bool {
	if name == "" || name[0] < 'A' || name[0] > 'Z' {
		return false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return true
}

func checkTypeVarName(name string) error {
	if !ValidTypeVarName(name) {
		return &TypeError{Reason: fmt.Sprintf("typevar name %q is not valid, it must be alphanumeric and begin with a capital", name)}
	}
	return nil
}

// symbolicBase supplies the layout of pattern types, which hold no data.
type symbolicBase struct{ typ }

func (symbolicBase) DataSize() int      { return 0 }
func (symbolicBase) DataAlignment() int { return 1 }

// TypeVar is a pattern matching any element type.
type TypeVar struct {
	symbolicBase
	name string
}

// NewTypeVar returns the type variable name.
func NewTypeVar(name string) (*TypeVar, error) {
	if err := checkTypeVarName(name); err != nil {
		return nil, err
	}
	return &TypeVar{name: name}, nil
}

func (t *TypeVar) ID() TypeID     { return TypeVarID }
func (t *TypeVar) Kind() Kind     { return PatternKind }
func (t *TypeVar) Flags() Flags   { return FlagScalar | FlagSymbolic }
func (t *TypeVar) Name() string   { return t.name }
func (t *TypeVar) String() string { return t.name }

// TypeVarDim is a pattern matching any dimension.
type TypeVarDim struct {
	symbolicBase
	name string
	elem Type
}

// NewTypeVarDim returns the dimension variable name over elem.
func NewTypeVarDim(name string, elem Type) (*TypeVarDim, error) {
	if err := checkTypeVarName(name); err != nil {
		return nil, err
	}
	return &TypeVarDim{name: name, elem: elem}, nil
}

func (t *TypeVarDim) ID() TypeID     { return TypeVarDimID }
func (t *TypeVarDim) Kind() Kind     { return PatternKind }
func (t *TypeVarDim) Flags() Flags   { return FlagSymbolic }
func (t *TypeVarDim) Name() string   { return t.name }
func (t *TypeVarDim) Elem() Type     { return t.elem }
func (t *TypeVarDim) String() string { return fmt.Sprintf("%s * %s", t.name, t.elem) }

// PowDimSym is a dimension repeated a symbolic number of times, such as
// Dims**N * T. base is a dimension type whose element is ignored.
type PowDimSym struct {
	symbolicBase
	base     Type
	exponent string
	elem     Type
}

// NewPowDimSym returns base**exponent * elem.
func NewPowDimSym(base Type, exponent string, elem Type) (*PowDimSym, error) {
	if base.Kind() != DimKind && base.ID() != TypeVarDimID {
		return nil, typeErrorf("dimension power", "base %s is not a dimension", base)
	}
	if err := checkTypeVarName(exponent); err != nil {
		return nil, err
	}
	return &PowDimSym{base: base, exponent: exponent, elem: elem}, nil
}

func (t *PowDimSym) ID() TypeID       { return PowDimSymID }
func (t *PowDimSym) Kind() Kind       { return PatternKind }
func (t *PowDimSym) Flags() Flags     { return FlagSymbolic }
func (t *PowDimSym) Exponent() string { return t.exponent }
func (t *PowDimSym) Elem() Type       { return t.elem }

func (t *PowDimSym) String() string {
	var dim string
	switch b := t.base.(type) {
	case *FixedDim:
		dim = fmt.Sprint(b.size)
	case *TypeVarDim:
		dim = b.name
	default:
		dim = t.base.String()
	}
	return fmt.Sprintf("%s**%s * %s", dim, t.exponent, t.elem)
}

// TypeVars collects the type variable names appearing in t.
func TypeVars(t Type) *set.Set[string] {
	names := set.New[string](0)
	collectTypeVars(t, names)
	return names
}

func collectTypeVars(t Type, names *set.Set[string]) {
	switch t := t.(type) {
	case *TypeVar:
		names.Insert(t.name)
	case *TypeVarDim:
		names.Insert(t.name)
		collectTypeVars(t.elem, names)
	case *PowDimSym:
		names.Insert(t.exponent)
		collectTypeVars(t.base, names)
		collectTypeVars(t.elem, names)
	case *FixedDim:
		collectTypeVars(t.elem, names)
	case *Struct:
		for _, f := range t.fields {
			collectTypeVars(f.Type, names)
		}
	case expression:
		collectTypeVars(t.ValueType(), names)
		collectTypeVars(t.OperandType(), names)
	}
}
