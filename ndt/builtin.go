package ndt

import (
	"unsafe"

	"github.com/sbl8/ndkernel/kernels"
)

// Builtin is a primitive scalar type handled by the dense kernel tables.
type Builtin struct {
	typ
	id kernels.BuiltinID
}

var builtins [kernels.BuiltinCount]*Builtin

var (
	BoolType       = newBuiltin(kernels.Bool)
	Int8Type       = newBuiltin(kernels.Int8)
	Int16Type      = newBuiltin(kernels.Int16)
	Int32Type      = newBuiltin(kernels.Int32)
	Int64Type      = newBuiltin(kernels.Int64)
	Uint8Type      = newBuiltin(kernels.Uint8)
	Uint16Type     = newBuiltin(kernels.Uint16)
	Uint32Type     = newBuiltin(kernels.Uint32)
	Uint64Type     = newBuiltin(kernels.Uint64)
	Float16Type    = newBuiltin(kernels.Float16)
	Float32Type    = newBuiltin(kernels.Float32)
	Float64Type    = newBuiltin(kernels.Float64)
	Complex64Type  = newBuiltin(kernels.Complex64)
	Complex128Type = newBuiltin(kernels.Complex128)
)

func newBuiltin(id kernels.BuiltinID) *Builtin {
	t := &Builtin{id: id}
	builtins[id] = t
	return t
}

// BuiltinType returns the interned type for id.
func BuiltinType(id kernels.BuiltinID) *Builtin { return builtins[id] }

// BuiltinByName looks a builtin up by its printed name.
func BuiltinByName(name string) (*Builtin, bool) {
	for _, t := range builtins {
		if t.String() == name {
			return t, true
		}
	}
	switch name {
	case "complex64":
		return Complex64Type, true
	case "complex128", "complex":
		return Complex128Type, true
	}
	return nil, false
}

// BuiltinID returns the table index of t.
func (t *Builtin) BuiltinID() kernels.BuiltinID { return t.id }

func (t *Builtin) ID() TypeID { return BoolID + TypeID(t.id) }

func (t *Builtin) Kind() Kind {
	switch {
	case t.id == kernels.Bool:
		return BoolKind
	case t.id.IsSigned():
		return IntKind
	case t.id.IsUnsigned():
		return UintKind
	case t.id.IsFloat():
		return RealKind
	}
	return ComplexKind
}

func (t *Builtin) DataSize() int      { return t.id.Size() }
func (t *Builtin) DataAlignment() int { return t.id.Align() }
func (t *Builtin) Flags() Flags       { return FlagScalar | FlagZeroInit }
func (t *Builtin) String() string     { return t.id.String() }

// Void is the type of no data.
type Void struct{ typ }

// VoidType is the interned void type.
var VoidType = &Void{}

func (*Void) ID() TypeID         { return VoidID }
func (*Void) Kind() Kind         { return VoidKind }
func (*Void) DataSize() int      { return 0 }
func (*Void) DataAlignment() int { return 1 }
func (*Void) Flags() Flags       { return FlagScalar | FlagZeroInit }
func (*Void) String() string     { return "void" }

// PrintData formats the value of type t stored at data.
func PrintData(t Type, meta Arrmeta, data unsafe.Pointer) string {
	switch t := t.(type) {
	case *Builtin:
		return kernels.FormatValue(t.id, data)
	case printer:
		return t.printData(meta, data)
	}
	return "<" + t.String() + ">"
}

type printer interface {
	printData(meta Arrmeta, data unsafe.Pointer) string
}
