// Package ndt implements the runtime type descriptors of ndkernel and the
// factories that compile a pair of types into a ckernel.
//
// Types are immutable values shared by reference. Builtin scalar types are
// interned singletons; extended types (bytes, strings, dates, structs,
// dimensions, expression and pattern types, categoricals) carry their own
// payload and build their own assignment and comparison kernels.
package ndt

import (
	"fmt"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/eval"
)

// TypeID discriminates the concrete type of a descriptor.
type TypeID uint8

const (
	UninitializedID TypeID = iota
	BoolID
	Int8ID
	Int16ID
	Int32ID
	Int64ID
	Uint8ID
	Uint16ID
	Uint32ID
	Uint64ID
	Float16ID
	Float32ID
	Float64ID
	Complex64ID
	Complex128ID
	VoidID
	FixedBytesID
	FixedStringID
	DateID
	TimeID
	DateTimeID
	StructID
	FixedDimID
	PropertyID
	ConvertID
	ByteSwapID
	TypeVarID
	TypeVarDimID
	PowDimSymID
	CategoricalID
)

// IsBuiltin reports whether id names a builtin scalar type.
func (id TypeID) IsBuiltin() bool { return id >= BoolID && id <= Complex128ID }

// Kind is the logical category of a type.
type Kind uint8

const (
	VoidKind Kind = iota
	BoolKind
	IntKind
	UintKind
	RealKind
	ComplexKind
	StringKind
	BytesKind
	DatetimeKind
	StructKind
	DimKind
	ExpressionKind
	PatternKind
	CustomKind
)

var kindNames = [...]string{
	VoidKind:       "void",
	BoolKind:       "bool",
	IntKind:        "int",
	UintKind:       "uint",
	RealKind:       "real",
	ComplexKind:    "complex",
	StringKind:     "string",
	BytesKind:      "bytes",
	DatetimeKind:   "datetime",
	StructKind:     "struct",
	DimKind:        "dim",
	ExpressionKind: "expression",
	PatternKind:    "pattern",
	CustomKind:     "custom",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Flags are attribute bits of a type.
type Flags uint32

const (
	// FlagScalar marks types whose values have no dimensions.
	FlagScalar Flags = 1 << iota
	// FlagSymbolic marks pattern types that cannot hold data.
	FlagSymbolic
	// FlagZeroInit marks types whose zero bytes are a valid value.
	FlagZeroInit
)

// Type describes the layout and meaning of one element of data.
type Type interface {
	ID() TypeID
	Kind() Kind
	// DataSize is the element size in bytes; 0 for symbolic types.
	DataSize() int
	DataAlignment() int
	Flags() Flags
	// ArrmetaSize is the number of per-instance layout bytes the type needs.
	ArrmetaSize() int
	String() string

	// aType restricts implementations to this package.
	aType()
}

// typ is embedded by every concrete type.
type typ struct{}

func (typ) aType() {}

// ArrmetaSize defaults to none.
func (typ) ArrmetaSize() int { return 0 }

// expression is implemented by types whose storage differs from their value.
type expression interface {
	Type
	ValueType() Type
	OperandType() Type
	// makeOperandToValue builds a kernel reading the value face of
	// OperandType() and writing ValueType(); makeValueToOperand is its inverse.
	makeOperandToValue(b *ckernel.Builder, off int, req ckernel.Request, ectx *eval.Context) (int, error)
	makeValueToOperand(b *ckernel.Builder, off int, req ckernel.Request, ectx *eval.Context) (int, error)
}

// IsExpression reports whether t has distinct value and storage faces.
func IsExpression(t Type) bool {
	_, ok := t.(expression)
	return ok
}

// ValueType returns the logical type of t: t itself unless t is an expression.
func ValueType(t Type) Type {
	if e, ok := t.(expression); ok {
		return e.ValueType()
	}
	return t
}

// StorageType returns the physical type of t, following expression operands
// down to the first non-expression type.
func StorageType(t Type) Type {
	for {
		e, ok := t.(expression)
		if !ok {
			return t
		}
		t = e.OperandType()
	}
}

// Equal reports whether a and b describe the same type. It is an
// equivalence relation usable for caching and sets.
func Equal(a, b Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.ID() != b.ID() {
		return false
	}
	switch a := a.(type) {
	case *Builtin, *Void:
		return true
	case *FixedBytes:
		b := b.(*FixedBytes)
		return a.size == b.size && a.align == b.align
	case *FixedString:
		b := b.(*FixedString)
		return a.length == b.length && a.encoding == b.encoding
	case *Date:
		return true
	case *Time:
		return a.tz == b.(*Time).tz
	case *DateTime:
		return a.tz == b.(*DateTime).tz
	case *Struct:
		return equalStructs(a, b.(*Struct))
	case *FixedDim:
		b := b.(*FixedDim)
		return a.size == b.size && Equal(a.elem, b.elem)
	case *Property:
		b := b.(*Property)
		return a.name == b.name && Equal(a.operand, b.operand)
	case *Convert:
		b := b.(*Convert)
		return a.mode == b.mode && Equal(a.value, b.value) && Equal(a.operand, b.operand)
	case *ByteSwap:
		b := b.(*ByteSwap)
		return Equal(a.value, b.value) && Equal(a.operand, b.operand)
	case *TypeVar:
		return a.name == b.(*TypeVar).name
	case *TypeVarDim:
		b := b.(*TypeVarDim)
		return a.name == b.name && Equal(a.elem, b.elem)
	case *PowDimSym:
		b := b.(*PowDimSym)
		return Equal(a.base, b.base) && a.exponent == b.exponent && Equal(a.elem, b.elem)
	case *Categorical:
		return equalCategoricals(a, b.(*Categorical))
	}
	return false
}

func equalStructs(a, b *Struct) bool {
	if len(a.fields) != len(b.fields) {
		return false
	}
	for i := range a.fields {
		if a.fields[i].Name != b.fields[i].Name || !Equal(a.fields[i].Type, b.fields[i].Type) {
			return false
		}
	}
	return true
}
