// Package kernels provides the builtin ckernels of ndkernel.
//
// The closed set of builtin scalar types (bool, sized integers, float16/32/64
// and complex64/128) is handled through dense dispatch tables filled once at
// init and never mutated afterwards:
//   - assignment: [source][destination][error mode] -> SingleFunc
//   - comparison: [source0][source1][comparison]     -> PredicateFunc
//
// The package also holds the type-independent kernels used by extended
// types: POD copies, byte swaps and buffered chains that stage a value
// through intermediate scratch buffers.
package kernels

import "fmt"

// BuiltinID identifies a builtin scalar type. It indexes the dispatch tables.
type BuiltinID uint8

const (
	Bool BuiltinID = iota
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float16
	Float32
	Float64
	Complex64
	Complex128

	BuiltinCount = iota
)

var builtinNames = [BuiltinCount]string{
	Bool:       "bool",
	Int8:       "int8",
	Int16:      "int16",
	Int32:      "int32",
	Int64:      "int64",
	Uint8:      "uint8",
	Uint16:     "uint16",
	Uint32:     "uint32",
	Uint64:     "uint64",
	Float16:    "float16",
	Float32:    "float32",
	Float64:    "float64",
	Complex64:  "complex[float32]",
	Complex128: "complex[float64]",
}

var builtinSizes = [BuiltinCount]int{
	Bool: 1, Int8: 1, Int16: 2, Int32: 4, Int64: 8,
	Uint8: 1, Uint16: 2, Uint32: 4, Uint64: 8,
	Float16: 2, Float32: 4, Float64: 8,
	Complex64: 8, Complex128: 16,
}

var builtinAligns = [BuiltinCount]int{
	Bool: 1, Int8: 1, Int16: 2, Int32: 4, Int64: 8,
	Uint8: 1, Uint16: 2, Uint32: 4, Uint64: 8,
	Float16: 2, Float32: 4, Float64: 8,
	Complex64: 4, Complex128: 8,
}

// Valid reports whether id is within the builtin range.
func (id BuiltinID) Valid() bool { return id < BuiltinCount }

func (id BuiltinID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("BuiltinID(%d)", uint8(id))
	}
	return builtinNames[id]
}

// Size returns the data size of id in bytes.
func (id BuiltinID) Size() int { return builtinSizes[id] }

// Align returns the data alignment of id in bytes.
func (id BuiltinID) Align() int { return builtinAligns[id] }

// IsSigned reports whether id is a signed integer type.
func (id BuiltinID) IsSigned() bool { return id >= Int8 && id <= Int64 }

// IsUnsigned reports whether id is an unsigned integer type.
func (id BuiltinID) IsUnsigned() bool { return id >= Uint8 && id <= Uint64 }

// IsFloat reports whether id is a real floating-point type.
func (id BuiltinID) IsFloat() bool { return id >= Float16 && id <= Float64 }

// IsComplex reports whether id is a complex type.
func (id BuiltinID) IsComplex() bool { return id == Complex64 || id == Complex128 }
