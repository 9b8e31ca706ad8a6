package kernels

import (
	"math"
	"strconv"
	"unsafe"

	"github.com/apache/arrow/go/v7/arrow/float16"
	"golang.org/x/exp/constraints"

	"github.com/sbl8/ndkernel/eval"
)

type class uint8

const (
	clsBool class = iota
	clsInt
	clsUint
	clsFloat
	clsComplex
)

// scalar is the canonical in-register form every builtin is read into.
// bool and unsigned values live in u, signed in i, real floats in f.
type scalar struct {
	cls class
	i   int64
	u   uint64
	f   float64
	c   complex128
}

func (v scalar) String() string {
	switch v.cls {
	case clsBool:
		return strconv.FormatBool(v.u != 0)
	case clsInt:
		return strconv.FormatInt(v.i, 10)
	case clsUint:
		return strconv.FormatUint(v.u, 10)
	case clsFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	}
	return strconv.FormatComplex(v.c, 'g', -1, 128)
}

// isNaN reports whether v is unordered.
func (v scalar) isNaN() bool {
	switch v.cls {
	case clsFloat:
		return math.IsNaN(v.f)
	case clsComplex:
		return math.IsNaN(real(v.c)) || math.IsNaN(imag(v.c))
	}
	return false
}

func (v scalar) complex() complex128 {
	switch v.cls {
	case clsBool, clsUint:
		return complex(float64(v.u), 0)
	case clsInt:
		return complex(float64(v.i), 0)
	case clsFloat:
		return complex(v.f, 0)
	}
	return v.c
}

type reader func(p unsafe.Pointer) scalar

type writer func(p unsafe.Pointer, v scalar, mode eval.ErrorMode) error

func readSigned[T constraints.Signed](p unsafe.Pointer) scalar {
	return scalar{cls: clsInt, i: int64(*(*T)(p))}
}

func readUnsigned[T constraints.Unsigned](p unsafe.Pointer) scalar {
	return scalar{cls: clsUint, u: uint64(*(*T)(p))}
}

func readFloat[T constraints.Float](p unsafe.Pointer) scalar {
	return scalar{cls: clsFloat, f: float64(*(*T)(p))}
}

var readers = [BuiltinCount]reader{
	Bool: func(p unsafe.Pointer) scalar {
		if *(*uint8)(p) != 0 {
			return scalar{cls: clsBool, u: 1}
		}
		return scalar{cls: clsBool}
	},
	Int8:    readSigned[int8],
	Int16:   readSigned[int16],
	Int32:   readSigned[int32],
	Int64:   readSigned[int64],
	Uint8:   readUnsigned[uint8],
	Uint16:  readUnsigned[uint16],
	Uint32:  readUnsigned[uint32],
	Uint64:  readUnsigned[uint64],
	Float16: func(p unsafe.Pointer) scalar { return scalar{cls: clsFloat, f: float64((*(*float16.Num)(p)).Float32())} },
	Float32: readFloat[float32],
	Float64: readFloat[float64],
	Complex64: func(p unsafe.Pointer) scalar {
		return scalar{cls: clsComplex, c: complex128(*(*complex64)(p))}
	},
	Complex128: func(p unsafe.Pointer) scalar { return scalar{cls: clsComplex, c: *(*complex128)(p)} },
}

var writers = [BuiltinCount]writer{
	Bool:       writeBool,
	Int8:       writeSigned[int8],
	Int16:      writeSigned[int16],
	Int32:      writeSigned[int32],
	Int64:      writeSigned[int64],
	Uint8:      writeUnsigned[uint8],
	Uint16:     writeUnsigned[uint16],
	Uint32:     writeUnsigned[uint32],
	Uint64:     writeUnsigned[uint64],
	Float16:    writeFloat16,
	Float32:    writeFloat[float32],
	Float64:    writeFloat[float64],
	Complex64:  writeComplex64,
	Complex128: writeComplex128,
}

func bitsOf[T any]() uint {
	var zero T
	return uint(unsafe.Sizeof(zero)) * 8
}

func writeBool(p unsafe.Pointer, v scalar, mode eval.ErrorMode) error {
	var b, ok bool
	switch v.cls {
	case clsBool, clsUint:
		b, ok = v.u != 0, v.u <= 1
	case clsInt:
		b, ok = v.i != 0, v.i == 0 || v.i == 1
	case clsFloat:
		b, ok = v.f != 0, v.f == 0 || v.f == 1
	case clsComplex:
		b, ok = v.c != 0, imag(v.c) == 0 && (real(v.c) == 0 || real(v.c) == 1)
	}
	if !ok && mode != eval.None {
		return valueErr(KindOverflow, v)
	}
	if b {
		*(*uint8)(p) = 1
	} else {
		*(*uint8)(p) = 0
	}
	return nil
}

func writeSigned[T constraints.Signed](p unsafe.Pointer, v scalar, mode eval.ErrorMode) error {
	bits := bitsOf[T]()
	lo := int64(-1) << (bits - 1)
	hi := int64(uint64(1)<<(bits-1) - 1)
	checked := mode != eval.None
	switch v.cls {
	case clsBool, clsUint:
		if checked && v.u > uint64(hi) {
			return valueErr(KindOverflow, v)
		}
		*(*T)(p) = T(v.u)
	case clsInt:
		if checked && (v.i < lo || v.i > hi) {
			return valueErr(KindOverflow, v)
		}
		*(*T)(p) = T(v.i)
	case clsFloat:
		return floatToSigned[T](p, v, v.f, bits, mode)
	case clsComplex:
		if checked && mode >= eval.Fractional && imag(v.c) != 0 {
			return valueErr(KindInexact, v)
		}
		return floatToSigned[T](p, v, real(v.c), bits, mode)
	}
	return nil
}

func floatToSigned[T constraints.Signed](p unsafe.Pointer, v scalar, f float64, bits uint, mode eval.ErrorMode) error {
	if mode != eval.None {
		limit := math.Ldexp(1, int(bits-1))
		if math.IsNaN(f) || f < -limit || f >= limit {
			return valueErr(KindOverflow, v)
		}
		if mode >= eval.Fractional && f != math.Trunc(f) {
			return valueErr(KindFractional, v)
		}
	}
	*(*T)(p) = T(int64(f))
	return nil
}

func writeUnsigned[T constraints.Unsigned](p unsafe.Pointer, v scalar, mode eval.ErrorMode) error {
	bits := bitsOf[T]()
	hi := ^uint64(0) >> (64 - bits)
	checked := mode != eval.None
	switch v.cls {
	case clsBool, clsUint:
		if checked && v.u > hi {
			return valueErr(KindOverflow, v)
		}
		*(*T)(p) = T(v.u)
	case clsInt:
		if checked && (v.i < 0 || uint64(v.i) > hi) {
			return valueErr(KindOverflow, v)
		}
		*(*T)(p) = T(v.i)
	case clsFloat:
		return floatToUnsigned[T](p, v, v.f, bits, mode)
	case clsComplex:
		if checked && mode >= eval.Fractional && imag(v.c) != 0 {
			return valueErr(KindInexact, v)
		}
		return floatToUnsigned[T](p, v, real(v.c), bits, mode)
	}
	return nil
}

func floatToUnsigned[T constraints.Unsigned](p unsafe.Pointer, v scalar, f float64, bits uint, mode eval.ErrorMode) error {
	if mode != eval.None {
		if math.IsNaN(f) || f <= -1 || f >= math.Ldexp(1, int(bits)) {
			return valueErr(KindOverflow, v)
		}
		if mode >= eval.Fractional && f != math.Trunc(f) {
			return valueErr(KindFractional, v)
		}
	}
	if f < 0 {
		*(*T)(p) = T(int64(f))
	} else {
		*(*T)(p) = T(uint64(f))
	}
	return nil
}

// exactInt reports whether d holds exactly i.
func exactInt(d float64, i int64) bool {
	if d >= 0x1p63 || d < -0x1p63 {
		return false
	}
	return int64(d) == i
}

func exactUint(d float64, u uint64) bool {
	if d >= 0x1p64 {
		return false
	}
	return uint64(d) == u
}

// toFloat narrows v to T, reporting the kind of loss if mode forbids it.
func toFloat[T constraints.Float](v scalar, re float64, mode eval.ErrorMode) (T, error) {
	var d T
	switch v.cls {
	case clsBool, clsUint:
		d = T(v.u)
		if mode == eval.Inexact && !exactUint(float64(d), v.u) {
			return d, valueErr(KindInexact, v)
		}
	case clsInt:
		d = T(v.i)
		if mode == eval.Inexact && !exactInt(float64(d), v.i) {
			return d, valueErr(KindInexact, v)
		}
	default:
		d = T(re)
		if mode != eval.None && !math.IsInf(re, 0) && math.IsInf(float64(d), 0) {
			return d, valueErr(KindOverflow, v)
		}
		if mode == eval.Inexact && float64(d) != re && !math.IsNaN(re) {
			return d, valueErr(KindInexact, v)
		}
	}
	return d, nil
}

func writeFloat[T constraints.Float](p unsafe.Pointer, v scalar, mode eval.ErrorMode) error {
	re := v.f
	if v.cls == clsComplex {
		if mode >= eval.Fractional && imag(v.c) != 0 {
			return valueErr(KindInexact, v)
		}
		re = real(v.c)
	}
	d, err := toFloat[T](v, re, mode)
	if err != nil {
		return err
	}
	*(*T)(p) = d
	return nil
}

func writeFloat16(p unsafe.Pointer, v scalar, mode eval.ErrorMode) error {
	var f float32
	if err := writeFloat[float32](unsafe.Pointer(&f), v, mode); err != nil {
		return err
	}
	n := float16.New(f)
	back := n.Float32()
	if mode != eval.None && !isInf32(f) && isInf32(back) {
		return valueErr(KindOverflow, v)
	}
	if mode == eval.Inexact && back != f && !math.IsNaN(float64(f)) {
		return valueErr(KindInexact, v)
	}
	*(*float16.Num)(p) = n
	return nil
}

func isInf32(f float32) bool { return math.IsInf(float64(f), 0) }

func writeComplex128(p unsafe.Pointer, v scalar, mode eval.ErrorMode) error {
	if v.cls == clsComplex {
		*(*complex128)(p) = v.c
		return nil
	}
	re, err := toFloat[float64](v, v.f, mode)
	if err != nil {
		return err
	}
	*(*complex128)(p) = complex(re, 0)
	return nil
}

func writeComplex64(p unsafe.Pointer, v scalar, mode eval.ErrorMode) error {
	if v.cls != clsComplex {
		re, err := toFloat[float32](v, v.f, mode)
		if err != nil {
			return err
		}
		*(*complex64)(p) = complex(re, 0)
		return nil
	}
	re, err := toFloat[float32](v, real(v.c), mode)
	if err != nil {
		return err
	}
	im, err := toFloat[float32](v, imag(v.c), mode)
	if err != nil {
		return err
	}
	*(*complex64)(p) = complex(re, im)
	return nil
}

// FormatValue prints the builtin value of type id stored at p.
func FormatValue(id BuiltinID, p unsafe.Pointer) string {
	return readers[id](p).String()
}
