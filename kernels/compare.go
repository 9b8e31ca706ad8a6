package kernels

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/sbl8/ndkernel/ckernel"
)

// Comparison names a binary predicate.
type Comparison uint8

const (
	// SortingLess is a total order for sorting: NaN sorts after every
	// ordered value and complex values compare lexicographically.
	SortingLess Comparison = iota
	Less
	LessEqual
	Equal
	NotEqual
	GreaterEqual
	Greater

	ComparisonCount = iota
)

var comparisonNames = [ComparisonCount]string{
	SortingLess:  "sorting_less",
	Less:         "less",
	LessEqual:    "less_equal",
	Equal:        "equal",
	NotEqual:     "not_equal",
	GreaterEqual: "greater_equal",
	Greater:      "greater",
}

func (c Comparison) String() string {
	if c >= ComparisonCount {
		return fmt.Sprintf("Comparison(%d)", uint8(c))
	}
	return comparisonNames[c]
}

// ParseComparison maps a comparison name back to its value.
func ParseComparison(s string) (Comparison, error) {
	for i, n := range comparisonNames {
		if n == s {
			return Comparison(i), nil
		}
	}
	return 0, fmt.Errorf("unknown comparison %q", s)
}

// Swapped returns the comparison c' with c(a, b) == c'(b, a), or false for
// SortingLess whose mirror is not in the set.
func (c Comparison) Swapped() (Comparison, bool) {
	switch c {
	case Less:
		return Greater, true
	case LessEqual:
		return GreaterEqual, true
	case GreaterEqual:
		return LessEqual, true
	case Greater:
		return Less, true
	case Equal, NotEqual:
		return c, true
	}
	return c, false
}

var compareTable [BuiltinCount][BuiltinCount][ComparisonCount]ckernel.PredicateFunc

func init() {
	for a := BuiltinID(0); a < BuiltinCount; a++ {
		for b := BuiltinID(0); b < BuiltinCount; b++ {
			for c := Comparison(0); c < ComparisonCount; c++ {
				compareTable[a][b][c] = compareFunc(readers[a], readers[b], c)
			}
		}
	}
}

func compareFunc(ra, rb reader, c Comparison) ckernel.PredicateFunc {
	return func(src []unsafe.Pointer, _ ckernel.Kernel) int {
		if evalComparison(c, ra(src[0]), rb(src[1])) {
			return 1
		}
		return 0
	}
}

func evalComparison(c Comparison, a, b scalar) bool {
	ord, ok := compareScalars(a, b)
	switch c {
	case SortingLess:
		if !ok {
			return !a.isNaN() && b.isNaN()
		}
		return ord < 0
	case Less:
		return ok && ord < 0
	case LessEqual:
		return ok && ord <= 0
	case Equal:
		return ok && ord == 0
	case NotEqual:
		return !(ok && ord == 0)
	case GreaterEqual:
		return ok && ord >= 0
	case Greater:
		return ok && ord > 0
	}
	return false
}

// compareScalars orders a against b exactly. ok is false when either
// operand is NaN.
func compareScalars(a, b scalar) (ord int, ok bool) {
	if a.isNaN() || b.isNaN() {
		return 0, false
	}
	if a.cls == clsBool {
		a.cls = clsUint
	}
	if b.cls == clsBool {
		b.cls = clsUint
	}
	if a.cls == clsComplex || b.cls == clsComplex {
		ac, bc := a.complex(), b.complex()
		if o := cmpFloat(real(ac), real(bc)); o != 0 {
			return o, true
		}
		return cmpFloat(imag(ac), imag(bc)), true
	}
	switch a.cls {
	case clsInt:
		switch b.cls {
		case clsInt:
			return cmpOrdered(a.i, b.i), true
		case clsUint:
			return cmpIntUint(a.i, b.u), true
		case clsFloat:
			return cmpIntFloat(a.i, b.f), true
		}
	case clsUint:
		switch b.cls {
		case clsInt:
			return -cmpIntUint(b.i, a.u), true
		case clsUint:
			return cmpOrdered(a.u, b.u), true
		case clsFloat:
			return cmpUintFloat(a.u, b.f), true
		}
	case clsFloat:
		switch b.cls {
		case clsInt:
			return -cmpIntFloat(b.i, a.f), true
		case clsUint:
			return -cmpUintFloat(b.u, a.f), true
		case clsFloat:
			return cmpFloat(a.f, b.f), true
		}
	}
	return 0, false
}

func cmpOrdered[T int64 | uint64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int { return cmpOrdered(a, b) }

func cmpIntUint(i int64, u uint64) int {
	if i < 0 {
		return -1
	}
	return cmpOrdered(uint64(i), u)
}

// cmpIntFloat compares without rounding i to float64.
func cmpIntFloat(i int64, f float64) int {
	if f >= 0x1p63 {
		return -1
	}
	if f < -0x1p63 {
		return 1
	}
	t := math.Trunc(f)
	if o := cmpOrdered(i, int64(t)); o != 0 {
		return o
	}
	return cmpFloat(t, f)
}

func cmpUintFloat(u uint64, f float64) int {
	if f < 0 {
		return 1
	}
	if f >= 0x1p64 {
		return -1
	}
	t := math.Trunc(f)
	if o := cmpOrdered(u, uint64(t)); o != 0 {
		return o
	}
	return cmpFloat(t, f)
}

// NotComparableError reports a comparison with no kernel.
type NotComparableError struct {
	A, B string
	Op   Comparison
}

func (e *NotComparableError) Error() string {
	return fmt.Sprintf("cannot compare %s and %s with %s", e.A, e.B, e.Op)
}

// CompareFunc returns the predicate table entry for a and b.
func CompareFunc(a, b BuiltinID, c Comparison) (ckernel.PredicateFunc, error) {
	if !a.Valid() || !b.Valid() || c >= ComparisonCount {
		return nil, &NotComparableError{A: a.String(), B: b.String(), Op: c}
	}
	return compareTable[a][b][c], nil
}

// MakeBuiltinComparison places a predicate comparing a and b at off and
// returns the offset just past it.
func MakeBuiltinComparison(bld *ckernel.Builder, off int, a, b BuiltinID, c Comparison) (int, error) {
	fn, err := CompareFunc(a, b, c)
	if err != nil {
		return off, err
	}
	k, end := ckernel.Place[leaf](bld, off)
	k.SetFunction(fn)
	return end, nil
}
