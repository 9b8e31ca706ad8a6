package ndt

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"unsafe"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/core"
	"github.com/sbl8/ndkernel/kernels"
)

// FixedBytes is an opaque run of bytes with a declared alignment.
type FixedBytes struct {
	typ
	size, align int
}

// NewFixedBytes validates and returns fixed_bytes[size, align=align].
func NewFixedBytes(size, align int) (*FixedBytes, error) {
	switch {
	case size <= 0:
		return nil, typeErrorf("fixed_bytes", "size %d must be positive", size)
	case align > size:
		return nil, &TypeError{Reason: fmt.Sprintf("Cannot make a bytes[%d, align=%d] type, its alignment is greater than its size", size, align)}
	case !core.IsPow2(align) || align > core.MaxScalarAlign:
		return nil, &TypeError{Reason: fmt.Sprintf("Cannot make a bytes[%d, align=%d] type, its alignment is not a small power of two", size, align)}
	case size%align != 0:
		return nil, &TypeError{Reason: fmt.Sprintf("Cannot make a fixed_bytes[%d, align=%d] type, its alignment does not divide into its element size", size, align)}
	}
	return &FixedBytes{size: size, align: align}, nil
}

func (t *FixedBytes) ID() TypeID         { return FixedBytesID }
func (t *FixedBytes) Kind() Kind         { return BytesKind }
func (t *FixedBytes) DataSize() int      { return t.size }
func (t *FixedBytes) DataAlignment() int { return t.align }
func (t *FixedBytes) Flags() Flags       { return FlagScalar | FlagZeroInit }

func (t *FixedBytes) String() string {
	if t.align != 1 {
		return fmt.Sprintf("fixed_bytes[%d, align=%d]", t.size, t.align)
	}
	return fmt.Sprintf("fixed_bytes[%d]", t.size)
}

func (t *FixedBytes) printData(_ Arrmeta, data unsafe.Pointer) string {
	return "0x" + hex.EncodeToString(unsafe.Slice((*byte)(data), t.size))
}

func (t *FixedBytes) makeAssignment(b *ckernel.Builder, off int, a *assignArgs) (int, error) {
	if a.dst != Type(t) {
		return off, errNoPath
	}
	src, ok := a.src.(*FixedBytes)
	if !ok {
		return off, errNoPath
	}
	if src.size != t.size {
		return off, &AssignError{Dst: a.dst, Src: a.src, Reason: "cannot assign to a fixed_bytes type of a different size"}
	}
	return kernels.MakePODAssignment(b, off, t.size, min(t.align, src.align), a.req)
}

type bytesCompareState struct {
	ckernel.Prefix
	Size int64
	Op   int64
}

func (t *FixedBytes) makeComparison(b *ckernel.Builder, off int, c *compareArgs) (int, error) {
	if !Equal(c.a, c.b) {
		return off, errNoPath
	}
	return makeBytesComparison(b, off, t.size, c.op)
}

func makeBytesComparison(b *ckernel.Builder, off, size int, op kernels.Comparison) (int, error) {
	k, end := ckernel.Place[bytesCompareState](b, off)
	st := ckernel.State[bytesCompareState](k)
	st.Size, st.Op = int64(size), int64(op)
	k.SetFunction(ckernel.PredicateFunc(compareBytes))
	return end, nil
}

func compareBytes(src []unsafe.Pointer, self ckernel.Kernel) int {
	st := ckernel.State[bytesCompareState](self)
	n := int(st.Size)
	r := bytes.Compare(unsafe.Slice((*byte)(src[0]), n), unsafe.Slice((*byte)(src[1]), n))
	return boolInt(orderHolds(kernels.Comparison(st.Op), r))
}

// orderHolds reports whether op accepts a three-way result r.
func orderHolds(op kernels.Comparison, r int) bool {
	switch op {
	case kernels.SortingLess, kernels.Less:
		return r < 0
	case kernels.LessEqual:
		return r <= 0
	case kernels.Equal:
		return r == 0
	case kernels.NotEqual:
		return r != 0
	case kernels.GreaterEqual:
		return r >= 0
	case kernels.Greater:
		return r > 0
	}
	return false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
