package ndt

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/core"
	"github.com/sbl8/ndkernel/kernels"
)

// FixedDim is a dimension of a fixed number of elements. Its arrmeta is
// the element stride followed by the element's own arrmeta.
type FixedDim struct {
	typ
	size int
	elem Type
}

const fixedDimMetaSize = 8

// NewFixedDim returns size * elem.
func NewFixedDim(size int, elem Type) (*FixedDim, error) {
	if size < 0 {
		return nil, typeErrorf("fixed dimension", "size %d is negative", size)
	}
	if elem == nil {
		return nil, typeErrorf("fixed dimension", "no element type")
	}
	return &FixedDim{size: size, elem: elem}, nil
}

func (t *FixedDim) ID() TypeID         { return FixedDimID }
func (t *FixedDim) Kind() Kind         { return DimKind }
func (t *FixedDim) DataSize() int      { return t.size * t.elem.DataSize() }
func (t *FixedDim) DataAlignment() int { return t.elem.DataAlignment() }
func (t *FixedDim) ArrmetaSize() int   { return fixedDimMetaSize + t.elem.ArrmetaSize() }
func (t *FixedDim) Size() int          { return t.size }
func (t *FixedDim) Elem() Type         { return t.elem }
func (t *FixedDim) String() string     { return fmt.Sprintf("%d * %s", t.size, t.elem) }

func (t *FixedDim) Flags() Flags {
	return t.elem.Flags() &^ FlagScalar
}

// Stride returns the element stride recorded in m; nil arrmeta means the
// contiguous layout.
func (t *FixedDim) Stride(m Arrmeta) int {
	if m == nil {
		return t.elem.DataSize()
	}
	return int(m.int64At(0))
}

func (t *FixedDim) elemMeta(m Arrmeta) Arrmeta {
	return m.sub(fixedDimMetaSize, t.elem.ArrmetaSize())
}

func (t *FixedDim) defaultArrmeta(m Arrmeta) {
	m.putInt64At(0, int64(t.elem.DataSize()))
	if em := t.elemMeta(m); em != nil {
		ArrmetaDefaultConstruct(t.elem, em)
	}
}

func (t *FixedDim) printData(m Arrmeta, data unsafe.Pointer) string {
	parts := make([]string, t.size)
	stride := t.Stride(m)
	for i := range parts {
		parts[i] = PrintData(t.elem, t.elemMeta(m), unsafe.Add(data, i*stride))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

type dimAssignState struct {
	ckernel.Prefix
	Count     int64
	DstStride int64
	SrcStride int64
	Child     int64
}

// makeAssignment copies element-wise between equal-sized dimensions and
// broadcasts a size-1 dimension or a scalar source.
func (t *FixedDim) makeAssignment(b *ckernel.Builder, off int, a *assignArgs) (int, error) {
	dst, ok := a.dst.(*FixedDim)
	if !ok {
		return off, errNoPath
	}
	srcElem, srcMeta, srcStride := a.src, a.srcMeta, 0
	if src, ok := a.src.(*FixedDim); ok {
		if src.size != dst.size && src.size != 1 {
			return off, &AssignError{Dst: a.dst, Src: a.src,
				Reason: fmt.Sprintf("cannot broadcast dimension of size %d into size %d", src.size, dst.size)}
		}
		srcElem, srcMeta = src.elem, src.elemMeta(a.srcMeta)
		if src.size != 1 {
			srcStride = src.Stride(a.srcMeta)
		}
	}
	k, end := ckernel.Place[dimAssignState](b, off)
	st := ckernel.State[dimAssignState](k)
	st.Count, st.DstStride, st.SrcStride = int64(dst.size), int64(dst.Stride(a.dstMeta)), int64(srcStride)
	st.Child = int64(end - k.Offset())
	k.SetDestructor(func(self ckernel.Kernel) {
		self.DestroyChild(int(ckernel.State[dimAssignState](self).Child))
	})
	if err := k.SetExprFunction(a.req, dimAssign, nil); err != nil {
		return off, err
	}
	return makeAssignment(b, end, a.with(dst.elem, dst.elemMeta(a.dstMeta), srcElem, srcMeta, ckernel.RequestStrided))
}

func dimAssign(dst unsafe.Pointer, src []unsafe.Pointer, self ckernel.Kernel) error {
	st := *ckernel.State[dimAssignState](self)
	if st.Count == 0 {
		return nil
	}
	return self.Child(int(st.Child)).CallStrided(dst, int(st.DstStride), src[:1], []int{int(st.SrcStride)}, int(st.Count))
}

type dimCompareState struct {
	ckernel.Prefix
	Count   int64
	AStride int64
	BStride int64
	Negate  int64
	Child   int64
}

// makeComparison supports equality of equal-sized dimensions.
func (t *FixedDim) makeComparison(b *ckernel.Builder, off int, c *compareArgs) (int, error) {
	da, aok := c.a.(*FixedDim)
	db, bok := c.b.(*FixedDim)
	if !aok || !bok || da.size != db.size || (c.op != kernels.Equal && c.op != kernels.NotEqual) {
		return off, errNoPath
	}
	k, end := ckernel.Place[dimCompareState](b, off)
	st := ckernel.State[dimCompareState](k)
	st.Count, st.AStride, st.BStride = int64(da.size), int64(da.Stride(c.aMeta)), int64(db.Stride(c.bMeta))
	st.Negate = int64(boolInt(c.op == kernels.NotEqual))
	end = core.AlignOffset(end)
	st.Child = int64(end - k.Offset())
	k.SetDestructor(func(self ckernel.Kernel) {
		self.DestroyChild(int(ckernel.State[dimCompareState](self).Child))
	})
	k.SetFunction(ckernel.PredicateFunc(dimCompare))
	return makeComparison(b, end, &compareArgs{
		a: da.elem, b: db.elem, aMeta: da.elemMeta(c.aMeta), bMeta: db.elemMeta(c.bMeta),
		op: kernels.Equal, ectx: c.ectx,
	})
}

func dimCompare(src []unsafe.Pointer, self ckernel.Kernel) int {
	st := *ckernel.State[dimCompareState](self)
	child := self.Child(int(st.Child))
	pred := child.Predicate()
	args := []unsafe.Pointer{src[0], src[1]}
	for i := int64(0); i < st.Count; i++ {
		if i > 0 {
			args[0] = unsafe.Add(args[0], st.AStride)
			args[1] = unsafe.Add(args[1], st.BStride)
		}
		if pred(args, child) == 0 {
			return int(st.Negate)
		}
	}
	return 1 - int(st.Negate)
}
