package ndt

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/core"
	"github.com/sbl8/ndkernel/kernels"
)

// Field is one named member of a struct type.
type Field struct {
	Name string
	Type Type
}

// Struct is a C-layout record of named fields.
type Struct struct {
	typ
	fields      []Field
	offsets     []int
	metaOffsets []int
	size, align int
	metaSize    int
	flags       Flags
}

// NewStruct lays fields out in order. Field names must be unique and
// non-empty.
func NewStruct(fields ...Field) (*Struct, error) {
	seen := make(map[string]struct{}, len(fields))
	layout := make([]core.Field, len(fields))
	t := &Struct{fields: append([]Field(nil), fields...), flags: FlagScalar | FlagZeroInit}
	t.metaOffsets = make([]int, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, typeErrorf("struct", "field %d has no name", i)
		}
		if f.Type == nil {
			return nil, typeErrorf("struct", "field %q has no type", f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, typeErrorf("struct", "duplicate field name %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		layout[i] = core.Field{Size: f.Type.DataSize(), Align: f.Type.DataAlignment()}
		t.metaOffsets[i] = t.metaSize
		t.metaSize += f.Type.ArrmetaSize()
		t.flags &= f.Type.Flags() | FlagSymbolic
		t.flags |= f.Type.Flags() & FlagSymbolic
	}
	l := core.ComputeLayout(layout)
	t.offsets, t.size, t.align = l.Offsets, l.Size, l.Align
	if t.flags&FlagSymbolic != 0 {
		t.size = 0
	}
	return t, nil
}

// MustStruct is NewStruct for fields known to be valid.
func MustStruct(fields ...Field) *Struct {
	t, err := NewStruct(fields...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Struct) ID() TypeID         { return StructID }
func (t *Struct) Kind() Kind         { return StructKind }
func (t *Struct) DataSize() int      { return t.size }
func (t *Struct) DataAlignment() int { return t.align }
func (t *Struct) Flags() Flags       { return t.flags }
func (t *Struct) ArrmetaSize() int   { return t.metaSize }

// NumFields returns the number of fields.
func (t *Struct) NumFields() int { return len(t.fields) }

// Field returns field i.
func (t *Struct) Field(i int) Field { return t.fields[i] }

// FieldOffset returns the byte offset of field i.
func (t *Struct) FieldOffset(i int) int { return t.offsets[i] }

// FieldIndex returns the index of the named field, or -1.
func (t *Struct) FieldIndex(name string) int {
	for i, f := range t.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (t *Struct) fieldMeta(m Arrmeta, i int) Arrmeta {
	return m.sub(t.metaOffsets[i], t.fields[i].Type.ArrmetaSize())
}

func (t *Struct) defaultArrmeta(m Arrmeta) {
	for i, f := range t.fields {
		if fm := t.fieldMeta(m, i); fm != nil {
			ArrmetaDefaultConstruct(f.Type, fm)
		}
	}
}

func (t *Struct) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, f := range t.fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", f.Name, f.Type)
	}
	sb.WriteByte('}')
	return sb.String()
}

func (t *Struct) printData(m Arrmeta, data unsafe.Pointer) string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, f := range t.fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", f.Name, PrintData(f.Type, t.fieldMeta(m, i), unsafe.Add(data, t.offsets[i])))
	}
	sb.WriteByte('}')
	return sb.String()
}

// fieldPairing maps each dst field to a src field: by name when both have
// the same field names, otherwise by position.
func fieldPairing(dst, src *Struct) ([]int, error) {
	if len(dst.fields) != len(src.fields) {
		return nil, fmt.Errorf("cannot assign struct with %d fields to struct with %d fields", len(src.fields), len(dst.fields))
	}
	pair := make([]int, len(dst.fields))
	for i, f := range dst.fields {
		j := src.FieldIndex(f.Name)
		if j < 0 {
			for k := range pair {
				pair[k] = k
			}
			return pair, nil
		}
		pair[i] = j
	}
	return pair, nil
}

type structAssignState struct {
	ckernel.Prefix
	N int64
}

type structSlot struct {
	DstOff int64
	SrcOff int64
	Child  int64
}

var (
	structAssignSize = int(unsafe.Sizeof(structAssignState{}))
	structSlotSize   = int(unsafe.Sizeof(structSlot{}))
)

func structSlots(k ckernel.Kernel, size, n int) []structSlot {
	return unsafe.Slice((*structSlot)(k.Builder().Pointer(k.Offset()+size)), n)
}

func (t *Struct) makeAssignment(b *ckernel.Builder, off int, a *assignArgs) (int, error) {
	dst, dok := a.dst.(*Struct)
	src, sok := a.src.(*Struct)
	if !dok || !sok {
		return off, errNoPath
	}
	if Equal(dst, src) && dst.metaSize == 0 {
		return podCopy(b, off, dst, dst.align, a.req)
	}
	pair, err := fieldPairing(dst, src)
	if err != nil {
		return off, &AssignError{Dst: a.dst, Src: a.src, Reason: err.Error()}
	}
	n := len(pair)
	k, end := ckernel.Place[structAssignState](b, off)
	ckernel.State[structAssignState](k).N = int64(n)
	k.SetDestructor(func(self ckernel.Kernel) {
		for _, s := range structSlots(self, structAssignSize, int(ckernel.State[structAssignState](self).N)) {
			self.DestroyChild(int(s.Child))
		}
	})
	if err := k.SetExprFunction(a.req, structAssign, nil); err != nil {
		return off, err
	}
	b.Reserve(end, n*structSlotSize)
	end = core.AlignOffset(end + n*structSlotSize)
	for i, j := range pair {
		slots := structSlots(k, structAssignSize, n)
		slots[i] = structSlot{DstOff: int64(dst.offsets[i]), SrcOff: int64(src.offsets[j]), Child: int64(end - k.Offset())}
		next, err := makeAssignment(b, end, a.with(
			dst.fields[i].Type, dst.fieldMeta(a.dstMeta, i),
			src.fields[j].Type, src.fieldMeta(a.srcMeta, j),
			ckernel.RequestSingle))
		if err != nil {
			return off, err
		}
		end = core.AlignOffset(next)
	}
	return end, nil
}

func structAssign(dst unsafe.Pointer, src []unsafe.Pointer, self ckernel.Kernel) error {
	n := int(ckernel.State[structAssignState](self).N)
	for _, s := range structSlots(self, structAssignSize, n) {
		if err := self.Child(int(s.Child)).CallSingle(unsafe.Add(dst, s.DstOff), unsafe.Add(src[0], s.SrcOff)); err != nil {
			return err
		}
	}
	return nil
}

// structCompareState compares fieldwise. Equality ANDs the Fwd children;
// ordering walks fields and decides on the first field where Fwd (a<b) or
// Rev (b<a) holds.
type structCompareState struct {
	ckernel.Prefix
	N      int64
	Order  int64
	Swap   int64
	Negate int64
	// OrEqual is the result when every field compares equal.
	OrEqual int64
}

type structCompareSlot struct {
	AOff, BOff int64
	Fwd, Rev   int64
}

var (
	structCompareSize     = int(unsafe.Sizeof(structCompareState{}))
	structCompareSlotSize = int(unsafe.Sizeof(structCompareSlot{}))
)

func compareSlots(k ckernel.Kernel, n int) []structCompareSlot {
	return unsafe.Slice((*structCompareSlot)(k.Builder().Pointer(k.Offset()+structCompareSize)), n)
}

func (t *Struct) makeComparison(b *ckernel.Builder, off int, c *compareArgs) (int, error) {
	sa, aok := c.a.(*Struct)
	sb, bok := c.b.(*Struct)
	if !aok || !bok || len(sa.fields) != len(sb.fields) {
		return off, errNoPath
	}
	n := len(sa.fields)
	st := structCompareState{N: int64(n)}
	child := c.op
	switch c.op {
	case kernels.Equal:
	case kernels.NotEqual:
		st.Negate, child = 1, kernels.Equal
	case kernels.SortingLess, kernels.Less:
		st.Order = 1
	case kernels.LessEqual:
		st.Order, st.OrEqual, child = 1, 1, kernels.Less
	case kernels.Greater:
		st.Order, st.Swap, child = 1, 1, kernels.Less
	case kernels.GreaterEqual:
		st.Order, st.Swap, st.OrEqual, child = 1, 1, 1, kernels.Less
	}

	k, end := ckernel.Place[structCompareState](b, off)
	*ckernel.State[structCompareState](k) = st
	k.SetDestructor(func(self ckernel.Kernel) {
		for _, s := range compareSlots(self, int(ckernel.State[structCompareState](self).N)) {
			self.DestroyChild(int(s.Fwd))
			self.DestroyChild(int(s.Rev))
		}
	})
	k.SetFunction(ckernel.PredicateFunc(structCompare))
	b.Reserve(end, n*structCompareSlotSize)
	end = core.AlignOffset(end + n*structCompareSlotSize)

	for i := 0; i < n; i++ {
		at, bt := sa.fields[i].Type, sb.fields[i].Type
		am, bm := sa.fieldMeta(c.aMeta, i), sb.fieldMeta(c.bMeta, i)
		compareSlots(k, n)[i].AOff, compareSlots(k, n)[i].BOff = int64(sa.offsets[i]), int64(sb.offsets[i])

		compareSlots(k, n)[i].Fwd = int64(end - k.Offset())
		next, err := makeComparison(b, end, &compareArgs{a: at, b: bt, aMeta: am, bMeta: bm, op: child, ectx: c.ectx})
		if err != nil {
			return off, err
		}
		end = core.AlignOffset(next)
		if st.Order == 0 {
			continue
		}
		compareSlots(k, n)[i].Rev = int64(end - k.Offset())
		next, err = makeComparison(b, end, &compareArgs{a: bt, b: at, aMeta: bm, bMeta: am, op: child, ectx: c.ectx})
		if err != nil {
			return off, err
		}
		end = core.AlignOffset(next)
	}
	return end, nil
}

func structCompare(src []unsafe.Pointer, self ckernel.Kernel) int {
	st := *ckernel.State[structCompareState](self)
	a, b := src[0], src[1]
	if st.Swap != 0 {
		a, b = b, a
	}
	for _, s := range compareSlots(self, int(st.N)) {
		pa, pb := unsafe.Add(a, s.AOff), unsafe.Add(b, s.BOff)
		if st.Swap != 0 {
			// Offsets belong to the unswapped operands.
			pa, pb = unsafe.Add(a, s.BOff), unsafe.Add(b, s.AOff)
		}
		fwd := self.Child(int(s.Fwd))
		if st.Order == 0 {
			if fwd.Predicate()([]unsafe.Pointer{pa, pb}, fwd) == 0 {
				return int(st.Negate)
			}
			continue
		}
		rev := self.Child(int(s.Rev))
		if st.Swap != 0 {
			// fwd compares (orig a, orig b) fields, so after the swap the
			// roles of fwd and rev exchange.
			fwd, rev = rev, fwd
		}
		if fwd.Predicate()([]unsafe.Pointer{pa, pb}, fwd) != 0 {
			return 1
		}
		if rev.Predicate()([]unsafe.Pointer{pb, pa}, rev) != 0 {
			return 0
		}
	}
	if st.Order == 0 {
		return 1 - int(st.Negate)
	}
	return int(st.OrEqual)
}
