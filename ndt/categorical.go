package ndt

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/core"
	"github.com/sbl8/ndkernel/kernels"
)

// Categorical stores one of a fixed set of category values as a dense
// unsigned code. A value's code is its position in the categories the
// type was built from; the categories themselves are kept sorted so that
// lookup is a binary search.
type Categorical struct {
	typ
	elem Type
	// sorted holds the categories in sorting-less order, elemSize apart.
	sorted        []byte
	elemSize      int
	valueToSorted []uint32
	sortedToValue []uint32
	storage       *Builtin

	lookupOnce sync.Once
	lookup     *sortingLess
	lookupErr  error
}

// NewCategorical builds a categorical from the elements of cats, which
// must be unique under sorting-less comparison.
func NewCategorical(cats *Array) (*Categorical, error) {
	return newCategorical(cats, false)
}

// Factor builds a categorical from the distinct values of cats, in sorted
// order. Repeated values are dropped rather than rejected.
func Factor(cats *Array) (*Categorical, error) {
	return newCategorical(cats, true)
}

// NewCategoricalPresorted builds a categorical from categories already
// sorted and unique. Nothing is checked.
func NewCategoricalPresorted(cats *Array) (*Categorical, error) {
	if err := checkCategoryType(cats.Type); err != nil {
		return nil, err
	}
	t := &Categorical{elem: cats.Type, elemSize: cats.Type.DataSize()}
	n := cats.Len
	t.sorted = core.AlignedBytes(n * t.elemSize)
	t.valueToSorted = make([]uint32, n)
	t.sortedToValue = make([]uint32, n)
	for i := 0; i < n; i++ {
		copy(t.sorted[i*t.elemSize:], cats.Elem(i))
		t.valueToSorted[i], t.sortedToValue[i] = uint32(i), uint32(i)
	}
	t.storage = categoricalStorage(n)
	return t, nil
}

func checkCategoryType(elem Type) error {
	switch {
	case elem == nil:
		return typeErrorf("categorical", "no category type")
	case elem.Flags()&FlagScalar == 0 || elem.ArrmetaSize() != 0:
		return typeErrorf("categorical", "category type %s must be a scalar without arrmeta", elem)
	case IsExpression(elem) || sym(elem) || elem.DataSize() == 0:
		return typeErrorf("categorical", "category type %s cannot hold category values", elem)
	case elem.ID() == CategoricalID:
		return typeErrorf("categorical", "category type %s is itself categorical", elem)
	}
	return nil
}

// categoricalStorage picks the narrowest code type for n categories.
func categoricalStorage(n int) *Builtin {
	switch {
	case n <= 1<<8:
		return Uint8Type
	case n <= 1<<16:
		return Uint16Type
	}
	return Uint32Type
}

// sortingLess is a sorting-less predicate over two values of one type,
// backed by its own builder.
// sortingLess wraps a built sorting-less predicate. Calls only read the
// kernel, so one instance may be shared between goroutines.
type sortingLess struct {
	b *ckernel.Builder
	k ckernel.Kernel
}

func newSortingLess(t Type) (*sortingLess, error) {
	b := ckernel.NewBuilder()
	if _, err := MakeComparisonKernel(b, 0, t, nil, t, nil, kernels.SortingLess, nil); err != nil {
		b.Close()
		return nil, err
	}
	return &sortingLess{b: b, k: b.Root()}, nil
}

func (l *sortingLess) less(x, y unsafe.Pointer) bool {
	args := [2]unsafe.Pointer{x, y}
	return l.k.Predicate()(args[:], l.k) != 0
}

func (l *sortingLess) close() { l.b.Close() }

func newCategorical(cats *Array, dedupe bool) (*Categorical, error) {
	if err := checkCategoryType(cats.Type); err != nil {
		return nil, err
	}
	if cats.Len == 0 {
		return nil, typeErrorf("categorical", "no categories")
	}
	less, err := newSortingLess(cats.Type)
	if err != nil {
		return nil, errors.Wrap(err, "categorical")
	}
	kept := false
	defer func() {
		if !kept {
			less.close()
		}
	}()

	n := cats.Len
	order := make([]uint32, n)
	for i := range order {
		order[i] = uint32(i)
	}
	cmp := func(i, j uint32) int {
		switch {
		case less.less(cats.Ptr(int(i)), cats.Ptr(int(j))):
			return -1
		case less.less(cats.Ptr(int(j)), cats.Ptr(int(i))):
			return 1
		}
		return 0
	}
	slices.SortStableFunc(order, cmp)

	unique := make([]uint32, 0, n)
	for k, i := range order {
		if k > 0 && cmp(order[k-1], i) == 0 {
			if dedupe {
				continue
			}
			return nil, &DuplicateCategoryError{Value: PrintData(cats.Type, cats.Meta, cats.Ptr(int(i)))}
		}
		unique = append(unique, i)
	}

	if dedupe {
		sorted := NewArray(cats.Type, len(unique))
		for k, i := range unique {
			copy(sorted.Elem(k), cats.Elem(int(i)))
		}
		return NewCategoricalPresorted(sorted)
	}

	t := &Categorical{elem: cats.Type, elemSize: cats.Type.DataSize()}
	t.sorted = core.AlignedBytes(n * t.elemSize)
	t.sortedToValue = order
	t.valueToSorted = make([]uint32, n)
	for k, code := range order {
		copy(t.sorted[k*t.elemSize:], cats.Elem(int(code)))
		t.valueToSorted[code] = uint32(k)
	}
	t.storage = categoricalStorage(n)
	t.lookupOnce.Do(func() { t.lookup = less })
	kept = true
	return t, nil
}

func (t *Categorical) ID() TypeID         { return CategoricalID }
func (t *Categorical) Kind() Kind         { return CustomKind }
func (t *Categorical) DataSize() int      { return t.storage.DataSize() }
func (t *Categorical) DataAlignment() int { return t.storage.DataAlignment() }
func (t *Categorical) Flags() Flags       { return FlagScalar | FlagZeroInit }

// CategoryType returns the type of the category values.
func (t *Categorical) CategoryType() Type { return t.elem }

// StorageType returns the unsigned integer type holding codes.
func (t *Categorical) StorageType() *Builtin { return t.storage }

// CategoryCount returns the number of categories.
func (t *Categorical) CategoryCount() int { return len(t.valueToSorted) }

// CategoryData returns the address of the category value with the given
// code. The data must not be modified.
func (t *Categorical) CategoryData(code uint32) unsafe.Pointer {
	return unsafe.Pointer(&t.sorted[int(t.valueToSorted[code])*t.elemSize])
}

// Categories returns a copy of the categories in code order.
func (t *Categorical) Categories() *Array {
	out := NewArray(t.elem, t.CategoryCount())
	for code := range t.valueToSorted {
		copy(out.Elem(code), unsafe.Slice((*byte)(t.CategoryData(uint32(code))), t.elemSize))
	}
	return out
}

// find binary searches the sorted categories for the value at x.
func (t *Categorical) find(x unsafe.Pointer, less func(a, b unsafe.Pointer) bool) (uint32, bool) {
	i, ok := slices.BinarySearchFunc(t.sortedToValue, x, func(code uint32, x unsafe.Pointer) int {
		c := t.CategoryData(code)
		switch {
		case less(c, x):
			return -1
		case less(x, c):
			return 1
		}
		return 0
	})
	if !ok {
		return 0, false
	}
	return t.sortedToValue[i], true
}

// ValueFromCategory returns the code of the category value at data, which
// must be of the category type.
func (t *Categorical) ValueFromCategory(meta Arrmeta, data unsafe.Pointer) (uint32, error) {
	less, err := t.categoryOrder()
	if err != nil {
		return 0, err
	}
	code, ok := t.find(data, less.less)
	if !ok {
		return 0, &UnrecognizedCategoryError{Value: PrintData(t.elem, meta, data)}
	}
	return code, nil
}

// categoryOrder returns the category ordering, built on first use and kept
// for the lifetime of the type.
func (t *Categorical) categoryOrder() (*sortingLess, error) {
	t.lookupOnce.Do(func() {
		t.lookup, t.lookupErr = newSortingLess(t.elem)
	})
	return t.lookup, t.lookupErr
}

// ValueFromCategoryOf converts the value at data of type src to the
// category type and returns its code.
func (t *Categorical) ValueFromCategoryOf(src Type, meta Arrmeta, data unsafe.Pointer) (uint32, error) {
	if Equal(src, t.elem) {
		return t.ValueFromCategory(meta, data)
	}
	b := ckernel.NewBuilder()
	defer b.Close()
	if _, err := MakeAssignmentKernel(b, 0, t.elem, nil, src, meta, ckernel.RequestSingle, nil); err != nil {
		return 0, err
	}
	tmp := NewArray(t.elem, 1)
	if err := b.Root().CallSingle(tmp.Ptr(0), data); err != nil {
		return 0, err
	}
	return t.ValueFromCategory(nil, tmp.Ptr(0))
}

func (t *Categorical) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "categorical[%s, [", t.elem)
	for code := range t.valueToSorted {
		if code > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(PrintData(t.elem, nil, t.CategoryData(uint32(code))))
	}
	sb.WriteString("]]")
	return sb.String()
}

func (t *Categorical) printData(_ Arrmeta, data unsafe.Pointer) string {
	code := readCode(t.storage.id, data)
	if int(code) >= t.CategoryCount() {
		return "NA"
	}
	return PrintData(t.elem, nil, t.CategoryData(code))
}

func equalCategoricals(a, b *Categorical) bool {
	if !Equal(a.elem, b.elem) || len(a.valueToSorted) != len(b.valueToSorted) {
		return false
	}
	for code := range a.valueToSorted {
		x := unsafe.Slice((*byte)(a.CategoryData(uint32(code))), a.elemSize)
		y := unsafe.Slice((*byte)(b.CategoryData(uint32(code))), b.elemSize)
		if string(x) != string(y) {
			return false
		}
	}
	return true
}

func readCode(id kernels.BuiltinID, p unsafe.Pointer) uint32 {
	switch id {
	case kernels.Uint8:
		return uint32(*(*uint8)(p))
	case kernels.Uint16:
		return uint32(*(*uint16)(p))
	}
	return *(*uint32)(p)
}

func writeCode(id kernels.BuiltinID, p unsafe.Pointer, code uint32) {
	switch id {
	case kernels.Uint8:
		*(*uint8)(p) = uint8(code)
	case kernels.Uint16:
		*(*uint16)(p) = uint16(code)
	default:
		*(*uint32)(p) = code
	}
}

// catKernelState is shared by the categorical kernels. Cat holds the
// categorical type; Child is the element kernel, if any.
type catKernelState struct {
	ckernel.Prefix
	Cat   ckernel.Ref
	Width uint32
	Op    int64
	Child int64
}

func placeCatKernel(b *ckernel.Builder, off int, t *Categorical) (ckernel.Kernel, int) {
	k, end := ckernel.Place[catKernelState](b, off)
	ref := b.Retain(t)
	st := ckernel.State[catKernelState](k)
	st.Cat, st.Width, st.Child = ref, uint32(t.storage.id), int64(end-k.Offset())
	k.SetDestructor(destroyCatKernel)
	return k, end
}

func destroyCatKernel(self ckernel.Kernel) {
	st := *ckernel.State[catKernelState](self)
	self.DestroyChild(int(st.Child))
	self.Builder().Release(st.Cat)
}

func catOf(self ckernel.Kernel) (*Categorical, catKernelState) {
	st := *ckernel.State[catKernelState](self)
	return self.Builder().Deref(st.Cat).(*Categorical), st
}

func (t *Categorical) makeAssignment(b *ckernel.Builder, off int, a *assignArgs) (int, error) {
	if a.dst == Type(t) {
		return t.makeAssignmentTo(b, off, a)
	}
	if ValueType(a.dst).ID() == CategoricalID {
		return off, errNoPath
	}
	// Categorical to anything else: look the category up, then assign it.
	k, end := placeCatKernel(b, off, t)
	if err := k.SetExprFunction(a.req, categoricalToOther, nil); err != nil {
		return off, err
	}
	return makeAssignment(b, end, a.with(a.dst, a.dstMeta, t.elem, nil, ckernel.RequestSingle))
}

func (t *Categorical) makeAssignmentTo(b *ckernel.Builder, off int, a *assignArgs) (int, error) {
	switch src := a.src.(type) {
	case *Categorical:
		if Equal(src, t) {
			return podCopy(b, off, t, t.DataAlignment(), a.req)
		}
		return off, &AssignError{Dst: a.dst, Src: a.src, Err: errors.Wrap(ErrUnsupported, "assignment between different categorical types")}
	}
	if !Equal(a.src, t.elem) {
		// Convert to the category type first; the expression path chains
		// the conversion with the lookup.
		cvt, err := NewConvert(t.elem, a.src, a.mode)
		if err != nil {
			return off, err
		}
		return makeAssignment(b, off, a.with(a.dst, a.dstMeta, cvt, a.srcMeta, a.req))
	}
	k, end := placeCatKernel(b, off, t)
	if err := k.SetExprFunction(a.req, categoryToCategorical, nil); err != nil {
		return off, err
	}
	return makeComparison(b, end, &compareArgs{a: t.elem, b: t.elem, op: kernels.SortingLess, ectx: a.ectx})
}

func categoryToCategorical(dst unsafe.Pointer, src []unsafe.Pointer, self ckernel.Kernel) error {
	t, st := catOf(self)
	child := self.Child(int(st.Child))
	pred := child.Predicate()
	var args [2]unsafe.Pointer
	code, ok := t.find(src[0], func(x, y unsafe.Pointer) bool {
		args[0], args[1] = x, y
		return pred(args[:], child) != 0
	})
	if !ok {
		return &UnrecognizedCategoryError{Value: PrintData(t.elem, nil, src[0])}
	}
	writeCode(kernels.BuiltinID(st.Width), dst, code)
	return nil
}

func categoricalToOther(dst unsafe.Pointer, src []unsafe.Pointer, self ckernel.Kernel) error {
	t, st := catOf(self)
	code := readCode(kernels.BuiltinID(st.Width), src[0])
	if int(code) >= t.CategoryCount() {
		return &kernels.ValueError{Kind: kernels.KindInvalid, Src: t.String(), Value: fmt.Sprint(code),
			Detail: fmt.Sprintf("categorical code %d is out of range for %d categories", code, t.CategoryCount())}
	}
	return self.Child(int(st.Child)).CallSingle(dst, t.CategoryData(code))
}

// makeComparison compares codes for equality and category order otherwise.
func (t *Categorical) makeComparison(b *ckernel.Builder, off int, c *compareArgs) (int, error) {
	if !Equal(c.a, c.b) {
		return off, errNoPath
	}
	if c.op == kernels.Equal || c.op == kernels.NotEqual {
		return kernels.MakeBuiltinComparison(b, off, t.storage.id, t.storage.id, c.op)
	}
	k, end := placeCatKernel(b, off, t)
	st := ckernel.State[catKernelState](k)
	st.Op, st.Child = int64(c.op), 0
	k.SetFunction(ckernel.PredicateFunc(compareCategories))
	return end, nil
}

func compareCategories(src []unsafe.Pointer, self ckernel.Kernel) int {
	t, st := catOf(self)
	n := uint32(t.CategoryCount())
	ca, cb := readCode(kernels.BuiltinID(st.Width), src[0]), readCode(kernels.BuiltinID(st.Width), src[1])
	if ca >= n || cb >= n {
		return 0
	}
	r := int(t.valueToSorted[ca]) - int(t.valueToSorted[cb])
	return boolInt(orderHolds(kernels.Comparison(st.Op), r))
}

// NewCategoricalFromValues is a convenience for building a categorical of
// builtin values.
func NewCategoricalFromValues[T any](elem *Builtin, values ...T) (*Categorical, error) {
	var zero T
	if int(unsafe.Sizeof(zero)) != elem.DataSize() {
		return nil, typeErrorf("categorical", "%T values do not match %s", zero, elem)
	}
	arr := NewArray(elem, len(values))
	for i, v := range values {
		*(*T)(arr.Ptr(i)) = v
	}
	return NewCategorical(arr)
}
