package ckernel

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"github.com/sbl8/ndkernel/core"
)

// DefaultCapacity is the initial arena size of a Builder.
const DefaultCapacity = 256

// Ref is a handle to a Go value retained by a builder. Zero means none.
type Ref uint32

// Builder is a growable arena of kernels.
//
// Kernel state is placed at caller-chosen, 8-byte aligned offsets. Growing
// the arena copies it to a new allocation, so offsets remain stable while
// addresses do not: construction code must re-fetch state through its
// Kernel handle after any call that may allocate.
//
// A Builder is not safe for concurrent use.
type Builder struct {
	buf   []byte
	used  int
	funcs []any
	owner []int // offset of the kernel that registered each func
	free  []FuncRef
	refs  []any
	live  int
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{buf: core.AlignedBytes(DefaultCapacity)}
}

// Root returns the kernel at offset 0.
func (b *Builder) Root() Kernel { return Kernel{b: b, off: 0} }

// At returns the kernel at the given absolute offset.
func (b *Builder) At(off int) Kernel { return Kernel{b: b, off: core.AlignOffset(off)} }

// Size returns the number of arena bytes in use.
func (b *Builder) Size() int { return b.used }

// Capacity returns the arena size.
func (b *Builder) Capacity() int { return len(b.buf) }

func (b *Builder) ptr(off int) unsafe.Pointer {
	return unsafe.Pointer(&b.buf[off])
}

// Reserve makes [AlignOffset(off), AlignOffset(off)+size) addressable and
// zeroed, growing the arena if needed. It returns the aligned offset.
func (b *Builder) Reserve(off, size int) int {
	off = core.AlignOffset(off)
	end := off + size
	if end > len(b.buf) {
		b.grow(end)
	}
	clear(b.buf[off:end])
	if end > b.used {
		b.used = end
	}
	return off
}

func (b *Builder) grow(need int) {
	n := 2 * len(b.buf)
	if n < DefaultCapacity {
		n = DefaultCapacity
	}
	for n < need {
		n *= 2
	}
	nb := core.AlignedBytes(core.AlignCacheLine(n))
	copy(nb, b.buf[:b.used])
	b.buf = nb
}

// Bytes returns a view of n arena bytes at off, valid until the next allocation.
func (b *Builder) Bytes(off, n int) []byte {
	return b.buf[off : off+n : off+n]
}

// Alloc reserves space for a T at off and returns a pointer to it. T must
// begin with a Prefix and must not contain Go pointers: the arena is not
// scanned by the garbage collector and may be moved.
func Alloc[T any](b *Builder, off int) *T {
	var zero T
	checkStateType(reflect.TypeOf(zero))
	off = b.Reserve(off, int(unsafe.Sizeof(zero)))
	return (*T)(b.ptr(off))
}

// Emplace allocates a T at off and returns the kernel handle for it.
func Emplace[T any](b *Builder, off int) Kernel {
	Alloc[T](b, off)
	return b.At(off)
}

// Place allocates a T at off and returns its handle and the offset just
// past it, where a child kernel may be placed.
func Place[T any](b *Builder, off int) (Kernel, int) {
	k := Emplace[T](b, off)
	var zero T
	return k, k.off + int(unsafe.Sizeof(zero))
}

// Pointer returns the address of arena byte off, valid until the next allocation.
func (b *Builder) Pointer(off int) unsafe.Pointer {
	return b.ptr(off)
}

// registerFunc stores fn for the kernel at owner. A slot the kernel already
// holds is overwritten; otherwise a slot freed by Discard is reused.
func (b *Builder) registerFunc(owner int, old FuncRef, fn any) FuncRef {
	if old != 0 && int(old) <= len(b.funcs) && b.owner[old-1] == owner {
		b.funcs[old-1] = fn
		return old
	}
	if n := len(b.free); n > 0 {
		ref := b.free[n-1]
		b.free = b.free[:n-1]
		b.funcs[ref-1], b.owner[ref-1] = fn, owner
		return ref
	}
	b.funcs = append(b.funcs, fn)
	b.owner = append(b.owner, owner)
	return FuncRef(len(b.funcs))
}

// dropFuncs frees the slots registered by kernels at or past off.
func (b *Builder) dropFuncs(off int) {
	for i := range b.funcs {
		if b.owner[i] >= off {
			b.funcs[i], b.owner[i] = nil, -1
		}
	}
	n := len(b.funcs)
	for n > 0 && b.owner[n-1] < 0 {
		n--
	}
	b.funcs, b.owner = b.funcs[:n], b.owner[:n]
	b.free = b.free[:0]
	for i := range b.funcs {
		if b.owner[i] < 0 {
			b.free = append(b.free, FuncRef(i+1))
		}
	}
}

func (b *Builder) fn(ref FuncRef) any {
	if ref == 0 {
		return nil
	}
	return b.funcs[ref-1]
}

// Retain stores v in the builder's side table until Release.
func (b *Builder) Retain(v any) Ref {
	b.refs = append(b.refs, v)
	b.live++
	return Ref(len(b.refs))
}

// Deref returns the value held by r.
func (b *Builder) Deref(r Ref) any {
	if r == 0 {
		return nil
	}
	return b.refs[r-1]
}

// Release drops the value held by r. Releasing 0 or an already released
// handle is a no-op.
func (b *Builder) Release(r Ref) {
	if r == 0 || int(r) > len(b.refs) || b.refs[r-1] == nil {
		return
	}
	b.refs[r-1] = nil
	b.live--
}

// LiveRefs returns the number of retained values not yet released.
func (b *Builder) LiveRefs() int { return b.live }

// Discard destroys the kernel at off, if one was started there, and
// truncates the arena to off. Factories use it to unwind a failed build.
func (b *Builder) Discard(off int) {
	off = core.AlignOffset(off)
	if off >= b.used {
		return
	}
	if off+PrefixSize <= b.used {
		b.At(off).Destroy()
	}
	clear(b.buf[off:b.used])
	b.used = off
	b.dropFuncs(off)
}

// Reset destroys the root kernel and rewinds the arena for reuse,
// keeping its storage.
func (b *Builder) Reset() {
	if b.used >= PrefixSize {
		b.Root().Destroy()
	}
	clear(b.buf[:b.used])
	b.used = 0
	clear(b.funcs)
	b.funcs = b.funcs[:0]
	b.owner = b.owner[:0]
	b.free = b.free[:0]
	clear(b.refs)
	b.refs = b.refs[:0]
	b.live = 0
}

// Close tears the builder down and drops its storage.
func (b *Builder) Close() error {
	b.Reset()
	b.buf = nil
	b.funcs = nil
	b.owner = nil
	b.free = nil
	b.refs = nil
	return nil
}

var stateTypes sync.Map // reflect.Type -> error

func checkStateType(t reflect.Type) {
	v, ok := stateTypes.Load(t)
	if !ok {
		var err error
		if t.Kind() != reflect.Struct || t.NumField() == 0 || t.Field(0).Type != reflect.TypeOf(Prefix{}) {
			err = fmt.Errorf("ckernel: state type %s must begin with a Prefix", t)
		} else if hasPointers(t) {
			err = fmt.Errorf("ckernel: state type %s contains Go pointers", t)
		} else if t.Align() > core.KernelAlign {
			err = fmt.Errorf("ckernel: state type %s needs alignment %d", t, t.Align())
		}
		v, _ = stateTypes.LoadOrStore(t, err)
	}
	if err, _ := v.(error); err != nil {
		panic(err)
	}
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	}
	return true
}
