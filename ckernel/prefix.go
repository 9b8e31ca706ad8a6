// Package ckernel implements the kernel object ABI and the arena that holds kernels.
//
// A ckernel is a region of a Builder arena that begins with a Prefix (a
// function reference and a destructor reference) followed by the kernel's
// own pointer-free state. Child kernels live in the same arena and are
// addressed by byte offset from their parent, so a kernel tree survives the
// arena being reallocated while it grows.
//
// Kernels are invoked through one of three fixed call shapes:
//   - SingleFunc: one destination element from N source elements
//   - StridedFunc: count elements with per-operand strides
//   - PredicateFunc: a boolean (as int) from N source elements
//
// Go values a kernel owns (types, heap buffers) are held in the builder's
// side table and referenced from kernel state through Ref handles.
package ckernel

import (
	"fmt"
	"unsafe"

	"github.com/sbl8/ndkernel/core"
)

// Request selects the call shape a factory builds, plus the memory space.
type Request uint32

const (
	// RequestHost places the kernel in host memory.
	RequestHost Request = 0x00000000
	// RequestCUDADevice is accepted and ignored: there is no device path.
	RequestCUDADevice Request = 0x00000001
	// RequestCUDAHostDevice collapses to host memory without CUDA support.
	RequestCUDAHostDevice = RequestHost

	RequestSingle    Request = 0x00000008
	RequestStrided   Request = 0x00000010
	RequestPredicate Request = 0x00000020

	RequestMemory Request = 0x00000007
)

// Memory returns the memory-space bits of r.
func (r Request) Memory() Request { return r & RequestMemory }

// Function returns r without its memory-space bits.
func (r Request) Function() Request { return r &^ RequestMemory }

func (r Request) String() string {
	switch r.Function() {
	case RequestSingle:
		return "single"
	case RequestStrided:
		return "strided"
	case RequestPredicate:
		return "predicate"
	}
	return fmt.Sprintf("Request(%#x)", uint32(r))
}

// SingleFunc computes one destination element.
type SingleFunc func(dst unsafe.Pointer, src []unsafe.Pointer, self Kernel) error

// StridedFunc computes count destination elements.
type StridedFunc func(dst unsafe.Pointer, dstStride int, src []unsafe.Pointer, srcStride []int, count int, self Kernel) error

// PredicateFunc evaluates a boolean over the source elements; nonzero means true.
type PredicateFunc func(src []unsafe.Pointer, self Kernel) int

// DestructorFunc releases what a kernel owns, including its children.
type DestructorFunc func(self Kernel)

// FuncRef indexes the builder's function table. Zero means unset.
type FuncRef uint32

// Prefix begins every kernel's state.
type Prefix struct {
	Function   FuncRef
	Destructor FuncRef
}

// PrefixSize is the byte size of Prefix.
const PrefixSize = int(unsafe.Sizeof(Prefix{}))

// Kernel is a handle to a kernel placed in a Builder: the arena plus a byte offset.
// Handles stay valid across arena growth; pointers obtained from State do not.
type Kernel struct {
	b   *Builder
	off int
}

// Builder returns the arena holding k.
func (k Kernel) Builder() *Builder { return k.b }

// Offset returns k's byte offset in its arena.
func (k Kernel) Offset() int { return k.off }

// Valid reports whether k refers to an allocated prefix.
func (k Kernel) Valid() bool {
	return k.b != nil && k.off+PrefixSize <= k.b.used
}

// Prefix returns a pointer to k's prefix, valid until the next allocation.
func (k Kernel) Prefix() *Prefix {
	return (*Prefix)(k.b.ptr(k.off))
}

// Function returns the registered function of k, or nil.
func (k Kernel) Function() any {
	return k.b.fn(k.Prefix().Function)
}

// SetFunction registers fn as k's function. The caller is responsible for
// fn matching the call shape that will later be requested.
func (k Kernel) SetFunction(fn any) {
	k.Prefix().Function = k.b.registerFunc(k.off, k.Prefix().Function, fn)
}

// SetDestructor registers fn as k's destructor.
func (k Kernel) SetDestructor(fn DestructorFunc) {
	if fn == nil {
		k.Prefix().Destructor = 0
		return
	}
	k.Prefix().Destructor = k.b.registerFunc(k.off, k.Prefix().Destructor, fn)
}

// SetExprFunction installs single or strided according to req. A nil
// strided is derived from single.
func (k Kernel) SetExprFunction(req Request, single SingleFunc, strided StridedFunc) error {
	switch req.Function() {
	case RequestSingle:
		k.SetFunction(single)
	case RequestStrided:
		if strided == nil {
			strided = StridedFromSingle(single)
		}
		k.SetFunction(strided)
	default:
		return fmt.Errorf("unrecognized kernel request %s", req)
	}
	return nil
}

// Single returns k's function as a SingleFunc.
func (k Kernel) Single() SingleFunc { return k.Function().(SingleFunc) }

// Strided returns k's function as a StridedFunc.
func (k Kernel) Strided() StridedFunc { return k.Function().(StridedFunc) }

// Predicate returns k's function as a PredicateFunc.
func (k Kernel) Predicate() PredicateFunc { return k.Function().(PredicateFunc) }

// CallSingle invokes k as a single kernel.
func (k Kernel) CallSingle(dst unsafe.Pointer, src ...unsafe.Pointer) error {
	return k.Single()(dst, src, k)
}

// CallStrided invokes k as a strided kernel.
func (k Kernel) CallStrided(dst unsafe.Pointer, dstStride int, src []unsafe.Pointer, srcStride []int, count int) error {
	return k.Strided()(dst, dstStride, src, srcStride, count, k)
}

// CallPredicate invokes k as a predicate and converts the result to bool.
func (k Kernel) CallPredicate(src ...unsafe.Pointer) bool {
	return k.Predicate()(src, k) != 0
}

// Destroy runs k's destructor if one is set. The destructor is cleared
// before it runs, so a second Destroy is a no-op.
func (k Kernel) Destroy() {
	if !k.Valid() {
		return
	}
	p := k.Prefix()
	if p.Destructor == 0 {
		return
	}
	d := k.b.fn(p.Destructor).(DestructorFunc)
	p.Destructor = 0
	d(k)
}

// Child returns the kernel at the given offset from k.
func (k Kernel) Child(offset int) Kernel {
	return Kernel{b: k.b, off: k.off + core.AlignOffset(offset)}
}

// DestroyChild destroys the child at offset; offset 0 means no child.
func (k Kernel) DestroyChild(offset int) {
	if offset != 0 {
		k.Child(offset).Destroy()
	}
}

// State returns a typed pointer to k's state. T must start with a Prefix.
// The pointer is invalidated by any allocation on the builder.
func State[T any](k Kernel) *T {
	return (*T)(k.b.ptr(k.off))
}

// StridedFromSingle loops single over count elements.
func StridedFromSingle(single SingleFunc) StridedFunc {
	return func(dst unsafe.Pointer, dstStride int, src []unsafe.Pointer, srcStride []int, count int, self Kernel) error {
		var local [4]unsafe.Pointer
		var s []unsafe.Pointer
		if len(src) <= len(local) {
			s = local[:len(src)]
		} else {
			s = make([]unsafe.Pointer, len(src))
		}
		copy(s, src)
		for i := 0; i < count; i++ {
			if i > 0 {
				// Advance lazily so no pointer ever steps past the last element.
				dst = unsafe.Add(dst, dstStride)
				for j := range s {
					s[j] = unsafe.Add(s[j], srcStride[j])
				}
			}
			if err := single(dst, s, self); err != nil {
				return err
			}
		}
		return nil
	}
}
