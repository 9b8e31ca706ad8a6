package ndt

import (
	"encoding/binary"
	"unsafe"

	"github.com/sbl8/ndkernel/core"
)

// Arrmeta is the per-instance layout metadata of a type. Its layout is
// defined entirely by the owning type; callers allocate ArrmetaSize bytes.
type Arrmeta []byte

type arrmetaOwner interface {
	defaultArrmeta(m Arrmeta)
}

// NewArrmeta allocates and default-constructs arrmeta for t, or returns nil
// when t needs none.
func NewArrmeta(t Type) Arrmeta {
	if t.ArrmetaSize() == 0 {
		return nil
	}
	m := make(Arrmeta, t.ArrmetaSize())
	ArrmetaDefaultConstruct(t, m)
	return m
}

// ArrmetaDefaultConstruct fills m with the contiguous layout of t.
func ArrmetaDefaultConstruct(t Type, m Arrmeta) {
	if o, ok := t.(arrmetaOwner); ok {
		o.defaultArrmeta(m)
	}
}

// ArrmetaCopyConstruct copies src into dst. No type here embeds references,
// so a byte copy is a full copy.
func ArrmetaCopyConstruct(t Type, dst, src Arrmeta) {
	copy(dst[:t.ArrmetaSize()], src)
}

// ArrmetaDestruct releases m.
func ArrmetaDestruct(t Type, m Arrmeta) {
	clear(m[:t.ArrmetaSize()])
}

func (m Arrmeta) int64At(off int) int64 {
	return int64(binary.NativeEndian.Uint64(m[off:]))
}

func (m Arrmeta) putInt64At(off int, v int64) {
	binary.NativeEndian.PutUint64(m[off:], uint64(v))
}

// sub returns the n bytes at off, or nil when m is nil.
func (m Arrmeta) sub(off, n int) Arrmeta {
	if m == nil || n == 0 {
		return nil
	}
	return m[off : off+n]
}

// Array is a one-dimensional strided run of elements of one type.
type Array struct {
	Type   Type
	Meta   Arrmeta
	Data   []byte
	Len    int
	Stride int
}

// NewArray allocates a zeroed contiguous array of n elements of t.
func NewArray(t Type, n int) *Array {
	size := t.DataSize()
	return &Array{
		Type:   t,
		Meta:   NewArrmeta(t),
		Data:   core.AlignedBytes(size * n),
		Len:    n,
		Stride: size,
	}
}

// Ptr returns the address of element i.
func (a *Array) Ptr(i int) unsafe.Pointer {
	return unsafe.Pointer(&a.Data[i*a.Stride])
}

// Elem returns the bytes of element i.
func (a *Array) Elem(i int) []byte {
	off := i * a.Stride
	return a.Data[off : off+a.Type.DataSize()]
}

// alignTo rounds off up to align, and never below the kernel alignment.
func alignTo(off, align int) int {
	return core.AlignSize(off, max(align, core.KernelAlign))
}
