package core

import "unsafe"

const (
	// CacheLineSize is a common cache line size, typically 64 bytes.
	// Kernel arenas are allocated on this boundary.
	CacheLineSize = 64

	// KernelAlign is the alignment of every ckernel offset within a builder.
	KernelAlign = 8

	// MaxScalarAlign is the largest alignment a scalar type may request.
	MaxScalarAlign = 16
)

// IsAligned checks if a pointer (represented as a uintptr) is aligned to a cache line boundary.
func IsAligned(addr uintptr) bool {
	return addr%CacheLineSize == 0
}

// IsPow2 reports whether n is a positive power of two.
func IsPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// AlignOffset rounds a kernel offset up to the next KernelAlign boundary.
func AlignOffset(offset int) int {
	return (offset + KernelAlign - 1) &^ (KernelAlign - 1)
}

// AlignedBytes allocates a byte slice with its underlying array aligned to CacheLineSize.
// The slice may be resliced up to its capacity without losing alignment.
func AlignedBytes(size int) []byte {
	if size == 0 {
		return nil
	}
	// At most CacheLineSize-1 bytes are needed to reach the boundary.
	buf := make([]byte, size+CacheLineSize-1)

	ptr := uintptr(unsafe.Pointer(&buf[0]))
	offset := uintptr(0)
	if mod := ptr % CacheLineSize; mod != 0 {
		offset = CacheLineSize - mod
	}

	return buf[offset : offset+uintptr(size) : offset+uintptr(size)]
}
