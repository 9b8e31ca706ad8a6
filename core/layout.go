// Package core provides the memory layout primitives shared by the ndkernel packages.
//
// It holds the alignment arithmetic used to place ckernels inside a builder
// arena, cache-line aligned allocation for those arenas, and the C layout
// rules used to compute field offsets of struct types.
package core

// AlignSize rounds size up to the specified alignment boundary
func AlignSize(size, align int) int {
	return (size + align - 1) &^ (align - 1)
}

// AlignCacheLine rounds size up to cache line boundary
func AlignCacheLine(size int) int {
	return AlignSize(size, CacheLineSize)
}

// Field describes one member of a C-layout aggregate.
type Field struct {
	Size  int
	Align int
}

// Layout is the result of ComputeLayout.
type Layout struct {
	Offsets []int
	Size    int
	Align   int
}

// ComputeLayout places fields in declaration order using C rules: each field
// starts at the next multiple of its alignment and the total size is padded
// to the largest field alignment.
func ComputeLayout(fields []Field) Layout {
	offset := 0
	maxAlign := 1
	offsets := make([]int, len(fields))

	for i, f := range fields {
		align := f.Align
		if align < 1 {
			align = 1
		}
		offset = AlignSize(offset, align)
		offsets[i] = offset
		offset += f.Size

		if align > maxAlign {
			maxAlign = align
		}
	}

	return Layout{
		Offsets: offsets,
		Size:    AlignSize(offset, maxAlign),
		Align:   maxAlign,
	}
}
