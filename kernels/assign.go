package kernels

import (
	"fmt"
	"unsafe"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/eval"
)

// leaf is the state of a kernel with no parameters.
type leaf struct {
	ckernel.Prefix
}

var assignTable [BuiltinCount][BuiltinCount][eval.ErrorModeCount]ckernel.SingleFunc

func init() {
	for s := BuiltinID(0); s < BuiltinCount; s++ {
		for d := BuiltinID(0); d < BuiltinCount; d++ {
			for m := 0; m < eval.ErrorModeCount; m++ {
				assignTable[s][d][m] = assignFunc(s, d, eval.ErrorMode(m))
			}
		}
	}
}

func assignFunc(src, dst BuiltinID, mode eval.ErrorMode) ckernel.SingleFunc {
	read, write := readers[src], writers[dst]
	return func(d unsafe.Pointer, s []unsafe.Pointer, _ ckernel.Kernel) error {
		if err := write(d, read(s[0]), mode); err != nil {
			if ve, ok := err.(*ValueError); ok {
				ve.Src, ve.Dst = src.String(), dst.String()
			}
			return err
		}
		return nil
	}
}

// AssignFunc returns the table entry converting src to dst under mode.
// mode must already be resolved.
func AssignFunc(dst, src BuiltinID, mode eval.ErrorMode) (ckernel.SingleFunc, error) {
	if !dst.Valid() || !src.Valid() {
		return nil, fmt.Errorf("no builtin assignment from %s to %s", src, dst)
	}
	if int(mode) >= eval.ErrorModeCount {
		return nil, fmt.Errorf("error mode %s is not resolved", mode)
	}
	return assignTable[src][dst][mode], nil
}

// MakeBuiltinAssignment places a kernel converting src to dst at off and
// returns the offset just past it. Identical types get a plain copy.
func MakeBuiltinAssignment(b *ckernel.Builder, off int, dst, src BuiltinID, req ckernel.Request, mode eval.ErrorMode) (int, error) {
	fn, err := AssignFunc(dst, src, mode)
	if err != nil {
		return off, err
	}
	if dst == src {
		return MakePODAssignment(b, off, dst.Size(), dst.Align(), req)
	}
	k, end := ckernel.Place[leaf](b, off)
	if err := k.SetExprFunction(req, fn, nil); err != nil {
		return off, err
	}
	return end, nil
}

type podState struct {
	ckernel.Prefix
	Size int64
}

func copy1(dst unsafe.Pointer, src []unsafe.Pointer, _ ckernel.Kernel) error {
	*(*uint8)(dst) = *(*uint8)(src[0])
	return nil
}

func copy2(dst unsafe.Pointer, src []unsafe.Pointer, _ ckernel.Kernel) error {
	*(*uint16)(dst) = *(*uint16)(src[0])
	return nil
}

func copy4(dst unsafe.Pointer, src []unsafe.Pointer, _ ckernel.Kernel) error {
	*(*uint32)(dst) = *(*uint32)(src[0])
	return nil
}

func copy8(dst unsafe.Pointer, src []unsafe.Pointer, _ ckernel.Kernel) error {
	*(*uint64)(dst) = *(*uint64)(src[0])
	return nil
}

func copy16(dst unsafe.Pointer, src []unsafe.Pointer, _ ckernel.Kernel) error {
	*(*[2]uint64)(dst) = *(*[2]uint64)(src[0])
	return nil
}

func copyN(dst unsafe.Pointer, src []unsafe.Pointer, self ckernel.Kernel) error {
	n := int(ckernel.State[podState](self).Size)
	copy(unsafe.Slice((*byte)(dst), n), unsafe.Slice((*byte)(src[0]), n))
	return nil
}

func copyStridedN(dst unsafe.Pointer, dstStride int, src []unsafe.Pointer, srcStride []int, count int, self ckernel.Kernel) error {
	n := int(ckernel.State[podState](self).Size)
	s, ss := src[0], srcStride[0]
	if dstStride == n && ss == n && count > 0 {
		total := n * count
		copy(unsafe.Slice((*byte)(dst), total), unsafe.Slice((*byte)(s), total))
		return nil
	}
	for i := 0; i < count; i++ {
		if i > 0 {
			dst, s = unsafe.Add(dst, dstStride), unsafe.Add(s, ss)
		}
		copy(unsafe.Slice((*byte)(dst), n), unsafe.Slice((*byte)(s), n))
	}
	return nil
}

// MakePODAssignment places a kernel copying size bytes whose operands are
// aligned to align, and returns the offset just past it.
func MakePODAssignment(b *ckernel.Builder, off, size, align int, req ckernel.Request) (int, error) {
	k, end := ckernel.Place[podState](b, off)
	ckernel.State[podState](k).Size = int64(size)
	var single ckernel.SingleFunc
	switch {
	case size == 1:
		single = copy1
	case size == 2 && align >= 2:
		single = copy2
	case size == 4 && align >= 4:
		single = copy4
	case size == 8 && align >= 8:
		single = copy8
	case size == 16 && align >= 8:
		single = copy16
	default:
		single = copyN
	}
	var strided ckernel.StridedFunc
	if req.Function() == ckernel.RequestStrided {
		strided = copyStridedN
	}
	if err := k.SetExprFunction(req, single, strided); err != nil {
		return off, err
	}
	return end, nil
}
