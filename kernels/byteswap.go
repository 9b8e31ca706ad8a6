package kernels

import (
	"unsafe"

	"github.com/sbl8/ndkernel/ckernel"
)

type swapState struct {
	ckernel.Prefix
	Size int64
}

func reverseInto(dst, src []byte) {
	n := len(src)
	if n == 0 {
		return
	}
	if &dst[0] == &src[0] {
		for i := 0; i < n/2; i++ {
			dst[i], dst[n-1-i] = src[n-1-i], src[i]
		}
		return
	}
	for i := range src {
		dst[i] = src[n-1-i]
	}
}

func byteswapSingle(dst unsafe.Pointer, src []unsafe.Pointer, self ckernel.Kernel) error {
	n := int(ckernel.State[swapState](self).Size)
	reverseInto(unsafe.Slice((*byte)(dst), n), unsafe.Slice((*byte)(src[0]), n))
	return nil
}

func pairwiseSingle(dst unsafe.Pointer, src []unsafe.Pointer, self ckernel.Kernel) error {
	n := int(ckernel.State[swapState](self).Size)
	h := n / 2
	d, s := unsafe.Slice((*byte)(dst), n), unsafe.Slice((*byte)(src[0]), n)
	reverseInto(d[:h], s[:h])
	reverseInto(d[h:], s[h:])
	return nil
}

// MakeByteSwap places a kernel reversing the bytes of a size-byte value,
// and returns the offset just past it.
func MakeByteSwap(b *ckernel.Builder, off, size int, req ckernel.Request) (int, error) {
	return makeSwap(b, off, size, req, byteswapSingle)
}

// MakePairwiseByteSwap places a kernel that reverses each half of a value
// independently, as needed for complex numbers.
func MakePairwiseByteSwap(b *ckernel.Builder, off, size int, req ckernel.Request) (int, error) {
	return makeSwap(b, off, size, req, pairwiseSingle)
}

func makeSwap(b *ckernel.Builder, off, size int, req ckernel.Request, fn ckernel.SingleFunc) (int, error) {
	k, end := ckernel.Place[swapState](b, off)
	ckernel.State[swapState](k).Size = int64(size)
	if err := k.SetExprFunction(req, fn, nil); err != nil {
		return off, err
	}
	return end, nil
}
