package kernels

import (
	"fmt"
	"unsafe"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/core"
)

// Link builds one stage of a chain as a strided kernel at off and returns
// the offset just past it. A failed link may leave partial state at off;
// the chain's destructor cleans it up.
type Link func(b *ckernel.Builder, off int) (int, error)

// Buffer describes the element type staged between two links.
type Buffer struct {
	Size  int
	Align int
}

// DefaultBatch is the number of elements staged per pass.
const DefaultBatch = 128

// Chains of up to inlineLinks links keep their scratch buffers in the arena.
const inlineLinks = 3

// chainState heads a chain. For an inline chain the arena after it holds
// the buffers; otherwise they come from ckernel.Scratch and are retained.
type chainState struct {
	ckernel.Prefix
	Links  int64
	Batch  int64
	Child  [inlineLinks]int64
	Stride [inlineLinks - 1]int64
	Buf    [inlineLinks - 1]int64
}

// pooledChainState is the N-link variant. Buffers are held by Ref.
type pooledChainState struct {
	ckernel.Prefix
	Links int64
	Batch int64
}

type pooledSlot struct {
	Child  int64
	Stride int64
	Buf    ckernel.Ref
	_      uint32
}

// MakeBufferedChain composes links left to right, staging each intermediate
// result in a scratch buffer of batch elements described by bufs. The kernel
// placed at off is strided or single per req; children are always strided.
func MakeBufferedChain(b *ckernel.Builder, off int, req ckernel.Request, links []Link, bufs []Buffer, batch int) (int, error) {
	if len(links) == 0 {
		return off, fmt.Errorf("buffered chain needs at least one link")
	}
	if len(bufs) != len(links)-1 {
		return off, fmt.Errorf("buffered chain of %d links needs %d buffers, got %d", len(links), len(links)-1, len(bufs))
	}
	if req.Function() != ckernel.RequestSingle && req.Function() != ckernel.RequestStrided {
		return off, fmt.Errorf("unrecognized kernel request %s", req)
	}
	if batch <= 0 {
		batch = DefaultBatch
	}
	if len(links) <= inlineLinks {
		return makeInlineChain(b, off, req, links, bufs, batch)
	}
	return makePooledChain(b, off, req, links, bufs, batch)
}

func makeInlineChain(b *ckernel.Builder, off int, req ckernel.Request, links []Link, bufs []Buffer, batch int) (int, error) {
	k, end := ckernel.Place[chainState](b, off)
	st := ckernel.State[chainState](k)
	st.Links = int64(len(links))
	st.Batch = int64(batch)
	k.SetDestructor(destroyInlineChain)
	if err := setChainFunction(k, req, inlineStrided); err != nil {
		return off, err
	}

	for i, bf := range bufs {
		at := core.AlignSize(end, max(bf.Align, core.KernelAlign))
		stride := bufStride(bf)
		at = b.Reserve(at, stride*batch)
		st = ckernel.State[chainState](k)
		st.Stride[i] = int64(stride)
		st.Buf[i] = int64(at - k.Offset())
		end = at + stride*batch
	}

	for i, link := range links {
		end = core.AlignOffset(end)
		ckernel.State[chainState](k).Child[i] = int64(end - k.Offset())
		next, err := link(b, end)
		if err != nil {
			return off, err
		}
		end = next
	}
	return end, nil
}

func makePooledChain(b *ckernel.Builder, off int, req ckernel.Request, links []Link, bufs []Buffer, batch int) (int, error) {
	hdr := int(unsafe.Sizeof(pooledChainState{}))
	slots := int(unsafe.Sizeof(pooledSlot{})) * len(links)
	k, _ := ckernel.Place[pooledChainState](b, off)
	b.Reserve(k.Offset()+hdr, slots)
	st := ckernel.State[pooledChainState](k)
	st.Links = int64(len(links))
	st.Batch = int64(batch)
	k.SetDestructor(destroyPooledChain)
	if err := setChainFunction(k, req, pooledStrided); err != nil {
		return off, err
	}

	for i, bf := range bufs {
		stride := bufStride(bf)
		ref := b.Retain(ckernel.Scratch.Get(stride * batch))
		s := pooledSlots(k)
		s[i].Stride = int64(stride)
		s[i].Buf = ref
	}

	end := k.Offset() + hdr + slots
	for i, link := range links {
		end = core.AlignOffset(end)
		pooledSlots(k)[i].Child = int64(end - k.Offset())
		next, err := link(b, end)
		if err != nil {
			return off, err
		}
		end = next
	}
	return end, nil
}

func bufStride(bf Buffer) int {
	if bf.Align > 1 {
		return core.AlignSize(bf.Size, bf.Align)
	}
	return bf.Size
}

func pooledSlots(k ckernel.Kernel) []pooledSlot {
	st := ckernel.State[pooledChainState](k)
	p := k.Builder().Pointer(k.Offset() + int(unsafe.Sizeof(pooledChainState{})))
	return unsafe.Slice((*pooledSlot)(p), st.Links)
}

func setChainFunction(k ckernel.Kernel, req ckernel.Request, strided ckernel.StridedFunc) error {
	single := func(dst unsafe.Pointer, src []unsafe.Pointer, self ckernel.Kernel) error {
		return strided(dst, 0, src, zeroStride[:], 1, self)
	}
	return k.SetExprFunction(req, single, strided)
}

var zeroStride [1]int

// stage describes one pass of a chain over a batch.
type stage struct {
	child  ckernel.Kernel
	buf    unsafe.Pointer
	stride int
}

func runChain(stages []stage, dst unsafe.Pointer, dstStride int, src unsafe.Pointer, srcStride, count, batch int) error {
	last := len(stages) - 1
	for done := 0; done < count; done += batch {
		n := min(batch, count-done)
		if done > 0 {
			src = unsafe.Add(src, batch*srcStride)
			dst = unsafe.Add(dst, batch*dstStride)
		}
		in, inStride := src, srcStride
		for i, s := range stages {
			out, outStride := s.buf, s.stride
			if i == last {
				out, outStride = dst, dstStride
			}
			ptrs := [1]unsafe.Pointer{in}
			strides := [1]int{inStride}
			if err := s.child.CallStrided(out, outStride, ptrs[:], strides[:], n); err != nil {
				return err
			}
			in, inStride = out, outStride
		}
	}
	return nil
}

func inlineStrided(dst unsafe.Pointer, dstStride int, src []unsafe.Pointer, srcStride []int, count int, self ckernel.Kernel) error {
	st := *ckernel.State[chainState](self)
	var local [inlineLinks]stage
	stages := local[:st.Links]
	for i := range stages {
		stages[i].child = self.Child(int(st.Child[i]))
		if i < len(stages)-1 && st.Stride[i] > 0 {
			stages[i].buf = self.Builder().Pointer(self.Offset() + int(st.Buf[i]))
			stages[i].stride = int(st.Stride[i])
		}
	}
	return runChain(stages, dst, dstStride, src[0], srcStride[0], count, int(st.Batch))
}

func pooledStrided(dst unsafe.Pointer, dstStride int, src []unsafe.Pointer, srcStride []int, count int, self ckernel.Kernel) error {
	st := ckernel.State[pooledChainState](self)
	slots := pooledSlots(self)
	stages := make([]stage, len(slots))
	b := self.Builder()
	for i, s := range slots {
		stages[i].child = self.Child(int(s.Child))
		if i < len(slots)-1 {
			stages[i].buf = unsafe.Pointer(unsafe.SliceData(b.Deref(s.Buf).([]byte)))
			stages[i].stride = int(s.Stride)
		}
	}
	return runChain(stages, dst, dstStride, src[0], srcStride[0], count, int(st.Batch))
}

func destroyInlineChain(self ckernel.Kernel) {
	st := *ckernel.State[chainState](self)
	for i := int64(0); i < st.Links; i++ {
		self.DestroyChild(int(st.Child[i]))
	}
}

// destroyPooledChain destroys the children before returning their buffers.
func destroyPooledChain(self ckernel.Kernel) {
	n := len(pooledSlots(self))
	for i := 0; i < n; i++ {
		self.DestroyChild(int(pooledSlots(self)[i].Child))
	}
	b := self.Builder()
	for i := 0; i < n; i++ {
		s := &pooledSlots(self)[i]
		if buf, ok := b.Deref(s.Buf).([]byte); ok {
			ckernel.Scratch.Put(buf)
		}
		b.Release(s.Buf)
		s.Buf = 0
	}
}
