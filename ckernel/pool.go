package ckernel

import (
	"runtime"

	"github.com/sbl8/ndkernel/core"
)

// Pool recycles cache-line aligned scratch buffers of up to size bytes.
// Larger requests are allocated directly and dropped on Put.
type Pool struct {
	buffers chan []byte
	size    int
}

// NewPool creates a pool holding up to poolSize buffers of bufferSize bytes.
func NewPool(bufferSize, poolSize int) *Pool {
	return &Pool{
		buffers: make(chan []byte, poolSize),
		size:    bufferSize,
	}
}

// Get returns a zeroed buffer of n bytes.
func (p *Pool) Get(n int) []byte {
	if n > p.size {
		return core.AlignedBytes(n)
	}
	select {
	case buf := <-p.buffers:
		buf = buf[:n]
		clear(buf)
		return buf
	default:
		return core.AlignedBytes(p.size)[:n]
	}
}

// Put hands buf back to the pool.
func (p *Pool) Put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	select {
	case p.buffers <- buf[:cap(buf)]:
	default:
		// Pool full, let GC handle it
	}
}

// Scratch is the pool used by buffered chains.
var Scratch = NewPool(16<<10, runtime.NumCPU()*4)
