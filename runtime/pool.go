package runtime

import "github.com/sbl8/ndkernel/ckernel"

// builderPool recycles kernel builders between runs so that their arenas
// keep the capacity reached by earlier kernels.
type builderPool struct {
	builders chan *ckernel.Builder
}

func newBuilderPool(poolSize int) *builderPool {
	return &builderPool{builders: make(chan *ckernel.Builder, poolSize)}
}

// get returns a pooled builder or creates a new one
func (p *builderPool) get() *ckernel.Builder {
	select {
	case b := <-p.builders:
		return b
	default:
		return ckernel.NewBuilder()
	}
}

// put destroys the builder's kernel and returns it to the pool
func (p *builderPool) put(b *ckernel.Builder) {
	b.Reset()
	select {
	case p.builders <- b:
	default:
		b.Close()
	}
}
