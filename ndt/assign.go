package ndt

import (
	"github.com/pkg/errors"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/eval"
	"github.com/sbl8/ndkernel/kernels"
)

// assignArgs carries one assignment request through the type hooks.
type assignArgs struct {
	dst     Type
	dstMeta Arrmeta
	src     Type
	srcMeta Arrmeta
	req     ckernel.Request
	mode    eval.ErrorMode
	ectx    *eval.Context
}

// assigner is implemented by extended types that build assignment kernels.
// A hook returns errNoPath when it cannot handle the other operand.
type assigner interface {
	makeAssignment(b *ckernel.Builder, off int, a *assignArgs) (int, error)
}

// MakeAssignmentKernel places at off a kernel that assigns one src value to
// one dst value using the error mode of ectx, and returns the offset just
// past it. On failure nothing remains at off.
func MakeAssignmentKernel(b *ckernel.Builder, off int, dst Type, dstMeta Arrmeta, src Type, srcMeta Arrmeta,
	req ckernel.Request, ectx *eval.Context) (int, error) {
	return MakeAssignmentKernelMode(b, off, dst, dstMeta, src, srcMeta, req, eval.Default, ectx)
}

// MakeAssignmentKernelMode is MakeAssignmentKernel with an explicit error
// mode; eval.Default defers to ectx.
func MakeAssignmentKernelMode(b *ckernel.Builder, off int, dst Type, dstMeta Arrmeta, src Type, srcMeta Arrmeta,
	req ckernel.Request, mode eval.ErrorMode, ectx *eval.Context) (int, error) {
	a := &assignArgs{
		dst: dst, dstMeta: dstMeta,
		src: src, srcMeta: srcMeta,
		req: req, mode: ectx.Resolve(mode), ectx: eval.OrDefault(ectx),
	}
	end, err := makeAssignment(b, off, a)
	if err != nil {
		b.Discard(off)
		a.ectx.Log().Debug("assignment kernel failed", "dst", dst, "src", src, "err", err)
		return off, err
	}
	return end, nil
}

func makeAssignment(b *ckernel.Builder, off int, a *assignArgs) (int, error) {
	if fn := a.req.Function(); fn != ckernel.RequestSingle && fn != ckernel.RequestStrided {
		return off, errors.Errorf("unrecognized kernel request %s for assignment", a.req)
	}
	if sym(a.dst) || sym(a.src) {
		return off, &AssignError{Dst: a.dst, Src: a.src, Reason: "Cannot store data of symbolic type " + symbolic(a.dst, a.src).String()}
	}

	if db, ok := a.dst.(*Builtin); ok {
		if sb, ok := a.src.(*Builtin); ok {
			return kernels.MakeBuiltinAssignment(b, off, db.id, sb.id, a.req, a.mode)
		}
	}

	if IsExpression(a.dst) || IsExpression(a.src) {
		return makeExpressionAssignment(b, off, a)
	}

	if h, ok := a.dst.(assigner); ok {
		end, err := h.makeAssignment(b, off, a)
		if !errors.Is(err, errNoPath) {
			return end, err
		}
		b.Discard(off)
	}
	if h, ok := a.src.(assigner); ok {
		end, err := h.makeAssignment(b, off, a)
		if !errors.Is(err, errNoPath) {
			return end, err
		}
		b.Discard(off)
	}
	return off, &AssignError{Dst: a.dst, Src: a.src}
}

// with returns a copy of a for a sub-assignment between other endpoints.
func (a *assignArgs) with(dst Type, dstMeta Arrmeta, src Type, srcMeta Arrmeta, req ckernel.Request) *assignArgs {
	c := *a
	c.dst, c.dstMeta, c.src, c.srcMeta, c.req = dst, dstMeta, src, srcMeta, req
	return &c
}

// podCopy places a plain copy of t's data.
func podCopy(b *ckernel.Builder, off int, t Type, align int, req ckernel.Request) (int, error) {
	return kernels.MakePODAssignment(b, off, t.DataSize(), align, req)
}

func sym(t Type) bool { return t.Flags()&FlagSymbolic != 0 }

func symbolic(a, b Type) Type {
	if sym(a) {
		return a
	}
	return b
}

// step is one stage of an expression chain together with the type it writes.
type step struct {
	out  Type
	make func(b *ckernel.Builder, off int, req ckernel.Request) (int, error)
}

// makeExpressionAssignment stages src from storage up to its value type,
// assigns that to dst's value type, and stages the result down to dst's
// storage, buffering between the steps.
func makeExpressionAssignment(b *ckernel.Builder, off int, a *assignArgs) (int, error) {
	var steps []step

	cur := a.src
	if se, ok := a.src.(expression); ok {
		var chain []expression
		for t := Type(se); IsExpression(t); t = t.(expression).OperandType() {
			chain = append(chain, t.(expression))
		}
		for i := len(chain) - 1; i >= 0; i-- {
			e := chain[i]
			steps = append(steps, step{out: e.ValueType(), make: func(b *ckernel.Builder, off int, req ckernel.Request) (int, error) {
				return e.makeOperandToValue(b, off, req, a.ectx)
			}})
		}
		cur = se.ValueType()
	}

	target := a.dst
	var down []expression
	for t := a.dst; IsExpression(t); t = t.(expression).OperandType() {
		down = append(down, t.(expression))
	}
	if len(down) > 0 {
		target = down[0].ValueType()
	}

	if !Equal(cur, target) || len(steps) == 0 && len(down) == 0 {
		from := cur
		meta := a.srcMeta
		if len(steps) > 0 {
			meta = nil
		}
		dstMeta := a.dstMeta
		if len(down) > 0 {
			dstMeta = nil
		}
		steps = append(steps, step{out: target, make: func(b *ckernel.Builder, off int, req ckernel.Request) (int, error) {
			return makeAssignment(b, off, a.with(target, dstMeta, from, meta, req))
		}})
	}

	for _, e := range down {
		e := e
		steps = append(steps, step{out: e.OperandType(), make: func(b *ckernel.Builder, off int, req ckernel.Request) (int, error) {
			return e.makeValueToOperand(b, off, req, a.ectx)
		}})
	}

	if len(steps) == 1 {
		return steps[0].make(b, off, a.req)
	}
	links := make([]kernels.Link, len(steps))
	bufs := make([]kernels.Buffer, len(steps)-1)
	for i, s := range steps {
		s := s
		links[i] = func(b *ckernel.Builder, off int) (int, error) {
			return s.make(b, off, ckernel.RequestStrided)
		}
		if i < len(bufs) {
			v := ValueType(s.out)
			bufs[i] = kernels.Buffer{Size: v.DataSize(), Align: v.DataAlignment()}
		}
	}
	a.ectx.Log().Debug("buffered chain", "dst", a.dst, "src", a.src, "links", len(links))
	return kernels.MakeBufferedChain(b, off, a.req, links, bufs, a.ectx.Batch())
}
