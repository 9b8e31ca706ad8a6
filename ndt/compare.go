package ndt

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/core"
	"github.com/sbl8/ndkernel/eval"
	"github.com/sbl8/ndkernel/kernels"
)

type compareArgs struct {
	a, b         Type
	aMeta, bMeta Arrmeta
	op           kernels.Comparison
	ectx         *eval.Context
}

// comparer is implemented by extended types that build predicate kernels.
type comparer interface {
	makeComparison(b *ckernel.Builder, off int, c *compareArgs) (int, error)
}

// MakeComparisonKernel places at off a predicate kernel evaluating op on
// one value of a and one of b, and returns the offset just past it.
func MakeComparisonKernel(b *ckernel.Builder, off int, a Type, aMeta Arrmeta, bt Type, bMeta Arrmeta,
	op kernels.Comparison, ectx *eval.Context) (int, error) {
	c := &compareArgs{a: a, b: bt, aMeta: aMeta, bMeta: bMeta, op: op, ectx: eval.OrDefault(ectx)}
	end, err := makeComparison(b, off, c)
	if err != nil {
		b.Discard(off)
		return off, err
	}
	return end, nil
}

func makeComparison(b *ckernel.Builder, off int, c *compareArgs) (int, error) {
	if c.op >= kernels.ComparisonCount {
		return off, &NotComparableError{A: c.a, B: c.b, Op: c.op}
	}
	if ab, ok := c.a.(*Builtin); ok {
		if bb, ok := c.b.(*Builtin); ok {
			return kernels.MakeBuiltinComparison(b, off, ab.id, bb.id, c.op)
		}
	}
	if IsExpression(c.a) || IsExpression(c.b) {
		return makeExpressionComparison(b, off, c)
	}
	for _, t := range []Type{c.a, c.b} {
		h, ok := t.(comparer)
		if !ok {
			continue
		}
		end, err := h.makeComparison(b, off, c)
		if !errors.Is(err, errNoPath) {
			return end, err
		}
		b.Discard(off)
	}
	return off, &NotComparableError{A: c.a, B: c.b, Op: c.op}
}

// bufferedCompareState converts each expression operand to its value type
// before running the child predicate.
type bufferedCompareState struct {
	ckernel.Prefix
	Conv  [2]int64
	Buf   [2]int64
	Child int64
	Op    int64
}

func makeExpressionComparison(b *ckernel.Builder, off int, c *compareArgs) (int, error) {
	va, vb := ValueType(c.a), ValueType(c.b)
	k, end := ckernel.Place[bufferedCompareState](b, off)
	k.SetDestructor(func(self ckernel.Kernel) {
		st := *ckernel.State[bufferedCompareState](self)
		self.DestroyChild(int(st.Child))
		self.DestroyChild(int(st.Conv[0]))
		self.DestroyChild(int(st.Conv[1]))
	})
	k.SetFunction(ckernel.PredicateFunc(bufferedCompare))
	ckernel.State[bufferedCompareState](k).Op = int64(c.op)

	metas := []Arrmeta{c.aMeta, c.bMeta}
	for i, t := range []Type{c.a, c.b} {
		if !IsExpression(t) {
			continue
		}
		metas[i] = nil
		v := ValueType(t)
		at := b.Reserve(alignTo(end, v.DataAlignment()), v.DataSize())
		ckernel.State[bufferedCompareState](k).Buf[i] = int64(at - k.Offset())
		end = at + v.DataSize()
	}
	for i, t := range []Type{c.a, c.b} {
		if !IsExpression(t) {
			continue
		}
		end = core.AlignOffset(end)
		ckernel.State[bufferedCompareState](k).Conv[i] = int64(end - k.Offset())
		next, err := makeAssignment(b, end, &assignArgs{
			dst: ValueType(t), src: t, srcMeta: []Arrmeta{c.aMeta, c.bMeta}[i],
			req: ckernel.RequestSingle, mode: c.ectx.Resolve(eval.Default), ectx: c.ectx,
		})
		if err != nil {
			return off, err
		}
		end = next
	}
	end = core.AlignOffset(end)
	ckernel.State[bufferedCompareState](k).Child = int64(end - k.Offset())
	return makeComparison(b, end, &compareArgs{a: va, b: vb, aMeta: metas[0], bMeta: metas[1], op: c.op, ectx: c.ectx})
}

func bufferedCompare(src []unsafe.Pointer, self ckernel.Kernel) int {
	st := *ckernel.State[bufferedCompareState](self)
	var args [2]unsafe.Pointer
	for i := range args {
		args[i] = src[i]
		if st.Conv[i] == 0 {
			continue
		}
		buf := self.Builder().Pointer(self.Offset() + int(st.Buf[i]))
		if err := self.Child(int(st.Conv[i])).CallSingle(buf, src[i]); err != nil {
			// Values that cannot be converted are unequal to everything.
			return boolInt(kernels.Comparison(st.Op) == kernels.NotEqual)
		}
		args[i] = buf
	}
	return self.Child(int(st.Child)).Predicate()(args[:], self.Child(int(st.Child)))
}
