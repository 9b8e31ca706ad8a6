// Package compiler lowers plans into programs of typed array operations.
//
// Compilation resolves every type description to an ndt.Type, stacks the
// expression views a step reads its source through, and builds each step's
// kernel once so that type errors surface before any data is touched.
package compiler

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/eval"
	"github.com/sbl8/ndkernel/kernels"
	"github.com/sbl8/ndkernel/model"
	"github.com/sbl8/ndkernel/ndt"
)

// Opcode selects the operation of an instruction.
type Opcode uint8

const (
	OpAssign Opcode = iota
	OpCompare
)

func (op Opcode) String() string {
	switch op {
	case OpAssign:
		return model.OpAssign
	case OpCompare:
		return model.OpCompare
	}
	return fmt.Sprintf("Opcode(%d)", uint8(op))
}

// Program is a compiled plan.
type Program struct {
	Name    string
	Context *eval.Context
	Inputs  []Input
	Instrs  []Instr
}

// Input is an array parsed from text before the instructions run.
type Input struct {
	Name   string
	Type   ndt.Type
	Values []string
}

// Instr produces the array Out from Src, and With for comparisons.
type Instr struct {
	Op  Opcode
	Out string
	Src string
	// View is the type Src's storage is read as; nil reads it as declared.
	View ndt.Type
	// Type is the element type of Out.
	Type ndt.Type
	With string
	Cmp  kernels.Comparison
	// KernelBytes is the arena size of the kernel built for the check.
	KernelBytes int
}

// String renders the instruction for listings.
func (in *Instr) String() string {
	src := in.Src
	if in.View != nil {
		src = fmt.Sprintf("%s as %s", in.Src, in.View)
	}
	if in.Op == OpCompare {
		return fmt.Sprintf("%s = %s %s %s", in.Out, src, in.Cmp, in.With)
	}
	return fmt.Sprintf("%s: %s = %s", in.Out, in.Type, src)
}

// CompileFile loads and compiles a plan file.
func CompileFile(path string) (*Program, error) {
	p, err := model.Load(path)
	if err != nil {
		return nil, err
	}
	return Compile(p)
}

// Compile lowers a validated plan.
func Compile(p *model.Plan) (*Program, error) {
	ectx, err := NewContext(p.Context)
	if err != nil {
		return nil, errors.Wrap(err, "context")
	}
	c := &compiler{
		ectx:    ectx,
		symbols: make(map[string]ndt.Type),
		b:       ckernel.NewBuilder(),
	}
	defer c.b.Close()

	prog := &Program{Name: p.Name, Context: ectx}
	for _, a := range p.Arrays {
		t, err := c.resolve(&a.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "array %q", a.Name)
		}
		c.symbols[a.Name] = t
		prog.Inputs = append(prog.Inputs, Input{Name: a.Name, Type: t, Values: a.Values})
	}
	for i := range p.Steps {
		s := &p.Steps[i]
		in, err := c.step(s)
		if err != nil {
			return nil, errors.Wrapf(err, "step %d (%s)", i, s.Out)
		}
		c.symbols[s.Out] = in.Type
		prog.Instrs = append(prog.Instrs, in)
	}
	return prog, nil
}

// NewContext builds an evaluation context from its plan description.
func NewContext(spec model.ContextSpec) (*eval.Context, error) {
	ectx := eval.DefaultContext()
	if spec.ErrorMode != "" {
		m, err := eval.ParseErrorMode(spec.ErrorMode)
		if err != nil {
			return nil, err
		}
		ectx.ErrorMode = m
	}
	order, err := eval.ParseDateOrder(spec.DateOrder)
	if err != nil {
		return nil, err
	}
	ectx.DateParseOrder = order
	if spec.CenturyWindow != 0 {
		if spec.CenturyWindow < 0 || spec.CenturyWindow > 99 {
			return nil, errors.Errorf("century window %d out of range [0, 99]", spec.CenturyWindow)
		}
		ectx.CenturyWindow = spec.CenturyWindow
	}
	if spec.ChainBatch < 0 {
		return nil, errors.Errorf("negative chain batch %d", spec.ChainBatch)
	}
	if spec.ChainBatch > 0 {
		ectx.ChainBatch = spec.ChainBatch
	}
	return ectx, nil
}

type compiler struct {
	ectx    *eval.Context
	symbols map[string]ndt.Type
	b       *ckernel.Builder
}

func (c *compiler) step(s *model.Step) (Instr, error) {
	src := c.symbols[s.Src]
	view, err := c.views(src, s.Via)
	if err != nil {
		return Instr{}, err
	}
	in := Instr{Out: s.Out, Src: s.Src}

	switch s.Op {
	case model.OpAssign:
		in.Op = OpAssign
		if in.Type, err = c.resolve(s.Type); err != nil {
			return Instr{}, err
		}
		if s.ErrorMode != "" {
			mode, err := eval.ParseErrorMode(s.ErrorMode)
			if err != nil {
				return Instr{}, err
			}
			if view, err = ndt.NewConvert(in.Type, view, mode); err != nil {
				return Instr{}, err
			}
		}
		in.View = viewOrNil(view, src)
		in.KernelBytes, err = c.checkAssign(in.Type, view)
	case model.OpCompare:
		in.Op = OpCompare
		if in.Cmp, err = kernels.ParseComparison(s.Cmp); err != nil {
			return Instr{}, err
		}
		in.Type, in.With, in.View = ndt.BoolType, s.With, viewOrNil(view, src)
		in.KernelBytes, err = c.checkCompare(view, c.symbols[s.With], in.Cmp)
	}
	return in, err
}

// views stacks the expression layers of vs on top of t.
func (c *compiler) views(t ndt.Type, vs []model.ViewSpec) (ndt.Type, error) {
	for _, v := range vs {
		var err error
		switch {
		case v.Convert != nil:
			var value ndt.Type
			if value, err = c.resolve(v.Convert); err == nil {
				t, err = ndt.NewConvert(value, t, eval.Default)
			}
		case v.Property != "":
			t, err = ndt.NewProperty(t, v.Property)
		case v.ByteSwap:
			t, err = ndt.NewByteSwap(t)
		}
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

func viewOrNil(view, src ndt.Type) ndt.Type {
	if view == src {
		return nil
	}
	return view
}

func (c *compiler) checkAssign(dst, src ndt.Type) (int, error) {
	defer c.b.Reset()
	return ndt.MakeAssignmentKernel(c.b, 0, dst, ndt.NewArrmeta(dst), src, ndt.NewArrmeta(src), ckernel.RequestStrided, c.ectx)
}

func (c *compiler) checkCompare(a, b ndt.Type, op kernels.Comparison) (int, error) {
	defer c.b.Reset()
	return ndt.MakeComparisonKernel(c.b, 0, a, ndt.NewArrmeta(a), b, ndt.NewArrmeta(b), op, c.ectx)
}

// resolve maps a type description to a type.
func (c *compiler) resolve(spec *model.TypeSpec) (ndt.Type, error) {
	switch {
	case spec.Name != "":
		return resolveName(spec.Name, spec.TZ)
	case spec.String != nil:
		enc := ndt.UTF8
		if spec.String.Encoding != "" {
			var err error
			if enc, err = ndt.ParseEncoding(spec.String.Encoding); err != nil {
				return nil, err
			}
		}
		return ndt.NewFixedString(spec.String.Length, enc)
	case spec.Bytes != nil:
		return ndt.NewFixedBytes(spec.Bytes.Size, max(spec.Bytes.Align, 1))
	case spec.Struct != nil:
		fields := make([]ndt.Field, len(spec.Struct))
		for i := range spec.Struct {
			f := &spec.Struct[i]
			t, err := c.resolve(&f.Type)
			if err != nil {
				return nil, errors.Wrapf(err, "field %q", f.Name)
			}
			fields[i] = ndt.Field{Name: f.Name, Type: t}
		}
		return ndt.NewStruct(fields...)
	case spec.Dim != nil:
		elem, err := c.resolve(&spec.Dim.Of)
		if err != nil {
			return nil, err
		}
		return ndt.NewFixedDim(spec.Dim.Size, elem)
	case spec.Categorical != nil:
		return c.categorical(spec.Categorical)
	case spec.ByteSwap != nil:
		value, err := c.resolve(spec.ByteSwap)
		if err != nil {
			return nil, err
		}
		return ndt.NewByteSwap(value)
	case spec.Var != "":
		return ndt.NewTypeVar(spec.Var)
	}
	return nil, errors.New("empty type")
}

func resolveName(name, tz string) (ndt.Type, error) {
	zone := ndt.TZAbstract
	switch strings.ToLower(tz) {
	case "", "abstract":
	case "utc":
		zone = ndt.TZUTC
	default:
		return nil, errors.Errorf("unknown time zone %q", tz)
	}
	switch name {
	case "time":
		return ndt.NewTime(zone), nil
	case "datetime":
		return ndt.NewDateTime(zone), nil
	}
	if tz != "" {
		return nil, errors.Errorf("type %s takes no time zone", name)
	}
	switch name {
	case "void":
		return ndt.VoidType, nil
	case "date":
		return ndt.DateType, nil
	}
	if t, ok := ndt.BuiltinByName(name); ok {
		return t, nil
	}
	return nil, errors.Errorf("unknown type name %q", name)
}

func (c *compiler) categorical(spec *model.CategoricalSpec) (ndt.Type, error) {
	elem, err := c.resolve(&spec.Of)
	if err != nil {
		return nil, err
	}
	cats, err := c.parseValues(elem, spec.Values)
	if err != nil {
		return nil, errors.Wrap(err, "categories")
	}
	if spec.Factor {
		return ndt.Factor(cats)
	}
	return ndt.NewCategorical(cats)
}

// parseValues converts text values to an array of t on the compiler's
// builder.
func (c *compiler) parseValues(t ndt.Type, values []string) (*ndt.Array, error) {
	src, err := TextArray(values)
	if err != nil {
		return nil, err
	}
	dst := ndt.NewArray(t, len(values))
	if len(values) == 0 {
		return dst, nil
	}
	defer c.b.Reset()
	if _, err := ndt.MakeAssignmentKernel(c.b, 0, t, dst.Meta, src.Type, src.Meta, ckernel.RequestStrided, c.ectx); err != nil {
		return nil, err
	}
	err = c.b.Root().CallStrided(dst.Ptr(0), dst.Stride, []unsafe.Pointer{src.Ptr(0)}, []int{src.Stride}, len(values))
	if err != nil {
		return nil, err
	}
	return dst, nil
}

// TextArray stores values in a UTF-8 string array wide enough for the
// longest of them.
func TextArray(values []string) (*ndt.Array, error) {
	width := 1
	for _, v := range values {
		width = max(width, len(v))
	}
	st, err := ndt.NewFixedString(width, ndt.UTF8)
	if err != nil {
		return nil, err
	}
	arr := ndt.NewArray(st, len(values))
	for i, v := range values {
		if err := st.Set(arr.Ptr(i), v); err != nil {
			return nil, errors.Wrapf(err, "value %d", i)
		}
	}
	return arr, nil
}
