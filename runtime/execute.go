package runtime

import (
	"context"

	"github.com/pkg/errors"

	"github.com/sbl8/ndkernel/compiler"
	"github.com/sbl8/ndkernel/ndt"
)

// Result holds the arrays a program defined, in definition order.
type Result struct {
	Names  []string
	Arrays map[string]*ndt.Array
}

func (r *Result) set(name string, arr *ndt.Array) {
	r.Names = append(r.Names, name)
	r.Arrays[name] = arr
}

// Execute runs a compiled program. Kernels are built with the engine's
// context, so engines for a program are normally created with
// EngineOptions.Context set to prog.Context.
func (e *Engine) Execute(ctx context.Context, prog *compiler.Program) (*Result, error) {
	res := &Result{Arrays: make(map[string]*ndt.Array)}
	for _, in := range prog.Inputs {
		arr, err := e.FromStrings(ctx, in.Type, in.Values)
		if err != nil {
			return nil, errors.Wrapf(err, "array %q", in.Name)
		}
		res.set(in.Name, arr)
	}

	for i := range prog.Instrs {
		in := &prog.Instrs[i]
		src := res.Arrays[in.Src]
		if in.View != nil {
			view := *src
			view.Type = in.View
			src = &view
		}

		var out *ndt.Array
		var err error
		switch in.Op {
		case compiler.OpAssign:
			out, err = e.Convert(ctx, in.Type, src)
		case compiler.OpCompare:
			var bools []bool
			if bools, err = e.Compare(ctx, in.Cmp, src, res.Arrays[in.With]); err == nil {
				out = boolArray(bools)
			}
		default:
			err = errors.Errorf("unknown opcode %s", in.Op)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "step %d (%s)", i, in.Out)
		}
		res.set(in.Out, out)
	}
	return res, nil
}

func boolArray(values []bool) *ndt.Array {
	arr := ndt.NewArray(ndt.BoolType, len(values))
	for i, v := range values {
		*(*bool)(arr.Ptr(i)) = v
	}
	return arr
}
