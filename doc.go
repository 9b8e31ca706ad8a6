// Package ndkernel implements typed element conversion and comparison
// kernels for n-dimensional array data.
//
// Every element type is described by an ndt.Type. Given a destination and a
// source type, the type system builds a ckernel: a small function object laid
// out in a contiguous builder arena, made of a prefix (the call entry points
// and a destructor) followed by the kernel's own state and any child kernels.
// Kernels are built once and then called on single elements or on strided
// runs of elements, so the per element cost is one indirect call.
//
// # Architecture Overview
//
//   - Types: builtin scalars, fixed strings and bytes, dates, times and
//     datetimes, structs, fixed dimensions, and categoricals
//   - Expression types: byteswap, convert and property views that read one
//     representation through another, chained with buffered kernels
//   - Error modes: every assignment checks overflow, fractional and inexact
//     values according to the eval.Context it was built with
//   - Runtime: a worker engine that splits arrays into chunks and runs one
//     kernel per worker
//
// # Basic Usage
//
//	// Check and list a plan
//	ndkrun -check plans/dates.yaml
//
//	// Build kernels directly
//	b := ckernel.NewBuilder()
//	defer b.Close()
//	_, err := ndt.MakeAssignmentKernel(b, 0, ndt.Float64Type, nil, ndt.Int32Type, nil,
//	    ckernel.RequestSingle, eval.DefaultContext())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	src, dst := int32(7), 0.0
//	err = b.Root().CallSingle(unsafe.Pointer(&dst), unsafe.Pointer(&src))
//
// # Package Structure
//
//   - core: alignment arithmetic and C struct layout
//   - eval: error modes and the evaluation context
//   - ckernel: the kernel prefix, builder arena and scratch pool
//   - kernels: builtin assignment, comparison, byteswap and chain kernels
//   - ndt: type descriptors and the assignment and comparison factories
//   - model: YAML conversion plans
//   - compiler: plan resolution into typed, checked programs
//   - runtime: the parallel execution engine
//   - cmd: command-line tools (ndkrun, ndkperf)
package ndkernel
