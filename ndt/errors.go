package ndt

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/sbl8/ndkernel/kernels"
)

// ErrUnsupported marks a conversion that is recognised but not implemented.
var ErrUnsupported = errors.New("not supported")

// errNoPath is returned by a type's kernel hook when it cannot handle the
// other operand; the factory then tries the other side.
var errNoPath = errors.New("no kernel path")

// TypeError reports an invalid type construction.
type TypeError struct {
	Type   string
	Reason string
}

func (e *TypeError) Error() string {
	if e.Type == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s type: %s", e.Type, e.Reason)
}

func typeErrorf(typeName, format string, args ...any) error {
	return &TypeError{Type: typeName, Reason: fmt.Sprintf(format, args...)}
}

// AssignError reports a pair of types with no assignment kernel.
type AssignError struct {
	Dst, Src Type
	// Reason replaces the default message when set.
	Reason string
	Err    error
}

func (e *AssignError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	msg := fmt.Sprintf("cannot assign from %s to %s", e.Src, e.Dst)
	if e.Err != nil && e.Err != errNoPath {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AssignError) Unwrap() error { return e.Err }

// NotComparableError reports a pair of types with no comparison kernel.
type NotComparableError struct {
	A, B Type
	Op   kernels.Comparison
}

func (e *NotComparableError) Error() string {
	return fmt.Sprintf("cannot compare values of types %s and %s using comparison operator %s", e.A, e.B, e.Op)
}

// DuplicateCategoryError reports a repeated value while building a categorical.
type DuplicateCategoryError struct {
	Value string
}

func (e *DuplicateCategoryError) Error() string {
	return fmt.Sprintf("categories must be unique: category value %s appears more than once", e.Value)
}

// PropertyError reports an unknown or read-only property.
type PropertyError struct {
	Type     Type
	Name     string
	ReadOnly bool
}

func (e *PropertyError) Error() string {
	if e.ReadOnly {
		return fmt.Sprintf("property %q of type %s is read-only", e.Name, e.Type)
	}
	return fmt.Sprintf("type %s does not have a kernel for property %q", e.Type, e.Name)
}

// UnrecognizedCategoryError is returned at value time when a value is not
// one of a categorical's categories.
type UnrecognizedCategoryError struct {
	Value string
}

func (e *UnrecognizedCategoryError) Error() string {
	return fmt.Sprintf("Unrecognized category value %s", e.Value)
}
