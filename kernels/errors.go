package kernels

import "fmt"

// ValueErrorKind classifies a value-time failure.
type ValueErrorKind uint8

const (
	KindOverflow ValueErrorKind = iota + 1
	KindFractional
	KindInexact
	KindInvalid
	KindParse
)

func (k ValueErrorKind) String() string {
	switch k {
	case KindOverflow:
		return "overflow"
	case KindFractional:
		return "fractional part lost"
	case KindInexact:
		return "inexact value"
	case KindInvalid:
		return "invalid value"
	case KindParse:
		return "parse error"
	}
	return fmt.Sprintf("ValueErrorKind(%d)", uint8(k))
}

// ValueError reports a kernel failing on a particular value. Kernels return
// it from their call functions; it never escapes as a panic.
type ValueError struct {
	Kind  ValueErrorKind
	Src   string
	Dst   string
	Value string
	// Detail replaces the default message when set.
	Detail string
}

func (e *ValueError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Src == "" {
		return fmt.Sprintf("%s assigning value %s to %s", e.Kind, e.Value, e.Dst)
	}
	return fmt.Sprintf("%s while assigning %s value %s to %s", e.Kind, e.Src, e.Value, e.Dst)
}

func valueErr(kind ValueErrorKind, v scalar) *ValueError {
	return &ValueError{Kind: kind, Value: v.String()}
}
