package ndt

import (
	"github.com/pkg/errors"
)

// intSize is the size of the platform C int the promotion rules are
// written against.
const intSize = 4

// PromoteArithmetic returns the type arithmetic on values of a and b
// produces. Small integers promote to int32; otherwise the wider operand
// wins within a kind, and real and complex absorb integers.
func PromoteArithmetic(a, b Type) (Type, error) {
	a, b = ValueType(a), ValueType(b)
	if a.ID() == VoidID {
		return b, nil
	}
	if b.ID() == VoidID {
		return a, nil
	}
	ab, aok := a.(*Builtin)
	bb, bok := b.(*Builtin)
	if aok && bok {
		return promoteBuiltins(ab, bb), nil
	}
	if sa, ok := a.(*FixedString); ok {
		if sb, ok := b.(*FixedString); ok {
			enc := sa.encoding
			if encodingRank(sb.encoding) > encodingRank(enc) {
				enc = sb.encoding
			}
			return NewFixedString(max(sa.length, sb.length), enc)
		}
	}
	return nil, errors.Wrapf(ErrUnsupported, "type promotion of %s and %s", a, b)
}

func encodingRank(e Encoding) int {
	switch e {
	case ASCII:
		return 0
	case UTF8:
		return 1
	case UCS2:
		return 2
	case UTF16:
		return 3
	}
	return 4
}

func promoteBuiltins(a, b *Builtin) *Builtin {
	ak, bk := a.Kind(), b.Kind()
	as, bs := a.DataSize(), b.DataSize()
	wider := func() *Builtin {
		if as >= bs {
			return a
		}
		return b
	}
	atLeastInt := func(t *Builtin) *Builtin {
		if t.DataSize() >= intSize {
			return t
		}
		return Int32Type
	}
	switch ak {
	case BoolKind:
		switch bk {
		case BoolKind:
			return Int32Type
		case IntKind, UintKind:
			return atLeastInt(b)
		}
		return b
	case IntKind, UintKind:
		switch bk {
		case BoolKind:
			return atLeastInt(a)
		case IntKind, UintKind:
			if as < intSize && bs < intSize {
				return Int32Type
			}
			if ak == IntKind && bk == UintKind {
				// A signed operand only wins when strictly wider.
				if as > bs {
					return a
				}
				return b
			}
			return wider()
		}
		return b
	case RealKind:
		switch bk {
		case BoolKind, IntKind, UintKind:
			return a
		case RealKind:
			return wider()
		}
		if a.id == Float64Type.id && b.id == Complex64Type.id {
			return Complex128Type
		}
		return b
	}
	// complex
	if bk == ComplexKind {
		return wider()
	}
	if a.id == Complex64Type.id && b.id == Float64Type.id {
		return Complex128Type
	}
	return a
}
