package ndt

import (
	"fmt"

	"golang.org/x/sys/cpu"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/eval"
	"github.com/sbl8/ndkernel/kernels"
)

// Convert is an expression type whose operand is stored as one type and
// read as another, converting with a fixed error mode.
type Convert struct {
	typ
	value   Type
	operand Type
	mode    eval.ErrorMode
}

// NewConvert returns a type presenting operand as value.
func NewConvert(value, operand Type, mode eval.ErrorMode) (*Convert, error) {
	if IsExpression(value) {
		return nil, typeErrorf("convert", "value type %s must not be an expression", value)
	}
	if sym(value) || sym(operand) {
		return nil, typeErrorf("convert", "cannot convert symbolic type %s", symbolic(value, operand))
	}
	return &Convert{value: value, operand: operand, mode: mode}, nil
}

func (t *Convert) ID() TypeID                { return ConvertID }
func (t *Convert) Kind() Kind                { return ExpressionKind }
func (t *Convert) DataSize() int             { return t.operand.DataSize() }
func (t *Convert) DataAlignment() int        { return t.operand.DataAlignment() }
func (t *Convert) Flags() Flags              { return t.operand.Flags() }
func (t *Convert) ArrmetaSize() int          { return t.operand.ArrmetaSize() }
func (t *Convert) ValueType() Type           { return t.value }
func (t *Convert) OperandType() Type         { return t.operand }
func (t *Convert) ErrorMode() eval.ErrorMode { return t.mode }

func (t *Convert) String() string {
	if t.mode == eval.Default {
		return fmt.Sprintf("convert[to=%s, from=%s]", t.value, t.operand)
	}
	return fmt.Sprintf("convert[to=%s, from=%s, errmode=%s]", t.value, t.operand, t.mode)
}

func (t *Convert) makeOperandToValue(b *ckernel.Builder, off int, req ckernel.Request, ectx *eval.Context) (int, error) {
	return makeAssignment(b, off, &assignArgs{
		dst: t.value, src: ValueType(t.operand), req: req, mode: ectx.Resolve(t.mode), ectx: eval.OrDefault(ectx),
	})
}

func (t *Convert) makeValueToOperand(b *ckernel.Builder, off int, req ckernel.Request, ectx *eval.Context) (int, error) {
	return makeAssignment(b, off, &assignArgs{
		dst: ValueType(t.operand), src: t.value, req: req, mode: ectx.Resolve(t.mode), ectx: eval.OrDefault(ectx),
	})
}

// ByteSwap is an expression type storing a builtin value in the opposite
// byte order. Its operand is fixed_bytes of the value's size and alignment.
type ByteSwap struct {
	typ
	value   Type
	operand Type
}

// NewByteSwap returns the byte-swapped storage of value.
func NewByteSwap(value Type) (*ByteSwap, error) {
	bt, ok := value.(*Builtin)
	if !ok {
		return nil, typeErrorf("byteswap", "value type %s must be a builtin", value)
	}
	if bt.DataSize() == 1 || bt.id == kernels.Bool {
		return nil, typeErrorf("byteswap", "%s has no byte order", value)
	}
	op, err := NewFixedBytes(bt.DataSize(), bt.DataAlignment())
	if err != nil {
		return nil, err
	}
	return &ByteSwap{value: value, operand: op}, nil
}

func (t *ByteSwap) ID() TypeID         { return ByteSwapID }
func (t *ByteSwap) Kind() Kind         { return ExpressionKind }
func (t *ByteSwap) DataSize() int      { return t.value.DataSize() }
func (t *ByteSwap) DataAlignment() int { return t.value.DataAlignment() }
func (t *ByteSwap) Flags() Flags       { return t.value.Flags() }
func (t *ByteSwap) ValueType() Type    { return t.value }
func (t *ByteSwap) OperandType() Type  { return t.operand }
func (t *ByteSwap) String() string     { return fmt.Sprintf("byteswap[%s]", t.value) }

func (t *ByteSwap) makeSwap(b *ckernel.Builder, off int, req ckernel.Request) (int, error) {
	if t.value.Kind() == ComplexKind {
		return kernels.MakePairwiseByteSwap(b, off, t.value.DataSize(), req)
	}
	return kernels.MakeByteSwap(b, off, t.value.DataSize(), req)
}

func (t *ByteSwap) makeOperandToValue(b *ckernel.Builder, off int, req ckernel.Request, _ *eval.Context) (int, error) {
	return t.makeSwap(b, off, req)
}

func (t *ByteSwap) makeValueToOperand(b *ckernel.Builder, off int, req ckernel.Request, _ *eval.Context) (int, error) {
	return t.makeSwap(b, off, req)
}

// LittleEndian returns the type storing values of t in little-endian order.
func LittleEndian(t Type) (Type, error) {
	if !cpu.IsBigEndian {
		return t, nil
	}
	return swappedIfMultiByte(t)
}

// BigEndian returns the type storing values of t in big-endian order.
func BigEndian(t Type) (Type, error) {
	if cpu.IsBigEndian {
		return t, nil
	}
	return swappedIfMultiByte(t)
}

func swappedIfMultiByte(t Type) (Type, error) {
	if t.DataSize() <= 1 {
		return t, nil
	}
	return NewByteSwap(t)
}
