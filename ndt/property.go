package ndt

import (
	"fmt"
	"unsafe"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/eval"
)

// propDef is one element-wise property of a type. get reads the owner's
// value at src into dst; set, when present, writes the owner's value at dst.
type propDef struct {
	name string
	typ  func(owner Type) Type
	get  func(dst, src unsafe.Pointer, mode eval.ErrorMode) error
	set  func(dst, src unsafe.Pointer, mode eval.ErrorMode) error
}

var propTables [CategoricalID + 1][]propDef

func registerProperties(id TypeID, defs ...propDef) {
	propTables[id] = append(propTables[id], defs...)
}

func fixedType(t Type) func(Type) Type { return func(Type) Type { return t } }

func lookupProperty(owner Type, name string) (int, bool) {
	for i, d := range propTables[owner.ID()] {
		if d.name == name {
			return i, true
		}
	}
	return 0, false
}

// Properties lists the element-wise property names of t.
func Properties(t Type) []string {
	defs := propTables[ValueType(t).ID()]
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.name
	}
	return names
}

// Property is an expression type exposing one property of its operand's
// value as a value of its own.
type Property struct {
	typ
	operand Type
	name    string
	index   int
	value   Type
}

// NewProperty returns the type of property name of operand.
func NewProperty(operand Type, name string) (*Property, error) {
	owner := ValueType(operand)
	i, ok := lookupProperty(owner, name)
	if !ok {
		return nil, &PropertyError{Type: owner, Name: name}
	}
	return &Property{
		operand: operand,
		name:    name,
		index:   i,
		value:   propTables[owner.ID()][i].typ(owner),
	}, nil
}

func (t *Property) ID() TypeID         { return PropertyID }
func (t *Property) Kind() Kind         { return ExpressionKind }
func (t *Property) DataSize() int      { return t.operand.DataSize() }
func (t *Property) DataAlignment() int { return t.operand.DataAlignment() }
func (t *Property) Flags() Flags       { return t.operand.Flags() }
func (t *Property) ArrmetaSize() int   { return t.operand.ArrmetaSize() }
func (t *Property) ValueType() Type    { return t.value }
func (t *Property) OperandType() Type  { return t.operand }
func (t *Property) Name() string       { return t.name }

// Writable reports whether values can be assigned through the property.
func (t *Property) Writable() bool {
	return t.def().set != nil
}

func (t *Property) String() string {
	return fmt.Sprintf("property[name=%s, operand=%s]", t.name, t.operand)
}

func (t *Property) def() *propDef {
	return &propTables[ValueType(t.operand).ID()][t.index]
}

type propState struct {
	ckernel.Prefix
	Owner int64
	Index int64
	Mode  int64
}

func (t *Property) makeOperandToValue(b *ckernel.Builder, off int, req ckernel.Request, ectx *eval.Context) (int, error) {
	return t.makeKernel(b, off, req, ectx, propGet)
}

func (t *Property) makeValueToOperand(b *ckernel.Builder, off int, req ckernel.Request, ectx *eval.Context) (int, error) {
	if !t.Writable() {
		return off, &PropertyError{Type: ValueType(t.operand), Name: t.name, ReadOnly: true}
	}
	return t.makeKernel(b, off, req, ectx, propSet)
}

func (t *Property) makeKernel(b *ckernel.Builder, off int, req ckernel.Request, ectx *eval.Context, fn ckernel.SingleFunc) (int, error) {
	k, end := ckernel.Place[propState](b, off)
	st := ckernel.State[propState](k)
	st.Owner, st.Index, st.Mode = int64(ValueType(t.operand).ID()), int64(t.index), int64(ectx.Resolve(eval.Default))
	return end, k.SetExprFunction(req, fn, nil)
}

func propGet(dst unsafe.Pointer, src []unsafe.Pointer, self ckernel.Kernel) error {
	st := ckernel.State[propState](self)
	return propTables[st.Owner][st.Index].get(dst, src[0], eval.ErrorMode(st.Mode))
}

func propSet(dst unsafe.Pointer, src []unsafe.Pointer, self ckernel.Kernel) error {
	st := ckernel.State[propState](self)
	return propTables[st.Owner][st.Index].set(dst, src[0], eval.ErrorMode(st.Mode))
}

// viaStructProperty routes an assignment between owner and a struct
// through owner's "struct" property.
func viaStructProperty(b *ckernel.Builder, off int, a *assignArgs, owner Type) (int, error) {
	p, err := NewProperty(owner, "struct")
	if err != nil {
		return off, err
	}
	if a.dst == owner {
		return makeAssignment(b, off, a.with(p, a.dstMeta, a.src, a.srcMeta, a.req))
	}
	return makeAssignment(b, off, a.with(a.dst, a.dstMeta, p, a.srcMeta, a.req))
}
