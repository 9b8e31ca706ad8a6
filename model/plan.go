// Package model defines the plan files executed by ndkrun.
//
// A plan names a set of input arrays, given as text values of a declared
// type, followed by steps that convert or compare them. Every step produces
// a new named array, so later steps can consume the results of earlier ones.
//
// Key data structures:
//   - Plan: the whole document, with an optional evaluation context
//   - TypeSpec: a type written either as a bare name or as a mapping
//   - ArraySpec: an input array and its values
//   - Step: one assign or compare operation
//
// Plans are YAML documents:
//
//	context:
//	  errmode: overflow
//	arrays:
//	  - name: when
//	    type: {string: {length: 16}}
//	    values: ["2013-12-30", "2000-02-29"]
//	steps:
//	  - op: assign
//	    out: year
//	    src: when
//	    type: int32
//	    via: [{convert: date}, {property: year}]
//
// Plans are validated here and lowered to executable programs by the
// compiler package.
package model

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Plan is a list of array operations.
type Plan struct {
	Name    string      `yaml:"name,omitempty"`
	Context ContextSpec `yaml:"context,omitempty"`
	Arrays  []ArraySpec `yaml:"arrays"`
	Steps   []Step      `yaml:"steps"`
}

// ContextSpec mirrors the fields of eval.Context. Empty fields keep the
// defaults.
type ContextSpec struct {
	ErrorMode     string `yaml:"errmode,omitempty"`
	DateOrder     string `yaml:"date_order,omitempty"`
	CenturyWindow int    `yaml:"century_window,omitempty"`
	ChainBatch    int    `yaml:"chain_batch,omitempty"`
}

// ArraySpec declares an input array.
type ArraySpec struct {
	Name   string   `yaml:"name"`
	Type   TypeSpec `yaml:"type"`
	Values []string `yaml:"values"`
}

// Step operations.
const (
	OpAssign  = "assign"
	OpCompare = "compare"
)

// Step is one operation producing the array Out.
type Step struct {
	Op  string `yaml:"op"`
	Out string `yaml:"out"`
	Src string `yaml:"src"`
	// Type is the element type of an assign result.
	Type *TypeSpec `yaml:"type,omitempty"`
	// Via reads Src through a sequence of expression types before the
	// operation runs.
	Via []ViewSpec `yaml:"via,omitempty"`
	// ErrorMode overrides the context's mode for an assign.
	ErrorMode string `yaml:"errmode,omitempty"`
	// With and Cmp are the right operand and relation of a compare.
	With string `yaml:"with,omitempty"`
	Cmp  string `yaml:"cmp,omitempty"`
}

// ViewSpec is one expression layer: a conversion to another type, a
// property of the current value, or a byte-swapped reading of it.
type ViewSpec struct {
	Convert  *TypeSpec `yaml:"convert,omitempty"`
	Property string    `yaml:"property,omitempty"`
	ByteSwap bool      `yaml:"byteswap,omitempty"`
}

// TypeSpec describes a type. The short form is a bare name such as int32,
// date or datetime; everything else is a mapping with exactly one of the
// compound fields set.
type TypeSpec struct {
	Name string `yaml:"name,omitempty"`
	// TZ applies to time and datetime.
	TZ          string           `yaml:"tz,omitempty"`
	String      *StringSpec      `yaml:"string,omitempty"`
	Bytes       *BytesSpec       `yaml:"bytes,omitempty"`
	Struct      []FieldSpec      `yaml:"struct,omitempty"`
	Dim         *DimSpec         `yaml:"dim,omitempty"`
	Categorical *CategoricalSpec `yaml:"categorical,omitempty"`
	ByteSwap    *TypeSpec        `yaml:"byteswap,omitempty"`
	Var         string           `yaml:"var,omitempty"`
}

type StringSpec struct {
	Length   int    `yaml:"length"`
	Encoding string `yaml:"encoding,omitempty"`
}

type BytesSpec struct {
	Size  int `yaml:"size"`
	Align int `yaml:"align,omitempty"`
}

type FieldSpec struct {
	Name string   `yaml:"name"`
	Type TypeSpec `yaml:"type"`
}

type DimSpec struct {
	Size int      `yaml:"size"`
	Of   TypeSpec `yaml:"of"`
}

// CategoricalSpec lists the categories as text of type Of. With Factor set,
// duplicates are merged and the categories sorted instead of rejected.
type CategoricalSpec struct {
	Of     TypeSpec `yaml:"of"`
	Values []string `yaml:"values"`
	Factor bool     `yaml:"factor,omitempty"`
}

// UnmarshalYAML accepts a scalar name or the mapping form.
func (t *TypeSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*t = TypeSpec{Name: node.Value}
		return nil
	}
	type plain TypeSpec
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*t = TypeSpec(p)
	return nil
}

// MarshalYAML writes plain names in the short form.
func (t TypeSpec) MarshalYAML() (any, error) {
	if t.compounds() == 0 && t.TZ == "" {
		return t.Name, nil
	}
	type plain TypeSpec
	return plain(t), nil
}

// compounds counts the compound fields that are set.
func (t *TypeSpec) compounds() int {
	n := 0
	for _, set := range []bool{
		t.String != nil, t.Bytes != nil, t.Struct != nil, t.Dim != nil,
		t.Categorical != nil, t.ByteSwap != nil, t.Var != "",
	} {
		if set {
			n++
		}
	}
	return n
}

// Validate checks the shape of a type description; names are resolved by
// the compiler.
func (t *TypeSpec) Validate() error {
	switch n := t.compounds(); {
	case n > 1:
		return fmt.Errorf("type sets %d compound forms", n)
	case n == 1 && t.Name != "":
		return fmt.Errorf("type %q also sets a compound form", t.Name)
	case n == 0 && t.Name == "":
		return fmt.Errorf("empty type")
	}
	for _, f := range t.Struct {
		if err := f.Type.Validate(); err != nil {
			return errors.Wrapf(err, "field %q", f.Name)
		}
	}
	if t.Dim != nil {
		return t.Dim.Of.Validate()
	}
	if t.Categorical != nil {
		return t.Categorical.Of.Validate()
	}
	if t.ByteSwap != nil {
		return t.ByteSwap.Validate()
	}
	return nil
}

// Validate checks plan consistency: array names are unique and every step
// only refers to arrays defined before it.
func (p *Plan) Validate() error {
	if len(p.Arrays) == 0 {
		return fmt.Errorf("plan has no arrays")
	}

	defined := make(map[string]bool)
	define := func(name string) error {
		if name == "" {
			return fmt.Errorf("missing array name")
		}
		if defined[name] {
			return fmt.Errorf("duplicate array name: %q", name)
		}
		defined[name] = true
		return nil
	}
	use := func(name string) error {
		if !defined[name] {
			return fmt.Errorf("reference to undefined array %q", name)
		}
		return nil
	}

	for i := range p.Arrays {
		a := &p.Arrays[i]
		if err := define(a.Name); err != nil {
			return errors.Wrapf(err, "array %d", i)
		}
		if err := a.Type.Validate(); err != nil {
			return errors.Wrapf(err, "array %q", a.Name)
		}
	}

	for i := range p.Steps {
		s := &p.Steps[i]
		if err := s.validate(use); err != nil {
			return errors.Wrapf(err, "step %d (%s)", i, s.Out)
		}
		if err := define(s.Out); err != nil {
			return errors.Wrapf(err, "step %d", i)
		}
	}
	return nil
}

func (s *Step) validate(use func(string) error) error {
	if err := use(s.Src); err != nil {
		return err
	}
	for _, v := range s.Via {
		if err := v.validate(); err != nil {
			return err
		}
	}
	switch s.Op {
	case OpAssign:
		if s.Type == nil {
			return fmt.Errorf("assign needs a result type")
		}
		if s.With != "" || s.Cmp != "" {
			return fmt.Errorf("assign takes no comparison operand")
		}
		return s.Type.Validate()
	case OpCompare:
		if s.Cmp == "" {
			return fmt.Errorf("compare needs a relation")
		}
		if s.Type != nil || s.ErrorMode != "" {
			return fmt.Errorf("compare takes no result type or error mode")
		}
		return use(s.With)
	}
	return fmt.Errorf("unknown op %q", s.Op)
}

func (v *ViewSpec) validate() error {
	n := 0
	if v.Convert != nil {
		n++
		if err := v.Convert.Validate(); err != nil {
			return err
		}
	}
	if v.Property != "" {
		n++
	}
	if v.ByteSwap {
		n++
	}
	if n != 1 {
		return fmt.Errorf("view must set exactly one of convert, property, byteswap")
	}
	return nil
}

// Parse decodes and validates a plan. Unknown keys are rejected.
func Parse(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, errors.Wrap(err, "decode plan")
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid plan")
	}
	return &p, nil
}

// Load reads a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return p, nil
}

// Marshal encodes the plan as YAML.
func (p *Plan) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}
