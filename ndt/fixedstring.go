package ndt

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"

	"github.com/sbl8/ndkernel/ckernel"
	"github.com/sbl8/ndkernel/eval"
	"github.com/sbl8/ndkernel/kernels"
)

// Encoding is the character encoding of a fixed-size string.
type Encoding uint8

const (
	ASCII Encoding = iota
	UTF8
	UTF16
	UTF32
	UCS2
)

var encodingNames = [...]string{ASCII: "ascii", UTF8: "utf8", UTF16: "utf16", UTF32: "utf32", UCS2: "ucs2"}

func (e Encoding) String() string {
	if int(e) < len(encodingNames) {
		return encodingNames[e]
	}
	return fmt.Sprintf("Encoding(%d)", uint8(e))
}

// ParseEncoding maps an encoding name to its value.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "")) {
	case "ascii", "usascii":
		return ASCII, nil
	case "utf8":
		return UTF8, nil
	case "utf16":
		return UTF16, nil
	case "utf32":
		return UTF32, nil
	case "ucs2", "ucs2le", "ucs2be":
		return UCS2, nil
	}
	return 0, &TypeError{Reason: fmt.Sprintf("unrecognized string encoding %q", s)}
}

// UnitSize is the size of one code unit in bytes.
func (e Encoding) UnitSize() int {
	switch e {
	case UTF16, UCS2:
		return 2
	case UTF32:
		return 4
	}
	return 1
}

func (e Encoding) codec() encoding.Encoding {
	switch e {
	case UTF16, UCS2:
		if cpu.IsBigEndian {
			return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
		}
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case UTF32:
		if cpu.IsBigEndian {
			return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)
		}
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
	}
	return nil
}

// decode converts raw code units, stopping at the first NUL unit, to UTF-8.
func (e Encoding) decode(raw []byte) (string, error) {
	u := e.UnitSize()
	n := len(raw) - len(raw)%u
	for i := 0; i < n; i += u {
		zero := true
		for _, c := range raw[i : i+u] {
			if c != 0 {
				zero = false
				break
			}
		}
		if zero {
			n = i
			break
		}
	}
	raw = raw[:n]
	switch e {
	case ASCII:
		for _, c := range raw {
			if c >= 0x80 {
				return "", errors.Errorf("non-ascii byte %#x", c)
			}
		}
		return string(raw), nil
	case UTF8:
		if !utf8.Valid(raw) {
			return "", errors.New("invalid utf-8 data")
		}
		return string(raw), nil
	}
	out, err := e.codec().NewDecoder().Bytes(raw)
	return string(out), err
}

// encode converts s to code units of e.
func (e Encoding) encode(s string) ([]byte, error) {
	switch e {
	case ASCII:
		for i := 0; i < len(s); i++ {
			if s[i] >= 0x80 {
				return nil, errors.Errorf("string %q is not ascii", s)
			}
		}
		return []byte(s), nil
	case UTF8:
		return []byte(s), nil
	case UCS2:
		for _, r := range s {
			if r > 0xFFFF {
				return nil, errors.Errorf("code point %U is outside ucs2", r)
			}
		}
	}
	return e.codec().NewEncoder().Bytes([]byte(s))
}

// truncate cuts encoded data to at most n bytes on a character boundary.
func (e Encoding) truncate(data []byte, n int) []byte {
	if len(data) <= n {
		return data
	}
	switch e {
	case UTF8:
		for n > 0 && !utf8.RuneStart(data[n]) {
			n--
		}
	case UTF16:
		n -= n % 2
		// Do not split a surrogate pair.
		if n >= 2 {
			hi := uint16(data[n-2]) | uint16(data[n-1])<<8
			if cpu.IsBigEndian {
				hi = uint16(data[n-1]) | uint16(data[n-2])<<8
			}
			if hi >= 0xD800 && hi < 0xDC00 {
				n -= 2
			}
		}
	default:
		n -= n % e.UnitSize()
	}
	return data[:n]
}

// FixedString is a string of a fixed number of code units, NUL padded.
type FixedString struct {
	typ
	length   int
	encoding Encoding
}

// NewFixedString returns a string type holding length code units of enc.
func NewFixedString(length int, enc Encoding) (*FixedString, error) {
	if length <= 0 {
		return nil, typeErrorf("fixed_string", "length %d must be positive", length)
	}
	if int(enc) >= len(encodingNames) {
		return nil, typeErrorf("fixed_string", "unknown encoding %s", enc)
	}
	return &FixedString{length: length, encoding: enc}, nil
}

func (t *FixedString) ID() TypeID          { return FixedStringID }
func (t *FixedString) Kind() Kind          { return StringKind }
func (t *FixedString) DataSize() int       { return t.length * t.encoding.UnitSize() }
func (t *FixedString) DataAlignment() int  { return t.encoding.UnitSize() }
func (t *FixedString) Flags() Flags        { return FlagScalar | FlagZeroInit }
func (t *FixedString) Encoding() Encoding  { return t.encoding }
func (t *FixedString) Length() int         { return t.length }

func (t *FixedString) String() string {
	return fmt.Sprintf("string[%d, '%s']", t.length, t.encoding)
}

// Get decodes the string stored at data.
func (t *FixedString) Get(data unsafe.Pointer) (string, error) {
	return t.encoding.decode(unsafe.Slice((*byte)(data), t.DataSize()))
}

// Set encodes s into data, failing if it does not fit.
func (t *FixedString) Set(data unsafe.Pointer, s string) error {
	return storeString(t.encoding, unsafe.Slice((*byte)(data), t.DataSize()), s, eval.Inexact)
}

func (t *FixedString) printData(_ Arrmeta, data unsafe.Pointer) string {
	s, err := t.Get(data)
	if err != nil {
		return "<invalid " + t.String() + ">"
	}
	return strconv.Quote(s)
}

func storeString(enc Encoding, dst []byte, s string, mode eval.ErrorMode) error {
	data, err := enc.encode(s)
	if err != nil {
		return &kernels.ValueError{Kind: kernels.KindInvalid, Value: strconv.Quote(s), Detail: err.Error()}
	}
	if len(data) > len(dst) {
		if mode != eval.None {
			return &kernels.ValueError{Kind: kernels.KindOverflow, Value: strconv.Quote(s),
				Detail: fmt.Sprintf("string %q is too large for %d bytes of %s", s, len(dst), enc)}
		}
		data = enc.truncate(data, len(dst))
	}
	n := copy(dst, data)
	clear(dst[n:])
	return nil
}

// stringView is the pointer-free description of a FixedString in kernel state.
type stringView struct {
	Enc  int64
	Size int64
}

func viewOf(t *FixedString) stringView {
	return stringView{Enc: int64(t.encoding), Size: int64(t.DataSize())}
}

func (v stringView) get(p unsafe.Pointer) (string, error) {
	return Encoding(v.Enc).decode(unsafe.Slice((*byte)(p), v.Size))
}

func (v stringView) set(p unsafe.Pointer, s string, mode eval.ErrorMode) error {
	return storeString(Encoding(v.Enc), unsafe.Slice((*byte)(p), v.Size), s, mode)
}

type stringAssignState struct {
	ckernel.Prefix
	Dst, Src stringView
	Mode     int64
	Builtin  int64
}

func (t *FixedString) makeAssignment(b *ckernel.Builder, off int, a *assignArgs) (int, error) {
	dst, dok := a.dst.(*FixedString)
	src, sok := a.src.(*FixedString)
	switch {
	case dok && sok:
		if Equal(dst, src) {
			return podCopy(b, off, dst, dst.DataAlignment(), a.req)
		}
		k, end := ckernel.Place[stringAssignState](b, off)
		st := ckernel.State[stringAssignState](k)
		st.Dst, st.Src, st.Mode = viewOf(dst), viewOf(src), int64(a.mode)
		return end, k.SetExprFunction(a.req, assignStringString, nil)
	case sok:
		if db, ok := a.dst.(*Builtin); ok {
			k, end := ckernel.Place[stringAssignState](b, off)
			st := ckernel.State[stringAssignState](k)
			st.Src, st.Mode, st.Builtin = viewOf(src), int64(a.mode), int64(db.id)
			return end, k.SetExprFunction(a.req, parseBuiltin, nil)
		}
	case dok:
		if sb, ok := a.src.(*Builtin); ok {
			k, end := ckernel.Place[stringAssignState](b, off)
			st := ckernel.State[stringAssignState](k)
			st.Dst, st.Mode, st.Builtin = viewOf(dst), int64(a.mode), int64(sb.id)
			return end, k.SetExprFunction(a.req, formatBuiltin, nil)
		}
	}
	return off, errNoPath
}

func assignStringString(dst unsafe.Pointer, src []unsafe.Pointer, self ckernel.Kernel) error {
	st := ckernel.State[stringAssignState](self)
	s, err := st.Src.get(src[0])
	if err != nil {
		return &kernels.ValueError{Kind: kernels.KindInvalid, Detail: err.Error()}
	}
	return st.Dst.set(dst, s, eval.ErrorMode(st.Mode))
}

func parseBuiltin(dst unsafe.Pointer, src []unsafe.Pointer, self ckernel.Kernel) error {
	st := ckernel.State[stringAssignState](self)
	s, err := st.Src.get(src[0])
	if err != nil {
		return &kernels.ValueError{Kind: kernels.KindInvalid, Detail: err.Error()}
	}
	return ParseBuiltin(kernels.BuiltinID(st.Builtin), dst, s, eval.ErrorMode(st.Mode))
}

// ParseBuiltin parses s as a value of builtin type id into dst.
func ParseBuiltin(id kernels.BuiltinID, dst unsafe.Pointer, s string, mode eval.ErrorMode) error {
	s = strings.TrimSpace(s)
	var buf [2]uint64
	p := unsafe.Pointer(&buf)
	var from kernels.BuiltinID
	var perr error

	switch {
	case id == kernels.Bool:
		switch strings.ToLower(s) {
		case "true", "t", "yes", "y", "1":
			*(*bool)(p) = true
		case "false", "f", "no", "n", "0", "":
		default:
			perr = errors.New("not a boolean")
		}
		from = kernels.Bool
	case id.IsSigned():
		var v int64
		if v, perr = strconv.ParseInt(s, 10, 64); perr == nil {
			*(*int64)(p), from = v, kernels.Int64
			break
		}
		var f float64
		if f, perr = strconv.ParseFloat(s, 64); perr == nil {
			*(*float64)(p), from = f, kernels.Float64
		}
	case id.IsUnsigned():
		var v uint64
		if v, perr = strconv.ParseUint(s, 10, 64); perr == nil {
			*(*uint64)(p), from = v, kernels.Uint64
			break
		}
		var f float64
		if f, perr = strconv.ParseFloat(s, 64); perr == nil {
			*(*float64)(p), from = f, kernels.Float64
		}
	case id.IsFloat():
		var f float64
		f, perr = strconv.ParseFloat(s, 64)
		*(*float64)(p), from = f, kernels.Float64
	default:
		var c complex128
		c, perr = strconv.ParseComplex(s, 128)
		*(*complex128)(p), from = c, kernels.Complex128
	}
	if perr != nil {
		return &kernels.ValueError{Kind: kernels.KindParse, Dst: id.String(), Value: strconv.Quote(s),
			Detail: fmt.Sprintf("cannot parse %q as %s", s, id)}
	}
	fn, err := kernels.AssignFunc(id, from, mode)
	if err != nil {
		return err
	}
	return fn(dst, []unsafe.Pointer{p}, ckernel.Kernel{})
}

func formatBuiltin(dst unsafe.Pointer, src []unsafe.Pointer, self ckernel.Kernel) error {
	st := ckernel.State[stringAssignState](self)
	return st.Dst.set(dst, kernels.FormatValue(kernels.BuiltinID(st.Builtin), src[0]), eval.ErrorMode(st.Mode))
}

type stringCompareState struct {
	ckernel.Prefix
	A, B stringView
	Op   int64
}

func (t *FixedString) makeComparison(b *ckernel.Builder, off int, c *compareArgs) (int, error) {
	sa, aok := c.a.(*FixedString)
	sb, bok := c.b.(*FixedString)
	if !aok || !bok {
		return off, errNoPath
	}
	if Equal(sa, sb) && sa.encoding != UTF16 && sa.encoding != UCS2 && sa.encoding != UTF32 {
		// Byte order equals code point order for ascii and utf-8.
		return makeBytesComparison(b, off, sa.DataSize(), c.op)
	}
	k, end := ckernel.Place[stringCompareState](b, off)
	st := ckernel.State[stringCompareState](k)
	st.A, st.B, st.Op = viewOf(sa), viewOf(sb), int64(c.op)
	k.SetFunction(ckernel.PredicateFunc(compareStrings))
	return end, nil
}

func compareStrings(src []unsafe.Pointer, self ckernel.Kernel) int {
	st := ckernel.State[stringCompareState](self)
	a, errA := st.A.get(src[0])
	b, errB := st.B.get(src[1])
	if errA != nil || errB != nil {
		return boolInt(kernels.Comparison(st.Op) == kernels.NotEqual)
	}
	return boolInt(orderHolds(kernels.Comparison(st.Op), strings.Compare(a, b)))
}
