// Package yang is the seam between confd's request-handling engine and a
// YANG schema/data-tree representation. In a production deployment this
// would be a thin wrapper around an external schema library (libyang,
// goyang, or similar); here it is a small, self-contained implementation
// that is just complete enough to exercise the XPath Edit Engine, the
// commit pipeline's validation phases, and the on-disk serialization
// format described in the wire contract. Callers outside this package
// never see a third-party schema type, only Module/Tree/Node/Value.
package yang

import (
	"fmt"
	"strconv"
)

// Kind identifies the wire/value type of a leaf, per spec §4.6.
type Kind uint8

const (
	KindInt8 Kind = iota
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindDecimal64
	KindBool
	KindString
	KindBinary
	KindBits
	KindEnum
	KindIdentityRef
	KindEmpty
	KindLeafRef
	KindUnion
)

func (k Kind) String() string {
	names := [...]string{
		"int8", "int16", "int32", "int64",
		"uint8", "uint16", "uint32", "uint64",
		"decimal64", "boolean", "string", "binary",
		"bits", "enumeration", "identityref", "empty", "leafref", "union",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// TypeSpec describes a leaf's YANG type, including the member types of a
// union (tried in declared order, per spec §4.6) and the resolved
// underlying type of a leafref.
type TypeSpec struct {
	Kind        Kind
	Scale       uint8    // decimal64 fraction-digits
	EnumNames   []string // enumeration / bits member names
	Union       []*TypeSpec
	LeafRefType *TypeSpec
}

// Value is a tagged union over a YANG leaf value plus the XPath it was
// read from and whether it reflects a schema default rather than an
// explicitly stored value (spec §6, "Value").
type Value struct {
	Kind     Kind
	Int      int64
	Uint     uint64
	Dec64    int64 // unscaled digits; the fraction-digit count is carried in Scale
	Scale    uint8
	Bool     bool
	Str      string // string, enum name, identity name, leafref target
	Bin      []byte
	BitSet   []string

	XPath   string
	Default bool
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return fmt.Sprintf("%d", v.Int)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return fmt.Sprintf("%d", v.Uint)
	case KindDecimal64:
		return formatDecimal64(v.Dec64, v.Scale)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindBinary:
		return fmt.Sprintf("%x", v.Bin)
	case KindBits:
		out := ""
		for i, n := range v.BitSet {
			if i > 0 {
				out += " "
			}
			out += n
		}
		return out
	case KindEmpty:
		return ""
	default:
		return v.Str
	}
}

// formatDecimal64 renders decimal64's (unscaled digits, fraction-digit
// count) pair as fixed-point text, e.g. unscaled=314, scale=2 -> "3.14".
func formatDecimal64(unscaled int64, scale uint8) string {
	if scale == 0 {
		return strconv.FormatInt(unscaled, 10)
	}
	neg := unscaled < 0
	u := unscaled
	if neg {
		u = -u
	}
	digits := strconv.FormatUint(uint64(u), 10)
	for len(digits) <= int(scale) {
		digits = "0" + digits
	}
	split := len(digits) - int(scale)
	s := digits[:split] + "." + digits[split:]
	if neg {
		s = "-" + s
	}
	return s
}

func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func Int64Value(i int64) Value    { return Value{Kind: KindInt64, Int: i} }
func Uint32Value(u uint32) Value  { return Value{Kind: KindUint32, Uint: uint64(u)} }
func EmptyValue() Value           { return Value{Kind: KindEmpty} }
func EnumValue(name string) Value { return Value{Kind: KindEnum, Str: name} }
