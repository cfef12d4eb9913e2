// Package value implements the MessagePack value universe shared by every
// msgpack-RPC message: nil, bool, signed/unsigned integer, float, string,
// binary, array, map, and extension.
//
// Value is an immutable tagged union built through the constructor functions
// below (Nil, Bool, Int, ...) and inspected through the Kind-gated accessors.
// There is no exported struct literal — construct, don't assemble.
package value

// Kind identifies which alternative of the Value union is populated.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBinary
	KindArray
	KindMap
	KindExt
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindExt:
		return "ext"
	default:
		return "unknown"
	}
}

// MapEntry is a single key/value pair of a Map value. MessagePack maps are
// not restricted to string keys, so both sides are Value.
type MapEntry struct {
	Key Value
	Val Value
}

// Value is one member of the MessagePack value universe. The zero Value is
// Nil.
type Value struct {
	kind Kind

	b   bool
	i   int64
	u   uint64
	f   float64
	s   string
	bin []byte
	arr []Value
	m   []MapEntry

	extType int8
	extData []byte
}

// Nil returns the MessagePack nil value.
func Nil() Value { return Value{kind: KindNil} }

// Bool returns a MessagePack boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns a MessagePack signed integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Uint returns a MessagePack unsigned integer value.
func Uint(u uint64) Value { return Value{kind: KindUint, u: u} }

// Float returns a MessagePack floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a MessagePack string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Binary returns a MessagePack binary (bin) value.
func Binary(b []byte) Value { return Value{kind: KindBinary, bin: b} }

// Array returns a MessagePack array value.
func Array(elems ...Value) Value { return Value{kind: KindArray, arr: elems} }

// ArrayOf is like Array but takes an existing slice without copying it.
func ArrayOf(elems []Value) Value { return Value{kind: KindArray, arr: elems} }

// Map returns a MessagePack map value.
func Map(entries ...MapEntry) Value { return Value{kind: KindMap, m: entries} }

// Ext returns a MessagePack extension value with the given application type
// tag and raw payload.
func Ext(typ int8, data []byte) Value { return Value{kind: KindExt, extType: typ, extData: data} }

// Kind reports which alternative is populated.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v is the Nil value.
func (v Value) IsNil() bool { return v.kind == KindNil }

// Bool returns the boolean payload and whether v was a KindBool.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Int returns the signed integer payload and whether v was a KindInt.
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Uint returns the unsigned integer payload and whether v was a KindUint.
func (v Value) Uint() (uint64, bool) { return v.u, v.kind == KindUint }

// Float returns the floating point payload and whether v was a KindFloat.
func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat }

// Str returns the string payload and whether v was a KindString.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Bin returns the binary payload and whether v was a KindBinary.
func (v Value) Bin() ([]byte, bool) { return v.bin, v.kind == KindBinary }

// Elems returns the array payload and whether v was a KindArray.
func (v Value) Elems() ([]Value, bool) { return v.arr, v.kind == KindArray }

// Entries returns the map payload and whether v was a KindMap.
func (v Value) Entries() ([]MapEntry, bool) { return v.m, v.kind == KindMap }

// ExtType returns the extension type tag and whether v was a KindExt.
func (v Value) ExtType() (int8, bool) { return v.extType, v.kind == KindExt }

// ExtData returns the extension payload and whether v was a KindExt.
func (v Value) ExtData() ([]byte, bool) { return v.extData, v.kind == KindExt }

// Equal reports deep structural equality, used by codec round-trip tests.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindUint:
		return a.u == b.u
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindBinary:
		return bytesEqual(a.bin, b.bin)
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for i := range a.m {
			if !Equal(a.m[i].Key, b.m[i].Key) || !Equal(a.m[i].Val, b.m[i].Val) {
				return false
			}
		}
		return true
	case KindExt:
		return a.extType == b.extType && bytesEqual(a.extData, b.extData)
	default:
		return false
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
