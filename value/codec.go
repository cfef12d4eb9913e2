package value

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Wire-format type codes, per the MessagePack specification. These are not
// library-specific: they identify which branch of the format a leading byte
// belongs to so Decode can dispatch without relying on a library's own
// generic-interface decoding (which cannot round-trip unregistered
// extension types).
const (
	codeNilByte        = 0xc0
	codeFalse          = 0xc2
	codeTrue           = 0xc3
	codeFixArrayLow    = 0x90
	codeFixArrayHigh   = 0x9f
	codeArray16        = 0xdc
	codeArray32        = 0xdd
	codeFixMapLow      = 0x80
	codeFixMapHigh     = 0x8f
	codeMap16          = 0xde
	codeMap32          = 0xdf
	codeFixStrLow      = 0xa0
	codeFixStrHigh     = 0xbf
	codeStr8           = 0xd9
	codeStr16          = 0xda
	codeStr32          = 0xdb
	codeBin8           = 0xc4
	codeBin16          = 0xc5
	codeBin32          = 0xc6
	codeFloat32        = 0xca
	codeFloat64        = 0xcb
	codeUint8          = 0xcc
	codeUint16         = 0xcd
	codeUint32         = 0xce
	codeUint64         = 0xcf
	codeInt8           = 0xd0
	codeInt16          = 0xd1
	codeInt32          = 0xd2
	codeInt64          = 0xd3
	codeFixExt1        = 0xd4
	codeFixExt16       = 0xd8
	codeExt8           = 0xc7
	codeExt16          = 0xc8
	codeExt32          = 0xc9
	codePosFixIntLimit = 0x7f
	codeNegFixIntStart = 0xe0
)

// Codec encodes/decodes Value to and from a single underlying byte stream.
// A Codec is bound to one io.Reader/io.Writer pair: the MessagePack
// encoder/decoder must observe every byte written through the same stream
// to stay framed correctly (spec §4.1 — decode reads one complete value per
// call, encode writes exactly the bytes of one value per call).
type Codec struct {
	w   io.Writer
	r   io.Reader
	enc *msgpack.Encoder
	dec *msgpack.Decoder
}

// NewCodec builds a Value codec bound to rw. Either side (w, r) may be nil
// if the codec is only ever used to encode or only ever used to decode.
func NewCodec(w io.Writer, r io.Reader) *Codec {
	c := &Codec{w: w, r: r}
	if w != nil {
		c.enc = msgpack.NewEncoder(w)
	}
	if r != nil {
		c.dec = msgpack.NewDecoder(r)
	}
	return c
}

// Encode writes v to the codec's writer as a single MessagePack value.
func (c *Codec) Encode(v Value) error {
	return encode(c.w, c.enc, v)
}

// Decode reads and returns one MessagePack value from the codec's reader.
func (c *Codec) Decode() (Value, error) {
	return decode(c.r, c.dec)
}

// Encoder returns the codec's underlying msgpack.Encoder, so a caller that
// needs to write non-Value envelope fields (an array length, a tag, a raw
// id) can interleave them with Encode calls on the exact same encoder
// instance, instead of standing up a second one over the same writer.
func (c *Codec) Encoder() *msgpack.Encoder { return c.enc }

// Decoder returns the codec's underlying msgpack.Decoder, so a caller that
// needs to read non-Value envelope fields can interleave them with Decode
// calls on the exact same decoder instance. A MessagePack decoder buffers
// read-ahead internally; two decoders over one stream would each consume
// bytes the other needs, so every read against this connection must go
// through this one decoder.
func (c *Codec) Decoder() *msgpack.Decoder { return c.dec }

// Marshal serializes v to its raw MessagePack bytes. Useful for bridging a
// Value to library code (such as msgpack.Unmarshal into a Go struct) that
// expects a byte slice rather than a streaming reader.
func Marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewCodec(&buf, nil).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes one Value from raw MessagePack bytes.
func Unmarshal(data []byte) (Value, error) {
	return NewCodec(nil, bytes.NewReader(data)).Decode()
}

func encode(w io.Writer, enc *msgpack.Encoder, v Value) error {
	switch v.kind {
	case KindNil:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindInt:
		// EncodeInt would write a non-negative value with an unsigned code,
		// which decodes back as KindUint; the fixed int64 code keeps the kind.
		return enc.EncodeInt64(v.i)
	case KindUint:
		return enc.EncodeUint(v.u)
	case KindFloat:
		return enc.EncodeFloat64(v.f)
	case KindString:
		return enc.EncodeString(v.s)
	case KindBinary:
		return enc.EncodeBytes(v.bin)
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.arr)); err != nil {
			return err
		}
		for _, elem := range v.arr {
			if err := encode(w, enc, elem); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		if err := enc.EncodeMapLen(len(v.m)); err != nil {
			return err
		}
		for _, entry := range v.m {
			if err := encode(w, enc, entry.Key); err != nil {
				return err
			}
			if err := encode(w, enc, entry.Val); err != nil {
				return err
			}
		}
		return nil
	case KindExt:
		if err := enc.EncodeExtHeader(v.extType, len(v.extData)); err != nil {
			return err
		}
		if len(v.extData) == 0 {
			return nil
		}
		_, err := w.Write(v.extData)
		return err
	default:
		return fmt.Errorf("value: unknown kind %d", v.kind)
	}
}

func decode(r io.Reader, dec *msgpack.Decoder) (Value, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return Value{}, err
	}

	switch {
	case code == codeNilByte:
		if err := dec.DecodeNil(); err != nil {
			return Value{}, err
		}
		return Nil(), nil

	case code == codeFalse || code == codeTrue:
		b, err := dec.DecodeBool()
		if err != nil {
			return Value{}, err
		}
		return Bool(b), nil

	case isUnsignedCode(code):
		u, err := dec.DecodeUint64()
		if err != nil {
			return Value{}, err
		}
		return Uint(u), nil

	case isSignedCode(code):
		i, err := dec.DecodeInt64()
		if err != nil {
			return Value{}, err
		}
		return Int(i), nil

	case code == codeFloat32 || code == codeFloat64:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil

	case isStringCode(code):
		s, err := dec.DecodeString()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil

	case isBinCode(code):
		b, err := dec.DecodeBytes()
		if err != nil {
			return Value{}, err
		}
		return Binary(b), nil

	case isArrayCode(code):
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return Value{}, err
		}
		elems := make([]Value, n)
		for i := 0; i < n; i++ {
			elems[i], err = decode(r, dec)
			if err != nil {
				return Value{}, err
			}
		}
		return ArrayOf(elems), nil

	case isMapCode(code):
		n, err := dec.DecodeMapLen()
		if err != nil {
			return Value{}, err
		}
		entries := make([]MapEntry, n)
		for i := 0; i < n; i++ {
			k, err := decode(r, dec)
			if err != nil {
				return Value{}, err
			}
			v, err := decode(r, dec)
			if err != nil {
				return Value{}, err
			}
			entries[i] = MapEntry{Key: k, Val: v}
		}
		return Map(entries...), nil

	case isExtCode(code):
		extID, extLen, err := dec.DecodeExtHeader()
		if err != nil {
			return Value{}, err
		}
		data := make([]byte, extLen)
		if extLen > 0 {
			if err := dec.ReadFull(data); err != nil {
				return Value{}, err
			}
		}
		return Ext(extID, data), nil

	default:
		return Value{}, fmt.Errorf("value: unrecognized leading byte 0x%x", code)
	}
}

func isUnsignedCode(c byte) bool {
	return c <= codePosFixIntLimit ||
		c == codeUint8 || c == codeUint16 || c == codeUint32 || c == codeUint64
}

func isSignedCode(c byte) bool {
	return c >= codeNegFixIntStart ||
		c == codeInt8 || c == codeInt16 || c == codeInt32 || c == codeInt64
}

func isStringCode(c byte) bool {
	return (c >= codeFixStrLow && c <= codeFixStrHigh) ||
		c == codeStr8 || c == codeStr16 || c == codeStr32
}

func isBinCode(c byte) bool {
	return c == codeBin8 || c == codeBin16 || c == codeBin32
}

func isArrayCode(c byte) bool {
	return (c >= codeFixArrayLow && c <= codeFixArrayHigh) ||
		c == codeArray16 || c == codeArray32
}

func isMapCode(c byte) bool {
	return (c >= codeFixMapLow && c <= codeFixMapHigh) ||
		c == codeMap16 || c == codeMap32
}

func isExtCode(c byte) bool {
	return (c >= codeFixExt1 && c <= codeFixExt16) ||
		c == codeExt8 || c == codeExt16 || c == codeExt32
}
