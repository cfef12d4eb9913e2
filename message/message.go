// Package message defines the three msgpack-RPC message kinds and their
// wire encoding as a MessagePack array: [tag, ...].
//
//	tag 0: Request      [0, id, method, params]
//	tag 1: Response     [1, id, error, result]
//	tag 2: Notification [2, method, params]
//
// Message is a closed sum type: *Request, *Response, and *Notification are
// its only implementations. Pack/Unpack are the wire codec (spec §4.1).
package message

import (
	"io"

	"github.com/euclio/msgpackrpc/rpcerr"
	"github.com/euclio/msgpackrpc/value"
)

// Tag identifies which of the three message kinds an array encodes.
type Tag uint64

const (
	TagRequest      Tag = 0
	TagResponse     Tag = 1
	TagNotification Tag = 2
)

// Message is implemented by *Request, *Response, and *Notification.
type Message interface {
	tag() Tag
}

// Request is an outstanding remote call: method name plus positional
// arguments, tagged with an ID the Response will echo back.
type Request struct {
	ID     int32
	Method string
	Params []value.Value
}

func (*Request) tag() Tag { return TagRequest }

// Response completes a Request. Exactly one of Result/Err is meaningful;
// IsErr says which. The wire always carries both slots (Nil in the unused
// one) per spec §4.1.
type Response struct {
	ID     int32
	Result value.Value
	Err    value.Value
	IsErr  bool
}

func (*Response) tag() Tag { return TagResponse }

// Ok builds a successful Response.
func Ok(id int32, result value.Value) *Response {
	return &Response{ID: id, Result: result}
}

// Failed builds a failed Response.
func Failed(id int32, errVal value.Value) *Response {
	return &Response{ID: id, Err: errVal, IsErr: true}
}

// Notification is a one-way call: no ID, no Response.
type Notification struct {
	Method string
	Params []value.Value
}

func (*Notification) tag() Tag { return TagNotification }

// Pack writes exactly the serialized bytes of one Message through vc. vc
// must have been constructed with a non-nil writer. Envelope fields (array
// length, tag, id, method name) are written through vc.Encoder() and
// payload Values through vc.Encode(), so the whole message goes out through
// the one encoder instance bound to the connection.
func Pack(vc *value.Codec, m Message) error {
	enc := vc.Encoder()

	switch msg := m.(type) {
	case *Request:
		if err := enc.EncodeArrayLen(4); err != nil {
			return err
		}
		if err := enc.EncodeUint(uint64(TagRequest)); err != nil {
			return err
		}
		if err := enc.EncodeUint(uint64(uint32(msg.ID))); err != nil {
			return err
		}
		if err := enc.EncodeString(msg.Method); err != nil {
			return err
		}
		if err := enc.EncodeArrayLen(len(msg.Params)); err != nil {
			return err
		}
		for _, p := range msg.Params {
			if err := vc.Encode(p); err != nil {
				return err
			}
		}
		return nil

	case *Response:
		if err := enc.EncodeArrayLen(4); err != nil {
			return err
		}
		if err := enc.EncodeUint(uint64(TagResponse)); err != nil {
			return err
		}
		if err := enc.EncodeUint(uint64(uint32(msg.ID))); err != nil {
			return err
		}
		errVal, resVal := value.Nil(), msg.Result
		if msg.IsErr {
			errVal, resVal = msg.Err, value.Nil()
		}
		if err := vc.Encode(errVal); err != nil {
			return err
		}
		if err := vc.Encode(resVal); err != nil {
			return err
		}
		return nil

	case *Notification:
		if err := enc.EncodeArrayLen(3); err != nil {
			return err
		}
		if err := enc.EncodeUint(uint64(TagNotification)); err != nil {
			return err
		}
		if err := enc.EncodeString(msg.Method); err != nil {
			return err
		}
		if err := enc.EncodeArrayLen(len(msg.Params)); err != nil {
			return err
		}
		for _, p := range msg.Params {
			if err := vc.Encode(p); err != nil {
				return err
			}
		}
		return nil

	default:
		return rpcerr.Malformed("unknown message implementation %T", m)
	}
}

// Unpack reads one complete Message through vc, validating the array
// length, tag, and positional element types per spec §4.1. vc must have
// been constructed with a non-nil reader. Envelope fields are read through
// vc.Decoder() and payload Values through vc.Decode(), so the whole message
// comes in through the one decoder instance bound to the connection — a
// second, independent decoder over the same stream would race it for
// buffered read-ahead and corrupt the framing. A stream that ends cleanly
// before the first byte of a message yields io.EOF; every other decode error
// is a *rpcerr.MalformedMessageError.
func Unpack(vc *value.Codec) (Message, error) {
	dec := vc.Decoder()

	n, err := dec.DecodeArrayLen()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, rpcerr.Malformed("message is not an array: %v", err)
	}

	rawTag, err := dec.DecodeUint64()
	if err != nil {
		return nil, rpcerr.Malformed("leading array element is not an unsigned tag: %v", err)
	}

	switch Tag(rawTag) {
	case TagRequest:
		if n != 4 {
			return nil, rpcerr.Malformed("request array has length %d, want 4", n)
		}
		id, err := dec.DecodeUint64()
		if err != nil {
			return nil, rpcerr.Malformed("request id is not an unsigned integer: %v", err)
		}
		method, err := dec.DecodeString()
		if err != nil {
			return nil, rpcerr.Malformed("request method is not a string: %v", err)
		}
		params, err := decodeParams(vc)
		if err != nil {
			return nil, err
		}
		return &Request{ID: int32(uint32(id)), Method: method, Params: params}, nil

	case TagResponse:
		if n != 4 {
			return nil, rpcerr.Malformed("response array has length %d, want 4", n)
		}
		id, err := dec.DecodeUint64()
		if err != nil {
			return nil, rpcerr.Malformed("response id is not an unsigned integer: %v", err)
		}
		errVal, err := vc.Decode()
		if err != nil {
			return nil, rpcerr.Malformed("response error slot is malformed: %v", err)
		}
		resVal, err := vc.Decode()
		if err != nil {
			return nil, rpcerr.Malformed("response result slot is malformed: %v", err)
		}
		resp := &Response{ID: int32(uint32(id))}
		if errVal.IsNil() {
			resp.Result = resVal
		} else {
			resp.Err = errVal
			resp.IsErr = true
		}
		return resp, nil

	case TagNotification:
		if n != 3 {
			return nil, rpcerr.Malformed("notification array has length %d, want 3", n)
		}
		method, err := dec.DecodeString()
		if err != nil {
			return nil, rpcerr.Malformed("notification method is not a string: %v", err)
		}
		params, err := decodeParams(vc)
		if err != nil {
			return nil, err
		}
		return &Notification{Method: method, Params: params}, nil

	default:
		return nil, rpcerr.Malformed("unknown message tag %d", rawTag)
	}
}

func decodeParams(vc *value.Codec) ([]value.Value, error) {
	n, err := vc.Decoder().DecodeArrayLen()
	if err != nil {
		return nil, rpcerr.Malformed("params slot is not an array: %v", err)
	}
	params := make([]value.Value, n)
	for i := 0; i < n; i++ {
		params[i], err = vc.Decode()
		if err != nil {
			return nil, rpcerr.Malformed("param %d is malformed: %v", i, err)
		}
	}
	return params, nil
}
