package dispatch

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/euclio/msgpackrpc/rpcerr"
	"github.com/euclio/msgpackrpc/value"
)

// methodType stores the reflection metadata for one RPC-compatible method
// of a registered service, exactly as BX-D-mini-RPC/server/service.go does
// for its JSON-RPC style dispatch.
type methodType struct {
	method    reflect.Method
	argType   reflect.Type
	replyType reflect.Type
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func newService(rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("dispatch: rcvr must be a pointer, got %s", typ.Kind())
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("dispatch: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}

	svc := &service{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	svc.registerMethods()
	return svc, nil
}

// registerMethods scans for exported methods shaped
// func (receiver) MethodName(args *ArgsType, reply *ReplyType) error.
// Methods that don't match are silently skipped, matching the teacher.
func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		m := s.typ.Method(i)
		if m.Type.NumIn() != 3 || m.Type.NumOut() != 1 {
			continue
		}
		if m.Type.Out(0) != errorType {
			continue
		}
		if m.Type.In(1).Kind() != reflect.Ptr || m.Type.In(2).Kind() != reflect.Ptr {
			continue
		}
		s.method[m.Name] = &methodType{
			method:    m,
			argType:   m.Type.In(1).Elem(),
			replyType: m.Type.In(2).Elem(),
		}
	}
}

func (s *service) call(mt *methodType, argv, replyv reflect.Value) error {
	results := mt.method.Func.Call([]reflect.Value{s.rcvr, argv, replyv})
	if !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}

// ReflectDispatcher adapts plain Go structs (methods shaped
// func (T) Method(args *Args, reply *Reply) error, the net/rpc convention
// BX-D-mini-RPC's server/service.go also follows) into the Dispatcher
// contract. A Request's single positional param is unmarshaled into Args;
// the Reply struct is marshaled back out as the result Value.
//
// Method names on the wire are "ServiceName.MethodName", where ServiceName
// is the struct's type name.
type ReflectDispatcher struct {
	mu       *sync.RWMutex
	services map[string]*service
}

// NewReflectDispatcher creates an empty ReflectDispatcher. Register structs
// with Register before handing it to a Server or Client.
func NewReflectDispatcher() *ReflectDispatcher {
	return &ReflectDispatcher{mu: &sync.RWMutex{}, services: make(map[string]*service)}
}

// Register adds rcvr's RPC-compatible methods under its struct type name.
func (d *ReflectDispatcher) Register(rcvr any) error {
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.services[svc.name] = svc
	return nil
}

// Dispatch implements Dispatcher.
func (d *ReflectDispatcher) Dispatch(method string, params []value.Value) (value.Value, error) {
	svc, mt, err := d.lookup(method)
	if err != nil {
		return value.Nil(), rpcerr.NewHandlerError(value.String(err.Error()))
	}

	argv := reflect.New(mt.argType)
	if len(params) > 0 {
		raw, err := value.Marshal(params[0])
		if err != nil {
			return value.Nil(), rpcerr.NewHandlerError(value.String(err.Error()))
		}
		if err := msgpack.Unmarshal(raw, argv.Interface()); err != nil {
			return value.Nil(), rpcerr.NewHandlerError(value.String(err.Error()))
		}
	}

	replyv := reflect.New(mt.replyType)
	if err := svc.call(mt, argv, replyv); err != nil {
		return value.Nil(), rpcerr.NewHandlerError(value.String(err.Error()))
	}

	raw, err := msgpack.Marshal(replyv.Interface())
	if err != nil {
		return value.Nil(), err
	}
	return value.Unmarshal(raw)
}

// Notify implements Dispatcher by dispatching the same way but discarding
// the result, matching the common RPC convention that notifications run
// the handler for side effects only.
func (d *ReflectDispatcher) Notify(method string, params []value.Value) {
	_, _ = d.Dispatch(method, params)
}

// Clone returns a dispatcher sharing the same service table: the table is
// read-only after registration in the common usage pattern (register, then
// Handle/ConnectSocket), and reads are protected by mu regardless.
func (d *ReflectDispatcher) Clone() Dispatcher {
	return &ReflectDispatcher{mu: d.mu, services: d.services}
}

func (d *ReflectDispatcher) lookup(method string) (*service, *methodType, error) {
	parts := strings.SplitN(method, ".", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid method format %q, want Service.Method", method)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	svc, ok := d.services[parts[0]]
	if !ok {
		return nil, nil, fmt.Errorf("unknown service %q", parts[0])
	}
	mt, ok := svc.method[parts[1]]
	if !ok {
		return nil, nil, fmt.Errorf("unknown method %q on service %q", parts[1], parts[0])
	}
	return svc, mt, nil
}
