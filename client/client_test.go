package client

import (
	"testing"
	"time"

	"github.com/euclio/msgpackrpc/dispatch"
	"github.com/euclio/msgpackrpc/transport"
	"github.com/euclio/msgpackrpc/value"
)

func echoDispatcher() dispatch.Dispatcher {
	return dispatch.Func(func(method string, params []value.Value) (value.Value, error) {
		if len(params) == 0 {
			return value.Nil(), nil
		}
		return params[0], nil
	})
}

func TestConnectPipeCall(t *testing.T) {
	clientSide, serverSide := transport.Pipe()
	defer serverSide.Close()

	server := New().WithDispatcher(echoDispatcher())
	serverHandle := server.ConnectPipe(serverSide)
	defer serverHandle.Close()

	handle := New().ConnectPipe(clientSide)
	defer handle.Close()

	result, err := handle.Call("echo", []value.Value{value.String("hello")})
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := result.Str(); s != "hello" {
		t.Fatalf("want hello, got %v", result)
	}
}

func TestConnectSocketCall(t *testing.T) {
	ln, err := transport.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		New().WithDispatcher(echoDispatcher()).ConnectPipe(conn)
	}()

	handle, err := New().WithDialTimeout(time.Second).ConnectSocket(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer handle.Close()

	result, err := handle.Call("echo", []value.Value{value.Int(7)})
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := result.Int(); n != 7 {
		t.Fatalf("want 7, got %v", result)
	}
}

func TestDefaultDispatcherRejectsInboundRequest(t *testing.T) {
	clientSide, serverSide := transport.Pipe()
	defer serverSide.Close()

	peerHandle := New().ConnectPipe(serverSide)
	defer peerHandle.Close()

	handle := New().ConnectPipe(clientSide)
	defer handle.Close()

	_, err := peerHandle.Call("anything", nil)
	if err == nil {
		t.Fatal("expected the default dispatcher to reject the request")
	}
}
