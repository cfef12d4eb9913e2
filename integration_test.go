// End-to-end scenarios exercising the full stack — server acceptor, client
// builder, and the endpoint engine underneath both — over real TCP
// connections, mirroring the echo/sleep/bidirectional scenarios of the
// crate this runtime's wire protocol was modeled on.
package msgpackrpc_test

import (
	"testing"
	"time"

	"github.com/euclio/msgpackrpc/client"
	"github.com/euclio/msgpackrpc/dispatch"
	"github.com/euclio/msgpackrpc/server"
	"github.com/euclio/msgpackrpc/transport"
	"github.com/euclio/msgpackrpc/value"
)

func echoDispatcher() dispatch.Dispatcher {
	return dispatch.Func(func(method string, params []value.Value) (value.Value, error) {
		if method != "echo" {
			return value.Nil(), errString("invalid method name")
		}
		return value.ArrayOf(params), nil
	})
}

type errString string

func (e errString) Error() string { return string(e) }

func TestEcho(t *testing.T) {
	svr := server.New(echoDispatcher())
	if err := svr.Bind("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	defer svr.Shutdown(time.Second)

	handle, err := client.New().ConnectSocket(svr.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer handle.Close()

	result, err := handle.Call("echo", []value.Value{value.String("Hello, world!")})
	if err != nil {
		t.Fatal(err)
	}
	elems, ok := result.Elems()
	if !ok || len(elems) != 1 {
		t.Fatalf("want a 1-element array, got %v", result)
	}
	if s, _ := elems[0].Str(); s != "Hello, world!" {
		t.Fatalf("want %q, got %v", "Hello, world!", elems[0])
	}
}

func TestInvalidMethodNameReturnsHandlerError(t *testing.T) {
	svr := server.New(echoDispatcher())
	if err := svr.Bind("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	defer svr.Shutdown(time.Second)

	handle, err := client.New().ConnectSocket(svr.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer handle.Close()

	_, err = handle.Call("bad_method", nil)
	if err == nil {
		t.Fatal("expected an error for an unrecognized method")
	}
}

func sleepDispatcher() dispatch.Dispatcher {
	return dispatch.Func(func(method string, params []value.Value) (value.Value, error) {
		secs, _ := params[0].Uint()
		time.Sleep(time.Duration(secs) * 10 * time.Millisecond)
		return params[0], nil
	})
}

// TestAsyncCallOrderingIndependence mirrors tests/sleep.rs's "async": a
// long sleep submitted first must not delay a short sleep submitted after
// it (spec §5 head-of-line independence, multiplexed over one connection).
func TestAsyncCallOrderingIndependence(t *testing.T) {
	svr := server.New(sleepDispatcher())
	if err := svr.Bind("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	defer svr.Shutdown(time.Second)

	handle, err := client.New().ConnectSocket(svr.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer handle.Close()

	if _, err := handle.AsyncCall("sleep", []value.Value{value.Uint(50)}); err != nil {
		t.Fatal(err)
	}
	shortCh, err := handle.AsyncCall("sleep", []value.Value{value.Uint(0)})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case res := <-shortCh:
		if res.Err != nil {
			t.Fatal(res.Err)
		}
		n, _ := res.Value.Uint()
		if n != 0 {
			t.Fatalf("want 0, got %d", n)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("short sleep call appears blocked behind the long one")
	}
}

// TestSleepBothComplete mirrors tests/sleep.rs's "sleep": both calls must
// eventually resolve to their own results, regardless of submission order.
func TestSleepBothComplete(t *testing.T) {
	svr := server.New(sleepDispatcher())
	if err := svr.Bind("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	defer svr.Shutdown(time.Second)

	handle, err := client.New().ConnectSocket(svr.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer handle.Close()

	longCh, err := handle.AsyncCall("sleep", []value.Value{value.Uint(2)})
	if err != nil {
		t.Fatal(err)
	}
	shortCh, err := handle.AsyncCall("sleep", []value.Value{value.Uint(1)})
	if err != nil {
		t.Fatal(err)
	}

	shortRes := <-shortCh
	if shortRes.Err != nil {
		t.Fatal(shortRes.Err)
	}
	if n, _ := shortRes.Value.Uint(); n != 1 {
		t.Fatalf("want 1, got %d", n)
	}

	longRes := <-longCh
	if longRes.Err != nil {
		t.Fatal(longRes.Err)
	}
	if n, _ := longRes.Value.Uint(); n != 2 {
		t.Fatalf("want 2, got %d", n)
	}
}

// echoCallServer mirrors tests/bidirectional.rs's EchoCallServer: it
// answers "call" by echoing its arguments back untouched.
func echoCallServer() dispatch.Dispatcher {
	return dispatch.Func(func(method string, params []value.Value) (value.Value, error) {
		if method != "call" {
			return value.Nil(), errString("invalid server method name")
		}
		return value.ArrayOf(params), nil
	})
}

// TestBidirectionalClient mirrors tests/bidirectional.rs's
// bidirectional_client: a client with its own dispatcher set (so it could
// answer a callback) still completes a plain outbound call normally — the
// two directions of a connection are independent.
func TestBidirectionalClient(t *testing.T) {
	svr := server.New(echoCallServer())
	if err := svr.Bind("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	defer svr.Shutdown(time.Second)

	clientDispatcher := dispatch.Func(func(method string, params []value.Value) (value.Value, error) {
		return value.Nil(), errString("the server never calls back in this scenario")
	})
	handle, err := client.New().WithDispatcher(clientDispatcher).ConnectSocket(svr.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer handle.Close()

	result, err := handle.Call("call", []value.Value{value.String("echo"), value.String("Hello, world!")})
	if err != nil {
		t.Fatal(err)
	}
	elems, ok := result.Elems()
	if !ok || len(elems) != 2 {
		t.Fatalf("want the 2 echoed args back, got %v", result)
	}
	if s, _ := elems[1].Str(); s != "Hello, world!" {
		t.Fatalf("want %q, got %v", "Hello, world!", elems[1])
	}
}

// TestDefaultClientDispatchRejectsInboundCall mirrors tests/bidirectional.rs's
// default_client_dispatch (a #[should_panic] test there): a client built
// with no WithDispatcher call still answers an inbound callback, with a
// HandlerError rather than by aborting the connection (spec §9's resolved
// Open Question on default dispatch policy).
func TestDefaultClientDispatchRejectsInboundCall(t *testing.T) {
	sideA, sideB := transport.Pipe()
	defer sideB.Close()

	// No WithDispatcher on either side: each gets the default NopDispatcher.
	peer := client.New().ConnectPipe(sideB)
	defer peer.Close()
	handle := client.New().ConnectPipe(sideA)
	defer handle.Close()

	_, err := peer.Call("call", []value.Value{value.String("echo"), value.String("unexpected")})
	if err == nil {
		t.Fatal("expected the default dispatcher to reject the inbound callback")
	}
}
