package server

import (
	"testing"
	"time"

	"github.com/euclio/msgpackrpc/dispatch"
	"github.com/euclio/msgpackrpc/endpoint"
	"github.com/euclio/msgpackrpc/registry"
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

func TestBindServesCalls(t *testing.T) {
	svr := New(echoDispatcher())
	if err := svr.Bind("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	defer svr.Shutdown(time.Second)

	conn, err := transport.DialTCP(svr.LocalAddr().String(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	ep := endpoint.New(conn, dispatch.NopDispatcher{})
	defer ep.Close()

	result, err := ep.Call("echo", []value.Value{value.String("hi")})
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := result.Str(); s != "hi" {
		t.Fatalf("want hi, got %v", result)
	}
}

func TestShutdownWaitsForOutstandingDispatch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	slow := dispatch.Func(func(method string, params []value.Value) (value.Value, error) {
		close(started)
		<-release
		return value.Nil(), nil
	})

	svr := New(slow)
	if err := svr.Bind("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}

	conn, err := transport.DialTCP(svr.LocalAddr().String(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	ep := endpoint.New(conn, dispatch.NopDispatcher{})
	defer ep.Close()

	resultCh, err := ep.AsyncCall("slow", nil)
	if err != nil {
		t.Fatal(err)
	}
	<-started

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- svr.Shutdown(time.Second) }()

	select {
	case <-shutdownDone:
		t.Fatal("shutdown returned before the in-flight dispatch finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	if err := <-shutdownDone; err != nil {
		t.Fatal(err)
	}
	res := <-resultCh
	if res.Err != nil {
		t.Fatal(res.Err)
	}
}

func TestShutdownTimesOutOnStuckDispatch(t *testing.T) {
	block := make(chan struct{})
	stuck := dispatch.Func(func(method string, params []value.Value) (value.Value, error) {
		<-block
		return value.Nil(), nil
	})
	defer close(block)

	svr := New(stuck)
	if err := svr.Bind("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}

	conn, err := transport.DialTCP(svr.LocalAddr().String(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	ep := endpoint.New(conn, dispatch.NopDispatcher{})
	defer ep.Close()

	if _, err := ep.AsyncCall("stuck", nil); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	if err := svr.Shutdown(30 * time.Millisecond); err == nil {
		t.Fatal("expected Shutdown to time out while the handler is still blocked")
	}
}

func TestWithRegistryRegistersAndDeregisters(t *testing.T) {
	reg := registry.NewMemoryRegistry()

	svr := New(echoDispatcher()).WithRegistry(reg, "Echo", "127.0.0.1:9999")
	if err := svr.Bind("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}

	instances, err := reg.Discover("Echo")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 || instances[0].Addr != "127.0.0.1:9999" {
		t.Fatalf("want one registered instance, got %v", instances)
	}

	if err := svr.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}

	instances, err = reg.Discover("Echo")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 0 {
		t.Fatalf("want deregistered on shutdown, got %v", instances)
	}
}
