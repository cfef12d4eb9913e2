package registry

import (
	"testing"
	"time"
)

// serviceUnderTest names the logical msgpack-RPC service these instances
// belong to, the way Server.WithRegistry's serviceName parameter would be
// set by a real caller — e.g. "Echo" for the echo service exercised
// throughout this runtime's integration tests, not a generic placeholder.
const serviceUnderTest = "Echo"

func TestRegisterAndDiscover(t *testing.T) {
	reg, err := NewEtcdRegistry([]string{"localhost:2379"})
	if err != nil {
		t.Fatal(err)
	}

	// Two endpoints of the same logical service, as WithRegistry would
	// advertise for two server processes behind one logical name.
	primary := ServiceInstance{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0"}
	secondary := ServiceInstance{Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0"}

	if err := reg.Register(serviceUnderTest, primary, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(serviceUnderTest, secondary, 10); err != nil {
		t.Fatal(err)
	}

	instances, err := reg.Discover(serviceUnderTest)
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %d", len(instances))
	}

	if err := reg.Deregister(serviceUnderTest, primary.Addr); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	instances, err = reg.Discover(serviceUnderTest)
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 {
		t.Fatalf("expect 1 instance after deregister, got %d", len(instances))
	}
	if instances[0].Addr != secondary.Addr {
		t.Fatalf("expect %s, got %s", secondary.Addr, instances[0].Addr)
	}

	reg.Deregister(serviceUnderTest, secondary.Addr)
}
