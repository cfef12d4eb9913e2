// Package loadbalance provides load balancing strategies for distributing
// RPC requests across multiple service instances.
//
// Three strategies are implemented:
//   - RoundRobin:      Stateless services, equal-capacity instances
//   - WeightedRandom:  Heterogeneous instances (different CPU/memory)
//   - ConsistentHash:  Stateful services requiring cache affinity
package loadbalance

import "github.com/euclio/msgpackrpc/registry"

// Balancer is the interface for load balancing strategies. A
// client.DiscoveringClient calls Pick() before every "Service.Method" call
// to choose which of the registry's currently-discovered instances gets
// the underlying transport.Pool and multiplexed endpoint.
type Balancer interface {
	// Pick selects one instance from the available list.
	// Called on every RPC call — must be goroutine-safe.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
