package endpoint

import (
	"sync"

	"github.com/euclio/msgpackrpc/value"
)

// CallResult is what a completion slot carries to the waiting caller: a
// Response's success/failure payload, or a transport-level error (teardown,
// I/O failure) if the Request never got a matching Response.
type CallResult struct {
	Value value.Value
	Err   error // non-nil on either a handler error (*rpcerr.HandlerError) or a transport failure
}

// slot is a one-shot, capacity-one rendezvous channel: exactly one send,
// exactly one receive, ever (spec §4.3, §9 "Completion slots").
type slot chan CallResult

func newSlot() slot { return make(slot, 1) }

// pendingTable maps outstanding Request IDs to their completion slot. It is
// the single source of truth for "in-flight from this endpoint" (spec §3).
//
// Insert happens-before the Request reaches the writer queue (the caller in
// endpoint.go does the insert before the enqueue); remove is atomic with the
// lookup performed by the reader, so two readers can never deliver to the
// same slot (spec §4.3 contracts). The lock is held only across map
// operations, never across I/O or user code (spec §5).
type pendingTable struct {
	mu    sync.Mutex
	slots map[int32]slot
}

func newPendingTable() *pendingTable {
	return &pendingTable{slots: make(map[int32]slot)}
}

func (t *pendingTable) insert(id int32, s slot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[id] = s
}

// take removes the slot for id, if any, and reports whether one was found.
// The caller sends into the returned slot itself so the lock isn't held
// across the channel send.
func (t *pendingTable) take(id int32) (slot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[id]
	if ok {
		delete(t.slots, id)
	}
	return s, ok
}

// drain empties the table, delivering err to every surviving slot. Used by
// endpoint teardown (spec §4.3 "on endpoint shutdown" / §4.6).
func (t *pendingTable) drain(err error) {
	t.mu.Lock()
	slots := t.slots
	t.slots = make(map[int32]slot)
	t.mu.Unlock()

	for _, s := range slots {
		s <- CallResult{Err: err}
	}
}
