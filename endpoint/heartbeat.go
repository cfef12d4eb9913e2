package endpoint

import "time"

// HeartbeatMethod is the Notification method name used to keep an idle
// connection's bytes flowing. A remote dispatcher that doesn't recognize it
// simply ignores it like any other unknown Notification (spec §4.5).
const HeartbeatMethod = "$/heartbeat"

// StartHeartbeat sends a HeartbeatMethod Notification on interval until the
// endpoint tears down. Adapted from BX-D-mini-RPC's heartbeatLoop, but rides
// the ordinary Notification path instead of a dedicated frame type — the
// wire format has no room for out-of-band frames (spec §4.1).
//
// A dead peer is discovered the same way any other write failure is: the
// next enqueue fails once teardown has already happened, or the writer
// itself observes the failure and tears down. There's no separate liveness
// check; the heartbeat only keeps a quiet connection from being treated as
// idle by middleboxes.
func (e *Endpoint) StartHeartbeat(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := e.Notify(HeartbeatMethod, nil); err != nil {
					return
				}
			case <-e.closed:
				return
			}
		}
	}()
}
