package conn

import (
	"context"
	"sync"
	"time"

	"github.com/lirium-labs/cqldriver/internal/protocol"
)

// heartbeatLoop sends an OPTIONS frame whenever a connection has been idle
// for longer than its configured interval, the same activate-on-traffic
// shape the teacher's HeartbeatManager uses, except the ping here is a
// real protocol frame rather than a JSON ping/pong message and it fires
// from idleness directly instead of a separate activate/deactivate signal.
type heartbeatLoop struct {
	conn     *Connection
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newHeartbeatLoop(c *Connection, interval, timeout time.Duration) *heartbeatLoop {
	return &heartbeatLoop{conn: c, interval: interval, timeout: timeout}
}

func (h *heartbeatLoop) start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	go h.loop()
}

func (h *heartbeatLoop) stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	close(h.stopCh)
	done := h.doneCh
	h.mu.Unlock()
	<-done
}

func (h *heartbeatLoop) loop() {
	defer close(h.doneCh)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			if h.conn.idleFor() < h.interval {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
			_, err := h.conn.Send(ctx, protocol.OpOptions, protocol.EncodeOptions(), 0)
			cancel()
			if err != nil {
				h.conn.defunct(err)
				return
			}
		}
	}
}
