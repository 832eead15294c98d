package control

import (
	"fmt"
	"sync"
	"time"

	"github.com/lirium-labs/cqldriver/internal/clog"
	"github.com/lirium-labs/cqldriver/internal/host"
	"github.com/lirium-labs/cqldriver/internal/protocol"
)

// debounceWindow coalesces bursts of topology/status events (e.g. a
// rolling restart touching many nodes within milliseconds of each
// other) into a single HostMap refresh instead of one per event.
const debounceWindow = 200 * time.Millisecond

// eventCoalescer batches incoming events and invokes refresh once the
// debounce window has elapsed with no new arrivals.
type eventCoalescer struct {
	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	refresh func()
}

func newEventCoalescer(refresh func()) *eventCoalescer {
	return &eventCoalescer{refresh: refresh}
}

func (c *eventCoalescer) notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(debounceWindow, c.refresh)
}

// applyEvent updates hosts directly for the transitions that don't need
// a full system.peers re-query (UP/DOWN), and schedules a debounced
// refresh for topology changes (NEW_NODE/REMOVED_NODE/MOVED_NODE).
// Schema changes are only logged.
func applyEvent(ev *protocol.Event, hosts *host.Map, coalesce *eventCoalescer, log *clog.Logger) {
	switch ev.Type {
	case protocol.EventStatusChange:
		applyStatusChange(ev.Status, hosts, log)
	case protocol.EventTopologyChange:
		log.Infof("control", "topology change %s for %s:%d, scheduling refresh", ev.Topology.Change, ev.Topology.Addr, ev.Topology.Port)
		coalesce.notify()
	case protocol.EventSchemaChange:
		log.Debugf("control", "schema change %s %s %s.%s", ev.Schema.Kind, ev.Schema.Target, ev.Schema.Keyspace, ev.Schema.Name)
	}
}

func applyStatusChange(ev *protocol.StatusChangeEvent, hosts *host.Map, log *clog.Logger) {
	if ev == nil {
		return
	}
	endpoint := fmt.Sprintf("%s:%d", ev.Addr, ev.Port)
	for _, h := range hosts.All() {
		if h.Endpoint != endpoint {
			continue
		}
		if ev.Up {
			h.MarkUp()
			log.Infof("control", "host %s is UP", endpoint)
		} else {
			h.MarkDown()
			log.Warnf("control", "host %s is DOWN", endpoint)
		}
		return
	}
}
