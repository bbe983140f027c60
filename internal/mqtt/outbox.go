package mqtt

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sweeney/tec-monitor/internal/ring"
)

// message is a serialized MQTT message waiting for the broker.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages produced while the broker is unreachable. When it
// is full the oldest message is discarded and counted. It is safe for
// concurrent use.
type outbox struct {
	log *zap.SugaredLogger

	mu      sync.Mutex
	msgs    *ring.Ring[message]
	warned  bool // a drop was logged since the last take
	dropped uint64
}

func newOutbox(capacity int, log *zap.SugaredLogger) *outbox {
	return &outbox{log: log, msgs: ring.New[message](capacity)}
}

func (o *outbox) add(m message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.msgs.Push(m) {
		return
	}
	o.dropped++
	if !o.warned {
		o.warned = true
		o.log.Warnw("outbox full, dropping oldest", "capacity", o.msgs.Cap())
	}
}

// take empties the outbox, returning its messages oldest first.
func (o *outbox) take() []message {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warned = false
	return o.msgs.Drain()
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.msgs.Len()
}

// droppedTotal counts messages discarded since the outbox was created.
func (o *outbox) droppedTotal() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}
