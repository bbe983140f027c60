package mqtt

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/sweeney/tec-monitor/internal/session"
)

// DefaultForwardQueue is the Forwarder's channel capacity.
const DefaultForwardQueue = 64

// Forwarder is a session subscriber that publishes every Nth sample. The
// poll loop only enqueues; a background goroutine publishes, so a slow
// broker never delays polling. Samples are dropped when the queue is full.
type Forwarder struct {
	pub   Publisher
	every uint64
	log   *zap.SugaredLogger

	mu     sync.RWMutex
	closed bool
	ch     chan session.Sample
	wg     sync.WaitGroup

	seen    atomic.Uint64
	dropped atomic.Uint64
	sent    atomic.Uint64
}

// NewForwarder starts a forwarder publishing one in every samples to pub.
// every below 1 forwards all samples.
func NewForwarder(pub Publisher, every, queue int, log *zap.SugaredLogger) *Forwarder {
	if every < 1 {
		every = 1
	}
	if queue < 1 {
		queue = DefaultForwardQueue
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	f := &Forwarder{
		pub:   pub,
		every: uint64(every),
		log:   log.Named("forwarder"),
		ch:    make(chan session.Sample, queue),
	}
	f.wg.Add(1)
	go f.run()
	return f
}

// OnSample implements session.Subscriber.
func (f *Forwarder) OnSample(s session.Sample) {
	if (f.seen.Inc()-1)%f.every != 0 {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- s:
	default:
		if f.dropped.Inc() == 1 {
			f.log.Warnw("publish queue full, dropping samples")
		}
	}
}

func (f *Forwarder) run() {
	defer f.wg.Done()
	for s := range f.ch {
		if err := f.pub.Publish(s); err != nil {
			f.log.Warnw("publish sample", "error", err)
			continue
		}
		f.sent.Inc()
	}
}

// Dropped returns the number of samples lost to a full queue.
func (f *Forwarder) Dropped() uint64 { return f.dropped.Load() }

// Sent returns the number of samples published.
func (f *Forwarder) Sent() uint64 { return f.sent.Load() }

// Close publishes what is queued and stops the goroutine. It does not close
// the publisher.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.ch)
	f.mu.Unlock()

	f.wg.Wait()
	return nil
}
