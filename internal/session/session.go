// Package session mediates all I/O with a temperature controller.
//
// A Session runs two goroutines against one driver: a poll loop that reads
// measurements at a fixed interval and hands each Sample to subscribers, and
// a dispatch loop that drains a FIFO of queued commands. A single mutex
// serializes the driver; a write-priority hint lets a pending command take
// the mutex ahead of the next poll.
package session

import (
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sweeney/tec-monitor/internal/command"
	"github.com/sweeney/tec-monitor/internal/tec"
)

// Defaults used by DefaultConfig and for zero Config fields.
const (
	DefaultPollInterval     = 100 * time.Millisecond
	DefaultDispatchInterval = 100 * time.Millisecond
	DefaultHistorySize      = 1000
	DefaultSetPoint         = 20.0
)

// Config controls session timing and retention.
type Config struct {
	PollInterval     time.Duration
	DispatchInterval time.Duration
	// HistorySize is the number of samples kept in memory for plotting.
	HistorySize int
	// SetPoint is the assumed target until the first SetTemperature is applied.
	SetPoint float64
	// MaxPollErrors stops the poll loop after this many consecutive failed
	// polls. Zero keeps polling indefinitely.
	MaxPollErrors int

	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

// DefaultConfig returns the configuration used by the monitor.
func DefaultConfig() Config {
	return Config{
		PollInterval:     DefaultPollInterval,
		DispatchInterval: DefaultDispatchInterval,
		HistorySize:      DefaultHistorySize,
		SetPoint:         DefaultSetPoint,
	}
}

// Session owns a driver and the loops that use it.
type Session struct {
	cfg   Config
	clock clock.Clock
	log   *zap.SugaredLogger

	device         sync.Mutex // serializes driver calls
	driver         tec.Driver
	writeRequested atomic.Bool
	setPoint       atomic.Float64

	queueMu sync.Mutex
	queue   []command.Command

	histMu sync.RWMutex
	hist   *history

	subsMu sync.RWMutex
	subs   []Subscriber

	pollRunning     atomic.Bool
	dispatchRunning atomic.Bool
	samples         atomic.Uint64
	pollErrors      atomic.Uint64
	applied         atomic.Uint64
	commandErrors   atomic.Uint64

	errMu     sync.Mutex
	lastErr   string
	lastErrAt time.Time

	started   atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// New creates a session for driver. Zero durations and history size in cfg
// are replaced by the defaults. The loops do not run until Start.
func New(driver tec.Driver, cfg Config) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = DefaultDispatchInterval
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	s := &Session{
		cfg:    cfg,
		clock:  cfg.Clock,
		log:    cfg.Logger.Named("session"),
		driver: driver,
		hist:   newHistory(cfg.HistorySize),
		done:   make(chan struct{}),
	}
	s.setPoint.Store(cfg.SetPoint)
	return s
}

// Start launches the poll and dispatch loops. Calls after the first, or
// after Close, do nothing.
func (s *Session) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	select {
	case <-s.done:
		return
	default:
	}

	s.pollRunning.Store(true)
	s.dispatchRunning.Store(true)
	s.wg.Add(2)
	go s.pollLoop()
	go s.dispatchLoop()
	s.log.Infow("started", "poll", s.cfg.PollInterval, "dispatch", s.cfg.DispatchInterval, "history", s.cfg.HistorySize)
}

// Submit queues commands for the dispatch loop. It never blocks; commands
// run in submission order.
func (s *Session) Submit(cmds ...command.Command) {
	s.queueMu.Lock()
	s.queue = append(s.queue, cmds...)
	s.queueMu.Unlock()
}

// Subscribe registers sub to receive every sample. Subscribers that
// implement io.Closer are closed by Close.
func (s *Session) Subscribe(sub Subscriber) {
	s.subsMu.Lock()
	s.subs = append(s.subs, sub)
	s.subsMu.Unlock()
}

// Close stops both loops, waits for them to exit, then closes closable
// subscribers. Queued commands that have not run are dropped. Close is
// safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()

		s.subsMu.RLock()
		subs := append([]Subscriber(nil), s.subs...)
		s.subsMu.RUnlock()

		var err error
		for _, sub := range subs {
			if c, ok := sub.(io.Closer); ok {
				err = multierr.Append(err, c.Close())
			}
		}
		s.closeErr = err

		s.queueMu.Lock()
		dropped := len(s.queue)
		s.queue = nil
		s.queueMu.Unlock()
		s.log.Infow("closed", "samples", s.samples.Load(), "dropped_commands", dropped)
	})
	return s.closeErr
}

// SetPoint returns the set-point of the last applied SetTemperature.
func (s *Session) SetPoint() float64 {
	return s.setPoint.Load()
}

// History returns the retained samples as columns, oldest first.
func (s *Session) History() Series {
	s.histMu.RLock()
	defer s.histMu.RUnlock()
	return s.hist.series()
}

// Latest returns the most recent sample, if any.
func (s *Session) Latest() (Sample, bool) {
	s.histMu.RLock()
	defer s.histMu.RUnlock()
	return s.hist.last()
}

// Health returns loop state and counters.
func (s *Session) Health() Health {
	s.queueMu.Lock()
	depth := len(s.queue)
	s.queueMu.Unlock()

	s.errMu.Lock()
	lastErr, lastErrAt := s.lastErr, s.lastErrAt
	s.errMu.Unlock()

	return Health{
		PollRunning:     s.pollRunning.Load(),
		DispatchRunning: s.dispatchRunning.Load(),
		Samples:         s.samples.Load(),
		PollErrors:      s.pollErrors.Load(),
		CommandsApplied: s.applied.Load(),
		CommandErrors:   s.commandErrors.Load(),
		QueueDepth:      depth,
		LastError:       lastErr,
		LastErrorAt:     lastErrAt,
	}
}

func (s *Session) recordError(err error) {
	s.errMu.Lock()
	s.lastErr = err.Error()
	s.lastErrAt = s.clock.Now()
	s.errMu.Unlock()
}

// wait sleeps for d. It returns false if the session was closed meanwhile.
func (s *Session) wait(d time.Duration) bool {
	t := s.clock.Timer(d)
	select {
	case <-t.C:
		return true
	case <-s.done:
		t.Stop()
		return false
	}
}

func (s *Session) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
