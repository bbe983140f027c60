package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/tec-monitor/internal/command"
	"github.com/sweeney/tec-monitor/internal/tec"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder collects samples delivered to a subscriber.
type recorder struct {
	mu      sync.Mutex
	samples []Sample
}

func (r *recorder) OnSample(s Sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.samples...)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// closingRecorder is a recorder that also implements io.Closer.
type closingRecorder struct {
	recorder
	closed bool
	err    error
}

func (c *closingRecorder) Close() error {
	c.closed = true
	return c.err
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func newTestSession(t *testing.T, driver tec.Driver, interval time.Duration) (*Session, *recorder) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PollInterval = interval
	cfg.DispatchInterval = interval
	cfg.Logger = zaptest.NewLogger(t).Sugar()
	s := New(driver, cfg)
	rec := &recorder{}
	s.Subscribe(rec)
	t.Cleanup(func() { s.Close() })
	return s, rec
}

func TestCommandsAppliedInSubmissionOrder(t *testing.T) {
	f := tec.NewFakeDriver(tec.Reading{Temperature1: 20})
	s, _ := newTestSession(t, f, 2*time.Millisecond)
	s.Start()

	const n = 25
	for i := 1; i <= n; i++ {
		s.Submit(command.SetTemperature{Value: float64(i)})
	}
	waitFor(t, "all commands", func() bool { return s.Health().CommandsApplied == n })

	writes := f.Writes()
	if len(writes) != n {
		t.Fatalf("expected %d writes, got %d", n, len(writes))
	}
	for i, w := range writes {
		if w.Op != "set_temperature" || w.Value != float64(i+1) {
			t.Errorf("write %d: got %+v, want set_temperature(%d)", i, w, i+1)
		}
	}
	if s.SetPoint() != n {
		t.Errorf("SetPoint: got %v, want %d", s.SetPoint(), n)
	}
}

func TestSetPointBundleOrder(t *testing.T) {
	f := tec.NewFakeDriver(tec.Reading{Temperature1: 20})
	s, _ := newTestSession(t, f, 2*time.Millisecond)

	cmds, err := command.SetPoint(35)
	if err != nil {
		t.Fatal(err)
	}
	s.Submit(cmds...)
	s.Submit(command.SetOutputEnable{Enabled: true})
	s.Start()
	waitFor(t, "commands", func() bool { return s.Health().CommandsApplied == 4 })

	want := []string{"set_mode", "set_control_mode", "set_temperature", "set_output_enable"}
	writes := f.Writes()
	for i, op := range want {
		if writes[i].Op != op {
			t.Errorf("write %d: got %s, want %s", i, writes[i].Op, op)
		}
	}
}

func TestSetPointReportedOnlyAfterDispatch(t *testing.T) {
	f := tec.NewFakeDriver(tec.Reading{Temperature1: 20, Temperature2: 21, Output: 3})
	s, rec := newTestSession(t, f, 2*time.Millisecond)
	s.Start()

	waitFor(t, "initial polls", func() bool { return rec.len() >= 3 })
	s.Submit(command.SetTemperature{Value: 42})
	waitFor(t, "new set-point", func() bool {
		samples := rec.snapshot()
		return samples[len(samples)-1].SetPoint == 42
	})
	after := rec.len()
	waitFor(t, "more polls", func() bool { return rec.len() >= after+3 })
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The k-th temperature read belongs to the k-th sample. Every poll
	// that read the device before the write must report the old value.
	calls := f.Calls()
	reads := 0
	writeAt := -1
	for _, c := range calls {
		switch c.Op {
		case "temperature":
			reads++
		case "set_temperature":
			writeAt = reads
		}
	}
	if writeAt < 0 {
		t.Fatal("set_temperature never reached the driver")
	}

	samples := rec.snapshot()
	if len(samples) != reads {
		t.Fatalf("expected one sample per poll: %d samples, %d reads", len(samples), reads)
	}
	for i, sm := range samples {
		want := DefaultSetPoint
		if i >= writeAt {
			want = 42
		}
		if sm.SetPoint != want {
			t.Errorf("sample %d: set-point %v, want %v (write after %d polls)", i, sm.SetPoint, want, writeAt)
		}
	}
}

func TestHistoryAlignedAndBounded(t *testing.T) {
	f := tec.NewFakeDriver(
		tec.Reading{Temperature1: 1, Temperature2: 2, Output: 3},
		tec.Reading{Temperature1: 4, Temperature2: 5, Output: 6},
	)
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.HistorySize = 5
	s := New(f, cfg)
	rec := &recorder{}
	s.Subscribe(rec)
	t.Cleanup(func() { s.Close() })
	s.Start()

	waitFor(t, "samples", func() bool { return s.Health().Samples >= 12 })
	series := s.History()

	// Every sample comes from a single scripted row.
	first := rec.snapshot()[:2]
	wantRows := [][3]float64{{1, 2, 3}, {4, 5, 6}}
	for i, sm := range first {
		got := [3]float64{sm.Temperature1, sm.Temperature2, sm.Output}
		if got != wantRows[i] {
			t.Errorf("sample %d mixes rows: got %v, want %v", i, got, wantRows[i])
		}
	}

	n := series.Len()
	if n != 5 {
		t.Fatalf("history length: got %d, want 5", n)
	}
	if len(series.SetPoints) != n || len(series.Temperature1) != n || len(series.Temperature2) != n || len(series.Output) != n {
		t.Fatalf("columns not aligned: %d %d %d %d %d", n, len(series.SetPoints), len(series.Temperature1), len(series.Temperature2), len(series.Output))
	}
	for i := 1; i < n; i++ {
		if series.Times[i].Before(series.Times[i-1]) {
			t.Errorf("times not ordered at %d", i)
		}
	}
	for i := 0; i < n; i++ {
		if series.Temperature1[i] != 4 || series.Temperature2[i] != 5 || series.Output[i] != 6 {
			t.Errorf("row %d: got (%v, %v, %v)", i, series.Temperature1[i], series.Temperature2[i], series.Output[i])
		}
	}

	latest, ok := s.Latest()
	if !ok {
		t.Fatal("expected a latest sample")
	}
	if latest.Temperature1 != 4 {
		t.Errorf("latest Temperature1: got %v, want 4", latest.Temperature1)
	}
}

func TestCloseStopsLoopsPromptly(t *testing.T) {
	f := tec.NewFakeDriver(tec.Reading{Temperature1: 20})
	s, rec := newTestSession(t, f, DefaultPollInterval)
	s.Start()
	waitFor(t, "first sample", func() bool { return rec.len() >= 1 })

	start := time.Now()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if d := time.Since(start); d >= DefaultPollInterval {
		t.Errorf("Close took %v, want under %v", d, DefaultPollInterval)
	}

	h := s.Health()
	if h.PollRunning || h.DispatchRunning {
		t.Errorf("loops still running after Close: %+v", h)
	}
	n := len(s.History().Times)
	time.Sleep(3 * DefaultPollInterval)
	if got := len(s.History().Times); got != n {
		t.Errorf("history grew after Close: %d -> %d", n, got)
	}
	if got := rec.len(); got != n {
		t.Errorf("subscriber received samples after Close: %d -> %d", n, got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := New(tec.NewFakeDriver(tec.Reading{}), DefaultConfig())
	s.Start()
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestCloseWithoutStart(t *testing.T) {
	s := New(tec.NewFakeDriver(tec.Reading{}), DefaultConfig())
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	s.Start()
	if h := s.Health(); h.PollRunning || h.DispatchRunning {
		t.Error("Start after Close must not launch loops")
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	s := New(tec.NewFakeDriver(tec.Reading{}), DefaultConfig())
	a := &closingRecorder{}
	b := &closingRecorder{err: errors.New("disk full")}
	s.Subscribe(a)
	s.Subscribe(&recorder{})
	s.Subscribe(b)
	s.Start()

	err := s.Close()
	if err == nil || err.Error() != "disk full" {
		t.Errorf("Close: got %v, want disk full", err)
	}
	if !a.closed || !b.closed {
		t.Error("expected closable subscribers to be closed")
	}
}

func TestStartTwice(t *testing.T) {
	f := tec.NewFakeDriver(tec.Reading{})
	s, _ := newTestSession(t, f, 2*time.Millisecond)
	s.Start()
	s.Start()
	s.Submit(command.SetOutputEnable{Enabled: true})
	waitFor(t, "command", func() bool { return s.Health().CommandsApplied == 1 })
	if len(f.Writes()) != 1 {
		t.Errorf("expected command applied once, got %v", f.Writes())
	}
}

func TestSubmitBeforeStartQueues(t *testing.T) {
	s := New(tec.NewFakeDriver(tec.Reading{}), DefaultConfig())
	for i := 0; i < 1000; i++ {
		s.Submit(command.SetTemperature{Value: float64(i)})
	}
	if d := s.Health().QueueDepth; d != 1000 {
		t.Errorf("QueueDepth: got %d, want 1000", d)
	}
	s.Close()
	if d := s.Health().QueueDepth; d != 0 {
		t.Errorf("QueueDepth after Close: got %d, want 0", d)
	}
}

func TestFailedCommandDoesNotStopDispatch(t *testing.T) {
	f := tec.NewFakeDriver(tec.Reading{Temperature1: 20})
	f.SetWriteError("set_output_enable", errors.New("no ack"))
	s, _ := newTestSession(t, f, 2*time.Millisecond)
	s.Start()

	s.Submit(command.SetOutputEnable{Enabled: true}, command.SetTemperature{Value: 30})
	waitFor(t, "second command", func() bool { return s.Health().CommandsApplied == 1 })

	h := s.Health()
	if h.CommandErrors != 1 {
		t.Errorf("CommandErrors: got %d, want 1", h.CommandErrors)
	}
	if !h.DispatchRunning {
		t.Error("dispatch loop should keep running after a failed command")
	}
	if h.LastError == "" {
		t.Error("expected LastError to be recorded")
	}
	if s.SetPoint() != 30 {
		t.Errorf("SetPoint: got %v, want 30", s.SetPoint())
	}
}

func TestFailedSetTemperatureKeepsSetPoint(t *testing.T) {
	f := tec.NewFakeDriver(tec.Reading{Temperature1: 20})
	f.SetWriteError("set_temperature", errors.New("rejected"))
	s, _ := newTestSession(t, f, 2*time.Millisecond)
	s.Start()

	s.Submit(command.SetTemperature{Value: 55})
	waitFor(t, "command error", func() bool { return s.Health().CommandErrors == 1 })
	if s.SetPoint() != DefaultSetPoint {
		t.Errorf("SetPoint: got %v, want %v", s.SetPoint(), DefaultSetPoint)
	}
}

func TestPollErrorsAreSkipped(t *testing.T) {
	f := tec.NewFakeDriver(tec.Reading{Temperature1: 20})
	f.SetReadError(errors.New("serial timeout"))
	s, rec := newTestSession(t, f, 2*time.Millisecond)
	s.Start()

	waitFor(t, "poll errors", func() bool { return s.Health().PollErrors >= 3 })
	if rec.len() != 0 {
		t.Errorf("expected no samples while reads fail, got %d", rec.len())
	}

	f.SetReadError(nil)
	waitFor(t, "recovery", func() bool { return rec.len() >= 1 })
	if !s.Health().PollRunning {
		t.Error("poll loop should still be running")
	}
}

func TestPollLoopStopsAfterMaxErrors(t *testing.T) {
	f := tec.NewFakeDriver(tec.Reading{})
	f.SetReadError(errors.New("unplugged"))
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.MaxPollErrors = 3
	s := New(f, cfg)
	t.Cleanup(func() { s.Close() })
	s.Start()

	waitFor(t, "poll loop to stop", func() bool { return !s.Health().PollRunning })
	h := s.Health()
	if h.PollErrors != 3 {
		t.Errorf("PollErrors: got %d, want 3", h.PollErrors)
	}
	if !h.DispatchRunning {
		t.Error("dispatch loop should be unaffected")
	}

	s.Submit(command.SetOutputEnable{Enabled: false})
	waitFor(t, "command after poll stop", func() bool { return s.Health().CommandsApplied == 1 })
}

func TestWriteRequestSkipsPoll(t *testing.T) {
	f := tec.NewFakeDriver(tec.Reading{Temperature1: 20})
	s, rec := newTestSession(t, f, time.Millisecond)
	s.writeRequested.Store(true)
	s.Start()

	time.Sleep(20 * time.Millisecond)
	if n := rec.len(); n != 0 {
		t.Errorf("expected polls skipped while a write is pending, got %d samples", n)
	}

	s.writeRequested.Store(false)
	waitFor(t, "polls to resume", func() bool { return rec.len() >= 1 })
}

func TestSubscriberFunc(t *testing.T) {
	f := tec.NewFakeDriver(tec.Reading{Temperature1: 7})
	s, _ := newTestSession(t, f, time.Millisecond)

	got := make(chan Sample, 1)
	s.Subscribe(SubscriberFunc(func(sm Sample) {
		select {
		case got <- sm:
		default:
		}
	}))
	s.Start()

	select {
	case sm := <-got:
		if sm.Temperature1 != 7 {
			t.Errorf("Temperature1: got %v, want 7", sm.Temperature1)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no sample delivered")
	}
}
