package session

import "time"

// Sample is one successful poll of the controller.
type Sample struct {
	Timestamp    time.Time
	SetPoint     float64
	Temperature1 float64
	Temperature2 float64
	Output       float64
}

// Series is a columnar copy of the retained history, oldest first.
// All slices have the same length.
type Series struct {
	Times        []time.Time
	SetPoints    []float64
	Temperature1 []float64
	Temperature2 []float64
	Output       []float64
}

// Len returns the number of samples in the series.
func (s Series) Len() int {
	return len(s.Times)
}

// Health reports the state of the session loops.
// It is a value type, safe to use after the call returns.
type Health struct {
	PollRunning     bool
	DispatchRunning bool
	Samples         uint64
	PollErrors      uint64
	CommandsApplied uint64
	CommandErrors   uint64
	QueueDepth      int
	LastError       string
	LastErrorAt     time.Time
}

// Subscriber receives every sample from the poll goroutine. OnSample must
// return quickly; it delays the next poll.
type Subscriber interface {
	OnSample(Sample)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(Sample)

// OnSample calls f(s).
func (f SubscriberFunc) OnSample(s Sample) {
	f(s)
}
