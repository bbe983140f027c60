package session

import (
	"time"

	"github.com/sweeney/tec-monitor/internal/ring"
)

// history keeps the most recent samples for plotting. Not safe for
// concurrent use; the session guards it with histMu.
type history struct {
	samples *ring.Ring[Sample]
}

func newHistory(capacity int) *history {
	return &history{samples: ring.New[Sample](capacity)}
}

func (h *history) push(s Sample) {
	h.samples.Push(s)
}

// series returns the retained samples, oldest first, as columns.
func (h *history) series() Series {
	n := h.samples.Len()
	out := Series{
		Times:        make([]time.Time, 0, n),
		SetPoints:    make([]float64, 0, n),
		Temperature1: make([]float64, 0, n),
		Temperature2: make([]float64, 0, n),
		Output:       make([]float64, 0, n),
	}
	h.samples.Do(func(s Sample) {
		out.Times = append(out.Times, s.Timestamp)
		out.SetPoints = append(out.SetPoints, s.SetPoint)
		out.Temperature1 = append(out.Temperature1, s.Temperature1)
		out.Temperature2 = append(out.Temperature2, s.Temperature2)
		out.Output = append(out.Output, s.Output)
	})
	return out
}

func (h *history) last() (Sample, bool) {
	return h.samples.Last()
}

func (h *history) len() int {
	return h.samples.Len()
}
