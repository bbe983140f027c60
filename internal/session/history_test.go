package session

import (
	"testing"
	"time"
)

func TestHistoryEmpty(t *testing.T) {
	h := newHistory(3)
	if s := h.series(); s.Len() != 0 {
		t.Errorf("expected empty series, got %d", s.Len())
	}
	if _, ok := h.last(); ok {
		t.Error("expected no last sample")
	}
}

func TestHistoryOverwritesOldest(t *testing.T) {
	h := newHistory(3)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		h.push(Sample{Timestamp: base.Add(time.Duration(i) * time.Second), Temperature1: float64(i)})
	}

	s := h.series()
	if s.Len() != 3 || h.len() != 3 {
		t.Fatalf("expected 3 samples, got %d", s.Len())
	}
	for i, want := range []float64{2, 3, 4} {
		if s.Temperature1[i] != want {
			t.Errorf("row %d: got %v, want %v", i, s.Temperature1[i], want)
		}
	}
	last, _ := h.last()
	if last.Temperature1 != 4 {
		t.Errorf("last: got %v, want 4", last.Temperature1)
	}
}

func TestHistoryMinimumCapacity(t *testing.T) {
	h := newHistory(0)
	h.push(Sample{Temperature1: 1})
	h.push(Sample{Temperature1: 2})
	if s := h.series(); s.Len() != 1 || s.Temperature1[0] != 2 {
		t.Errorf("got %+v", s)
	}
}
