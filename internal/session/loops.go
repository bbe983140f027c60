package session

import (
	"fmt"

	"github.com/sweeney/tec-monitor/internal/command"
)

func (s *Session) pollLoop() {
	defer s.wg.Done()
	defer s.pollRunning.Store(false)

	consecutive := 0
	for !s.stopped() {
		// A command is about to take the device; skip rather than queue
		// behind it.
		if !s.writeRequested.Load() {
			sample, err := s.poll()
			if err != nil {
				consecutive++
				s.pollErrors.Inc()
				s.recordError(err)
				s.log.Warnw("poll failed", "error", err, "consecutive", consecutive)
				if s.cfg.MaxPollErrors > 0 && consecutive >= s.cfg.MaxPollErrors {
					s.log.Errorw("poll loop stopped", "consecutive_errors", consecutive)
					return
				}
			} else {
				consecutive = 0
				s.publish(sample)
			}
		}

		if !s.wait(s.cfg.PollInterval) {
			return
		}
	}
}

// poll reads one sample while holding the device mutex. The set-point is
// the in-memory value, not re-read from the device.
func (s *Session) poll() (Sample, error) {
	s.device.Lock()
	setPoint := s.setPoint.Load()
	t1, err := s.driver.Temperature()
	if err != nil {
		s.device.Unlock()
		return Sample{}, fmt.Errorf("read temperature 1: %w", err)
	}
	t2, err := s.driver.Temperature2()
	if err != nil {
		s.device.Unlock()
		return Sample{}, fmt.Errorf("read temperature 2: %w", err)
	}
	out, err := s.driver.Output()
	s.device.Unlock()
	if err != nil {
		return Sample{}, fmt.Errorf("read output: %w", err)
	}

	return Sample{
		Timestamp:    s.clock.Now(),
		SetPoint:     setPoint,
		Temperature1: t1,
		Temperature2: t2,
		Output:       out,
	}, nil
}

// publish appends sample to the history and delivers it to subscribers.
func (s *Session) publish(sample Sample) {
	s.histMu.Lock()
	s.hist.push(sample)
	s.histMu.Unlock()
	s.samples.Inc()

	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, sub := range s.subs {
		sub.OnSample(sample)
	}
}

func (s *Session) dispatchLoop() {
	defer s.wg.Done()
	defer s.dispatchRunning.Store(false)

	for {
		for s.pending() > 0 {
			if s.stopped() {
				return
			}
			s.dispatchOne()
		}
		if !s.wait(s.cfg.DispatchInterval) {
			return
		}
	}
}

func (s *Session) pending() int {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return len(s.queue)
}

func (s *Session) dequeue() (command.Command, bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	c := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return c, true
}

// dispatchOne applies the oldest queued command. A failed command is
// logged and counted; it does not stop the loop.
func (s *Session) dispatchOne() {
	s.writeRequested.Store(true)
	s.device.Lock()
	s.writeRequested.Store(false)

	c, ok := s.dequeue()
	if !ok {
		s.device.Unlock()
		return
	}
	err := command.Apply(s.driver, c)
	if err == nil {
		// Updated before unlocking so the first poll after the command
		// reports the new value.
		if st, ok := c.(command.SetTemperature); ok {
			s.setPoint.Store(st.Value)
		}
	}
	s.device.Unlock()

	if err != nil {
		s.commandErrors.Inc()
		s.recordError(fmt.Errorf("%s: %w", c, err))
		s.log.Errorw("command failed", "command", c.String(), "error", err)
		return
	}
	s.applied.Inc()
	s.log.Infow("command applied", "command", c.String())
}
