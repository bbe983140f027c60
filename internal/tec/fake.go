package tec

import (
	"errors"
	"sync"
)

// Call is one recorded driver invocation.
type Call struct {
	Op    string
	Value float64
}

// Reading is one scripted set of measurements.
type Reading struct {
	Temperature1 float64
	Temperature2 float64
	Output       float64
}

// FakeDriver is a test double that returns scripted readings and records
// every call in order. It is safe for concurrent use so tests can inspect
// it while a session is running.
type FakeDriver struct {
	mu sync.Mutex

	readings []Reading
	index    int
	setPoint float64
	calls    []Call
	closed   bool

	// ReadError, if set, is returned by every getter.
	ReadError error
	// WriteErrors maps an operation name to the error its setter returns.
	WriteErrors map[string]error
}

// NewFakeDriver creates a FakeDriver with the given readings.
// Temperature, Temperature2 and Output all read the current row; Output is
// the last read of a poll and advances to the next row. Once exhausted the
// last reading repeats.
func NewFakeDriver(readings ...Reading) *FakeDriver {
	return &FakeDriver{readings: readings, WriteErrors: map[string]error{}}
}

func (f *FakeDriver) record(op string, v float64) {
	f.calls = append(f.calls, Call{Op: op, Value: v})
}

func (f *FakeDriver) current() (Reading, error) {
	if f.ReadError != nil {
		return Reading{}, f.ReadError
	}
	if len(f.readings) == 0 {
		return Reading{}, errors.New("no readings configured")
	}
	return f.readings[f.index], nil
}

func (f *FakeDriver) Temperature() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("temperature", 0)
	r, err := f.current()
	return r.Temperature1, err
}

func (f *FakeDriver) Temperature2() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("temperature2", 0)
	r, err := f.current()
	return r.Temperature2, err
}

func (f *FakeDriver) Output() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("output", 0)
	r, err := f.current()
	if err != nil {
		return 0, err
	}
	if f.index < len(f.readings)-1 {
		f.index++
	}
	return r.Output, nil
}

func (f *FakeDriver) SetPoint() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("set_point", 0)
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	return f.setPoint, nil
}

func (f *FakeDriver) write(op string, v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(op, v)
	return f.WriteErrors[op]
}

func (f *FakeDriver) SetTemperature(celsius float64) error {
	if err := f.write("set_temperature", celsius); err != nil {
		return err
	}
	f.mu.Lock()
	f.setPoint = celsius
	f.mu.Unlock()
	return nil
}

func (f *FakeDriver) SetOutputEnable(enabled bool) error {
	v := 0.0
	if enabled {
		v = 1
	}
	return f.write("set_output_enable", v)
}

func (f *FakeDriver) SetControlMode(mode ControlMode) error {
	return f.write("set_control_mode", float64(mode))
}

func (f *FakeDriver) SetMode(mode Mode) error {
	return f.write("set_mode", float64(mode))
}

func (f *FakeDriver) SetSensor1Type(t SensorType) error {
	return f.write("set_sensor1_type", float64(t))
}

func (f *FakeDriver) SetSensor2Type(t SensorType) error {
	return f.write("set_sensor2_type", float64(t))
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeDriver) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Calls returns a copy of the recorded calls.
func (f *FakeDriver) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Writes returns the recorded setter calls only.
func (f *FakeDriver) Writes() []Call {
	var out []Call
	for _, c := range f.Calls() {
		switch c.Op {
		case "temperature", "temperature2", "output", "set_point":
			continue
		}
		out = append(out, c)
	}
	return out
}

// SetReadError changes ReadError while a session may be polling.
func (f *FakeDriver) SetReadError(err error) {
	f.mu.Lock()
	f.ReadError = err
	f.mu.Unlock()
}

// SetWriteError changes the error returned by op's setter.
func (f *FakeDriver) SetWriteError(op string, err error) {
	f.mu.Lock()
	f.WriteErrors[op] = err
	f.mu.Unlock()
}
