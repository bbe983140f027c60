package tec

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"
)

// Simulation constants. The plate is modelled as a single thermal mass
// driven by the output and leaking toward ambient.
const (
	simAmbient   = 22.0 // °C
	simGain      = 40.0 // % output per °C of error
	simDriveRate = 0.5  // °C/s at 100 % output
	simLeakRate  = 0.02 // 1/s toward ambient
	simSinkRise  = 0.08 // °C of sink rise per % output
	simSinkRate  = 0.1  // 1/s sink settling
	simMaxStep   = 0.1  // s, integration step
)

// SimDriver is an in-memory controller with a first-order thermal model.
// Time advances with the supplied clock, so a mock clock makes it
// deterministic.
type SimDriver struct {
	clock clock.Clock
	last  time.Time

	setPoint    float64
	enabled     bool
	mode        Mode
	controlMode ControlMode
	sensor1     SensorType
	sensor2     SensorType

	temp   float64
	sink   float64
	output float64
}

// NewSimDriver creates a simulated controller sitting at ambient temperature.
// A nil clock uses the wall clock.
func NewSimDriver(clk clock.Clock) *SimDriver {
	if clk == nil {
		clk = clock.New()
	}
	return &SimDriver{
		clock:    clk,
		last:     clk.Now(),
		setPoint: 20,
		temp:     simAmbient,
		sink:     simAmbient,
	}
}

// step integrates the model up to the current clock time.
func (s *SimDriver) step() {
	now := s.clock.Now()
	dt := now.Sub(s.last).Seconds()
	s.last = now
	for dt > 0 {
		h := math.Min(dt, simMaxStep)
		dt -= h

		s.output = 0
		if s.enabled && s.controlMode == ControlPID {
			s.output = math.Max(-100, math.Min(100, simGain*(s.setPoint-s.temp)))
		}

		s.temp += (s.output/100*simDriveRate + (simAmbient-s.temp)*simLeakRate) * h
		target := simAmbient + math.Abs(s.output)*simSinkRise
		s.sink += (target - s.sink) * simSinkRate * h
	}
}

func (s *SimDriver) Temperature() (float64, error) {
	s.step()
	return round2(s.temp), nil
}

func (s *SimDriver) Temperature2() (float64, error) {
	s.step()
	return round2(s.sink), nil
}

func (s *SimDriver) Output() (float64, error) {
	s.step()
	return round2(s.output), nil
}

func (s *SimDriver) SetPoint() (float64, error) {
	return s.setPoint, nil
}

func (s *SimDriver) SetTemperature(celsius float64) error {
	s.step()
	s.setPoint = celsius
	return nil
}

func (s *SimDriver) SetOutputEnable(enabled bool) error {
	s.step()
	s.enabled = enabled
	return nil
}

func (s *SimDriver) SetControlMode(mode ControlMode) error {
	s.step()
	s.controlMode = mode
	return nil
}

func (s *SimDriver) SetMode(mode Mode) error {
	s.mode = mode
	return nil
}

func (s *SimDriver) SetSensor1Type(t SensorType) error {
	s.sensor1 = t
	return nil
}

func (s *SimDriver) SetSensor2Type(t SensorType) error {
	s.sensor2 = t
	return nil
}

func (s *SimDriver) Close() error {
	return nil
}

// round2 matches the device's hundredth-of-a-degree resolution.
func round2(v float64) float64 {
	return math.Round(v*tempScale) / tempScale
}
