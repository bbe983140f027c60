// Package tec provides access to a TC-720 thermoelectric temperature controller.
// The real implementation talks to the device over a USB serial adapter.
// The simulated and fake implementations allow running without hardware.
package tec

import "fmt"

// Driver is the capability set of a temperature controller.
// Implementations are synchronous and NOT safe for concurrent use;
// callers must serialize access.
type Driver interface {
	// Temperature returns the sensor 1 temperature in °C.
	Temperature() (float64, error)
	// Temperature2 returns the sensor 2 temperature in °C.
	Temperature2() (float64, error)
	// Output returns the drive output in percent (-100..100).
	Output() (float64, error)
	// SetPoint returns the target temperature held by the device.
	SetPoint() (float64, error)

	SetTemperature(celsius float64) error
	SetOutputEnable(enabled bool) error
	SetControlMode(mode ControlMode) error
	SetMode(mode Mode) error
	SetSensor1Type(t SensorType) error
	SetSensor2Type(t SensorType) error

	// Close releases the underlying port.
	Close() error
}

// Mode selects how the controller derives its set-point.
type Mode int

const (
	ModeNormal   Mode = 0 // single fixed set-point
	ModeRamp     Mode = 1 // ramp/soak program
	ModePotInput Mode = 2 // external potentiometer
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeRamp:
		return "ramp"
	case ModePotInput:
		return "pot"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ControlMode selects the control algorithm.
type ControlMode int

const (
	ControlPID    ControlMode = 0
	ControlManual ControlMode = 1
)

func (c ControlMode) String() string {
	switch c {
	case ControlPID:
		return "pid"
	case ControlManual:
		return "manual"
	}
	return fmt.Sprintf("control(%d)", int(c))
}

// SensorType identifies the temperature sensor attached to an input.
type SensorType int

// SensorThermistor10k is a 10 kΩ thermistor, type 1 (TS-91).
const SensorThermistor10k SensorType = 1

// Init puts a freshly opened controller into the state the monitor expects:
// both inputs read 10 kΩ thermistors.
func Init(d Driver) error {
	if err := d.SetSensor1Type(SensorThermistor10k); err != nil {
		return fmt.Errorf("set sensor 1 type: %w", err)
	}
	if err := d.SetSensor2Type(SensorThermistor10k); err != nil {
		return fmt.Errorf("set sensor 2 type: %w", err)
	}
	return nil
}
