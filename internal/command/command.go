// Package command defines the closed set of operations that can be sent to
// a temperature controller, and how they are parsed from named requests.
package command

import (
	"errors"
	"fmt"

	"github.com/sweeney/tec-monitor/internal/tec"
)

// Set-point limits accepted from users.
const (
	MinSetPoint = -20.0
	MaxSetPoint = 60.0
)

var (
	// ErrUnknownCommand is returned by Parse for names outside the command set.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrArgs is returned by Parse when the argument count or values are wrong.
	ErrArgs = errors.New("bad command arguments")
	// ErrOutOfRange is returned for a set-point outside [MinSetPoint, MaxSetPoint].
	ErrOutOfRange = errors.New("set-point out of range")
)

// Command is one controller operation. The set is closed: only the types
// in this package implement it.
type Command interface {
	fmt.Stringer
	command()
}

// SetTemperature changes the target temperature.
type SetTemperature struct {
	Value float64
}

// SetOutputEnable turns the drive output on or off.
type SetOutputEnable struct {
	Enabled bool
}

// SetControlMode selects PID or manual control.
type SetControlMode struct {
	Mode tec.ControlMode
}

// SetMode selects the set-point source.
type SetMode struct {
	Mode tec.Mode
}

// SetSensorType configures the sensor on input 1 or 2.
type SetSensorType struct {
	Sensor int
	Type   tec.SensorType
}

func (SetTemperature) command()  {}
func (SetOutputEnable) command() {}
func (SetControlMode) command()  {}
func (SetMode) command()         {}
func (SetSensorType) command()   {}

func (c SetTemperature) String() string  { return fmt.Sprintf("set_temperature(%g)", c.Value) }
func (c SetOutputEnable) String() string { return fmt.Sprintf("set_output_enable(%t)", c.Enabled) }
func (c SetControlMode) String() string  { return fmt.Sprintf("set_control_mode(%s)", c.Mode) }
func (c SetMode) String() string         { return fmt.Sprintf("set_mode(%s)", c.Mode) }
func (c SetSensorType) String() string {
	return fmt.Sprintf("set_sensor%d_type(%d)", c.Sensor, int(c.Type))
}

// Apply performs c on d.
func Apply(d tec.Driver, c Command) error {
	switch c := c.(type) {
	case SetTemperature:
		return d.SetTemperature(c.Value)
	case SetOutputEnable:
		return d.SetOutputEnable(c.Enabled)
	case SetControlMode:
		return d.SetControlMode(c.Mode)
	case SetMode:
		return d.SetMode(c.Mode)
	case SetSensorType:
		switch c.Sensor {
		case 1:
			return d.SetSensor1Type(c.Type)
		case 2:
			return d.SetSensor2Type(c.Type)
		}
		return fmt.Errorf("%w: sensor %d", ErrArgs, c.Sensor)
	}
	return fmt.Errorf("%w: %T", ErrUnknownCommand, c)
}

// SetPoint returns the commands that move the controller to a new fixed
// set-point: normal mode, PID control, then the target itself.
func SetPoint(celsius float64) ([]Command, error) {
	if celsius < MinSetPoint || celsius > MaxSetPoint {
		return nil, fmt.Errorf("%w: %g not in [%g, %g]", ErrOutOfRange, celsius, MinSetPoint, MaxSetPoint)
	}
	return []Command{
		SetMode{Mode: tec.ModeNormal},
		SetControlMode{Mode: tec.ControlPID},
		SetTemperature{Value: celsius},
	}, nil
}
