package command

import (
	"fmt"
	"math"

	"github.com/sweeney/tec-monitor/internal/tec"
)

// Parse converts a named request, as received over MQTT or HTTP, into
// commands. "set_point" expands to the full set-point sequence; every
// other name maps to exactly one command.
func Parse(name string, args []float64) ([]Command, error) {
	switch name {
	case "set_point":
		v, err := one(name, args)
		if err != nil {
			return nil, err
		}
		return SetPoint(v)

	case "set_temperature", "set_temp":
		v, err := one(name, args)
		if err != nil {
			return nil, err
		}
		if v < MinSetPoint || v > MaxSetPoint {
			return nil, fmt.Errorf("%w: %g", ErrOutOfRange, v)
		}
		return []Command{SetTemperature{Value: v}}, nil

	case "set_output_enable":
		v, err := integer(name, args, 0, 1)
		if err != nil {
			return nil, err
		}
		return []Command{SetOutputEnable{Enabled: v == 1}}, nil

	case "set_control_mode", "set_control_type":
		v, err := integer(name, args, int(tec.ControlPID), int(tec.ControlManual))
		if err != nil {
			return nil, err
		}
		return []Command{SetControlMode{Mode: tec.ControlMode(v)}}, nil

	case "set_mode":
		v, err := integer(name, args, int(tec.ModeNormal), int(tec.ModePotInput))
		if err != nil {
			return nil, err
		}
		return []Command{SetMode{Mode: tec.Mode(v)}}, nil

	case "set_sensor1_type", "set_sensor2_type":
		v, err := integer(name, args, 0, 255)
		if err != nil {
			return nil, err
		}
		sensor := 1
		if name == "set_sensor2_type" {
			sensor = 2
		}
		return []Command{SetSensorType{Sensor: sensor, Type: tec.SensorType(v)}}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

func one(name string, args []float64) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: %s takes 1 argument, got %d", ErrArgs, name, len(args))
	}
	if math.IsNaN(args[0]) || math.IsInf(args[0], 0) {
		return 0, fmt.Errorf("%w: %s: %v", ErrArgs, name, args[0])
	}
	return args[0], nil
}

func integer(name string, args []float64, lo, hi int) (int, error) {
	v, err := one(name, args)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) || v < float64(lo) || v > float64(hi) {
		return 0, fmt.Errorf("%w: %s: %v not an integer in [%d, %d]", ErrArgs, name, v, lo, hi)
	}
	return int(v), nil
}
