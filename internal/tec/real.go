package tec

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// BaudRate is the fixed line rate of the TC-720 USB interface.
const BaudRate = 230400

// DefaultReadTimeout bounds how long a single reply may take.
const DefaultReadTimeout = 500 * time.Millisecond

// errTimeout is returned when the device stops answering mid-reply.
var errTimeout = errors.New("tec: read timeout")

// Port is the part of serial.Port the driver needs.
type Port interface {
	io.ReadWriteCloser
	// ResetInputBuffer discards bytes received but not yet read.
	ResetInputBuffer() error
}

// SerialDriver talks to a real controller over a serial port.
type SerialDriver struct {
	port Port
	buf  [1]byte
}

// OpenSerial opens the controller on the given port path (e.g. /dev/ttyUSB0).
func OpenSerial(path string) (*SerialDriver, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	if err := port.SetReadTimeout(DefaultReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	return NewSerialDriver(port), nil
}

// NewSerialDriver wraps an already open port. Reads on port must return
// (0, nil) or an error when the read timeout elapses.
func NewSerialDriver(port Port) *SerialDriver {
	return &SerialDriver{port: port}
}

// FindPort returns the path of the USB serial adapter whose serial number
// matches serialNumber.
func FindPort(serialNumber string) (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("list serial ports: %w", err)
	}
	for _, p := range ports {
		if p.IsUSB && strings.EqualFold(p.SerialNumber, serialNumber) {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("no USB serial port with serial number %q", serialNumber)
}

// transact sends one request frame and reads its reply value. Input left
// over from an earlier request that timed out is discarded first, so a late
// reply is never taken as the answer to this one.
func (d *SerialDriver) transact(cmd string, value int) (int, error) {
	if err := d.port.ResetInputBuffer(); err != nil {
		return 0, fmt.Errorf("reset input before %s: %w", cmd, err)
	}
	if _, err := d.port.Write(encodeFrame(cmd, value)); err != nil {
		return 0, fmt.Errorf("write %s: %w", cmd, err)
	}

	reply := make([]byte, 0, replyLen)
	for len(reply) < replyLen {
		n, err := d.port.Read(d.buf[:])
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", cmd, err)
		}
		if n == 0 {
			return 0, fmt.Errorf("read %s: %w", cmd, errTimeout)
		}
		c := d.buf[0]
		// Resynchronise on the start marker; stray bytes before it are noise.
		if len(reply) == 0 && c != frameStart {
			continue
		}
		reply = append(reply, c)
		if c == replyEnd {
			break
		}
	}

	v, err := decodeReply(reply)
	if err != nil {
		return 0, fmt.Errorf("reply to %s: %w", cmd, err)
	}
	return v, nil
}

func (d *SerialDriver) read(cmd string) (int, error) {
	return d.transact(cmd, 0)
}

func (d *SerialDriver) write(cmd string, value int) error {
	_, err := d.transact(cmd, value)
	return err
}

// Temperature returns the sensor 1 temperature in °C.
func (d *SerialDriver) Temperature() (float64, error) {
	raw, err := d.read(cmdGetTemp1)
	if err != nil {
		return 0, err
	}
	return rawToCelsius(raw), nil
}

// Temperature2 returns the sensor 2 temperature in °C.
func (d *SerialDriver) Temperature2() (float64, error) {
	raw, err := d.read(cmdGetTemp2)
	if err != nil {
		return 0, err
	}
	return rawToCelsius(raw), nil
}

// Output returns the drive output in percent.
func (d *SerialDriver) Output() (float64, error) {
	raw, err := d.read(cmdGetOutput)
	if err != nil {
		return 0, err
	}
	return rawToPercent(raw), nil
}

// SetPoint returns the set-point stored on the device.
func (d *SerialDriver) SetPoint() (float64, error) {
	raw, err := d.read(cmdGetSetPoint)
	if err != nil {
		return 0, err
	}
	return rawToCelsius(raw), nil
}

func (d *SerialDriver) SetTemperature(celsius float64) error {
	return d.write(cmdSetTemp, celsiusToRaw(celsius))
}

func (d *SerialDriver) SetOutputEnable(enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	return d.write(cmdSetOutputEnable, v)
}

func (d *SerialDriver) SetControlMode(mode ControlMode) error {
	return d.write(cmdSetControlType, int(mode))
}

func (d *SerialDriver) SetMode(mode Mode) error {
	return d.write(cmdSetMode, int(mode))
}

func (d *SerialDriver) SetSensor1Type(t SensorType) error {
	return d.write(cmdSetSensor1Choice, int(t))
}

func (d *SerialDriver) SetSensor2Type(t SensorType) error {
	return d.write(cmdSetSensor2Choice, int(t))
}

// Close closes the serial port.
func (d *SerialDriver) Close() error {
	return d.port.Close()
}
