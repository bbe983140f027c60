//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
)

// RealReader reads the interlock from hardware using the Linux GPIO
// character device.
type RealReader struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealReader requests pin on chip as a pulled-up input.
func NewRealReader(chip string, pin int) (*RealReader, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chip, err)
	}

	// Pull-up so a disconnected switch reads as open.
	line, err := c.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request interlock pin %d: %w", pin, err)
	}

	return &RealReader{chip: c, line: line}, nil
}

// Read returns true when the line is held low by the closed switch.
func (r *RealReader) Read() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read interlock pin: %w", err)
	}
	return v == 0, nil
}

// Close releases GPIO resources.
// The line is returned to a plain pulled-down input before release, the
// boot default on a Raspberry Pi.
func (r *RealReader) Close() error {
	var err error
	if r.line != nil {
		if rerr := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); rerr != nil {
			err = multierr.Append(err, fmt.Errorf("reconfigure interlock pin: %w", rerr))
		}
		if cerr := r.line.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close interlock pin: %w", cerr))
		}
	}
	if r.chip != nil {
		if cerr := r.chip.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close chip: %w", cerr))
		}
	}
	return err
}
