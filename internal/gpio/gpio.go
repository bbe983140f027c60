// Package gpio reads the interlock input with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the interlock line.
type Reader interface {
	// Read returns whether the interlock is closed (safe).
	// The line is pulled up and the switch shorts it to ground, so a raw
	// low level means closed.
	Read() (closed bool, err error)

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO character device used by NewRealReader.
const DefaultChip = "gpiochip0"

// Disabled is the pin value that turns the interlock off.
const Disabled = -1
