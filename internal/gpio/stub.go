//go:build !linux

package gpio

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned when the button is configured on a platform
// without the GPIO character device.
var ErrUnsupported = errors.New("gpio: character device requires Linux")

// RealReader is a placeholder so the agent builds off Linux.
type RealReader struct{}

// NewRealReader always fails off Linux; configure button.pin 0 there.
func NewRealReader(chip string, pin int) (*RealReader, error) {
	return nil, fmt.Errorf("%w (%s line %d)", ErrUnsupported, chip, pin)
}

func (r *RealReader) Read() (bool, error) { return false, ErrUnsupported }

func (r *RealReader) Close() error { return nil }
