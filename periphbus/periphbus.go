// Package periphbus adapts a periph.io I²C bus to the ad569x.Bus interface,
// so the driver can run on any host periph supports (Linux i2c-dev, FT232H,
// and so on).
package periphbus

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Bus implements ad569x.Bus on top of an i2c.Bus.
type Bus struct {
	b i2c.Bus
}

// New wraps an already opened periph I²C bus.
func New(b i2c.Bus) *Bus {
	return &Bus{b: b}
}

// Open initializes the periph host drivers and opens the named I²C bus. An
// empty name selects the first bus found. The returned closer must be closed
// once the bus is no longer in use.
func Open(name string) (*Bus, i2c.BusCloser, error) {

	if _, err := host.Init(); nil != err {
		return nil, nil, fmt.Errorf("host.Init(): %w", err)
	}

	bc, err := i2creg.Open(name)
	if nil != err {
		return nil, nil, fmt.Errorf("i2creg.Open(%q): %w", name, err)
	}

	return New(bc), bc, nil
}

// SetSpeed sets the bus clock. The AD569x supports up to 400 kHz.
func (p *Bus) SetSpeed(f physic.Frequency) error {
	return p.b.SetSpeed(f)
}

// Write implements ad569x.Bus. The periph error is returned unchanged.
func (p *Bus) Write(addr uint8, buf []byte) error {
	return p.b.Tx(uint16(addr), buf, nil)
}

func (p *Bus) String() string {
	return p.b.String()
}
