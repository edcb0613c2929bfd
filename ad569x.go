// Package ad569x provides a driver for the Analog Devices AD5691R, AD5692R,
// and AD5693R single-channel, 12/14/16-bit nanoDAC+ converters with an I²C
// interface. Every operation is a single 3-byte frame: a command byte followed
// by a 16-bit big-endian data word.
//
// The driver does no volts-to-counts conversion. Values are raw 16-bit counts
// (the 12- and 14-bit parts ignore the low-order bits).
//
// Datasheet: https://www.analog.com/media/en/technical-documentation/data-sheets/AD5693R_5692R_5691R_5693.pdf
//
// Transports: package mcp2221 (USB-HID bridge) and package periphbus (any
// periph.io I²C bus) both satisfy the Bus interface.
package ad569x

import "fmt"

// Bus is the transport used by a Device. Write performs one addressed,
// blocking I²C write of buf to the 7-bit target address addr.
//
// Errors returned by Write are passed back to the caller of the Device method
// untouched.
type Bus interface {
	Write(addr uint8, buf []byte) error
}

// I²C target addresses selected by the A1 and A0 pins.
const (
	AddrA1LowA0Low   uint8 = 0x4C
	AddrA1LowA0High  uint8 = 0x4D
	AddrA1HighA0Low  uint8 = 0x4E
	AddrA1HighA0High uint8 = 0x4F

	DefaultAddress = AddrA1LowA0Low
)

// FrameSz is the size (in bytes) of every command frame.
const FrameSz = 3

// -----------------------------------------------------------------------------
// -- COMMANDS ------------------------------------------------------ [start] --

// Command is the first byte of every frame.
type Command byte

// Constants for all recognized commands. The set is fixed by the hardware.
const (
	CmdNOP              Command = 0x00 // no operation
	CmdWriteInput       Command = 0x10 // write input register
	CmdUpdateDAC        Command = 0x20 // copy input register to DAC register
	CmdWriteInputUpdate Command = 0x30 // write input and DAC registers
	CmdWriteControl     Command = 0x40 // write control register
)

// Valid reports whether c is one of the recognized commands.
func (c Command) Valid() bool {
	switch c {
	case CmdNOP, CmdWriteInput, CmdUpdateDAC, CmdWriteInputUpdate, CmdWriteControl:
		return true
	}
	return false
}

func (c Command) String() string {
	switch c {
	case CmdNOP:
		return "NOP"
	case CmdWriteInput:
		return "WriteInput"
	case CmdUpdateDAC:
		return "UpdateDAC"
	case CmdWriteInputUpdate:
		return "WriteInputUpdate"
	case CmdWriteControl:
		return "WriteControl"
	}
	return fmt.Sprintf("Command(0x%02X)", byte(c))
}

// -- COMMANDS -------------------------------------------------------- [end] --
// -----------------------------------------------------------------------------

// -----------------------------------------------------------------------------
// -- CONTROL REGISTER ---------------------------------------------- [start] --

// Mode is the 2-bit operating mode field of the control register. All modes
// other than ModeNormal power down the output amplifier.
type Mode byte

// Constants for the enumerated operating modes.
const (
	ModeNormal     Mode = 0x00 // normal operation
	ModeOutput1k   Mode = 0x01 // powered down, 1 kΩ to GND
	ModeOutput100k Mode = 0x02 // powered down, 100 kΩ to GND
	ModeTristate   Mode = 0x03 // powered down, three-state output
)

// Valid reports whether m fits in the 2-bit mode field.
func (m Mode) Valid() bool {
	return m <= ModeTristate
}

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "Normal"
	case ModeOutput1k:
		return "Output1kImpedance"
	case ModeOutput100k:
		return "Output100kImpedance"
	case ModeTristate:
		return "OutputTristate"
	}
	return fmt.Sprintf("Mode(%d)", byte(m))
}

// Control register bit positions (MSB first):
//    15: RESET  14-13: PD1,PD0  12: REF  11: GAIN  10-0: zero
const (
	ctrlReset     uint16 = 1 << 15
	ctrlModeShift        = 13
	ctrlModeMask  uint16 = 0x3
	ctrlRefShift         = 12
	ctrlGainShift        = 11
)

// ControlReset is the control word that performs a software reset.
const ControlReset = ctrlReset

// ControlWord packs the operating mode, reference enable, and 2× gain select
// into a control register data word. Only the low 2 bits of mode are used, so
// the reset bit and bits 10-0 are always zero.
func ControlWord(mode Mode, ref bool, gain2x bool) uint16 {
	word := (uint16(mode) & ctrlModeMask) << ctrlModeShift
	if ref {
		word |= 1 << ctrlRefShift
	}
	if gain2x {
		word |= 1 << ctrlGainShift
	}
	return word
}

// ParseControlWord is the inverse of ControlWord. The reset bit is reported
// separately since it is never set together with the other fields.
func ParseControlWord(word uint16) (mode Mode, ref bool, gain2x bool, reset bool) {
	mode = Mode((word >> ctrlModeShift) & ctrlModeMask)
	ref = 0 != (word>>ctrlRefShift)&1
	gain2x = 0 != (word>>ctrlGainShift)&1
	reset = 0 != word&ctrlReset
	return
}

// -- CONTROL REGISTER ------------------------------------------------ [end] --
// -----------------------------------------------------------------------------

// -----------------------------------------------------------------------------
// -- FRAME --------------------------------------------------------- [start] --

// Frame is the wire representation of one operation:
//    [command] [data MSB] [data LSB]
type Frame [FrameSz]byte

// EncodeFrame builds the frame for command cmd with data word data.
func EncodeFrame(cmd Command, data uint16) Frame {
	return Frame{byte(cmd), byte(data >> 8), byte(data & 0xFF)}
}

// DecodeFrame parses buf as a frame. Returns false if buf is not exactly
// FrameSz bytes long.
func DecodeFrame(buf []byte) (Frame, bool) {
	var f Frame
	if FrameSz != len(buf) {
		return f, false
	}
	copy(f[:], buf)
	return f, true
}

// Command returns the command byte of the frame.
func (f Frame) Command() Command { return Command(f[0]) }

// Data returns the 16-bit data word of the frame.
func (f Frame) Data() uint16 { return (uint16(f[1]) << 8) | uint16(f[2]) }

func (f Frame) String() string {
	return fmt.Sprintf("%v{0x%04X}", f.Command(), f.Data())
}

// -- FRAME ----------------------------------------------------------- [end] --
// -----------------------------------------------------------------------------

// -----------------------------------------------------------------------------
// -- DEVICE -------------------------------------------------------- [start] --

// Device is a handle to a single AD569x on a Bus. It holds no state other
// than the bus and address; the chip holds everything else.
//
// A Device is not safe for concurrent use. Callers sharing a Bus between
// goroutines must serialize access themselves.
type Device struct {
	bus  Bus
	addr uint8
}

// New returns a Device that talks to the chip at 7-bit address addr through
// bus. No bus traffic occurs and addr is not validated.
func New(bus Bus, addr uint8) *Device {
	return &Device{bus: bus, addr: addr}
}

// Addr returns the I²C address of the device.
func (d *Device) Addr() uint8 { return d.addr }

// send encodes cmd and data into a frame and transmits it with exactly one
// bus write. The bus error, if any, is returned as-is.
func (d *Device) send(cmd Command, data uint16) error {
	f := EncodeFrame(cmd, data)
	return d.bus.Write(d.addr, f[:])
}

// Init soft-resets the chip and then configures normal mode with the internal
// reference enabled and 1× gain.
//
// Returns the first bus error encountered; the mode is not configured if the
// reset write fails. See Reset for why that error may be spurious.
func (d *Device) Init() error {

	if err := d.Reset(); nil != err {
		return err
	}

	return d.SetMode(ModeNormal, true, false)
}

// Stage writes val to the input register. The output does not change until
// Commit is called.
func (d *Device) Stage(val uint16) error {
	return d.send(CmdWriteInput, val)
}

// Commit copies the input register to the DAC register, updating the output.
func (d *Device) Commit() error {
	return d.send(CmdUpdateDAC, 0x0000)
}

// WriteAndCommit writes val to the input register and updates the DAC
// register in a single frame.
func (d *Device) WriteAndCommit(val uint16) error {
	return d.send(CmdWriteInputUpdate, val)
}

// Reset performs a software reset: the output goes to zero-scale and the
// input, DAC, and control registers return to their power-on defaults.
//
// The chip may reset before acknowledging the end of the frame, so the bus
// can report a failure (typically a NACK) even though the reset happened.
// The error is returned anyway; callers may decide to treat an error from
// Reset as advisory.
func (d *Device) Reset() error {
	return d.send(CmdWriteControl, ControlReset)
}

// SetMode writes the control register with the given operating mode,
// internal reference enable, and 2× gain select.
func (d *Device) SetMode(mode Mode, ref bool, gain2x bool) error {
	return d.send(CmdWriteControl, ControlWord(mode, ref, gain2x))
}

// -- DEVICE ---------------------------------------------------------- [end] --
// -----------------------------------------------------------------------------
