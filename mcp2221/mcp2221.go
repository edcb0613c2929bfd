// Package mcp2221 provides an ad569x.Bus backed by the I²C master of a
// Microchip MCP2221A USB to GPIO/I²C/UART protocol converter. The I²C module
// is implemented as a USB HID-class device, and all communication happens in
// fixed 64-byte HID reports.
//
// Only the I²C write path is implemented, which is all an AD569x needs.
//
// Datasheet: http://ww1.microchip.com/downloads/en/devicedoc/20005565b.pdf
//
// USB HID support provided by: https://github.com/karalabe/hid
package mcp2221

import (
	"errors"
	"fmt"
	"time"

	usb "github.com/karalabe/hid"
)

// VID and PID are the official vendor and product identifiers assigned by the
// USB-IF.
const (
	VID = 0x04D8 // 16-bit vendor ID for Microchip Technology Inc.
	PID = 0x00DD // 16-bit product ID for the Microchip MCP2221A.
)

// MsgSz is the size (in bytes) of all command and response messages.
const MsgSz = 64

// ClkHz is the internal clock frequency of the MCP2221A.
const ClkHz = 12000000

// WordSet and WordClr are the logical true and false values for a single word
// (byte) in a message.
const (
	WordSet byte = 0xFF
	WordClr byte = 0x00
)

// Errors reported by the bridge. They are wrapped with call-site context, so
// use errors.Is to test for them.
var (
	ErrClosed  = errors.New("mcp2221: USB HID device not open")
	ErrCommand = errors.New("mcp2221: command failed")
	ErrNACK    = errors.New("mcp2221: I²C NACK")
	ErrTimeout = errors.New("mcp2221: I²C timeout")
	ErrRetries = errors.New("mcp2221: too many retries")
	ErrBusy    = errors.New("mcp2221: I²C transfer in progress")
)

// Constants for the commands used by this package. These are sent as the
// first word in all command messages, and are echoed back as the first word in
// all response messages.
const (
	cmdStatus    byte = 0x10
	cmdSetParams byte = 0x10

	cmdI2CWrite       byte = 0x90
	cmdI2CWriteNoStop byte = 0x94

	cmdReset byte = 0x70
)

// hidDevice is the subset of *usb.Device used by the bridge.
type hidDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// makeMsg creates a new zero'd slice with required length of command and
// response messages, both of which are always 64 bytes.
func makeMsg() []byte { return make([]byte, MsgSz) }

// -----------------------------------------------------------------------------
// -- DEVICE -------------------------------------------------------- [start] --

// Bridge is an opened MCP2221A. It implements ad569x.Bus.
//
// If multiple MCP2221A devices are connected to the host PC, the index of the
// desired target can be determined with Devices() and passed to Open().
// Call Close() on the bridge when finished to release the USB connection.
type Bridge struct {
	dev   hidDevice
	index byte
	vid   uint16
	pid   uint16
}

// Devices returns all connected USB HID device descriptors matching the given
// VID and PID.
func Devices(vid uint16, pid uint16) []usb.DeviceInfo {
	return usb.Enumerate(vid, pid)
}

// openHID opens the HID device enumerated at index idx.
func openHID(idx byte, vid uint16, pid uint16) (hidDevice, error) {

	info := Devices(vid, pid)
	if int(idx) >= len(info) {
		return nil, fmt.Errorf("device index %d out of range (%d found)", idx, len(info))
	}

	dev, err := info[idx].Open()
	if nil != err {
		return nil, err
	}
	return dev, nil
}

// Open returns a new Bridge with the given VID and PID, enumerated at the given
// index (an index of 0 will use the first device found).
//
// Returns an error if index is out of range or if the USB HID device could not
// be claimed or opened.
func Open(idx byte, vid uint16, pid uint16) (*Bridge, error) {

	dev, err := openHID(idx, vid, pid)
	if nil != err {
		return nil, err
	}

	return &Bridge{dev: dev, index: idx, vid: vid, pid: pid}, nil
}

// valid verifies the receiver and USB HID device are both not nil.
func (b *Bridge) valid() (bool, error) {

	if nil == b || nil == b.dev {
		return false, ErrClosed
	}

	return true, nil
}

// Close releases the USB HID connection. Subsequent calls return ErrClosed.
func (b *Bridge) Close() error {

	if ok, err := b.valid(); !ok {
		return err
	}

	err := b.dev.Close()
	b.dev = nil
	return err
}

// send transmits a command message and returns the response message. The
// cmd byte is inserted at the head of msg automatically.
//
// If any data was read back, it is returned along with an error if fewer
// than MsgSz bytes were received or if the response does not echo cmd with a
// success status. A nil slice and nil error are returned for the reset
// command, which has no response.
func (b *Bridge) send(cmd byte, msg []byte) ([]byte, error) {

	if ok, err := b.valid(); !ok {
		return nil, err
	}

	msg[0] = cmd
	if _, err := b.dev.Write(msg); nil != err {
		return nil, fmt.Errorf("Write([cmd=0x%02X]): %w", cmd, err)
	}

	if cmdReset == cmd {
		return nil, nil
	}

	rsp := makeMsg()
	recv, err := b.dev.Read(rsp)
	if nil != err {
		return nil, fmt.Errorf("Read([cmd=0x%02X]): %w", cmd, err)
	}
	if recv < MsgSz {
		return rsp, fmt.Errorf("Read([cmd=0x%02X]): short read (%d of %d bytes)", cmd, recv, MsgSz)
	}
	if rsp[0] != cmd || rsp[1] != WordClr {
		return rsp, fmt.Errorf("Read([cmd=0x%02X]): %w", cmd, ErrCommand)
	}

	return rsp, nil
}

// Reset resets the MCP2221A and then reopens the same USB HID device, giving
// up once timeout has elapsed.
func (b *Bridge) Reset(timeout time.Duration) error {

	if ok, err := b.valid(); !ok {
		return err
	}

	msg := makeMsg()
	msg[1] = 0xAB
	msg[2] = 0xCD
	msg[3] = 0xEF

	if _, err := b.send(cmdReset, msg); nil != err {
		return fmt.Errorf("send(): %w", err)
	}
	b.dev.Close()
	b.dev = nil

	deadline := time.Now().Add(timeout)
	for {
		if dev, err := openHID(b.index, b.vid, b.pid); nil == err {
			b.dev = dev
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("Open([%d]): timed out reopening USB HID device", b.index)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// status holds the I²C engine fields of a status command response.
type status struct {
	i2cCancel byte
	i2cSpdChg byte
	i2cState  byte
	i2cReqSz  uint16
	i2cSentSz uint16
	i2cClkDiv byte
	i2cAddr   uint16
	i2cSCL    byte
	i2cSDA    byte
}

// parseStatus parses the response message of a status command.
//
// Returns nil if the given response message is nil or too short.
func parseStatus(msg []byte) *status {
	if len(msg) < MsgSz {
		return nil
	}
	return &status{
		i2cCancel: msg[2],
		i2cSpdChg: msg[3],
		// bytes 4-7: clock change request and reserved
		i2cState:  msg[8],
		i2cReqSz:  (uint16(msg[10]) << 8) | uint16(msg[9]),
		i2cSentSz: (uint16(msg[12]) << 8) | uint16(msg[11]),
		i2cClkDiv: msg[14],
		i2cAddr:   (uint16(msg[17]) << 8) | uint16(msg[16]),
		i2cSCL:    msg[22],
		i2cSDA:    msg[23],
	}
}

// status sends a status command request and parses the response.
func (b *Bridge) status() (*status, error) {

	rsp, err := b.send(cmdStatus, makeMsg())
	if nil != err {
		return nil, err
	}
	return parseStatus(rsp), nil
}

// -- DEVICE ---------------------------------------------------------- [end] --
// -----------------------------------------------------------------------------

// -----------------------------------------------------------------------------
// -- I²C ----------------------------------------------------------- [start] --

// Constants associated with the I²C module.
const (
	I2CBaudRate = 100000 // default baud rate
	I2CFastRate = 400000 // fast-mode baud rate, the AD569x maximum
	I2CMinAddr  = 0x08   // minimum possible 7-bit address
	I2CMaxAddr  = 0x77   // maximum possible (unreserved) 7-bit address
)

// Private constants associated with the I²C module.
const (
	i2cWriteMax = 60 // maximum number of bytes we can write per report

	// I²C engine states. These are not in the datasheet; they were observed
	// on the wire by the Adafruit Blinka project.
	i2cStateStartTimeout    byte = 0x12
	i2cStateRepStartTimeout byte = 0x17
	i2cStateStopTimeout     byte = 0x62
	i2cStateAddrTimeout     byte = 0x23
	i2cStateAddrNACK        byte = 0x25
	i2cStateWriteTimeout    byte = 0x44
	i2cStateWritingNoStop   byte = 0x45
	i2cStateReadTimeout     byte = 0x52

	i2cWriteRetry = 50 // maximum number of retries permitted for a single write
	i2cRetryDelay = 300 * time.Microsecond
)

// i2cStateNACK tests if the I²C engine state indicates a NACK from the
// target address.
func i2cStateNACK(state byte) bool {
	return i2cStateAddrNACK == state
}

// i2cStateTimeout tests if the I²C engine state indicates any type of
// communication timeout.
func i2cStateTimeout(state byte) bool {
	switch state {
	case i2cStateStartTimeout, i2cStateRepStartTimeout, i2cStateStopTimeout,
		i2cStateReadTimeout, i2cStateWriteTimeout, i2cStateAddrTimeout:
		return true
	}
	return false
}

// SetSpeed configures the I²C clock divider for the given baud rate (BPS). If
// in doubt, use I2CBaudRate.
//
// Returns ErrBusy if a transfer is in progress.
func (b *Bridge) SetSpeed(baud uint32) error {

	if ok, err := b.valid(); !ok {
		return err
	}

	if baud > ClkHz/3 || baud < ClkHz/258 {
		return fmt.Errorf("invalid baud rate: %d", baud)
	}

	msg := makeMsg()
	msg[3] = 0x20
	msg[4] = byte(ClkHz/baud - 3)

	rsp, err := b.send(cmdSetParams, msg)
	if nil != err {
		return fmt.Errorf("send(): %w", err)
	}
	if 0x21 == parseStatus(rsp).i2cSpdChg {
		return ErrBusy
	}

	return nil
}

// Cancel aborts any I²C transfer currently in progress.
func (b *Bridge) Cancel() error {

	if ok, err := b.valid(); !ok {
		return err
	}

	msg := makeMsg()
	msg[2] = 0x10

	rsp, err := b.send(cmdSetParams, msg)
	if nil != err {
		return fmt.Errorf("send(): %w", err)
	}
	if 0x10 == parseStatus(rsp).i2cCancel {
		// engine needs a moment to go idle after a cancel
		time.Sleep(i2cRetryDelay)
	}

	return nil
}

// writeReport builds one I²C write command report. total is the length of the
// whole transfer, chunk the portion carried by this report.
func writeReport(cmd byte, addr uint8, total uint16, chunk []byte) []byte {
	msg := makeMsg()
	msg[0] = cmd
	msg[1] = byte(total & 0xFF)
	msg[2] = byte(total >> 8)
	msg[3] = addr << 1
	copy(msg[4:], chunk)
	return msg
}

// Write transmits buf to the 7-bit target address addr, followed by a STOP
// condition. It implements ad569x.Bus.
//
// Errors wrap ErrNACK when the target does not acknowledge, ErrTimeout when
// the I²C engine times out, and ErrRetries when the engine stays busy.
func (b *Bridge) Write(addr uint8, buf []byte) error {
	return b.write(cmdI2CWrite, addr, buf)
}

// WriteNoStop is like Write but leaves the bus active (no STOP condition).
func (b *Bridge) WriteNoStop(addr uint8, buf []byte) error {
	return b.write(cmdI2CWriteNoStop, addr, buf)
}

func (b *Bridge) write(cmd byte, addr uint8, buf []byte) error {

	if ok, err := b.valid(); !ok {
		return err
	}

	if 0 == len(buf) {
		return nil
	}
	if len(buf) > 0xFFFF {
		return fmt.Errorf("write too long: %d bytes", len(buf))
	}

	stat, err := b.status()
	if nil != err {
		return fmt.Errorf("status(): %w", err)
	}
	if WordClr != stat.i2cState {
		// a previous transfer was left hanging
		if err := b.Cancel(); nil != err {
			return fmt.Errorf("Cancel(): %w", err)
		}
	}

	total := uint16(len(buf))
	for pos := 0; pos < len(buf); {
		sz := len(buf) - pos
		if sz > i2cWriteMax {
			sz = i2cWriteMax
		}
		if err := b.writeChunk(writeReport(cmd, addr, total, buf[pos:pos+sz]), addr); nil != err {
			return err
		}
		pos += sz
	}

	return b.waitIdle(cmd, addr)
}

// writeChunk sends a single write report, retrying while the engine is busy.
func (b *Bridge) writeChunk(msg []byte, addr uint8) error {

	cmd := msg[0]
	for retry := 0; retry < i2cWriteRetry; retry++ {
		rsp, err := b.send(cmd, msg)
		if nil == err {
			return nil
		}
		if nil == rsp {
			return fmt.Errorf("send(): %w", err)
		}
		if i2cStateNACK(rsp[2]) {
			return fmt.Errorf("send(): %w from address 0x%02X", ErrNACK, addr)
		}
		if i2cStateTimeout(rsp[2]) {
			return fmt.Errorf("send(): %w", ErrTimeout)
		}
		time.Sleep(i2cRetryDelay)
	}

	return fmt.Errorf("send(): %w", ErrRetries)
}

// waitIdle polls the I²C engine until the transfer has completed.
func (b *Bridge) waitIdle(cmd byte, addr uint8) error {

	for retry := 0; retry < i2cWriteRetry; retry++ {
		stat, err := b.status()
		if nil != err {
			return fmt.Errorf("status(): %w", err)
		}
		switch {
		case WordClr == stat.i2cState:
			return nil
		case cmdI2CWriteNoStop == cmd && i2cStateWritingNoStop == stat.i2cState:
			return nil
		case i2cStateNACK(stat.i2cState):
			return fmt.Errorf("status(): %w from address 0x%02X", ErrNACK, addr)
		case i2cStateTimeout(stat.i2cState):
			return fmt.Errorf("status(): %w", ErrTimeout)
		}
		time.Sleep(i2cRetryDelay)
	}

	return fmt.Errorf("status(): %w", ErrRetries)
}

// Scan probes every address in [start, stop] with a single-byte write and
// returns the addresses that acknowledged.
//
// A single 0x00 byte is an incomplete frame to an AD569x and is discarded by
// the chip.
func (b *Bridge) Scan(start uint8, stop uint8) ([]uint8, error) {

	if ok, err := b.valid(); !ok {
		return nil, err
	}

	if start > stop {
		return nil, fmt.Errorf("invalid address range [%d, %d]", start, stop)
	}

	found := []uint8{}
	for addr := int(start); addr <= int(stop); addr++ {
		if err := b.Write(uint8(addr), []byte{0x00}); nil == err {
			found = append(found, uint8(addr))
		}
	}

	return found, nil
}

// -- I²C ------------------------------------------------------------- [end] --
// -----------------------------------------------------------------------------
