package uart

import "fmt"

// DefaultClockHz is the input clock of the reference board (ATmega328P at 16 MHz).
const DefaultClockHz = 16_000_000

// DefaultBaudRate is used when Initialize is called with a zero baud rate.
const DefaultBaudRate = 9600

// divisorMask keeps the 12 bits the baud rate register pair can hold.
const divisorMask = 0x0FFF

// Control is the bit layout of the peripheral's control register (UCSRnB).
type Control uint8

const (
	TransmitterEnable   Control = 1 << 3 // TXEN
	ReceiverEnable      Control = 1 << 4 // RXEN
	TxCompleteInterrupt Control = 1 << 6 // TXCIE
	RxCompleteInterrupt Control = 1 << 7 // RXCIE
)

// Has reports whether all bits in c are set.
func (r Control) Has(c Control) bool { return r&c == c }

// Registers is the register image Initialize programs into the hardware.
type Registers struct {
	BaudHi      byte // UBRRnH, low nibble only
	BaudLo      byte // UBRRnL
	DoubleSpeed bool // U2Xn
	Control     Control
}

// Divisor reassembles the 12-bit divisor from the register pair.
func (r Registers) Divisor() uint16 {
	return uint16(r.BaudHi&0x0F)<<8 | uint16(r.BaudLo)
}

// BaudRate returns the line rate the registers produce at the given clock.
func (r Registers) BaudRate(clockHz uint32) uint32 {
	return ActualBaud(clockHz, r.Divisor(), r.DoubleSpeed)
}

func multiplier(highSpeed bool) uint32 {
	if highSpeed {
		return 8
	}
	return 16
}

// Divisor computes clock/(multiplier*baud) - 1 with integer truncation.
// The result is clamped to the 12-bit register range: rates the clock cannot
// reach give 0, rates too slow for 12 bits give 0x0FFF.
func Divisor(clockHz, baud uint32, highSpeed bool) uint16 {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	q := uint64(clockHz) / (uint64(multiplier(highSpeed)) * uint64(baud))
	switch {
	case q == 0:
		return 0
	case q-1 > divisorMask:
		return divisorMask
	}
	return uint16(q - 1)
}

// SplitDivisor returns the high and low register bytes for d.
func SplitDivisor(d uint16) (hi, lo byte) {
	return byte((d & 0x0F00) >> 8), byte(d & 0x00FF)
}

// ActualBaud is the rate the hardware really runs at for divisor d.
func ActualBaud(clockHz uint32, d uint16, highSpeed bool) uint32 {
	return clockHz / (multiplier(highSpeed) * (uint32(d) + 1))
}

// BaudInfo describes the result of a baud rate computation.
type BaudInfo struct {
	Requested uint32
	Actual    uint32
	Divisor   uint16
	HighSpeed bool
	ClockHz   uint32
}

// ErrorPercent is the relative deviation of Actual from Requested.
func (b BaudInfo) ErrorPercent() float64 {
	if b.Requested == 0 {
		return 0
	}
	return (float64(b.Actual) - float64(b.Requested)) * 100 / float64(b.Requested)
}

func (b BaudInfo) String() string {
	return fmt.Sprintf("%d baud (requested %d, divisor %d, error %+.2f%%)",
		b.Actual, b.Requested, b.Divisor, b.ErrorPercent())
}
