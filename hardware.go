package uart

// Interrupts receives the two completion events of a UART peripheral.
// A backend must not invoke the handlers concurrently with each other.
type Interrupts interface {
	// ReceiveComplete is raised once per byte that has fully arrived. The
	// handler reads the byte back through Hardware.ReadData.
	ReceiveComplete()
	// TransmitComplete is raised once the byte written by WriteData has left
	// the shift register.
	TransmitComplete()
}

// Hardware is the register-level view of one UART peripheral.
type Hardware interface {
	// ClockHz is the peripheral's input clock, used for the baud divisor.
	ClockHz() uint32
	// Configure programs regs and routes enabled completion interrupts to isr.
	Configure(regs Registers, isr Interrupts) error
	// WriteData loads the transmit data register, starting a frame.
	WriteData(b byte) error
	// ReadData returns the receive data register.
	ReadData() byte
}
