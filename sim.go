package uart

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// SimConfig configures a simulated peripheral.
type SimConfig struct {
	ClockHz uint32 // default DefaultClockHz
	// FrameTime is how long a byte stays in flight. Zero derives ten bit
	// times from the programmed baud rate.
	FrameTime time.Duration
	// Manual disables automatic transmit completion; call CompleteTransmit.
	Manual bool
	// Loopback feeds every transmitted byte back into the receiver.
	Loopback bool
}

// Sim is an in-process UART peripheral. Received bytes are injected with
// Inject; transmitted bytes are captured and returned by Wire.
type Sim struct {
	cfg SimConfig

	irq  sync.Mutex // held while a handler runs
	regs Registers
	isr  Interrupts
	rxDR byte

	mu       sync.Mutex
	wire     []byte
	inFlight bool
	txByte   byte

	overlaps atomic.Uint32
}

// NewSim returns a simulated peripheral.
func NewSim(cfg SimConfig) *Sim {
	if cfg.ClockHz == 0 {
		cfg.ClockHz = DefaultClockHz
	}
	return &Sim{cfg: cfg}
}

// ClockHz implements Hardware.
func (s *Sim) ClockHz() uint32 { return s.cfg.ClockHz }

// Configure implements Hardware.
func (s *Sim) Configure(regs Registers, isr Interrupts) error {
	s.irq.Lock()
	defer s.irq.Unlock()
	s.regs = regs
	s.isr = isr
	return nil
}

// Registers returns the last programmed register image.
func (s *Sim) Registers() Registers {
	s.irq.Lock()
	defer s.irq.Unlock()
	return s.regs
}

// WriteData implements Hardware. Writing while a byte is still in flight is
// recorded as an overlap.
func (s *Sim) WriteData(b byte) error {
	s.mu.Lock()
	if s.inFlight {
		s.overlaps.Inc()
	}
	s.inFlight = true
	s.txByte = b
	s.wire = append(s.wire, b)
	s.mu.Unlock()

	if !s.cfg.Manual {
		time.AfterFunc(s.frameTime(), func() { s.CompleteTransmit() })
	}
	return nil
}

// ReadData implements Hardware.
func (s *Sim) ReadData() byte { return s.rxDR }

// CompleteTransmit finishes the byte in flight and raises transmit-complete.
// It returns false when nothing was in flight.
func (s *Sim) CompleteTransmit() bool {
	s.mu.Lock()
	if !s.inFlight {
		s.mu.Unlock()
		return false
	}
	s.inFlight = false
	b := s.txByte
	s.mu.Unlock()

	if s.cfg.Loopback {
		s.Inject(b)
	}
	s.irq.Lock()
	defer s.irq.Unlock()
	if s.isr != nil && s.regs.Control.Has(TransmitterEnable|TxCompleteInterrupt) {
		s.isr.TransmitComplete()
	}
	return true
}

// Inject delivers bytes to the receiver, raising receive-complete for each.
// Bytes arriving while the receiver is disabled are lost.
func (s *Sim) Inject(p ...byte) {
	for _, b := range p {
		s.irq.Lock()
		if s.isr != nil && s.regs.Control.Has(ReceiverEnable|RxCompleteInterrupt) {
			s.rxDR = b
			s.isr.ReceiveComplete()
		}
		s.irq.Unlock()
	}
}

// Wire returns a copy of every byte transmitted so far.
func (s *Sim) Wire() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.wire...)
}

// InFlight reports whether a transmitted byte awaits completion.
func (s *Sim) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Overlaps counts data register writes made while a byte was still in flight.
func (s *Sim) Overlaps() uint32 { return s.overlaps.Load() }

func (s *Sim) frameTime() time.Duration {
	if s.cfg.FrameTime > 0 {
		return s.cfg.FrameTime
	}
	s.irq.Lock()
	baud := s.regs.BaudRate(s.cfg.ClockHz)
	s.irq.Unlock()
	if baud == 0 {
		return time.Millisecond
	}
	return 10 * time.Second / time.Duration(baud)
}
