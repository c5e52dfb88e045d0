package uart

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"
)

type portHandle interface {
	SetMode(mode *serial.Mode) error
	SetReadTimeout(t time.Duration) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error
	Close() error
}

// allow tests to replace the OS port
var openPort = func(name string, mode *serial.Mode) (portHandle, error) { return serial.Open(name, mode) }

// PortConfig holds configuration for a go.bug.st/serial backed UART.
type PortConfig struct {
	Name     string
	ClockHz  uint32        // default DefaultClockHz
	ReadPoll time.Duration // read timeout used to notice Close, default 100ms
}

// Port drives an OS serial port as a UART peripheral. The port is opened by
// the first Configure, so the line rate comes from the divisor.
type Port struct {
	cfg PortConfig

	mu   sync.Mutex
	port portHandle

	done      chan struct{}
	closeOnce sync.Once
	startOnce sync.Once

	irq  sync.Mutex
	isr  Interrupts
	regs Registers
	rxDR byte
}

// NewPort returns an unopened Port.
func NewPort(cfg PortConfig) *Port {
	if cfg.ClockHz == 0 {
		cfg.ClockHz = DefaultClockHz
	}
	if cfg.ReadPoll == 0 {
		cfg.ReadPoll = 100 * time.Millisecond
	}
	return &Port{cfg: cfg, done: make(chan struct{})}
}

// ClockHz implements Hardware.
func (p *Port) ClockHz() uint32 { return p.cfg.ClockHz }

// Configure implements Hardware.
func (p *Port) Configure(regs Registers, isr Interrupts) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	mode := &serial.Mode{
		BaudRate: int(regs.BaudRate(p.cfg.ClockHz)),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p.mu.Lock()
	// Close may have run since the check above; it closes p.port under mu.
	select {
	case <-p.done:
		p.mu.Unlock()
		return ErrClosed
	default:
	}
	if p.port == nil {
		port, err := openPort(p.cfg.Name, mode)
		if err != nil {
			p.mu.Unlock()
			return fmt.Errorf("failed to open serial port %s: %w", p.cfg.Name, err)
		}
		if err := port.SetReadTimeout(p.cfg.ReadPoll); err != nil {
			port.Close()
			p.mu.Unlock()
			return fmt.Errorf("failed to set read timeout: %w", err)
		}
		p.port = port
	} else if err := p.port.SetMode(mode); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to set mode: %w", err)
	}
	port := p.port
	p.mu.Unlock()

	p.irq.Lock()
	p.regs = regs
	p.isr = isr
	p.irq.Unlock()

	p.startOnce.Do(func() { go p.readLoop(port) })
	return nil
}

// WriteData implements Hardware. Transmit-complete fires after Drain.
func (p *Port) WriteData(b byte) error {
	port, err := p.handle()
	if err != nil {
		return err
	}
	if _, err := port.Write([]byte{b}); err != nil {
		return err
	}
	go p.drain(port)
	return nil
}

// ReadData implements Hardware.
func (p *Port) ReadData() byte { return p.rxDR }

// Close closes the port and stops the receive loop.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.port != nil {
			err = p.port.Close()
		}
	})
	return err
}

// Name returns the port name.
func (p *Port) Name() string { return p.cfg.Name }

func (p *Port) handle() (portHandle, error) {
	select {
	case <-p.done:
		return nil, ErrClosed
	default:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return nil, ErrNotInitialized
	}
	return p.port, nil
}

func (p *Port) drain(port portHandle) {
	if err := port.Drain(); err != nil {
		select {
		case <-p.done:
		default:
			glog.Errorf("uart: drain %s: %v", p.cfg.Name, err)
		}
		return
	}
	p.irq.Lock()
	defer p.irq.Unlock()
	if p.isr != nil && p.regs.Control.Has(TransmitterEnable|TxCompleteInterrupt) {
		p.isr.TransmitComplete()
	}
}

func (p *Port) readLoop(port portHandle) {
	buf := make([]byte, 256)
	for {
		select {
		case <-p.done:
			return
		default:
		}
		n, err := port.Read(buf)
		if err != nil {
			select {
			case <-p.done:
			default:
				glog.Errorf("uart: read %s: %v", p.cfg.Name, err)
			}
			return
		}
		for _, b := range buf[:n] {
			p.irq.Lock()
			if p.isr != nil && p.regs.Control.Has(ReceiverEnable|RxCompleteInterrupt) {
				p.rxDR = b
				p.isr.ReceiveComplete()
			}
			p.irq.Unlock()
		}
	}
}
