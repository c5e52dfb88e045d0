package uart

import (
	"math"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.uber.org/atomic"
)

// baudWarnPercent is the divisor error above which framing becomes unreliable.
const baudWarnPercent = 2.0

// Config holds the software-side parameters of a Link.
type Config struct {
	BufferSize int            // receive ring capacity, default 128
	Overflow   OverflowPolicy // default DropNewest
	// SendTimeout bounds the wait for the previous byte's transmit-complete
	// signal. Zero derives it from the baud rate; negative waits forever.
	SendTimeout time.Duration
}

// Stats holds counters since the Link was created.
type Stats struct {
	Received   uint64 // bytes delivered by the receive handler
	Read       uint64 // bytes handed to the consumer
	Dropped    uint64 // bytes lost to overflow since the last ClearOverflow
	Sent       uint64 // bytes written to the data register
	Completed  uint64 // transmit-complete events
	MaxPending uint32 // high-water mark of the receive ring
	TxTimeouts uint64 // sends abandoned because the transmitter was stuck
}

// Link is a full-duplex serial transport over one UART peripheral. It is safe
// for concurrent use: any number of senders, one logical reader.
type Link struct {
	hw  Hardware
	cfg Config
	rx  *RingBuffer

	initMu      sync.Mutex
	initialized atomic.Bool
	regs        Registers
	baud        BaudInfo

	txSem    chan struct{} // one slot; serializes whole sends
	txBusy   atomic.Bool
	txNotify chan struct{}
	rxNotify chan struct{}

	received   atomic.Uint64
	read       atomic.Uint64
	sent       atomic.Uint64
	completed  atomic.Uint64
	maxPending atomic.Uint32
	txTimeouts atomic.Uint64
}

// New returns a Link driving hw. Initialize must be called before use.
func New(hw Hardware, cfg Config) *Link {
	return &Link{
		hw:       hw,
		cfg:      cfg,
		rx:       NewRingBuffer(cfg.BufferSize, cfg.Overflow),
		txSem:    make(chan struct{}, 1),
		txNotify: make(chan struct{}, 1),
		rxNotify: make(chan struct{}, 1),
	}
}

// Initialize programs the baud divisor, the double-speed flag, enables the
// receiver, the transmitter and both completion interrupts. An unrepresentable
// baud rate is silently truncated to the nearest divisor; see Baud. Calling it
// again reprograms timing and keeps received data.
func (l *Link) Initialize(baud uint32, highSpeed bool) error {
	l.initMu.Lock()
	defer l.initMu.Unlock()

	if baud == 0 {
		baud = DefaultBaudRate
	}
	clock := l.hw.ClockHz()
	div := Divisor(clock, baud, highSpeed)
	hi, lo := SplitDivisor(div)
	regs := Registers{
		BaudHi:      hi,
		BaudLo:      lo,
		DoubleSpeed: highSpeed,
		Control:     ReceiverEnable | TransmitterEnable | RxCompleteInterrupt | TxCompleteInterrupt,
	}
	if err := l.hw.Configure(regs, l); err != nil {
		return err
	}

	l.regs = regs
	l.baud = BaudInfo{
		Requested: baud,
		Actual:    ActualBaud(clock, div, highSpeed),
		Divisor:   div,
		HighSpeed: highSpeed,
		ClockHz:   clock,
	}
	l.initialized.Store(true)

	if math.Abs(l.baud.ErrorPercent()) > baudWarnPercent {
		glog.Warningf("uart: %v exceeds %.0f%% tolerance", l.baud, baudWarnPercent)
	} else {
		glog.Infof("uart: initialized at %v", l.baud)
	}
	return nil
}

// Baud describes the rate programmed by the last Initialize.
func (l *Link) Baud() BaudInfo {
	l.initMu.Lock()
	defer l.initMu.Unlock()
	return l.baud
}

// Registers returns the register image programmed by the last Initialize.
func (l *Link) Registers() Registers {
	l.initMu.Lock()
	defer l.initMu.Unlock()
	return l.regs
}

// Stats returns a snapshot of the link counters.
func (l *Link) Stats() Stats {
	return Stats{
		Received:   l.received.Load(),
		Read:       l.read.Load(),
		Dropped:    l.rx.Dropped(),
		Sent:       l.sent.Load(),
		Completed:  l.completed.Load(),
		MaxPending: l.maxPending.Load(),
		TxTimeouts: l.txTimeouts.Load(),
	}
}

// sendTimeout returns the configured timeout, or roughly twenty frame times
// at 8N1 with a 50ms floor.
func (l *Link) sendTimeout() time.Duration {
	if l.cfg.SendTimeout != 0 {
		return l.cfg.SendTimeout
	}
	t := 50 * time.Millisecond
	if b := l.Baud().Actual; b > 0 {
		if frames := 20 * 10 * time.Second / time.Duration(b); frames > t {
			t = frames
		}
	}
	return t
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
