//go:build linux

package uart

import (
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

// TTYConfig holds configuration parameters for opening a tty as a UART.
type TTYConfig struct {
	Device  string
	ClockHz uint32 // clock the divisor is computed against, default DefaultClockHz
}

// TTY drives a Linux serial device as a UART peripheral. Incoming bytes raise
// receive-complete from a poll loop; each written byte raises transmit-complete
// once the kernel reports it drained.
type TTY struct {
	fd        int
	file      *os.File
	cfg       TTYConfig
	done      chan struct{}
	closeOnce sync.Once
	startOnce sync.Once
	pipeR     int          // self-pipe read fd
	pipeW     int          // self-pipe write fd
	fdMu      sync.RWMutex // write-held while Close releases fd

	irq  sync.Mutex
	isr  Interrupts
	regs Registers
	rxDR byte
}

// OpenTTY opens cfg.Device in raw 8N1 mode. The line rate is set by Configure.
func OpenTTY(cfg TTYConfig) (*TTY, error) {
	if cfg.ClockHz == 0 {
		cfg.ClockHz = DefaultClockHz
	}
	fd, err := syscall.Open(cfg.Device, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0666)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("get termios: %w", err)
	}

	// Raw mode, 8 data bits, no parity, one stop bit
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("set termios: %w", err)
	}

	syscall.SetNonblock(fd, false)

	pipeFds := make([]int, 2)
	if err := unix.Pipe(pipeFds); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("pipe: %w", err)
	}

	return &TTY{
		fd:    fd,
		file:  os.NewFile(uintptr(fd), cfg.Device),
		cfg:   cfg,
		done:  make(chan struct{}),
		pipeR: pipeFds[0],
		pipeW: pipeFds[1],
	}, nil
}

// ClockHz implements Hardware.
func (t *TTY) ClockHz() uint32 { return t.cfg.ClockHz }

// Configure implements Hardware. The divisor's actual rate is rounded to the
// nearest standard termios speed.
func (t *TTY) Configure(regs Registers, isr Interrupts) error {
	t.fdMu.RLock()
	defer t.fdMu.RUnlock()
	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	termios, err := unix.IoctlGetTermios(t.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}
	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baudToUnix(regs.BaudRate(t.cfg.ClockHz))
	if !regs.Control.Has(ReceiverEnable) {
		termios.Cflag &^= unix.CREAD
	}
	if err := unix.IoctlSetTermios(t.fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}

	t.irq.Lock()
	t.regs = regs
	t.isr = isr
	t.irq.Unlock()

	t.startOnce.Do(func() { go t.readLoop() })
	return nil
}

// WriteData implements Hardware. Transmit-complete fires after tcdrain.
func (t *TTY) WriteData(b byte) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	if _, err := t.file.Write([]byte{b}); err != nil {
		return err
	}
	go t.drain()
	return nil
}

// ReadData implements Hardware.
func (t *TTY) ReadData() byte { return t.rxDR }

// Close stops the receive loop and closes the device.
// Safe to call multiple times; subsequent calls are no-ops.
func (t *TTY) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		// Wake up poll using self-pipe
		unix.Write(t.pipeW, []byte{1})
		t.fdMu.Lock()
		err = t.file.Close()
		t.fdMu.Unlock()
		unix.Close(t.pipeW)
		// Never configured: the read loop that owns pipeR will not start.
		t.startOnce.Do(func() { unix.Close(t.pipeR) })
	})
	return err
}

// Name returns the device path.
func (t *TTY) Name() string { return t.cfg.Device }

func (t *TTY) drain() {
	t.fdMu.RLock()
	select {
	case <-t.done:
		t.fdMu.RUnlock()
		return
	default:
	}
	// tcdrain(3) is TCSBRK with a non-zero argument on Linux.
	err := unix.IoctlSetInt(t.fd, unix.TCSBRK, 1)
	t.fdMu.RUnlock()
	if err != nil {
		glog.Errorf("uart: tcdrain %s: %v", t.cfg.Device, err)
		return
	}
	t.irq.Lock()
	defer t.irq.Unlock()
	if t.isr != nil && t.regs.Control.Has(TransmitterEnable|TxCompleteInterrupt) {
		t.isr.TransmitComplete()
	}
}

func (t *TTY) readLoop() {
	defer unix.Close(t.pipeR)
	buf := make([]byte, 256)
	for {
		// Use poll to wait for data or kill signal
		pfd := []unix.PollFd{
			{Fd: int32(t.fd), Events: unix.POLLIN},
			{Fd: int32(t.pipeR), Events: unix.POLLIN},
		}
		if _, err := unix.Poll(pfd, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			glog.Errorf("uart: poll %s: %v", t.cfg.Device, err)
			return
		}
		select {
		case <-t.done:
			return
		default:
		}
		if pfd[1].Revents&unix.POLLIN != 0 {
			return
		}
		if pfd[0].Revents&(unix.POLLHUP|unix.POLLERR) != 0 && pfd[0].Revents&unix.POLLIN == 0 {
			glog.Errorf("uart: %s hung up", t.cfg.Device)
			return
		}
		if pfd[0].Revents&unix.POLLIN != 0 {
			n, err := t.file.Read(buf)
			if err != nil {
				glog.Errorf("uart: read %s: %v", t.cfg.Device, err)
				return
			}
			t.deliver(buf[:n])
		}
	}
}

func (t *TTY) deliver(p []byte) {
	for _, b := range p {
		t.irq.Lock()
		if t.isr != nil && t.regs.Control.Has(ReceiverEnable|RxCompleteInterrupt) {
			t.rxDR = b
			t.isr.ReceiveComplete()
		}
		t.irq.Unlock()
	}
}

// baudToUnix returns the standard speed closest to baud.
func baudToUnix(baud uint32) uint32 {
	speeds := []struct {
		rate uint32
		code uint32
	}{
		{1200, unix.B1200},
		{2400, unix.B2400},
		{4800, unix.B4800},
		{9600, unix.B9600},
		{19200, unix.B19200},
		{38400, unix.B38400},
		{57600, unix.B57600},
		{115200, unix.B115200},
		{230400, unix.B230400},
		{460800, unix.B460800},
		{921600, unix.B921600},
		{1000000, unix.B1000000},
		{2000000, unix.B2000000},
	}
	best := speeds[0]
	for _, s := range speeds[1:] {
		if absDiff(s.rate, baud) < absDiff(best.rate, baud) {
			best = s
		}
	}
	return best.code
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
