package uart

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang/glog"
)

// TransmitComplete is the transmit-complete handler. It releases the byte in
// flight and wakes a waiting sender.
func (l *Link) TransmitComplete() {
	l.txBusy.Store(false)
	l.completed.Inc()
	notify(l.txNotify)
}

// SendByte transmits b, first waiting for the previous byte's transmit-complete
// signal. It gives up with ErrTransmitterStuck after the send timeout.
func (l *Link) SendByte(b byte) error {
	ctx, cancel := l.sendContext(context.Background())
	defer cancel()
	return l.SendByteContext(ctx, b)
}

// SendByteContext is SendByte bounded by ctx instead of the send timeout.
func (l *Link) SendByteContext(ctx context.Context, b byte) error {
	if err := l.acquireTx(ctx); err != nil {
		return err
	}
	defer l.releaseTx()
	return l.sendByte(ctx, b)
}

// SendArray transmits p one byte at a time, in order. It returns the number of
// bytes handed to the hardware.
func (l *Link) SendArray(p []byte) (int, error) {
	return l.SendArrayContext(context.Background(), p)
}

// SendArrayContext is SendArray with each per-byte wait bounded by the send
// timeout and by ctx.
func (l *Link) SendArrayContext(ctx context.Context, p []byte) (int, error) {
	if err := l.acquireTxTimed(ctx); err != nil {
		return 0, err
	}
	defer l.releaseTx()
	for i, b := range p {
		if err := l.sendByteTimed(ctx, b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// SendString transmits s up to its first NUL, followed by exactly one NUL
// terminator. An empty string sends only the terminator.
func (l *Link) SendString(s string) error {
	return l.SendStringContext(context.Background(), s)
}

// SendStringContext is SendString bounded by ctx.
func (l *Link) SendStringContext(ctx context.Context, s string) error {
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	if err := l.acquireTxTimed(ctx); err != nil {
		return err
	}
	defer l.releaseTx()
	for i := 0; i < len(s); i++ {
		if err := l.sendByteTimed(ctx, s[i]); err != nil {
			return err
		}
	}
	return l.sendByteTimed(ctx, 0)
}

// Write implements io.Writer on top of SendArray.
func (l *Link) Write(p []byte) (int, error) { return l.SendArray(p) }

// WriteByte implements io.ByteWriter on top of SendByte.
func (l *Link) WriteByte(c byte) error { return l.SendByte(c) }

// Drain blocks until no byte is in flight or ctx is done.
func (l *Link) Drain(ctx context.Context) error {
	if !l.initialized.Load() {
		return ErrNotInitialized
	}
	select {
	case l.txSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer l.releaseTx()
	for l.txBusy.Load() {
		select {
		case <-l.txNotify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Busy reports whether a byte is in flight.
func (l *Link) Busy() bool { return l.txBusy.Load() }

func (l *Link) sendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	t := l.sendTimeout()
	if t < 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t)
}

// acquireTx takes the sender slot, giving up when ctx is done.
func (l *Link) acquireTx(ctx context.Context) error {
	select {
	case l.txSem <- struct{}{}:
		return nil
	default:
	}
	select {
	case l.txSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.txTimeouts.Inc()
		return fmt.Errorf("%w: another send in progress: %w", ErrTransmitterStuck, ctx.Err())
	}
}

// acquireTxTimed is acquireTx also bounded by the send timeout.
func (l *Link) acquireTxTimed(ctx context.Context) error {
	ctx, cancel := l.sendContext(ctx)
	defer cancel()
	return l.acquireTx(ctx)
}

func (l *Link) releaseTx() { <-l.txSem }

func (l *Link) sendByteTimed(ctx context.Context, b byte) error {
	ctx, cancel := l.sendContext(ctx)
	defer cancel()
	return l.sendByte(ctx, b)
}

// sendByte runs the handshake. Callers hold the sender slot.
func (l *Link) sendByte(ctx context.Context, b byte) error {
	if !l.initialized.Load() {
		return ErrNotInitialized
	}
	for !l.txBusy.CompareAndSwap(false, true) {
		select {
		case <-l.txNotify:
		case <-ctx.Done():
			l.txTimeouts.Inc()
			glog.Errorf("uart: byte 0x%02x not sent: %v", b, ctx.Err())
			return fmt.Errorf("%w: %w", ErrTransmitterStuck, ctx.Err())
		}
	}
	if err := l.hw.WriteData(b); err != nil {
		l.txBusy.Store(false)
		notify(l.txNotify)
		return fmt.Errorf("write data register: %w", err)
	}
	l.sent.Inc()
	if glog.V(2) {
		glog.Infof("uart: TX 0x%02x", b)
	}
	return nil
}
