package uart

import (
	"context"

	"github.com/golang/glog"
)

// ReceiveComplete is the receive-complete handler. It moves the byte waiting in
// the data register into the receive ring and wakes a blocked reader.
func (l *Link) ReceiveComplete() {
	b := l.hw.ReadData()
	l.received.Inc()
	if !l.rx.Put(b) && l.rx.Dropped() == 1 {
		glog.Warningf("uart: receive ring overflow (%v, capacity %d)", l.rx.Policy(), l.rx.Size())
	}
	if used := uint32(l.rx.Used()); used > l.maxPending.Load() {
		l.maxPending.Store(used)
	}
	if glog.V(2) {
		glog.Infof("uart: RX 0x%02x pending=%d", b, l.rx.Used())
	}
	notify(l.rxNotify)
}

// PendingCount returns the number of received bytes not yet read. It never blocks.
func (l *Link) PendingCount() int { return l.rx.Used() }

// Capacity returns the receive ring size.
func (l *Link) Capacity() int { return l.rx.Size() }

// ReadByte returns the oldest pending byte, or ErrNoData when none is pending.
func (l *Link) ReadByte() (byte, error) {
	if !l.initialized.Load() {
		return 0, ErrNotInitialized
	}
	b, ok := l.rx.Get()
	if !ok {
		return 0, ErrNoData
	}
	l.read.Inc()
	return b, nil
}

// Read copies up to len(p) pending bytes into p. It never blocks and returns
// 0, nil when nothing is pending.
func (l *Link) Read(p []byte) (int, error) {
	if !l.initialized.Load() {
		return 0, ErrNotInitialized
	}
	n := 0
	for n < len(p) {
		b, ok := l.rx.Get()
		if !ok {
			break
		}
		p[n] = b
		n++
	}
	l.read.Add(uint64(n))
	return n, nil
}

// Readable returns a coalesced notification sent after each received byte.
// Callers must re-check PendingCount after waking.
func (l *Link) Readable() <-chan struct{} { return l.rxNotify }

// WaitReadable blocks until a byte is pending or ctx is done.
func (l *Link) WaitReadable(ctx context.Context) error {
	for l.rx.Used() == 0 {
		select {
		case <-l.rxNotify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ReadByteContext blocks for a single byte or until ctx is done.
func (l *Link) ReadByteContext(ctx context.Context) (byte, error) {
	for {
		b, err := l.ReadByte()
		if err != ErrNoData {
			return b, err
		}
		if err := l.WaitReadable(ctx); err != nil {
			return 0, err
		}
	}
}

// ReadContext blocks until at least one byte is pending, then reads up to len(p).
func (l *Link) ReadContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if n, err := l.Read(p); n > 0 || err != nil {
			return n, err
		}
		if err := l.WaitReadable(ctx); err != nil {
			return 0, err
		}
	}
}

// Overflowed reports whether received bytes have been lost since the last
// ClearOverflow.
func (l *Link) Overflowed() bool { return l.rx.Overflowed() }

// ClearOverflow resets the overflow flag and returns how many bytes were lost.
func (l *Link) ClearOverflow() uint64 { return l.rx.ClearOverflow() }

// Flush discards all pending received bytes.
func (l *Link) Flush() { l.rx.Clear() }
