//go:build linux

package uart

import (
	"io"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

func openTestTTY(t *testing.T) (*Link, *TTY, io.ReadWriteCloser) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	tty, err := OpenTTY(TTYConfig{Device: slave.Name()})
	require.NoError(t, err)
	t.Cleanup(func() { tty.Close() })

	link := New(tty, Config{SendTimeout: time.Second})
	require.NoError(t, link.Initialize(9600, false))
	return link, tty, master
}

func TestTTY_Receive(t *testing.T) {
	link, _, master := openTestTTY(t)

	_, err := master.Write([]byte("ping"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return link.PendingCount() == 4 }, time.Second, 5*time.Millisecond)
	buf := make([]byte, 8)
	n, err := link.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))
}

func TestTTY_SendString(t *testing.T) {
	link, _, master := openTestTTY(t)

	got := make(chan []byte, 1)
	errs := make(chan error, 1)
	go func() {
		buf := make([]byte, 5)
		if _, err := io.ReadFull(master, buf); err != nil {
			errs <- err
			return
		}
		got <- buf
	}()

	require.NoError(t, link.SendString("pong"))

	select {
	case b := <-got:
		require.Equal(t, []byte("pong\x00"), b)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for master to receive")
	}
	require.Eventually(t, func() bool { return !link.Busy() }, time.Second, 5*time.Millisecond)
}

func TestTTY_Close(t *testing.T) {
	link, tty, master := openTestTTY(t)

	go io.Copy(io.Discard, master)
	require.NoError(t, link.SendByte('a'))
	require.Eventually(t, func() bool { return !link.Busy() }, time.Second, 5*time.Millisecond)

	require.NoError(t, tty.Close())
	require.NoError(t, tty.Close()) // no-op due to closeOnce

	require.ErrorIs(t, link.SendByte('b'), ErrClosed)
	require.ErrorIs(t, tty.Configure(Registers{}, link), ErrClosed)
}

func TestTTY_DrainAfterCloseSkipsDevice(t *testing.T) {
	link, tty, master := openTestTTY(t)

	go io.Copy(io.Discard, master)
	require.NoError(t, link.SendByte('a'))
	require.Eventually(t, func() bool { return link.Stats().Completed == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, tty.Close())
	tty.drain()
	require.Equal(t, uint64(1), link.Stats().Completed)
}

func TestTTY_CloseUnconfigured(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	tty, err := OpenTTY(TTYConfig{Device: slave.Name()})
	require.NoError(t, err)
	require.Equal(t, slave.Name(), tty.Name())
	require.Equal(t, uint32(DefaultClockHz), tty.ClockHz())
	require.NoError(t, tty.Close())
}

func TestTTY_OpenMissingDevice(t *testing.T) {
	_, err := OpenTTY(TTYConfig{Device: "/dev/does-not-exist-uart"})
	require.Error(t, err)
}

func TestBaudToUnix_Nearest(t *testing.T) {
	require.Equal(t, baudToUnix(9600), baudToUnix(9615))
	require.Equal(t, baudToUnix(115200), baudToUnix(125000))
	require.Equal(t, baudToUnix(1200), baudToUnix(300))
}
