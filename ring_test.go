package uart

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fill(rb *RingBuffer, n int) {
	for i := 0; i < n; i++ {
		rb.Put(byte(i))
	}
}

func TestRingBuffer_FIFO(t *testing.T) {
	rb := NewRingBuffer(0, DropNewest)
	require.Equal(t, DefaultBufferSize, rb.Size())

	fill(rb, 100)
	require.Equal(t, 100, rb.Used())
	for i := 0; i < 100; i++ {
		b, ok := rb.Get()
		require.True(t, ok)
		require.Equal(t, byte(i), b)
	}
	require.Zero(t, rb.Used())
}

func TestRingBuffer_Wraparound(t *testing.T) {
	rb := NewRingBuffer(8, DropNewest)
	for round := 0; round < 5; round++ {
		for i := 0; i < 5; i++ {
			require.True(t, rb.Put(byte(round*10+i)))
		}
		for i := 0; i < 5; i++ {
			b, ok := rb.Get()
			require.True(t, ok)
			require.Equal(t, byte(round*10+i), b)
		}
	}
	require.False(t, rb.Overflowed())
}

func TestRingBuffer_EmptyGet(t *testing.T) {
	rb := NewRingBuffer(4, DropNewest)
	b, ok := rb.Get()
	require.False(t, ok)
	require.Zero(t, b)
	require.Zero(t, rb.Used())
}

func TestRingBuffer_DropNewest(t *testing.T) {
	rb := NewRingBuffer(128, DropNewest)
	fill(rb, 128)
	require.False(t, rb.Overflowed())

	require.False(t, rb.Put(128))
	require.Equal(t, 128, rb.Used())
	require.True(t, rb.Overflowed())
	require.Equal(t, uint64(1), rb.Dropped())

	for i := 0; i < 128; i++ {
		b, ok := rb.Get()
		require.True(t, ok)
		require.Equal(t, byte(i), b)
	}
	_, ok := rb.Get()
	require.False(t, ok)
}

func TestRingBuffer_OverwriteOldest(t *testing.T) {
	rb := NewRingBuffer(128, OverwriteOldest)
	fill(rb, 129)
	require.Equal(t, 128, rb.Used())
	require.True(t, rb.Overflowed())

	for i := 1; i <= 128; i++ {
		b, ok := rb.Get()
		require.True(t, ok)
		require.Equal(t, byte(i), b)
	}
	require.Zero(t, rb.Used())
}

func TestRingBuffer_ClearOverflow(t *testing.T) {
	rb := NewRingBuffer(2, DropNewest)
	fill(rb, 5)
	require.Equal(t, uint64(3), rb.ClearOverflow())
	require.False(t, rb.Overflowed())
	require.Zero(t, rb.Dropped())
	require.Equal(t, 2, rb.Used())

	rb.Clear()
	require.Zero(t, rb.Used())
	require.True(t, rb.Put(9))
	b, _ := rb.Get()
	require.Equal(t, byte(9), b)
}

func TestRingBuffer_ConcurrentProducerConsumer(t *testing.T) {
	const total = 2000
	rb := NewRingBuffer(16, DropNewest)

	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		for i := 0; i < total; {
			// Single producer: the consumer can only make room.
			if rb.Used() == rb.Size() {
				runtime.Gosched()
				continue
			}
			if !rb.Put(byte(i)) {
				t.Errorf("byte %d dropped", i)
				return
			}
			i++
		}
	}()

	deadline := time.After(5 * time.Second)
	for i := 0; i < total; {
		b, ok := rb.Get()
		if !ok {
			select {
			case <-producerDone:
				if rb.Used() == 0 {
					t.Fatalf("producer finished, only %d of %d bytes read", i, total)
				}
			case <-deadline:
				t.Fatalf("timeout after %d of %d bytes", i, total)
			default:
				runtime.Gosched()
			}
			continue
		}
		if b != byte(i) {
			t.Fatalf("byte %d: got %d want %d", i, b, byte(i))
		}
		i++
	}
	<-producerDone
	require.False(t, rb.Overflowed())
}

func TestOverflowPolicy_String(t *testing.T) {
	require.Equal(t, "drop-newest", DropNewest.String())
	require.Equal(t, "overwrite-oldest", OverwriteOldest.String())
	require.Equal(t, "OverflowPolicy(7)", OverflowPolicy(7).String())
}
