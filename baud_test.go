package uart

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDivisor_ReferenceBoard(t *testing.T) {
	d := Divisor(16_000_000, 9600, false)
	require.Equal(t, uint16(103), d)

	hi, lo := SplitDivisor(d)
	require.Equal(t, byte(0x00), hi)
	require.Equal(t, byte(0x67), lo)
	require.Equal(t, uint32(9615), ActualBaud(16_000_000, d, false))
}

func TestDivisor_Table(t *testing.T) {
	cases := []struct {
		name      string
		baud      uint32
		highSpeed bool
		want      uint16
	}{
		{"9600 double speed", 9600, true, 207},
		{"19200", 19200, false, 51},
		{"115200 truncates", 115200, false, 7},
		{"300 uses high nibble", 300, false, 3332},
		{"zero selects default", 0, false, 103},
		{"unreachable clamps", 2_000_000, false, 0},
		{"300 double speed clamps high", 300, true, 0x0FFF},
		{"200 clamps high", 200, false, 0x0FFF},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Divisor(DefaultClockHz, tc.baud, tc.highSpeed))
		})
	}
}

func TestRegisters_DivisorRoundTrip(t *testing.T) {
	hi, lo := SplitDivisor(3332)
	require.Equal(t, byte(0x0D), hi)
	require.Equal(t, byte(0x04), lo)

	regs := Registers{BaudHi: hi, BaudLo: lo}
	require.Equal(t, uint16(3332), regs.Divisor())
	require.Equal(t, uint32(300), regs.BaudRate(DefaultClockHz))
}

func TestBaudInfo_ErrorPercent(t *testing.T) {
	info := BaudInfo{Requested: 115200, Actual: ActualBaud(DefaultClockHz, 7, false)}
	require.Equal(t, uint32(125000), info.Actual)
	require.InDelta(t, 8.5, info.ErrorPercent(), 0.01)

	require.Zero(t, BaudInfo{}.ErrorPercent())
	require.Contains(t, info.String(), "requested 115200")
}

func TestControl_Has(t *testing.T) {
	c := ReceiverEnable | RxCompleteInterrupt
	require.True(t, c.Has(ReceiverEnable))
	require.True(t, c.Has(ReceiverEnable|RxCompleteInterrupt))
	require.False(t, c.Has(TransmitterEnable))
}
