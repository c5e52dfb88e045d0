package uart

import "errors"

var (
	// ErrNotInitialized is returned by operations issued before Initialize.
	ErrNotInitialized = errors.New("uart: not initialized")
	// ErrNoData is returned by ReadByte when no received byte is pending.
	ErrNoData = errors.New("uart: no data available")
	// ErrTransmitterStuck is returned when the previous byte's transmit-complete
	// signal does not arrive in time.
	ErrTransmitterStuck = errors.New("uart: transmitter stuck")
	// ErrClosed is returned by a backend after Close.
	ErrClosed = errors.New("uart: closed")
)
