// Package uart provides an interrupt-driven, byte-oriented serial transport
// for reporting sensor readings and diagnostics off a device.
//
// A Link sits on top of a Hardware peripheral. The peripheral raises two
// events: receive-complete moves an incoming byte into a fixed-capacity ring,
// transmit-complete releases the single byte allowed in flight. The
// application reads and writes at its own pace.
//
// Features:
//   - Baud divisor computed from the peripheral clock (normal or double speed)
//   - One byte in flight; senders wait for transmit-complete with a timeout
//   - Lock-free pending count; explicit ErrNoData instead of stale reads
//   - Configurable overflow policy with a sticky overflow flag
//   - Backends: simulated peripheral, Linux tty, go.bug.st/serial port
//
// Example usage:
//
//	tty, err := uart.OpenTTY(uart.TTYConfig{Device: "/dev/ttyUSB0"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tty.Close()
//
//	link := uart.New(tty, uart.Config{})
//	if err := link.Initialize(9600, false); err != nil {
//	    log.Fatal(err)
//	}
//	if err := link.SendString("Connection start.\r"); err != nil {
//	    log.Println("Write failed:", err)
//	}
//
//	for link.PendingCount() > 0 {
//	    b, _ := link.ReadByte()
//	    fmt.Printf("%c", b)
//	}
package uart
