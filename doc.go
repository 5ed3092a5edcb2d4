// Package serial provides Linux serial port access with asynchronous
// notification of received data and modem-line or line-error changes.
//
// A Port wraps one tty configured for raw, low-latency operation:
//   - Raw syscall-based serial I/O on Linux, no buffering delays
//   - Line-based reading with custom delimiter (default: \r\n)
//   - Self-pipe mechanism for killability
//   - Modem line control, break, queue flushing and driver counters
//
// A Manager owns open ports and runs one looper goroutine, locked to its own
// OS thread, for every port that has a listener attached. The looper waits
// for the union of the conditions its listeners care about and calls them
// back on that thread. Detaching the last listener of a port terminates its
// looper; ClosePort refuses to close a port that still has listeners.
//
// This package does **not** support Windows.
//
// Example usage:
//
//	m, err := serial.NewManager(nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
//	h, err := m.OpenPort(serial.Config{Device: "/dev/ttyUSB0", BaudRate: 115200})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	port, _ := m.Port(h)
//
//	err = m.AttachDataListener(h, listener.DataListenerFunc(func(listener.Handle) {
//	    data, _ := port.ReadAvailable()
//	    fmt.Printf("Received: %q\n", data)
//	}))
//
//	// ... later
//	m.DetachDataListener(h)
//	m.ClosePort(h)
package serial
