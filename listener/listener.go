package listener

// DataListener is told that received bytes are pending on a device. It does
// not receive the bytes; it reads them itself. Calls come from the device's
// looper goroutine, never from the goroutine that attached the listener.
type DataListener interface {
	OnDataAvailable(h Handle)
}

// EventListener is told about line state changes, line errors and a failing
// device wait. Calls come from the device's looper goroutine.
type EventListener interface {
	OnEventChange(h Handle, ev Event)
}

type DataListenerFunc func(h Handle)

func (f DataListenerFunc) OnDataAvailable(h Handle) {
	f(h)
}

type EventListenerFunc func(h Handle, ev Event)

func (f EventListenerFunc) OnEventChange(h Handle, ev Event) {
	f(h, ev)
}
