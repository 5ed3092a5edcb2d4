package listener

// Wakeup describes why Waiter.Wait returned.
type Wakeup struct {
	// Fired holds the watched conditions that occurred.
	Fired Condition
	// Events details a fired LineOrErrorChange.
	Events []Event
	// Cancelled is set when Cancel interrupted the wait.
	Cancelled bool
}

// Waiter blocks on a device until a watched condition occurs or Cancel is
// called. Wait and Close are only called by the owning looper; Cancel may be
// called from any goroutine and must be remembered if no Wait is in progress.
// Wait with an empty set waits for Cancel alone.
type Waiter interface {
	Wait(watched Condition) (Wakeup, error)
	Cancel() error
	Close() error
}

// WaiterFactory allocates the waiter for a device when its first listener is
// attached.
type WaiterFactory func(h Handle) (Waiter, error)
