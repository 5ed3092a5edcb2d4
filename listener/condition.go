package listener

import (
	"fmt"
	"strings"
)

// Handle identifies an open device for as long as it stays open.
type Handle uint64

// Condition is a set of device conditions a looper can wait for.
type Condition uint8

const (
	// DataAvailable fires when received bytes are pending.
	DataAvailable Condition = 1 << iota
	// LineOrErrorChange fires when modem/control lines or line error state change.
	LineOrErrorChange

	AllConditions = DataAvailable | LineOrErrorChange
)

func (c Condition) Has(o Condition) bool {
	return o != 0 && c&o == o
}

func (c Condition) String() string {
	switch c {
	case 0:
		return "none"
	case DataAvailable:
		return "data"
	case LineOrErrorChange:
		return "event"
	case AllConditions:
		return "data|event"
	default:
		return fmt.Sprintf("Condition(%#x)", uint8(c))
	}
}

// EventKind tells an EventListener which sub-condition fired.
type EventKind uint8

const (
	// EventLineChange reports a modem/control line transition.
	EventLineChange EventKind = iota + 1
	// EventError reports line errors (framing, parity, overrun, break).
	EventError
	// EventWaitFailure is delivered once when the device wait itself fails;
	// the looper terminates afterwards.
	EventWaitFailure
)

func (k EventKind) String() string {
	switch k {
	case EventLineChange:
		return "line-change"
	case EventError:
		return "error"
	case EventWaitFailure:
		return "wait-failure"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// LineState is a snapshot of modem/control lines; a set bit means asserted.
type LineState uint16

const (
	LineCTS LineState = 1 << iota
	LineDSR
	LineDCD
	LineRI
	LineDTR
	LineRTS
	LineLoop
)

var lineNames = []struct {
	bit  LineState
	name string
}{
	{LineCTS, "CTS"},
	{LineDSR, "DSR"},
	{LineDCD, "DCD"},
	{LineRI, "RI"},
	{LineDTR, "DTR"},
	{LineRTS, "RTS"},
	{LineLoop, "LOOP"},
}

func (s LineState) String() string {
	var names []string
	for _, l := range lineNames {
		if s&l.bit != 0 {
			names = append(names, l.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// ErrorCounts holds line error counters, or their increase since the last event.
type ErrorCounts struct {
	Frame         uint32
	Overrun       uint32
	Parity        uint32
	Break         uint32
	BufferOverrun uint32
}

func (c ErrorCounts) Any() bool {
	return c != ErrorCounts{}
}

// Event is what an EventListener receives for a LineOrErrorChange wakeup.
type Event struct {
	Kind EventKind
	// Lines is the line state observed when the event fired.
	Lines LineState
	// Changed holds the lines that toggled since the previous observation.
	Changed LineState
	// Errors is the increase of each error counter for EventError.
	Errors ErrorCounts
	// Err is set for EventWaitFailure.
	Err error
}
