package errs

import (
	"errors"
	"fmt"
)

type SerialErr struct {
	msg  string
	code int64
	err  error
}

// Error renders as:
// [code] description ( => cause )
func (se *SerialErr) Error() string {
	details := fmt.Sprintf("[%d] %s", se.code, se.msg)
	if se.err != nil {
		details += fmt.Sprintf(" => %s", se.err)
	}

	return details
}

func (se *SerialErr) Code() int64 {
	return se.code
}

func (se *SerialErr) WithErr(err error) *SerialErr {
	se.err = err
	return se
}

func (se *SerialErr) Unwrap() error {
	return se.err
}

// Is reports whether target is a *SerialErr carrying the same code, so
// errors.Is(err, errs.NewNotAttachedErr()) matches any NotAttached error.
func (se *SerialErr) Is(target error) bool {
	var other *SerialErr
	if !errors.As(target, &other) {
		return false
	}
	return other.code == se.code
}

func GetCode(err error) int64 {
	var se *SerialErr
	if errors.As(err, &se) {
		return se.code
	}
	return UnknownErrCode
}

const (
	UnknownErrCode               = 0
	InvalidParamErrCode          = 100001
	AlreadyAttachedErrCode       = 100002
	NotAttachedErrCode           = 100003
	ResourceExhaustedErrCode     = 100004
	DeviceStillListeningErrCode  = 100005
	UnderlyingWaitFailureErrCode = 100006
	InvalidHandleErrCode         = 100007
	PortClosedErrCode            = 100008
	OpenPortErrCode              = 100009
	ConfigurePortErrCode         = 100010
	IoctlErrCode                 = 100011
	ReadPortErrCode              = 100012
	WritePortErrCode             = 100013
	LoadConfigErrCode            = 100014
	ClosedErrCode                = 100015
	TimeoutErrCode               = 100016
)

func NewUnknownErr() *SerialErr {
	return &SerialErr{msg: "unknown error", code: UnknownErrCode}
}

func NewInvalidParamErr() *SerialErr {
	return &SerialErr{msg: "invalid params", code: InvalidParamErrCode}
}

func NewAlreadyAttachedErr() *SerialErr {
	return &SerialErr{msg: "listener already attached", code: AlreadyAttachedErrCode}
}

func NewNotAttachedErr() *SerialErr {
	return &SerialErr{msg: "listener not attached", code: NotAttachedErrCode}
}

func NewResourceExhaustedErr() *SerialErr {
	return &SerialErr{msg: "listener resources exhausted", code: ResourceExhaustedErrCode}
}

func NewDeviceStillListeningErr() *SerialErr {
	return &SerialErr{msg: "device still has listeners attached", code: DeviceStillListeningErrCode}
}

func NewUnderlyingWaitFailureErr() *SerialErr {
	return &SerialErr{msg: "wait for device condition failed", code: UnderlyingWaitFailureErrCode}
}

func NewInvalidHandleErr() *SerialErr {
	return &SerialErr{msg: "invalid port handle", code: InvalidHandleErrCode}
}

func NewPortClosedErr() *SerialErr {
	return &SerialErr{msg: "port already closed", code: PortClosedErrCode}
}

func NewOpenPortErr() *SerialErr {
	return &SerialErr{msg: "open port failed", code: OpenPortErrCode}
}

func NewConfigurePortErr() *SerialErr {
	return &SerialErr{msg: "configure port failed", code: ConfigurePortErrCode}
}

func NewIoctlErr() *SerialErr {
	return &SerialErr{msg: "ioctl failed", code: IoctlErrCode}
}

func NewReadPortErr() *SerialErr {
	return &SerialErr{msg: "read port failed", code: ReadPortErrCode}
}

func NewWritePortErr() *SerialErr {
	return &SerialErr{msg: "write port failed", code: WritePortErrCode}
}

func NewLoadConfigErr() *SerialErr {
	return &SerialErr{msg: "load config failed", code: LoadConfigErrCode}
}

func NewClosedErr() *SerialErr {
	return &SerialErr{msg: "already closed", code: ClosedErrCode}
}

func NewTimeoutErr() *SerialErr {
	return &SerialErr{msg: "operation timed out", code: TimeoutErrCode}
}
