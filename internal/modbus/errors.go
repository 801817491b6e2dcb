package modbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

var (
	ErrNotConnected    = errors.New("modbus: not connected")
	ErrInvalidResponse = errors.New("modbus: invalid response")
	ErrTooManyWords    = errors.New("modbus: too many registers in one request")
)

// ExceptionError is a Modbus exception response from the server.
type ExceptionError struct {
	Function byte
	Code     byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: exception %d (%s) for function 0x%02X", e.Code, exceptionText(e.Code), e.Function)
}

func exceptionText(code byte) string {
	switch code {
	case 1:
		return "illegal function"
	case 2:
		return "illegal data address"
	case 3:
		return "illegal data value"
	case 4:
		return "server device failure"
	case 5:
		return "acknowledge"
	case 6:
		return "server device busy"
	case 0x0A:
		return "gateway path unavailable"
	case 0x0B:
		return "gateway target device failed to respond"
	default:
		return "unknown"
	}
}

// IsTimeout reports whether err was caused by an expired deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
