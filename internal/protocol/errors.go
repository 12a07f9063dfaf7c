package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedReply   = errors.New("protocol: malformed reply")
	ErrMalformedPayload = errors.New("protocol: malformed payload")
	ErrInvalidFrameName = errors.New("protocol: invalid target frame name")
)

// DeviceError is an ERR reply from the instrument.
type DeviceError struct {
	Code   ErrorCode
	Reason string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("protocol: ERR-%03d (%s) %s", int(e.Code), e.Code, e.Reason)
}

// DeviceBusyError is the busy rejection subtype of DeviceError. It unwraps
// to the embedded DeviceError so errors.As matches it at either level.
type DeviceBusyError struct {
	DeviceError
}

func (e *DeviceBusyError) Unwrap() error {
	return &e.DeviceError
}

// IsBusy reports whether err is a busy rejection from the instrument.
func IsBusy(err error) bool {
	var busy *DeviceBusyError
	return errors.As(err, &busy)
}
