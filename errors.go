// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jesd

import (
	"errors"
	"fmt"
	"time"
)

// ErrLinkDisabled is returned when an operation needs an enabled link
// (or at least one enabled lane) and the hardware reports none.
var ErrLinkDisabled = errors.New("jesd: link not enabled")

// ParameterError reports a caller-supplied argument outside of its
// documented range. It is always detected before any hardware access.
type ParameterError struct {
	Op    string      // operation name
	Param string      // parameter name
	Value interface{} // offending value
	Want  string      // documented range
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s: invalid %s=%v (want %s)", e.Op, e.Param, e.Value, e.Want)
}

// TransportError reports a register access or a command exchange
// that could not complete. The state of the device is unknown and the
// current operation must be abandoned.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HardwareError reports a command that completed but whose embedded
// status code signals a device-side failure.
type HardwareError struct {
	Op   string
	Code uint8
	Name string // human readable name of Code, if known
}

func (e *HardwareError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: device reported status 0x%02x", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: device reported %s (0x%02x)", e.Op, e.Name, e.Code)
}

// TimeoutError reports a bounded poll that exhausted its budget without
// observing the expected condition. The device is left in an
// indeterminate state.
type TimeoutError struct {
	Op     string
	Budget time.Duration
	Polls  int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timeout after %v (%d polls)", e.Op, e.Budget, e.Polls)
}

// UnsupportedError reports a request for a feature the selected
// configuration does not provide.
type UnsupportedError struct {
	Op   string
	What string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: unsupported %s", e.Op, e.What)
}

// IsTimeout reports whether err (or one of the errors it wraps) is a TimeoutError.
func IsTimeout(err error) bool {
	var e *TimeoutError
	return errors.As(err, &e)
}

// IsHardware reports whether err (or one of the errors it wraps) is a HardwareError.
func IsHardware(err error) bool {
	var e *HardwareError
	return errors.As(err, &e)
}

// IsTransport reports whether err (or one of the errors it wraps) is a TransportError.
func IsTransport(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}
