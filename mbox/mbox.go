// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mbox implements the command channel to the embedded
// co-processors of the device.
//
// A command is a fixed-size request/response exchange identified by a
// command id. Multi-byte fields travel little-endian on the wire and the
// response always starts with a status octet.
package mbox // import "github.com/go-lpc/jesd/mbox"

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-lpc/jesd"
	"go.uber.org/zap"
)

// ErrBusy is returned when a command is sent on a channel while another
// one is still outstanding.
var ErrBusy = errors.New("mbox: command already in flight")

var errEmptyResponse = errors.New("mbox: empty response")

// Processor identifies a co-processor instance.
type Processor uint8

const (
	CPU0 Processor = 0
	CPU1 Processor = 1
)

func (p Processor) String() string {
	return fmt.Sprintf("cpu%d", uint8(p))
}

// Transport exchanges raw command frames with a co-processor.
type Transport interface {
	// Exchange sends the encoded request req for command cmd on link
	// to the co-processor proc, and copies the raw response (status
	// octet followed by the payload) into rsp.
	// Exchange returns the number of response octets written to rsp.
	Exchange(proc Processor, link uint8, cmd Command, req, rsp []byte) (int, error)
}

// Channel is a command channel to the co-processors of a device.
// At most one command is outstanding on a channel at any time.
type Channel struct {
	tr   Transport
	msg  *zap.Logger
	busy atomic.Bool

	wbuf bytes.Buffer
	rbuf []byte
}

// Option configures a command channel.
type Option func(*Channel)

// WithLogger sets the logger of the channel.
func WithLogger(msg *zap.Logger) Option {
	return func(ch *Channel) {
		ch.msg = msg
	}
}

// New creates a new command channel over the provided transport.
func New(tr Transport, opts ...Option) *Channel {
	ch := &Channel{
		tr:   tr,
		msg:  zap.NewNop(),
		rbuf: make([]byte, 1+maxPayload),
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Send sends the command cmd with payload req to the co-processor proc,
// for the link link, and decodes the response payload into rsp.
//
// req and rsp must be pointers to fixed-size values (or nil) whose
// encoded sizes match the command schema.
// Send performs exactly one exchange and never retries.
func (ch *Channel) Send(proc Processor, link uint8, cmd Command, req, rsp interface{}) error {
	const op = "mbox: send"

	sch, ok := schemas[cmd]
	if !ok {
		return &jesd.ParameterError{
			Op: op, Param: "command", Value: cmd, Want: "a known command id",
		}
	}

	if got := payloadSize(req); got != sch.req {
		return &jesd.ParameterError{
			Op: op, Param: cmd.String() + " request size", Value: got,
			Want: fmt.Sprintf("%d", sch.req),
		}
	}
	if got := payloadSize(rsp); got != sch.rsp {
		return &jesd.ParameterError{
			Op: op, Param: cmd.String() + " response size", Value: got,
			Want: fmt.Sprintf("%d", sch.rsp),
		}
	}

	if !ch.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer ch.busy.Store(false)

	ch.wbuf.Reset()
	if req != nil {
		err := binary.Write(&ch.wbuf, binary.LittleEndian, req)
		if err != nil {
			return fmt.Errorf("mbox: could not encode %v request: %w", cmd, err)
		}
	}

	ch.msg.Debug("send",
		zap.Stringer("proc", proc),
		zap.Uint8("link", link),
		zap.Stringer("cmd", cmd),
		zap.Binary("req", ch.wbuf.Bytes()),
	)

	raw := ch.rbuf[:1+sch.rsp]
	n, err := ch.tr.Exchange(proc, link, cmd, ch.wbuf.Bytes(), raw)
	if err != nil {
		ch.msg.Error("exchange failed",
			zap.Stringer("proc", proc),
			zap.Stringer("cmd", cmd),
			zap.Error(err),
		)
		return &jesd.TransportError{Op: op + " " + cmd.String(), Err: err}
	}
	if n < 1 {
		return &jesd.TransportError{
			Op:  op + " " + cmd.String(),
			Err: errEmptyResponse,
		}
	}

	if code := raw[0]; code != StatusOK {
		ch.msg.Warn("command failed",
			zap.Stringer("proc", proc),
			zap.Stringer("cmd", cmd),
			zap.Uint8("status", code),
			zap.String("name", StatusName(code)),
		)
		return &jesd.HardwareError{
			Op:   op + " " + cmd.String(),
			Code: code,
			Name: StatusName(code),
		}
	}

	if n != 1+sch.rsp {
		return &jesd.TransportError{
			Op:  op + " " + cmd.String(),
			Err: fmt.Errorf("mbox: short response (got=%d, want=%d)", n, 1+sch.rsp),
		}
	}

	if rsp != nil {
		err = binary.Read(bytes.NewReader(raw[1:n]), binary.LittleEndian, rsp)
		if err != nil {
			return fmt.Errorf("mbox: could not decode %v response: %w", cmd, err)
		}
	}

	return nil
}

// Version returns the firmware version of the co-processor proc.
func (ch *Channel) Version(proc Processor) (FirmwareVersion, error) {
	var rsp FirmwareVersion
	err := ch.Send(proc, 0, CmdVersion, nil, &rsp)
	if err != nil {
		return rsp, fmt.Errorf("mbox: could not read %v firmware version: %w", proc, err)
	}
	return rsp, nil
}

func payloadSize(v interface{}) int {
	if v == nil {
		return 0
	}
	return binary.Size(v)
}
