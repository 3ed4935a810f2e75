// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-lpc/jesd/internal/poll"
	"github.com/go-lpc/jesd/internal/regs"
	"github.com/go-lpc/jesd/regio"
)

var (
	errDoorbellSet = errors.New("mbox: doorbell still set")
	errXfer        = errors.New("mbox: co-processor reported a transfer error")
)

// RegTransport exchanges command frames through the doorbell mailboxes
// of the register map.
type RegTransport struct {
	bus regio.Bus

	interval time.Duration
	budget   time.Duration
	sleep    func(time.Duration)
}

// TransportOption configures a RegTransport.
type TransportOption func(*RegTransport)

// WithPollInterval sets the interval between two doorbell polls.
func WithPollInterval(d time.Duration) TransportOption {
	return func(tr *RegTransport) {
		tr.interval = d
	}
}

// WithTimeout sets the time budget for a command to complete.
func WithTimeout(d time.Duration) TransportOption {
	return func(tr *RegTransport) {
		tr.budget = d
	}
}

// WithSleep sets the function used to wait between two doorbell polls.
func WithSleep(sleep func(time.Duration)) TransportOption {
	return func(tr *RegTransport) {
		tr.sleep = sleep
	}
}

// NewRegTransport returns a mailbox transport over bus.
func NewRegTransport(bus regio.Bus, opts ...TransportOption) *RegTransport {
	tr := &RegTransport{
		bus:      bus,
		interval: 100 * time.Microsecond,
		budget:   100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(tr)
	}
	return tr
}

func (tr *RegTransport) Exchange(proc Processor, link uint8, cmd Command, req, rsp []byte) (int, error) {
	if int(proc) >= regs.NumProcs {
		return 0, fmt.Errorf("mbox: invalid co-processor %v", proc)
	}
	if len(req) > regs.MboxPayloadSize {
		return 0, fmt.Errorf("mbox: request too large (%d > %d)", len(req), regs.MboxPayloadSize)
	}

	base := regs.Mbox(uint8(proc))
	ctrl := base + regs.MboxCtrl

	bell, err := tr.bus.ReadField(ctrl, regs.MboxDoorbell)
	if err != nil {
		return 0, fmt.Errorf("mbox: could not read doorbell: %w", err)
	}
	if bell != 0 {
		return 0, errDoorbellSet
	}

	if len(req) > 0 {
		err = tr.bus.WriteBlock(base+regs.MboxPayload, req)
		if err != nil {
			return 0, fmt.Errorf("mbox: could not write request payload: %w", err)
		}
	}
	err = tr.bus.WriteField(base+regs.MboxLen, uint8(len(req)), 0xff)
	if err != nil {
		return 0, fmt.Errorf("mbox: could not write request length: %w", err)
	}
	err = tr.bus.WriteField(base+regs.MboxLink, link, 0xff)
	if err != nil {
		return 0, fmt.Errorf("mbox: could not write link id: %w", err)
	}
	err = tr.bus.WriteField(base+regs.MboxCmd, uint8(cmd), 0xff)
	if err != nil {
		return 0, fmt.Errorf("mbox: could not write command id: %w", err)
	}
	// ringing the doorbell also clears a transfer error left by a
	// previous exchange.
	err = tr.bus.WriteField(ctrl, regs.MboxDoorbell, regs.MboxDoorbell|regs.MboxXferErr)
	if err != nil {
		return 0, fmt.Errorf("mbox: could not ring doorbell: %w", err)
	}

	loop := poll.Loop{
		Op:       "mbox: wait " + cmd.String(),
		Interval: tr.interval,
		Budget:   tr.budget,
		Sleep:    tr.sleep,
	}
	_, err = loop.Run(func(int) (bool, error) {
		v, err := tr.bus.ReadField(ctrl, regs.MboxDoorbell)
		if err != nil {
			return false, fmt.Errorf("mbox: could not read doorbell: %w", err)
		}
		return v == 0, nil
	})
	if err != nil {
		return 0, err
	}

	xerr, err := tr.bus.ReadField(ctrl, regs.MboxXferErr)
	if err != nil {
		return 0, fmt.Errorf("mbox: could not read transfer status: %w", err)
	}
	if xerr != 0 {
		return 0, errXfer
	}

	n, err := tr.bus.ReadField(base+regs.MboxLen, 0xff)
	if err != nil {
		return 0, fmt.Errorf("mbox: could not read response length: %w", err)
	}
	if int(n) > len(rsp) {
		return 0, fmt.Errorf("mbox: response too large (%d > %d)", n, len(rsp))
	}
	if n == 0 {
		return 0, nil
	}

	err = tr.bus.ReadBlock(base+regs.MboxPayload, rsp[:n])
	if err != nil {
		return 0, fmt.Errorf("mbox: could not read response payload: %w", err)
	}

	return int(n), nil
}

var (
	_ Transport = (*RegTransport)(nil)
)
