// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"fmt"

	"github.com/go-lpc/jesd"
	"github.com/go-lpc/jesd/internal/regs"
	"go.uber.org/zap"
)

// Lane error classes, as bits of the masks of ErrorCounterConfig.
const (
	ErrDisparity  uint8 = 1 << 0 // running disparity errors
	ErrNotInTable uint8 = 1 << 1 // 8b/10b not-in-table errors
	ErrUnexpK     uint8 = 1 << 2 // unexpected control characters

	ErrAll = ErrDisparity | ErrNotInTable | ErrUnexpK
)

// NumErrClasses is the number of lane error classes.
const NumErrClasses = 3

// ErrorCounterConfig configures the error counters of a lane.
type ErrorCounterConfig struct {
	Enable uint8 // error classes to count
	Reset  uint8 // error classes whose counter is reset
	Hold   uint8 // error classes whose counter holds at the threshold
}

// ConfigureErrorCounters configures the error counters of a deframer lane.
//
// The interrupts of the classes being enabled or reset are masked for
// the duration of the operation, and the interrupt mask is then
// restored to its previous value. On failure, the interrupt mask is left
// as is.
func (dev *Device) ConfigureErrorCounters(l Link, lane int, cfg ErrorCounterConfig) error {
	const op = "link: configure error counters"
	err := dev.checkCounters(op, l)
	if err != nil {
		return err
	}
	err = checkLane(op, lane)
	if err != nil {
		return err
	}
	for _, v := range []struct {
		name string
		mask uint8
	}{
		{"enable mask", cfg.Enable},
		{"reset mask", cfg.Reset},
		{"hold mask", cfg.Hold},
	} {
		if v.mask&^ErrAll != 0 {
			return &jesd.ParameterError{Op: op, Param: v.name, Value: v.mask, Want: fmt.Sprintf("a subset of 0x%02x", ErrAll)}
		}
	}

	var (
		base = l.base()
		ln   = uint16(lane)
		irq  = dev.rd(base+regs.ErrIRQMask+ln, 0xff)
	)
	dev.wr(base+regs.ErrIRQMask+ln, irq|cfg.Enable|cfg.Reset, 0xff)
	dev.wr(base+regs.ErrCntCtrl+ln, cfg.Reset, regs.ErrCntResetMask)
	dev.wr(base+regs.ErrCntCtrl+ln, 0, regs.ErrCntResetMask)
	dev.wr(base+regs.ErrThreshold, 0xff, 0xff)
	dev.wr(base+regs.ErrCntCtrl+ln, cfg.Enable, regs.ErrCntEnableMask)
	dev.wr(base+regs.ErrCntHold+ln, cfg.Hold, 0xff)
	dev.wr(base+regs.ErrIRQMask+ln, irq, 0xff)

	dev.msg.Debug("error counters configured",
		zap.Stringer("link", l),
		zap.Int("lane", lane),
		zap.Uint8("enable", cfg.Enable),
		zap.Uint8("reset", cfg.Reset),
		zap.Uint8("hold", cfg.Hold),
	)

	return dev.transport(op)
}

// ResetILASCounters resets the ILAS error counters of the deframer link
// l, with the ILAS interrupts masked for the duration of the reset.
func (dev *Device) ResetILASCounters(l Link) error {
	const op = "link: reset ILAS counters"
	err := dev.checkCounters(op, l)
	if err != nil {
		return err
	}

	var (
		base = l.base()
		irq  = dev.rd(base+regs.ILASIRQMask, 0xff)
	)
	dev.wr(base+regs.ILASIRQMask, 0xff, 0xff)
	dev.wr(base+regs.ILASCntReset, 0xff, 0xff)
	dev.wr(base+regs.ILASCntReset, 0x00, 0xff)
	dev.wr(base+regs.ILASIRQMask, irq, 0xff)

	return dev.transport(op)
}

// ErrorCounts returns the error counters of a deframer lane, indexed by
// error class.
func (dev *Device) ErrorCounts(l Link, lane int) ([NumErrClasses]uint8, error) {
	const op = "link: error counts"
	var cnt [NumErrClasses]uint8

	err := dev.checkCounters(op, l)
	if err != nil {
		return cnt, err
	}
	err = checkLane(op, lane)
	if err != nil {
		return cnt, err
	}

	dev.rdBlock(l.base()+regs.ErrCount+uint16(lane)*4, cnt[:])
	return cnt, dev.transport(op)
}

func (dev *Device) checkCounters(op string, l Link) error {
	err := l.check(op)
	if err != nil {
		return err
	}
	if l.Role != Deframer {
		return &jesd.ParameterError{Op: op, Param: "role", Value: l.Role, Want: "deframer"}
	}
	return nil
}
