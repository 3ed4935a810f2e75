// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"fmt"

	"github.com/go-lpc/jesd"
	"github.com/go-lpc/jesd/internal/regs"
	"github.com/go-lpc/jesd/mbox"
	"go.uber.org/zap"
)

// ResetLanes resets the serializer lanes of the framer link l.
//
// Only lanes currently powered up take part in the sequence, and the
// set of powered down lanes is the same before and after the sequence.
// Any failure aborts the sequence: clock offsets and FIFO start
// addresses already written are left as is and it is the caller's
// responsibility to run the sequence again.
func (dev *Device) ResetLanes(l Link) error {
	const op = "link: reset lanes"
	err := l.check(op)
	if err != nil {
		return err
	}
	if l.Role != Framer {
		return &jesd.ParameterError{Op: op, Param: "role", Value: l.Role, Want: "framer"}
	}

	down := dev.rd(regs.SerPowerDown, 0xff)
	if err := dev.transport(op); err != nil {
		return err
	}
	up := ^down
	if up == 0 {
		dev.msg.Debug("no lane powered up", zap.Stringer("link", l))
		return nil
	}

	dev.msg.Debug("reset lanes",
		zap.Stringer("link", l),
		zap.Uint8("up", up),
	)

	switch l.Variant {
	case Legacy:
		err = dev.resetLegacy(l, up)
	case Extended:
		err = dev.resetExtended(l, up, down)
	}
	if err != nil {
		return fmt.Errorf("%s %v: %w", op, l, err)
	}
	return nil
}

func (dev *Device) resetLegacy(l Link, up uint8) error {
	for _, lane := range lanesOf(up) {
		dev.wr(regs.SerClkOffset+uint16(lane), regs.ClkOffsetLegacy, 0xff)
	}
	if err := dev.transport("link: write clock offsets"); err != nil {
		return err
	}

	return dev.send(
		mbox.Serializer, up, uint8(l.Index),
		mbox.CmdSerdesReset, &mbox.SerdesResetReq{LaneMask: up}, nil,
	)
}

func (dev *Device) resetExtended(l Link, up, down uint8) error {
	var (
		id   = uint8(l.Index)
		mask uint8
	)
	for _, lane := range lanesOf(up) {
		bit := uint8(1) << lane
		err := dev.send(
			mbox.Serializer, bit, id,
			mbox.CmdLanePower, &mbox.LanePowerReq{LaneMask: bit, State: mbox.PowerDown}, nil,
		)
		if err != nil {
			return fmt.Errorf("could not power down lane %d: %w", lane, err)
		}
		dev.wr(regs.SerFifoStart+uint16(lane), regs.FifoStartExtended, 0xff)
		dev.wr(regs.SerClkOffset+uint16(lane), regs.ClkOffsetExtended, 0xff)
		if err := dev.transport("link: prime lane"); err != nil {
			return fmt.Errorf("could not prime lane %d: %w", lane, err)
		}
		mask |= bit
	}

	dev.msg.Debug("power up lanes", zap.Uint8("primed", mask))
	err := dev.send(
		mbox.Serializer, 0xff, id,
		mbox.CmdLanePower, &mbox.LanePowerReq{LaneMask: 0xff, State: mbox.PowerUp}, nil,
	)
	if err != nil {
		return fmt.Errorf("could not power up lanes: %w", err)
	}

	if down == 0 {
		return nil
	}
	err = dev.send(
		mbox.Serializer, down, id,
		mbox.CmdLanePower, &mbox.LanePowerReq{LaneMask: down, State: mbox.PowerDown}, nil,
	)
	if err != nil {
		return fmt.Errorf("could not restore powered down lanes 0x%02x: %w", down, err)
	}
	return nil
}
