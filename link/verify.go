// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"math/bits"

	"github.com/go-lpc/jesd"
	"github.com/go-lpc/jesd/internal/regs"
	"go.uber.org/zap"
)

// LaneReport is the outcome of the verification of a lane.
type LaneReport struct {
	Mismatch   FieldMask // fields differing between Configured and Observed
	NonZero    FieldMask // fields observed with a non-zero value
	Configured LaneConfig
	Observed   LaneConfig
}

// Report is the outcome of the verification of a link.
type Report struct {
	Link       Link
	Enabled    uint8 // enabled lanes
	StatusLane int   // lane reporting the per-link fields
	Lanes      uint8 // lanes with at least one mismatch
	Lane       [regs.NumLanes]LaneReport
}

// OK returns whether no enabled lane reported a mismatch.
func (r Report) OK() bool { return r.Lanes == 0 }

// VerifyILAS compares, for every enabled lane of the deframer link l, the
// locally programmed configuration with the one the far end announced
// in its ILAS.
//
// The bank id (BID) and control words per frame (CF) have no local
// configuration source: their configured values are the observed ones.
// The JESD204 version and subclass are only reported by the first
// enabled lane and apply to every lane.
func (dev *Device) VerifyILAS(l Link) (Report, error) {
	const op = "link: verify ILAS"
	rep := Report{Link: l}

	if l.Variant == Extended {
		return rep, &jesd.UnsupportedError{Op: op, What: "extended link variant"}
	}
	err := l.check(op)
	if err != nil {
		return rep, err
	}
	if l.Role != Deframer {
		return rep, &jesd.ParameterError{Op: op, Param: "role", Value: l.Role, Want: "deframer"}
	}

	base := l.base()
	enabled := dev.rd(base+regs.LinkCtrl, regs.LinkEnable)
	if err := dev.transport(op); err != nil {
		return rep, err
	}
	if enabled == 0 {
		return rep, jesd.ErrLinkDisabled
	}

	rep.Enabled = dev.rd(base+regs.LaneEnable, 0xff)
	if err := dev.transport(op); err != nil {
		return rep, err
	}
	if rep.Enabled == 0 {
		return rep, jesd.ErrLinkDisabled
	}
	rep.StatusLane = bits.TrailingZeros8(rep.Enabled)

	cfg := dev.readConfig(base)

	var ilas [regs.NumLanes][regs.ILASLen]byte
	for _, lane := range lanesOf(rep.Enabled) {
		dev.rdBlock(regs.ILAS(base, lane, 0), ilas[lane][:])
	}
	for _, lane := range lanesOf(rep.Enabled) {
		cfg.LID = dev.rd(base+regs.CfgLID+uint16(lane), 0x1f)
		rep.Lane[lane].Configured = cfg
	}
	if err := dev.transport(op); err != nil {
		return rep, err
	}

	status := DecodeILAS(ilas[rep.StatusLane][:])
	for _, lane := range lanesOf(rep.Enabled) {
		lr := &rep.Lane[lane]
		lr.Observed = DecodeILAS(ilas[lane][:])
		lr.Observed.JESDV = status.JESDV
		lr.Observed.SubclassV = status.SubclassV

		lr.Configured.BID = lr.Observed.BID
		lr.Configured.CF = lr.Observed.CF
		lr.Configured.FCHK = Checksum(lr.Configured)

		lr.Mismatch, lr.NonZero = Compare(lr.Configured, lr.Observed)
		if lr.Mismatch != 0 {
			rep.Lanes |= 1 << lane
			dev.msg.Warn("ILAS mismatch",
				zap.Stringer("link", l),
				zap.Int("lane", lane),
				zap.Stringer("fields", lr.Mismatch),
			)
		}
	}

	return rep, nil
}

// readConfig reads the configuration programmed in the deframer at base,
// with lane specific fields left zero.
func (dev *Device) readConfig(base uint16) LaneConfig {
	return LaneConfig{
		DID:       dev.rd(base+regs.CfgDID, 0xff),
		L:         dev.rd(base+regs.CfgL, 0x1f) + 1,
		SCR:       dev.rd(base+regs.CfgSCR, 0x80),
		F:         uint16(dev.rd(base+regs.CfgF, 0xff)) + 1,
		K:         dev.rd(base+regs.CfgK, 0x1f) + 1,
		M:         uint16(dev.rd(base+regs.CfgM, 0xff)) + 1,
		N:         dev.rd(base+regs.CfgCSN, 0x1f) + 1,
		CS:        dev.rd(base+regs.CfgCSN, 0xc0),
		NP:        dev.rd(base+regs.CfgVNP, 0x1f) + 1,
		JESDV:     dev.rd(base+regs.CfgVNP, 0xe0),
		S:         dev.rd(base+regs.CfgSubS, 0x1f) + 1,
		SubclassV: dev.rd(base+regs.CfgSubS, 0xe0),
		HD:        dev.rd(base+regs.CfgHD, 0x80),
	}
}

// ProgramConfig programs the local configuration of the deframer link l.
// Lane ids are taken from lids, indexed by lane.
func (dev *Device) ProgramConfig(l Link, cfg LaneConfig, lids [regs.NumLanes]uint8) error {
	const op = "link: program config"
	err := l.check(op)
	if err != nil {
		return err
	}
	if l.Role != Deframer {
		return &jesd.ParameterError{Op: op, Param: "role", Value: l.Role, Want: "deframer"}
	}

	base := l.base()
	dev.wr(base+regs.CfgDID, cfg.field(FieldDID), 0xff)
	dev.wr(base+regs.CfgL, cfg.field(FieldL), 0x1f)
	dev.wr(base+regs.CfgSCR, cfg.field(FieldSCR), 0x80)
	dev.wr(base+regs.CfgF, cfg.field(FieldF), 0xff)
	dev.wr(base+regs.CfgK, cfg.field(FieldK), 0x1f)
	dev.wr(base+regs.CfgM, cfg.field(FieldM), 0xff)
	dev.wr(base+regs.CfgCSN, cfg.field(FieldN), 0x1f)
	dev.wr(base+regs.CfgCSN, cfg.field(FieldCS), 0xc0)
	dev.wr(base+regs.CfgVNP, cfg.field(FieldNP), 0x1f)
	dev.wr(base+regs.CfgVNP, cfg.field(FieldJESDV), 0xe0)
	dev.wr(base+regs.CfgSubS, cfg.field(FieldS), 0x1f)
	dev.wr(base+regs.CfgSubS, cfg.field(FieldSubclassV), 0xe0)
	dev.wr(base+regs.CfgHD, cfg.field(FieldHD), 0x80)
	for lane, lid := range lids {
		dev.wr(base+regs.CfgLID+uint16(lane), lid&0x1f, 0x1f)
	}

	return dev.transport(op)
}
