// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"fmt"
	"strings"

	"github.com/go-lpc/jesd/internal/regs"
)

// LaneConfig is the configuration of a lane, as programmed locally or as
// announced by the far end in its ILAS.
//
// Counts hold natural values (L=4 means four lanes). The ILAS carries
// L, F, K, M, N, NP and S minus one.
type LaneConfig struct {
	DID       uint8  // device id
	BID       uint8  // bank id
	LID       uint8  // lane id
	L         uint8  // lanes per link
	SCR       uint8  // scrambling enabled
	F         uint16 // octets per frame
	K         uint8  // frames per multiframe
	M         uint16 // converters per device
	N         uint8  // converter resolution
	CS        uint8  // control bits per sample
	NP        uint8  // total bits per sample
	S         uint8  // samples per converter per frame
	HD        uint8  // high density format
	CF        uint8  // control words per frame
	JESDV     uint8  // JESD204 version
	SubclassV uint8  // device subclass version
	FCHK      uint8  // checksum
}

// Field identifies a field of a LaneConfig.
type Field uint8

const (
	FieldDID Field = iota
	FieldBID
	FieldLID
	FieldL
	FieldSCR
	FieldF
	FieldK
	FieldM
	FieldN
	FieldCS
	FieldNP
	FieldS
	FieldHD
	FieldCF
	FieldJESDV
	FieldSubclassV
	FieldFCHK

	numFields
)

var fieldNames = [numFields]string{
	"DID", "BID", "LID", "L", "SCR", "F", "K", "M", "N", "CS",
	"NP", "S", "HD", "CF", "JESDV", "SubclassV", "FCHK",
}

func (f Field) String() string {
	if f < numFields {
		return fieldNames[f]
	}
	return fmt.Sprintf("field-%d", uint8(f))
}

// FieldMask is a set of fields, one bit per Field.
type FieldMask uint32

// Has returns whether f is in the set.
func (m FieldMask) Has(f Field) bool { return m&(1<<f) != 0 }

func (m FieldMask) String() string {
	if m == 0 {
		return "{}"
	}
	var names []string
	for f := Field(0); f < numFields; f++ {
		if m.Has(f) {
			names = append(names, f.String())
		}
	}
	return "{" + strings.Join(names, ",") + "}"
}

func minus1(v uint8, mask uint8) uint8 { return (v - 1) & mask }

// field returns the value of f as encoded in the ILAS.
func (cfg LaneConfig) field(f Field) uint8 {
	switch f {
	case FieldDID:
		return cfg.DID
	case FieldBID:
		return cfg.BID & 0x0f
	case FieldLID:
		return cfg.LID & 0x1f
	case FieldL:
		return minus1(cfg.L, 0x1f)
	case FieldSCR:
		return cfg.SCR & 0x01
	case FieldF:
		return uint8(cfg.F - 1)
	case FieldK:
		return minus1(cfg.K, 0x1f)
	case FieldM:
		return uint8(cfg.M - 1)
	case FieldN:
		return minus1(cfg.N, 0x1f)
	case FieldCS:
		return cfg.CS & 0x03
	case FieldNP:
		return minus1(cfg.NP, 0x1f)
	case FieldS:
		return minus1(cfg.S, 0x1f)
	case FieldHD:
		return cfg.HD & 0x01
	case FieldCF:
		return cfg.CF & 0x1f
	case FieldJESDV:
		return cfg.JESDV & 0x07
	case FieldSubclassV:
		return cfg.SubclassV & 0x07
	case FieldFCHK:
		return cfg.FCHK
	}
	panic(fmt.Errorf("link: invalid field %d", f))
}

// Checksum returns the ILAS checksum of cfg: the 8-bit truncated sum of
// all the encoded configuration fields, FCHK excluded.
func Checksum(cfg LaneConfig) uint8 {
	var sum uint8
	for f := Field(0); f < FieldFCHK; f++ {
		sum += cfg.field(f)
	}
	return sum
}

// Compare compares a configured lane against the configuration observed
// in its ILAS.
// mismatch has a bit set for every field whose encoded values differ,
// with FCHK compared against Checksum(cfg).
// nonzero has a bit set for every field observed with a non-zero
// encoded value.
func Compare(cfg, obs LaneConfig) (mismatch, nonzero FieldMask) {
	for f := Field(0); f < FieldFCHK; f++ {
		o := obs.field(f)
		if cfg.field(f) != o {
			mismatch |= 1 << f
		}
		if o != 0 {
			nonzero |= 1 << f
		}
	}
	if Checksum(cfg) != obs.FCHK {
		mismatch |= 1 << FieldFCHK
	}
	if obs.FCHK != 0 {
		nonzero |= 1 << FieldFCHK
	}
	return mismatch, nonzero
}

// EncodeILAS encodes cfg into the ILAS configuration octets, as sent by
// the transmitter of a lane.
func EncodeILAS(cfg LaneConfig) [regs.ILASLen]byte {
	var p [regs.ILASLen]byte
	p[regs.ILASDID] = cfg.field(FieldDID)
	p[regs.ILASBID] = cfg.field(FieldBID)
	p[regs.ILASLID] = cfg.field(FieldLID)
	p[regs.ILASSCRL] = cfg.field(FieldSCR)<<7 | cfg.field(FieldL)
	p[regs.ILASF] = cfg.field(FieldF)
	p[regs.ILASK] = cfg.field(FieldK)
	p[regs.ILASM] = cfg.field(FieldM)
	p[regs.ILASCSN] = cfg.field(FieldCS)<<6 | cfg.field(FieldN)
	p[regs.ILASVNP] = cfg.field(FieldJESDV)<<5 | cfg.field(FieldNP)
	p[regs.ILASSubS] = cfg.field(FieldSubclassV)<<5 | cfg.field(FieldS)
	p[regs.ILASHDCF] = cfg.field(FieldHD)<<7 | cfg.field(FieldCF)
	p[regs.ILASFCHK] = cfg.FCHK
	return p
}

// DecodeILAS decodes the ILAS configuration octets of a lane.
func DecodeILAS(p []byte) LaneConfig {
	return LaneConfig{
		DID:       p[regs.ILASDID],
		BID:       p[regs.ILASBID] & 0x0f,
		LID:       p[regs.ILASLID] & 0x1f,
		L:         p[regs.ILASSCRL]&0x1f + 1,
		SCR:       p[regs.ILASSCRL] >> 7,
		F:         uint16(p[regs.ILASF]) + 1,
		K:         p[regs.ILASK]&0x1f + 1,
		M:         uint16(p[regs.ILASM]) + 1,
		N:         p[regs.ILASCSN]&0x1f + 1,
		CS:        p[regs.ILASCSN] >> 6,
		NP:        p[regs.ILASVNP]&0x1f + 1,
		S:         p[regs.ILASSubS]&0x1f + 1,
		HD:        p[regs.ILASHDCF] >> 7,
		CF:        p[regs.ILASHDCF] & 0x1f,
		JESDV:     p[regs.ILASVNP] >> 5,
		SubclassV: p[regs.ILASSubS] >> 5,
		FCHK:      p[regs.ILASFCHK],
	}
}
