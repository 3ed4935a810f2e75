// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regs holds the register map of the device.
package regs // import "github.com/go-lpc/jesd/internal/regs"

const (
	NumLanes     = 8
	NumFramers   = 3
	NumDeframers = 2
	NumProcs     = 2
)

// co-processor mailboxes
const (
	MboxBase   = 0x0100
	MboxStride = 0x80

	MboxCmd     = 0x00
	MboxLink    = 0x01
	MboxCtrl    = 0x02
	MboxLen     = 0x03
	MboxPayload = 0x10

	MboxPayloadSize = 64

	MboxDoorbell = 1 << 0 // set by the host, cleared by the co-processor on completion
	MboxXferErr  = 1 << 1 // set by the co-processor when the exchange could not complete
)

// Mbox returns the base address of the mailbox of the co-processor proc.
func Mbox(proc uint8) uint16 {
	return MboxBase + uint16(proc)*MboxStride
}

// serializer lanes
const (
	SerPowerDown = 0x0400 // bit set: lane powered down
	SerClkOffset = 0x0410 // + lane
	SerFifoStart = 0x0418 // + lane

	ClkOffsetLegacy   = 0x04
	ClkOffsetExtended = 0x06
	FifoStartExtended = 0x08
)

// links
const (
	FramerBase   = 0x0600
	DeframerBase = 0x0A00
	LinkStride   = 0x100
)

// Framer returns the base address of the framer link i.
func Framer(i int) uint16 { return FramerBase + uint16(i)*LinkStride }

// Deframer returns the base address of the deframer link i.
func Deframer(i int) uint16 { return DeframerBase + uint16(i)*LinkStride }

// per-link register offsets
const (
	LinkCtrl   = 0x00
	LinkEnable = 1 << 0
	LinkSync   = 1 << 1 // SYNC~ de-asserted: lanes aligned

	LaneEnable = 0x01

	CfgDID  = 0x10
	CfgL    = 0x12 // L-1 [4:0]
	CfgSCR  = 0x13 // bit 7
	CfgF    = 0x14 // F-1
	CfgK    = 0x15 // K-1 [4:0]
	CfgM    = 0x16 // M-1
	CfgCSN  = 0x17 // CS [7:6] | N-1 [4:0]
	CfgVNP  = 0x18 // JESDV [7:5] | NP-1 [4:0]
	CfgSubS = 0x19 // SubclassV [7:5] | S-1 [4:0]
	CfgHD   = 0x1A // bit 7
	CfgLID  = 0x20 // + lane, [4:0]

	ILASBase   = 0x40 // + lane*ILASStride
	ILASStride = 0x10
	ILASLen    = 14

	ErrCntCtrl   = 0xC0 // + lane: enable [2:0] | reset [6:4]
	ErrCntHold   = 0xC8 // + lane
	ErrIRQMask   = 0xD0 // + lane
	ErrThreshold = 0xD8
	ILASIRQMask  = 0xDA
	ILASCntReset = 0xDB
	ILASStatus   = 0xDC
	ErrCount     = 0xE0 // + lane*4 + class

	ErrCntEnableMask = 0x07
	ErrCntResetMask  = 0x70
)

// ILAS configuration octets, relative to ILASBase+lane*ILASStride.
const (
	ILASDID  = 0
	ILASBID  = 1 // [3:0]
	ILASLID  = 2 // [4:0]
	ILASSCRL = 3 // SCR bit 7 | L-1 [4:0]
	ILASF    = 4
	ILASK    = 5 // [4:0]
	ILASM    = 6
	ILASCSN  = 7 // CS [7:6] | N-1 [4:0]
	ILASVNP  = 8 // JESDV [7:5] | NP-1 [4:0]
	ILASSubS = 9 // SubclassV [7:5] | S-1 [4:0]
	ILASHDCF = 10
	ILASRes1 = 11
	ILASRes2 = 12
	ILASFCHK = 13
)

// ILAS returns the address of the ILAS octet of lane, for the link at base.
func ILAS(base uint16, lane, octet int) uint16 {
	return base + ILASBase + uint16(lane)*ILASStride + uint16(octet)
}
