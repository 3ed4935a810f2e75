// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regio describes the register access facade of the device and
// provides backends to reach its 8-bit registers: a memory-mapped window
// (/dev/mem), an SMBus controller and a serial (UART) bridge.
//
// Registers are 8 bits wide and live in a 16-bit address space.
// Accesses to a single register are atomic from the point of view of
// the caller: a masked write is a read-modify-write of one register.
package regio // import "github.com/go-lpc/jesd/regio"

import (
	"math/bits"
)

// Bus is the register access facade.
type Bus interface {
	// ReadField reads the register at addr and returns the bits
	// selected by mask, shifted down to bit 0.
	ReadField(addr uint16, mask uint8) (uint8, error)

	// WriteField shifts v up to the position of mask and writes it
	// into the register at addr, leaving bits outside mask untouched.
	WriteField(addr uint16, v, mask uint8) error

	// ReadBlock reads len(p) consecutive registers starting at addr.
	ReadBlock(addr uint16, p []byte) error

	// WriteBlock writes len(p) consecutive registers starting at addr.
	WriteBlock(addr uint16, p []byte) error
}

// Field is a bit-field of a register.
type Field struct {
	Addr uint16
	Mask uint8
}

// Read reads the field from bus.
func (f Field) Read(bus Bus) (uint8, error) {
	return bus.ReadField(f.Addr, f.Mask)
}

// Write writes v into the field.
func (f Field) Write(bus Bus, v uint8) error {
	return bus.WriteField(f.Addr, v, f.Mask)
}

// Extract returns the bits of raw selected by mask, shifted down to bit 0.
func Extract(raw, mask uint8) uint8 {
	if mask == 0 {
		return 0
	}
	return (raw & mask) >> bits.TrailingZeros8(mask)
}

// Insert returns raw where the bits selected by mask have been replaced
// by v, shifted up to the position of mask.
func Insert(raw, v, mask uint8) uint8 {
	if mask == 0 {
		return raw
	}
	return (raw &^ mask) | ((v << bits.TrailingZeros8(mask)) & mask)
}

// ReadU16 reads a little-endian 16-bit value stored in two consecutive registers.
func ReadU16(bus Bus, addr uint16) (uint16, error) {
	var p [2]byte
	err := bus.ReadBlock(addr, p[:])
	if err != nil {
		return 0, err
	}
	return uint16(p[0]) | uint16(p[1])<<8, nil
}

// WriteU16 writes a little-endian 16-bit value into two consecutive registers.
func WriteU16(bus Bus, addr uint16, v uint16) error {
	p := [2]byte{byte(v), byte(v >> 8)}
	return bus.WriteBlock(addr, p[:])
}
