// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regio

import (
	"fmt"

	"github.com/go-daq/smbus"
)

// SMBus indirect-access bridge registers.
const (
	smbAddrLo = 0x00 // low byte of the register address
	smbAddrHi = 0x01 // high byte of the register address (page)
	smbData   = 0x02 // data port, address auto-increments after each access
)

type smbConn interface {
	ReadReg(addr, reg uint8) (uint8, error)
	WriteReg(addr, reg, v uint8) error
	Close() error
}

// SMBus is a register bus reached through an SMBus indirect-access bridge.
type SMBus struct {
	conn smbConn
	addr uint8

	page  uint16
	valid bool // whether page caches the bridge address pointer
}

// OpenSMBus opens the SMBus bus number bus and talks to the bridge at addr.
func OpenSMBus(bus int, addr uint8) (*SMBus, error) {
	conn, err := smbus.Open(bus, addr)
	if err != nil {
		return nil, fmt.Errorf("regio: could not open smbus-%d (addr=0x%x): %w", bus, addr, err)
	}
	return newSMBus(conn, addr), nil
}

func newSMBus(conn smbConn, addr uint8) *SMBus {
	return &SMBus{conn: conn, addr: addr}
}

// Close closes the underlying SMBus connection.
func (bus *SMBus) Close() error {
	return bus.conn.Close()
}

func (bus *SMBus) seek(addr uint16) error {
	err := bus.conn.WriteReg(bus.addr, smbAddrLo, uint8(addr))
	if err != nil {
		bus.valid = false
		return fmt.Errorf("regio: could not set smbus address pointer 0x%04x: %w", addr, err)
	}
	hi := addr >> 8
	if !bus.valid || bus.page != hi {
		err = bus.conn.WriteReg(bus.addr, smbAddrHi, uint8(hi))
		if err != nil {
			bus.valid = false
			return fmt.Errorf("regio: could not set smbus page 0x%02x: %w", hi, err)
		}
		bus.page = hi
		bus.valid = true
	}
	return nil
}

func (bus *SMBus) read(p []byte, addr uint16) error {
	err := bus.seek(addr)
	if err != nil {
		return err
	}
	for i := range p {
		v, err := bus.conn.ReadReg(bus.addr, smbData)
		if err != nil {
			bus.valid = false
			return fmt.Errorf("regio: could not read register 0x%04x: %w", addr+uint16(i), err)
		}
		p[i] = v
	}
	bus.page = (addr + uint16(len(p))) >> 8
	return nil
}

func (bus *SMBus) write(p []byte, addr uint16) error {
	err := bus.seek(addr)
	if err != nil {
		return err
	}
	for i, v := range p {
		err = bus.conn.WriteReg(bus.addr, smbData, v)
		if err != nil {
			bus.valid = false
			return fmt.Errorf("regio: could not write register 0x%04x: %w", addr+uint16(i), err)
		}
	}
	bus.page = (addr + uint16(len(p))) >> 8
	return nil
}

func (bus *SMBus) ReadField(addr uint16, mask uint8) (uint8, error) {
	var p [1]byte
	err := bus.read(p[:], addr)
	if err != nil {
		return 0, err
	}
	return Extract(p[0], mask), nil
}

func (bus *SMBus) WriteField(addr uint16, v, mask uint8) error {
	var p [1]byte
	p[0] = v
	if mask != 0xff {
		err := bus.read(p[:], addr)
		if err != nil {
			return err
		}
		p[0] = Insert(p[0], v, mask)
	}
	return bus.write(p[:], addr)
}

func (bus *SMBus) ReadBlock(addr uint16, p []byte) error {
	return bus.read(p, addr)
}

func (bus *SMBus) WriteBlock(addr uint16, p []byte) error {
	return bus.write(p, addr)
}

var (
	_ Bus = (*SMBus)(nil)
)
