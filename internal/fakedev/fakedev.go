// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedev provides a fake register file with scripted
// co-processors, for tests.
package fakedev // import "github.com/go-lpc/jesd/internal/fakedev"

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/go-lpc/jesd/internal/regs"
	"github.com/go-lpc/jesd/mbox"
	"github.com/go-lpc/jesd/regio"
)

// Access is a logged register access.
type Access struct {
	Addr  uint16
	Value uint8 // full register value, after the access
}

// Command is a logged co-processor command.
type Command struct {
	Proc mbox.Processor
	Link uint8
	Cmd  mbox.Command
	Req  []byte
}

// Handler executes a command on a co-processor and returns the status
// and the encoded response payload.
type Handler func(dev *Device, cmd Command) (status uint8, rsp []byte)

// Device is a fake register file.
// A write ringing the doorbell of a mailbox runs the co-processor
// synchronously.
type Device struct {
	mu sync.Mutex

	Regs [1 << 16]byte

	Reads  []uint16
	Writes []Access
	Cmds   []Command

	// Handlers overrides the default co-processor behaviour, per command.
	Handlers map[mbox.Command]Handler

	// Stuck leaves the doorbell set: commands never complete.
	Stuck bool

	// Fail returns an error for the access to addr, if not nil.
	Fail func(addr uint16, write bool) error

	// Calibration script.
	CalPolls  int // number of status polls before completion (<0: never)
	CalFailAt int // status poll failing with StatusCalFailed (<0: never)
	CalResult mbox.CalStatusRsp
	calPolls  int

	Version mbox.FirmwareVersion
}

// New returns a fake device with all lanes powered up.
func New() *Device {
	return &Device{
		CalPolls:  3,
		CalFailAt: -1,
		Version:   mbox.FirmwareVersion{Major: 1, Minor: 4, Patch: 2, Build: 1234},
	}
}

// Set sets the register at addr to v, without logging.
func (dev *Device) Set(addr uint16, v uint8) {
	dev.mu.Lock()
	dev.Regs[addr] = v
	dev.mu.Unlock()
}

// Get returns the register at addr, without logging.
func (dev *Device) Get(addr uint16) uint8 {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.Regs[addr]
}

// ResetLogs clears the access and command logs.
func (dev *Device) ResetLogs() {
	dev.mu.Lock()
	dev.Reads = nil
	dev.Writes = nil
	dev.Cmds = nil
	dev.mu.Unlock()
}

// WritesTo returns the logged writes to addr.
func (dev *Device) WritesTo(addr uint16) []Access {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	var o []Access
	for _, w := range dev.Writes {
		if w.Addr == addr {
			o = append(o, w)
		}
	}
	return o
}

// CmdsOf returns the logged commands with id cmd.
func (dev *Device) CmdsOf(cmd mbox.Command) []Command {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	var o []Command
	for _, c := range dev.Cmds {
		if c.Cmd == cmd {
			o = append(o, c)
		}
	}
	return o
}

func (dev *Device) fail(addr uint16, n int, write bool) error {
	if dev.Fail == nil {
		return nil
	}
	for i := 0; i < n; i++ {
		err := dev.Fail(addr+uint16(i), write)
		if err != nil {
			return err
		}
	}
	return nil
}

func (dev *Device) ReadField(addr uint16, mask uint8) (uint8, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	err := dev.fail(addr, 1, false)
	if err != nil {
		return 0, err
	}
	dev.Reads = append(dev.Reads, addr)
	return regio.Extract(dev.Regs[addr], mask), nil
}

func (dev *Device) WriteField(addr uint16, v, mask uint8) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	err := dev.fail(addr, 1, true)
	if err != nil {
		return err
	}
	dev.Regs[addr] = regio.Insert(dev.Regs[addr], v, mask)
	dev.Writes = append(dev.Writes, Access{Addr: addr, Value: dev.Regs[addr]})
	dev.doorbell(addr)
	return nil
}

func (dev *Device) ReadBlock(addr uint16, p []byte) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	err := dev.fail(addr, len(p), false)
	if err != nil {
		return err
	}
	for i := range p {
		a := addr + uint16(i)
		dev.Reads = append(dev.Reads, a)
		p[i] = dev.Regs[a]
	}
	return nil
}

func (dev *Device) WriteBlock(addr uint16, p []byte) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	err := dev.fail(addr, len(p), true)
	if err != nil {
		return err
	}
	for i, v := range p {
		a := addr + uint16(i)
		dev.Regs[a] = v
		dev.Writes = append(dev.Writes, Access{Addr: a, Value: v})
		dev.doorbell(a)
	}
	return nil
}

func (dev *Device) doorbell(addr uint16) {
	for proc := 0; proc < regs.NumProcs; proc++ {
		base := regs.Mbox(uint8(proc))
		ctrl := base + regs.MboxCtrl
		if addr != ctrl || dev.Regs[ctrl]&regs.MboxDoorbell == 0 {
			continue
		}
		if dev.Stuck {
			return
		}
		dev.run(mbox.Processor(proc), base)
		return
	}
}

func (dev *Device) run(proc mbox.Processor, base uint16) {
	var (
		n   = int(dev.Regs[base+regs.MboxLen])
		cmd = Command{
			Proc: proc,
			Link: dev.Regs[base+regs.MboxLink],
			Cmd:  mbox.Command(dev.Regs[base+regs.MboxCmd]),
			Req:  make([]byte, n),
		}
	)
	copy(cmd.Req, dev.Regs[base+regs.MboxPayload:])
	dev.Cmds = append(dev.Cmds, cmd)

	h, ok := dev.Handlers[cmd.Cmd]
	if !ok {
		h = defaultHandler
	}
	status, rsp := h(dev, cmd)

	out := append([]byte{status}, rsp...)
	copy(dev.Regs[base+regs.MboxPayload:], out)
	dev.Regs[base+regs.MboxLen] = uint8(len(out))
	dev.Regs[base+regs.MboxCtrl] &^= regs.MboxDoorbell
}

func decode(req []byte, v interface{}) bool {
	return binary.Read(bytes.NewReader(req), binary.LittleEndian, v) == nil
}

func encode(v interface{}) []byte {
	buf := new(bytes.Buffer)
	err := binary.Write(buf, binary.LittleEndian, v)
	if err != nil {
		panic(fmt.Errorf("fakedev: could not encode %T: %w", v, err))
	}
	return buf.Bytes()
}

func defaultHandler(dev *Device, cmd Command) (uint8, []byte) {
	switch cmd.Cmd {
	case mbox.CmdVersion:
		return mbox.StatusOK, encode(dev.Version)

	case mbox.CmdSerdesReset:
		var req mbox.SerdesResetReq
		if !decode(cmd.Req, &req) {
			return mbox.StatusInvalidArg, nil
		}
		return mbox.StatusOK, nil

	case mbox.CmdLanePower:
		var req mbox.LanePowerReq
		if !decode(cmd.Req, &req) {
			return mbox.StatusInvalidArg, nil
		}
		switch req.State {
		case mbox.PowerDown:
			dev.Regs[regs.SerPowerDown] |= req.LaneMask
		case mbox.PowerUp:
			dev.Regs[regs.SerPowerDown] &^= req.LaneMask
		default:
			return mbox.StatusInvalidArg, nil
		}
		return mbox.StatusOK, nil

	case mbox.CmdCalStart:
		var req mbox.CalStartReq
		if !decode(cmd.Req, &req) {
			return mbox.StatusInvalidArg, nil
		}
		dev.calPolls = 0
		return mbox.StatusOK, nil

	case mbox.CmdCalStatus:
		var req mbox.CalStatusReq
		if !decode(cmd.Req, &req) {
			return mbox.StatusInvalidArg, nil
		}
		i := dev.calPolls
		dev.calPolls++
		if i == dev.CalFailAt {
			return mbox.StatusCalFailed, nil
		}
		rsp := mbox.CalStatusRsp{
			Lane: req.Lane,
			Kind: req.Kind,
			Iter: uint32(dev.calPolls),
		}
		if dev.CalPolls >= 0 && dev.calPolls >= dev.CalPolls {
			rsp = dev.CalResult
			rsp.Done = 1
			rsp.Lane = req.Lane
			rsp.Kind = req.Kind
			rsp.Iter = uint32(dev.calPolls)
		}
		return mbox.StatusOK, encode(rsp)
	}
	return mbox.StatusInvalidCmd, nil
}

var (
	_ regio.Bus = (*Device)(nil)
)
