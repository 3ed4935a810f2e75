// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mbox

import (
	"fmt"

	"github.com/go-lpc/jesd/internal/regs"
)

// Command is a co-processor command id.
type Command uint8

const (
	CmdVersion     Command = 0x01
	CmdSerdesReset Command = 0x10
	CmdLanePower   Command = 0x11
	CmdCalStart    Command = 0x20
	CmdCalStatus   Command = 0x21
)

func (cmd Command) String() string {
	switch cmd {
	case CmdVersion:
		return "version"
	case CmdSerdesReset:
		return "serdes-reset"
	case CmdLanePower:
		return "lane-power"
	case CmdCalStart:
		return "cal-start"
	case CmdCalStatus:
		return "cal-status"
	}
	return fmt.Sprintf("cmd-0x%02x", uint8(cmd))
}

// Status codes embedded in the first octet of every response.
const (
	StatusOK          uint8 = 0x00
	StatusInvalidCmd  uint8 = 0x01
	StatusInvalidArg  uint8 = 0x02
	StatusBusy        uint8 = 0x03
	StatusUnsupported uint8 = 0x04
	StatusTimeout     uint8 = 0x05
	StatusCalFailed   uint8 = 0x06
	StatusInternal    uint8 = 0xff
)

var statusNames = map[uint8]string{
	StatusOK:          "ok",
	StatusInvalidCmd:  "invalid command",
	StatusInvalidArg:  "invalid parameter",
	StatusBusy:        "resource busy",
	StatusUnsupported: "unsupported feature",
	StatusTimeout:     "device timeout",
	StatusCalFailed:   "calibration failed",
	StatusInternal:    "internal error",
}

// StatusName returns a human readable name for a status code.
func StatusName(code uint8) string {
	if name, ok := statusNames[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown status 0x%02x", code)
}

// Lane power states for CmdLanePower.
const (
	PowerUp   uint8 = 0
	PowerDown uint8 = 1
)

// SerdesResetReq requests a reset of the serializer lanes in LaneMask.
type SerdesResetReq struct {
	LaneMask uint8
	Flags    uint8
	Settle   uint16 // settle time after reset, in microseconds
}

// LanePowerReq sets the power state of the serializer lanes in LaneMask.
type LanePowerReq struct {
	LaneMask uint8
	State    uint8
}

// CalStartReq starts a calibration on a deserializer lane.
type CalStartReq struct {
	Lane    uint8
	Kind    uint8
	Pattern uint8 // PRBS pattern
	_       uint8
	Dwell   uint16 // dwell time per sweep point, in milliseconds
}

// CalStatusReq queries the calibration status of a deserializer lane.
type CalStatusReq struct {
	Lane uint8
	Kind uint8
}

// CalStatusRsp is the calibration status reported by a co-processor.
type CalStatusRsp struct {
	Done  uint8
	Lane  uint8
	Kind  uint8
	_     uint8
	Left  int16  // left sweep boundary (horizontal sweep)
	Right int16  // right sweep boundary (horizontal sweep)
	Upper int16  // upper eye boundary, in mV (vertical eye)
	Lower int16  // lower eye boundary, in mV (vertical eye)
	Iter  uint32 // firmware iteration counter
}

// FirmwareVersion is the firmware version of a co-processor.
type FirmwareVersion struct {
	Major uint8
	Minor uint8
	Patch uint8
	_     uint8
	Build uint32
}

func (v FirmwareVersion) String() string {
	return fmt.Sprintf("v%d.%d.%d+%d", v.Major, v.Minor, v.Patch, v.Build)
}

type schema struct {
	req int
	rsp int
}

func schemaOf(req, rsp interface{}) schema {
	return schema{req: payloadSize(req), rsp: payloadSize(rsp)}
}

var schemas = map[Command]schema{
	CmdVersion:     schemaOf(nil, FirmwareVersion{}),
	CmdSerdesReset: schemaOf(SerdesResetReq{}, nil),
	CmdLanePower:   schemaOf(LanePowerReq{}, nil),
	CmdCalStart:    schemaOf(CalStartReq{}, nil),
	CmdCalStatus:   schemaOf(CalStatusReq{}, CalStatusRsp{}),
}

// maxPayload is the largest payload of any command.
var maxPayload = func() int {
	n := 0
	for _, sch := range schemas {
		if sch.req > n {
			n = sch.req
		}
		if sch.rsp > n {
			n = sch.rsp
		}
	}
	if n+1 > regs.MboxPayloadSize {
		panic(fmt.Errorf("mbox: payload too large for mailbox (%d > %d)", n+1, regs.MboxPayloadSize))
	}
	return n
}()
