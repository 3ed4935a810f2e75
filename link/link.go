// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package link drives the bring-up, verification and diagnostics of the
// JESD204 links of the device: lane reset sequencing, ILAS configuration
// verification, SerDes calibration and lane error counters.
package link // import "github.com/go-lpc/jesd/link"

import (
	"fmt"

	"github.com/go-lpc/jesd"
	"github.com/go-lpc/jesd/internal/regs"
)

// Role is the direction of a link.
type Role uint8

const (
	Framer   Role = iota // device to host
	Deframer             // host to device
)

func (r Role) String() string {
	switch r {
	case Framer:
		return "framer"
	case Deframer:
		return "deframer"
	}
	return fmt.Sprintf("role-%d", uint8(r))
}

// Variant is the link protocol variant.
type Variant uint8

const (
	Legacy   Variant = iota // JESD204B, 8b/10b
	Extended                // JESD204C, 64b/66b
)

func (v Variant) String() string {
	switch v {
	case Legacy:
		return "legacy"
	case Extended:
		return "extended"
	}
	return fmt.Sprintf("variant-%d", uint8(v))
}

// Link identifies a link instance of the device.
type Link struct {
	Role    Role
	Index   int
	Variant Variant
}

func (l Link) String() string {
	return fmt.Sprintf("%v-%d/%v", l.Role, l.Index, l.Variant)
}

func (l Link) check(op string) error {
	var n int
	switch l.Role {
	case Framer:
		n = regs.NumFramers
	case Deframer:
		n = regs.NumDeframers
	default:
		return &jesd.ParameterError{Op: op, Param: "role", Value: l.Role, Want: "framer or deframer"}
	}
	if l.Index < 0 || l.Index >= n {
		return &jesd.ParameterError{
			Op: op, Param: l.Role.String() + " index", Value: l.Index,
			Want: fmt.Sprintf("0..%d", n-1),
		}
	}
	switch l.Variant {
	case Legacy, Extended:
	default:
		return &jesd.ParameterError{Op: op, Param: "variant", Value: l.Variant, Want: "legacy or extended"}
	}
	return nil
}

func (l Link) base() uint16 {
	if l.Role == Framer {
		return regs.Framer(l.Index)
	}
	return regs.Deframer(l.Index)
}

func checkLane(op string, lane int) error {
	if lane < 0 || lane >= regs.NumLanes {
		return &jesd.ParameterError{
			Op: op, Param: "lane", Value: lane,
			Want: fmt.Sprintf("0..%d", regs.NumLanes-1),
		}
	}
	return nil
}

func lanesOf(mask uint8) []int {
	var lanes []int
	for i := 0; i < regs.NumLanes; i++ {
		if mask&(1<<i) != 0 {
			lanes = append(lanes, i)
		}
	}
	return lanes
}
