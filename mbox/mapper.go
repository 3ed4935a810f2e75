// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mbox

import (
	"fmt"

	"github.com/go-lpc/jesd"
)

// Subsystem identifies a lane subsystem of the device.
type Subsystem uint8

const (
	Serializer   Subsystem = 0 // framer lanes, device to host
	Deserializer Subsystem = 1 // deframer lanes, host to device
)

func (sub Subsystem) String() string {
	switch sub {
	case Serializer:
		return "serializer"
	case Deserializer:
		return "deserializer"
	}
	return fmt.Sprintf("subsystem-%d", uint8(sub))
}

// Mapper resolves which co-processor owns a set of lanes.
type Mapper interface {
	Owner(sub Subsystem, lanes uint8) (Processor, error)
}

// LaneSplit maps lanes below the split to CPU0 and the others to CPU1.
// Lane masks straddling the split belong to CPU0.
type LaneSplit uint8

// DefaultMapper is the lane ownership of the dual co-processor device.
const DefaultMapper = LaneSplit(4)

func (split LaneSplit) Owner(sub Subsystem, lanes uint8) (Processor, error) {
	const op = "mbox: owner"
	switch sub {
	case Serializer, Deserializer:
	default:
		return 0, &jesd.ParameterError{
			Op: op, Param: "subsystem", Value: sub, Want: "serializer or deserializer",
		}
	}
	if lanes == 0 {
		return 0, &jesd.ParameterError{
			Op: op, Param: "lane mask", Value: lanes, Want: "at least one lane",
		}
	}

	lo := uint8(0xff)
	if split < 8 {
		lo = uint8(1)<<split - 1
	}
	if lanes&lo != 0 {
		return CPU0, nil
	}
	return CPU1, nil
}

var (
	_ Mapper = DefaultMapper
)
