// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"github.com/go-lpc/jesd/internal/regs"
)

// Status is the state of a link.
type Status struct {
	Link    Link
	Enabled bool
	Sync    bool  // lanes aligned
	Lanes   uint8 // enabled lanes
	ILAS    uint8 // ILAS received, per lane (deframer links only)
}

// Status reads the state of the link l.
func (dev *Device) Status(l Link) (Status, error) {
	const op = "link: status"
	st := Status{Link: l}
	err := l.check(op)
	if err != nil {
		return st, err
	}

	base := l.base()
	ctrl := dev.rd(base+regs.LinkCtrl, 0xff)
	st.Enabled = ctrl&regs.LinkEnable != 0
	st.Sync = ctrl&regs.LinkSync != 0
	st.Lanes = dev.rd(base+regs.LaneEnable, 0xff)
	if l.Role == Deframer {
		st.ILAS = dev.rd(base+regs.ILASStatus, 0xff)
	}

	return st, dev.transport(op)
}
