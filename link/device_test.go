// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"time"

	"github.com/go-lpc/jesd/internal/fakedev"
	"github.com/go-lpc/jesd/internal/regs"
)

func nosleep(time.Duration) {}

func newTestDevice(opts ...Option) (*Device, *fakedev.Device) {
	fake := fakedev.New()
	opts = append([]Option{WithSleep(nosleep)}, opts...)
	return New(fake, opts...), fake
}

// setupDeframer programs the deframer link l with cfg on the lanes of
// mask and makes every enabled lane observe obs(lane).
func setupDeframer(fake *fakedev.Device, dev *Device, l Link, cfg LaneConfig, mask uint8, obs func(lane int) LaneConfig) error {
	var lids [regs.NumLanes]uint8
	for i := range lids {
		lids[i] = uint8(i)
	}
	err := dev.ProgramConfig(l, cfg, lids)
	if err != nil {
		return err
	}

	base := l.base()
	fake.Set(base+regs.LinkCtrl, regs.LinkEnable|regs.LinkSync)
	fake.Set(base+regs.LaneEnable, mask)
	for _, lane := range lanesOf(mask) {
		p := EncodeILAS(obs(lane))
		for i, v := range p {
			fake.Set(regs.ILAS(base, lane, i), v)
		}
	}
	fake.ResetLogs()
	return nil
}
