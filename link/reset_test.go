// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/go-lpc/jesd"
	"github.com/go-lpc/jesd/internal/fakedev"
	"github.com/go-lpc/jesd/internal/regs"
	"github.com/go-lpc/jesd/mbox"
)

func TestResetLanesIdempotent(t *testing.T) {
	for _, variant := range []Variant{Legacy, Extended} {
		t.Run(variant.String(), func(t *testing.T) {
			for m := 0; m < 256; m++ {
				dev, fake := newTestDevice()
				down := uint8(m)
				fake.Set(regs.SerPowerDown, down)

				err := dev.ResetLanes(Link{Role: Framer, Index: m % regs.NumFramers, Variant: variant})
				if err != nil {
					t.Fatalf("mask=0x%02x: could not reset lanes: %+v", down, err)
				}
				if got := fake.Get(regs.SerPowerDown); got != down {
					t.Fatalf("mask=0x%02x: invalid power-down mask after reset: got=0x%02x", down, got)
				}
			}
		})
	}
}

func TestResetLanesLegacy(t *testing.T) {
	dev, fake := newTestDevice()
	fake.Set(regs.SerPowerDown, ^uint8(1<<0|1<<2|1<<5))

	err := dev.ResetLanes(Link{Role: Framer, Index: 1, Variant: Legacy})
	if err != nil {
		t.Fatalf("could not reset lanes: %+v", err)
	}

	for lane := 0; lane < regs.NumLanes; lane++ {
		ws := fake.WritesTo(regs.SerClkOffset + uint16(lane))
		switch lane {
		case 0, 2, 5:
			if len(ws) != 1 {
				t.Fatalf("lane %d: invalid number of clock-offset writes: got=%d, want=1", lane, len(ws))
			}
			if got, want := ws[0].Value, uint8(regs.ClkOffsetLegacy); got != want {
				t.Fatalf("lane %d: invalid clock offset: got=0x%02x, want=0x%02x", lane, got, want)
			}
		default:
			if len(ws) != 0 {
				t.Fatalf("lane %d: powered down lane touched", lane)
			}
		}
		if ws := fake.WritesTo(regs.SerFifoStart + uint16(lane)); len(ws) != 0 {
			t.Fatalf("lane %d: FIFO start written on legacy link", lane)
		}
	}
	if ws := fake.WritesTo(regs.SerPowerDown); len(ws) != 0 {
		t.Fatalf("power-down mask written: %+v", ws)
	}

	cmds := fake.CmdsOf(mbox.CmdSerdesReset)
	if len(cmds) != 1 {
		t.Fatalf("invalid number of reset commands: got=%d, want=1", len(cmds))
	}
	if got, want := cmds[0].Req, []byte{0x25, 0, 0, 0}; !bytes.Equal(got, want) {
		t.Fatalf("invalid reset request: got=%v, want=%v", got, want)
	}
	if got, want := cmds[0].Link, uint8(1); got != want {
		t.Fatalf("invalid link id: got=%d, want=%d", got, want)
	}
	if cmds := fake.CmdsOf(mbox.CmdLanePower); len(cmds) != 0 {
		t.Fatalf("lane power commands issued on legacy link: %d", len(cmds))
	}
}

func TestResetLanesExtended(t *testing.T) {
	dev, fake := newTestDevice()
	fake.Set(regs.SerPowerDown, ^uint8(1<<1|1<<6))

	err := dev.ResetLanes(Link{Role: Framer, Index: 0, Variant: Extended})
	if err != nil {
		t.Fatalf("could not reset lanes: %+v", err)
	}

	cmds := fake.CmdsOf(mbox.CmdLanePower)
	want := []struct {
		proc mbox.Processor
		req  []byte
	}{
		{mbox.CPU0, []byte{1 << 1, mbox.PowerDown}},
		{mbox.CPU1, []byte{1 << 6, mbox.PowerDown}},
		{mbox.CPU0, []byte{0xff, mbox.PowerUp}},
		{mbox.CPU0, []byte{0xbd, mbox.PowerDown}},
	}
	if len(cmds) != len(want) {
		t.Fatalf("invalid number of lane-power commands: got=%d, want=%d", len(cmds), len(want))
	}
	for i := range want {
		if cmds[i].Proc != want[i].proc || !bytes.Equal(cmds[i].Req, want[i].req) {
			t.Fatalf("cmd[%d]: got=%v %v, want=%v %v", i, cmds[i].Proc, cmds[i].Req, want[i].proc, want[i].req)
		}
	}

	for lane := 0; lane < regs.NumLanes; lane++ {
		var (
			clk  = fake.WritesTo(regs.SerClkOffset + uint16(lane))
			fifo = fake.WritesTo(regs.SerFifoStart + uint16(lane))
		)
		switch lane {
		case 1, 6:
			if len(clk) != 1 || clk[0].Value != regs.ClkOffsetExtended {
				t.Fatalf("lane %d: invalid clock-offset writes: %+v", lane, clk)
			}
			if len(fifo) != 1 || fifo[0].Value != regs.FifoStartExtended {
				t.Fatalf("lane %d: invalid FIFO start writes: %+v", lane, fifo)
			}
		default:
			if len(clk) != 0 || len(fifo) != 0 {
				t.Fatalf("lane %d: powered down lane touched", lane)
			}
		}
	}
	if cmds := fake.CmdsOf(mbox.CmdSerdesReset); len(cmds) != 0 {
		t.Fatalf("serdes reset issued on extended link")
	}
}

func TestResetLanesErrors(t *testing.T) {
	errBus := errors.New("bus error")

	for _, tc := range []struct {
		name  string
		link  Link
		setup func(fake *fakedev.Device)
		check func(t *testing.T, fake *fakedev.Device, err error)
	}{
		{
			name: "deframer",
			link: Link{Role: Deframer, Index: 0},
			check: func(t *testing.T, fake *fakedev.Device, err error) {
				var perr *jesd.ParameterError
				if !errors.As(err, &perr) {
					t.Fatalf("invalid error: got=%+v, want a parameter error", err)
				}
				if len(fake.Reads) != 0 {
					t.Fatalf("registers read on invalid parameters")
				}
			},
		},
		{
			name: "bad-index",
			link: Link{Role: Framer, Index: 3},
			check: func(t *testing.T, fake *fakedev.Device, err error) {
				var perr *jesd.ParameterError
				if !errors.As(err, &perr) {
					t.Fatalf("invalid error: got=%+v, want a parameter error", err)
				}
			},
		},
		{
			name: "legacy-reset-fails",
			link: Link{Role: Framer, Index: 0, Variant: Legacy},
			setup: func(fake *fakedev.Device) {
				fake.Handlers = map[mbox.Command]fakedev.Handler{
					mbox.CmdSerdesReset: func(*fakedev.Device, fakedev.Command) (uint8, []byte) {
						return mbox.StatusBusy, nil
					},
				}
			},
			check: func(t *testing.T, fake *fakedev.Device, err error) {
				var herr *jesd.HardwareError
				if !errors.As(err, &herr) {
					t.Fatalf("invalid error: got=%+v, want a hardware error", err)
				}
				if herr.Code != mbox.StatusBusy {
					t.Fatalf("invalid status: got=0x%02x, want=0x%02x", herr.Code, mbox.StatusBusy)
				}
				// clock offsets are not rolled back.
				if ws := fake.WritesTo(regs.SerClkOffset); len(ws) != 1 {
					t.Fatalf("invalid clock-offset writes: %+v", ws)
				}
			},
		},
		{
			name: "extended-power-fails",
			link: Link{Role: Framer, Index: 0, Variant: Extended},
			setup: func(fake *fakedev.Device) {
				fake.Handlers = map[mbox.Command]fakedev.Handler{
					mbox.CmdLanePower: func(*fakedev.Device, fakedev.Command) (uint8, []byte) {
						return mbox.StatusUnsupported, nil
					},
				}
			},
			check: func(t *testing.T, fake *fakedev.Device, err error) {
				if !jesd.IsHardware(err) {
					t.Fatalf("invalid error: got=%+v, want a hardware error", err)
				}
				if n := len(fake.CmdsOf(mbox.CmdLanePower)); n != 1 {
					t.Fatalf("sequence not aborted: %d lane-power commands", n)
				}
				if n := len(fake.WritesTo(regs.SerClkOffset)); n != 0 {
					t.Fatalf("clock offset written after failure")
				}
			},
		},
		{
			name: "clock-offset-write-fails",
			link: Link{Role: Framer, Index: 0, Variant: Legacy},
			setup: func(fake *fakedev.Device) {
				fake.Fail = func(addr uint16, write bool) error {
					if write && addr == regs.SerClkOffset+3 {
						return errBus
					}
					return nil
				}
			},
			check: func(t *testing.T, fake *fakedev.Device, err error) {
				if !jesd.IsTransport(err) || !errors.Is(err, errBus) {
					t.Fatalf("invalid error: %+v", err)
				}
				if n := len(fake.CmdsOf(mbox.CmdSerdesReset)); n != 0 {
					t.Fatalf("reset command issued after failure")
				}
			},
		},
		{
			name: "power-down-read-fails",
			link: Link{Role: Framer, Index: 0, Variant: Extended},
			setup: func(fake *fakedev.Device) {
				fake.Fail = func(addr uint16, write bool) error {
					if addr == regs.SerPowerDown {
						return errBus
					}
					return nil
				}
			},
			check: func(t *testing.T, fake *fakedev.Device, err error) {
				if !jesd.IsTransport(err) || !errors.Is(err, errBus) {
					t.Fatalf("invalid error: %+v", err)
				}
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dev, fake := newTestDevice()
			if tc.setup != nil {
				tc.setup(fake)
			}
			err := dev.ResetLanes(tc.link)
			if err == nil {
				t.Fatalf("expected an error")
			}
			tc.check(t, fake, err)
		})
	}
}

func ExampleDevice_ResetLanes() {
	fake := fakedev.New()
	fake.Set(regs.SerPowerDown, 0xf0)

	dev := New(fake)
	err := dev.ResetLanes(Link{Role: Framer, Index: 0, Variant: Legacy})
	if err != nil {
		panic(err)
	}
	fmt.Printf("power-down=0x%02x\n", fake.Get(regs.SerPowerDown))
	fmt.Printf("resets=%d\n", len(fake.CmdsOf(mbox.CmdSerdesReset)))

	// Output:
	// power-down=0xf0
	// resets=1
}
