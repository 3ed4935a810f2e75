// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mbox_test

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-lpc/jesd"
	"github.com/go-lpc/jesd/internal/fakedev"
	"github.com/go-lpc/jesd/internal/regs"
	"github.com/go-lpc/jesd/mbox"
)

func nosleep(time.Duration) {}

func TestRegTransport(t *testing.T) {
	dev := fakedev.New()
	ch := mbox.New(mbox.NewRegTransport(dev, mbox.WithSleep(nosleep)))

	for _, proc := range []mbox.Processor{mbox.CPU0, mbox.CPU1} {
		v, err := ch.Version(proc)
		if err != nil {
			t.Fatalf("could not read version of %v: %+v", proc, err)
		}
		if v != dev.Version {
			t.Fatalf("invalid version: got=%v, want=%v", v, dev.Version)
		}
	}
	if got, want := dev.Version.String(), "v1.4.2+1234"; got != want {
		t.Fatalf("invalid version string: got=%q, want=%q", got, want)
	}

	dev.ResetLogs()
	err := ch.Send(mbox.CPU1, 2, mbox.CmdLanePower, &mbox.LanePowerReq{LaneMask: 0x30, State: mbox.PowerDown}, nil)
	if err != nil {
		t.Fatalf("could not send lane-power: %+v", err)
	}
	cmds := dev.CmdsOf(mbox.CmdLanePower)
	if len(cmds) != 1 {
		t.Fatalf("invalid number of commands: got=%d, want=1", len(cmds))
	}
	if cmd := cmds[0]; cmd.Proc != mbox.CPU1 || cmd.Link != 2 {
		t.Fatalf("invalid command routing: %+v", cmd)
	}
	if got, want := dev.Get(regs.SerPowerDown), uint8(0x30); got != want {
		t.Fatalf("invalid power-down mask: got=0x%02x, want=0x%02x", got, want)
	}

	// hardware-reported failure.
	err = ch.Send(mbox.CPU0, 0, mbox.Command(0x30), nil, nil)
	var perr *jesd.ParameterError
	if !errors.As(err, &perr) {
		t.Fatalf("invalid error: got=%+v, want a parameter error", err)
	}
	dev.Handlers = map[mbox.Command]fakedev.Handler{
		mbox.CmdSerdesReset: func(dev *fakedev.Device, cmd fakedev.Command) (uint8, []byte) {
			return mbox.StatusUnsupported, nil
		},
	}
	err = ch.Send(mbox.CPU0, 0, mbox.CmdSerdesReset, &mbox.SerdesResetReq{LaneMask: 0xff}, nil)
	var herr *jesd.HardwareError
	if !errors.As(err, &herr) {
		t.Fatalf("invalid error: got=%+v, want a hardware error", err)
	}
	if herr.Code != mbox.StatusUnsupported {
		t.Fatalf("invalid status: got=0x%02x, want=0x%02x", herr.Code, mbox.StatusUnsupported)
	}
}

func TestRegTransportErrors(t *testing.T) {
	errBus := errors.New("bus error")

	for _, tc := range []struct {
		name  string
		setup func(dev *fakedev.Device)
		tmo   bool
		want  error
	}{
		{
			name: "stuck",
			setup: func(dev *fakedev.Device) {
				dev.Stuck = true
			},
			tmo: true,
		},
		{
			name: "doorbell-set",
			setup: func(dev *fakedev.Device) {
				dev.Set(regs.Mbox(0)+regs.MboxCtrl, regs.MboxDoorbell)
			},
		},
		{
			name: "xfer-error",
			setup: func(dev *fakedev.Device) {
				dev.Handlers = map[mbox.Command]fakedev.Handler{
					mbox.CmdVersion: func(dev *fakedev.Device, cmd fakedev.Command) (uint8, []byte) {
						dev.Regs[regs.Mbox(0)+regs.MboxCtrl] |= regs.MboxXferErr
						return mbox.StatusOK, nil
					},
				}
			},
		},
		{
			name: "bus-error",
			setup: func(dev *fakedev.Device) {
				dev.Fail = func(addr uint16, write bool) error {
					if write && addr == regs.Mbox(0)+regs.MboxCmd {
						return errBus
					}
					return nil
				}
			},
			want: errBus,
		},
		{
			name: "short-read",
			setup: func(dev *fakedev.Device) {
				dev.Fail = func(addr uint16, write bool) error {
					if !write && addr == regs.Mbox(0)+regs.MboxPayload {
						return io.ErrUnexpectedEOF
					}
					return nil
				}
			},
			want: io.ErrUnexpectedEOF,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dev := fakedev.New()
			tc.setup(dev)

			sleeps := 0
			tr := mbox.NewRegTransport(dev,
				mbox.WithPollInterval(100*time.Microsecond),
				mbox.WithTimeout(10*time.Millisecond),
				mbox.WithSleep(func(time.Duration) { sleeps++ }),
			)
			ch := mbox.New(tr)

			_, err := ch.Version(mbox.CPU0)
			if !jesd.IsTransport(err) {
				t.Fatalf("invalid error: got=%+v, want a transport error", err)
			}
			if got, want := jesd.IsTimeout(err), tc.tmo; got != want {
				t.Fatalf("invalid timeout flag: got=%v, want=%v (err=%+v)", got, want, err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.want)
			}
			if tc.tmo {
				var terr *jesd.TimeoutError
				_ = errors.As(err, &terr)
				if got, want := terr.Polls, 101; got != want {
					t.Fatalf("invalid number of polls: got=%d, want=%d", got, want)
				}
				if got, want := sleeps, 100; got != want {
					t.Fatalf("invalid number of sleeps: got=%d, want=%d", got, want)
				}
			}
		})
	}
}

func TestRegTransportXferRecovery(t *testing.T) {
	dev := fakedev.New()
	dev.Handlers = map[mbox.Command]fakedev.Handler{
		mbox.CmdVersion: func(dev *fakedev.Device, cmd fakedev.Command) (uint8, []byte) {
			// fail once, then fall back to the default behaviour.
			delete(dev.Handlers, mbox.CmdVersion)
			dev.Regs[regs.Mbox(0)+regs.MboxCtrl] |= regs.MboxXferErr
			return mbox.StatusOK, nil
		},
	}
	ch := mbox.New(mbox.NewRegTransport(dev, mbox.WithSleep(nosleep)))

	_, err := ch.Version(mbox.CPU0)
	if !jesd.IsTransport(err) {
		t.Fatalf("invalid error: got=%+v, want a transport error", err)
	}

	for i := 0; i < 3; i++ {
		v, err := ch.Version(mbox.CPU0)
		if err != nil {
			t.Fatalf("could not read version after transfer error (iter=%d): %+v", i, err)
		}
		if v != dev.Version {
			t.Fatalf("invalid version: got=%v, want=%v", v, dev.Version)
		}
	}
	if got := dev.Get(regs.Mbox(0)+regs.MboxCtrl) & regs.MboxXferErr; got != 0 {
		t.Fatalf("transfer error still set: ctrl=0x%02x", dev.Get(regs.Mbox(0)+regs.MboxCtrl))
	}
}
