// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"fmt"
	"time"

	"github.com/go-lpc/jesd"
	"github.com/go-lpc/jesd/internal/poll"
	"github.com/go-lpc/jesd/mbox"
	"go.uber.org/zap"
)

// CalKind is a SerDes calibration procedure.
type CalKind uint8

const (
	HorizontalSweep CalKind = 1 // sweep of the sampling phase
	VerticalEye     CalKind = 2 // sweep of the sampling threshold
)

func (k CalKind) String() string {
	switch k {
	case HorizontalSweep:
		return "horizontal-sweep"
	case VerticalEye:
		return "vertical-eye"
	}
	return fmt.Sprintf("cal-kind-%d", uint8(k))
}

// ParseCalKind parses the name of a calibration kind.
func ParseCalKind(name string) (CalKind, error) {
	switch name {
	case "horizontal-sweep", "hsweep", "h":
		return HorizontalSweep, nil
	case "vertical-eye", "veye", "v":
		return VerticalEye, nil
	}
	return 0, fmt.Errorf("link: unknown calibration kind %q", name)
}

const (
	maxPattern = 3
	minDwell   = 1 * time.Millisecond
	maxDwell   = 1000 * time.Millisecond
)

// CalParams are the parameters of a calibration.
type CalParams struct {
	Kind    CalKind
	Pattern uint8         // PRBS pattern, 0..3
	Dwell   time.Duration // dwell time per sweep point, 1ms..1s
	Tag     string        // free form tag, reported to the diagnostic sink
}

// CalStatus is the status of a calibration.
type CalStatus struct {
	Done  bool
	Lane  int
	Kind  CalKind
	Left  int16 // left boundary of the horizontal sweep
	Right int16 // right boundary of the horizontal sweep
	Upper int16 // upper boundary of the vertical eye, in mV
	Lower int16 // lower boundary of the vertical eye, in mV
	Iter  uint32
	Polls int
}

// Width returns the width of the horizontal eye opening.
func (st CalStatus) Width() int { return int(st.Right) - int(st.Left) }

// Height returns the height of the vertical eye opening, in mV.
func (st CalStatus) Height() int { return int(st.Upper) - int(st.Lower) }

func (p CalParams) check(op string) error {
	switch p.Kind {
	case HorizontalSweep, VerticalEye:
	default:
		return &jesd.ParameterError{Op: op, Param: "kind", Value: p.Kind, Want: "horizontal-sweep or vertical-eye"}
	}
	if p.Pattern > maxPattern {
		return &jesd.ParameterError{Op: op, Param: "pattern", Value: p.Pattern, Want: fmt.Sprintf("0..%d", maxPattern)}
	}
	if p.Dwell < minDwell || p.Dwell > maxDwell || p.Dwell%time.Millisecond != 0 {
		return &jesd.ParameterError{
			Op: op, Param: "dwell", Value: p.Dwell,
			Want: fmt.Sprintf("%v..%v, in whole milliseconds", minDwell, maxDwell),
		}
	}
	return nil
}

// Calibrate runs a calibration of the deserializer lane and polls its
// status until completion or until the time budget of the calibration
// kind is exhausted.
//
// A failure reported by the device at any poll is returned immediately
// as a *jesd.HardwareError. Budget exhaustion returns a *jesd.TimeoutError
// and leaves the device as is.
func (dev *Device) Calibrate(lane int, p CalParams) (CalStatus, error) {
	const op = "link: calibrate"
	var st CalStatus

	err := checkLane(op, lane)
	if err != nil {
		return st, err
	}
	err = p.check(op)
	if err != nil {
		return st, err
	}

	bit := uint8(1) << lane
	proc, err := dev.cfg.mapper.Owner(mbox.Deserializer, bit)
	if err != nil {
		return st, err
	}

	msg := dev.msg.With(
		zap.Int("lane", lane),
		zap.Stringer("kind", p.Kind),
		zap.Stringer("proc", proc),
	)
	msg.Info("start calibration",
		zap.Uint8("pattern", p.Pattern),
		zap.Duration("dwell", p.Dwell),
	)

	err = dev.ch.Send(proc, 0, mbox.CmdCalStart, &mbox.CalStartReq{
		Lane:    uint8(lane),
		Kind:    uint8(p.Kind),
		Pattern: p.Pattern,
		Dwell:   uint16(p.Dwell / time.Millisecond),
	}, nil)
	if err != nil {
		return st, fmt.Errorf("link: could not start calibration of lane %d: %w", lane, err)
	}

	loop := poll.Loop{
		Op:       op,
		Interval: dev.cfg.cal.interval,
		Budget:   dev.cfg.cal.budgets[p.Kind],
		Sleep:    dev.cfg.sleep,
	}

	var (
		req = mbox.CalStatusReq{Lane: uint8(lane), Kind: uint8(p.Kind)}
		rsp mbox.CalStatusRsp
	)
	_, err = loop.Run(func(i int) (bool, error) {
		rsp = mbox.CalStatusRsp{}
		err := dev.ch.Send(proc, 0, mbox.CmdCalStatus, &req, &rsp)
		if err != nil {
			return false, err
		}
		st = CalStatus{
			Done:  rsp.Done != 0,
			Lane:  lane,
			Kind:  p.Kind,
			Left:  rsp.Left,
			Right: rsp.Right,
			Upper: rsp.Upper,
			Lower: rsp.Lower,
			Iter:  rsp.Iter,
			Polls: i + 1,
		}
		dev.record(msg, p.Tag, st)
		return st.Done, nil
	})
	if err != nil {
		msg.Error("calibration failed", zap.Int("polls", st.Polls), zap.Error(err))
		return st, err
	}

	msg.Info("calibration done",
		zap.Int("polls", st.Polls),
		zap.Int("width", st.Width()),
		zap.Int("height", st.Height()),
	)
	return st, nil
}

func (dev *Device) record(msg *zap.Logger, tag string, st CalStatus) {
	if dev.cfg.sink == nil {
		return
	}
	err := dev.cfg.sink.Record(tag, st)
	if err != nil {
		msg.Warn("could not record calibration status",
			zap.Int("poll", st.Polls),
			zap.Error(err),
		)
	}
}
