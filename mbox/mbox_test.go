// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mbox

import (
	"bytes"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/go-lpc/jesd"
)

type mockTransport struct {
	calls int
	req   []byte
	rsp   []byte
	err   error
}

func (tr *mockTransport) Exchange(proc Processor, link uint8, cmd Command, req, rsp []byte) (int, error) {
	tr.calls++
	tr.req = append([]byte(nil), req...)
	if tr.err != nil {
		return 0, tr.err
	}
	n := copy(rsp, tr.rsp)
	return n, nil
}

func TestSendParams(t *testing.T) {
	for _, tc := range []struct {
		name string
		cmd  Command
		req  interface{}
		rsp  interface{}
	}{
		{
			name: "unknown-cmd",
			cmd:  Command(0x7f),
		},
		{
			name: "version-with-req",
			cmd:  CmdVersion,
			req:  &LanePowerReq{},
			rsp:  &FirmwareVersion{},
		},
		{
			name: "version-no-rsp",
			cmd:  CmdVersion,
		},
		{
			name: "reset-wrong-req",
			cmd:  CmdSerdesReset,
			req:  &LanePowerReq{},
		},
		{
			name: "status-wrong-rsp",
			cmd:  CmdCalStatus,
			req:  &CalStatusReq{},
			rsp:  &FirmwareVersion{},
		},
		{
			name: "not-fixed-size",
			cmd:  CmdCalStatus,
			req:  &CalStatusReq{},
			rsp:  &[]byte{},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tr := &mockTransport{rsp: make([]byte, 64)}
			ch := New(tr)
			err := ch.Send(CPU0, 0, tc.cmd, tc.req, tc.rsp)
			var perr *jesd.ParameterError
			if !errors.As(err, &perr) {
				t.Fatalf("invalid error: got=%+v, want a parameter error", err)
			}
			if tr.calls != 0 {
				t.Fatalf("transport accessed on invalid parameters")
			}
		})
	}
}

func TestSendByteOrder(t *testing.T) {
	tr := &mockTransport{
		rsp: []byte{
			StatusOK,
			1, 3, 1, 0, // done, lane, kind, pad
			0xfe, 0xff, // left: -2
			0x10, 0x00, // right: 16
			0x2c, 0x01, // upper: 300
			0xd4, 0xfe, // lower: -300
			0x78, 0x56, 0x34, 0x12, // iter
		},
	}
	ch := New(tr)

	var rsp CalStatusRsp
	err := ch.Send(CPU1, 1, CmdCalStatus, &CalStatusReq{Lane: 3, Kind: 1}, &rsp)
	if err != nil {
		t.Fatalf("could not send command: %+v", err)
	}
	if got, want := tr.req, []byte{3, 1}; !bytes.Equal(got, want) {
		t.Fatalf("invalid request:\ngot= %v\nwant=%v", got, want)
	}
	want := CalStatusRsp{
		Done: 1, Lane: 3, Kind: 1,
		Left: -2, Right: 16, Upper: 300, Lower: -300,
		Iter: 0x12345678,
	}
	if rsp != want {
		t.Fatalf("invalid response:\ngot= %+v\nwant=%+v", rsp, want)
	}

	tr.rsp = []byte{StatusOK}
	err = ch.Send(CPU0, 0, CmdCalStart, &CalStartReq{Lane: 2, Kind: 1, Pattern: 3, Dwell: 0x1234}, nil)
	if err != nil {
		t.Fatalf("could not send command: %+v", err)
	}
	if got, want := tr.req, []byte{2, 1, 3, 0, 0x34, 0x12}; !bytes.Equal(got, want) {
		t.Fatalf("invalid request:\ngot= %v\nwant=%v", got, want)
	}
}

func TestSendErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		tr   *mockTransport
		code uint8
		tmo  bool
	}{
		{
			name: "transport",
			tr:   &mockTransport{err: io.ErrUnexpectedEOF},
		},
		{
			name: "empty",
			tr:   &mockTransport{},
		},
		{
			name: "short",
			tr:   &mockTransport{rsp: []byte{StatusOK, 1, 2}},
		},
		{
			name: "busy",
			tr:   &mockTransport{rsp: []byte{StatusBusy}},
			code: StatusBusy,
		},
		{
			name: "unknown-status",
			tr:   &mockTransport{rsp: []byte{0x42}},
			code: 0x42,
		},
		{
			name: "timeout",
			tr:   &mockTransport{err: &jesd.TimeoutError{Op: "wait"}},
			tmo:  true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ch := New(tc.tr)
			var rsp FirmwareVersion
			err := ch.Send(CPU0, 0, CmdVersion, nil, &rsp)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if tc.tr.calls != 1 {
				t.Fatalf("invalid number of exchanges: got=%d, want=1", tc.tr.calls)
			}

			if tc.code != 0 {
				var herr *jesd.HardwareError
				if !errors.As(err, &herr) {
					t.Fatalf("invalid error: got=%+v, want a hardware error", err)
				}
				if herr.Code != tc.code {
					t.Fatalf("invalid status: got=0x%02x, want=0x%02x", herr.Code, tc.code)
				}
				if herr.Name != StatusName(tc.code) {
					t.Fatalf("invalid status name: got=%q, want=%q", herr.Name, StatusName(tc.code))
				}
				if jesd.IsTransport(err) {
					t.Fatalf("hardware error reported as transport error")
				}
				return
			}

			if !jesd.IsTransport(err) {
				t.Fatalf("invalid error: got=%+v, want a transport error", err)
			}
			if got, want := jesd.IsTimeout(err), tc.tmo; got != want {
				t.Fatalf("invalid timeout flag: got=%v, want=%v", got, want)
			}
		})
	}
}

type blockingTransport struct {
	enter    chan struct{}
	release  chan struct{}
	inflight int32
	overlap  int32
}

func (tr *blockingTransport) Exchange(proc Processor, link uint8, cmd Command, req, rsp []byte) (int, error) {
	if atomic.AddInt32(&tr.inflight, 1) > 1 {
		atomic.StoreInt32(&tr.overlap, 1)
	}
	defer atomic.AddInt32(&tr.inflight, -1)

	tr.enter <- struct{}{}
	<-tr.release
	rsp[0] = StatusOK
	return 1, nil
}

func TestSingleOutstanding(t *testing.T) {
	tr := &blockingTransport{
		enter:   make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	ch := New(tr)

	errc := make(chan error, 1)
	go func() {
		errc <- ch.Send(CPU0, 0, CmdSerdesReset, &SerdesResetReq{LaneMask: 0x0f}, nil)
	}()
	<-tr.enter

	err := ch.Send(CPU0, 0, CmdLanePower, &LanePowerReq{LaneMask: 0x01}, nil)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, ErrBusy)
	}

	close(tr.release)
	err = <-errc
	if err != nil {
		t.Fatalf("could not send first command: %+v", err)
	}

	err = ch.Send(CPU0, 0, CmdLanePower, &LanePowerReq{LaneMask: 0x01}, nil)
	if err != nil {
		t.Fatalf("could not send command after completion: %+v", err)
	}

	if atomic.LoadInt32(&tr.overlap) != 0 {
		t.Fatalf("overlapping exchanges on transport")
	}
}

func TestLaneSplit(t *testing.T) {
	for _, tc := range []struct {
		split LaneSplit
		sub   Subsystem
		lanes uint8
		want  Processor
		err   bool
	}{
		{split: 4, sub: Serializer, lanes: 0x01, want: CPU0},
		{split: 4, sub: Serializer, lanes: 0x0f, want: CPU0},
		{split: 4, sub: Deserializer, lanes: 0x10, want: CPU1},
		{split: 4, sub: Deserializer, lanes: 0xf0, want: CPU1},
		{split: 4, sub: Serializer, lanes: 0x18, want: CPU0}, // straddling
		{split: 4, sub: Serializer, lanes: 0x00, err: true},
		{split: 4, sub: Subsystem(9), lanes: 0x01, err: true},
		{split: 0, sub: Serializer, lanes: 0x01, want: CPU1},
		{split: 8, sub: Serializer, lanes: 0x80, want: CPU0},
	} {
		got, err := tc.split.Owner(tc.sub, tc.lanes)
		switch {
		case tc.err:
			var perr *jesd.ParameterError
			if !errors.As(err, &perr) {
				t.Fatalf("split=%d lanes=0x%02x: invalid error: %+v", tc.split, tc.lanes, err)
			}
			continue
		case err != nil:
			t.Fatalf("split=%d lanes=0x%02x: could not resolve owner: %+v", tc.split, tc.lanes, err)
		}
		if got != tc.want {
			t.Fatalf("split=%d lanes=0x%02x: invalid owner: got=%v, want=%v", tc.split, tc.lanes, got, tc.want)
		}
	}
}

func TestStatusName(t *testing.T) {
	for _, tc := range []struct {
		code uint8
		want string
	}{
		{StatusOK, "ok"},
		{StatusBusy, "resource busy"},
		{StatusCalFailed, "calibration failed"},
		{0x42, "unknown status 0x42"},
	} {
		if got := StatusName(tc.code); got != tc.want {
			t.Fatalf("invalid name for 0x%02x: got=%q, want=%q", tc.code, got, tc.want)
		}
	}
	if got, want := CmdCalStart.String(), "cal-start"; got != want {
		t.Fatalf("invalid command name: got=%q, want=%q", got, want)
	}
	if got, want := Command(0x7f).String(), "cmd-0x7f"; got != want {
		t.Fatalf("invalid command name: got=%q, want=%q", got, want)
	}
}
