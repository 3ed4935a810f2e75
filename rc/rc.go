// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rc exposes the JESD204 links of a device to a TDAQ run control.
package rc // import "github.com/go-lpc/jesd/rc"

import (
	"context"
	"errors"
	"io"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/jesd"
	"github.com/go-lpc/jesd/conddb"
	"github.com/go-lpc/jesd/internal/config"
	"github.com/go-lpc/jesd/internal/regs"
	"github.com/go-lpc/jesd/link"
	"github.com/go-lpc/jesd/mbox"
	"github.com/go-lpc/jesd/regio"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

// Store is the condition database of the links.
type Store interface {
	LinkConfig(ctx context.Context, dev string, role link.Role, idx int) (conddb.LinkConfig, error)
	SaveReport(ctx context.Context, dev string, rep link.Report) error
	SaveErrorCounts(ctx context.Context, dev string, l link.Link, lane int, cnt [link.NumErrClasses]uint8) error
}

// Opener opens the register bus of a device.
type Opener func(dev config.Device) (regio.Bus, io.Closer, error)

// Server handles the run control commands of a device.
type Server struct {
	cfg   config.Config
	store Store
	open  Opener
	msg   *zap.Logger

	links []linkState
	bus   io.Closer
	dev   *link.Device
}

type linkState struct {
	link.Link
	cfg   *conddb.LinkConfig // configuration to program, if any
	armed uint8              // lanes with running error counters
}

// Option configures a Server.
type Option func(*Server)

// WithStore sets the condition database used to retrieve link
// configurations and record link reports.
func WithStore(db Store) Option {
	return func(srv *Server) {
		srv.store = db
	}
}

// WithOpener sets how the register bus of the device is opened.
func WithOpener(open Opener) Option {
	return func(srv *Server) {
		srv.open = open
	}
}

// WithLogger sets the logger handed to the device handle.
func WithLogger(msg *zap.Logger) Option {
	return func(srv *Server) {
		srv.msg = msg
	}
}

// New creates a new run control server for the device described by cfg.
func New(cfg config.Config, opts ...Option) *Server {
	srv := &Server{
		cfg:  cfg,
		open: config.Device.Open,
		msg:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Device returns the handle to the device, once initialized.
func (srv *Server) Device() *link.Device {
	return srv.dev
}

// Register installs the run control handlers of srv on the TDAQ server.
func (srv *Server) Register(s *tdaq.Server) {
	s.CmdHandle("/config", srv.OnConfig)
	s.CmdHandle("/init", srv.OnInit)
	s.CmdHandle("/reset", srv.OnReset)
	s.CmdHandle("/start", srv.OnStart)
	s.CmdHandle("/stop", srv.OnStop)
	s.CmdHandle("/quit", srv.OnQuit)
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	links := make([]linkState, 0, len(srv.cfg.Links))
	for _, v := range srv.cfg.Links {
		l, err := v.Link()
		if err != nil {
			ctx.Msg.Errorf("could not parse link configuration: %+v", err)
			return xerrors.Errorf("rc: could not parse link configuration: %w", err)
		}
		st := linkState{Link: l}
		if srv.store != nil && l.Role == link.Deframer {
			cfg, err := srv.store.LinkConfig(ctx.Ctx, srv.cfg.Device.Name, l.Role, l.Index)
			if err != nil {
				ctx.Msg.Errorf("could not retrieve configuration of %v: %+v", l, err)
				return xerrors.Errorf("rc: could not retrieve configuration of %v: %w", l, err)
			}
			st.Variant = cfg.Link.Variant
			st.cfg = &cfg
		}
		if st.Role == link.Deframer && st.Variant == link.Extended {
			// ILAS verification only exists for the legacy variant.
			err := &jesd.UnsupportedError{Op: "rc: configure " + st.Link.String(), What: "extended link variant"}
			ctx.Msg.Errorf("could not configure %v: %+v", st.Link, err)
			return err
		}
		ctx.Msg.Infof("configured link %v", st.Link)
		links = append(links, st)
	}
	srv.links = links

	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")

	err := srv.close()
	if err != nil {
		ctx.Msg.Errorf("could not close previous device: %+v", err)
	}

	bus, closer, err := srv.open(srv.cfg.Device)
	if err != nil {
		ctx.Msg.Errorf("could not open device %q: %+v", srv.cfg.Device.Name, err)
		return xerrors.Errorf("rc: could not open device %q: %w", srv.cfg.Device.Name, err)
	}
	srv.bus = closer
	srv.dev = link.New(bus, srv.cfg.LinkOptions(bus, srv.msg)...)

	for _, proc := range []mbox.Processor{mbox.CPU0, mbox.CPU1} {
		v, err := srv.dev.Version(proc)
		if err != nil {
			ctx.Msg.Errorf("could not retrieve firmware version of %v: %+v", proc, err)
			return xerrors.Errorf("rc: could not retrieve firmware version of %v: %w", proc, err)
		}
		ctx.Msg.Infof("firmware %v: %v", proc, v)
	}

	for _, st := range srv.links {
		switch st.Role {
		case link.Framer:
			err = srv.dev.ResetLanes(st.Link)
			if err != nil {
				ctx.Msg.Errorf("could not reset lanes of %v: %+v", st.Link, err)
				return xerrors.Errorf("rc: could not reset lanes of %v: %w", st.Link, err)
			}
		case link.Deframer:
			if st.cfg == nil {
				continue
			}
			err = srv.dev.ProgramConfig(st.Link, st.cfg.Config, st.cfg.LIDs)
			if err != nil {
				ctx.Msg.Errorf("could not program %v: %+v", st.Link, err)
				return xerrors.Errorf("rc: could not program %v: %w", st.Link, err)
			}
		}
		ctx.Msg.Infof("link %v: OK", st.Link)
	}

	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	err := srv.close()
	if err != nil {
		ctx.Msg.Errorf("could not close device: %+v", err)
		return xerrors.Errorf("rc: could not close device: %w", err)
	}
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	if srv.dev == nil {
		return xerrors.Errorf("rc: device not initialized")
	}

	for i := range srv.links {
		st := &srv.links[i]
		if st.Role != link.Deframer {
			continue
		}

		rep, err := srv.dev.VerifyILAS(st.Link)
		switch {
		case errors.Is(err, jesd.ErrLinkDisabled):
			ctx.Msg.Infof("link %v disabled", st.Link)
			continue
		case err != nil:
			ctx.Msg.Errorf("could not verify %v: %+v", st.Link, err)
			return xerrors.Errorf("rc: could not verify %v: %w", st.Link, err)
		}

		if srv.store != nil {
			err = srv.store.SaveReport(ctx.Ctx, srv.cfg.Device.Name, rep)
			if err != nil {
				ctx.Msg.Errorf("could not store report of %v: %+v", st.Link, err)
				return xerrors.Errorf("rc: could not store report of %v: %w", st.Link, err)
			}
		}

		if !rep.OK() {
			for lane := 0; lane < regs.NumLanes; lane++ {
				if rep.Lanes&(1<<lane) == 0 {
					continue
				}
				ctx.Msg.Errorf("link %v lane %d: ILAS mismatch %v", st.Link, lane, rep.Lane[lane].Mismatch)
			}
			return xerrors.Errorf("rc: ILAS mismatch on %v (lanes=0x%02x)", st.Link, rep.Lanes)
		}

		for lane := 0; lane < regs.NumLanes; lane++ {
			if rep.Enabled&(1<<lane) == 0 {
				continue
			}
			err = srv.dev.ConfigureErrorCounters(st.Link, lane, link.ErrorCounterConfig{
				Enable: link.ErrAll,
				Reset:  link.ErrAll,
			})
			if err != nil {
				ctx.Msg.Errorf("could not arm error counters of %v lane %d: %+v", st.Link, lane, err)
				return xerrors.Errorf("rc: could not arm error counters of %v lane %d: %w", st.Link, lane, err)
			}
			st.armed |= 1 << lane
		}
		ctx.Msg.Infof("link %v: ILAS OK (lanes=0x%02x)", st.Link, rep.Enabled)
	}

	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	if srv.dev == nil {
		return xerrors.Errorf("rc: device not initialized")
	}

	for i := range srv.links {
		st := &srv.links[i]
		for lane := 0; lane < regs.NumLanes; lane++ {
			if st.armed&(1<<lane) == 0 {
				continue
			}
			cnt, err := srv.dev.ErrorCounts(st.Link, lane)
			if err != nil {
				ctx.Msg.Errorf("could not read error counters of %v lane %d: %+v", st.Link, lane, err)
				return xerrors.Errorf("rc: could not read error counters of %v lane %d: %w", st.Link, lane, err)
			}
			ctx.Msg.Infof(
				"link %v lane %d: disparity=%d not-in-table=%d unexpected-k=%d",
				st.Link, lane, cnt[0], cnt[1], cnt[2],
			)

			if srv.store != nil {
				err = srv.store.SaveErrorCounts(ctx.Ctx, srv.cfg.Device.Name, st.Link, lane, cnt)
				if err != nil {
					ctx.Msg.Errorf("could not store error counters of %v lane %d: %+v", st.Link, lane, err)
					return xerrors.Errorf("rc: could not store error counters of %v lane %d: %w", st.Link, lane, err)
				}
			}

			err = srv.dev.ConfigureErrorCounters(st.Link, lane, link.ErrorCounterConfig{})
			if err != nil {
				ctx.Msg.Errorf("could not disable error counters of %v lane %d: %+v", st.Link, lane, err)
				return xerrors.Errorf("rc: could not disable error counters of %v lane %d: %w", st.Link, lane, err)
			}
			st.armed &^= 1 << lane
		}
	}

	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	err := srv.close()
	if err != nil {
		ctx.Msg.Errorf("could not close device: %+v", err)
		return xerrors.Errorf("rc: could not close device: %w", err)
	}
	return nil
}

func (srv *Server) close() error {
	for i := range srv.links {
		srv.links[i].armed = 0
	}
	srv.dev = nil
	if srv.bus == nil {
		return nil
	}
	err := srv.bus.Close()
	srv.bus = nil
	return err
}
