// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"fmt"
	"time"

	"github.com/go-lpc/jesd"
	"github.com/go-lpc/jesd/mbox"
	"github.com/go-lpc/jesd/regio"
	"go.uber.org/zap"
)

// Sink receives every calibration status poll.
type Sink interface {
	Record(tag string, st CalStatus) error
}

// Device is a handle to the links of a device.
//
// A Device holds no locks: callers must serialize operations on a given
// device.
type Device struct {
	bus regio.Bus
	ch  *mbox.Channel
	msg *zap.Logger
	cfg config

	err error
}

type config struct {
	msg    *zap.Logger
	ch     *mbox.Channel
	mapper mbox.Mapper
	sink   Sink

	cal struct {
		interval time.Duration
		budgets  map[CalKind]time.Duration
	}
	sleep func(time.Duration)
}

func newConfig() config {
	cfg := config{
		msg:    zap.NewNop(),
		mapper: mbox.DefaultMapper,
		sleep:  time.Sleep,
	}
	cfg.cal.interval = 500 * time.Microsecond
	cfg.cal.budgets = map[CalKind]time.Duration{
		HorizontalSweep: 1 * time.Hour,
		VerticalEye:     10 * time.Minute,
	}
	return cfg
}

// Option configures a Device.
type Option func(*config)

// WithLogger sets the logger of the device.
func WithLogger(msg *zap.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithChannel sets the co-processor command channel of the device.
// By default, commands go through the register mailboxes.
func WithChannel(ch *mbox.Channel) Option {
	return func(cfg *config) {
		cfg.ch = ch
	}
}

// WithMapper sets the lane to co-processor mapping of the device.
func WithMapper(m mbox.Mapper) Option {
	return func(cfg *config) {
		cfg.mapper = m
	}
}

// WithSink sets the sink receiving calibration status polls.
func WithSink(sink Sink) Option {
	return func(cfg *config) {
		cfg.sink = sink
	}
}

// WithCalInterval sets the interval between two calibration status polls.
func WithCalInterval(d time.Duration) Option {
	return func(cfg *config) {
		cfg.cal.interval = d
	}
}

// WithCalBudget sets the time budget of a calibration kind.
func WithCalBudget(kind CalKind, d time.Duration) Option {
	return func(cfg *config) {
		cfg.cal.budgets[kind] = d
	}
}

// WithSleep sets the function used to wait between two status polls.
func WithSleep(sleep func(time.Duration)) Option {
	return func(cfg *config) {
		cfg.sleep = sleep
	}
}

// New returns a handle to the links of the device reached through bus.
func New(bus regio.Bus, opts ...Option) *Device {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ch == nil {
		cfg.ch = mbox.New(
			mbox.NewRegTransport(bus),
			mbox.WithLogger(cfg.msg.Named("mbox")),
		)
	}

	return &Device{
		bus: bus,
		ch:  cfg.ch,
		msg: cfg.msg,
		cfg: cfg,
	}
}

// Channel returns the co-processor command channel of the device.
func (dev *Device) Channel() *mbox.Channel {
	return dev.ch
}

// Version returns the firmware version of the co-processor proc.
func (dev *Device) Version(proc mbox.Processor) (mbox.FirmwareVersion, error) {
	return dev.ch.Version(proc)
}

// transport turns the sticky register error into a transport error
// for the operation op, and clears it.
func (dev *Device) transport(op string) error {
	err := dev.err
	dev.err = nil
	if err == nil {
		return nil
	}
	return &jesd.TransportError{Op: op, Err: err}
}

func (dev *Device) rd(addr uint16, mask uint8) uint8 {
	if dev.err != nil {
		return 0
	}
	v, err := dev.bus.ReadField(addr, mask)
	if err != nil {
		dev.err = fmt.Errorf("link: could not read register 0x%04x: %w", addr, err)
		return 0
	}
	return v
}

func (dev *Device) wr(addr uint16, v, mask uint8) {
	if dev.err != nil {
		return
	}
	err := dev.bus.WriteField(addr, v, mask)
	if err != nil {
		dev.err = fmt.Errorf("link: could not write register 0x%04x: %w", addr, err)
	}
}

func (dev *Device) rdBlock(addr uint16, p []byte) {
	if dev.err != nil {
		return
	}
	err := dev.bus.ReadBlock(addr, p)
	if err != nil {
		dev.err = fmt.Errorf("link: could not read registers 0x%04x-0x%04x: %w", addr, addr+uint16(len(p))-1, err)
	}
}

// send sends a command to the co-processor owning lanes of subsystem sub.
func (dev *Device) send(sub mbox.Subsystem, lanes uint8, link uint8, cmd mbox.Command, req, rsp interface{}) error {
	proc, err := dev.cfg.mapper.Owner(sub, lanes)
	if err != nil {
		return err
	}
	return dev.ch.Send(proc, link, cmd, req, rsp)
}
