// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the configuration of the jesd commands from a YAML
// file, JESD_* environment variables and built-in defaults.
package config // import "github.com/go-lpc/jesd/internal/config"

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-lpc/jesd/internal/logger"
	"github.com/go-lpc/jesd/link"
	"github.com/go-lpc/jesd/mbox"
	"github.com/go-lpc/jesd/regio"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the configuration of a jesd command.
type Config struct {
	Log     logger.Config `mapstructure:"log"`
	Device  Device        `mapstructure:"device"`
	Mailbox Mailbox       `mapstructure:"mailbox"`
	Cal     Cal           `mapstructure:"cal"`
	DB      DB            `mapstructure:"db"`
	Mail    Mail          `mapstructure:"mail"`

	// Links lists the links driven by the run control.
	Links []Link `mapstructure:"links"`

	// Devices lists the devices checked by jesd-check.
	Devices []Device `mapstructure:"devices"`
}

// Link identifies a link of the device.
type Link struct {
	Role    string `mapstructure:"role"` // framer or deframer
	Index   int    `mapstructure:"index"`
	Variant string `mapstructure:"variant"` // legacy (default) or extended
}

// Link returns the link described by the configuration.
func (l Link) Link() (link.Link, error) {
	var v link.Link
	switch l.Role {
	case "framer":
		v.Role = link.Framer
	case "deframer":
		v.Role = link.Deframer
	default:
		return v, fmt.Errorf("config: invalid link role %q", l.Role)
	}
	switch l.Variant {
	case "", "legacy":
		v.Variant = link.Legacy
	case "extended":
		v.Variant = link.Extended
	default:
		return v, fmt.Errorf("config: invalid link variant %q", l.Variant)
	}
	v.Index = l.Index
	return v, nil
}

// Device describes how to reach the registers of a device.
type Device struct {
	Name string `mapstructure:"name"`
	Bus  string `mapstructure:"bus"` // mem, smbus or serial

	// mem
	Path string `mapstructure:"path"`
	Base int64  `mapstructure:"base"`
	Span int    `mapstructure:"span"`

	// smbus
	SMBus int   `mapstructure:"smbus"`
	Addr  uint8 `mapstructure:"addr"`

	// serial
	Port    string        `mapstructure:"port"`
	Baud    int           `mapstructure:"baud"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Mailbox configures the polling of the co-processor doorbell.
type Mailbox struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Cal configures the polling of SerDes calibrations.
type Cal struct {
	Interval   time.Duration `mapstructure:"interval"`
	Horizontal time.Duration `mapstructure:"horizontal"` // budget of horizontal sweeps
	Vertical   time.Duration `mapstructure:"vertical"`   // budget of vertical eye scans
	Log        string        `mapstructure:"log"`        // diagnostic log file
}

// DB configures the connection to the condition database.
// An empty name disables the database.
type DB struct {
	Name     string `mapstructure:"name"`
	Addr     string `mapstructure:"addr"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// Mail configures the alerts sent on link mismatches.
// An empty host disables alerts.
type Mail struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	User     string   `mapstructure:"user"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// Load loads the configuration from the YAML file fname, overridden by
// JESD_* environment variables (e.g. JESD_DEVICE_BUS=smbus).
// An empty fname only uses the environment and the defaults.
func Load(fname string) (Config, error) {
	var cfg Config

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("JESD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if fname != "" {
		v.SetConfigFile(fname)
		err := v.ReadInConfig()
		if err != nil {
			return cfg, fmt.Errorf("config: could not read %q: %w", fname, err)
		}
	}

	err := v.Unmarshal(&cfg)
	if err != nil {
		return cfg, fmt.Errorf("config: could not decode configuration: %w", err)
	}

	err = cfg.validate()
	if err != nil {
		return cfg, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("device.name", "jesd")
	v.SetDefault("device.bus", "mem")
	v.SetDefault("device.path", "/dev/mem")
	v.SetDefault("device.base", 0xff200000)
	v.SetDefault("device.span", 0x10000)
	v.SetDefault("device.smbus", 1)
	v.SetDefault("device.addr", 0x48)
	v.SetDefault("device.port", "/dev/ttyUSB0")
	v.SetDefault("device.baud", 115200)
	v.SetDefault("device.timeout", "1s")

	v.SetDefault("mailbox.interval", "100us")
	v.SetDefault("mailbox.timeout", "100ms")

	v.SetDefault("cal.interval", "500us")
	v.SetDefault("cal.horizontal", "1h")
	v.SetDefault("cal.vertical", "10m")
	v.SetDefault("cal.log", "jesd-cal.log")

	v.SetDefault("db.name", "")
	v.SetDefault("db.addr", "localhost:3306")
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")

	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.user", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "jesd@localhost")
	v.SetDefault("mail.to", []string{})
}

func (cfg *Config) validate() error {
	for i, dev := range cfg.Devices {
		cfg.Devices[i] = dev.inherit(cfg.Device)
	}

	devs := append([]Device{cfg.Device}, cfg.Devices...)
	for _, dev := range devs {
		switch dev.Bus {
		case "mem", "smbus", "serial":
		default:
			return fmt.Errorf("config: device %q: invalid bus %q (want mem, smbus or serial)", dev.Name, dev.Bus)
		}
	}

	for _, l := range cfg.Links {
		_, err := l.Link()
		if err != nil {
			return err
		}
	}

	if cfg.Mailbox.Interval <= 0 || cfg.Mailbox.Timeout < cfg.Mailbox.Interval {
		return fmt.Errorf(
			"config: invalid mailbox polling (interval=%v, timeout=%v)",
			cfg.Mailbox.Interval, cfg.Mailbox.Timeout,
		)
	}

	if cfg.Cal.Interval <= 0 {
		return fmt.Errorf("config: invalid calibration poll interval %v", cfg.Cal.Interval)
	}

	if cfg.Mail.Host != "" && len(cfg.Mail.To) == 0 {
		return fmt.Errorf("config: mail alerts need at least one recipient")
	}

	return nil
}

// inherit fills the unset fields of dev with the ones of def.
func (dev Device) inherit(def Device) Device {
	if dev.Bus == "" {
		dev.Bus = def.Bus
	}
	if dev.Path == "" {
		dev.Path = def.Path
	}
	if dev.Base == 0 {
		dev.Base = def.Base
	}
	if dev.Span == 0 {
		dev.Span = def.Span
	}
	if dev.SMBus == 0 {
		dev.SMBus = def.SMBus
	}
	if dev.Addr == 0 {
		dev.Addr = def.Addr
	}
	if dev.Port == "" {
		dev.Port = def.Port
	}
	if dev.Baud == 0 {
		dev.Baud = def.Baud
	}
	if dev.Timeout == 0 {
		dev.Timeout = def.Timeout
	}
	return dev
}

// Open opens the register bus of the device.
func (dev Device) Open() (regio.Bus, io.Closer, error) {
	switch dev.Bus {
	case "mem":
		bus, err := regio.OpenDevMem(dev.Path, dev.Base, dev.Span)
		if err != nil {
			return nil, nil, fmt.Errorf("config: could not open device %q: %w", dev.Name, err)
		}
		return bus, bus, nil
	case "smbus":
		bus, err := regio.OpenSMBus(dev.SMBus, dev.Addr)
		if err != nil {
			return nil, nil, fmt.Errorf("config: could not open device %q: %w", dev.Name, err)
		}
		return bus, bus, nil
	case "serial":
		bus, err := regio.OpenSerial(
			dev.Port,
			regio.WithBaudRate(dev.Baud),
			regio.WithReadTimeout(dev.Timeout),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("config: could not open device %q: %w", dev.Name, err)
		}
		return bus, bus, nil
	default:
		return nil, nil, fmt.Errorf("config: device %q: invalid bus %q", dev.Name, dev.Bus)
	}
}

// LinkOptions returns the options of a link.Device driving the registers
// of bus with the configured mailbox and calibration polling.
func (cfg Config) LinkOptions(bus regio.Bus, msg *zap.Logger) []link.Option {
	if msg == nil {
		msg = zap.NewNop()
	}
	var (
		tr = mbox.NewRegTransport(
			bus,
			mbox.WithPollInterval(cfg.Mailbox.Interval),
			mbox.WithTimeout(cfg.Mailbox.Timeout),
		)
		ch = mbox.New(tr, mbox.WithLogger(msg.Named("mbox")))
	)
	opts := []link.Option{
		link.WithLogger(msg),
		link.WithChannel(ch),
	}
	if cfg.Cal.Interval > 0 {
		opts = append(opts, link.WithCalInterval(cfg.Cal.Interval))
	}
	if cfg.Cal.Horizontal > 0 {
		opts = append(opts, link.WithCalBudget(link.HorizontalSweep, cfg.Cal.Horizontal))
	}
	if cfg.Cal.Vertical > 0 {
		opts = append(opts, link.WithCalBudget(link.VerticalEye, cfg.Cal.Vertical))
	}
	return opts
}
