// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command jesd-check verifies the ILAS configuration of the deframer links
// of all the configured devices, stores the reports in the condition
// database and sends a mail alert on mismatches.
package main // import "github.com/go-lpc/jesd/cmd/jesd-check"

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/go-lpc/jesd"
	"github.com/go-lpc/jesd/conddb"
	"github.com/go-lpc/jesd/internal/config"
	"github.com/go-lpc/jesd/internal/logger"
	"github.com/go-lpc/jesd/internal/regs"
	"github.com/go-lpc/jesd/link"
	"github.com/go-lpc/jesd/regio"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	mail "gopkg.in/gomail.v2"
)

func main() {
	log.SetPrefix("jesd-check: ")
	log.SetFlags(0)

	var (
		cfgName = flag.String("cfg", "", "path to the YAML configuration file")
		noMail  = flag.Bool("no-mail", false, "disable mail alerts")
	)

	flag.Parse()

	err := run(*cfgName, *noMail)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(fname string, noMail bool) error {
	cfg, err := config.Load(fname)
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}

	msg, closer, err := logger.New("jesd-check", cfg.Log)
	if err != nil {
		return fmt.Errorf("could not create logger: %w", err)
	}
	defer closer.Close()

	var db store
	if cfg.DB.Name != "" {
		conn, err := conddb.Open(
			cfg.DB.Name,
			conddb.WithAddr(cfg.DB.Addr),
			conddb.WithUser(cfg.DB.User, cfg.DB.Password),
		)
		if err != nil {
			return fmt.Errorf("could not open condition db: %w", err)
		}
		defer conn.Close()
		db = conn
	}

	res, err := check(context.Background(), cfg, config.Device.Open, db, msg)
	for _, r := range res {
		switch {
		case r.err != nil:
			log.Printf("%s %v: %+v", r.dev, r.link, r.err)
		case r.rep.OK():
			log.Printf("%s %v: OK (lanes=0x%02x)", r.dev, r.link, r.rep.Enabled)
		default:
			log.Printf("%s %v: MISMATCH (lanes=0x%02x)", r.dev, r.link, r.rep.Lanes)
		}
	}
	if err != nil {
		return fmt.Errorf("could not check devices: %w", err)
	}

	m := alert(cfg.Mail, res)
	if m == nil || noMail || cfg.Mail.Host == "" {
		return nil
	}

	dial := mail.NewDialer(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.User, cfg.Mail.Password)
	err = dial.DialAndSend(m)
	if err != nil {
		return fmt.Errorf("could not send mail alert: %w", err)
	}

	return nil
}

type store interface {
	SaveReport(ctx context.Context, dev string, rep link.Report) error
}

type opener func(dev config.Device) (regio.Bus, io.Closer, error)

type result struct {
	dev  string
	link link.Link
	rep  link.Report
	err  error
}

// check verifies the deframer links of every configured device, one
// goroutine per device.
func check(ctx context.Context, cfg config.Config, open opener, db store, msg *zap.Logger) ([]result, error) {
	devs := cfg.Devices
	if len(devs) == 0 {
		devs = []config.Device{cfg.Device}
	}

	var links []link.Link
	for _, v := range cfg.Links {
		l, err := v.Link()
		if err != nil {
			return nil, err
		}
		if l.Role != link.Deframer {
			continue
		}
		links = append(links, l)
	}

	var (
		mu  sync.Mutex
		res = make([][]result, len(devs))
	)
	grp, ctx := errgroup.WithContext(ctx)
	for i := range devs {
		i := i
		grp.Go(func() error {
			out, err := checkDevice(ctx, cfg, devs[i], links, open, msg)
			res[i] = out
			if err != nil {
				return fmt.Errorf("could not check device %q: %w", devs[i].Name, err)
			}
			for _, r := range out {
				if db == nil || r.err != nil {
					continue
				}
				mu.Lock()
				err = db.SaveReport(ctx, r.dev, r.rep)
				mu.Unlock()
				if err != nil {
					return fmt.Errorf("could not store report of %q %v: %w", r.dev, r.link, err)
				}
			}
			return nil
		})
	}
	err := grp.Wait()

	var all []result
	for _, v := range res {
		all = append(all, v...)
	}
	return all, err
}

func checkDevice(ctx context.Context, cfg config.Config, d config.Device, links []link.Link, open opener, msg *zap.Logger) ([]result, error) {
	bus, closer, err := open(d)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var (
		out = make([]result, 0, len(links))
		dev = link.New(bus, cfg.LinkOptions(bus, msg.With(zap.String("device", d.Name)))...)
	)
	for _, l := range links {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rep, err := dev.VerifyILAS(l)
		if errors.Is(err, jesd.ErrLinkDisabled) {
			continue
		}
		out = append(out, result{dev: d.Name, link: l, rep: rep, err: err})
	}

	return out, nil
}

// alert composes the alert mail for the mismatching links of res.
// alert returns nil when every link matches.
func alert(cfg config.Mail, res []result) *mail.Message {
	var (
		body = new(bytes.Buffer)
		n    = 0
	)
	for _, r := range res {
		if r.err != nil || r.rep.OK() {
			continue
		}
		n++
		fmt.Fprintf(body, "device %s, link %v: lanes=0x%02x\n", r.dev, r.link, r.rep.Lanes)
		for lane := 0; lane < regs.NumLanes; lane++ {
			if r.rep.Lanes&(1<<lane) == 0 {
				continue
			}
			lr := r.rep.Lane[lane]
			fmt.Fprintf(body, "  lane %d: mismatch=%v non-zero=%v fchk=0x%02x (want=0x%02x)\n",
				lane, lr.Mismatch, lr.NonZero, lr.Observed.FCHK, lr.Configured.FCHK,
			)
		}
	}
	if n == 0 {
		return nil
	}

	m := mail.NewMessage()
	m.SetHeader("From", cfg.From)
	m.SetHeader("Bcc", cfg.To...)
	m.SetHeader("Subject", fmt.Sprintf("[jesd-check] ILAS mismatch on %d link(s)", n))
	m.SetBody("text/plain", body.String())
	return m
}
