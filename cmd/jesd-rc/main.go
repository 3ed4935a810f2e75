// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command jesd-rc starts a TDAQ server driving the JESD204 links of a device.
//
// Usage: jesd-rc [OPTIONS] -id NAME
//
// Example:
//
//	$> jesd-rc -id jesd-rc -cfg /etc/jesd.yaml -pmon -pmon-freq 5s
package main // import "github.com/go-lpc/jesd/cmd/jesd-rc"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/jesd/conddb"
	"github.com/go-lpc/jesd/internal/config"
	"github.com/go-lpc/jesd/internal/logger"
	"github.com/go-lpc/jesd/rc"
	"github.com/sbinet/pmon"
)

var (
	cfgName = flag.String("cfg", "", "path to the YAML configuration file")
	doMon   = flag.Bool("pmon", false, "enable pmon self-monitoring")
	monFreq = flag.Duration("pmon-freq", 1*time.Second, "pmon frequency")
	monDir  = flag.String("pmon-dir", os.TempDir(), "directory of the pmon log file")
)

func main() {
	log.SetPrefix("jesd-rc: ")
	log.SetFlags(0)

	cmd := flags.New()
	srv := tdaq.New(cmd, os.Stdout)

	err := run(srv)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(srv *tdaq.Server) error {
	cfg, err := config.Load(*cfgName)
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}

	msg, closer, err := logger.New("jesd-rc", cfg.Log)
	if err != nil {
		return fmt.Errorf("could not create logger: %w", err)
	}
	defer closer.Close()

	opts := []rc.Option{rc.WithLogger(msg)}
	if cfg.DB.Name != "" {
		db, err := conddb.Open(
			cfg.DB.Name,
			conddb.WithAddr(cfg.DB.Addr),
			conddb.WithUser(cfg.DB.User, cfg.DB.Password),
		)
		if err != nil {
			return fmt.Errorf("could not open condition db: %w", err)
		}
		defer db.Close()
		opts = append(opts, rc.WithStore(db))
	}

	if *doMon {
		stop, err := monitor(*monDir, *monFreq)
		if err != nil {
			return fmt.Errorf("could not start self-monitoring: %w", err)
		}
		defer stop()
	}

	rc.New(cfg, opts...).Register(srv)

	err = srv.Run(context.Background())
	if err != nil {
		return fmt.Errorf("could not run jesd-rc server: %w", err)
	}

	return nil
}

// monitor records the CPU and memory usage of the current process.
func monitor(dir string, freq time.Duration) (func(), error) {
	pid := os.Getpid()
	p, err := pmon.Monitor(pid)
	if err != nil {
		return nil, fmt.Errorf("could not monitor pid=%d: %w", pid, err)
	}

	f, err := os.Create(filepath.Join(dir, fmt.Sprintf("jesd-rc-%d-pmon.log", pid)))
	if err != nil {
		return nil, fmt.Errorf("could not create pmon log file: %w", err)
	}
	p.W = f
	p.Freq = freq

	go func() {
		err := p.Run()
		if err != nil {
			log.Printf("could not run pmon: %+v", err)
		}
	}()

	return func() {
		err := p.Kill()
		if err != nil {
			log.Printf("could not stop pmon: %+v", err)
		}
		_ = f.Close()
	}, nil
}
