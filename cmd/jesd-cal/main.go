// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command jesd-cal runs SerDes calibrations on the receive lanes of a
// device, appends every status poll to a diagnostic log and writes a
// YODA summary of the measured eye openings.
//
// Usage: jesd-cal [OPTIONS]
//
// Example:
//
//	$> jesd-cal -cfg /etc/jesd.yaml -lanes 0,1,2,3 -kind hsweep -n 10 -o eyes.yoda
package main // import "github.com/go-lpc/jesd/cmd/jesd-cal"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/jesd/diag"
	"github.com/go-lpc/jesd/internal/config"
	"github.com/go-lpc/jesd/internal/logger"
	"github.com/go-lpc/jesd/link"
)

func main() {
	log.SetPrefix("jesd-cal: ")
	log.SetFlags(0)

	var (
		cfgName = flag.String("cfg", "", "path to the YAML configuration file")
		lanes   = flag.String("lanes", "0", "comma separated list of lanes to calibrate")
		kind    = flag.String("kind", "hsweep", "calibration kind (hsweep, veye)")
		pattern = flag.String("pattern", "0", "PRBS pattern (0-3)")
		dwell   = flag.Duration("dwell", 10*time.Millisecond, "dwell time per sweep point")
		tag     = flag.String("tag", "", "free form tag recorded in the diagnostic log")
		n       = flag.Int("n", 1, "number of calibrations per lane")
		oname   = flag.String("o", "jesd-cal.yoda", "path to the YODA summary file")
		dname   = flag.String("log", "", "path to the diagnostic log (default from configuration)")
	)

	flag.Parse()

	k, err := link.ParseCalKind(*kind)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	ids, err := parseLanes(*lanes)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	prbs, err := parsePattern(*pattern)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	p := link.CalParams{
		Kind:    k,
		Pattern: prbs,
		Dwell:   *dwell,
		Tag:     *tag,
	}

	err = run(*cfgName, *dname, *oname, ids, p, *n)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(cfgName, dname, oname string, lanes []int, p link.CalParams, n int) error {
	cfg, err := config.Load(cfgName)
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}
	if dname == "" {
		dname = cfg.Cal.Log
	}

	msg, closer, err := logger.New("jesd-cal", cfg.Log)
	if err != nil {
		return fmt.Errorf("could not create logger: %w", err)
	}
	defer closer.Close()

	sink, err := diag.Open(dname)
	if err != nil {
		return fmt.Errorf("could not open diagnostic log: %w", err)
	}
	defer sink.Close()
	log.Printf("run %v: logging to %q", sink.RunID(), dname)

	bus, bc, err := cfg.Device.Open()
	if err != nil {
		return fmt.Errorf("could not open device: %w", err)
	}
	defer bc.Close()

	var (
		opts = append(cfg.LinkOptions(bus, msg), link.WithSink(sink))
		dev  = link.New(bus, opts...)
		sum  = diag.NewSummary()
	)

	err = calibrate(dev, lanes, p, n, sum)
	if err != nil {
		return err
	}

	err = sink.Close()
	if err != nil {
		return fmt.Errorf("could not close diagnostic log: %w", err)
	}

	f, err := os.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create summary file: %w", err)
	}
	defer f.Close()

	err = sum.WriteYODA(f)
	if err != nil {
		return fmt.Errorf("could not write summary: %w", err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close summary file: %w", err)
	}

	return nil
}

// calibrate runs n calibrations on each of the lanes and accumulates
// their results into sum.
func calibrate(dev *link.Device, lanes []int, p link.CalParams, n int, sum *diag.Summary) error {
	for i := 0; i < n; i++ {
		for _, lane := range lanes {
			st, err := dev.Calibrate(lane, p)
			if err != nil {
				return fmt.Errorf("could not calibrate lane %d (iter=%d): %w", lane, i, err)
			}
			log.Printf(
				"lane %d: %v width=%d height=%d polls=%d",
				lane, p.Kind, st.Width(), st.Height(), st.Polls,
			)
			sum.Add(st)
		}
	}
	return nil
}

func parseLanes(s string) ([]int, error) {
	var lanes []int
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		lane, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("could not parse lane %q: %w", v, err)
		}
		lanes = append(lanes, lane)
	}
	if len(lanes) == 0 {
		return nil, fmt.Errorf("no lane to calibrate")
	}
	return lanes, nil
}

func parsePattern(s string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("could not parse pattern %q: %w", s, err)
	}
	return uint8(v), nil
}
