// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command jesd-shell is an interactive shell to drive the JESD204 links of
// a device.
//
// Usage: jesd-shell [OPTIONS]
//
// Example:
//
//	$> jesd-shell -cfg /etc/jesd.yaml
//	jesd> status deframer 0
//	jesd> verify 0
//	jesd> cal 2 hsweep
//	jesd> quit
package main // import "github.com/go-lpc/jesd/cmd/jesd-shell"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/jesd/internal/config"
	"github.com/go-lpc/jesd/internal/logger"
	"github.com/go-lpc/jesd/internal/regs"
	"github.com/go-lpc/jesd/link"
	"github.com/go-lpc/jesd/mbox"
	"github.com/peterh/liner"
	"go.uber.org/zap/zapcore"
)

func main() {
	log.SetPrefix("jesd-shell: ")
	log.SetFlags(0)

	var (
		cfgName = flag.String("cfg", "", "path to the YAML configuration file")
		verbose = flag.Bool("v", false, "enable verbose mode")
	)

	flag.Parse()

	err := run(*cfgName, *verbose)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(cfgName string, verbose bool) error {
	cfg, err := config.Load(cfgName)
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}

	bus, closer, err := cfg.Device.Open()
	if err != nil {
		return fmt.Errorf("could not open device: %w", err)
	}
	defer closer.Close()

	lvl := zapcore.WarnLevel
	if verbose {
		lvl = zapcore.DebugLevel
	}
	msg := logger.NewWriter("jesd-shell", os.Stderr, lvl)

	sh := newShell(link.New(bus, cfg.LinkOptions(bus, msg)...), os.Stdout)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(complete)

	hist := filepath.Join(os.TempDir(), ".jesd-shell-history")
	if f, err := os.Open(hist); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		f, err := os.Create(hist)
		if err != nil {
			return
		}
		defer f.Close()
		_, _ = ln.WriteHistory(f)
	}()

	for {
		line, err := ln.Prompt("jesd> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)

		err = sh.exec(line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			fmt.Fprintf(os.Stderr, "error: %+v\n", err)
		}
	}
}

var errQuit = errors.New("quit")

type shell struct {
	dev     *link.Device
	w       io.Writer
	variant link.Variant // variant of the links named in commands
	cmds    map[string]command
}

type command struct {
	help string
	run  func(args []string) error
}

func newShell(dev *link.Device, w io.Writer) *shell {
	sh := &shell{dev: dev, w: w}
	sh.cmds = map[string]command{
		"help":    {"help: print this help", sh.cmdHelp},
		"quit":    {"quit: quit the shell", sh.cmdQuit},
		"version": {"version: print the co-processors firmware versions", sh.cmdVersion},
		"variant": {"variant legacy|extended: set the variant of the links", sh.cmdVariant},
		"status":  {"status framer|deframer IDX: print the state of a link", sh.cmdStatus},
		"reset":   {"reset IDX: reset the lanes of a framer", sh.cmdReset},
		"verify":  {"verify IDX: verify the ILAS configuration of a deframer", sh.cmdVerify},
		"cal":     {"cal LANE hsweep|veye [PATTERN [DWELL]]: calibrate a receive lane", sh.cmdCal},
		"errcnt":  {"errcnt IDX LANE ENABLE [RESET [HOLD]]: configure the error counters of a deframer lane", sh.cmdErrCnt},
		"counts":  {"counts IDX LANE: print the error counters of a deframer lane", sh.cmdCounts},
	}
	return sh
}

func (sh *shell) exec(line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	cmd, ok := sh.cmds[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd.run(args[1:])
}

func complete(line string) []string {
	var out []string
	for _, name := range names {
		if strings.HasPrefix(name, line) {
			out = append(out, name)
		}
	}
	return out
}

var names = []string{
	"cal", "counts", "errcnt", "help", "quit",
	"reset", "status", "variant", "verify", "version",
}

func (sh *shell) cmdHelp(args []string) error {
	for _, name := range names {
		fmt.Fprintf(sh.w, "  %s\n", sh.cmds[name].help)
	}
	return nil
}

func (sh *shell) cmdQuit(args []string) error {
	return errQuit
}

func (sh *shell) cmdVersion(args []string) error {
	for _, proc := range []mbox.Processor{mbox.CPU0, mbox.CPU1} {
		v, err := sh.dev.Version(proc)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.w, "%v: %v\n", proc, v)
	}
	return nil
}

func (sh *shell) cmdVariant(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: variant legacy|extended")
	}
	switch args[0] {
	case "legacy":
		sh.variant = link.Legacy
	case "extended":
		sh.variant = link.Extended
	default:
		return fmt.Errorf("invalid link variant %q", args[0])
	}
	return nil
}

func (sh *shell) link(role link.Role, idx string) (link.Link, error) {
	i, err := strconv.Atoi(idx)
	if err != nil {
		return link.Link{}, fmt.Errorf("could not parse link index %q: %w", idx, err)
	}
	return link.Link{Role: role, Index: i, Variant: sh.variant}, nil
}

func (sh *shell) cmdStatus(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: status framer|deframer IDX")
	}
	var role link.Role
	switch args[0] {
	case "framer":
		role = link.Framer
	case "deframer":
		role = link.Deframer
	default:
		return fmt.Errorf("invalid link role %q", args[0])
	}
	l, err := sh.link(role, args[1])
	if err != nil {
		return err
	}

	st, err := sh.dev.Status(l)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "%v: enabled=%v sync=%v lanes=0x%02x", l, st.Enabled, st.Sync, st.Lanes)
	if role == link.Deframer {
		fmt.Fprintf(sh.w, " ilas=0x%02x", st.ILAS)
	}
	fmt.Fprintf(sh.w, "\n")
	return nil
}

func (sh *shell) cmdReset(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: reset IDX")
	}
	l, err := sh.link(link.Framer, args[0])
	if err != nil {
		return err
	}
	err = sh.dev.ResetLanes(l)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "%v: lanes reset\n", l)
	return nil
}

func (sh *shell) cmdVerify(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: verify IDX")
	}
	l, err := sh.link(link.Deframer, args[0])
	if err != nil {
		return err
	}
	rep, err := sh.dev.VerifyILAS(l)
	if err != nil {
		return err
	}

	for lane := 0; lane < regs.NumLanes; lane++ {
		if rep.Enabled&(1<<lane) == 0 {
			continue
		}
		lr := rep.Lane[lane]
		state := "ok"
		if lr.Mismatch != 0 {
			state = "MISMATCH " + lr.Mismatch.String()
		}
		fmt.Fprintf(sh.w, "%v lane %d: %s (fchk=0x%02x)\n", l, lane, state, lr.Observed.FCHK)
	}
	if !rep.OK() {
		return fmt.Errorf("ILAS mismatch on lanes 0x%02x", rep.Lanes)
	}
	return nil
}

func (sh *shell) cmdCal(args []string) error {
	if len(args) < 2 || len(args) > 4 {
		return fmt.Errorf("usage: cal LANE hsweep|veye [PATTERN [DWELL]]")
	}
	lane, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("could not parse lane %q: %w", args[0], err)
	}
	kind, err := link.ParseCalKind(args[1])
	if err != nil {
		return err
	}
	p := link.CalParams{Kind: kind, Dwell: 10 * time.Millisecond, Tag: "jesd-shell"}
	if len(args) > 2 {
		v, err := strconv.ParseUint(args[2], 0, 8)
		if err != nil {
			return fmt.Errorf("could not parse pattern %q: %w", args[2], err)
		}
		p.Pattern = uint8(v)
	}
	if len(args) > 3 {
		p.Dwell, err = time.ParseDuration(args[3])
		if err != nil {
			return fmt.Errorf("could not parse dwell time %q: %w", args[3], err)
		}
	}

	st, err := sh.dev.Calibrate(lane, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(
		sh.w, "lane %d: %v left=%d right=%d upper=%d lower=%d (polls=%d)\n",
		lane, kind, st.Left, st.Right, st.Upper, st.Lower, st.Polls,
	)
	return nil
}

func (sh *shell) cmdErrCnt(args []string) error {
	if len(args) < 3 || len(args) > 5 {
		return fmt.Errorf("usage: errcnt IDX LANE ENABLE [RESET [HOLD]]")
	}
	l, err := sh.link(link.Deframer, args[0])
	if err != nil {
		return err
	}
	lane, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("could not parse lane %q: %w", args[1], err)
	}
	var masks [3]uint8
	for i, arg := range args[2:] {
		v, err := strconv.ParseUint(arg, 0, 8)
		if err != nil {
			return fmt.Errorf("could not parse mask %q: %w", arg, err)
		}
		masks[i] = uint8(v)
	}

	return sh.dev.ConfigureErrorCounters(l, lane, link.ErrorCounterConfig{
		Enable: masks[0],
		Reset:  masks[1],
		Hold:   masks[2],
	})
}

func (sh *shell) cmdCounts(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: counts IDX LANE")
	}
	l, err := sh.link(link.Deframer, args[0])
	if err != nil {
		return err
	}
	lane, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("could not parse lane %q: %w", args[1], err)
	}
	cnt, err := sh.dev.ErrorCounts(l, lane)
	if err != nil {
		return err
	}
	fmt.Fprintf(
		sh.w, "%v lane %d: disparity=%d not-in-table=%d unexpected-k=%d\n",
		l, lane, cnt[0], cnt[1], cnt[2],
	)
	return nil
}
