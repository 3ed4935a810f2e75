// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package diag records SerDes calibration diagnostics: a line oriented
// log of every calibration status poll, and per-lane summaries of the
// measured eye openings.
package diag // import "github.com/go-lpc/jesd/diag"

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-lpc/jesd/link"
	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

var header = strings.Join([]string{
	"# time", "run", "lane", "tag", "kind", "done",
	"left", "right", "upper", "lower", "iter", "polls",
}, "\t") + "\n"

// Sink is an append-only calibration poll log.
// A header line is written once, when the log is empty.
// Every poll is then recorded as one tab-separated line.
type Sink struct {
	w   *bufio.Writer
	f   *os.File
	run uuid.UUID
	now func() time.Time
	hdr bool // whether the header still needs to be written
}

// Open opens the log fname for appending, creating it if needed.
func Open(fname string) (*Sink, error) {
	f, err := os.OpenFile(fname, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, xerrors.Errorf("diag: could not open log file %q: %w", fname, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, xerrors.Errorf("diag: could not stat log file %q: %w", fname, err)
	}

	sink := NewSink(f, fi.Size() == 0)
	sink.f = f
	return sink, nil
}

// NewSink returns a sink writing to w. The header is written before the
// first record if header is true.
func NewSink(w io.Writer, header bool) *Sink {
	return &Sink{
		w:   bufio.NewWriter(w),
		run: uuid.New(),
		now: time.Now,
		hdr: header,
	}
}

// RunID returns the identifier of the calibration run recorded by this sink.
func (sink *Sink) RunID() uuid.UUID {
	return sink.run
}

// Record appends a calibration status poll to the log.
func (sink *Sink) Record(tag string, st link.CalStatus) error {
	if sink.hdr {
		_, err := sink.w.WriteString(header)
		if err != nil {
			return xerrors.Errorf("diag: could not write header: %w", err)
		}
		sink.hdr = false
	}

	done := 0
	if st.Done {
		done = 1
	}
	_, err := fmt.Fprintf(sink.w, "%s\t%s\t%d\t%s\t%v\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
		sink.now().UTC().Format(time.RFC3339Nano),
		sink.run,
		st.Lane,
		sanitize(tag),
		st.Kind,
		done,
		st.Left, st.Right, st.Upper, st.Lower,
		st.Iter, st.Polls,
	)
	if err != nil {
		return xerrors.Errorf("diag: could not write record: %w", err)
	}

	err = sink.w.Flush()
	if err != nil {
		return xerrors.Errorf("diag: could not flush record: %w", err)
	}
	return nil
}

// Close flushes and closes the log.
func (sink *Sink) Close() error {
	err := sink.w.Flush()
	if err != nil {
		return xerrors.Errorf("diag: could not flush log: %w", err)
	}
	if sink.f == nil {
		return nil
	}
	err = sink.f.Close()
	if err != nil {
		return xerrors.Errorf("diag: could not close log file: %w", err)
	}
	return nil
}

func sanitize(tag string) string {
	if tag == "" {
		return "-"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return ' '
		}
		return r
	}, tag)
}

var (
	_ link.Sink = (*Sink)(nil)
)
