// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diag

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/jesd/link"
	"github.com/google/uuid"
)

func TestSink(t *testing.T) {
	buf := new(bytes.Buffer)
	sink := NewSink(buf, true)
	sink.run = uuid.MustParse("5f0b8a62-1c1e-4a57-9a8e-3a2d2f6c9e10")
	sink.now = func() time.Time {
		return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	}

	for i, st := range []link.CalStatus{
		{Lane: 2, Kind: link.HorizontalSweep, Iter: 1, Polls: 1},
		{Done: true, Lane: 2, Kind: link.HorizontalSweep, Left: -10, Right: 12, Iter: 2, Polls: 2},
	} {
		err := sink.Record("run\t42", st)
		if err != nil {
			t.Fatalf("could not record poll %d: %+v", i, err)
		}
	}
	err := sink.Close()
	if err != nil {
		t.Fatalf("could not close sink: %+v", err)
	}

	want := header +
		"2026-10-18T12:00:00Z\t5f0b8a62-1c1e-4a57-9a8e-3a2d2f6c9e10\t2\trun 42\thorizontal-sweep\t0\t0\t0\t0\t0\t1\t1\n" +
		"2026-10-18T12:00:00Z\t5f0b8a62-1c1e-4a57-9a8e-3a2d2f6c9e10\t2\trun 42\thorizontal-sweep\t1\t-10\t12\t0\t0\t2\t2\n"
	if got := buf.String(); got != want {
		t.Fatalf("invalid log:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestSinkAppend(t *testing.T) {
	tmp, err := os.MkdirTemp("", "jesd-diag-")
	if err != nil {
		t.Fatalf("could not create tmp dir: %+v", err)
	}
	defer os.RemoveAll(tmp)

	fname := filepath.Join(tmp, "cal.log")
	var runs []string
	for i := 0; i < 2; i++ {
		sink, err := Open(fname)
		if err != nil {
			t.Fatalf("could not open sink: %+v", err)
		}
		runs = append(runs, sink.RunID().String())
		err = sink.Record("", link.CalStatus{Lane: i, Kind: link.VerticalEye, Polls: 1})
		if err != nil {
			t.Fatalf("could not record: %+v", err)
		}
		err = sink.Close()
		if err != nil {
			t.Fatalf("could not close sink: %+v", err)
		}
	}
	if runs[0] == runs[1] {
		t.Fatalf("run ids not unique: %q", runs[0])
	}

	raw, err := os.ReadFile(fname)
	if err != nil {
		t.Fatalf("could not read log: %+v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if got, want := len(lines), 3; got != want {
		t.Fatalf("invalid number of lines: got=%d, want=%d\n%s", got, want, raw)
	}
	if got, want := strings.Count(string(raw), "# time"), 1; got != want {
		t.Fatalf("header written %d times", got)
	}
	for i, line := range lines[1:] {
		fields := strings.Split(line, "\t")
		if got, want := len(fields), 12; got != want {
			t.Fatalf("line %d: invalid number of fields: got=%d, want=%d", i, got, want)
		}
		if fields[1] != runs[i] || fields[3] != "-" || fields[4] != "vertical-eye" {
			t.Fatalf("line %d: invalid record: %q", i, line)
		}
	}

	_, err = Open(filepath.Join(tmp, "not-there", "cal.log"))
	if err == nil {
		t.Fatalf("expected an error opening a log in a missing directory")
	}
}

func TestSummary(t *testing.T) {
	sum := NewSummary()
	for _, st := range []link.CalStatus{
		{Done: true, Lane: 3, Kind: link.HorizontalSweep, Left: -10, Right: 12, Polls: 30},
		{Done: true, Lane: 3, Kind: link.HorizontalSweep, Left: -11, Right: 12, Polls: 31},
		{Done: true, Lane: 3, Kind: link.VerticalEye, Upper: 80, Lower: -70, Polls: 5},
		{Done: false, Lane: 1, Kind: link.VerticalEye, Upper: 80, Lower: -70, Polls: 5},
		{Done: true, Lane: 9, Kind: link.VerticalEye},
	} {
		sum.Add(st)
	}

	w, h := sum.Entries(3)
	if w != 2 || h != 1 {
		t.Fatalf("invalid lane-3 entries: width=%d, height=%d", w, h)
	}
	w, h = sum.Entries(1)
	if w != 0 || h != 0 {
		t.Fatalf("incomplete calibration recorded: width=%d, height=%d", w, h)
	}

	buf := new(bytes.Buffer)
	err := sum.WriteYODA(buf)
	if err != nil {
		t.Fatalf("could not write summary: %+v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"YODA_HISTO1D",
		"jesd/lane-3/width",
		"jesd/lane-3/height",
		"jesd/polls",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary does not contain %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "jesd/lane-1/") {
		t.Fatalf("summary contains empty histograms:\n%s", out)
	}
}
