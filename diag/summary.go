// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diag

import (
	"fmt"
	"io"

	"github.com/go-lpc/jesd/internal/regs"
	"github.com/go-lpc/jesd/link"
	"go-hep.org/x/hep/hbook"
	"golang.org/x/xerrors"
)

// Summary accumulates the results of completed calibrations, per lane.
type Summary struct {
	width  [regs.NumLanes]*hbook.H1D // horizontal eye openings
	height [regs.NumLanes]*hbook.H1D // vertical eye openings, in mV
	polls  *hbook.H1D
}

// NewSummary returns a new, empty calibration summary.
func NewSummary() *Summary {
	var sum Summary
	for i := range sum.width {
		sum.width[i] = newH1D(64, 0, 128, fmt.Sprintf("jesd/lane-%d/width", i), "eye width")
		sum.height[i] = newH1D(100, 0, 1000, fmt.Sprintf("jesd/lane-%d/height", i), "eye height [mV]")
	}
	sum.polls = newH1D(100, 0, 10000, "jesd/polls", "status polls per calibration")
	return &sum
}

func newH1D(n int, xmin, xmax float64, path, title string) *hbook.H1D {
	h := hbook.NewH1D(n, xmin, xmax)
	h.Annotation()["name"] = path
	h.Annotation()["title"] = title
	return h
}

// Add adds the result of a completed calibration to the summary.
// Incomplete calibrations are ignored.
func (sum *Summary) Add(st link.CalStatus) {
	if !st.Done || st.Lane < 0 || st.Lane >= regs.NumLanes {
		return
	}
	switch st.Kind {
	case link.HorizontalSweep:
		sum.width[st.Lane].Fill(float64(st.Width()), 1)
	case link.VerticalEye:
		sum.height[st.Lane].Fill(float64(st.Height()), 1)
	}
	sum.polls.Fill(float64(st.Polls), 1)
}

// Entries returns the number of horizontal and vertical calibrations
// recorded for lane.
func (sum *Summary) Entries(lane int) (width, height int64) {
	return sum.width[lane].Entries(), sum.height[lane].Entries()
}

// WriteYODA writes all the non-empty histograms of the summary to w,
// in the YODA format.
func (sum *Summary) WriteYODA(w io.Writer) error {
	hs := make([]*hbook.H1D, 0, 2*regs.NumLanes+1)
	for i := range sum.width {
		hs = append(hs, sum.width[i], sum.height[i])
	}
	hs = append(hs, sum.polls)

	for _, h := range hs {
		if h.Entries() == 0 {
			continue
		}
		raw, err := h.MarshalYODA()
		if err != nil {
			return xerrors.Errorf("diag: could not marshal %q: %w", h.Name(), err)
		}
		_, err = w.Write(raw)
		if err != nil {
			return xerrors.Errorf("diag: could not write %q: %w", h.Name(), err)
		}
	}
	return nil
}
