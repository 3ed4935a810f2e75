// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package poll provides a bounded retry combinator for hardware status
// polling.
package poll // import "github.com/go-lpc/jesd/internal/poll"

import (
	"time"

	"github.com/go-lpc/jesd"
)

// Func is invoked once per poll iteration, starting at 0.
// It reports whether the awaited condition was observed.
// A non-nil error stops the loop immediately.
type Func func(i int) (done bool, err error)

// Loop polls a Func at a fixed interval until Budget has elapsed.
// The first poll happens immediately and the last one once the whole
// budget has been slept, so a timeout never fires before Budget.
type Loop struct {
	Op       string        // operation name reported on timeout
	Interval time.Duration // delay between two polls
	Budget   time.Duration // total time budget

	// Sleep is used to wait between polls. time.Sleep if nil.
	Sleep func(time.Duration)
}

// Iterations returns the maximum number of polls of the loop.
// A loop always polls at least once.
func (l Loop) Iterations() int {
	if l.Interval <= 0 || l.Budget <= 0 {
		return 1
	}
	n := int(l.Budget / l.Interval)
	if l.Budget%l.Interval != 0 {
		n++
	}
	return n + 1
}

// Run polls f until it reports done, returns an error or the time
// budget is exhausted. The number of polls performed is returned.
// Budget exhaustion yields a *jesd.TimeoutError.
func (l Loop) Run(f Func) (int, error) {
	sleep := l.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	n := l.Iterations()
	left := l.Budget
	for i := 0; i < n; i++ {
		done, err := f(i)
		if err != nil {
			return i + 1, err
		}
		if done {
			return i + 1, nil
		}
		if i+1 < n {
			d := l.Interval
			if d > left {
				d = left
			}
			sleep(d)
			left -= d
		}
	}

	return n, &jesd.TimeoutError{Op: l.Op, Budget: l.Budget, Polls: n}
}
