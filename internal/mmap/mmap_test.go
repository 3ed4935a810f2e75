// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmap // import "github.com/go-lpc/jesd/internal/mmap"

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestHandle(t *testing.T) {
	t.Run("nil-handle", func(t *testing.T) {
		var h *Handle

		_, err := h.ReadAt(nil, 0)
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid read-at error: %+v", err)
		}

		_, err = h.WriteAt(nil, 0)
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid write-at error: %+v", err)
		}

		err = h.Close()
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid close error: %+v", err)
		}
	})
	t.Run("nil-data", func(t *testing.T) {
		var h Handle

		_, err := h.ReadAt(nil, 0)
		if !errors.Is(err, errClosed) {
			t.Fatalf("invalid read-at error: %+v", err)
		}

		_, err = h.WriteAt(nil, 0)
		if !errors.Is(err, errClosed) {
			t.Fatalf("invalid write-at error: %+v", err)
		}

		err = h.Close()
		if err != nil {
			t.Fatalf("error closing nil-data handle: %+v", err)
		}
	})
}

func TestMap(t *testing.T) {
	span := os.Getpagesize()
	fname := filepath.Join(t.TempDir(), "dev.mem")
	err := os.WriteFile(fname, make([]byte, 2*span), 0644)
	if err != nil {
		t.Fatalf("could not create fake dev-mem: %+v", err)
	}

	f, err := os.OpenFile(fname, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("could not open fake dev-mem: %+v", err)
	}
	defer f.Close()

	_, err = Map(f, 1, span)
	if err == nil {
		t.Fatalf("expected an error for a misaligned offset")
	}

	h, err := Map(f, int64(span), span)
	if err != nil {
		t.Fatalf("could not mmap fake dev-mem: %+v", err)
	}
	defer h.Close()

	if got, want := h.Len(), span; got != want {
		t.Fatalf("invalid len: got=%d, want=%d", got, want)
	}

	_, err = h.WriteAt([]byte{1, 2, 3}, 0x10)
	if err != nil {
		t.Fatalf("could not write: %+v", err)
	}

	buf := make([]byte, 3)
	_, err = h.ReadAt(buf, 0x10)
	if err != nil {
		t.Fatalf("could not read: %+v", err)
	}
	if got, want := buf, []byte{1, 2, 3}; string(got) != string(want) {
		t.Fatalf("invalid r/w round-trip: got=%v, want=%v", got, want)
	}

	_, err = h.WriteAt(nil, -1)
	if got, want := err.Error(), "mmap: invalid WriteAt offset -1"; got != want {
		t.Fatalf("invalid error: %+v", err)
	}

	_, err = h.ReadAt(buf, int64(span-1))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("invalid short-read error: %+v", err)
	}

	err = h.Close()
	if err != nil {
		t.Fatalf("could not close handle: %+v", err)
	}

	_, err = h.ReadAt(buf, 0)
	if !errors.Is(err, errClosed) {
		t.Fatalf("invalid read-after-close error: %+v", err)
	}

	// the file is shared: data must have reached the backing store.
	raw, err := os.ReadFile(fname)
	if err != nil {
		t.Fatalf("could not read back fake dev-mem: %+v", err)
	}
	if got, want := raw[span+0x10:span+0x13], []byte{1, 2, 3}; string(got) != string(want) {
		t.Fatalf("invalid backing store: got=%v, want=%v", got, want)
	}
}
