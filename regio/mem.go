// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regio

import (
	"fmt"
	"io"
	"os"

	"github.com/go-lpc/jesd/internal/mmap"
)

type rwer interface {
	io.ReaderAt
	io.WriterAt
}

// Mem is a register bus over a byte-addressed memory window.
type Mem struct {
	rw   rwer
	xbuf [1]byte
}

// NewMem returns a register bus reading and writing registers at their
// address offset in rw.
func NewMem(rw rwer) *Mem {
	return &Mem{rw: rw}
}

func (m *Mem) ReadField(addr uint16, mask uint8) (uint8, error) {
	_, err := m.rw.ReadAt(m.xbuf[:], int64(addr))
	if err != nil {
		return 0, fmt.Errorf("regio: could not read register 0x%04x: %w", addr, err)
	}
	return Extract(m.xbuf[0], mask), nil
}

func (m *Mem) WriteField(addr uint16, v, mask uint8) error {
	raw := v
	if mask != 0xff {
		_, err := m.rw.ReadAt(m.xbuf[:], int64(addr))
		if err != nil {
			return fmt.Errorf("regio: could not read register 0x%04x: %w", addr, err)
		}
		raw = Insert(m.xbuf[0], v, mask)
	}
	m.xbuf[0] = raw
	_, err := m.rw.WriteAt(m.xbuf[:], int64(addr))
	if err != nil {
		return fmt.Errorf("regio: could not write register 0x%04x: %w", addr, err)
	}
	return nil
}

func (m *Mem) ReadBlock(addr uint16, p []byte) error {
	_, err := m.rw.ReadAt(p, int64(addr))
	if err != nil {
		return fmt.Errorf("regio: could not read %d registers at 0x%04x: %w", len(p), addr, err)
	}
	return nil
}

func (m *Mem) WriteBlock(addr uint16, p []byte) error {
	_, err := m.rw.WriteAt(p, int64(addr))
	if err != nil {
		return fmt.Errorf("regio: could not write %d registers at 0x%04x: %w", len(p), addr, err)
	}
	return nil
}

// DevMem is a register bus over a memory-mapped physical address window.
type DevMem struct {
	*Mem

	f *os.File
	h *mmap.Handle
}

// OpenDevMem maps span bytes of fname (usually /dev/mem) starting at
// the physical address base.
func OpenDevMem(fname string, base int64, span int) (*DevMem, error) {
	f, err := os.OpenFile(fname, os.O_RDWR|os.O_SYNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("regio: could not open %q: %w", fname, err)
	}

	h, err := mmap.Map(f, base, span)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("regio: could not map register window: %w", err)
	}

	return &DevMem{Mem: NewMem(h), f: f, h: h}, nil
}

// Close unmaps the register window and closes the underlying file.
func (dev *DevMem) Close() error {
	err := dev.h.Close()
	if err != nil {
		_ = dev.f.Close()
		return fmt.Errorf("regio: could not unmap register window: %w", err)
	}
	err = dev.f.Close()
	if err != nil {
		return fmt.Errorf("regio: could not close %q: %w", dev.f.Name(), err)
	}
	return nil
}

var (
	_ Bus = (*Mem)(nil)
	_ Bus = (*DevMem)(nil)
)
