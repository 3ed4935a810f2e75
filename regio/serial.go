// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regio

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Serial bridge protocol.
//
// A request is [op, addr-lo, addr-hi, n] followed by n data octets for
// writes. The bridge answers with an ack octet followed by n data octets
// for reads, or a nak octet followed by an error code.
const (
	serOpRead  = 'R'
	serOpWrite = 'W'

	serAck = 0x06
	serNak = 0x15

	serMaxBlock = 255
)

var errSerialShort = errors.New("regio: short serial response")

// NakError is returned when the serial bridge rejects a request.
type NakError struct {
	Addr uint16
	Code uint8
}

func (err NakError) Error() string {
	return fmt.Sprintf("regio: serial bridge rejected access to 0x%04x (code=0x%02x)", err.Addr, err.Code)
}

// Serial is a register bus reached through a serial (UART) bridge.
type Serial struct {
	port io.ReadWriter
	c    io.Closer
	buf  []byte
}

// SerialOption configures a serial bridge connection.
type SerialOption func(*serialConfig)

type serialConfig struct {
	baud    int
	timeout time.Duration
}

// WithBaudRate sets the baud rate of the serial line.
func WithBaudRate(baud int) SerialOption {
	return func(cfg *serialConfig) {
		cfg.baud = baud
	}
}

// WithReadTimeout sets the read timeout of the serial line.
func WithReadTimeout(timeout time.Duration) SerialOption {
	return func(cfg *serialConfig) {
		cfg.timeout = timeout
	}
}

// OpenSerial opens the serial port name and talks to the register bridge
// behind it.
func OpenSerial(name string, opts ...SerialOption) (*Serial, error) {
	cfg := serialConfig{
		baud:    115200,
		timeout: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	port, err := serial.Open(name, &serial.Mode{
		BaudRate: cfg.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("regio: could not open serial port %q: %w", name, err)
	}

	err = port.SetReadTimeout(cfg.timeout)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("regio: could not set serial read timeout: %w", err)
	}

	return newSerial(port, port), nil
}

func newSerial(rw io.ReadWriter, c io.Closer) *Serial {
	return &Serial{
		port: rw,
		c:    c,
		buf:  make([]byte, 4+serMaxBlock),
	}
}

// Close closes the serial port.
func (ser *Serial) Close() error {
	if ser.c == nil {
		return nil
	}
	return ser.c.Close()
}

func (ser *Serial) readFull(p []byte) error {
	for len(p) > 0 {
		n, err := ser.port.Read(p)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errSerialShort
			}
			return err
		}
		if n == 0 {
			// go.bug.st/serial reports a read timeout as a zero-length read.
			return errSerialShort
		}
		p = p[n:]
	}
	return nil
}

func (ser *Serial) ack(addr uint16) error {
	err := ser.readFull(ser.buf[:1])
	if err != nil {
		return fmt.Errorf("regio: could not read serial ack (addr=0x%04x): %w", addr, err)
	}
	switch ser.buf[0] {
	case serAck:
		return nil
	case serNak:
		err = ser.readFull(ser.buf[:1])
		if err != nil {
			return fmt.Errorf("regio: could not read serial nak code (addr=0x%04x): %w", addr, err)
		}
		return NakError{Addr: addr, Code: ser.buf[0]}
	default:
		return fmt.Errorf("regio: invalid serial ack 0x%02x (addr=0x%04x)", ser.buf[0], addr)
	}
}

func (ser *Serial) read(p []byte, addr uint16) error {
	for len(p) > 0 {
		n := len(p)
		if n > serMaxBlock {
			n = serMaxBlock
		}
		req := ser.buf[:4]
		req[0] = serOpRead
		req[1] = uint8(addr)
		req[2] = uint8(addr >> 8)
		req[3] = uint8(n)
		_, err := ser.port.Write(req)
		if err != nil {
			return fmt.Errorf("regio: could not send serial read request (addr=0x%04x): %w", addr, err)
		}
		err = ser.ack(addr)
		if err != nil {
			return err
		}
		err = ser.readFull(p[:n])
		if err != nil {
			return fmt.Errorf("regio: could not read %d registers at 0x%04x: %w", n, addr, err)
		}
		p = p[n:]
		addr += uint16(n)
	}
	return nil
}

func (ser *Serial) write(p []byte, addr uint16) error {
	for len(p) > 0 {
		n := len(p)
		if n > serMaxBlock {
			n = serMaxBlock
		}
		req := ser.buf[:4+n]
		req[0] = serOpWrite
		req[1] = uint8(addr)
		req[2] = uint8(addr >> 8)
		req[3] = uint8(n)
		copy(req[4:], p[:n])
		_, err := ser.port.Write(req)
		if err != nil {
			return fmt.Errorf("regio: could not send serial write request (addr=0x%04x): %w", addr, err)
		}
		err = ser.ack(addr)
		if err != nil {
			return err
		}
		p = p[n:]
		addr += uint16(n)
	}
	return nil
}

func (ser *Serial) ReadField(addr uint16, mask uint8) (uint8, error) {
	var p [1]byte
	err := ser.read(p[:], addr)
	if err != nil {
		return 0, err
	}
	return Extract(p[0], mask), nil
}

func (ser *Serial) WriteField(addr uint16, v, mask uint8) error {
	var p [1]byte
	p[0] = v
	if mask != 0xff {
		err := ser.read(p[:], addr)
		if err != nil {
			return err
		}
		p[0] = Insert(p[0], v, mask)
	}
	return ser.write(p[:], addr)
}

func (ser *Serial) ReadBlock(addr uint16, p []byte) error {
	return ser.read(p, addr)
}

func (ser *Serial) WriteBlock(addr uint16, p []byte) error {
	return ser.write(p, addr)
}

var (
	_ Bus = (*Serial)(nil)
)
