// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spidev

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"
)

// Mode is the SPI clock mode: clock phase (CPHA) in bit 0 and clock
// polarity (CPOL) in bit 1. The numeric values are part of the
// broker's public contract.
//
//	Mode0: CPOL=0, CPHA=0 (clock idle low, sample on rising edge)
//	Mode1: CPOL=0, CPHA=1 (clock idle low, sample on falling edge)
//	Mode2: CPOL=1, CPHA=0 (clock idle high, sample on falling edge)
//	Mode3: CPOL=1, CPHA=1 (clock idle high, sample on rising edge)
type Mode uint8

const (
	CPHA Mode = 0x01
	CPOL Mode = 0x02

	Mode0 Mode = 0x00
	Mode1 Mode = CPHA
	Mode2 Mode = CPOL
	Mode3 Mode = CPOL | CPHA

	// modeMask selects the clock mode from the driver's mode byte,
	// which also carries flags such as SPI_CS_HIGH and SPI_LSB_FIRST.
	modeMask Mode = 0x03
)

// Valid reports whether m is one of Mode0..Mode3.
func (m Mode) Valid() bool {
	return m&^modeMask == 0
}

// BitOrder selects whether words are shifted out most or least
// significant bit first. LSBFirst has the value of the kernel's
// SPI_LSB_FIRST mode flag; the numeric values are part of the
// broker's public contract.
type BitOrder uint8

const (
	MSBFirst BitOrder = 0x00
	LSBFirst BitOrder = 0x08
)

// Valid reports whether o is MSBFirst or LSBFirst.
func (o BitOrder) Valid() bool {
	return o == MSBFirst || o == LSBFirst
}

func (o BitOrder) String() string {
	switch o {
	case MSBFirst:
		return "msb-first"
	case LSBFirst:
		return "lsb-first"
	default:
		return fmt.Sprintf("BitOrder(0x%02x)", uint8(o))
	}
}

// Config holds the four bus parameters applied by Configure.
type Config struct {
	Mode        Mode
	BitsPerWord uint8
	SpeedHz     uint32
	BitOrder    BitOrder
}

// ErrShortReadBuffer is returned by WriteReadFullDuplex when the read
// buffer is shorter than the write buffer. No transfer is issued.
var ErrShortReadBuffer = errors.New("spidev: read buffer shorter than write buffer")

// ConfigureError reports which of the eight configuration steps
// failed.
type ConfigureError struct {
	Step string
	Err  error
}

func (e *ConfigureError) Error() string {
	return fmt.Sprintf("spidev: configure: %s: %v", e.Step, e.Err)
}

func (e *ConfigureError) Unwrap() error { return e.Err }

// TransferError reports a failed SPI_IOC_MESSAGE request.
type TransferError struct {
	Op  string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("spidev: %s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Bus issues configuration and transfer requests on open spidev
// descriptors. A Bus holds no per-device state and may be shared by
// every handle.
type Bus struct {
	ioctl Ioctl
}

// NewBus returns a Bus that issues real ioctl system calls.
func NewBus() *Bus {
	return &Bus{ioctl: systemIoctl}
}

// NewBusWithIoctl returns a Bus that sends every request through fn.
func NewBusWithIoctl(fn Ioctl) *Bus {
	return &Bus{ioctl: fn}
}

// Configure applies mode, bits per word, speed, and bit order to the
// device, reading each one back immediately after writing it. The
// returned Config holds the read-back values. Any failing step aborts
// the sequence and returns a *ConfigureError.
//
// The write order matters: SPI_IOC_WR_MODE replaces the low mode
// byte, including the LSB-first flag, so bit order is applied last.
func (b *Bus) Configure(fd uintptr, config Config) (Config, error) {
	var readBack Config

	mode := uint8(config.Mode)
	if err := b.writeThenRead(fd, "mode", requestWriteMode, requestReadMode, unsafe.Pointer(&mode)); err != nil {
		return readBack, err
	}
	readBack.Mode = Mode(mode) & modeMask

	bits := config.BitsPerWord
	if err := b.writeThenRead(fd, "bits per word", requestWriteBitsPerWord, requestReadBitsPerWord, unsafe.Pointer(&bits)); err != nil {
		return readBack, err
	}
	readBack.BitsPerWord = bits

	speed := config.SpeedHz
	if err := b.writeThenRead(fd, "max speed", requestWriteMaxSpeedHz, requestReadMaxSpeedHz, unsafe.Pointer(&speed)); err != nil {
		return readBack, err
	}
	readBack.SpeedHz = speed

	lsbFirst := uint8(config.BitOrder)
	if err := b.writeThenRead(fd, "bit order", requestWriteLSBFirst, requestReadLSBFirst, unsafe.Pointer(&lsbFirst)); err != nil {
		return readBack, err
	}
	if lsbFirst != 0 {
		readBack.BitOrder = LSBFirst
	} else {
		readBack.BitOrder = MSBFirst
	}

	return readBack, nil
}

// writeThenRead issues the write request and then the read request
// against the same argument, so the argument ends up holding the
// value the driver actually accepted.
func (b *Bus) writeThenRead(fd uintptr, parameter string, write, read uintptr, arg unsafe.Pointer) error {
	if _, err := b.ioctl(fd, write, arg); err != nil {
		return &ConfigureError{Step: "write " + parameter, Err: err}
	}
	if _, err := b.ioctl(fd, read, arg); err != nil {
		return &ConfigureError{Step: "read " + parameter, Err: err}
	}
	return nil
}

// WriteHalfDuplex clocks out every byte of write as one transmit-only
// segment.
func (b *Bus) WriteHalfDuplex(fd uintptr, write []byte) error {
	var request message
	defer request.release()
	request.add(write, nil, len(write))
	return b.send(fd, "half-duplex write", &request)
}

// ReadHalfDuplex fills read with one receive-only segment.
func (b *Bus) ReadHalfDuplex(fd uintptr, read []byte) error {
	var request message
	defer request.release()
	request.add(nil, read, len(read))
	return b.send(fd, "half-duplex read", &request)
}

// WriteReadHalfDuplex sends write and then receives into read as two
// back-to-back segments of one message. The lengths are independent.
func (b *Bus) WriteReadHalfDuplex(fd uintptr, write, read []byte) error {
	var request message
	defer request.release()
	request.add(write, nil, len(write))
	request.add(nil, read, len(read))
	return b.send(fd, "half-duplex write-read", &request)
}

// WriteReadFullDuplex transmits write while receiving into read on the
// same clock cycles. The transfer runs for len(write) bytes; read must
// be at least that long and any bytes past len(write) are left
// untouched.
func (b *Bus) WriteReadFullDuplex(fd uintptr, write, read []byte) error {
	if len(read) < len(write) {
		return ErrShortReadBuffer
	}
	var request message
	defer request.release()
	request.add(write, read[:len(write)], len(write))
	return b.send(fd, "full-duplex write-read", &request)
}

// send issues SPI_IOC_MESSAGE for the message's segments. Any
// non-negative byte count is success, whether or not it matches the
// requested length.
func (b *Bus) send(fd uintptr, op string, request *message) error {
	count, err := b.ioctl(fd, requestMessage(len(request.segments)), unsafe.Pointer(&request.segments[0]))
	runtime.KeepAlive(request)
	if err != nil {
		return &TransferError{Op: op, Err: err}
	}
	if count < 0 {
		return &TransferError{Op: op, Err: fmt.Errorf("driver returned %d", count)}
	}
	return nil
}

// message is an SPI_IOC_MESSAGE segment array together with the pins
// that keep every referenced buffer at a fixed heap address until the
// ioctl returns.
type message struct {
	segments []transferSegment
	pinner   runtime.Pinner
}

func (m *message) add(tx, rx []byte, length int) {
	m.segments = append(m.segments, transferSegment{
		txBuffer: m.address(tx),
		rxBuffer: m.address(rx),
		length:   uint32(length),
	})
}

func (m *message) address(buffer []byte) uint64 {
	if len(buffer) == 0 {
		return 0
	}
	m.pinner.Pin(&buffer[0])
	return uint64(uintptr(unsafe.Pointer(&buffer[0])))
}

func (m *message) release() {
	m.pinner.Unpin()
}
