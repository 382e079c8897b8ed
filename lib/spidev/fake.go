// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spidev

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Segment is one recorded spi_ioc_transfer.
type Segment struct {
	// Tx is a copy of the transmitted bytes, nil for receive-only
	// segments.
	Tx []byte

	// Receives is true when the segment had an rx buffer.
	Receives bool

	// Length is the number of bytes clocked.
	Length int
}

// Message is one recorded SPI_IOC_MESSAGE request.
type Message struct {
	FD       uintptr
	Segments []Segment
}

// Fake emulates a spidev driver for tests. Pass Fake.Ioctl to
// NewBusWithIoctl. It keeps bus settings per descriptor with the
// driver's semantics (writing the mode byte resets the LSB-first
// flag, zero bits per word reads back as 8), records every transfer
// message, and fills receive buffers from a response queue. When the
// queue is empty a full-duplex segment echoes its transmit bytes
// (MISO looped to MOSI) and a receive-only segment reads zeros.
//
// Fake is safe for concurrent use.
type Fake struct {
	// MaxSpeedHz, when non-zero, caps the speed the driver accepts.
	MaxSpeedHz uint32

	mu             sync.Mutex
	settings       map[uintptr]*fakeSettings
	messages       []Message
	responses      [][]byte
	configureCalls int
	configureError error
	transferError  error
}

type fakeSettings struct {
	mode        uint8
	lsbFirst    bool
	bitsPerWord uint8
	speedHz     uint32
}

// NewFake returns a Fake with no recorded traffic.
func NewFake() *Fake {
	return &Fake{settings: make(map[uintptr]*fakeSettings)}
}

// QueueResponse appends data to the receive queue. Each receive
// segment consumes one queued response, truncated or zero-padded to
// the segment length.
func (f *Fake) QueueResponse(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, append([]byte(nil), data...))
}

// FailConfigure makes every subsequent configuration request fail
// with err. Pass nil to clear.
func (f *Fake) FailConfigure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configureError = err
}

// FailTransfers makes every subsequent SPI_IOC_MESSAGE fail with err.
// Pass nil to clear.
func (f *Fake) FailTransfers(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferError = err
}

// Messages returns a copy of every recorded transfer message.
func (f *Fake) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.messages...)
}

// ConfigureCalls returns the number of configuration requests seen
// (each Configure issues eight).
func (f *Fake) ConfigureCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configureCalls
}

// Settings returns the bus parameters currently held for fd.
func (f *Fake) Settings(fd uintptr) Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	settings := f.device(fd)
	config := Config{
		Mode:        Mode(settings.mode) & modeMask,
		BitsPerWord: settings.bitsPerWord,
		SpeedHz:     settings.speedHz,
	}
	if settings.lsbFirst {
		config.BitOrder = LSBFirst
	}
	return config
}

// Ioctl implements the Ioctl signature.
func (f *Fake) Ioctl(fd uintptr, request uintptr, arg unsafe.Pointer) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	settings := f.device(fd)
	switch request {
	case requestWriteMode, requestReadMode,
		requestWriteLSBFirst, requestReadLSBFirst,
		requestWriteBitsPerWord, requestReadBitsPerWord,
		requestWriteMaxSpeedHz, requestReadMaxSpeedHz:
		f.configureCalls++
		if f.configureError != nil {
			return -1, f.configureError
		}
	}

	switch request {
	case requestWriteMode:
		value := *(*uint8)(arg)
		settings.mode = value &^ uint8(LSBFirst)
		settings.lsbFirst = value&uint8(LSBFirst) != 0
	case requestReadMode:
		value := settings.mode
		if settings.lsbFirst {
			value |= uint8(LSBFirst)
		}
		*(*uint8)(arg) = value
	case requestWriteLSBFirst:
		settings.lsbFirst = *(*uint8)(arg) != 0
	case requestReadLSBFirst:
		var value uint8
		if settings.lsbFirst {
			value = 1
		}
		*(*uint8)(arg) = value
	case requestWriteBitsPerWord:
		settings.bitsPerWord = *(*uint8)(arg)
		if settings.bitsPerWord == 0 {
			settings.bitsPerWord = 8
		}
	case requestReadBitsPerWord:
		*(*uint8)(arg) = settings.bitsPerWord
	case requestWriteMaxSpeedHz:
		speed := *(*uint32)(arg)
		if f.MaxSpeedHz != 0 && speed > f.MaxSpeedHz {
			speed = f.MaxSpeedHz
		}
		settings.speedHz = speed
	case requestReadMaxSpeedHz:
		*(*uint32)(arg) = settings.speedHz
	default:
		count, ok := fakeMessageSegments(request)
		if !ok {
			return -1, unix.ENOTTY
		}
		if f.transferError != nil {
			return -1, f.transferError
		}
		return f.transfer(fd, unsafe.Slice((*transferSegment)(arg), count)), nil
	}
	return 0, nil
}

func (f *Fake) device(fd uintptr) *fakeSettings {
	settings, ok := f.settings[fd]
	if !ok {
		settings = &fakeSettings{bitsPerWord: 8}
		f.settings[fd] = settings
	}
	return settings
}

// transfer records segments and fills their receive buffers. Returns
// the total number of bytes clocked, as the driver does.
func (f *Fake) transfer(fd uintptr, segments []transferSegment) int {
	recorded := Message{FD: fd}
	total := 0
	for _, segment := range segments {
		length := int(segment.length)
		entry := Segment{Length: length, Receives: segment.rxBuffer != 0}

		var tx []byte
		if segment.txBuffer != 0 {
			tx = unsafe.Slice((*byte)(unsafe.Pointer(uintptr(segment.txBuffer))), length)
			entry.Tx = append([]byte(nil), tx...)
		}
		if segment.rxBuffer != 0 {
			rx := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(segment.rxBuffer))), length)
			f.fill(rx, tx)
		}

		recorded.Segments = append(recorded.Segments, entry)
		total += length
	}
	f.messages = append(f.messages, recorded)
	return total
}

func (f *Fake) fill(rx, tx []byte) {
	if len(f.responses) > 0 {
		response := f.responses[0]
		f.responses = f.responses[1:]
		clear(rx)
		copy(rx, response)
		return
	}
	if tx != nil {
		copy(rx, tx)
		return
	}
	clear(rx)
}

// fakeMessageSegments decodes SPI_IOC_MESSAGE(n) and returns n.
func fakeMessageSegments(request uintptr) (int, bool) {
	if request&^((iocSizeLimit-1)<<iocSizeShift) != ioc(iocWrite, 0, 0) {
		return 0, false
	}
	size := request >> iocSizeShift & (iocSizeLimit - 1)
	segmentSize := unsafe.Sizeof(transferSegment{})
	if size == 0 || size%segmentSize != 0 {
		return 0, false
	}
	return int(size / segmentSize), true
}
