// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spidev

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// spidev ioctl constants from include/uapi/linux/spi/spidev.h.
const (
	// spiIOCMagic is the spidev ioctl type character ('k').
	spiIOCMagic = 'k'

	iocWrite = 1
	iocRead  = 2

	iocNumberShift    = 0
	iocTypeShift      = 8
	iocSizeShift      = 16
	iocDirectionShift = 30

	// iocSizeLimit is the width of the _IOC size field (14 bits).
	iocSizeLimit = 1 << 14
)

// ioc encodes a request number: direction << 30 | size << 16 |
// type << 8 | nr.
func ioc(direction, number, size uintptr) uintptr {
	return direction<<iocDirectionShift |
		size<<iocSizeShift |
		spiIOCMagic<<iocTypeShift |
		number<<iocNumberShift
}

var (
	// SPI_IOC_{RD,WR}_MODE: uint8, SPI_MODE_0..3 plus flag bits.
	requestReadMode  = ioc(iocRead, 1, 1)
	requestWriteMode = ioc(iocWrite, 1, 1)

	// SPI_IOC_{RD,WR}_LSB_FIRST: uint8, zero means MSB first.
	requestReadLSBFirst  = ioc(iocRead, 2, 1)
	requestWriteLSBFirst = ioc(iocWrite, 2, 1)

	// SPI_IOC_{RD,WR}_BITS_PER_WORD: uint8, zero means 8.
	requestReadBitsPerWord  = ioc(iocRead, 3, 1)
	requestWriteBitsPerWord = ioc(iocWrite, 3, 1)

	// SPI_IOC_{RD,WR}_MAX_SPEED_HZ: uint32.
	requestReadMaxSpeedHz  = ioc(iocRead, 4, 4)
	requestWriteMaxSpeedHz = ioc(iocWrite, 4, 4)
)

// requestMessage returns SPI_IOC_MESSAGE(segments). The kernel
// encodes a zero size when the segment array would overflow the size
// field; callers never send more than two segments.
func requestMessage(segments int) uintptr {
	size := uintptr(segments) * unsafe.Sizeof(transferSegment{})
	if size >= iocSizeLimit {
		size = 0
	}
	return ioc(iocWrite, 0, size)
}

// transferSegment mirrors struct spi_ioc_transfer (32 bytes). Buffer
// addresses are carried as 64-bit integers regardless of the platform
// pointer width.
type transferSegment struct {
	txBuffer       uint64
	rxBuffer       uint64
	length         uint32
	speedHz        uint32
	delayUsecs     uint16
	bitsPerWord    uint8
	csChange       uint8
	txNbits        uint8
	rxNbits        uint8
	wordDelayUsecs uint8
	pad            uint8
}

// Ioctl issues one ioctl request on fd. arg points at the request's
// argument in Go memory. The return value is the syscall's
// non-negative result; any failure is reported as a non-nil error.
type Ioctl func(fd uintptr, request uintptr, arg unsafe.Pointer) (int, error)

// systemIoctl is the production Ioctl.
func systemIoctl(fd uintptr, request uintptr, arg unsafe.Pointer) (int, error) {
	result, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, request, uintptr(arg))
	if errno != 0 {
		return -1, errno
	}
	return int(result), nil
}
