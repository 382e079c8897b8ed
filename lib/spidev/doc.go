// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package spidev drives a Linux spidev character device through its
// ioctl interface. It assumes an already-open descriptor and knows
// nothing about who opened it; ownership and lifetime belong to
// lib/devreg.
//
// Two kinds of request are issued:
//
//   - Bus configuration: SPI_IOC_WR_* followed immediately by the
//     matching SPI_IOC_RD_* for mode, bits per word, maximum clock
//     speed, and bit order. [Bus.Configure] returns the read-back
//     values.
//   - Transfers: SPI_IOC_MESSAGE(n) with an array of struct
//     spi_ioc_transfer segments. A half-duplex write-then-read is two
//     segments in one message (transmit clocks out fully before the
//     receive phase begins, chip select held between them). A
//     full-duplex transfer is one segment with both tx_buf and rx_buf
//     set, clocked for the length of the write buffer.
//
// No cgo is required. Request numbers and the transfer segment layout
// mirror include/uapi/linux/spi/spidev.h, which is stable ABI. The
// request encoding assumes the asm-generic _IOC layout used by arm,
// arm64, x86 and riscv.
//
// The ioctl entry point is injectable ([NewBusWithIoctl]) so that
// tests can substitute [Fake], which records every message segment.
package spidev
