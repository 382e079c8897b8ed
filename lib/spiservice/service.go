// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spiservice

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/spibroker/lib/devreg"
	"github.com/bureau-foundation/spibroker/lib/process"
	"github.com/bureau-foundation/spibroker/lib/session"
	"github.com/bureau-foundation/spibroker/lib/spidev"
)

// DefaultMaxTransfer bounds the write length and read capacity of a
// single transfer when no other limit is configured.
const DefaultMaxTransfer = 4096

// Service serializes calls against the device registry and the bus.
type Service struct {
	registry    *devreg.Registry
	bus         *spidev.Bus
	logger      *slog.Logger
	maxTransfer int
	fatal       func(error)

	mu sync.Mutex
}

// New creates a Service. maxTransfer bounds every transfer buffer; a
// value of zero or less selects DefaultMaxTransfer.
func New(registry *devreg.Registry, bus *spidev.Bus, logger *slog.Logger, maxTransfer int) *Service {
	if maxTransfer <= 0 {
		maxTransfer = DefaultMaxTransfer
	}
	return &Service{
		registry:    registry,
		bus:         bus,
		logger:      logger,
		maxTransfer: maxTransfer,
		fatal:       process.Fatal,
	}
}

// SetFatal replaces the function called when bus configuration fails.
// The default exits the process.
func (s *Service) SetFatal(fatal func(error)) {
	s.fatal = fatal
}

// Open opens the named device for caller.
func (s *Service) Open(caller session.ID, device string) (devreg.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Open(device, devreg.Owner(caller))
}

// Close releases handle. Only the owning session may close it.
func (s *Service) Close(caller session.ID, handle devreg.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Close(handle, devreg.Owner(caller))
}

// Configure applies config to the device behind handle and returns
// the values read back. Ownership is checked before the parameters. A
// driver failure is passed to the fatal hook before the error is
// returned.
func (s *Service) Configure(caller session.ID, handle devreg.Handle, config spidev.Config) (spidev.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, err := s.registry.Lookup(handle, devreg.Owner(caller))
	if err != nil {
		return spidev.Config{}, err
	}
	if !config.Mode.Valid() {
		return spidev.Config{}, fmt.Errorf("mode 0x%02x: %w", uint8(config.Mode), devreg.ErrBadParameter)
	}
	if !config.BitOrder.Valid() {
		return spidev.Config{}, fmt.Errorf("bit order 0x%02x: %w", uint8(config.BitOrder), devreg.ErrBadParameter)
	}

	readBack, err := s.bus.Configure(device.FD(), config)
	if err != nil {
		s.logger.Error("bus configuration failed",
			"device", device.Name,
			"handle", handle.String(),
			"error", err,
		)
		s.fatal(fmt.Errorf("configuring %s: %w", device.Path, err))
		return spidev.Config{}, fmt.Errorf("configuring %s: %w: %w", device.Name, devreg.ErrFault, err)
	}
	return readBack, nil
}

// WriteHalfDuplex clocks write out to the device.
func (s *Service) WriteHalfDuplex(caller session.ID, handle devreg.Handle, write []byte) error {
	return s.withDevice(caller, handle, len(write), 0, func(fd uintptr) error {
		return s.bus.WriteHalfDuplex(fd, write)
	})
}

// ReadHalfDuplex clocks readLength bytes in from the device.
func (s *Service) ReadHalfDuplex(caller session.ID, handle devreg.Handle, readLength int) ([]byte, error) {
	var read []byte
	err := s.withDevice(caller, handle, 0, readLength, func(fd uintptr) error {
		read = make([]byte, readLength)
		return s.bus.ReadHalfDuplex(fd, read)
	})
	if err != nil {
		return nil, err
	}
	return read, nil
}

// WriteReadHalfDuplex clocks write out, then readLength bytes in, as
// two segments of one message.
func (s *Service) WriteReadHalfDuplex(caller session.ID, handle devreg.Handle, write []byte, readLength int) ([]byte, error) {
	var read []byte
	err := s.withDevice(caller, handle, len(write), readLength, func(fd uintptr) error {
		read = make([]byte, readLength)
		return s.bus.WriteReadHalfDuplex(fd, write, read)
	})
	if err != nil {
		return nil, err
	}
	return read, nil
}

// WriteReadFullDuplex clocks write out while clocking the same number
// of bytes in. readLength must be at least len(write); bytes past the
// write length are returned as zero.
func (s *Service) WriteReadFullDuplex(caller session.ID, handle devreg.Handle, write []byte, readLength int) ([]byte, error) {
	var read []byte
	err := s.withDevice(caller, handle, len(write), readLength, func(fd uintptr) error {
		read = make([]byte, readLength)
		return s.bus.WriteReadFullDuplex(fd, write, read)
	})
	if err != nil {
		return nil, err
	}
	return read, nil
}

// Status lists the live handles.
func (s *Service) Status() []devreg.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Entries()
}

// DeviceDirectory returns the directory device names resolve under.
func (s *Service) DeviceDirectory() string {
	return s.registry.Directory()
}

// SessionClosed releases every handle owned by id. It is the
// disconnect callback registered with the session server and returns
// only after the handles are closed.
func (s *Service) SessionClosed(id session.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if closed := s.registry.CleanupSession(devreg.Owner(id)); closed > 0 {
		s.logger.Info("released handles of closed session",
			"session", uint64(id),
			"handles", closed,
		)
	}
}

// withDevice resolves handle for caller, checks the transfer lengths,
// and runs transfer on the device's descriptor, all under the service
// lock. An unowned or stale handle is reported before any length
// problem.
func (s *Service) withDevice(caller session.ID, handle devreg.Handle, writeLength, readLength int, transfer func(fd uintptr) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, err := s.registry.Lookup(handle, devreg.Owner(caller))
	if err != nil {
		return err
	}
	if err := s.checkLength("write", writeLength); err != nil {
		return err
	}
	if err := s.checkLength("read", readLength); err != nil {
		return err
	}
	if err := transfer(device.FD()); err != nil {
		if errors.Is(err, spidev.ErrShortReadBuffer) {
			return err
		}
		return fmt.Errorf("%s: %w: %w", device.Name, devreg.ErrFault, err)
	}
	return nil
}

func (s *Service) checkLength(direction string, length int) error {
	if length < 0 || length > s.maxTransfer {
		return fmt.Errorf("%s length %d outside [0, %d]: %w", direction, length, s.maxTransfer, devreg.ErrBadParameter)
	}
	return nil
}
