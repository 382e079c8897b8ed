// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spiservice

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/spibroker/lib/devreg"
	"github.com/bureau-foundation/spibroker/lib/session"
	"github.com/bureau-foundation/spibroker/lib/spidev"
	"github.com/bureau-foundation/spibroker/lib/testutil"
)

const (
	sessionA session.ID = 1
	sessionB session.ID = 2
)

type testService struct {
	*Service
	fake     *spidev.Fake
	registry *devreg.Registry
	fatals   []error
}

func newTestService(t *testing.T, devices ...string) *testService {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	fake := spidev.NewFake()
	registry := devreg.New(testutil.DeviceDir(t, devices...), logger)
	instance := &testService{
		Service:  New(registry, spidev.NewBusWithIoctl(fake.Ioctl), logger, 16),
		fake:     fake,
		registry: registry,
	}
	instance.SetFatal(func(err error) { instance.fatals = append(instance.fatals, err) })
	return instance
}

func (s *testService) mustOpen(t *testing.T, caller session.ID, device string) devreg.Handle {
	t.Helper()
	handle, err := s.Open(caller, device)
	if err != nil {
		t.Fatalf("Open(%d, %q): %v", caller, device, err)
	}
	return handle
}

// requireCode checks that err translates to the given result code and
// whether it terminates the session.
func requireCode(t *testing.T, err error, code string, terminates bool) {
	t.Helper()
	translated := translate(err)
	var terminate *session.TerminateError
	var result *session.ResultError
	switch {
	case errors.As(translated, &terminate):
		if !terminates || terminate.Code != code {
			t.Errorf("error %v translated to terminate %q, want code %q (terminates=%v)", err, terminate.Code, code, terminates)
		}
	case errors.As(translated, &result):
		if terminates || result.Code != code {
			t.Errorf("error %v translated to result %q, want code %q (terminates=%v)", err, result.Code, code, terminates)
		}
	default:
		t.Errorf("error %v translated to %v, want code %q", err, translated, code)
	}
}

func TestOpenOutcomes(t *testing.T) {
	service := newTestService(t, "spidev0.0")
	service.mustOpen(t, sessionA, "spidev0.0")

	tests := []struct {
		name   string
		caller session.ID
		device string
		code   string
	}{
		{"same session reopen", sessionA, "spidev0.0", CodeDuplicate},
		{"other session", sessionB, "spidev0.0", CodeDuplicate},
		{"missing", sessionA, "spidev9.9", CodeNotFound},
		{"traversal", sessionA, "../etc/passwd", CodeBadParameter},
		{"empty", sessionA, "", CodeBadParameter},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := service.Open(test.caller, test.device)
			if err == nil {
				t.Fatal("Open succeeded")
			}
			requireCode(t, err, test.code, false)
		})
	}
}

func TestCloseByOtherSessionIsAccessViolation(t *testing.T) {
	service := newTestService(t, "spidev0.0")
	handle := service.mustOpen(t, sessionA, "spidev0.0")

	requireCode(t, service.Close(sessionB, handle), CodeAccessViolation, true)
	if service.registry.Len() != 1 {
		t.Errorf("registry holds %d handles after rejected close, want 1", service.registry.Len())
	}
	if err := service.Close(sessionA, handle); err != nil {
		t.Fatalf("owner Close: %v", err)
	}
	requireCode(t, service.Close(sessionA, handle), CodeAccessViolation, true)
}

func TestConfigureReturnsReadBack(t *testing.T) {
	service := newTestService(t, "spidev0.0")
	service.fake.MaxSpeedHz = 1_000_000
	handle := service.mustOpen(t, sessionA, "spidev0.0")

	config := spidev.Config{Mode: spidev.Mode3, BitsPerWord: 8, SpeedHz: 4_000_000, BitOrder: spidev.LSBFirst}
	want := spidev.Config{Mode: spidev.Mode3, BitsPerWord: 8, SpeedHz: 1_000_000, BitOrder: spidev.LSBFirst}
	for attempt := range 2 {
		got, err := service.Configure(sessionA, handle, config)
		if err != nil {
			t.Fatalf("Configure attempt %d: %v", attempt, err)
		}
		if got != want {
			t.Errorf("Configure attempt %d read back %+v, want %+v", attempt, got, want)
		}
	}
	if len(service.fatals) != 0 {
		t.Errorf("fatal hook called: %v", service.fatals)
	}
}

func TestConfigureRejectsInvalidParameters(t *testing.T) {
	service := newTestService(t, "spidev0.0")
	handle := service.mustOpen(t, sessionA, "spidev0.0")

	for _, config := range []spidev.Config{
		{Mode: 0x04, BitsPerWord: 8},
		{Mode: spidev.Mode0, BitsPerWord: 8, BitOrder: 0x01},
	} {
		_, err := service.Configure(sessionA, handle, config)
		requireCode(t, err, CodeBadParameter, false)
	}
	if calls := service.fake.ConfigureCalls(); calls != 0 {
		t.Errorf("driver saw %d configuration requests, want 0", calls)
	}
}

func TestConfigureFailureIsFatal(t *testing.T) {
	service := newTestService(t, "spidev0.0")
	handle := service.mustOpen(t, sessionA, "spidev0.0")
	service.fake.FailConfigure(unix.EINVAL)

	_, err := service.Configure(sessionA, handle, spidev.Config{BitsPerWord: 8, SpeedHz: 1000})
	if len(service.fatals) != 1 {
		t.Fatalf("fatal hook called %d times, want 1", len(service.fatals))
	}
	if !errors.Is(service.fatals[0], unix.EINVAL) {
		t.Errorf("fatal error = %v, want EINVAL", service.fatals[0])
	}
	requireCode(t, err, CodeFault, false)
}

func TestConfigureForeignHandle(t *testing.T) {
	service := newTestService(t, "spidev0.0")
	handle := service.mustOpen(t, sessionA, "spidev0.0")

	_, err := service.Configure(sessionB, handle, spidev.Config{BitsPerWord: 8})
	requireCode(t, err, CodeAccessViolation, true)
	if calls := service.fake.ConfigureCalls(); calls != 0 {
		t.Errorf("driver saw %d configuration requests, want 0", calls)
	}
}

func TestTransfers(t *testing.T) {
	service := newTestService(t, "spidev0.0")
	handle := service.mustOpen(t, sessionA, "spidev0.0")

	if err := service.WriteHalfDuplex(sessionA, handle, []byte{0x9f}); err != nil {
		t.Fatalf("WriteHalfDuplex: %v", err)
	}

	service.fake.QueueResponse([]byte{0xef, 0x40})
	read, err := service.ReadHalfDuplex(sessionA, handle, 2)
	if err != nil {
		t.Fatalf("ReadHalfDuplex: %v", err)
	}
	if !bytes.Equal(read, []byte{0xef, 0x40}) {
		t.Errorf("ReadHalfDuplex = %x, want ef40", read)
	}

	service.fake.QueueResponse([]byte{1, 2, 3, 4, 5})
	read, err = service.WriteReadHalfDuplex(sessionA, handle, []byte{0x03, 0x00, 0x10}, 5)
	if err != nil {
		t.Fatalf("WriteReadHalfDuplex: %v", err)
	}
	if !bytes.Equal(read, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("WriteReadHalfDuplex = %x, want 0102030405", read)
	}

	read, err = service.WriteReadFullDuplex(sessionA, handle, []byte{0xaa, 0xbb, 0xcc, 0xdd}, 6)
	if err != nil {
		t.Fatalf("WriteReadFullDuplex: %v", err)
	}
	if !bytes.Equal(read, []byte{0xaa, 0xbb, 0xcc, 0xdd, 0, 0}) {
		t.Errorf("WriteReadFullDuplex = %x, want loopback padded to 6 bytes", read)
	}

	messages := service.fake.Messages()
	shapes := []int{1, 1, 2, 1}
	if len(messages) != len(shapes) {
		t.Fatalf("driver saw %d messages, want %d", len(messages), len(shapes))
	}
	for index, segments := range shapes {
		if len(messages[index].Segments) != segments {
			t.Errorf("message %d has %d segments, want %d", index, len(messages[index].Segments), segments)
		}
	}
	halfDuplex := messages[2].Segments
	if halfDuplex[0].Length != 3 || halfDuplex[0].Receives || halfDuplex[1].Length != 5 || halfDuplex[1].Tx != nil {
		t.Errorf("write-read segments = %+v, want 3-byte write then 5-byte read", halfDuplex)
	}
	if full := messages[3].Segments[0]; full.Length != 4 || !full.Receives {
		t.Errorf("full-duplex segment = %+v, want 4 bytes clocked both ways", full)
	}
}

func TestFullDuplexShortReadTerminates(t *testing.T) {
	service := newTestService(t, "spidev0.0")
	handle := service.mustOpen(t, sessionA, "spidev0.0")

	_, err := service.WriteReadFullDuplex(sessionA, handle, []byte{1, 2, 3, 4}, 2)
	requireCode(t, err, CodePreconditionViolation, true)
	if messages := service.fake.Messages(); len(messages) != 0 {
		t.Errorf("driver saw %d messages, want none", len(messages))
	}
}

func TestTransferFailureIsFault(t *testing.T) {
	service := newTestService(t, "spidev0.0")
	handle := service.mustOpen(t, sessionA, "spidev0.0")
	service.fake.FailTransfers(unix.EIO)

	requireCode(t, service.WriteHalfDuplex(sessionA, handle, []byte{1}), CodeFault, false)
	_, err := service.ReadHalfDuplex(sessionA, handle, 1)
	requireCode(t, err, CodeFault, false)
	if !errors.Is(err, unix.EIO) {
		t.Errorf("error = %v, want EIO in chain", err)
	}
}

func TestTransferLengthBounds(t *testing.T) {
	service := newTestService(t, "spidev0.0")
	handle := service.mustOpen(t, sessionA, "spidev0.0")

	requireCode(t, service.WriteHalfDuplex(sessionA, handle, make([]byte, 17)), CodeBadParameter, false)
	_, err := service.ReadHalfDuplex(sessionA, handle, -1)
	requireCode(t, err, CodeBadParameter, false)
	_, err = service.WriteReadHalfDuplex(sessionA, handle, nil, 17)
	requireCode(t, err, CodeBadParameter, false)
	if message := err.Error(); strings.Contains(message, "device name") || !strings.Contains(message, "bad parameter") {
		t.Errorf("length error = %q, want a bad parameter message", message)
	}

	if err := service.WriteHalfDuplex(sessionA, handle, make([]byte, 16)); err != nil {
		t.Errorf("WriteHalfDuplex at the limit: %v", err)
	}
}

func TestTransferOnForeignHandle(t *testing.T) {
	service := newTestService(t, "spidev0.0")
	handle := service.mustOpen(t, sessionA, "spidev0.0")

	requireCode(t, service.WriteHalfDuplex(sessionB, handle, []byte{1}), CodeAccessViolation, true)
	if messages := service.fake.Messages(); len(messages) != 0 {
		t.Errorf("driver saw %d messages, want none", len(messages))
	}
}

func TestOwnershipCheckedBeforeParameters(t *testing.T) {
	service := newTestService(t, "spidev0.0", "spidev0.1")
	handle := service.mustOpen(t, sessionA, "spidev0.0")
	closed := service.mustOpen(t, sessionB, "spidev0.1")
	if err := service.Close(sessionB, closed); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"foreign handle oversized write", func() error {
			return service.WriteHalfDuplex(sessionB, handle, make([]byte, 17))
		}},
		{"foreign handle oversized full duplex", func() error {
			_, err := service.WriteReadFullDuplex(sessionB, handle, make([]byte, 17), 17)
			return err
		}},
		{"closed handle negative read", func() error {
			_, err := service.ReadHalfDuplex(sessionB, closed, -1)
			return err
		}},
		{"closed handle oversized write-read", func() error {
			_, err := service.WriteReadHalfDuplex(sessionB, closed, nil, 17)
			return err
		}},
		{"foreign handle invalid mode", func() error {
			_, err := service.Configure(sessionB, handle, spidev.Config{Mode: 7, BitsPerWord: 8})
			return err
		}},
		{"closed handle invalid bit order", func() error {
			_, err := service.Configure(sessionB, closed, spidev.Config{BitsPerWord: 8, BitOrder: 0x01})
			return err
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.call()
			if !errors.Is(err, devreg.ErrAccessViolation) {
				t.Errorf("error = %v, want access violation", err)
			}
			requireCode(t, err, CodeAccessViolation, true)
		})
	}
	if messages := service.fake.Messages(); len(messages) != 0 {
		t.Errorf("driver saw %d messages, want none", len(messages))
	}
	if calls := service.fake.ConfigureCalls(); calls != 0 {
		t.Errorf("driver saw %d configuration requests, want 0", calls)
	}
}

func TestSessionClosedReleasesOnlyThatSession(t *testing.T) {
	service := newTestService(t, "x", "y", "z")
	service.mustOpen(t, sessionA, "x")
	service.mustOpen(t, sessionA, "y")
	kept := service.mustOpen(t, sessionB, "z")

	service.SessionClosed(sessionA)

	entries := service.Status()
	if len(entries) != 1 || entries[0].Handle != kept || entries[0].Name != "z" {
		t.Fatalf("after cleanup Status = %+v, want only z", entries)
	}
	for _, name := range []string{"x", "y"} {
		if _, err := service.Open(sessionB, name); err != nil {
			t.Errorf("reopening %s after cleanup: %v", name, err)
		}
	}
}
