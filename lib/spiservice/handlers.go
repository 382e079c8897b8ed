// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package spiservice

import (
	"context"
	"errors"

	"github.com/bureau-foundation/spibroker/lib/codec"
	"github.com/bureau-foundation/spibroker/lib/devreg"
	"github.com/bureau-foundation/spibroker/lib/session"
	"github.com/bureau-foundation/spibroker/lib/spidev"
)

// Register binds the service's actions to server and registers
// SessionClosed as the server's disconnect callback.
func Register(server *session.Server, service *Service) {
	server.Handle(ActionOpen, service.handleOpen)
	server.Handle(ActionClose, service.handleClose)
	server.Handle(ActionConfigure, service.handleConfigure)
	server.Handle(ActionWriteHalfDuplex, service.handleWriteHalfDuplex)
	server.Handle(ActionReadHalfDuplex, service.handleReadHalfDuplex)
	server.Handle(ActionWriteReadHalfDuplex, service.handleWriteReadHalfDuplex)
	server.Handle(ActionWriteReadFullDuplex, service.handleWriteReadFullDuplex)
	server.Handle(ActionStatus, func(_ context.Context, _ session.ID, _ []byte) (any, error) {
		entries := service.Status()
		response := StatusResponse{
			DeviceDirectory: service.DeviceDirectory(),
			Sessions:        server.Sessions(),
			Devices:         make([]DeviceStatus, 0, len(entries)),
		}
		for _, entry := range entries {
			response.Devices = append(response.Devices, DeviceStatus{
				Handle:  uint64(entry.Handle),
				Device:  entry.Name,
				Session: uint64(entry.Owner),
			})
		}
		return response, nil
	})
	server.OnClose(service.SessionClosed)
}

func (s *Service) handleOpen(_ context.Context, caller session.ID, raw []byte) (any, error) {
	var request openRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	handle, err := s.Open(caller, request.Device)
	if err != nil {
		return nil, translate(err)
	}
	return OpenResponse{Handle: uint64(handle)}, nil
}

func (s *Service) handleClose(_ context.Context, caller session.ID, raw []byte) (any, error) {
	var request handleRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	return nil, translate(s.Close(caller, devreg.Handle(request.Handle)))
}

func (s *Service) handleConfigure(_ context.Context, caller session.ID, raw []byte) (any, error) {
	var request configureRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	readBack, err := s.Configure(caller, devreg.Handle(request.Handle), spidev.Config{
		Mode:        spidev.Mode(request.Mode),
		BitsPerWord: request.BitsPerWord,
		SpeedHz:     request.SpeedHz,
		BitOrder:    spidev.BitOrder(request.BitOrder),
	})
	if err != nil {
		return nil, translate(err)
	}
	return ConfigResponse{
		Mode:        uint8(readBack.Mode),
		BitsPerWord: readBack.BitsPerWord,
		SpeedHz:     readBack.SpeedHz,
		BitOrder:    uint8(readBack.BitOrder),
	}, nil
}

func (s *Service) handleWriteHalfDuplex(_ context.Context, caller session.ID, raw []byte) (any, error) {
	var request transferRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	return nil, translate(s.WriteHalfDuplex(caller, devreg.Handle(request.Handle), request.Write))
}

func (s *Service) handleReadHalfDuplex(_ context.Context, caller session.ID, raw []byte) (any, error) {
	var request transferRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	read, err := s.ReadHalfDuplex(caller, devreg.Handle(request.Handle), request.ReadLength)
	if err != nil {
		return nil, translate(err)
	}
	return ReadResponse{Read: read}, nil
}

func (s *Service) handleWriteReadHalfDuplex(_ context.Context, caller session.ID, raw []byte) (any, error) {
	var request transferRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	read, err := s.WriteReadHalfDuplex(caller, devreg.Handle(request.Handle), request.Write, request.ReadLength)
	if err != nil {
		return nil, translate(err)
	}
	return ReadResponse{Read: read}, nil
}

func (s *Service) handleWriteReadFullDuplex(_ context.Context, caller session.ID, raw []byte) (any, error) {
	var request transferRequest
	if err := decode(raw, &request); err != nil {
		return nil, err
	}
	read, err := s.WriteReadFullDuplex(caller, devreg.Handle(request.Handle), request.Write, request.ReadLength)
	if err != nil {
		return nil, translate(err)
	}
	return ReadResponse{Read: read}, nil
}

func decode(raw []byte, request any) error {
	if err := codec.Unmarshal(raw, request); err != nil {
		return &session.ResultError{Code: session.CodeInvalidRequest, Err: err}
	}
	return nil
}

// translate maps registry and bus errors to the result vocabulary seen
// by callers. Access and precondition violations end the session.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, devreg.ErrAccessViolation):
		return &session.TerminateError{Code: CodeAccessViolation, Err: err}
	case errors.Is(err, spidev.ErrShortReadBuffer):
		return &session.TerminateError{Code: CodePreconditionViolation, Err: err}
	case errors.Is(err, devreg.ErrBadParameter):
		return &session.ResultError{Code: CodeBadParameter, Err: err}
	case errors.Is(err, devreg.ErrNotFound):
		return &session.ResultError{Code: CodeNotFound, Err: err}
	case errors.Is(err, devreg.ErrPermissionDenied):
		return &session.ResultError{Code: CodePermissionDenied, Err: err}
	case errors.Is(err, devreg.ErrDuplicate):
		return &session.ResultError{Code: CodeDuplicate, Err: err}
	default:
		return &session.ResultError{Code: CodeFault, Err: err}
	}
}
