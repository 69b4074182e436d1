// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"envyd/internal/audit"
	"envyd/internal/auth"
	"envyd/internal/device"
	"envyd/internal/dispatch"
	"envyd/internal/protocol"
	"envyd/internal/schema"

	"github.com/rs/zerolog"
)

const unknownAction = "unknown"

// Process runs the request pipeline on raw bytes: decode, resolve the
// action, validate, authorize, resolve the device, run the handler. It
// returns the Response to send, or a non-nil error when the device library
// reported a fatal status, in which case nothing must be sent.
func (s *Server) Process(ctx context.Context, raw []byte, peer string) (*protocol.Response, error) {
	start := time.Now()
	action := unknownAction
	var resp *protocol.Response
	var fatal error
	defer func() {
		if s.recorder != nil && resp != nil {
			s.recorder.ObserveRequest(action, resp.Status, time.Since(start))
		}
	}()

	req, err := protocol.Decode(raw)
	if err != nil {
		resp, fatal = s.respond(err)
		return resp, fatal
	}
	s.logRequest(req, peer)

	entry, ok := s.table.Resolve(req.Action)
	if !ok {
		resp = protocol.ErrorResponse(protocol.NewError(protocol.UndefinedInvalidAction,
			"could not resolve %q to any envyd or NVML action", req.Action))
		return resp, nil
	}
	action = entry.Name

	resp, fatal = s.run(ctx, entry, req, peer)
	return resp, fatal
}

func (s *Server) run(ctx context.Context, entry *dispatch.Entry, req *protocol.Request, peer string) (*protocol.Response, error) {
	specs := entry.Fields
	if entry.Privileged {
		specs = append(specs[:len(specs):len(specs)], s.gate.RequiredFields()...)
	}

	fields, err := schema.Validate(req.Fields, specs)
	if err != nil {
		return s.respond(err)
	}

	if entry.Privileged {
		record := audit.Entry{
			Time:        time.Now(),
			Action:      entry.Name,
			UUID:        fields.String(protocol.FieldUUID),
			Peer:        peer,
			Description: entry.Description(fields),
			Strategy:    s.gate.Name(),
		}

		decision := s.gate.Authorize(ctx, auth.Request{
			Action:      entry.Name,
			Description: record.Description,
			Bearer:      fields.String(protocol.FieldBearer),
			Peer:        peer,
		})
		record.Decision = decision.String()
		if s.recorder != nil {
			s.recorder.ObserveAuthorization(s.gate.Name(), decision)
		}

		var resp *protocol.Response
		if !decision.Allowed() {
			s.logger.Warn().
				Str("action", entry.Name).
				Str("peer", peer).
				Str("decision", decision.String()).
				Msg("Privileged action not authorized")
			resp, err = protocol.ErrorResponse(protocol.NewError(protocol.AuthorizationFailed,
				"authorization %s for %s", decision, entry.Name)), nil
		} else {
			resp, err = s.execute(ctx, entry, fields)
		}

		if resp != nil {
			record.Status = resp.Status
			s.audit(record)
		}
		return resp, err
	}

	return s.execute(ctx, entry, fields)
}

func (s *Server) execute(ctx context.Context, entry *dispatch.Entry, fields schema.Fields) (*protocol.Response, error) {
	var ref device.Ref
	if entry.NeedsDevice {
		var err error
		if ref, err = s.devices.Resolve(fields.String(protocol.FieldUUID)); err != nil {
			return s.respond(err)
		}
	}

	res, err := entry.Handler(ctx, s.devices, ref, fields)
	if err != nil {
		return s.respond(err)
	}

	resp, err := protocol.NewResponse(res.Data, res.Status, res.Description)
	if err != nil {
		return nil, &device.FatalError{Op: entry.Name, UUID: ref.UUID(), Status: device.ErrorUnknown}
	}
	return resp, nil
}

// respond is the single place an error becomes a Response. Fatal device
// errors, and errors of unknown kind, are returned instead.
func (s *Server) respond(err error) (*protocol.Response, error) {
	var (
		perr  *protocol.Error
		serr  *schema.Error
		derr  *device.Error
		fatal *device.FatalError
	)
	switch {
	case errors.As(err, &fatal):
		return nil, fatal
	case errors.As(err, &perr):
		return protocol.ErrorResponse(perr), nil
	case errors.As(err, &serr):
		return protocol.ErrorResponse(protocol.WrapError(protocol.InvalidJSONSchema, serr, serr.Error())), nil
	case errors.As(err, &derr):
		desc := derr.Error()
		return &protocol.Response{Status: derr.Status.String(), Description: &desc}, nil
	default:
		return nil, err
	}
}

func (s *Server) audit(e audit.Entry) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(e); err != nil {
		s.logger.Error().Err(err).Str("action", e.Action).Msg("Failed to write audit entry")
	}
}

// logRequest logs the request body at debug level with the bearer token
// redacted.
func (s *Server) logRequest(req *protocol.Request, peer string) {
	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		return
	}
	redacted := make(map[string]json.RawMessage, len(req.Fields))
	for k, v := range req.Fields {
		redacted[k] = v
	}
	if _, ok := redacted[protocol.FieldBearer]; ok {
		redacted[protocol.FieldBearer] = json.RawMessage(`"<redacted>"`)
	}
	body, _ := json.Marshal(redacted)
	s.logger.Debug().
		Str("action", req.Action).
		Str("peer", peer).
		RawJSON("fields", body).
		Msg("Request received")
}
