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

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// padding is stripped from the end of a read buffer before parsing. Clients
// that write fixed-size NUL-padded buffers are accepted.
const padding = "\x00 \t\r\n"

// Decode parses one request object. Any structurally invalid input yields
// JSON_PARSING_FAILED; a well-formed object without a string "action" yields
// INVALID_JSON_SCHEMA.
func Decode(b []byte) (*Request, error) {
	trimmed := bytes.Trim(b, padding)
	if len(trimmed) == 0 {
		return nil, NewError(JSONParsingFailed, "failed to parse request: empty body")
	}

	var obj map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(&obj); err != nil {
		return nil, WrapError(JSONParsingFailed, err, "failed to parse request: "+err.Error())
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, NewError(JSONParsingFailed, "failed to parse request: trailing data after JSON object")
	}
	if obj == nil {
		return nil, NewError(JSONParsingFailed, "failed to parse request: not a JSON object")
	}

	raw, ok := obj[FieldAction]
	if !ok {
		return nil, NewError(InvalidJSONSchema, "missing field: %s", FieldAction)
	}
	var action string
	if isNull(raw) || json.Unmarshal(raw, &action) != nil {
		return nil, NewError(InvalidJSONSchema, "invalid field: %s: expected string", FieldAction)
	}
	delete(obj, FieldAction)

	return &Request{Action: action, Fields: obj}, nil
}

// Complete reports whether b already holds one full JSON value, ignoring
// trailing padding. Readers use it to stop waiting for EOF.
func Complete(b []byte) bool {
	trimmed := bytes.Trim(b, padding)
	return len(trimmed) > 0 && json.Valid(trimmed)
}

// ParseResponse decodes a response envelope, as a client would.
func ParseResponse(b []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(bytes.Trim(b, padding), &resp); err != nil {
		return nil, err
	}
	if isNull(resp.Data) {
		resp.Data = nil
	}
	return &resp, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
