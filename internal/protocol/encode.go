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
	"fmt"
)

// NewResponse builds a Response from a handler outcome. A nil data value and
// an empty description are both rendered as null.
func NewResponse(data interface{}, status string, description string) (*Response, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	return &Response{
		Data:        raw,
		Status:      status,
		Description: optional(description),
	}, nil
}

// Encode renders the response envelope. The output always carries exactly
// the keys data, status, and description, in that order.
func Encode(data interface{}, status string, description string) ([]byte, error) {
	resp, err := NewResponse(data, status, description)
	if err != nil {
		return nil, err
	}
	return resp.Marshal()
}

// Marshal renders r as compact JSON without HTML escaping.
func (r *Response) Marshal() ([]byte, error) {
	if r.Status == "" {
		return nil, fmt.Errorf("response status must not be empty")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func marshalData(data interface{}) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if isNull(v) {
			return nil, nil
		}
		return v, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return nil, fmt.Errorf("failed to encode response data: %w", err)
	}
	raw := bytes.TrimRight(buf.Bytes(), "\n")
	if isNull(raw) {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}
