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

// Package protocol implements the JSON envelope spoken on the envyd socket.
//
// A client writes one request object and reads back exactly one response of
// the fixed shape {"data": ..., "status": "...", "description": ...}. The
// status is either a device-library status name or one of the protocol
// ErrorCodes defined here.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ErrorCode is a protocol-level failure, distinct from device-library statuses.
type ErrorCode string

const (
	JSONParsingFailed      ErrorCode = "JSON_PARSING_FAILED"
	InvalidJSONSchema      ErrorCode = "INVALID_JSON_SCHEMA"
	AuthorizationFailed    ErrorCode = "AUTHORIZATION_FAILED"
	UndefinedInvalidAction ErrorCode = "UNDEFINED_INVALID_ACTION"
)

// Reserved field names shared by every action.
const (
	FieldAction = "action"
	FieldUUID   = "uuid"
	FieldBearer = "bearer"
)

// Error is a request-scoped failure that is always answered with a Response.
type Error struct {
	Code        ErrorCode
	Description string
	Err         error
}

// NewError builds an Error with a formatted description.
func NewError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...)}
}

// WrapError builds an Error that keeps the underlying cause for logging.
// The cause is never sent to the client beyond what the description says.
func WrapError(code ErrorCode, err error, description string) *Error {
	return &Error{Code: code, Description: description, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Request is a decoded client request. Fields holds every top-level key
// except "action", undecoded, so each action validates only what it declares.
type Request struct {
	Action string
	Fields map[string]json.RawMessage
}

// Field returns the raw JSON value of a top-level key.
func (r *Request) Field(name string) (json.RawMessage, bool) {
	raw, ok := r.Fields[name]
	return raw, ok
}

// Response is the three-field envelope written back for every request.
// A nil Data encodes as null; a nil Description encodes as null.
type Response struct {
	Data        json.RawMessage `json:"data"`
	Status      string          `json:"status"`
	Description *string         `json:"description"`
}

// DescriptionText returns the description or "" when it is null.
func (r *Response) DescriptionText() string {
	if r.Description == nil {
		return ""
	}
	return *r.Description
}

// ErrorResponse renders a protocol error as a Response with null data.
func ErrorResponse(err *Error) *Response {
	return &Response{
		Status:      string(err.Code),
		Description: optional(err.Description),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
