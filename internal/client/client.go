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

// Package client talks to a running envyd over its Unix socket.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"envyd/internal/device"
	"envyd/internal/protocol"
	"envyd/internal/server"
)

// DefaultTimeout bounds a whole request, including a consent prompt.
const DefaultTimeout = 90 * time.Second

// Client sends one request per connection.
type Client struct {
	SocketPath string
	Timeout    time.Duration
	// Bearer is attached to privileged calls when set.
	Bearer string
}

// New creates a client for the socket at path.
func New(path string) *Client {
	if path == "" {
		path = server.DefaultSocketPath
	}
	return &Client{SocketPath: path, Timeout: DefaultTimeout}
}

// Raw writes b as the request and returns the unparsed reply. An empty
// reply means the daemon dropped the connection without answering.
func (c *Client) Raw(ctx context.Context, b []byte) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.SocketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := conn.Write(b); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		uc.CloseWrite()
	}

	reply, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return reply, nil
}

// Do sends a request object and parses the envelope.
func (c *Client) Do(ctx context.Context, req map[string]interface{}) (*protocol.Response, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	reply, err := c.Raw(ctx, b)
	if err != nil {
		return nil, err
	}
	if len(reply) == 0 {
		return nil, fmt.Errorf("daemon closed the connection without a response")
	}
	return protocol.ParseResponse(reply)
}

// Call sends action with fields, adding the bearer token when configured.
func (c *Client) Call(ctx context.Context, action string, fields map[string]interface{}) (*protocol.Response, error) {
	req := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		req[k] = v
	}
	req[protocol.FieldAction] = action
	if c.Bearer != "" {
		if _, ok := req[protocol.FieldBearer]; !ok {
			req[protocol.FieldBearer] = c.Bearer
		}
	}
	return c.Do(ctx, req)
}

// StatusError is returned by Result for any status other than SUCCESS.
type StatusError struct {
	Status      string
	Description string
}

func (e *StatusError) Error() string {
	if e.Description == "" {
		return e.Status
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Description)
}

// Result calls action and decodes the data of a successful response into out.
// out may be nil for commands.
func (c *Client) Result(ctx context.Context, action string, fields map[string]interface{}, out interface{}) error {
	resp, err := c.Call(ctx, action, fields)
	if err != nil {
		return err
	}
	if resp.Status != device.Success.String() {
		return &StatusError{Status: resp.Status, Description: resp.DescriptionText()}
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", action, err)
	}
	return nil
}
