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

package protocol_test

import (
	"encoding/json"
	"errors"
	"testing"

	"envyd/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireCode(t *testing.T, err error, code protocol.ErrorCode) *protocol.Error {
	t.Helper()
	var perr *protocol.Error
	require.True(t, errors.As(err, &perr), "expected *protocol.Error, got %v", err)
	assert.Equal(t, code, perr.Code)
	return perr
}

func TestDecode(t *testing.T) {
	t.Run("decodes action and keeps remaining fields raw", func(t *testing.T) {
		req, err := protocol.Decode([]byte(`{"uuid":"GPU-1","action":"nvmlDeviceGetMemoryInfo","fan":2}`))
		require.NoError(t, err)

		assert.Equal(t, "nvmlDeviceGetMemoryInfo", req.Action)
		assert.Len(t, req.Fields, 2)
		raw, ok := req.Field("uuid")
		require.True(t, ok)
		assert.JSONEq(t, `"GPU-1"`, string(raw))
		_, ok = req.Field("action")
		assert.False(t, ok)
	})

	t.Run("tolerates trailing NUL padding", func(t *testing.T) {
		buf := make([]byte, 64)
		n := copy(buf, `{"action":"nvmlDeviceGetDetailsAll"}`)
		require.Less(t, n, len(buf))

		req, err := protocol.Decode(buf)
		require.NoError(t, err)
		assert.Equal(t, "nvmlDeviceGetDetailsAll", req.Action)
	})

	malformed := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"only padding", "\x00\x00\x00"},
		{"truncated object", `{"action":"nvmlDeviceGetMemoryInfo","uu`},
		{"not json", `hello`},
		{"array", `[1,2,3]`},
		{"string", `"action"`},
		{"null", `null`},
		{"trailing garbage", `{"action":"x"} {"action":"y"}`},
	}
	for _, tc := range malformed {
		t.Run("rejects malformed input: "+tc.name, func(t *testing.T) {
			_, err := protocol.Decode([]byte(tc.input))
			requireCode(t, err, protocol.JSONParsingFailed)
		})
	}

	t.Run("reports missing action as schema error", func(t *testing.T) {
		_, err := protocol.Decode([]byte(`{"uuid":"GPU-1"}`))
		perr := requireCode(t, err, protocol.InvalidJSONSchema)
		assert.Equal(t, "missing field: action", perr.Description)
	})

	t.Run("reports non-string action as schema error", func(t *testing.T) {
		for _, input := range []string{`{"action":5}`, `{"action":null}`, `{"action":{}}`} {
			_, err := protocol.Decode([]byte(input))
			perr := requireCode(t, err, protocol.InvalidJSONSchema)
			assert.Equal(t, "invalid field: action: expected string", perr.Description)
		}
	})
}

func TestComplete(t *testing.T) {
	assert.True(t, protocol.Complete([]byte(`{"action":"a"}`)))
	assert.True(t, protocol.Complete([]byte("{\"action\":\"a\"}\x00\x00")))
	assert.False(t, protocol.Complete([]byte(`{"action":"a"`)))
	assert.False(t, protocol.Complete(nil))
}

func TestEncode(t *testing.T) {
	t.Run("encodes memory info success exactly", func(t *testing.T) {
		type memory struct {
			Total    uint64 `json:"total"`
			Free     uint64 `json:"free"`
			Used     uint64 `json:"used"`
			Reserved uint64 `json:"reserved"`
		}
		out, err := protocol.Encode(memory{Total: 8192, Free: 4096, Used: 4096}, "SUCCESS", "")
		require.NoError(t, err)
		assert.Equal(t,
			`{"data":{"total":8192,"free":4096,"used":4096,"reserved":0},"status":"SUCCESS","description":null}`,
			string(out))
	})

	t.Run("encodes absent data as null", func(t *testing.T) {
		out, err := protocol.Encode(nil, "INVALID_JSON_SCHEMA", "missing field: bearer")
		require.NoError(t, err)
		assert.Equal(t, `{"data":null,"status":"INVALID_JSON_SCHEMA","description":"missing field: bearer"}`, string(out))
	})

	t.Run("passes raw JSON through", func(t *testing.T) {
		out, err := protocol.Encode(json.RawMessage(`[1,2]`), "SUCCESS", "ok")
		require.NoError(t, err)
		assert.Equal(t, `{"data":[1,2],"status":"SUCCESS","description":"ok"}`, string(out))
	})

	t.Run("does not escape html characters", func(t *testing.T) {
		out, err := protocol.Encode(nil, "SUCCESS", "a<b>&c")
		require.NoError(t, err)
		assert.Contains(t, string(out), `"a<b>&c"`)
	})

	t.Run("refuses an empty status", func(t *testing.T) {
		_, err := protocol.Encode(nil, "", "")
		assert.Error(t, err)
	})
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name        string
		data        interface{}
		status      string
		description string
		wantData    string
	}{
		{"object data", map[string]int{"count": 2}, "SUCCESS", "done", `{"count":2}`},
		{"null data", nil, "ERROR_NOT_FOUND", "no such device", ""},
		{"null description", []string{"a"}, "SUCCESS", "", `["a"]`},
		{"scalar data", 42, "SUCCESS", "", `42`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := protocol.Encode(tc.data, tc.status, tc.description)
			require.NoError(t, err)

			var keys map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(out, &keys))
			assert.Len(t, keys, 3)

			resp, err := protocol.ParseResponse(out)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.Status)
			assert.Equal(t, tc.description, resp.DescriptionText())
			if tc.description == "" {
				assert.Nil(t, resp.Description)
			}
			if tc.wantData == "" {
				assert.Nil(t, resp.Data)
			} else {
				assert.JSONEq(t, tc.wantData, string(resp.Data))
			}
		})
	}
}

func TestErrorResponse(t *testing.T) {
	resp := protocol.ErrorResponse(protocol.NewError(protocol.UndefinedInvalidAction, "unknown action: %q", "doesNotExist"))
	out, err := resp.Marshal()
	require.NoError(t, err)
	assert.Equal(t, `{"data":null,"status":"UNDEFINED_INVALID_ACTION","description":"unknown action: \"doesNotExist\""}`, string(out))
}
