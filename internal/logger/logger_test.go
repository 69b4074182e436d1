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

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetFormat(FORMAT_JSON)
	SetOutput(&buf)
	t.Cleanup(func() {
		SetFormat(FORMAT_CONSOLE)
		SetSilentMode(true)
	})
	return &buf
}

func TestGetLogger(t *testing.T) {
	buf := capture(t)
	SetLevel(LOG_INFO)

	log := GetLogger("server")
	log.Info().Str("action", "nvmlDeviceGetMemoryInfo").Msg("handled")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "server", line["component"])
	assert.Equal(t, "nvmlDeviceGetMemoryInfo", line["action"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "handled", line["message"])
	assert.Contains(t, line, "time")
}

func TestSetLevel(t *testing.T) {
	buf := capture(t)

	SetLevel(LOG_WARN)
	Info("dropped")
	Debug("dropped")
	assert.Empty(t, buf.String())

	Warn("kept")
	assert.Contains(t, buf.String(), "kept")

	buf.Reset()
	SetLevel(LOG_DEBUG)
	Debug("verbose")
	assert.Contains(t, buf.String(), "verbose")

	buf.Reset()
	SetLevel("nonsense")
	Debug("hidden")
	Error(errors.New("boom"), "failed")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestSetFormat(t *testing.T) {
	buf := capture(t)
	SetLevel(LOG_INFO)

	SetFormat("xml")
	Info("console line")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
	assert.Contains(t, buf.String(), "console line")
}
