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

package schema_test

import (
	"encoding/json"
	"errors"
	"testing"

	"envyd/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	scopeGPU = iota
	scopeModule
	scopeMemory
)

var powerScope = schema.NewEnumeration(
	schema.EnumValue{Name: "SCOPE_GPU", Value: scopeGPU, Aliases: []string{"NVML_POWER_SCOPE_GPU"}},
	schema.EnumValue{Name: "SCOPE_MODULE", Value: scopeModule},
	schema.EnumValue{Name: "SCOPE_MEMORY", Value: scopeMemory},
)

func body(t *testing.T, js string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(js), &m))
	return m
}

func requireSchemaError(t *testing.T, err error, want string) {
	t.Helper()
	var serr *schema.Error
	require.True(t, errors.As(err, &serr), "expected *schema.Error, got %v", err)
	assert.Equal(t, want, serr.Error())
}

func TestValidate(t *testing.T) {
	specs := []schema.FieldSpec{
		schema.Required("uuid", schema.String),
		schema.OneOf("powerScope", powerScope),
		schema.Required("powerValueMw", schema.Unsigned),
	}

	t.Run("accepts a well-formed body", func(t *testing.T) {
		fields, err := schema.Validate(body(t, `{"uuid":"GPU-1","powerScope":"SCOPE_MEMORY","powerValueMw":150000,"extra":true}`), specs)
		require.NoError(t, err)

		assert.Equal(t, "GPU-1", fields.String("uuid"))
		assert.Equal(t, scopeMemory, fields.Enum("powerScope"))
		assert.Equal(t, uint32(150000), fields.Uint("powerValueMw"))
		assert.False(t, fields.Has("extra"))
	})

	t.Run("accepts enumeration aliases", func(t *testing.T) {
		fields, err := schema.Validate(body(t, `{"uuid":"GPU-1","powerScope":"NVML_POWER_SCOPE_GPU","powerValueMw":1}`), specs)
		require.NoError(t, err)
		assert.Equal(t, scopeGPU, fields.Enum("powerScope"))
	})

	t.Run("reports the first failure in declaration order", func(t *testing.T) {
		_, err := schema.Validate(body(t, `{"powerScope":"bogus","powerValueMw":-1}`), specs)
		requireSchemaError(t, err, "missing field: uuid")

		_, err = schema.Validate(body(t, `{"uuid":"GPU-1","powerScope":"bogus","powerValueMw":-1}`), specs)
		requireSchemaError(t, err, `invalid field: powerScope: unknown value "bogus"`)
	})

	t.Run("treats null as missing", func(t *testing.T) {
		_, err := schema.Validate(body(t, `{"uuid":null}`), specs)
		requireSchemaError(t, err, "missing field: uuid")
	})

	cases := []struct {
		name string
		body string
		want string
	}{
		{"number for string", `{"uuid":5,"powerScope":"SCOPE_GPU","powerValueMw":1}`, "invalid field: uuid: expected string"},
		{"string for number", `{"uuid":"u","powerScope":"SCOPE_GPU","powerValueMw":"1"}`, "invalid field: powerValueMw: expected non-negative integer"},
		{"negative unsigned", `{"uuid":"u","powerScope":"SCOPE_GPU","powerValueMw":-5}`, "invalid field: powerValueMw: must not be negative"},
		{"fractional", `{"uuid":"u","powerScope":"SCOPE_GPU","powerValueMw":1.5}`, "invalid field: powerValueMw: expected non-negative integer"},
		{"too large", `{"uuid":"u","powerScope":"SCOPE_GPU","powerValueMw":4294967296}`, "invalid field: powerValueMw: out of range"},
		{"enum is case sensitive", `{"uuid":"u","powerScope":"scope_gpu","powerValueMw":1}`, `invalid field: powerScope: unknown value "scope_gpu"`},
	}
	for _, tc := range cases {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			_, err := schema.Validate(body(t, tc.body), specs)
			requireSchemaError(t, err, tc.want)
		})
	}
}

func TestValidateKinds(t *testing.T) {
	specs := []schema.FieldSpec{
		schema.Required("temperature", schema.Integer),
		schema.Required("isRestricted", schema.Boolean),
		schema.Required("speed", schema.Unsigned).AtMost(100),
		schema.Optional("sensor", schema.String),
	}

	t.Run("accepts negative integers and integral floats", func(t *testing.T) {
		fields, err := schema.Validate(body(t, `{"temperature":-10,"isRestricted":false,"speed":1e2}`), specs)
		require.NoError(t, err)
		assert.Equal(t, int64(-10), fields.Int("temperature"))
		assert.False(t, fields.Bool("isRestricted"))
		assert.True(t, fields.Has("isRestricted"))
		assert.Equal(t, uint32(100), fields.Uint("speed"))
		assert.False(t, fields.Has("sensor"))
		assert.Equal(t, "", fields.String("sensor"))
	})

	t.Run("enforces the upper bound", func(t *testing.T) {
		_, err := schema.Validate(body(t, `{"temperature":1,"isRestricted":true,"speed":101}`), specs)
		requireSchemaError(t, err, "invalid field: speed: must be at most 100")
	})

	t.Run("bounds integers to 32 bits", func(t *testing.T) {
		_, err := schema.Validate(body(t, `{"temperature":4294967296,"isRestricted":true,"speed":1}`), specs)
		requireSchemaError(t, err, "invalid field: temperature: out of range")
	})

	t.Run("rejects a string for a boolean", func(t *testing.T) {
		_, err := schema.Validate(body(t, `{"temperature":1,"isRestricted":"yes","speed":1}`), specs)
		requireSchemaError(t, err, "invalid field: isRestricted: expected boolean")
	})
}

func TestEnumeration(t *testing.T) {
	assert.Equal(t, []string{"SCOPE_GPU", "SCOPE_MEMORY", "SCOPE_MODULE"}, powerScope.Names())

	name, ok := powerScope.Name(scopeModule)
	require.True(t, ok)
	assert.Equal(t, "SCOPE_MODULE", name)

	_, ok = powerScope.Lookup("SCOPE_UNKNOWN")
	assert.False(t, ok)
}
