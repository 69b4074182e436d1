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

package schema

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Fields holds the typed values of a validated request. Accessors return the
// zero value for fields that were optional and absent.
type Fields struct {
	values map[string]interface{}
}

// Validate checks fields against specs in declaration order and stops at the
// first failure. Keys not declared in specs are ignored. A null value is
// treated as absent.
func Validate(fields map[string]json.RawMessage, specs []FieldSpec) (Fields, error) {
	out := Fields{values: make(map[string]interface{}, len(specs))}

	for _, spec := range specs {
		raw, ok := fields[spec.Name]
		if !ok || isNull(raw) {
			if spec.Required {
				return Fields{}, missing(spec.Name)
			}
			continue
		}

		v, err := convert(spec, raw)
		if err != nil {
			return Fields{}, err
		}
		out.values[spec.Name] = v
	}

	return out, nil
}

func convert(spec FieldSpec, raw json.RawMessage) (interface{}, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, invalid(spec.Name, "malformed value")
	}

	switch spec.Kind {
	case String:
		s, ok := v.(string)
		if !ok {
			return nil, invalid(spec.Name, "expected %s", spec.Kind)
		}
		if spec.Enum != nil {
			value, ok := spec.Enum.Lookup(s)
			if !ok {
				return nil, invalid(spec.Name, "unknown value %q", s)
			}
			return value, nil
		}
		return s, nil

	case Boolean:
		b, ok := v.(bool)
		if !ok {
			return nil, invalid(spec.Name, "expected %s", spec.Kind)
		}
		return b, nil

	case Integer:
		n, ok := v.(json.Number)
		if !ok {
			return nil, invalid(spec.Name, "expected %s", spec.Kind)
		}
		i, ok := integral(n)
		if !ok {
			return nil, invalid(spec.Name, "expected %s", spec.Kind)
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, invalid(spec.Name, "out of range")
		}
		return i, nil

	case Unsigned:
		n, ok := v.(json.Number)
		if !ok {
			return nil, invalid(spec.Name, "expected %s", spec.Kind)
		}
		i, ok := integral(n)
		if !ok {
			return nil, invalid(spec.Name, "expected %s", spec.Kind)
		}
		if i < 0 {
			return nil, invalid(spec.Name, "must not be negative")
		}
		if i > math.MaxUint32 {
			return nil, invalid(spec.Name, "out of range")
		}
		if spec.Max != 0 && uint32(i) > spec.Max {
			return nil, invalid(spec.Name, "must be at most %d", spec.Max)
		}
		return uint32(i), nil
	}

	return nil, invalid(spec.Name, "unsupported kind %s", spec.Kind)
}

// integral accepts plain integers and floats with no fractional part, such as
// 150000.0 or 1.5e5.
func integral(n json.Number) (int64, bool) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// Has reports whether the field was present.
func (f Fields) Has(name string) bool {
	_, ok := f.values[name]
	return ok
}

func (f Fields) String(name string) string {
	s, _ := f.values[name].(string)
	return s
}

func (f Fields) Int(name string) int64 {
	i, _ := f.values[name].(int64)
	return i
}

func (f Fields) Uint(name string) uint32 {
	u, _ := f.values[name].(uint32)
	return u
}

func (f Fields) Bool(name string) bool {
	b, _ := f.values[name].(bool)
	return b
}

// Enum returns the mapped value of an enumerated field.
func (f Fields) Enum(name string) int {
	v, _ := f.values[name].(int)
	return v
}
