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

// Package auth decides whether a privileged action may run.
//
// A Gate is consulted only for actions that mutate device state, after the
// request has been validated and before the handler touches any device. It
// never calls into the device library. Anything other than Granted denies.
package auth

import (
	"context"
	"fmt"

	"envyd/internal/schema"
)

// Decision is the outcome of one authorization check.
type Decision int

const (
	// Indeterminate is the zero value and is treated as a denial.
	Indeterminate Decision = iota
	Granted
	Denied
)

func (d Decision) String() string {
	switch d {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "indeterminate"
	}
}

// Allowed is true only for Granted.
func (d Decision) Allowed() bool {
	return d == Granted
}

// Request describes the privileged action being authorized.
type Request struct {
	Action string
	// Description is a human-readable summary shown to a person approving
	// the action.
	Description string
	// Bearer is the token from the request, if the gate asked for one.
	Bearer string
	// Peer identifies the connecting process, when known.
	Peer string
}

// Gate is an authorization strategy.
type Gate interface {
	// Name identifies the strategy in logs and metrics.
	Name() string
	// RequiredFields are validated together with the action's own fields.
	RequiredFields() []schema.FieldSpec
	Authorize(ctx context.Context, req Request) Decision
}

// Strategy names accepted in configuration.
const (
	StrategyBearer   = "bearer"
	StrategyConsent  = "consent"
	StrategyInsecure = "insecure"
)

// Strategies lists the accepted strategy names.
func Strategies() []string {
	return []string{StrategyBearer, StrategyConsent, StrategyInsecure}
}

// ErrUnknownStrategy is returned by New for unsupported strategies.
type ErrUnknownStrategy string

func (e ErrUnknownStrategy) Error() string {
	return fmt.Sprintf("unknown authorization strategy %q", string(e))
}
