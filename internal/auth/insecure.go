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

package auth

import (
	"context"
	"fmt"
	"time"

	"envyd/internal/logger"
	"envyd/internal/schema"
)

// InsecureGate grants everything. It exists for development machines
// without a person or token issuer at hand.
type InsecureGate struct{}

func (InsecureGate) Name() string                       { return StrategyInsecure }
func (InsecureGate) RequiredFields() []schema.FieldSpec { return nil }

func (InsecureGate) Authorize(ctx context.Context, req Request) Decision {
	return Granted
}

// Dialog kinds for the consent strategy.
const (
	DialogCommand  = "command"
	DialogTerminal = "terminal"
)

// Options selects and configures a strategy.
type Options struct {
	Strategy       string
	Bearer         BearerConfig
	Dialog         string
	Command        []string
	ConsentTimeout time.Duration
}

// New builds the Gate named by opts.Strategy.
func New(opts Options) (Gate, error) {
	switch opts.Strategy {
	case StrategyBearer:
		return NewBearerGate(opts.Bearer)

	case StrategyConsent:
		var dialog Dialog
		switch opts.Dialog {
		case DialogCommand:
			if len(opts.Command) == 0 {
				return nil, fmt.Errorf("consent dialog %q requires a command", DialogCommand)
			}
			dialog = &CommandDialog{Command: opts.Command}
		case DialogTerminal, "":
			dialog = &TerminalDialog{}
		default:
			return nil, fmt.Errorf("unknown consent dialog %q", opts.Dialog)
		}
		return NewConsentGate(dialog, opts.ConsentTimeout), nil

	case StrategyInsecure:
		l := logger.GetLogger("auth")
		l.Warn().Msg("Authorization is disabled: every privileged request will be granted")
		return InsecureGate{}, nil

	default:
		return nil, ErrUnknownStrategy(opts.Strategy)
	}
}
