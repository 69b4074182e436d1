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
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"envyd/internal/logger"
	"envyd/internal/schema"

	"github.com/rs/zerolog"
)

// Answer is a person's response to a consent prompt.
type Answer int

const (
	Cancel Answer = iota
	Yes
	No
)

func (a Answer) String() string {
	switch a {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "cancel"
	}
}

// Prompt is what a Dialog shows.
type Prompt struct {
	Title string
	Body  string
}

// Dialog asks a person to approve a privileged action. Implementations must
// return promptly once ctx is done.
type Dialog interface {
	Ask(ctx context.Context, p Prompt) (Answer, error)
}

// ConsentGate asks a person through a Dialog. Only one prompt is shown at a
// time; waiting for the dialog and waiting for the answer share the timeout.
type ConsentGate struct {
	dialog  Dialog
	timeout time.Duration
	slot    chan struct{}
	logger  zerolog.Logger
}

// DefaultConsentTimeout bounds how long a prompt waits for an answer.
const DefaultConsentTimeout = 60 * time.Second

// NewConsentGate creates a consent gate
func NewConsentGate(dialog Dialog, timeout time.Duration) *ConsentGate {
	if timeout <= 0 {
		timeout = DefaultConsentTimeout
	}
	return &ConsentGate{
		dialog:  dialog,
		timeout: timeout,
		slot:    make(chan struct{}, 1),
		logger:  logger.GetLogger("auth"),
	}
}

func (g *ConsentGate) Name() string { return StrategyConsent }

func (g *ConsentGate) RequiredFields() []schema.FieldSpec { return nil }

func (g *ConsentGate) Authorize(ctx context.Context, req Request) Decision {
	if g.dialog == nil {
		return Indeterminate
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	select {
	case g.slot <- struct{}{}:
		defer func() { <-g.slot }()
	case <-ctx.Done():
		g.logger.Warn().Str("action", req.Action).Msg("Timed out waiting for another consent prompt")
		return Denied
	}

	answer, err := g.dialog.Ask(ctx, promptFor(req))
	if ctx.Err() != nil {
		g.logger.Warn().Str("action", req.Action).Dur("timeout", g.timeout).Msg("Consent prompt timed out")
		return Denied
	}
	if err != nil {
		g.logger.Error().Err(err).Str("action", req.Action).Msg("Consent dialog failed")
		return Indeterminate
	}

	g.logger.Info().
		Str("action", req.Action).
		Str("peer", req.Peer).
		Str("answer", answer.String()).
		Msg("Consent answered")

	if answer == Yes {
		return Granted
	}
	return Denied
}

func promptFor(req Request) Prompt {
	body := req.Description
	if body == "" {
		body = req.Action
	}
	if req.Peer != "" {
		body = fmt.Sprintf("%s\n\nRequested by %s", body, req.Peer)
	}
	return Prompt{Title: "envyd: allow privileged GPU operation?", Body: body}
}

// CommandDialog runs an external program, appending the prompt body as the
// last argument. Exit status 0 means yes, 1 means no, anything else cancels.
// The prompt is also exported as ENVYD_PROMPT_TITLE and ENVYD_PROMPT_BODY.
type CommandDialog struct {
	Command []string
}

func (d *CommandDialog) Ask(ctx context.Context, p Prompt) (Answer, error) {
	if len(d.Command) == 0 {
		return Cancel, errors.New("consent command is not configured")
	}

	args := append(append([]string{}, d.Command[1:]...), p.Body)
	cmd := exec.CommandContext(ctx, d.Command[0], args...)
	cmd.Env = append(os.Environ(),
		"ENVYD_PROMPT_TITLE="+p.Title,
		"ENVYD_PROMPT_BODY="+p.Body,
	)

	err := cmd.Run()
	if err == nil {
		return Yes, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return Cancel, ctx.Err()
		}
		if exitErr.ExitCode() == 1 {
			return No, nil
		}
		return Cancel, nil
	}
	return Cancel, fmt.Errorf("failed to run consent command: %w", err)
}
