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
	"slices"
	"time"

	"envyd/internal/logger"
	"envyd/internal/protocol"
	"envyd/internal/schema"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/argon2"
)

const minSecretLength = 16

// BearerConfig configures the bearer token strategy.
type BearerConfig struct {
	Secret          string
	Issuer          string
	Audience        string
	SingleUse       bool
	ReplayCacheSize int
}

// Claims represents the claims in an envyd bearer token
type Claims struct {
	jwt.RegisteredClaims
	// Actions restricts the token to the listed actions. Empty means any
	// privileged action.
	Actions []string `json:"actions,omitempty"`
	// SingleUse marks a token that must be rejected after its first use
	// even when the daemon does not enforce single use globally.
	SingleUse bool `json:"single_use,omitempty"`
}

// TokenOptions describes a token to issue.
type TokenOptions struct {
	Subject   string
	TTL       time.Duration
	Actions   []string
	SingleUse bool
}

// BearerGate accepts privileged requests that carry a valid HS256 token.
type BearerGate struct {
	key       []byte
	issuer    string
	audience  string
	singleUse bool
	replay    *ReplayCache
	logger    zerolog.Logger
	now       func() time.Time
}

// DeriveKey stretches the configured secret into the HMAC signing key with
// argon2id, salted by the issuer so one secret yields distinct keys per
// issuer.
func DeriveKey(secret, issuer string) []byte {
	salt := []byte("envyd-bearer:" + issuer)
	return argon2.IDKey([]byte(secret), salt, 1, 64*1024, 4, 32)
}

// NewBearerGate creates a bearer token gate
func NewBearerGate(cfg BearerConfig) (*BearerGate, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("bearer secret must be at least %d characters", minSecretLength)
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "envyd"
	}
	return &BearerGate{
		key:       DeriveKey(cfg.Secret, cfg.Issuer),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		singleUse: cfg.SingleUse,
		replay:    NewReplayCache(cfg.ReplayCacheSize),
		logger:    logger.GetLogger("auth"),
		now:       time.Now,
	}, nil
}

func (g *BearerGate) Name() string { return StrategyBearer }

// RequiredFields makes a missing token a validation failure.
func (g *BearerGate) RequiredFields() []schema.FieldSpec {
	return []schema.FieldSpec{schema.Required(protocol.FieldBearer, schema.String)}
}

// Issue creates a signed token
func (g *BearerGate) Issue(opts TokenOptions) (string, error) {
	if opts.TTL <= 0 {
		return "", fmt.Errorf("token ttl must be positive")
	}
	now := g.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   opts.Subject,
			Issuer:    g.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(opts.TTL)),
		},
		Actions:   opts.Actions,
		SingleUse: opts.SingleUse,
	}
	if g.audience != "" {
		claims.Audience = jwt.ClaimStrings{g.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.key)
}

// Verify validates a token and returns its claims
func (g *BearerGate) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(g.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(g.now),
	}
	if g.audience != "" {
		opts = append(opts, jwt.WithAudience(g.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return g.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (g *BearerGate) Authorize(ctx context.Context, req Request) Decision {
	claims, err := g.Verify(req.Bearer)
	if err != nil {
		g.logger.Warn().
			Str("action", req.Action).
			Str("peer", req.Peer).
			Err(err).
			Msg("Rejected bearer token")
		return Denied
	}

	if len(claims.Actions) > 0 && !slices.Contains(claims.Actions, req.Action) {
		g.logger.Warn().
			Str("action", req.Action).
			Str("subject", claims.Subject).
			Strs("allowed", claims.Actions).
			Msg("Bearer token not valid for action")
		return Denied
	}

	if g.singleUse || claims.SingleUse {
		if claims.ID == "" {
			g.logger.Warn().Str("subject", claims.Subject).Msg("Single-use token without an ID")
			return Denied
		}
		if !g.replay.FirstUse(claims.ID, claims.ExpiresAt.Time) {
			g.logger.Warn().
				Str("action", req.Action).
				Str("subject", claims.Subject).
				Str("token_id", claims.ID).
				Msg("Bearer token replayed")
			return Denied
		}
	}

	g.logger.Debug().
		Str("action", req.Action).
		Str("subject", claims.Subject).
		Msg("Bearer token accepted")
	return Granted
}
