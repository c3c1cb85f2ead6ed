// Package token issues and verifies queue access tokens as HS256 JWTs.
package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/srgjo27/ticket_engine/internal/core/ports"
	"github.com/srgjo27/ticket_engine/internal/platform/clock"
)

const issuer = "ticket-engine/admission"

type accessClaims struct {
	QueueID   string `json:"qid"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type JWTIssuer struct {
	secret []byte
	clock  clock.Clock
}

func NewJWTIssuer(secret string, c clock.Clock) (*JWTIssuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if c == nil {
		c = clock.Real()
	}
	return &JWTIssuer{secret: []byte(secret), clock: c}, nil
}

func (j *JWTIssuer) Issue(c ports.AccessClaims) (string, error) {
	now := j.clock.Now()
	claims := accessClaims{
		QueueID:   c.QueueID,
		SessionID: c.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   c.EntryID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func (j *JWTIssuer) Verify(raw string) (*ports.AccessClaims, error) {
	var claims accessClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.clock.Now),
	)
	if err != nil {
		return nil, err
	}
	if !tok.Valid || claims.Subject == "" {
		return nil, errors.New("access token is not valid")
	}
	return &ports.AccessClaims{
		EntryID:   claims.Subject,
		QueueID:   claims.QueueID,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
