// Package auth verifies bearer credentials presented in join frames.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// ErrExpiredToken is wrapped together with core.ErrInvalidCredential.
var ErrExpiredToken = errors.New("token has expired")

type JWTConfig struct {
	SecretKey string
	Issuer    string
	// TokenDuration is only used when minting.
	TokenDuration time.Duration
}

// JWTVerifier implements core.TokenVerifier for HS256 tokens carrying the
// chat user id in the subject claim.
type JWTVerifier struct {
	config JWTConfig
}

func NewJWTVerifier(config JWTConfig) *JWTVerifier {
	return &JWTVerifier{config: config}
}

// VerifyCredential returns the token subject. Every rejection wraps
// core.ErrInvalidCredential.
func (v *JWTVerifier) VerifyCredential(_ context.Context, token string) (domain.UserID, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return []byte(v.config.SecretKey), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: %w", core.ErrInvalidCredential, ErrExpiredToken)
		}
		return "", fmt.Errorf("%w: %v", core.ErrInvalidCredential, err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", core.ErrInvalidCredential
	}
	return domain.UserID(claims.Subject), nil
}

// Mint signs a token for userID; used by cmd/token and tests.
func (v *JWTVerifier) Mint(userID domain.UserID) (string, error) {
	now := time.Now()
	ttl := v.config.TokenDuration
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	claims := jwt.RegisteredClaims{
		Issuer:    v.config.Issuer,
		Subject:   string(userID),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(v.config.SecretKey))
}
