package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures a JWTVerifier.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// JWTVerifier verifies HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	parser *jwt.Parser
	secret []byte
}

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// NewJWTVerifier creates an HS256 verifier. Tokens must carry exp.
func NewJWTVerifier(cfg JWTConfig) (*JWTVerifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("jwt secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(cfg.Now))
	}

	return &JWTVerifier{parser: jwt.NewParser(opts...), secret: cfg.Secret}, nil
}

// VerifyToken implements TokenVerifier.
func (v *JWTVerifier) VerifyToken(ctx context.Context, raw string) (Claims, error) {
	if err := ctx.Err(); err != nil {
		return Claims{}, newError(KindUnavailable, err)
	}

	var tc tokenClaims
	_, err := v.parser.ParseWithClaims(raw, &tc, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	c := Claims{
		Subject: tc.Subject,
		Email:   tc.Email,
		ID:      tc.ID,
	}
	if tc.IssuedAt != nil {
		c.IssuedAt = tc.IssuedAt.Time
	}
	if tc.ExpiresAt != nil {
		c.ExpiresAt = tc.ExpiresAt.Time
	}
	return c, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return newError(KindExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return newError(KindMalformed, err)
	default:
		// signature, algorithm, issuer, audience, nbf, missing exp
		return newError(KindInvalid, err)
	}
}
