package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KeyProvider supplies the key lookup used to check a token's signature.
type KeyProvider interface {
	Keyfunc(ctx context.Context) jwt.Keyfunc
}

type VerifierConfig struct {
	Issuer     string
	Audience   string
	Algorithms []string
	Leeway     time.Duration
	// Now overrides the clock used for exp/nbf checks.
	Now func() time.Time
}

// Claims is the access token payload issued by the identity provider.
// Permissions holds RBAC grants; Scope is consulted when it is absent.
type Claims struct {
	jwt.RegisteredClaims
	Permissions []string `json:"permissions,omitempty"`
	Scope       string   `json:"scope,omitempty"`
}

type Verifier struct {
	keys   KeyProvider
	parser *jwt.Parser
}

func NewVerifier(keys KeyProvider, cfg VerifierConfig) *Verifier {
	algs := cfg.Algorithms
	if len(algs) == 0 {
		algs = []string{jwt.SigningMethodRS256.Alg()}
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(algs),
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
	return &Verifier{keys: keys, parser: jwt.NewParser(opts...)}
}

// Verify checks the token's signature and claims and returns the permissions
// it grants.
func (v *Verifier) Verify(ctx context.Context, raw string) (AuthContext, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(raw, claims, v.keys.Keyfunc(ctx))
	if err != nil {
		switch {
		case errors.Is(err, ErrKeyNotFound):
			return AuthContext{}, fmt.Errorf("%w: %v", ErrKeyNotFound, err)
		case errors.Is(err, ErrKeySetUnavailable):
			return AuthContext{}, fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
		default:
			return AuthContext{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}

	perms := claims.Permissions
	if perms == nil && claims.Scope != "" {
		perms = strings.Fields(claims.Scope)
	}
	return NewAuthContext(claims.Subject, perms), nil
}

// ParseAuthorizationHeader extracts the token from an "Authorization: Bearer <token>" value.
func ParseAuthorizationHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrAuthHeaderMissing
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrAuthHeaderMalformed
	}
	return parts[1], nil
}
