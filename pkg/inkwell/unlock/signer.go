// Package unlock issues and verifies compact, stateless HMAC-SHA256 signed
// tokens gating access to password-protected public content.
//
// A token is a standard three-part compact JWS:
// base64url(header).base64url(claims).base64url(signature). Claims bind the
// token to one item (uid, post type, locale, slug) and to the password
// version current at issuance, so any password change invalidates every
// previously issued token without a revocation list.
package unlock

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token TTL bounds. The configured TTL is clamped into this range.
const (
	DefaultTTL = 30 * time.Minute
	MinTTL     = time.Minute
	MaxTTL     = 24 * time.Hour
)

// headerType tags unlock tokens so other JWTs signed with the same key are
// never accepted here.
const headerType = "unlock+jwt"

// Verification failure reasons.
var (
	ErrNoKey           = errors.New("signing key is required")
	ErrMalformed       = errors.New("malformed token")
	ErrSignature       = errors.New("signature mismatch")
	ErrTokenType       = errors.New("wrong token type")
	ErrExpired         = errors.New("token expired")
	ErrPasswordVersion = errors.New("password version changed")
	ErrClaimMismatch   = errors.New("claims do not match content")
)

// Claims are the unlock token payload.
type Claims struct {
	UID             string `json:"uid"`
	PostType        string `json:"pt"`
	Locale          string `json:"lc"`
	Slug            string `json:"sl"`
	PasswordVersion int    `json:"pv"`
	jwt.RegisteredClaims
}

// Expectation carries the values a presented token must be bound to.
type Expectation struct {
	UID             string
	PostType        string
	Locale          string
	Slug            string
	PasswordVersion int
}

// Signer signs and verifies unlock tokens with a caller-supplied key.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithTTL sets the token lifetime, clamped to [MinTTL, MaxTTL].
func WithTTL(ttl time.Duration) Option {
	return func(s *Signer) {
		if ttl < MinTTL {
			ttl = MinTTL
		}
		if ttl > MaxTTL {
			ttl = MaxTTL
		}
		s.ttl = ttl
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// New creates a Signer. The key must not be empty; it is never defaulted or
// hardcoded.
func New(key []byte, opts ...Option) (*Signer, error) {
	if len(key) == 0 {
		return nil, ErrNoKey
	}
	s := &Signer{
		key: key,
		ttl: DefaultTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the effective token lifetime.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Sign issues a token bound to the given expectation values.
func (s *Signer) Sign(e Expectation) (string, error) {
	now := s.now()
	claims := Claims{
		UID:             e.UID,
		PostType:        e.PostType,
		Locale:          e.Locale,
		Slug:            e.Slug,
		PasswordVersion: e.PasswordVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["typ"] = headerType
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign unlock token: %w", err)
	}
	return signed, nil
}

// Verify checks signature (constant time), token type, expiry and every
// binding claim against the expectation. The returned error wraps one of the
// package's reason sentinels.
func (s *Signer) Verify(tokenString string, expect Expectation) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if typ, _ := token.Header["typ"].(string); typ != headerType {
		return nil, ErrTokenType
	}
	if claims.PasswordVersion != expect.PasswordVersion {
		return nil, ErrPasswordVersion
	}
	if claims.UID != expect.UID ||
		claims.PostType != expect.PostType ||
		claims.Locale != expect.Locale ||
		claims.Slug != expect.Slug {
		return nil, ErrClaimMismatch
	}
	return claims, nil
}
