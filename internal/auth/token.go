package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/congo-pay/otp-auth/internal/clock"
)

const (
	// TokenValidity is the fixed lifetime of a session token.
	TokenValidity = 24 * time.Hour
	// DefaultIssuer is used when TokenConfig.Issuer is empty.
	DefaultIssuer = "otp-auth"
)

var (
	// ErrInvalidToken covers every validation failure: bad signature, wrong
	// algorithm, malformed input and expiry are deliberately indistinguishable.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSigningSecretRequired is returned when no signing secret is configured.
	ErrSigningSecretRequired = errors.New("token signing secret is required")
)

// TokenConfig configures a TokenCodec.
type TokenConfig struct {
	Secret []byte
	Issuer string
	Clock  clock.Clocker
}

// Claims are the registered JWT claims carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 session tokens.
type TokenCodec struct {
	secret []byte
	issuer string
	clock  clock.Clocker
}

// NewTokenCodec builds a codec from cfg.
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrSigningSecretRequired
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &TokenCodec{secret: cfg.Secret, issuer: cfg.Issuer, clock: cfg.Clock}, nil
}

// Issue signs a token for subject valid for TokenValidity from now.
func (c *TokenCodec) Issue(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is required")
	}
	now := c.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenValidity)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Validate verifies token and returns its subject.
func (c *TokenCodec) Validate(token string) (string, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock.Now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
