package token

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// DefaultLifetime is the freshness window for session tokens.
const DefaultLifetime = 3600 * time.Second

// Claims binds a session token to a user, the terminal it was issued for,
// and the issue time.
type Claims struct {
	UserID   string `json:"user_id"`
	Terminal string `json:"terminal"`
	jwt.RegisteredClaims
}

// Service issues and validates HS256 session tokens. Signing uses one
// process-wide secret, never a user-supplied credential.
type Service struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

type Option func(*Service)

// WithLifetime overrides the freshness window.
func WithLifetime(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lifetime = d
		}
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds a token service from a signing secret.
func NewService(secret []byte, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: signing secret required")
	}
	s := &Service{
		secret:   secret,
		lifetime: DefaultLifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Lifetime returns the configured freshness window.
func (s *Service) Lifetime() time.Duration {
	return s.lifetime
}

// Issue signs a token embedding {user_id, terminal, issue time}.
func (s *Service) Issue(userID, terminal string) (string, error) {
	now := s.now().UTC()
	claims := Claims{
		UserID:   userID,
		Terminal: terminal,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate reports whether presented is the most-recently stored token for
// the user, carries a valid signature, and was issued within the freshness
// window. Malformed or forged tokens are logged and rejected, never
// surfaced as errors.
func (s *Service) Validate(userID, presented, stored string) bool {
	presented = strings.TrimSpace(presented)
	if presented == "" || presented != stored {
		return false
	}
	claims, err := s.decode(presented)
	if err != nil {
		slog.Debug("session token rejected", "user", userID, "err", err)
		return false
	}
	if claims.UserID != userID {
		return false
	}
	if claims.IssuedAt == nil {
		return false
	}
	age := s.now().Sub(claims.IssuedAt.Time)
	return age >= 0 && age < s.lifetime
}

func (s *Service) decode(raw string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
