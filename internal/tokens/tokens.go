// Package tokens issues and validates single-use email confirmation tokens.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
)

// DefaultTTL is how long an emailed confirmation link stays valid.
const DefaultTTL = 48 * time.Hour

const tokenBytes = 32

var (
	ErrTokenInvalid = errors.New("invalid confirmation link")
	ErrTokenExpired = errors.New("confirmation link expired")
)

// Service issues opaque random tokens with a fixed TTL.
type Service struct {
	ttl  time.Duration
	now  func() time.Time
	rand io.Reader
}

// NewService creates a token service. A non-positive ttl falls back to DefaultTTL.
func NewService(ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{ttl: ttl, now: time.Now, rand: rand.Reader}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Now returns the current time of the service clock.
func (s *Service) Now() time.Time { return s.now() }

// Issue returns a new token and its expiry.
func (s *Service) Issue() (string, time.Time, error) {
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(s.rand, b); err != nil {
		return "", time.Time{}, fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), s.now().Add(s.ttl), nil
}

// Validate checks a presented token against the stored one using the service clock.
func (s *Service) Validate(token, stored string, expires time.Time) error {
	return Validate(token, stored, expires, s.now())
}

// Validate checks token against stored in constant time, then the expiry.
func Validate(token, stored string, expires, now time.Time) error {
	if stored == "" || token == "" {
		return ErrTokenInvalid
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(stored)) != 1 {
		return ErrTokenInvalid
	}
	if now.After(expires) {
		return ErrTokenExpired
	}
	return nil
}

// Hash returns the hex SHA-256 of a token, the form kept once the token is redeemed.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MatchesHash reports whether token hashes to h.
func MatchesHash(token, h string) bool {
	if token == "" || h == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Hash(token)), []byte(h)) == 1
}
