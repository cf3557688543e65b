// Package token issues signed, salted and time-limited tokens bound to a
// subject string. Tokens are stateless; callers make them single-use by
// embedding a value in the subject that changes once the token is consumed.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Serializer signs subjects for one purpose. Two serializers sharing a secret
// but not a salt reject each other's tokens.
type Serializer struct {
	key    []byte
	maxAge time.Duration
	now    func() time.Time
}

func NewSerializer(secret, salt string, maxAge time.Duration) *Serializer {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(salt))
	return &Serializer{
		key:    mac.Sum(nil),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// WithClock replaces the time source.
func (s *Serializer) WithClock(now func() time.Time) *Serializer {
	cp := *s
	cp.now = now
	return &cp
}

func (s *Serializer) MaxAge() time.Duration {
	return s.maxAge
}

func (s *Serializer) Generate(subject string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(s.now()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify returns the subject of a token issued no longer than maxAge ago.
func (s *Serializer) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", ErrInvalidToken
	}
	if claims.IssuedAt == nil || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	if s.maxAge > 0 && s.now().Sub(claims.IssuedAt.Time) > s.maxAge {
		return "", ErrExpiredToken
	}
	return claims.Subject, nil
}

// Check validates a token without consuming it.
func (s *Serializer) Check(tokenString string) error {
	_, err := s.Verify(tokenString)
	return err
}
