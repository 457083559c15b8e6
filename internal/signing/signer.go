// Package signing issues and verifies short-lived read tokens for stored
// objects served by this process.
package signing

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "image-annotator"

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrEmptySecret  = errors.New("signing secret is empty")
)

type Signer struct {
	secret  []byte
	baseURL string
	now     func() time.Time
}

// NewSigner returns a signer whose URLs point at baseURL + "/files/<name>".
func NewSigner(secret, baseURL string) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrEmptySecret
	}
	return &Signer{
		secret:  []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}, nil
}

// Sign returns a token granting read access to name until now+ttl.
func (s *Signer) Sign(name string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("signed url ttl must be positive, got %s", ttl)
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   name,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token failed: %w", err)
	}
	return token, nil
}

// URL returns a signed, time-limited URL for name.
func (s *Signer) URL(name string, ttl time.Duration) (string, error) {
	token, err := s.Sign(name, ttl)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/files/" + url.PathEscape(name) + "?token=" + url.QueryEscape(token), nil
}

// Verify checks that token is valid, unexpired and issued for name.
func (s *Signer) Verify(token, name string) error {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithSubject(name),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
