// Package auth issues and verifies the bearer tokens that identify the
// owner of every API request.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrBadSignature   = errors.New("bad token signature")
	ErrExpiredToken   = errors.New("token expired")
)

// Claims are the verified contents of a token.
type Claims struct {
	Owner     uuid.UUID
	ExpiresAt time.Time
}

// Signer creates and checks tokens of the form owner.expiry.signature where
// signature is the base64url HMAC-SHA256 of "owner.expiry".
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// WithClock replaces the time source used for expiry checks.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

func (s *Signer) Issue(owner uuid.UUID, ttl time.Duration) (string, error) {
	if owner == uuid.Nil {
		return "", fmt.Errorf("issue token: owner is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("issue token: ttl must be positive")
	}
	payload := owner.String() + "." + strconv.FormatInt(s.now().Add(ttl).Unix(), 10)
	return payload + "." + s.sign(payload), nil
}

func (s *Signer) Verify(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, ErrMalformedToken
	}
	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(s.sign(payload)), []byte(parts[2])) {
		return Claims{}, ErrBadSignature
	}

	owner, err := uuid.Parse(parts[0])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: owner: %v", ErrMalformedToken, err)
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: expiry: %v", ErrMalformedToken, err)
	}
	claims := Claims{Owner: owner, ExpiresAt: time.Unix(exp, 0).UTC()}
	if !s.now().Before(claims.ExpiresAt) {
		return claims, ErrExpiredToken
	}
	return claims, nil
}

func (s *Signer) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
