// Package auth issues and verifies the two short-lived HS256 tokens the
// server hands out: a session token after login and a single-purpose reset
// token after a successful OTP verification.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/pinvault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims identify the account behind an authenticated session.
type SessionClaims struct {
	jwt.RegisteredClaims
	AccountID string `json:"aid"`
	Email     string `json:"email"`
	Purpose   string `json:"purpose"`
}

const sessionPurpose = "session"

// ResetClaims authorize exactly one password reset. ID (jti) carries the
// nonce that the account row must still hold when the token is redeemed.
type ResetClaims struct {
	jwt.RegisteredClaims
	AccountID string `json:"aid"`
	Purpose   string `json:"purpose"`
}

// Issuer signs and verifies tokens with a shared secret.
type Issuer struct {
	secret     []byte
	sessionTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
}

func NewIssuer(secret []byte, sessionTTL, resetTTL time.Duration) *Issuer {
	return &Issuer{secret: secret, sessionTTL: sessionTTL, resetTTL: resetTTL, now: time.Now}
}

func (i *Issuer) registered(ttl time.Duration, subject, id string) jwt.RegisteredClaims {
	now := i.now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// IssueSession returns a signed session token for the account.
func (i *Issuer) IssueSession(accountID, email string) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: i.registered(i.sessionTTL, accountID, ""),
		AccountID:        accountID,
		Email:            email,
		Purpose:          sessionPurpose,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// IssueReset returns a signed reset token bound to nonce.
func (i *Issuer) IssueReset(accountID, nonce string) (string, error) {
	claims := ResetClaims{
		RegisteredClaims: i.registered(i.resetTTL, accountID, nonce),
		AccountID:        accountID,
		Purpose:          common.ResetPurpose,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// VerifySession parses a session token. Reset tokens are rejected.
func (i *Issuer) VerifySession(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := i.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.Purpose != sessionPurpose || claims.AccountID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// VerifyReset parses a reset token and checks its purpose and nonce.
func (i *Issuer) VerifyReset(token string) (*ResetClaims, error) {
	claims := &ResetClaims{}
	if err := i.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.Purpose != common.ResetPurpose || claims.AccountID == "" || claims.ID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) parse(token string, claims jwt.Claims) error {
	t, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !t.Valid {
		return common.ErrInvalidToken
	}
	return nil
}
