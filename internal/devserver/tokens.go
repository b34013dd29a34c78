package devserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims are carried by both cookies. TokenVersion must match the user's
// current version for the token to be honoured.
type Claims struct {
	TokenVersion int    `json:"tv"`
	Type         string `json:"typ"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies the session cookies.
type Tokens struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokens(secret []byte, accessTTL, refreshTTL time.Duration, now func() time.Time) *Tokens {
	if now == nil {
		now = time.Now
	}
	return &Tokens{secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL, now: now}
}

// Issue returns a signed access and refresh token pair.
func (t *Tokens) Issue(userID string, version int) (access, refresh string, err error) {
	access, err = t.sign(userID, version, tokenTypeAccess, t.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = t.sign(userID, version, tokenTypeRefresh, t.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (t *Tokens) sign(userID string, version int, typ string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		TokenVersion: version,
		Type:         typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies signature, expiry and type.
func (t *Tokens) Parse(tokenString, typ string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, errors.New("wrong token type")
	}
	return &claims, nil
}

// RefreshTTL is also the cookie lifetime; token expiry is enforced by Parse.
func (t *Tokens) RefreshTTL() time.Duration {
	return t.refreshTTL
}
