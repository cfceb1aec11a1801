package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	sessionIdClaim      = "sessionId"
	presenterTokenClaim = "presenterToken"
	expClaim            = "exp"

	DefaultTokenExpiration = time.Hour * 24
)

var ErrInvalidToken = errors.New("invalid token")

// TokenIssuer signs and verifies presenter tokens. A token binds a session
// id to its presenter secret.
type TokenIssuer struct {
	signingKey []byte
	exp        time.Duration
}

func NewTokenIssuer(signingKey []byte, exp time.Duration) *TokenIssuer {
	if exp <= 0 {
		exp = DefaultTokenExpiration
	}

	return &TokenIssuer{signingKey: signingKey, exp: exp}
}

func (ti *TokenIssuer) Issue(sessionId, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		sessionIdClaim:      sessionId,
		presenterTokenClaim: secret,
		expClaim:            time.Now().Add(ti.exp).Unix(),
	})

	return token.SignedString(ti.signingKey)
}

// Parse verifies the signature and expiry and returns the bound session id
// and secret.
func (ti *TokenIssuer) Parse(tokenString string) (string, string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Header["alg"])
		}
		return ti.signingKey, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}

	sessionId, _ := claims[sessionIdClaim].(string)
	secret, _ := claims[presenterTokenClaim].(string)
	if sessionId == "" || secret == "" {
		return "", "", fmt.Errorf("%w: missing claims", ErrInvalidToken)
	}

	return sessionId, secret, nil
}
