package utility

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
)

var ErrInvalidToken = errors.New("invalid session token")

// SessionClaims bind a bearer token to one checkout session.
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.StandardClaims
}

func GenerateSessionToken(secret []byte, sessionID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		SessionID: sessionID,
		StandardClaims: jwt.StandardClaims{
			Subject:   sessionID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

func ValidateSessionToken(secret []byte, signedToken string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(signedToken, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
