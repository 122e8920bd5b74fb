package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/emaamul/core/internal/errors"
)

// ParseToken verifies an HMAC-signed session token and returns its subject
// as the user id.
func ParseToken(token string, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", apperrors.New(apperrors.ErrInvalidToken, "no token secret configured")
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperrors.Wrap(apperrors.ErrInvalidToken, "token expired", err)
		}
		return "", apperrors.Wrap(apperrors.ErrInvalidToken, "token rejected", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", apperrors.New(apperrors.ErrInvalidToken, "token has no subject")
	}
	return claims.Subject, nil
}

// IssueToken signs a token for userID valid for ttl.
func IssueToken(userID string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
