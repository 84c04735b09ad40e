package gateway

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errNoToken      = errors.New("no token provided")
	errInvalidToken = errors.New("invalid token")
)

// authenticate validates the bearer credential and returns the token
// subject. errNoToken means the header was absent (401); any other
// failure is an invalid credential (403).
func authenticate(authHeader, secret string) (string, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errNoToken
	}

	token, err := jwt.Parse(parts[1], func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", errInvalidToken
	}
	return sub, nil
}
