// Package auth validates the connect-time auth token carried on the
// WebSocket handshake (spec.md §6: "payload {id: positive integer,
// username?, email?, provider?}"). Grounded on the HS256
// jwt.MapClaims validation shape of internal/service/auth_service.go's
// TokenService.ValidateToken, narrowed to the single "id" claim the
// gateway needs.
package auth

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrInvalidClaims = errors.New("token missing a positive numeric id claim")
)

// TokenValidator validates HS256-signed connect tokens.
type TokenValidator struct {
	secret []byte
}

// NewTokenValidator constructs a TokenValidator over the shared HMAC
// secret (JWT_SECRET).
func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret)}
}

// ValidateConnectToken parses tokenStr and returns the string form of its
// "id" claim, coerced from whatever positive-integer shape the claim
// arrived in.
func (v *TokenValidator) ValidateConnectToken(tokenStr string) (userID string, err error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	if !tok.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidClaims
	}

	id, ok := positiveIntClaim(claims["id"])
	if !ok {
		return "", ErrInvalidClaims
	}
	return strconv.FormatInt(id, 10), nil
}

// positiveIntClaim coerces a jwt.MapClaims value into a positive int64.
// JSON numbers decode as float64 by default; json.Number is also
// accepted for parsers configured with UseNumber.
func positiveIntClaim(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		if v <= 0 {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	case int64:
		if v <= 0 {
			return 0, false
		}
		return v, true
	default:
		return 0, false
	}
}
