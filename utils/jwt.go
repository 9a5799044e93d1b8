package utils

import (
	"errors"
	"strconv"

	"github.com/golang-jwt/jwt"
)

// TokenClaims is the subset of claims the server embeds in access tokens.
type TokenClaims struct {
	Subject  string
	Username string
	Email    string
	IsAdmin  bool
}

// PeekClaims decodes a token's claims without verifying the signature.
// The client never holds the signing key; the server re-validates every
// request, so decoded claims are only a hint for rebuilding a profile from
// a restored session.
func PeekClaims(tokenString string) (*TokenClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.Parser{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, err
	}

	out := &TokenClaims{}
	if id, ok := claims["user_id"].(float64); ok {
		out.Subject = strconv.FormatInt(int64(id), 10)
	} else if s, ok := claims["sub"].(string); ok {
		out.Subject = s
	}
	if out.Subject == "" {
		return nil, errors.New("token does not contain a valid subject claim")
	}
	if v, ok := claims["username"].(string); ok {
		out.Username = v
	}
	if v, ok := claims["email"].(string); ok {
		out.Email = v
	}
	if v, ok := claims["is_admin"].(bool); ok {
		out.IsAdmin = v
	}
	return out, nil
}
