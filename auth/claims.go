// Package auth resolves the caller's identity from an HS256 JWT. Tokens are
// issued by the identity backend; this package only validates them.
package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the JWT payload accepted by the import service.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	Email    string `json:"email,omitempty"`
}
