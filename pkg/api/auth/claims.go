package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	// TokenTypeAccess is a short-lived token used for API authorization.
	TokenTypeAccess TokenType = "access"

	// TokenTypeRefresh is a long-lived token used to obtain new access tokens.
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the JWT claims carried by every issued token.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"uid"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}

// IsAccessToken reports whether the claims belong to an access token.
func (c *Claims) IsAccessToken() bool {
	return c.TokenType == TokenTypeAccess
}

// IsRefreshToken reports whether the claims belong to a refresh token.
func (c *Claims) IsRefreshToken() bool {
	return c.TokenType == TokenTypeRefresh
}

// IsAdmin reports whether the claims belong to an admin user.
func (c *Claims) IsAdmin() bool {
	return c.Role == "admin"
}

// IsCreator reports whether the claims belong to a creator or admin user.
func (c *Claims) IsCreator() bool {
	return c.Role == "creator" || c.Role == "admin"
}
