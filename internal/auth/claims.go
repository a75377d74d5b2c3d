package auth

import "github.com/golang-jwt/jwt/v5"

// TokenClaims extracts the specific data we need from the JWT
type TokenClaims struct {
	// Standard claims (sub, exp, iat, etc.)
	jwt.RegisteredClaims

	// Custom fields set by the auth service that issues our tokens
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

// UserInfo is the clean struct we will put into the Context
type UserInfo struct {
	ID        string // The 'sub' field
	Email     string
	FirstName string
	LastName  string
	Role      string
}

const RoleAdmin = "admin"
