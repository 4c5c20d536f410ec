package auth

import "github.com/golang-jwt/jwt/v5"

type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"sub"`
	Name   string `json:"name,omitempty"`
}
