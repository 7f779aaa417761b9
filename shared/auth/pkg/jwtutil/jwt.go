package jwtutil

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by session tokens issued by the auth collaborator.
type Claims struct {
	UserID   string `json:"uid"`
	Username string `json:"username,omitempty"`
	Device   string `json:"device,omitempty"`
	jwt.RegisteredClaims
}

type JWTConfig struct {
	PubPath  string
	Issuer   string
	Audience string
	// KeyPaths maps a token "kid" header to an extra PEM key, for rotation.
	KeyPaths map[string]string
}
