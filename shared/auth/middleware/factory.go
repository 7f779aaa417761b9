package middleware

import (
	"fmt"

	"github.com/King-Austin/securecipher-bankingapi/shared/auth/pkg/jwtutil"

	"go.uber.org/zap"
)

// RequireAuth loads the token verification key and builds the auth middleware.
func RequireAuth(cfg jwtutil.JWTConfig, logger *zap.Logger) (*AuthMiddleware, error) {
	verifier, err := jwtutil.LoadVerifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("init auth middleware: %w", err)
	}
	return NewAuthMiddleware(verifier, logger), nil
}
