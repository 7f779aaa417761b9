package middleware

import (
	"net/http"

	"github.com/King-Austin/securecipher-bankingapi/shared/auth/pkg/jwtutil"
	"github.com/King-Austin/securecipher-bankingapi/shared/response"

	"go.uber.org/zap"
)

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	ParseAndValidate(token string) (*jwtutil.Claims, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *zap.Logger
}

func NewAuthMiddleware(verifier TokenVerifier, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{verifier: verifier, logger: logger}
}

// Require rejects requests without a valid token and stores the caller's
// identity in the request context.
func (am *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized, "No token provided")
			return
		}

		claims, err := am.verifier.ParseAndValidate(token)
		if err != nil {
			am.logger.Debug("token rejected",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			response.Error(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, setContextValues(r, claims, token))
	})
}

// Optional attaches the caller's identity when a valid token is present and
// lets anonymous requests through.
func (am *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := extractToken(r); token != "" {
			if claims, err := am.verifier.ParseAndValidate(token); err == nil {
				r = setContextValues(r, claims, token)
			}
		}
		next.ServeHTTP(w, r)
	})
}
