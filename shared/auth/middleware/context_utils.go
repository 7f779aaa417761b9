package middleware

import (
	"context"
	"net/http"

	"github.com/King-Austin/securecipher-bankingapi/shared/auth/pkg/jwtutil"
)

type contextKey string

const (
	ContextUserID   contextKey = "userID"
	ContextUsername contextKey = "username"
	ContextToken    contextKey = "token"
	ContextDeviceID contextKey = "deviceID"
)

func GetUserID(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(ContextUserID).(string)
	return val, ok && val != ""
}

// WithUserID marks ctx as authenticated for userID. Tests and internal callers
// use it to bypass token parsing.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextUserID, userID)
}

func setContextValues(r *http.Request, claims *jwtutil.Claims, token string) *http.Request {
	ctx := context.WithValue(r.Context(), ContextUserID, claims.UserID)
	ctx = context.WithValue(ctx, ContextToken, token)
	ctx = context.WithValue(ctx, ContextUsername, claims.Username)
	ctx = context.WithValue(ctx, ContextDeviceID, claims.Device)
	return r.WithContext(ctx)
}
