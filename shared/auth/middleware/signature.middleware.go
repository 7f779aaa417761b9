package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/King-Austin/securecipher-bankingapi/shared/auth/signature"
	"github.com/King-Austin/securecipher-bankingapi/shared/response"
	"github.com/King-Austin/securecipher-bankingapi/shared/utils/cache"
	xerrors "github.com/King-Austin/securecipher-bankingapi/shared/utils/errors"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

const (
	maxSignedBody = 1 << 20

	replayNamespace  = "sig-replay"
	defaultReplayTTL = 24 * time.Hour
)

// PublicKeyLookup returns the signing key on file for a user. An empty key
// means none was uploaded.
type PublicKeyLookup interface {
	PublicKey(ctx context.Context, userID string) (string, error)
}

// SignatureMiddleware rejects signed-path requests whose X-Signature does not
// verify against the caller's stored public key. It must run after auth.
type SignatureMiddleware struct {
	verifier *signature.Verifier
	keys     PublicKeyLookup
	replay   *cache.Cache
	audit    *logrus.Logger
	logger   *zap.Logger
}

func NewSignatureMiddleware(
	verifier *signature.Verifier,
	keys PublicKeyLookup,
	replay *cache.Cache,
	audit *logrus.Logger,
	logger *zap.Logger,
) *SignatureMiddleware {
	if audit == nil {
		audit = logrus.New()
		audit.SetOutput(io.Discard)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignatureMiddleware{verifier: verifier, keys: keys, replay: replay, audit: audit, logger: logger}
}

// NewAuditLogger builds the JSON logger that records every verification outcome.
func NewAuditLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	l.SetLevel(logrus.InfoLevel)
	return l
}

func (m *SignatureMiddleware) Verify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.verifier.RequiresSignature(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		userID, ok := GetUserID(r.Context())
		if !ok {
			response.Error(w, http.StatusUnauthorized, "Authentication required for signed requests")
			return
		}

		env := signature.Envelope{
			Method:    r.Method,
			Path:      r.URL.Path,
			Timestamp: r.Header.Get(signature.HeaderTimestamp),
			UserID:    userID,
			Signature: r.Header.Get(signature.HeaderSignature),
		}

		if env.Signature == "" || env.Timestamp == "" {
			m.reject(w, env, xerrors.ErrMissingSignature)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSignedBody))
		if err != nil {
			m.reject(w, env, xerrors.Field("body", "request body could not be read"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		env.Body = body

		if err := m.check(r.Context(), env); err != nil {
			m.reject(w, env, err)
			return
		}

		m.audit.WithFields(logrus.Fields{
			"user_id": userID,
			"method":  env.Method,
			"path":    env.Path,
			"result":  "verified",
		}).Info("signature verified")

		next.ServeHTTP(w, r)
	})
}

func (m *SignatureMiddleware) check(ctx context.Context, env signature.Envelope) error {
	key, err := m.keys.PublicKey(ctx, env.UserID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return xerrors.ErrNoPublicKey
		}
		m.logger.Error("public key lookup failed", zap.String("user_id", env.UserID), zap.Error(err))
		return xerrors.ErrVerificationFailed
	}

	if err := m.verifier.Verify(env, key); err != nil {
		return err
	}

	return m.claimRequest(ctx, env)
}

// claimRequest records a verified request so it cannot be replayed. The key is
// the digest of the signed payload, not of the signature: an ECDSA signature
// has several valid encodings (r, s) and (r, n-s) among them, while the payload
// has one. The timestamp is part of the payload, so an honest client never
// repeats it. Redis outages let the request through.
func (m *SignatureMiddleware) claimRequest(ctx context.Context, env signature.Envelope) error {
	ttl := defaultReplayTTL
	if skew := m.verifier.MaxSkew(); skew > 0 {
		ttl = 2 * skew
	}
	digest := sha256.Sum256(env.Payload())

	fresh, err := m.replay.SetNX(ctx, replayNamespace, hex.EncodeToString(digest[:]), "1", ttl)
	if err != nil {
		m.logger.Warn("replay guard unavailable", zap.Error(err))
		return nil
	}
	if !fresh {
		return xerrors.ErrReplayedSignature
	}
	return nil
}

func (m *SignatureMiddleware) reject(w http.ResponseWriter, env signature.Envelope, err error) {
	status := xerrors.HTTPStatus(err)

	m.audit.WithFields(logrus.Fields{
		"user_id": env.UserID,
		"method":  env.Method,
		"path":    env.Path,
		"result":  "rejected",
		"status":  status,
		"reason":  err.Error(),
	}).Warn("signature rejected")

	response.ErrorWithDetails(w, status, xerrors.PublicMessage(err), signatureDetails(err))
}

func signatureDetails(err error) string {
	switch {
	case errors.Is(err, xerrors.ErrMissingSignature):
		return "Sensitive operations require digital signature verification"
	case errors.Is(err, xerrors.ErrNoPublicKey):
		return "Upload a P-384 public key before making signed requests"
	case errors.Is(err, xerrors.ErrVerificationFailed):
		return "Unable to verify request authenticity"
	case errors.Is(err, xerrors.ErrReplayedSignature), errors.Is(err, xerrors.ErrStaleTimestamp):
		return "Sign every request with a fresh timestamp"
	default:
		return "Request signature verification failed"
	}
}
