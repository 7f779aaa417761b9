package router

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/King-Austin/securecipher-bankingapi/internal/domain"
	rh "github.com/King-Austin/securecipher-bankingapi/internal/handler/rest"
	"github.com/King-Austin/securecipher-bankingapi/internal/repository/memory"
	"github.com/King-Austin/securecipher-bankingapi/internal/usecase"
	"github.com/King-Austin/securecipher-bankingapi/shared/auth/middleware"
	"github.com/King-Austin/securecipher-bankingapi/shared/auth/pkg/jwtutil"
	"github.com/King-Austin/securecipher-bankingapi/shared/auth/signature"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// tokens maps bearer tokens straight to user ids.
type tokens map[string]string

func (t tokens) ParseAndValidate(token string) (*jwtutil.Claims, error) {
	uid, ok := t[token]
	if !ok {
		return nil, jwtutil.ErrInvalidToken
	}
	return &jwtutil.Claims{UserID: uid}, nil
}

type app struct {
	handler http.Handler
	store   *memory.Store
	alice   *ecdsa.PrivateKey
}

func newApp(t *testing.T) *app {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	pub, err := signature.EncodePublicKey(&priv.PublicKey)
	require.NoError(t, err)

	store := memory.New(
		&domain.Account{UserID: "1", Username: "alice", AccountNumber: "8000000001", Balance: decimal.NewFromInt(1000), PublicKey: pub},
		&domain.Account{UserID: "2", Username: "bob", AccountNumber: "8000000002"},
	)
	logger := zap.NewNop()
	resolver := usecase.NewResolutionUsecase(store, "")
	accounts := usecase.NewAccountUsecase(store, store, resolver, nil, logger)
	transfers := usecase.NewTransferUsecase(store, store, resolver, nil, nil, logger, usecase.TransferConfig{})

	h := SetupRoutes(chi.NewRouter(),
		rh.NewBankRestHandler(transfers, accounts, logger),
		middleware.NewAuthMiddleware(tokens{"alice-token": "1", "bob-token": "2"}, logger),
		middleware.NewSignatureMiddleware(signature.NewVerifier(nil), accounts, nil, nil, logger),
		nil,
		Options{},
	)
	return &app{handler: h, store: store, alice: priv}
}

func (a *app) signed(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	env := signature.Envelope{Method: method, Path: path, Body: []byte(body), Timestamp: "1700000000000", UserID: "1"}
	sig, err := signature.Sign(a.alice, env)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer alice-token")
	req.Header.Set(signature.HeaderSignature, sig)
	req.Header.Set(signature.HeaderTimestamp, env.Timestamp)
	return req
}

func (a *app) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

const transferBody = `{"recipient_account":"8000000002","recipient_bank":"Secure Cipher Bank","amount":"100.00"}`

func TestSignedTransferEndToEnd(t *testing.T) {
	a := newApp(t)

	rec := a.serve(a.signed(t, http.MethodPost, "/api/transactions/transfer", transferBody))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, a.store.Balance("8000000001").Equal(decimal.NewFromInt(900)))
	assert.True(t, a.store.Balance("8000000002").Equal(decimal.NewFromInt(100)))
}

func TestSignedTransfer_TrailingSlashPath(t *testing.T) {
	a := newApp(t)

	rec := a.serve(a.signed(t, http.MethodPost, "/api/transactions/transfer/", transferBody))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestUnsignedTransferRejectedBeforeHandler(t *testing.T) {
	a := newApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/transactions/transfer", strings.NewReader(transferBody))
	req.Header.Set("Authorization", "Bearer alice-token")
	rec := a.serve(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing cryptographic signature or timestamp")
	assert.Zero(t, a.store.RecordCount())
}

func TestSignatureFromAnotherUserRejected(t *testing.T) {
	a := newApp(t)

	req := a.signed(t, http.MethodPost, "/api/transactions/transfer", transferBody)
	req.Header.Set("Authorization", "Bearer bob-token")
	rec := a.serve(req)

	// bob has no key on file
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, a.store.RecordCount())
}

func TestTamperedAmountRejected(t *testing.T) {
	a := newApp(t)

	req := a.signed(t, http.MethodPost, "/api/transactions/transfer", transferBody)
	req.Body = io.NopCloser(strings.NewReader(strings.Replace(transferBody, "100.00", "999.00", 1)))
	rec := a.serve(req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.True(t, a.store.Balance("8000000001").Equal(decimal.NewFromInt(1000)))
}

func TestAuthRequired(t *testing.T) {
	a := newApp(t)

	for _, path := range []string{"/api/transactions", "/api/profiles/me", "/api/transactions/verify-account/8000000002"} {
		rec := a.serve(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestUnsignedReadsAndPin(t *testing.T) {
	a := newApp(t)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer bob-token")
		return a.serve(req)
	}
	assert.Equal(t, http.StatusOK, get("/api/transactions/verify-account/8000000001").Code)
	assert.Equal(t, http.StatusNotFound, get("/api/transactions/verify-account/8000000009").Code)
	assert.Equal(t, http.StatusOK, get("/api/transactions").Code)
	assert.Equal(t, http.StatusOK, get("/api/profiles/me").Code)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/set-pin", nil)
	req.Header.Set("Authorization", "Bearer bob-token")
	assert.Equal(t, http.StatusOK, a.serve(req).Code)
}

func TestKeyRotationRequiresCurrentKey(t *testing.T) {
	a := newApp(t)

	next, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	nextPub, err := signature.EncodePublicKey(&next.PublicKey)
	require.NoError(t, err)
	body := `{"public_key":"` + nextPub + `"}`

	rec := a.serve(a.signed(t, http.MethodPost, "/api/auth/update-public-key", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// the old key no longer verifies
	rec = a.serve(a.signed(t, http.MethodPost, "/api/transactions/transfer", transferBody))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	a.alice = next
	rec = a.serve(a.signed(t, http.MethodPost, "/api/transactions/transfer", transferBody))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHealthAndCORS(t *testing.T) {
	a := newApp(t)

	assert.Equal(t, http.StatusOK, a.serve(httptest.NewRequest(http.MethodGet, "/api/health", nil)).Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/transactions/transfer", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "X-Signature, X-Timestamp, Authorization")
	rec := a.serve(req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusNotFound, a.serve(httptest.NewRequest(http.MethodGet, "/nope", nil)).Code)
}
