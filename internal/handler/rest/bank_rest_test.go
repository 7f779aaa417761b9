package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/King-Austin/securecipher-bankingapi/internal/domain"
	"github.com/King-Austin/securecipher-bankingapi/internal/repository/memory"
	"github.com/King-Austin/securecipher-bankingapi/internal/usecase"
	"github.com/King-Austin/securecipher-bankingapi/shared/auth/middleware"
	"github.com/King-Austin/securecipher-bankingapi/shared/response"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	store  *memory.Store
	router chi.Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New(
		&domain.Account{UserID: "1", Username: "alice", FirstName: "Alice", LastName: "Ade", AccountNumber: "8000000001", Balance: decimal.RequireFromString("500.00")},
		&domain.Account{UserID: "2", Username: "bob", AccountNumber: "8000000002", Balance: decimal.Zero},
	)
	logger := zap.NewNop()
	resolver := usecase.NewResolutionUsecase(store, "")
	transfers := usecase.NewTransferUsecase(store, store, resolver, nil, nil, logger, usecase.TransferConfig{})
	accounts := usecase.NewAccountUsecase(store, store, resolver, nil, logger)
	h := NewBankRestHandler(transfers, accounts, logger)

	r := chi.NewRouter()
	r.Get("/api/health", h.Health)
	r.Group(func(ar chi.Router) {
		// stands in for token auth: the caller id comes from X-Test-User
		ar.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if id := r.Header.Get("X-Test-User"); id != "" {
					r = r.WithContext(middleware.WithUserID(r.Context(), id))
				}
				next.ServeHTTP(w, r)
			})
		})
		ar.Get("/api/transactions", h.ListTransactions)
		ar.Post("/api/transactions/transfer", h.Transfer)
		ar.Get("/api/transactions/verify-account/{account_number}", h.VerifyAccount)
		ar.Get("/api/transactions/{reference}", h.GetTransaction)
		ar.Get("/api/profiles/me", h.Profile)
		ar.Post("/api/auth/update-public-key", h.UpdatePublicKey)
		ar.Post("/api/auth/set-pin", h.SetPin)
	})
	return &testServer{store: store, router: r}
}

func (s *testServer) do(method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func TestTransfer_Created(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/transactions/transfer", "1",
		`{"recipient_account":"8000000002","recipient_bank":"Secure Cipher Bank","amount":"120.50","description":"rent"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Message     string             `json:"message"`
		Transaction domain.Transaction `json:"transaction"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "Transfer completed successfully", body.Message)
	assert.Equal(t, domain.TransactionTypeTransfer, body.Transaction.Type)
	assert.Equal(t, "bob", body.Transaction.RecipientName)
	assert.True(t, body.Transaction.BalanceAfter.Equal(decimal.RequireFromString("379.50")))

	assert.True(t, s.store.Balance("8000000002").Equal(decimal.RequireFromString("120.50")))
}

func TestTransfer_NumericAmount(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/transactions/transfer", "1",
		`{"recipient_account":"0123456789","recipient_bank":"Other Bank","amount":99.99}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, s.store.Balance("8000000001").Equal(decimal.RequireFromString("400.01")))
}

func TestTransfer_ErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		user   string
		body   string
		status int
		msg    string
	}{
		{"unauthenticated", "", `{}`, http.StatusUnauthorized, "authentication required"},
		{"bad json", "1", `{`, http.StatusBadRequest, "body: invalid request body"},
		{"missing fields", "1", `{"recipient_account":"8000000002"}`, http.StatusBadRequest, "Recipient account, bank, and amount are required"},
		{"non numeric", "1", `{"recipient_account":"8000000002","recipient_bank":"Secure Cipher Bank","amount":"ten"}`, http.StatusBadRequest, "amount: amount must be a number"},
		{"negative", "1", `{"recipient_account":"8000000002","recipient_bank":"Secure Cipher Bank","amount":-3}`, http.StatusBadRequest, "amount: amount must be greater than zero"},
		{"insufficient", "1", `{"recipient_account":"8000000002","recipient_bank":"Secure Cipher Bank","amount":"500.01"}`, http.StatusBadRequest, "insufficient funds"},
		{"unknown recipient", "1", `{"recipient_account":"8999999999","recipient_bank":"secure cipher bank","amount":"5"}`, http.StatusNotFound, "recipient account not found"},
		{"self", "1", `{"recipient_account":"8000000001","recipient_bank":"Secure Cipher Bank","amount":"5"}`, http.StatusBadRequest, "cannot transfer to the same account"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(http.MethodPost, "/api/transactions/transfer", c.user, c.body)
			assert.Equal(t, c.status, rec.Code)

			var body response.APIResponse
			decode(t, rec, &body)
			assert.Equal(t, "error", body.Status)
			assert.Equal(t, c.msg, body.Error)
			assert.Zero(t, s.store.RecordCount())
		})
	}
}

func TestVerifyAccount(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/transactions/verify-account/8000000001", "2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var found domain.AccountVerification
	decode(t, rec, &found)
	assert.Equal(t, domain.AccountVerification{Exists: true, Name: "Alice Ade", Bank: "Secure Cipher Bank"}, found)

	rec = s.do(http.MethodGet, "/api/transactions/verify-account/8000000404", "2", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var missing domain.AccountVerification
	decode(t, rec, &missing)
	assert.False(t, missing.Exists)
	assert.Equal(t, "Account not found", missing.Message)
}

func TestHistoryAndLookup(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/transactions/transfer", "1",
		`{"recipient_account":"8000000002","recipient_bank":"Secure Cipher Bank","amount":"10"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Transaction domain.Transaction `json:"transaction"`
	}
	decode(t, rec, &created)

	rec = s.do(http.MethodGet, "/api/transactions?limit=10", "2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []domain.Transaction `json:"data"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, domain.TransactionTypeCredit, list.Data[0].Type)

	rec = s.do(http.MethodGet, "/api/transactions/"+created.Transaction.Reference, "1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/transactions/"+created.Transaction.Reference, "2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/transactions?limit=-1", "1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileKeyAndPin(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/profiles/me", "1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var profile struct {
		Data domain.Account `json:"data"`
	}
	decode(t, rec, &profile)
	assert.Equal(t, "8000000001", profile.Data.AccountNumber)
	assert.False(t, profile.Data.PinSet)

	rec = s.do(http.MethodPost, "/api/auth/update-public-key", "1", `{"public_key":"bm90IGEga2V5"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/auth/set-pin", "1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pin struct {
		Message string         `json:"message"`
		Profile domain.Account `json:"profile"`
	}
	decode(t, rec, &pin)
	assert.Equal(t, "PIN set successfully", pin.Message)
	assert.True(t, pin.Profile.PinSet)

	rec = s.do(http.MethodGet, "/api/profiles/me", "99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
