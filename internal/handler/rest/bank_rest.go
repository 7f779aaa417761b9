package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/King-Austin/securecipher-bankingapi/internal/domain"
	"github.com/King-Austin/securecipher-bankingapi/internal/usecase"
	"github.com/King-Austin/securecipher-bankingapi/shared/auth/middleware"
	"github.com/King-Austin/securecipher-bankingapi/shared/response"
	xerrors "github.com/King-Austin/securecipher-bankingapi/shared/utils/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxRequestBody = 1 << 20

type BankRestHandler struct {
	transfers *usecase.TransferUsecase
	accounts  *usecase.AccountUsecase
	logger    *zap.Logger
}

func NewBankRestHandler(
	transfers *usecase.TransferUsecase,
	accounts *usecase.AccountUsecase,
	logger *zap.Logger,
) *BankRestHandler {
	return &BankRestHandler{
		transfers: transfers,
		accounts:  accounts,
		logger:    logger,
	}
}

type transferPayload struct {
	RecipientAccount string          `json:"recipient_account"`
	RecipientBank    string          `json:"recipient_bank"`
	Amount           json.RawMessage `json:"amount"`
	Description      string          `json:"description"`
	RecipientName    string          `json:"recipient_name"`
}

type transferResponse struct {
	Status      string              `json:"status"`
	Message     string              `json:"message"`
	Transaction *domain.Transaction `json:"transaction"`
}

type profileResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Profile *domain.Account `json:"profile"`
}

// ============================================================================
// TRANSFERS
// ============================================================================

// Transfer moves funds from the caller's account.
// POST /api/transactions/transfer
func (h *BankRestHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		h.respondError(w, xerrors.ErrUnauthorized)
		return
	}

	var payload transferPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		h.respondError(w, err)
		return
	}
	if payload.RecipientAccount == "" || payload.RecipientBank == "" || len(payload.Amount) == 0 {
		h.respondError(w, xerrors.Field("", "Recipient account, bank, and amount are required"))
		return
	}

	amount, err := usecase.ParseAmount(payload.Amount)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.logger.Info("transfer requested",
		zap.String("user_id", userID),
		zap.String("recipient_account", payload.RecipientAccount),
		zap.String("amount", amount.StringFixed(2)))

	rec, err := h.transfers.Transfer(ctx, domain.TransferRequest{
		SenderUserID:     userID,
		RecipientAccount: payload.RecipientAccount,
		RecipientBank:    payload.RecipientBank,
		Amount:           amount,
		Description:      payload.Description,
		RecipientName:    payload.RecipientName,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	response.Write(w, http.StatusCreated, transferResponse{
		Status:      "success",
		Message:     "Transfer completed successfully",
		Transaction: rec,
	})
}

// VerifyAccount names the holder of an account at this bank.
// GET /api/transactions/verify-account/{account_number}
func (h *BankRestHandler) VerifyAccount(w http.ResponseWriter, r *http.Request) {
	v, err := h.accounts.VerifyAccount(r.Context(), chi.URLParam(r, "account_number"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	status := http.StatusOK
	if !v.Exists {
		status = http.StatusNotFound
	}
	response.Write(w, status, v)
}

// ListTransactions returns the caller's records, newest first.
// GET /api/transactions?limit=&offset=
func (h *BankRestHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		h.respondError(w, xerrors.ErrUnauthorized)
		return
	}

	filter := domain.TransactionFilter{UserID: userID}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.respondError(w, xerrors.Field("limit", "limit must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.respondError(w, xerrors.Field("offset", "offset must be a non-negative integer"))
			return
		}
		filter.Offset = n
	}

	records, err := h.accounts.History(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, records)
}

// GetTransaction returns one of the caller's records.
// GET /api/transactions/{reference}
func (h *BankRestHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		h.respondError(w, xerrors.ErrUnauthorized)
		return
	}

	rec, err := h.accounts.TransactionByReference(r.Context(), userID, chi.URLParam(r, "reference"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, rec)
}

// ============================================================================
// PROFILE
// ============================================================================

// GET /api/profiles/me
func (h *BankRestHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		h.respondError(w, xerrors.ErrUnauthorized)
		return
	}

	acc, err := h.accounts.Profile(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, acc)
}

// UpdatePublicKey replaces the caller's signing key. The request itself must
// be signed with the current key.
// POST /api/auth/update-public-key
func (h *BankRestHandler) UpdatePublicKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		h.respondError(w, xerrors.ErrUnauthorized)
		return
	}

	var payload struct {
		PublicKey string `json:"public_key"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		h.respondError(w, err)
		return
	}

	acc, err := h.accounts.UpdatePublicKey(r.Context(), userID, payload.PublicKey)
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.Write(w, http.StatusOK, profileResponse{
		Status:  "success",
		Message: "Public key updated successfully",
		Profile: acc,
	})
}

// SetPin records that the caller configured a client-side PIN.
// POST /api/auth/set-pin
func (h *BankRestHandler) SetPin(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		h.respondError(w, xerrors.ErrUnauthorized)
		return
	}

	acc, err := h.accounts.SetPin(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.Write(w, http.StatusOK, profileResponse{
		Status:  "success",
		Message: "PIN set successfully",
		Profile: acc,
	})
}

// GET /api/health
func (h *BankRestHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.accounts.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		response.Write(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "unreachable"})
		return
	}
	response.Write(w, http.StatusOK, map[string]string{"status": "healthy", "database": "ok"})
}

// ============================================================================
// HELPERS
// ============================================================================

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return xerrors.Field("body", "request body too large")
		}
		return xerrors.Field("body", "invalid request body")
	}
	return nil
}

func (h *BankRestHandler) respondError(w http.ResponseWriter, err error) {
	status := xerrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		h.logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	response.Error(w, status, xerrors.PublicMessage(err))
}
