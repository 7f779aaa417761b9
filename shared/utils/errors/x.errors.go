package xerrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes we translate.
const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// ReferenceConstraint is the unique index guarding transactions.reference.
const ReferenceConstraint = "transactions_reference_key"

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrUnauthorized   = errors.New("authentication required")
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
)

// Signature layer
var (
	ErrMissingSignature   = errors.New("missing cryptographic signature or timestamp")
	ErrInvalidSignature   = errors.New("invalid cryptographic signature")
	ErrNoPublicKey        = errors.New("no usable public key on file")
	ErrVerificationFailed = errors.New("signature verification failed")
	ErrReplayedSignature  = errors.New("signature already used")
	ErrStaleTimestamp     = errors.New("signature timestamp outside allowed window")
)

// Transfers
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrRecipientNotFound  = errors.New("recipient account not found")
	ErrTransactionFailed  = errors.New("transaction failed")
	ErrReferenceCollision = errors.New("transaction reference collision")
	ErrSelfTransfer       = errors.New("cannot transfer to the same account")
)

// FieldError names the request field a validation or uniqueness problem belongs to.
type FieldError struct {
	Field string
	Msg   string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

// Unwrap lets errors.Is(err, ErrValidation) match field errors.
func (e *FieldError) Unwrap() error { return ErrValidation }

func Field(field, msg string) error {
	return &FieldError{Field: field, Msg: msg}
}

func Fieldf(field, format string, args ...any) error {
	return &FieldError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// TranslatePG converts constraint violations into domain errors. A duplicate
// transaction reference becomes ErrReferenceCollision so callers can retry; any
// other unique or check violation becomes a FieldError naming the column.
// Non-constraint errors are returned unchanged.
func TranslatePG(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		if pgErr.ConstraintName == ReferenceConstraint {
			return fmt.Errorf("%w: %s", ErrReferenceCollision, pgErr.Detail)
		}
		field := constraintField(pgErr.ConstraintName, pgErr.TableName)
		return Fieldf(field, "a record with this %s already exists", strings.ReplaceAll(field, "_", " "))
	case pgCheckViolation:
		field := constraintField(pgErr.ConstraintName, pgErr.TableName)
		return Fieldf(field, "value violates %s rules", strings.ReplaceAll(field, "_", " "))
	}
	return err
}

// constraintField recovers the column from postgres default constraint names
// such as accounts_account_number_key or accounts_balance_check.
func constraintField(constraint, table string) string {
	name := strings.TrimPrefix(constraint, table+"_")
	for _, suffix := range []string{"_key", "_check", "_idx", "_fkey"} {
		name = strings.TrimSuffix(name, suffix)
	}
	if name == "" {
		return "value"
	}
	return name
}

// HTTPStatus maps an error kind to the status code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrMissingSignature):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrNoPublicKey),
		errors.Is(err, ErrReplayedSignature),
		errors.Is(err, ErrStaleTimestamp):
		return http.StatusForbidden
	case errors.Is(err, ErrVerificationFailed):
		return http.StatusInternalServerError
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrSelfTransfer):
		return http.StatusBadRequest
	case errors.Is(err, ErrRecipientNotFound), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the client-facing text for err. Unclassified errors collapse
// to a generic message so store details never leak.
func PublicMessage(err error) string {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Error()
	}
	for _, known := range []error{
		ErrUnauthorized, ErrMissingSignature, ErrInvalidSignature, ErrNoPublicKey,
		ErrVerificationFailed, ErrReplayedSignature, ErrStaleTimestamp,
		ErrInsufficientFunds, ErrRecipientNotFound, ErrSelfTransfer,
		ErrTransactionFailed, ErrNotFound, ErrInvalidRequest, ErrValidation,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return ErrInternalServer.Error()
}
