package usecase

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/King-Austin/securecipher-bankingapi/internal/domain"
	"github.com/King-Austin/securecipher-bankingapi/internal/repository/memory"
	"github.com/King-Austin/securecipher-bankingapi/shared/auth/signature"
	xerrors "github.com/King-Austin/securecipher-bankingapi/shared/utils/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAccountUsecase(store *memory.Store) *AccountUsecase {
	return NewAccountUsecase(store, store, NewResolutionUsecase(store, ""), nil, zap.NewNop())
}

func TestVerifyAccount(t *testing.T) {
	uc := newAccountUsecase(memory.New(alice(), bob()))

	v, err := uc.VerifyAccount(context.Background(), "8000000001")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountVerification{Exists: true, Name: "Alice Ade", Bank: DefaultBankName}, *v)

	v, err = uc.VerifyAccount(context.Background(), "8000000002")
	require.NoError(t, err)
	assert.Equal(t, "bob", v.Name)

	v, err = uc.VerifyAccount(context.Background(), "8123456789")
	require.NoError(t, err)
	assert.False(t, v.Exists)
	assert.Equal(t, MessageAccountNotFound, v.Message)

	_, err = uc.VerifyAccount(context.Background(), " ")
	assert.ErrorIs(t, err, xerrors.ErrValidation)
}

func TestUpdatePublicKey(t *testing.T) {
	store := memory.New(alice())
	uc := newAccountUsecase(store)

	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	good, err := signature.EncodePublicKey(&p384.PublicKey)
	require.NoError(t, err)

	acc, err := uc.UpdatePublicKey(context.Background(), "1", good)
	require.NoError(t, err)
	assert.Equal(t, good, acc.PublicKey)

	key, err := uc.PublicKey(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, good, key)

	p256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	wrongCurve, err := signature.EncodePublicKey(&p256.PublicKey)
	require.NoError(t, err)

	for _, bad := range []string{"", "not-a-key", wrongCurve} {
		_, err := uc.UpdatePublicKey(context.Background(), "1", bad)
		assert.ErrorIs(t, err, xerrors.ErrValidation)
	}

	_, err = uc.UpdatePublicKey(context.Background(), "404", good)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestSetPin(t *testing.T) {
	uc := newAccountUsecase(memory.New(alice()))

	acc, err := uc.SetPin(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, acc.PinSet)

	_, err = uc.SetPin(context.Background(), "nobody")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestHistoryAndLookup(t *testing.T) {
	store := memory.New(alice(), bob())
	f := &fixture{store: store}
	f.uc = NewTransferUsecase(store, store, NewResolutionUsecase(store, ""), nil, nil, zap.NewNop(), TransferConfig{})
	uc := newAccountUsecase(store)

	rec, err := f.uc.Transfer(context.Background(), internalReq("20"))
	require.NoError(t, err)

	history, err := uc.History(context.Background(), domain.TransactionFilter{UserID: "1"})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, rec.Reference, history[0].Reference)

	got, err := uc.TransactionByReference(context.Background(), "1", rec.Reference)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	// records are private to their owner
	_, err = uc.TransactionByReference(context.Background(), "2", rec.Reference)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}
