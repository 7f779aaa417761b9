// Package memory implements the repository interfaces in process for tests.
// One mutex serializes every atomic unit, which gives the same guarantees as
// row locks on the touched accounts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/King-Austin/securecipher-bankingapi/internal/domain"
	"github.com/King-Austin/securecipher-bankingapi/internal/repository"
	xerrors "github.com/King-Austin/securecipher-bankingapi/shared/utils/errors"

	"github.com/shopspring/decimal"
)

var (
	_ repository.AccountRepository     = (*Store)(nil)
	_ repository.TransactionRepository = (*Store)(nil)
	_ repository.LedgerRepository      = (*Store)(nil)
)

// Store implements the account, transaction and ledger repositories in memory.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[string]*domain.Account
	records  []*domain.Transaction
	refs     map[string]bool

	// GetErr fails every account-number lookup when set.
	GetErr error
	// FailInsert can veto a record before it is staged.
	FailInsert func(t *domain.Transaction) error

	lookups   int
	lockCalls [][]string
}

func New(accounts ...*domain.Account) *Store {
	s := &Store{accounts: map[string]*domain.Account{}, refs: map[string]bool{}}
	for _, a := range accounts {
		s.nextID++
		a.ID = s.nextID
		cp := *a
		s.accounts[a.AccountNumber] = &cp
	}
	return s
}

func (s *Store) Balance(accountNumber string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[accountNumber].Balance
}

func (s *Store) RecordsFor(userID string) []*domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Transaction
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

// Lookups counts GetByAccountNumber calls.
func (s *Store) Lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

// LockCalls lists the account numbers of every LockAccounts call in order.
func (s *Store) LockCalls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.lockCalls...)
}

// MarkReference makes ref look already used.
func (s *Store) MarkReference(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[ref] = true
}

func (s *Store) RecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// AccountRepository

func (s *Store) Create(_ context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.AccountNumber]; ok {
		return xerrors.Field("account_number", "a record with this account number already exists")
	}
	s.nextID++
	a.ID = s.nextID
	cp := *a
	s.accounts[a.AccountNumber] = &cp
	return nil
}

func (s *Store) GetByAccountNumber(_ context.Context, accountNumber string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	a, ok := s.accounts[accountNumber]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) GetByUserID(_ context.Context, userID string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.byUser(userID)
	if a == nil {
		return nil, xerrors.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) byUser(userID string) *domain.Account {
	for _, a := range s.accounts {
		if a.UserID == userID {
			return a
		}
	}
	return nil
}

func (s *Store) UpdatePublicKey(_ context.Context, userID, publicKey string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.byUser(userID)
	if a == nil {
		return nil, xerrors.ErrNotFound
	}
	a.PublicKey = publicKey
	cp := *a
	return &cp, nil
}

func (s *Store) SetPinFlag(_ context.Context, userID string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.byUser(userID)
	if a == nil {
		return nil, xerrors.ErrNotFound
	}
	a.PinSet = true
	cp := *a
	return &cp, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// TransactionRepository

func (s *Store) ListByUser(_ context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	out := s.RecordsFor(filter.UserID)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetByReference(_ context.Context, userID, reference string) (*domain.Transaction, error) {
	for _, r := range s.RecordsFor(userID) {
		if r.Reference == reference {
			return r, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

// LedgerRepository

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &storeTx{store: s, balances: map[int64]decimal.Decimal{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, a := range s.accounts {
		if b, ok := tx.balances[a.ID]; ok {
			a.Balance = b
		}
	}
	for _, r := range tx.records {
		s.refs[r.Reference] = true
		s.records = append(s.records, r)
	}
	return nil
}

type storeTx struct {
	store    *Store
	balances map[int64]decimal.Decimal
	records  []*domain.Transaction
}

func (tx *storeTx) LockAccounts(_ context.Context, accountNumbers ...string) (map[string]*domain.Account, error) {
	ordered := append([]string(nil), accountNumbers...)
	sort.Strings(ordered)
	tx.store.lockCalls = append(tx.store.lockCalls, ordered)

	out := map[string]*domain.Account{}
	for _, n := range ordered {
		if a, ok := tx.store.accounts[n]; ok {
			cp := *a
			out[n] = &cp
		}
	}
	return out, nil
}

func (tx *storeTx) UpdateBalance(_ context.Context, accountID int64, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return xerrors.Field("balance", "value violates balance rules")
	}
	tx.balances[accountID] = balance
	return nil
}

func (tx *storeTx) InsertTransaction(_ context.Context, t *domain.Transaction) error {
	if tx.store.FailInsert != nil {
		if err := tx.store.FailInsert(t); err != nil {
			return err
		}
	}
	if tx.store.refs[t.Reference] {
		return fmt.Errorf("%w: Key (reference)=(%s) already exists", xerrors.ErrReferenceCollision, t.Reference)
	}
	for _, r := range tx.records {
		if r.Reference == t.Reference {
			return fmt.Errorf("%w: Key (reference)=(%s) already exists", xerrors.ErrReferenceCollision, t.Reference)
		}
	}
	tx.records = append(tx.records, t)
	return nil
}

// Events records transfer outcomes.
type Events struct {
	mu        sync.Mutex
	Completed []*domain.TransferResult
	Failed    []error
}

func (e *Events) TransferCompleted(_ context.Context, res *domain.TransferResult) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Completed = append(e.Completed, res)
	return nil
}

func (e *Events) TransferFailed(_ context.Context, _ domain.TransferRequest, _, _ string, cause error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Failed = append(e.Failed, cause)
	return nil
}
