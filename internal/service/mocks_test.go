// internal/service/mocks_test.go
package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"coinflip-settlement/internal/domain"
	"coinflip-settlement/internal/ledger"
	"coinflip-settlement/internal/repository"
	"coinflip-settlement/internal/util"
	"coinflip-settlement/pkg/db"
	"coinflip-settlement/pkg/lock"
)

// MockDBExecutor is a mock implementation of repository.DBExecutor.
type MockDBExecutor struct {
	mock.Mock
}

func (m *MockDBExecutor) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	argsCalled := m.Called(ctx, dest, query, args)
	return argsCalled.Error(0)
}

func (m *MockDBExecutor) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	argsCalled := m.Called(ctx, dest, query, args)
	return argsCalled.Error(0)
}

func (m *MockDBExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	argsCalled := m.Called(ctx, query, args)
	return argsCalled.Get(0).(sql.Result), argsCalled.Error(1)
}

func (m *MockDBExecutor) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	m.Called(ctx, query, args)
	return &sql.Row{}
}

// MockDBBeginner is a mock implementation of db.DBTxBeginner.
type MockDBBeginner struct {
	mock.Mock
}

func (m *MockDBBeginner) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	args := m.Called(ctx, opts)
	return &sqlx.Tx{}, args.Error(1)
}

// MockTxController is a mock implementation of db.TxController.
// It also implicitly implements repository.DBExecutor for testing purposes
// by embedding MockDBExecutor.
type MockTxController struct {
	mock.Mock
	MockDBExecutor
}

func (m *MockTxController) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTxController) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// txFuncs wires the injected transaction functions to a MockTxController.
func txFuncs(tx *MockTxController) (db.BeginTxFunc, db.CommitTxFunc, db.RollbackTxFunc) {
	return func(ctx context.Context, dbConn db.DBTxBeginner) (db.TxController, error) {
			return tx, nil
		},
		func(db.TxController) error { return tx.Commit() },
		func(db.TxController) { _ = tx.Rollback() }
}

// MockAccountRepository is a mock implementation of repository.AccountRepository.
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) CreateAccount(ctx context.Context, q repository.DBExecutor, account *domain.Account) (bool, error) {
	args := m.Called(ctx, q, account)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountRepository) GetAccountByAddress(ctx context.Context, q repository.DBExecutor, address string) (*domain.Account, error) {
	args := m.Called(ctx, q, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

// MockWagerRepository is a mock implementation of repository.WagerRepository.
type MockWagerRepository struct {
	mock.Mock
}

func (m *MockWagerRepository) RecordSettlement(ctx context.Context, q repository.DBExecutor, wager *domain.Wager, payout *domain.Payout) error {
	args := m.Called(ctx, q, wager, payout)
	return args.Error(0)
}

func (m *MockWagerRepository) GetByDepositReference(ctx context.Context, q repository.DBExecutor, depositReference string) (*domain.WagerView, error) {
	args := m.Called(ctx, q, depositReference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WagerView), args.Error(1)
}

func (m *MockWagerRepository) ListWagers(ctx context.Context, q repository.DBExecutor, accountID int64, limit, offset int) ([]domain.WagerView, int64, error) {
	args := m.Called(ctx, q, accountID, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.WagerView), args.Get(1).(int64), args.Error(2)
}

// MockPayoutRepository is a mock implementation of repository.PayoutRepository.
type MockPayoutRepository struct {
	mock.Mock
}

func (m *MockPayoutRepository) GetPayoutByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Payout, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payout), args.Error(1)
}

func (m *MockPayoutRepository) ListPayoutsByStatus(ctx context.Context, q repository.DBExecutor, status domain.PayoutStatus, limit int) ([]domain.Payout, error) {
	args := m.Called(ctx, q, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Payout), args.Error(1)
}

func (m *MockPayoutRepository) MarkSubmitted(ctx context.Context, q repository.DBExecutor, id int64, signature string, submittedAt time.Time) error {
	return m.Called(ctx, q, id, signature, submittedAt).Error(0)
}

func (m *MockPayoutRepository) MarkFailed(ctx context.Context, q repository.DBExecutor, id int64, reason string) error {
	return m.Called(ctx, q, id, reason).Error(0)
}

func (m *MockPayoutRepository) MarkSubmissionFailed(ctx context.Context, q repository.DBExecutor, id int64, signature, reason string) error {
	return m.Called(ctx, q, id, signature, reason).Error(0)
}

func (m *MockPayoutRepository) MarkConfirmed(ctx context.Context, q repository.DBExecutor, id int64, signature string) error {
	return m.Called(ctx, q, id, signature).Error(0)
}

func (m *MockPayoutRepository) MarkAbandoned(ctx context.Context, q repository.DBExecutor, id int64, reason string) error {
	return m.Called(ctx, q, id, reason).Error(0)
}

// MockLedgerClient is a mock implementation of ledger.Client.
type MockLedgerClient struct {
	mock.Mock
	custody string
}

func (m *MockLedgerClient) FetchTransaction(ctx context.Context, reference string) (*ledger.TransactionRecord, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.TransactionRecord), args.Error(1)
}

func (m *MockLedgerClient) PrepareTransfer(ctx context.Context, to string, lamports uint64) (*ledger.PreparedTransfer, error) {
	args := m.Called(ctx, to, lamports)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.PreparedTransfer), args.Error(1)
}

func (m *MockLedgerClient) SendTransfer(ctx context.Context, transfer *ledger.PreparedTransfer) error {
	return m.Called(ctx, transfer).Error(0)
}

func (m *MockLedgerClient) SignatureStatus(ctx context.Context, signature string) (*ledger.SignatureStatus, error) {
	args := m.Called(ctx, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.SignatureStatus), args.Error(1)
}

func (m *MockLedgerClient) CustodialAddress() string {
	return m.custody
}

// MockDepositVerifier is a mock implementation of DepositVerifier.
type MockDepositVerifier struct {
	mock.Mock
}

func (m *MockDepositVerifier) Verify(ctx context.Context, reference string) (*VerifiedDeposit, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*VerifiedDeposit), args.Error(1)
}

// fixedResolver always lands on side.
type fixedResolver struct {
	side domain.Side
}

func (r fixedResolver) Resolve(string) (Outcome, error) {
	return Outcome{Side: r.side, Seed: "00"}, nil
}

// MockPayoutDisburser is a mock implementation of PayoutDisburser.
type MockPayoutDisburser struct {
	mock.Mock
}

func (m *MockPayoutDisburser) PayoutAmount(wager domain.Lamports) (domain.Lamports, domain.Lamports) {
	args := m.Called(wager)
	return args.Get(0).(domain.Lamports), args.Get(1).(domain.Lamports)
}

func (m *MockPayoutDisburser) Disburse(ctx context.Context, payout *domain.Payout) error {
	return m.Called(ctx, payout).Error(0)
}

func (m *MockPayoutDisburser) Track(ctx context.Context, payout *domain.Payout) (domain.PayoutStatus, error) {
	args := m.Called(ctx, payout)
	return args.Get(0).(domain.PayoutStatus), args.Error(1)
}

func (m *MockPayoutDisburser) Abandon(ctx context.Context, payout *domain.Payout, reason string) error {
	return m.Called(ctx, payout, reason).Error(0)
}

// MockResultCache is a mock implementation of ResultCache.
type MockResultCache struct {
	mock.Mock
}

func (m *MockResultCache) Get(ctx context.Context, depositReference string) (*domain.SettlementResult, error) {
	args := m.Called(ctx, depositReference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SettlementResult), args.Error(1)
}

func (m *MockResultCache) Set(ctx context.Context, res *domain.SettlementResult) error {
	return m.Called(ctx, res).Error(0)
}

// MockEventPublisher is a mock implementation of EventPublisher.
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishWagerSettled(ctx context.Context, res *domain.SettlementResult) error {
	return m.Called(ctx, res).Error(0)
}

func (m *MockEventPublisher) PublishPayoutUpdated(ctx context.Context, payout *domain.Payout) error {
	return m.Called(ctx, payout).Error(0)
}

// memLocker is an in-process lock.Locker.
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]bool{}}
}

func (l *memLocker) Acquire(_ context.Context, key string) (lock.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, lock.ErrLocked
	}
	l.held[key] = true
	return &memLock{locker: l, key: key}, nil
}

func (l *memLocker) isHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key]
}

type memLock struct {
	locker *memLocker
	key    string
	once   sync.Once
}

func (m *memLock) Release(context.Context) error {
	m.once.Do(func() {
		m.locker.mu.Lock()
		delete(m.locker.held, m.key)
		m.locker.mu.Unlock()
	})
	return nil
}

// memWagerRepository enforces the deposit reference uniqueness in memory.
type memWagerRepository struct {
	mu      sync.Mutex
	wagers  map[string]*domain.Wager
	payouts map[string]*domain.Payout
}

func newMemWagerRepository() *memWagerRepository {
	return &memWagerRepository{wagers: map[string]*domain.Wager{}, payouts: map[string]*domain.Payout{}}
}

func (r *memWagerRepository) RecordSettlement(_ context.Context, _ repository.DBExecutor, wager *domain.Wager, payout *domain.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wagers[wager.DepositReference]; ok {
		return util.ErrDuplicateDeposit
	}
	r.wagers[wager.DepositReference] = wager
	if payout != nil {
		payout.ID = int64(len(r.payouts) + 1)
		r.payouts[wager.DepositReference] = payout
	}
	return nil
}

func (r *memWagerRepository) GetByDepositReference(_ context.Context, _ repository.DBExecutor, ref string) (*domain.WagerView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wagers[ref]
	if !ok {
		return nil, util.ErrNotFound
	}
	view := &domain.WagerView{Wager: *w}
	if p, ok := r.payouts[ref]; ok {
		status := p.Status
		view.PayoutStatus = &status
	}
	return view, nil
}

func (r *memWagerRepository) ListWagers(context.Context, repository.DBExecutor, int64, int, int) ([]domain.WagerView, int64, error) {
	return nil, 0, nil
}

func (r *memWagerRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.wagers)
}
