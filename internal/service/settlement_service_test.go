// internal/service/settlement_service_test.go
package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"coinflip-settlement/internal/cache"
	"coinflip-settlement/internal/domain"
	"coinflip-settlement/internal/util"
	"coinflip-settlement/pkg/lock"
)

// testSignature returns a well-formed transaction signature.
func testSignature(b byte) string {
	return base58.Encode(bytes.Repeat([]byte{b}, 64))
}

type settlementMocks struct {
	accountRepo *MockAccountRepository
	wagerRepo   *MockWagerRepository
	verifier    *MockDepositVerifier
	disburser   *MockPayoutDisburser
	cache       *MockResultCache
	events      *MockEventPublisher
	tx          *MockTxController
	locker      *memLocker
}

func newSettlement(resolver OutcomeResolver) (SettlementService, *settlementMocks) {
	return newSettlementWithLogger(resolver, zap.NewNop())
}

func newSettlementWithLogger(resolver OutcomeResolver, logger *zap.Logger) (SettlementService, *settlementMocks) {
	m := &settlementMocks{
		accountRepo: new(MockAccountRepository),
		wagerRepo:   new(MockWagerRepository),
		verifier:    new(MockDepositVerifier),
		disburser:   new(MockPayoutDisburser),
		cache:       new(MockResultCache),
		events:      new(MockEventPublisher),
		tx:          new(MockTxController),
		locker:      newMemLocker(),
	}
	begin, commit, rollback := txFuncs(m.tx)
	svc := NewSettlementService(SettlementDeps{
		DBBeginner:  new(MockDBBeginner),
		DBExecutor:  new(MockDBExecutor),
		AccountRepo: m.accountRepo,
		WagerRepo:   m.wagerRepo,
		Verifier:    m.verifier,
		Resolver:    resolver,
		Disburser:   m.disburser,
		Locker:      m.locker,
		Cache:       m.cache,
		Events:      m.events,
		BeginTx:     begin,
		CommitTx:    commit,
		RollbackTx:  rollback,
		Logger:      logger,
	})
	return svc, m
}

func (m *settlementMocks) expectFreshDeposit(ref string, payer string, amount domain.Lamports) {
	m.cache.On("Get", mock.Anything, ref).Return(nil, nil).Once()
	m.wagerRepo.On("GetByDepositReference", mock.Anything, mock.Anything, ref).Return(nil, util.ErrNotFound).Once()
	m.verifier.On("Verify", mock.Anything, ref).
		Return(&VerifiedDeposit{Reference: ref, PayerAddress: payer, Amount: amount}, nil).Once()
	m.accountRepo.On("GetAccountByAddress", mock.Anything, mock.Anything, payer).
		Return(&domain.Account{ID: 11, Address: payer}, nil).Once()
}

func (m *settlementMocks) expectRecorded() *mock.Call {
	m.tx.On("Commit").Return(nil).Once()
	m.tx.On("Rollback").Return(nil).Maybe()
	m.cache.On("Set", mock.Anything, mock.AnythingOfType("*domain.SettlementResult")).Return(nil).Once()
	m.events.On("PublishWagerSettled", mock.Anything, mock.AnythingOfType("*domain.SettlementResult")).Return(nil).Once()
	return m.wagerRepo.On("RecordSettlement", mock.Anything, mock.Anything, mock.AnythingOfType("*domain.Wager"), mock.Anything).Return(nil).Once()
}

func (m *settlementMocks) assertAll(t *testing.T) {
	t.Helper()
	m.accountRepo.AssertExpectations(t)
	m.wagerRepo.AssertExpectations(t)
	m.verifier.AssertExpectations(t)
	m.disburser.AssertExpectations(t)
	m.cache.AssertExpectations(t)
	m.events.AssertExpectations(t)
	m.tx.AssertExpectations(t)
}

func TestSettle(t *testing.T) {
	payer := "PayerAddr"

	t.Run("Won", func(t *testing.T) {
		ctx := context.Background()
		ref := testSignature(1)
		svc, m := newSettlement(fixedResolver{side: domain.SideA})
		m.expectFreshDeposit(ref, payer, 1_000_000_000)
		var recorded *domain.Payout
		m.expectRecorded().Run(func(args mock.Arguments) {
			recorded = args.Get(3).(*domain.Payout)
		})
		m.disburser.On("PayoutAmount", domain.Lamports(1_000_000_000)).
			Return(domain.Lamports(950_000_000), domain.Lamports(50_000_000)).Once()
		m.disburser.On("Disburse", mock.Anything, mock.AnythingOfType("*domain.Payout")).
			Run(func(args mock.Arguments) { args.Get(1).(*domain.Payout).Status = domain.PayoutStatusSubmitted }).
			Return(nil).Once()

		res, err := svc.Settle(ctx, SettleRequest{DepositReference: ref, ChosenSide: domain.SideA})
		require.NoError(t, err)

		assert.True(t, res.Won)
		assert.Equal(t, domain.SideA, res.OutcomeSide)
		assert.Equal(t, domain.Lamports(1_000_000_000), res.WagerAmount)
		assert.Equal(t, "0.95", res.PayoutAmount.String())
		assert.Equal(t, domain.Lamports(50_000_000), res.FeeAmount)
		require.NotNil(t, res.PayoutStatus)
		assert.Equal(t, domain.PayoutStatusSubmitted, *res.PayoutStatus)

		require.NotNil(t, recorded)
		assert.Equal(t, payer, recorded.RecipientAddress)
		assert.Equal(t, domain.Lamports(950_000_000), recorded.Amount)
		assert.False(t, m.locker.isHeld(cache.LockKey(ref)))
		m.assertAll(t)
	})

	t.Run("Lost", func(t *testing.T) {
		ctx := context.Background()
		ref := testSignature(2)
		svc, m := newSettlement(fixedResolver{side: domain.SideB})
		m.expectFreshDeposit(ref, payer, 1_000_000_000)
		m.disburser.On("PayoutAmount", domain.Lamports(1_000_000_000)).
			Return(domain.Lamports(950_000_000), domain.Lamports(50_000_000)).Once()
		m.wagerRepo.On("RecordSettlement", mock.Anything, mock.Anything, mock.AnythingOfType("*domain.Wager"), (*domain.Payout)(nil)).
			Run(func(args mock.Arguments) {
				w := args.Get(2).(*domain.Wager)
				assert.Equal(t, domain.WagerStatusLost, w.Status)
				assert.Zero(t, w.PayoutAmount)
			}).Return(nil).Once()
		m.tx.On("Commit").Return(nil).Once()
		m.tx.On("Rollback").Return(nil).Maybe()
		m.cache.On("Set", mock.Anything, mock.Anything).Return(nil).Once()
		m.events.On("PublishWagerSettled", mock.Anything, mock.Anything).Return(nil).Once()

		res, err := svc.Settle(ctx, SettleRequest{DepositReference: ref, ChosenSide: domain.SideA})
		require.NoError(t, err)
		assert.False(t, res.Won)
		assert.Equal(t, domain.SideB, res.OutcomeSide)
		assert.Zero(t, res.PayoutAmount)
		assert.Nil(t, res.PayoutStatus)
		m.disburser.AssertNotCalled(t, "Disburse", mock.Anything, mock.Anything)
		m.assertAll(t)
	})

	t.Run("PayoutFailureKeepsWin", func(t *testing.T) {
		ctx := context.Background()
		ref := testSignature(3)
		svc, m := newSettlement(fixedResolver{side: domain.SideB})
		m.expectFreshDeposit(ref, payer, 2_000_000_000)
		m.expectRecorded()
		m.disburser.On("PayoutAmount", domain.Lamports(2_000_000_000)).
			Return(domain.Lamports(1_900_000_000), domain.Lamports(100_000_000)).Once()
		m.disburser.On("Disburse", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { args.Get(1).(*domain.Payout).Status = domain.PayoutStatusFailed }).
			Return(util.ErrPayoutFailed).Once()

		res, err := svc.Settle(ctx, SettleRequest{DepositReference: ref, ChosenSide: domain.SideB})
		require.NoError(t, err)
		assert.True(t, res.Won)
		assert.Equal(t, domain.PayoutStatusFailed, *res.PayoutStatus)
		m.assertAll(t)
	})

	t.Run("CachedResultIsDuplicate", func(t *testing.T) {
		ref := testSignature(4)
		core, logs := observer.New(zap.InfoLevel)
		svc, m := newSettlementWithLogger(fixedResolver{side: domain.SideA}, zap.New(core))
		cached := &domain.SettlementResult{DepositReference: ref, OutcomeSide: domain.SideB, Won: false}
		m.cache.On("Get", mock.Anything, ref).Return(cached, nil).Once()

		res, err := svc.Settle(context.Background(), SettleRequest{DepositReference: ref, ChosenSide: domain.SideA})
		assert.True(t, util.IsError(err, util.ErrDuplicateDeposit))
		assert.Equal(t, cached, res)
		m.verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
		m.assertAll(t)

		entries := logs.FilterMessage("deposit already settled").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zap.InfoLevel, entries[0].Level)
		assert.Equal(t, ref, entries[0].ContextMap()["deposit_reference"])
		assert.Equal(t, "cache", entries[0].ContextMap()["source"])
	})

	t.Run("StoredWagerIsDuplicate", func(t *testing.T) {
		ref := testSignature(5)
		svc, m := newSettlement(fixedResolver{side: domain.SideA})
		m.cache.On("Get", mock.Anything, ref).Return(nil, errors.New("redis down")).Once()

		stored := domain.NewPendingWager(ref, 11, payer, 1_000_000_000, domain.SideA)
		stored.Settle(domain.SideA, "seed", 950_000_000, 50_000_000)
		status := domain.PayoutStatusConfirmed
		m.wagerRepo.On("GetByDepositReference", mock.Anything, mock.Anything, ref).
			Return(&domain.WagerView{Wager: *stored, PayoutStatus: &status}, nil).Once()
		m.cache.On("Set", mock.Anything, mock.Anything).Return(nil).Once()

		// A resubmission claiming the other side still gets the original result.
		res, err := svc.Settle(context.Background(), SettleRequest{DepositReference: ref, ChosenSide: domain.SideB})
		assert.True(t, util.IsError(err, util.ErrDuplicateDeposit))
		require.NotNil(t, res)
		assert.True(t, res.Won)
		assert.Equal(t, domain.SideA, res.OutcomeSide)
		assert.Equal(t, domain.SideA, res.ChosenSide)
		m.verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
		m.wagerRepo.AssertNotCalled(t, "RecordSettlement", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		m.assertAll(t)
	})

	t.Run("LostInsertRaceIsDuplicate", func(t *testing.T) {
		ref := testSignature(6)
		svc, m := newSettlement(fixedResolver{side: domain.SideA})
		m.cache.On("Get", mock.Anything, ref).Return(nil, nil).Once()
		m.wagerRepo.On("GetByDepositReference", mock.Anything, mock.Anything, ref).Return(nil, util.ErrNotFound).Once()
		m.verifier.On("Verify", mock.Anything, ref).
			Return(&VerifiedDeposit{Reference: ref, PayerAddress: payer, Amount: 1_000}, nil).Once()
		m.accountRepo.On("GetAccountByAddress", mock.Anything, mock.Anything, payer).
			Return(&domain.Account{ID: 11, Address: payer}, nil).Once()
		m.disburser.On("PayoutAmount", domain.Lamports(1_000)).Return(domain.Lamports(950), domain.Lamports(50)).Once()
		m.wagerRepo.On("RecordSettlement", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(util.ErrDuplicateDeposit).Once()
		m.tx.On("Rollback").Return(nil).Once()

		winner := domain.NewPendingWager(ref, 11, payer, 1_000, domain.SideB)
		winner.Settle(domain.SideA, "seed", 0, 0)
		m.wagerRepo.On("GetByDepositReference", mock.Anything, mock.Anything, ref).
			Return(&domain.WagerView{Wager: *winner}, nil).Once()
		m.cache.On("Set", mock.Anything, mock.Anything).Return(nil).Once()

		res, err := svc.Settle(context.Background(), SettleRequest{DepositReference: ref, ChosenSide: domain.SideA})
		assert.True(t, util.IsError(err, util.ErrDuplicateDeposit))
		assert.Equal(t, winner.ID, res.WagerID)
		assert.False(t, res.Won)
		m.disburser.AssertNotCalled(t, "Disburse", mock.Anything, mock.Anything)
		m.assertAll(t)
	})

	t.Run("DepositNotFound", func(t *testing.T) {
		ref := testSignature(7)
		svc, m := newSettlement(fixedResolver{side: domain.SideA})
		m.cache.On("Get", mock.Anything, ref).Return(nil, nil).Once()
		m.wagerRepo.On("GetByDepositReference", mock.Anything, mock.Anything, ref).Return(nil, util.ErrNotFound).Once()
		m.verifier.On("Verify", mock.Anything, ref).Return(nil, util.ErrDepositNotFound).Once()

		res, err := svc.Settle(context.Background(), SettleRequest{DepositReference: ref, ChosenSide: domain.SideA})
		assert.True(t, util.IsError(err, util.ErrDepositNotFound))
		assert.Nil(t, res)
		m.wagerRepo.AssertNotCalled(t, "RecordSettlement", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.False(t, m.locker.isHeld(cache.LockKey(ref)))
		m.assertAll(t)
	})

	t.Run("UnknownAccount", func(t *testing.T) {
		ref := testSignature(8)
		svc, m := newSettlement(fixedResolver{side: domain.SideA})
		m.cache.On("Get", mock.Anything, ref).Return(nil, nil).Once()
		m.wagerRepo.On("GetByDepositReference", mock.Anything, mock.Anything, ref).Return(nil, util.ErrNotFound).Once()
		m.verifier.On("Verify", mock.Anything, ref).
			Return(&VerifiedDeposit{Reference: ref, PayerAddress: "stranger", Amount: 10}, nil).Once()
		m.accountRepo.On("GetAccountByAddress", mock.Anything, mock.Anything, "stranger").Return(nil, util.ErrNotFound).Once()

		_, err := svc.Settle(context.Background(), SettleRequest{DepositReference: ref, ChosenSide: domain.SideA})
		assert.True(t, util.IsError(err, util.ErrUnknownAccount))
		m.wagerRepo.AssertNotCalled(t, "RecordSettlement", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		m.assertAll(t)
	})

	t.Run("InProgress", func(t *testing.T) {
		ref := testSignature(9)
		svc, m := newSettlement(fixedResolver{side: domain.SideA})
		m.cache.On("Get", mock.Anything, ref).Return(nil, nil).Once()
		held, err := m.locker.Acquire(context.Background(), cache.LockKey(ref))
		require.NoError(t, err)
		defer held.Release(context.Background())

		_, err = svc.Settle(context.Background(), SettleRequest{DepositReference: ref, ChosenSide: domain.SideA})
		assert.True(t, util.IsError(err, util.ErrSettlementInProgress))
		m.assertAll(t)
	})

	t.Run("InvalidInput", func(t *testing.T) {
		svc, m := newSettlement(fixedResolver{side: domain.SideA})
		cases := []SettleRequest{
			{DepositReference: "", ChosenSide: domain.SideA},
			{DepositReference: "not-a-signature", ChosenSide: domain.SideA},
			{DepositReference: testSignature(10), ChosenSide: "heads"},
		}
		for _, req := range cases {
			_, err := svc.Settle(context.Background(), req)
			assert.True(t, util.IsError(err, util.ErrInvalidInput), "request %+v", req)
		}
		m.assertAll(t)
	})
}

func TestSettleConcurrentSameDeposit(t *testing.T) {
	ref := testSignature(20)
	wagers := newMemWagerRepository()
	accountRepo := new(MockAccountRepository)
	verifier := new(MockDepositVerifier)
	disburser := new(MockPayoutDisburser)
	events := new(MockEventPublisher)
	tx := new(MockTxController)
	begin, commit, rollback := txFuncs(tx)

	accountRepo.On("GetAccountByAddress", mock.Anything, mock.Anything, "PayerAddr").Return(&domain.Account{ID: 1}, nil)
	verifier.On("Verify", mock.Anything, ref).
		Return(&VerifiedDeposit{Reference: ref, PayerAddress: "PayerAddr", Amount: 1_000_000_000}, nil)
	disburser.On("PayoutAmount", mock.Anything).Return(domain.Lamports(950_000_000), domain.Lamports(50_000_000))
	disburser.On("Disburse", mock.Anything, mock.Anything).Return(nil)
	events.On("PublishWagerSettled", mock.Anything, mock.Anything).Return(nil)
	tx.On("Commit").Return(nil)
	tx.On("Rollback").Return(nil)

	svc := NewSettlementService(SettlementDeps{
		DBBeginner:  new(MockDBBeginner),
		DBExecutor:  new(MockDBExecutor),
		AccountRepo: accountRepo,
		WagerRepo:   wagers,
		Verifier:    verifier,
		Resolver:    fixedResolver{side: domain.SideA},
		Disburser:   disburser,
		Locker:      newMemLocker(),
		Cache:       cache.NopResultCache{},
		Events:      events,
		BeginTx:     begin,
		CommitTx:    commit,
		RollbackTx:  rollback,
		Logger:      zap.NewNop(),
	})

	const n = 16
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Settle(context.Background(), SettleRequest{DepositReference: ref, ChosenSide: domain.SideA})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case util.IsError(err, util.ErrSettlementInProgress), util.IsError(err, util.ErrDuplicateDeposit):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, wagers.count())
	disburser.AssertNumberOfCalls(t, "Disburse", 1)
}

func TestSettleUsesOnChainAmount(t *testing.T) {
	ref := testSignature(21)
	svc, m := newSettlement(fixedResolver{side: domain.SideA})
	m.expectFreshDeposit(ref, "PayerAddr", 123_456_789)
	m.expectRecorded()
	m.disburser.On("PayoutAmount", domain.Lamports(123_456_789)).
		Return(domain.Lamports(117_283_949), domain.Lamports(6_172_840)).Once()
	m.disburser.On("Disburse", mock.Anything, mock.Anything).Return(nil).Once()

	res, err := svc.Settle(context.Background(), SettleRequest{DepositReference: ref, ChosenSide: domain.SideA})
	require.NoError(t, err)
	assert.Equal(t, domain.Lamports(123_456_789), res.WagerAmount)
	m.assertAll(t)
}

var _ lock.Locker = (*memLocker)(nil)
