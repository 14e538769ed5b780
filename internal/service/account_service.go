// internal/service/account_service.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"coinflip-settlement/internal/domain"
	"coinflip-settlement/internal/ledger"
	"coinflip-settlement/internal/repository"
	"coinflip-settlement/internal/util"
)

// MaxHistoryLimit caps an explicitly requested history page.
const MaxHistoryLimit = 100

// AccountService defines account registration and wager history.
type AccountService interface {
	// Connect registers an address, returning the existing account when already registered.
	Connect(ctx context.Context, address string) (*domain.Account, bool, error)
	// History returns an account's wagers newest first and the total count.
	// A limit of 0 returns every wager.
	History(ctx context.Context, address string, limit, offset int) ([]domain.WagerView, int64, error)
}

// accountService implements the AccountService interface.
type accountService struct {
	dbExecutor  repository.DBExecutor
	accountRepo repository.AccountRepository
	wagerRepo   repository.WagerRepository
	logger      *zap.Logger
}

// NewAccountService creates a new instance of AccountService.
func NewAccountService(
	dbExecutor repository.DBExecutor,
	accountRepo repository.AccountRepository,
	wagerRepo repository.WagerRepository,
	logger *zap.Logger,
) AccountService {
	return &accountService{
		dbExecutor:  dbExecutor,
		accountRepo: accountRepo,
		wagerRepo:   wagerRepo,
		logger:      logger,
	}
}

// Connect gets or creates the account for address.
func (s *accountService) Connect(ctx context.Context, address string) (*domain.Account, bool, error) {
	if !ledger.ValidAddress(address) {
		return nil, false, fmt.Errorf("connect: %q is not a ledger address: %w", address, util.ErrInvalidInput)
	}

	account := domain.NewAccount(address)
	created, err := s.accountRepo.CreateAccount(ctx, s.dbExecutor, account)
	if err != nil {
		return nil, false, fmt.Errorf("connect: %w", err)
	}
	if created {
		s.logger.Info("account registered", zap.String("address", address), zap.Int64("account_id", account.ID))
	}
	return account, created, nil
}

// History lists the wagers of a registered address.
func (s *accountService) History(ctx context.Context, address string, limit, offset int) ([]domain.WagerView, int64, error) {
	if !ledger.ValidAddress(address) {
		return nil, 0, fmt.Errorf("history: %q is not a ledger address: %w", address, util.ErrInvalidInput)
	}
	if limit < 0 {
		limit = 0
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	account, err := s.accountRepo.GetAccountByAddress(ctx, s.dbExecutor, address)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, 0, fmt.Errorf("history: %s: %w", address, util.ErrUnknownAccount)
		}
		return nil, 0, fmt.Errorf("history: %w", err)
	}

	wagers, total, err := s.wagerRepo.ListWagers(ctx, s.dbExecutor, account.ID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("history: %w", err)
	}
	return wagers, total, nil
}
