// internal/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	router "coinflip-settlement/internal/api"
	"coinflip-settlement/internal/api/handler"
	"coinflip-settlement/internal/cache"
	"coinflip-settlement/internal/config"
	"coinflip-settlement/internal/events"
	"coinflip-settlement/internal/ledger"
	"coinflip-settlement/internal/repository"
	"coinflip-settlement/internal/repository/postgres"
	"coinflip-settlement/internal/service"
	"coinflip-settlement/internal/util"
	"coinflip-settlement/pkg/db"
	"coinflip-settlement/pkg/lock"
)

const serviceName = "coinflip-settlement"

// publisher is an event sink that owns connections.
type publisher interface {
	service.EventPublisher
	Close() error
}

// Application holds all the initialized components of the application.
type Application struct {
	Config *config.AppConfig
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *goredis.Client // nil when REDIS_ADDR is unset
	Ledger ledger.Client

	// Repositories
	AccountRepository repository.AccountRepository
	WagerRepository   repository.WagerRepository
	PayoutRepository  repository.PayoutRepository

	// Services
	SettlementService service.SettlementService
	AccountService    service.AccountService
	PayoutWorker      *service.PayoutWorker

	// HTTP API
	HTTPHandler http.Handler

	events       publisher
	stopWorkers  context.CancelFunc
	workersGroup sync.WaitGroup
}

// NewApplication creates a new Application instance.
func NewApplication() *Application {
	return &Application{}
}

// Initialize initializes all application components and starts the payout worker.
func (app *Application) Initialize(ctx context.Context) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	app.Config = cfg

	// 2. Initialize Logger
	logger, err := util.NewLogger(serviceName, cfg.Env)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	app.Logger = logger
	zap.ReplaceGlobals(logger)
	app.Logger.Info("Application configuration loaded successfully.")

	// 3. Connect to Database and apply migrations
	database, err := db.NewPostgresDB(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = database
	if err := db.MigrateUp(app.DB); err != nil {
		return err
	}
	app.Logger.Info("Database connection established.", zap.String("host", cfg.DB.Host), zap.String("db", cfg.DB.DBName))

	// 4. Ledger client signing with the custodial key
	custodian, err := ledger.ParseKeypair(cfg.Ledger.CustodialPrivateKey)
	if err != nil {
		return fmt.Errorf("invalid custodial key: %w", err)
	}
	app.Ledger = ledger.NewRPCClient(cfg.Ledger.RPCURL, custodian, cfg.Ledger.RequestTimeout)
	app.Logger.Info("Ledger client initialized.",
		zap.String("rpc_url", cfg.Ledger.RPCURL),
		zap.String("custodial_address", custodian.Address()))

	// 5. Deposit lock and result cache: Redis when configured, Postgres advisory locks otherwise
	var (
		locker      lock.Locker
		resultCache service.ResultCache = cache.NopResultCache{}
	)
	if cfg.RedisAddr != "" {
		rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		app.Redis = rdb
		locker = lock.NewRedisLocker(rdb, cfg.Settlement.LockTTL)
		resultCache = cache.NewResultCache(rdb, cfg.Settlement.ResultCacheTTL)
		app.Logger.Info("Redis lock and result cache enabled.", zap.String("addr", cfg.RedisAddr))
	} else {
		locker = lock.NewAdvisoryLocker(app.DB)
		app.Logger.Info("Redis not configured, using Postgres advisory locks.")
	}

	// 6. Event publishing
	if cfg.KafkaBrokers != "" {
		app.events = events.NewKafkaPublisher(
			events.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerSettled),
			events.NewWriter(cfg.KafkaBrokers, cfg.TopicPayoutUpdated),
		)
		app.Logger.Info("Kafka event publishing enabled.", zap.String("brokers", cfg.KafkaBrokers))
	} else {
		app.events = events.NopPublisher{}
	}

	// 7. Initialize Repositories
	app.AccountRepository = postgres.NewAccountRepository()
	app.WagerRepository = postgres.NewWagerRepository()
	app.PayoutRepository = postgres.NewPayoutRepository()
	app.Logger.Info("Repositories initialized.")

	// 8. Initialize Services
	disburser := service.NewPayoutDisburser(
		app.DB,
		app.PayoutRepository,
		app.Ledger,
		app.events,
		cfg.Settlement.FeePercent,
		cfg.Payout.Expiry,
		app.Logger.Named("payout"),
	)
	app.SettlementService = service.NewSettlementService(service.SettlementDeps{
		DBBeginner:  app.DB,
		DBExecutor:  app.DB,
		AccountRepo: app.AccountRepository,
		WagerRepo:   app.WagerRepository,
		Verifier: service.NewDepositVerifier(
			app.Ledger,
			cfg.Settlement.DepositPollAttempts,
			cfg.Settlement.DepositPollInterval,
			app.Logger.Named("deposit"),
		),
		Resolver:   service.NewOutcomeResolver(),
		Disburser:  disburser,
		Locker:     locker,
		Cache:      resultCache,
		Events:     app.events,
		BeginTx:    db.BeginTx,
		CommitTx:   db.CommitTx,
		RollbackTx: db.RollbackTx,
		Logger:     app.Logger.Named("settlement"),
	})
	app.AccountService = service.NewAccountService(app.DB, app.AccountRepository, app.WagerRepository, app.Logger.Named("account"))
	app.PayoutWorker = service.NewPayoutWorker(
		app.DB,
		app.PayoutRepository,
		disburser,
		locker,
		cfg.Payout.WorkerInterval,
		cfg.Payout.MaxAttempts,
		cfg.Payout.BatchSize,
		app.Logger.Named("payout_worker"),
	)
	app.Logger.Info("Services initialized.")

	// 9. Background workers
	// The worker outlives the init context and stops on Shutdown.
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	app.stopWorkers = cancel
	app.PayoutWorker.Start(workerCtx, &app.workersGroup)

	// 10. Initialize HTTP Handlers and Router
	app.HTTPHandler = router.NewRouter(
		handler.NewSettlementHandler(app.SettlementService, app.Logger),
		handler.NewAccountHandler(app.AccountService, app.Logger),
		app.healthCheck,
		app.Logger.Named("http"),
	)
	app.Logger.Info("HTTP router and handlers initialized.")

	return nil
}

// healthCheck pings the database and, when configured, Redis.
func (app *Application) healthCheck(ctx context.Context) error {
	if err := app.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if app.Redis != nil {
		if err := app.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Shutdown stops background workers and releases application resources.
func (app *Application) Shutdown(ctx context.Context) error {
	if app.Logger == nil {
		return nil
	}
	app.Logger.Info("Shutting down application...")

	if app.stopWorkers != nil {
		app.stopWorkers()
		done := make(chan struct{})
		go func() {
			app.workersGroup.Wait()
			close(done)
		}()
		select {
		case <-done:
			app.Logger.Info("Background workers stopped.")
		case <-ctx.Done():
			app.Logger.Warn("Timed out waiting for background workers.")
		}
	}

	var errs []error
	if app.events != nil {
		if err := app.events.Close(); err != nil {
			app.Logger.Error("Failed to close event publisher", zap.Error(err))
			errs = append(errs, fmt.Errorf("failed to close event publisher: %w", err))
		}
	}
	if app.Redis != nil {
		if err := app.Redis.Close(); err != nil {
			app.Logger.Error("Failed to close Redis client", zap.Error(err))
			errs = append(errs, fmt.Errorf("failed to close redis client: %w", err))
		}
	}
	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			app.Logger.Error("Failed to close database connection", zap.Error(err))
			errs = append(errs, fmt.Errorf("failed to close database connection: %w", err))
		} else {
			app.Logger.Info("Database connection closed.")
		}
	}

	app.Logger.Info("Application shut down.")
	_ = app.Logger.Sync()
	return errors.Join(errs...)
}
