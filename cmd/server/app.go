package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/thatlq1812/user-agreement/internal/clients"
	configs "github.com/thatlq1812/user-agreement/internal/configs"
	"github.com/thatlq1812/user-agreement/internal/database"
	"github.com/thatlq1812/user-agreement/internal/logger"
	"github.com/thatlq1812/user-agreement/internal/notify"
	"github.com/thatlq1812/user-agreement/internal/queue"
	"github.com/thatlq1812/user-agreement/internal/repository"
	"github.com/thatlq1812/user-agreement/internal/repository/memory"
	"github.com/thatlq1812/user-agreement/internal/service"
	"github.com/thatlq1812/user-agreement/internal/session"
	"github.com/thatlq1812/user-agreement/internal/worker"
)

// app holds the wired layers shared by every command.
type app struct {
	cfg *configs.Config
	log *zap.Logger
	db  *pgxpool.Pool

	store    repository.RevisionStore
	ledger   repository.SubmissionLedger
	accounts repository.AccountRepository
	userData repository.UserDataRepository
	settings repository.SettingsRepository
	queue    queue.Queue
	sessions session.Store

	agreementSvc service.AgreementService
	settingsSvc  service.SettingsService
	evaluator    service.ConsentEvaluator
	consentSvc   service.ConsentService

	runner *worker.Runner
}

// newApp loads the config and builds every layer. The caller must defer a.Close().
func newApp(ctx context.Context, component string) (*app, error) {
	// 1. Load configuration
	cfg, err := configs.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.Init(logger.Config{
		Env:         cfg.LogEnv,
		Level:       cfg.LogLevel,
		ServiceName: "user-agreement",
	}).Named(component)

	a := &app{cfg: cfg, log: log}
	clock := service.RealClock{}

	// 2. Storage
	switch cfg.Database.Driver {
	case configs.DriverPostgres:
		pool, err := database.Open(ctx, cfg.Database.URL, database.PoolConfig{
			MaxConns:        cfg.Database.MaxConn,
			MaxConnLifetime: time.Hour,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = pool
		log.Info("database connection established")

		if cfg.Database.AutoMigrate {
			if err := database.Migrate(pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}

		a.store = repository.NewRevisionRepository(pool)
		a.ledger = repository.NewSubmissionRepository(pool)
		a.accounts = repository.NewAccountRepository(pool)
		a.userData = repository.NewUserDataRepository(pool)
		a.settings = repository.NewSettingsRepository(pool)
		a.queue = queue.NewPostgres(pool, clock.Now)
	default:
		log.Warn("using in-memory storage, data is lost on restart")
		ledger := memory.NewSubmissionLedger(nil)
		a.store = memory.NewRevisionStore().CascadeTo(ledger)
		a.ledger = ledger
		a.accounts = memory.NewAccountRepository(nil)
		a.userData = memory.NewUserDataRepository()
		a.settings = memory.NewSettingsRepository()
		a.queue = queue.NewMemory(clock.Now)
	}

	// 3. Pending consent sessions
	sessions, err := session.New(ctx, session.Config{
		Driver:   cfg.Session.Driver,
		Addr:     cfg.Session.RedisAddr,
		Password: cfg.Session.RedisPassword,
		DB:       cfg.Session.RedisDB,
		Prefix:   "agreement:session:",
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	a.sessions = sessions

	// 4. Decision subscribers
	bus := notify.NewBus(log.Named("notify"),
		notify.NewLogSubscriber(log.Named("decisions")),
		notify.NewRejectionSubscriber(a.userData, a.queue, clock.Now),
	)
	if cfg.SMTP.Enabled() {
		bus.Subscribe(notify.NewMailSubscriber(notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			SSL:      cfg.SMTP.Port == 465,
		}), log.Named("mail")))
		log.Info("decision mails enabled", zap.String("smtp_host", cfg.SMTP.Host))
	}

	// 5. External login
	var login service.LoginProvider = clients.NoopLogin{}
	if cfg.SSOBaseURL != "" {
		lc, err := clients.NewLoginClient(cfg.SSOBaseURL, 10*time.Second)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create login client: %w", err)
		}
		login = lc
		log.Info("login service configured", zap.String("url", cfg.SSOBaseURL))
	}

	// 6. Services
	a.settingsSvc = service.NewSettingsService(a.settings)
	a.agreementSvc = service.NewAgreementService(a.store, a.ledger, clock, log.Named("agreements"))
	a.evaluator = service.NewConsentEvaluator(a.store, a.ledger,
		service.NewRoleExemption(a.accounts, cfg.Consent.ExemptRoles))
	a.consentSvc = service.NewConsentService(service.ConsentDeps{
		Evaluator:  a.evaluator,
		Store:      a.store,
		Ledger:     a.ledger,
		Accounts:   a.accounts,
		Sessions:   a.sessions,
		Dispatcher: bus,
		Login:      login,
		Settings:   a.settingsSvc,
		Clock:      clock,
		Log:        log.Named("consent"),
	}, service.ConsentConfig{
		SessionTTL:     cfg.Session.TTL,
		DefaultLanding: cfg.Consent.DefaultLanding,
	})

	// 7. Expiry sweeper
	sweeper := worker.NewSweeper(a.store, a.accounts, a.evaluator, clock, cfg.Sweeper.GracePeriod, log.Named("sweeper"))
	a.runner = worker.NewRunner(a.queue, sweeper, clock, worker.RunnerConfig{
		Interval: cfg.Sweeper.Interval,
		Batch:    cfg.Sweeper.Batch,
	}, log.Named("sweeper"))

	return a, nil
}

// ping reports database health; always nil on the memory driver.
func (a *app) ping(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Ping(ctx)
}

func (a *app) Close() {
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			a.log.Warn("failed to close session store", zap.Error(err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = logger.Sync()
}
