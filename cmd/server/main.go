package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	configs "github.com/thatlq1812/user-agreement/internal/configs"
	"github.com/thatlq1812/user-agreement/internal/database"
	"github.com/thatlq1812/user-agreement/internal/handler"
	"github.com/thatlq1812/user-agreement/internal/handler/middleware"
	"github.com/thatlq1812/user-agreement/internal/logger"
	"github.com/thatlq1812/user-agreement/internal/metrics"
	"github.com/thatlq1812/user-agreement/internal/seed"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "agreement",
	Short:        "User agreement and consent tracking service",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the gRPC health endpoint and the expiry sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd.Context(), func(ctx context.Context, p poolHandle) error {
			if err := database.Migrate(p.pool); err != nil {
				return err
			}
			p.log.Info("migrations applied")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (default 1)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid steps %q: %w", args[0], err)
			}
			steps = n
		}
		return withPool(cmd.Context(), func(ctx context.Context, p poolHandle) error {
			if err := database.Rollback(p.pool, steps); err != nil {
				return err
			}
			p.log.Info("migrations rolled back", zap.Int("steps", steps))
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Fail when the schema is behind or dirty",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd.Context(), func(ctx context.Context, p poolHandle) error {
			if err := database.CheckMigrations(p.pool); err != nil {
				return err
			}
			fmt.Println("Schema is up to date")
			return nil
		})
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load accounts, agreements and settings from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := seed.Load(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "seed")
		if err != nil {
			return err
		}
		defer a.Close()

		seeder := seed.NewSeeder(a.agreementSvc, a.settingsSvc, a.accounts, a.cfg.DefaultLangcode, a.log)
		res, err := seeder.Apply(cmd.Context(), f, "seed")
		if err != nil {
			return err
		}

		fmt.Printf("Accounts: %d\n", res.Accounts)
		fmt.Printf("Agreements created: %d, skipped: %d\n", res.AgreementsCreated, res.AgreementsSkipped)
		if res.RedirectConfigured {
			fmt.Println("Redirect URL configured")
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Process due expiry tasks once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "sweep")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.runner.RunOnce(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Claimed: %d, failed: %d\n", stats.Claimed, stats.Failed)
		for outcome, n := range stats.Processed {
			fmt.Printf("  %s: %d\n", outcome, n)
		}
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, sweepCmd)
}

func serve(ctx context.Context) error {
	// 1-7. Configuration, storage, services and sweeper
	a, err := newApp(ctx, "server")
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log

	// 8. HTTP API
	metricsHandler, err := metrics.Register(nil)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	var limiter *middleware.RateLimiter
	if a.cfg.Limit.RPS > 0 {
		limiter = middleware.NewRateLimiter(a.cfg.Limit.RPS, a.cfg.Limit.Burst)
	}

	router := handler.NewRouter(handler.RouterConfig{
		Agreements:      a.agreementSvc,
		Consent:         a.consentSvc,
		Evaluator:       a.evaluator,
		Settings:        a.settingsSvc,
		Ledger:          a.ledger,
		Accounts:        a.accounts,
		JWTSecret:       a.cfg.JWT.Secret,
		DefaultLangcode: a.cfg.DefaultLangcode,
		Limiter:         limiter,
		Metrics:         metricsHandler,
		Health:          a.ping,
		Log:             log.Named("http"),
	})

	httpServer := &http.Server{
		Addr:              a.cfg.Server.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 9. gRPC health server
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// Enable reflection for testing with grpcurl
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", a.cfg.Server.GRPCAddr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.Server.GRPCAddr(), err)
	}

	// 10. Run until a signal or a component fails
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info("gRPC health server listening", zap.String("addr", listener.Addr().String()))
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.runner.Run(gctx)
	})

	// 11. Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}

type poolHandle struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// withPool connects to the configured database without auto-migrating.
func withPool(ctx context.Context, fn func(ctx context.Context, p poolHandle) error) error {
	cfg, err := configs.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.Driver != configs.DriverPostgres {
		return fmt.Errorf("migrations need STORAGE_DRIVER=%s, got %q", configs.DriverPostgres, cfg.Database.Driver)
	}

	log := logger.Init(logger.Config{Env: cfg.LogEnv, Level: cfg.LogLevel, ServiceName: "user-agreement"}).Named("migrate")
	defer func() { _ = logger.Sync() }()

	pool, err := database.Open(ctx, cfg.Database.URL, database.PoolConfig{MaxConns: 2})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, poolHandle{pool: pool, log: log})
}
