package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"famwatch/auth"
	"famwatch/check"
	"famwatch/config"
	"famwatch/db"
	"famwatch/disagreement"
	"famwatch/events"
	"famwatch/logging"
	"famwatch/migrations"
	"famwatch/response"
)

const (
	serviceName     = "famwatch"
	eventStreamCap  = 10000
	shutdownTimeout = 10 * time.Second
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "famwatch",
	Short:         "Proportionality review service for family monitoring",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "famwatch.yaml", "Path to YAML config (optional)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// stores groups the repositories for one persistence backend.
type stores struct {
	members       auth.Repository
	checks        check.Repository
	responses     response.Repository
	disagreements disagreement.Repository
	close         func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Store == config.StoreMemory {
		return &stores{
			members:       auth.NewMemoryRepository(),
			checks:        check.NewMemoryRepository(),
			responses:     response.NewMemoryRepository(),
			disagreements: disagreement.NewMemoryRepository(),
			close:         func() {},
		}, nil
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return pgStores(pool), nil
}

func pgStores(pool *pgxpool.Pool) *stores {
	return &stores{
		members:       auth.NewRepository(pool),
		checks:        check.NewRepository(pool),
		responses:     response.NewRepository(pool),
		disagreements: disagreement.NewRepository(pool),
		close:         pool.Close,
	}
}

// openPublisher returns a Redis Streams publisher, or a no-op one when no
// Redis address is configured.
func openPublisher(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (events.Publisher, func(), error) {
	if cfg.Addr == "" {
		logger.Info("redis not configured, events disabled")
		return events.NopPublisher{}, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	logger.Info("publishing events", zap.String("stream", cfg.Stream))
	return events.NewRedisStreamPublisher(client, cfg.Stream, eventStreamCap), func() { _ = client.Close() }, nil
}

func newServer(st *stores, publisher events.Publisher, cfg *config.Config, logger *zap.Logger) *Server {
	authService := auth.NewService(st.members, cfg.Auth.JWTSecret)
	checkService := check.NewService(st.checks, publisher, logger)
	responseService := response.NewService(st.responses, logger)
	disagreementService := disagreement.NewService(st.disagreements, responseService, checkService, publisher, logger)
	return NewServer(authService, checkService, responseService, disagreementService, logger)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap store: %w", err)
	}
	defer st.close()

	publisher, closePublisher, err := openPublisher(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newServer(st, publisher, cfg, logger).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("store", string(cfg.Store)),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Store != config.StorePostgres {
		return fmt.Errorf("migrate: store %q has no schema", cfg.Store)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	pool, err := db.NewPool(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.Apply(cmd.Context(), pool); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}
