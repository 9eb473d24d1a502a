package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/synapse-core/ipgate"
	"github.com/synapse-core/ipgate/internal/config"
	"github.com/synapse-core/ipgate/internal/events"
	"github.com/synapse-core/ipgate/internal/handlers"
	"github.com/synapse-core/ipgate/internal/idempotency"
	"github.com/synapse-core/ipgate/internal/server"
	"github.com/synapse-core/ipgate/internal/transaction"
	ipgateprom "github.com/synapse-core/ipgate/prometheus"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP (and optional gRPC) server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func buildFilter(cfg *config.Config, logger *slog.Logger, extra ...ipgate.Option) (*ipgate.Filter, error) {
	opts, err := cfg.Access.FilterOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, ipgate.WithLogger(logger))
	opts = append(opts, extra...)
	return ipgate.New(opts...)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	filter, err := buildFilter(cfg, logger, ipgateprom.WithMetrics())
	if err != nil {
		return err
	}
	if filter.AllowList().Len() == 0 {
		logger.Warn("allowlist is empty, every protected request will be rejected")
	}
	logger.Info("access filter ready",
		"header", filter.HeaderName(),
		"trusted_proxy_depth", filter.TrustedProxyDepth(),
		"allowlist", filter.AllowList().String(),
	)

	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		db.Close()
		logger.Info("database connections closed")
	}()

	if cfg.Database.MigrateOnStart {
		applied, err := transaction.Migrate(ctx, db)
		if err != nil {
			return err
		}
		logger.Info("database migrations completed", "applied", applied)
	}

	guard := idempotency.Noop()
	if cfg.Redis.URL != "" {
		client, err := openRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer client.Close()
		guard = idempotency.NewRedisGuard(client, cfg.Redis.IdempotencyTTL())
	} else {
		logger.Info("redis not configured, idempotency relies on the database")
	}

	pub, err := events.NewPublisher(cfg.Kafka.PublisherConfig(), logger)
	if err != nil {
		return fmt.Errorf("kafka init failed: %w", err)
	}
	defer pub.Close()

	router, err := server.NewRouter(server.RouterConfig{
		Handler: handlers.New(transaction.NewStore(db), guard, pub, logger),
		Filter:  filter,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	var (
		grpcServer   *grpc.Server
		healthServer *health.Server
	)
	if cfg.GRPC.Addr != "" {
		grpcServer, healthServer = server.NewGRPCServer(filter)
	}

	srv := server.New(server.Config{
		HTTPAddr:        cfg.Server.Address(),
		GRPCAddr:        cfg.GRPC.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout(),
		WriteTimeout:    cfg.Server.WriteTimeout(),
		IdleTimeout:     cfg.Server.IdleTimeout(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout(),
	}, router, grpcServer, healthServer, logger)

	return srv.Run(ctx)
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Millisecond)
	return db, nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
