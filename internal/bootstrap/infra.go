package bootstrap

import (
	"context"
	"log/slog"
	"os"

	"github.com/Domenick1991/reservations/config"
	"github.com/Domenick1991/reservations/internal/cache"
	"github.com/Domenick1991/reservations/internal/kafka"
	"github.com/Domenick1991/reservations/internal/repository"
	"github.com/Domenick1991/reservations/internal/repository/migrations"
	"github.com/Domenick1991/reservations/internal/service/reservation"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConfigPath returns $CONFIG_PATH or config.yaml.
func ConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

// Store is an opened repository.Store with its health check and cleanup.
type Store struct {
	repository.Store
	Ping  func(ctx context.Context) error
	Close func()
}

func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	if cfg.Driver == "memory" {
		logger.Warn("using in-memory store, state is lost on restart")
		return &Store{
			Store: repository.NewMemoryStore(),
			Ping:  func(context.Context) error { return nil },
			Close: func() {},
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	if cfg.AutoMigrate {
		if err := migrations.Apply(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}
	logger.Info("connected to postgres", "host", cfg.Host, "db", cfg.Name)

	return &Store{
		Store: repository.NewPGStore(pool),
		Ping:  pool.Ping,
		Close: pool.Close,
	}, nil
}

// OpenCache returns nil when Redis is not configured.
func OpenCache(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*cache.RedisCache, error) {
	if !cfg.Enabled() {
		logger.Info("redis disabled, snapshot cache and sweep lock are off")
		return nil, nil
	}
	c := cache.NewRedisCache(cfg)
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return c, nil
}

// OpenProducer returns nil when no brokers are configured. An unreachable
// broker is logged and not fatal since publishing is best effort.
func OpenProducer(ctx context.Context, cfg config.KafkaConfig, logger *slog.Logger) *kafka.Producer {
	if !cfg.Enabled() {
		logger.Info("kafka disabled, events are not published")
		return nil
	}
	p := kafka.NewProducer(cfg.Brokers, logger)
	if err := p.CheckConnection(ctx); err != nil {
		logger.Warn("kafka not reachable yet", "error", err)
	}
	return p
}

// NewManager builds the reservation manager from config. Nil cache or producer
// leave the corresponding side effect off.
func NewManager(cfg config.Config, store repository.Store, redisCache *cache.RedisCache, producer *kafka.Producer, logger *slog.Logger) *reservation.Manager {
	opts := []reservation.ManagerOption{
		reservation.WithLogger(logger),
		reservation.WithRetry(cfg.Reservation.MaxRetries, cfg.Reservation.RetryBase, cfg.Reservation.RetryMax),
		// Postgres writers are serialised by the version check alone
		reservation.WithPoolLocks(cfg.Database.Driver == "memory"),
	}
	if redisCache != nil {
		opts = append(opts, reservation.WithCache(redisCache))
	}
	if producer != nil {
		opts = append(opts, reservation.WithProducer(producer, cfg.Kafka.Topic, cfg.Reservation.PublishRetries))
	}
	return reservation.NewManager(store, cfg.Reservation.HoldTTL, opts...)
}
