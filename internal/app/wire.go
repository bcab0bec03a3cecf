package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-access/internal/events"
	"github.com/odyssey-erp/odyssey-access/internal/observability"
	"github.com/odyssey-erp/odyssey-access/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-access/internal/platform/db"
	"github.com/odyssey-erp/odyssey-access/internal/session"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
	"github.com/odyssey-erp/odyssey-access/internal/tokens"
)

// Runtime owns the external connections of a process.
type Runtime struct {
	Deps    Deps
	Redis   *redis.Client
	Pool    *pgxpool.Pool
	closers []func()
}

// RedisOptions returns the Redis settings from cfg.
func RedisOptions(cfg *Config) cache.Options {
	return cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

// OpenRuntime dials the stores, Redis and the event broker named by cfg and
// assembles Deps for BuildServices. Close releases everything it opened.
func OpenRuntime(ctx context.Context, cfg *Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	redisClient, err := cache.New(ctx, RedisOptions(cfg))
	if err != nil {
		return nil, err
	}
	rt.Redis = redisClient
	rt.closers = append(rt.closers, func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	})

	stores := MemoryStores()
	var locker shared.Locker = shared.NewLocalLocker()
	if cfg.AppStore == StorePostgres {
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return nil, err
		}
		rt.Pool = pool
		rt.closers = append(rt.closers, pool.Close)
		stores = PostgresStores(pool)
		locker = cache.NewRedisLocker(redisClient, cfg.LockTTL)
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(logger.With("component", "kafka"), cfg.KafkaBrokers, cfg.KafkaTopic)
		rt.closers = append(rt.closers, kp.Close)
		publisher = kp
	}

	issuer, verifier, err := newIssuer(cfg, redisClient, logger)
	if err != nil {
		return nil, err
	}

	rt.Deps = Deps{
		Config:    cfg,
		Logger:    logger,
		Stores:    stores,
		Locker:    locker,
		Publisher: publisher,
		Issuer:    issuer,
		Verifier:  verifier,
		Metrics:   observability.NewMetrics(),
	}
	ok = true
	return rt, nil
}

func newIssuer(cfg *Config, client redis.Cmdable, logger *slog.Logger) (session.TokenIssuer, tokens.Verifier, error) {
	secret := []byte(cfg.TokenSecret)
	switch cfg.TokenIssuer {
	case IssuerJWT:
		jwtIssuer, err := tokens.NewJWTIssuer(tokens.JWTConfig{
			Secret:     secret,
			Issuer:     cfg.TokenIssuerName,
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
		}, tokens.NewRedisRefreshStore(client, ""))
		if err != nil {
			return nil, nil, err
		}
		return jwtIssuer, jwtIssuer, nil
	case IssuerRemote:
		verifier, err := tokens.NewVerifier(secret, cfg.TokenIssuerName)
		if err != nil {
			return nil, nil, err
		}
		remote := tokens.NewRemoteIssuer(tokens.RemoteConfig{
			BaseURL:       cfg.RemoteIssuerURL,
			Timeout:       cfg.RemoteIssuerTimeout,
			RetryAttempts: cfg.RemoteIssuerRetries,
			RatePerSecond: cfg.RemoteIssuerRPS,
		}, logger.With("component", "remote_issuer"))
		return remote, verifier, nil
	default:
		return nil, nil, fmt.Errorf("unknown TOKEN_ISSUER %q", cfg.TokenIssuer)
	}
}

// Close releases connections in reverse order of opening.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// Migrate applies the embedded schema when the runtime uses PostgreSQL.
func (r *Runtime) Migrate(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	if r.Pool == nil {
		return errors.New("migrate: APP_STORE is not postgres")
	}
	return db.Migrate(ctx, cfg.PGDSN, logger)
}
