package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/voyz/tokenauth/session"
)

var (
	storeKind   string
	redisURL    string
	postgresURL string
	boltPath    string
)

func addStoreFlags(c *cobra.Command) {
	c.Flags().StringVar(&storeKind, "store", "memory", "Session store: memory, redis, miniredis, postgres or bolt")
	c.Flags().StringVar(&redisURL, "redis-url", "redis://localhost:6379/0", "Redis URL for --store=redis")
	c.Flags().StringVar(&postgresURL, "postgres-url", "", "Postgres connection string for --store=postgres")
	c.Flags().StringVar(&boltPath, "bolt-path", "./data/sessions.db", "Database file for --store=bolt")
}

// openStore returns the configured session store and a function releasing
// everything it opened.
func openStore(ctx context.Context, redisPrefix string) (session.Store, func(), error) {
	switch storeKind {
	case "memory":
		return session.NewMemoryStore(), func() {}, nil

	case "miniredis":
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("starting miniredis: %w", err)
		}
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return session.NewRedisStore(rdb, redisPrefix), func() {
			_ = rdb.Close()
			mr.Close()
		}, nil

	case "redis":
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return session.NewRedisStore(rdb, redisPrefix), func() { _ = rdb.Close() }, nil

	case "postgres":
		if postgresURL == "" {
			return nil, nil, fmt.Errorf("--postgres-url is required for --store=postgres")
		}
		pool, err := pgxpool.New(ctx, postgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := session.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return session.NewPostgresStore(pool), pool.Close, nil

	case "bolt":
		if err := os.MkdirAll(filepath.Dir(boltPath), 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		store, err := session.OpenBoltStore(boltPath, nil)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q", storeKind)
	}
}
