// Package app connects configured backends and builds the services on top
// of them. Shared by the server and the admin CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/custody-ledger/internal/adapter/handler"
	"github.com/rl1809/custody-ledger/internal/adapter/storage"
	"github.com/rl1809/custody-ledger/internal/config"
	"github.com/rl1809/custody-ledger/internal/core/service"
	"github.com/rl1809/custody-ledger/internal/logger"
	"github.com/rl1809/custody-ledger/internal/port"
)

type Infra struct {
	DB      port.DatabaseRepository
	Cache   port.CacheRepository
	closers []func() error
}

// Open connects storage and cache per cfg. MySQL is migrated on open.
func Open(ctx context.Context, cfg *config.Config) (*Infra, error) {
	infra := &Infra{}

	switch cfg.Storage.Driver {
	case "mysql":
		db, err := sql.Open("mysql", cfg.Storage.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(cfg.Storage.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Storage.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Storage.ConnMaxLifetime)
		infra.closers = append(infra.closers, db.Close)

		if err := db.PingContext(ctx); err != nil {
			infra.Close()
			return nil, fmt.Errorf("ping mysql: %w", err)
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			infra.Close()
			return nil, fmt.Errorf("migrate mysql: %w", err)
		}
		infra.DB = adapter
		logger.Info(ctx, "connected to mysql")
	default:
		infra.DB = storage.NewMemoryAdapter()
		logger.Warn(ctx, "using in-memory storage, data is lost on exit")
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		infra.closers = append(infra.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			infra.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		infra.Cache = storage.NewRedisAdapter(rdb)
		logger.Info(ctx, "connected to redis")
	} else {
		infra.Cache = storage.NewMemoryCache()
	}

	return infra, nil
}

func (i *Infra) Close() error {
	var errs []error
	for j := len(i.closers) - 1; j >= 0; j-- {
		errs = append(errs, i.closers[j]())
	}
	i.closers = nil
	return errors.Join(errs...)
}

// ServiceOptions translates ledger settings into service options.
func ServiceOptions(cfg config.LedgerConfig) []service.Option {
	return []service.Option{
		service.WithLockTiming(cfg.LockTTL, cfg.LockWait),
		service.WithPriceFloor(cfg.EnforcePriceFloor),
	}
}

func NewServices(infra *Infra, opts ...service.Option) handler.Services {
	return handler.Services{
		Sales:     service.NewSaleService(infra.DB, infra.Cache, opts...),
		Custody:   service.NewCustodyService(infra.DB, infra.Cache, opts...),
		Requests:  service.NewRequestService(infra.DB, infra.Cache, opts...),
		Queries:   service.NewQueryService(infra.DB),
		Reconcile: service.NewReconcileService(infra.DB),
	}
}
