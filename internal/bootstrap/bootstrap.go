// Package bootstrap opens the adapters selected by configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"aparthotel/internal/adapters/kafka"
	redisad "aparthotel/internal/adapters/redis"
	"aparthotel/internal/domain"
	"aparthotel/internal/shared"
	"aparthotel/internal/storage/memory"
	mysqlrepo "aparthotel/internal/storage/mysql"
)

// Deps are the ports the services run on. Cache and Publisher stay nil
// when their backends are not configured.
type Deps struct {
	Store     domain.Store
	Cache     domain.Cache
	Locker    domain.Locker
	Publisher domain.EventPublisher

	closers []func() error
}

func Open(ctx context.Context, cfg shared.Config) (*Deps, error) {
	d := &Deps{}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	switch cfg.Store {
	case "memory":
		d.Store = memory.New()
		log.Warn().Msg("using in-memory store; data is lost on exit")
	default:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return nil, err
		}
		log.Info().Msg("database connection ok")
		if cfg.Migrate {
			if err := mysqlrepo.Migrate(ctx, db); err != nil {
				return nil, err
			}
		}
		d.Store = mysqlrepo.NewStore(db)
	}

	if cfg.RedisAddr != "" {
		cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		d.closers = append(d.closers, cache.Client().Close)
		if err := cache.Ping(ctx); err != nil {
			return nil, err
		}
		d.Cache = cache
		d.Locker = redisad.NewLocker(cache.Client())
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis connection ok")
	} else {
		// single process only: the lease is not shared between api and syncer
		d.Locker = memory.NewLocker()
		log.Warn().Msg("REDIS_ADDR empty; rate cache disabled and sync leases are in-process")
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub, err := kafka.Dial(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, pub.Close)
		d.Publisher = pub
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka producer ready")
	}

	ok = true
	return d, nil
}

// Close releases connections in reverse order of opening.
func (d *Deps) Close() {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("close dependencies")
	}
}
